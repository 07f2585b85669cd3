package execode

import (
	"errors"
	"strings"

	"jellybot/model"

	"github.com/spf13/cast"
)

// Params 完成时传入的参数。表单提交的值可能被包成单元素数组，整理后都是标量。
type Params map[string]any

// scalar 取出单元素数组中的值
func scalar(v any) any {
	switch vv := v.(type) {
	case []any:
		if len(vv) == 1 {
			return vv[0]
		}
	case []string:
		if len(vv) == 1 {
			return vv[0]
		}
	}
	return v
}

// Unwrap 把所有单元素数组展开
func (p Params) Unwrap() {
	for k, v := range p {
		p[k] = scalar(v)
	}
}

// String 读取非空字符串参数
func (p Params) String(key string) (string, error) {
	v, ok := p[key]
	if !ok {
		return "", &CollationError{Reason: ReasonMissingKey, Key: key}
	}
	s, err := cast.ToStringE(scalar(v))
	if err != nil {
		return "", &CollationError{Reason: ReasonMisc, Key: key, Err: err}
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", &CollationError{Reason: ReasonEmptyContent, Key: key}
	}
	return s, nil
}

// Platform 平台可以是名称或数值编码
func (p Params) Platform(key string) (model.Platform, error) {
	s, err := p.String(key)
	if err != nil {
		return model.PlatformUnknown, err
	}
	platform, ok := model.ParsePlatform(s)
	if !ok || platform == model.PlatformUnknown {
		return model.PlatformUnknown, &CollationError{Reason: ReasonMisc, Key: key, Err: errors.New("unknown platform " + s)}
	}
	return platform, nil
}

// collatePlatformToken 整理 platform 与 token 两个参数，结果写回 params
func collatePlatformToken(tokenKey string) func(Params) error {
	return func(p Params) error {
		platform, err := p.Platform(KeyPlatform)
		if err != nil {
			return err
		}
		token, err := p.String(tokenKey)
		if err != nil {
			return err
		}
		p[KeyPlatform] = platform
		p[tokenKey] = token
		return nil
	}
}
