package utils

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"unicode/utf8"

	"jellybot/model"

	"go.uber.org/zap"
)

var imageExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {}, ".bmp": {},
}

// LineStickerURL LINE 贴图的公开图片地址
func LineStickerURL(stickerID string) string {
	return fmt.Sprintf("https://stickershop.line-scdn.net/stickershop/v1/sticker/%s/android/sticker.png", stickerID)
}

// ContentValidator 检查自动回复的关键字与回应内容
type ContentValidator struct {
	MaxKeywordLength  int
	MaxResponseLength int
	OnlineCheck       bool
	client            *http.Client
}

func NewContentValidator(maxKeyword, maxResponse int, onlineCheck bool) *ContentValidator {
	return &ContentValidator{
		MaxKeywordLength:  maxKeyword,
		MaxResponseLength: maxResponse,
		OnlineCheck:       onlineCheck,
		client:            GlobalHTTPClient,
	}
}

// WithHTTPClient 替换在线检查用的客户端
func (v *ContentValidator) WithHTTPClient(c *http.Client) *ContentValidator {
	v.client = c
	return v
}

// Keyword 返回整理后的关键字与是否有效
func (v *ContentValidator) Keyword(ctx context.Context, c model.Content) (model.Content, bool) {
	return v.validate(ctx, c, v.MaxKeywordLength)
}

// Response 返回整理后的回应与是否有效
func (v *ContentValidator) Response(ctx context.Context, c model.Content) (model.Content, bool) {
	return v.validate(ctx, c, v.MaxResponseLength)
}

func (v *ContentValidator) validate(ctx context.Context, c model.Content, maxLen int) (model.Content, bool) {
	c.Value = strings.TrimSpace(c.Value)
	switch c.Type {
	case model.ContentText:
		n := utf8.RuneCountInString(c.Value)
		return c, n > 0 && (maxLen <= 0 || n <= maxLen)
	case model.ContentImage:
		if !IsImageURL(c.Value) {
			return c, false
		}
		if v.OnlineCheck {
			return c, v.reachable(ctx, c.Value, "image/")
		}
		return c, true
	case model.ContentLineSticker:
		if !isDigits(c.Value) {
			return c, false
		}
		if v.OnlineCheck {
			return c, v.reachable(ctx, LineStickerURL(c.Value), "")
		}
		return c, true
	}
	return c, false
}

// IsImageURL http(s) 地址且路径以图片扩展名结尾
func IsImageURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	_, ok := imageExtensions[strings.ToLower(path.Ext(u.Path))]
	return ok
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (v *ContentValidator) reachable(ctx context.Context, target, contentTypePrefix string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		return false
	}
	resp, err := v.client.Do(req)
	if err != nil {
		zap.L().Debug("content online check failed", zap.String("url", target), zap.Error(err))
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}
	return contentTypePrefix == "" || strings.HasPrefix(resp.Header.Get("Content-Type"), contentTypePrefix)
}
