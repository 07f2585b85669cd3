package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	"jellybot/model"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Response 所有 API 共用的回应格式
type Response struct {
	Success bool              `json:"success"`
	Errors  map[string]string `json:"errors,omitempty"`
	Data    any               `json:"data,omitempty"`
	Flags   []string          `json:"flags,omitempty"`
	Info    []model.InfoFlag  `json:"info,omitempty"`
	Result  any               `json:"result,omitempty"`

	status int
}

func ok(data any) *Response {
	return &Response{Success: true, Data: data, status: http.StatusOK}
}

// outcome 把结果码转成回应，status 为失败时的 HTTP 状态
func outcome(success bool, result any, name string, status int) *Response {
	r := &Response{Success: success, Result: result, Flags: []string{name}, status: http.StatusOK}
	if !success {
		r.status = status
	}
	return r
}

func fieldErrors(errs map[string]string) *Response {
	return &Response{Success: false, Errors: errs, status: http.StatusBadRequest}
}

func (r *Response) write(c *gin.Context) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	c.JSON(r.status, r)
}

// writeError 错误分类对应 HTTP 状态，其他错误只回一般讯息
func writeError(c *gin.Context, err error) {
	var r *Response
	switch {
	case errors.Is(err, model.ErrValidation):
		r = &Response{Errors: map[string]string{"request": err.Error()}, status: http.StatusBadRequest}
	case errors.Is(err, model.ErrNotFound):
		r = &Response{Errors: map[string]string{"request": err.Error()}, status: http.StatusNotFound}
	case errors.Is(err, model.ErrConflict):
		r = &Response{Errors: map[string]string{"request": err.Error()}, status: http.StatusConflict}
	default:
		zap.L().Error("API request failed", zap.String("path", c.FullPath()), zap.Error(err))
		r = &Response{Errors: map[string]string{"server": "internal error"}, status: http.StatusInternalServerError}
	}
	r.write(c)
}

func init() {
	// 检查错误用 json 名称
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	}
}

func bindErrors(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"body": err.Error()}
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = fe.Tag()
	}
	return out
}

type actFunc[T any] func(ctx context.Context, u *model.RootUser, req *T) (*Response, error)

// handle 绑定参数 → 检查 → 执行 → 输出。GET 读 query，其他读 JSON body。
func handle[T any](validate func(req *T) map[string]string, act actFunc[T]) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req T
		var err error
		if c.Request.Method == http.MethodGet {
			err = c.ShouldBindQuery(&req)
		} else {
			err = c.ShouldBindJSON(&req)
			if errors.Is(err, io.EOF) {
				err = binding.Validator.ValidateStruct(&req)
			}
		}
		if err != nil {
			fieldErrors(bindErrors(err)).write(c)
			return
		}
		if validate != nil {
			if errs := validate(&req); len(errs) > 0 {
				fieldErrors(errs).write(c)
				return
			}
		}
		res, err := act(c.Request.Context(), currentUser(c), &req)
		if err != nil {
			writeError(c, err)
			return
		}
		res.write(c)
	}
}
