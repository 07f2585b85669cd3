package model

import (
	"errors"
	"fmt"
)

// 错误分类。存储层对预期情况返回结果码，只有这些分类用 error 表达。
var (
	ErrValidation = errors.New("validation")
	ErrConflict   = errors.New("conflict")
	ErrNotFound   = errors.New("not found")
	ErrStore      = errors.New("store error")
	ErrHandler    = errors.New("handler error")
	ErrAdapter    = errors.New("adapter error")
)

// OpError 带操作名与分类的错误，errors.Is(err, ErrConflict) 之类可以命中 Kind。
type OpError struct {
	Op   string
	Kind error
	Err  error
}

func (e *OpError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Kind)
}

func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewOpError 构造分类错误
func NewOpError(op string, kind, err error) error {
	return &OpError{Op: op, Kind: kind, Err: err}
}
