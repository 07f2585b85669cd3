package execode

import (
	"fmt"
	"strconv"
)

// Code 完成结果码，数值为对外稳定的编码
type Code int

const (
	CodeOK               Code = 1
	CodeNotFound         Code = 11
	CodeTypeMismatch     Code = 12
	CodeKeysLacking      Code = 13
	CodeCompletionFailed Code = 14
	CodeCollationError   Code = 15
	CodeConstructError   Code = 16
	CodeCompletionError  Code = 17
)

var codeNames = map[Code]string{
	CodeOK:               "OK",
	CodeNotFound:         "NOT_FOUND",
	CodeTypeMismatch:     "TYPE_MISMATCH",
	CodeKeysLacking:      "KEYS_LACKING",
	CodeCompletionFailed: "COMPLETION_FAILED",
	CodeCollationError:   "COLLATION_ERROR",
	CodeConstructError:   "CONSTRUCT_ERROR",
	CodeCompletionError:  "COMPLETION_ERROR",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return strconv.Itoa(int(c))
}

func (c Code) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// CollationReason 参数整理失败的原因
type CollationReason int

const (
	ReasonEmptyContent CollationReason = 1
	ReasonMissingKey   CollationReason = 2
	ReasonMisc         CollationReason = 3
)

var reasonNames = map[CollationReason]string{
	ReasonEmptyContent: "EMPTY_CONTENT",
	ReasonMissingKey:   "MISSING_KEY",
	ReasonMisc:         "MISC",
}

func (r CollationReason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return strconv.Itoa(int(r))
}

func (r CollationReason) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// CollationError 参数整理失败
type CollationError struct {
	Reason CollationReason
	Key    string
	Err    error
}

func (e *CollationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("collation failed on %q (%s): %v", e.Key, e.Reason, e.Err)
	}
	return fmt.Sprintf("collation failed on %q (%s)", e.Key, e.Reason)
}

func (e *CollationError) Unwrap() error { return e.Err }

// NoCompleteActionError 完成器主动放弃，Code 会原样作为完成结果
type NoCompleteActionError struct {
	Code   Code
	Reason string
}

func (e *NoCompleteActionError) Error() string {
	return fmt.Sprintf("execode not completed (%s): %s", e.Code, e.Reason)
}

func failed(format string, args ...any) error {
	return &NoCompleteActionError{Code: CodeCompletionFailed, Reason: fmt.Sprintf(format, args...)}
}
