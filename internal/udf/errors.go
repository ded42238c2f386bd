package udf

import (
	"errors"
	"fmt"
)

// 错误码：与查询引擎对外暴露的错误分类一致
type Code string

const (
	CodeInvalidFunctionArgument Code = "INVALID_FUNCTION_ARGUMENT"
	CodeFunctionNotFound        Code = "FUNCTION_NOT_FOUND"
	CodeTypeMismatch            Code = "TYPE_MISMATCH"
)

var (
	ErrInvalidFunctionArgument = errors.New("invalid function argument")
	ErrFunctionNotFound        = errors.New("function not found")
	ErrTypeMismatch            = errors.New("type mismatch")
)

// 文档注释：函数调用错误
// 背景：用户输入类错误（参数非法、函数不存在、类型不符）需要带错误码回传给宿主；索引内部错误不走此类型。
// 约束：errors.Is 可按错误码对应的哨兵错误匹配。
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string { return string(e.Code) + ": " + e.Message }

func (e *Error) Is(target error) bool {
	switch target {
	case ErrInvalidFunctionArgument:
		return e.Code == CodeInvalidFunctionArgument
	case ErrFunctionNotFound:
		return e.Code == CodeFunctionNotFound
	case ErrTypeMismatch:
		return e.Code == CodeTypeMismatch
	}
	return false
}

// Errorf 构造带错误码的错误
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf 提取错误码；非 *Error 返回空
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
