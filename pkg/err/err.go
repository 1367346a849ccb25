package errprocess

import (
	"errors"
	"fmt"
	"net/http"

	"school_messaging_service/pkg/logger"
)

// AppError coded error shared by every layer
type AppError struct {
	Code    int
	Message string
	Err     error
}

// Error implement error
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap support errors.Unwrap
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is match AppError by code, so wrapped copies still match the sentinel
func (e *AppError) Is(target error) bool {
	var t *AppError
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

// Wrap keep the sentinel code and attach the cause
func (e *AppError) Wrap(err error) *AppError {
	return &AppError{Code: e.Code, Message: e.Message, Err: err}
}

// NewError create coded error
func NewError(code int, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// error codes
const (
	CodeInvalidParams    = 40001
	CodeInvalidReference = 40002
	CodeUnauthorized     = 40301
	CodeNotAParticipant  = 40302
	CodeThreadNotFound   = 40401
	CodeMessageNotFound  = 40402
	CodeStaleReceipt     = 40901
	CodeTransientStorage = 50301
	CodeServerError      = 50001
)

// messaging errors
var (
	ErrInvalidParams    = NewError(CodeInvalidParams, "invalid params")
	ErrInvalidReference = NewError(CodeInvalidReference, "invalid reference")
	ErrUnauthorized     = NewError(CodeUnauthorized, "unauthorized")
	ErrNotAParticipant  = NewError(CodeNotAParticipant, "not a participant")
	ErrThreadNotFound   = NewError(CodeThreadNotFound, "thread not found")
	ErrMessageNotFound  = NewError(CodeMessageNotFound, "message not found")
	ErrTransientStorage = NewError(CodeTransientStorage, "storage unavailable")
	ErrServerError      = NewError(CodeServerError, "internal server error")

	// ErrStaleReceipt receipt regression, callers swallow it
	ErrStaleReceipt = NewError(CodeStaleReceipt, "stale receipt")
)

// Is 判斷是否為指定錯誤
func Is(err error, target *AppError) bool {
	return errors.Is(err, target)
}

// GetCode 取得錯誤碼，非 AppError 回傳 CodeServerError
func GetCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeServerError
}

// GetMessage 取得使用者可見的錯誤訊息
func GetMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return ErrServerError.Message
}

// HTTPStatus map error code to http status
func HTTPStatus(err error) int {
	switch GetCode(err) {
	case CodeInvalidParams, CodeInvalidReference:
		return http.StatusBadRequest
	case CodeUnauthorized, CodeNotAParticipant:
		return http.StatusForbidden
	case CodeThreadNotFound, CodeMessageNotFound:
		return http.StatusNotFound
	case CodeStaleReceipt:
		return http.StatusConflict
	case CodeTransientStorage:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Set set err info
func Set(errMsg string) error {
	logger.Log.Error(errMsg)
	return errors.New(errMsg)
}
