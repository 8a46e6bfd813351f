package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode represents a unified error code across the engine.
type ErrorCode string

const (
	ErrConfigInvalid     ErrorCode = "CONFIG_INVALID"
	ErrTimeout           ErrorCode = "TIMEOUT"
	ErrCancelled         ErrorCode = "CANCELLED"
	ErrUnrecoverable     ErrorCode = "UNRECOVERABLE"
	ErrTransient         ErrorCode = "TRANSIENT"
	ErrTokenMismatch     ErrorCode = "TOKEN_MISMATCH"
	ErrEscalationTimeout ErrorCode = "ESCALATION_TIMEOUT"
	ErrNotFound          ErrorCode = "NOT_FOUND"
	ErrInternalError     ErrorCode = "INTERNAL_ERROR"

	// HTTP 接入层使用
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrRateLimited        ErrorCode = "RATE_LIMITED"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// Error represents a structured error with code, message, and node.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	NodeID  string    `json:"node_id,omitempty"`
	Cause   error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]", e.Code)
	if e.NodeID != "" {
		fmt.Fprintf(&b, " %s:", e.NodeID)
	}
	b.WriteString(" ")
	b.WriteString(e.Message)
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithNode sets the node the error belongs to.
func (e *Error) WithNode(nodeID string) *Error {
	e.NodeID = nodeID
	return e
}

// AsError extracts *Error from an error chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsErrorCode checks whether any *Error in the chain carries the code.
func IsErrorCode(err error, code ErrorCode) bool {
	e, ok := AsError(err)
	return ok && e.Code == code
}

// ConfigError 拓扑或配置参数非法，启动期致命
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Reason)
}

// IsConfigError 判断错误链中是否包含 ConfigError
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
