package handlers

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/bstflow/internal/ctxkeys"
	"github.com/BaSui01/bstflow/types"
)

// Response 统一响应信封
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	RequestID string     `json:"request_id,omitempty"`
}

// ErrorInfo 信封中的错误部分
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	NodeID  string `json:"node_id,omitempty"`
	// Retryable 客户端是否值得稍后重试
	Retryable bool `json:"retryable,omitempty"`
}

// 未列出的错误码一律 500
var statusByCode = map[types.ErrorCode]int{
	types.ErrInvalidRequest:     http.StatusBadRequest,
	types.ErrConfigInvalid:      http.StatusBadRequest,
	types.ErrNotFound:           http.StatusNotFound,
	types.ErrRateLimited:        http.StatusTooManyRequests,
	types.ErrTimeout:            http.StatusGatewayTimeout,
	types.ErrEscalationTimeout:  http.StatusGatewayTimeout,
	types.ErrServiceUnavailable: http.StatusServiceUnavailable,
	types.ErrCancelled:          http.StatusServiceUnavailable,
}

// HTTPStatus 返回错误码对应的 HTTP 状态码
func HTTPStatus(code types.ErrorCode) int {
	if s, ok := statusByCode[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// WriteJSON 写入 JSON，头写出后编码错误无法再报告
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteSuccess 写入 200 成功信封
func WriteSuccess(w http.ResponseWriter, r *http.Request, data any) {
	WriteJSON(w, http.StatusOK, Response{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: requestID(r),
	})
}

// WriteError 写入错误信封，5xx 记 ERROR，其余记 DEBUG
func WriteError(w http.ResponseWriter, r *http.Request, err *types.Error, logger *zap.Logger) {
	status := HTTPStatus(err.Code)

	if logger != nil {
		log := logger.Debug
		if status >= http.StatusInternalServerError {
			log = logger.Error
		}
		log("request failed",
			zap.String("code", string(err.Code)),
			zap.String("message", err.Message),
			zap.String("node_id", err.NodeID),
			zap.Int("status", status),
			zap.NamedError("cause", err.Cause),
		)
	}

	WriteJSON(w, status, Response{
		Error: &ErrorInfo{
			Code:      string(err.Code),
			Message:   err.Message,
			NodeID:    err.NodeID,
			Retryable: retryable(status),
		},
		Timestamp: time.Now(),
		RequestID: requestID(r),
	})
}

// WriteErrorMessage WriteError 的简写
func WriteErrorMessage(w http.ResponseWriter, r *http.Request, code types.ErrorCode, message string, logger *zap.Logger) {
	WriteError(w, r, types.NewError(code, message), logger)
}

// asAPIError 配置错误视为请求错误，未知错误隐藏细节
func asAPIError(err error) *types.Error {
	if e, ok := types.AsError(err); ok {
		return e
	}
	var ce *types.ConfigError
	if errors.As(err, &ce) {
		return types.NewError(types.ErrInvalidRequest, ce.Error())
	}
	return types.NewError(types.ErrInternalError, "internal error").WithCause(err)
}

func requestID(r *http.Request) string {
	if r == nil {
		return ""
	}
	id, _ := ctxkeys.RequestID(r.Context())
	return id
}

// maxBodyBytes 分析请求体上限
const maxBodyBytes = 1 << 20

// DecodeJSONBody 严格解码请求体，失败时已写出 400
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst any, logger *zap.Logger) error {
	if r.Body == nil || r.Body == http.NoBody {
		err := types.NewError(types.ErrInvalidRequest, "request body is empty")
		WriteError(w, r, err, logger)
		return err
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		msg := "invalid JSON body"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			msg = "request body too large"
		}
		apiErr := types.NewError(types.ErrInvalidRequest, msg).WithCause(err)
		WriteError(w, r, apiErr, logger)
		return apiErr
	}
	return nil
}

// ValidateContentType 要求 application/json，忽略 charset 等参数
func ValidateContentType(w http.ResponseWriter, r *http.Request, logger *zap.Logger) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mt != "application/json" {
		WriteErrorMessage(w, r, types.ErrInvalidRequest, "Content-Type must be application/json", logger)
		return false
	}
	return true
}

// StatusRecorder 记录响应状态码与字节数，供日志/指标/追踪中间件读取
type StatusRecorder struct {
	http.ResponseWriter
	status      int
	bytes       int64
	wroteHeader bool
}

// NewStatusRecorder 包装 w，未显式写头时状态为 200
func NewStatusRecorder(w http.ResponseWriter) *StatusRecorder {
	return &StatusRecorder{ResponseWriter: w, status: http.StatusOK}
}

// WriteHeader 只转发第一次写头
func (rw *StatusRecorder) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.status, rw.wroteHeader = code, true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *StatusRecorder) Write(b []byte) (int, error) {
	rw.WriteHeader(http.StatusOK)
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += int64(n)
	return n, err
}

// Status 响应状态码
func (rw *StatusRecorder) Status() int { return rw.status }

// Bytes 已写出的响应体字节数
func (rw *StatusRecorder) Bytes() int64 { return rw.bytes }

// Unwrap 供 http.ResponseController 访问底层 writer
func (rw *StatusRecorder) Unwrap() http.ResponseWriter { return rw.ResponseWriter }
