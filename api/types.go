package api

import "github.com/BaSui01/bstflow/store"

// AnalyzeRequest 分析请求
// RequestID 为空时使用 X-Request-ID
type AnalyzeRequest struct {
	RequestID string `json:"request_id,omitempty" example:"req-123"`
	// Payload 原样传给每个叶子
	Payload any `json:"payload,omitempty"`
	// Debug 为 true 时 DEBUG 日志随报告返回
	Debug bool `json:"debug,omitempty"`
}

// ReportList 报告摘要列表
type ReportList struct {
	Reports []store.Summary `json:"reports"`
	Count   int             `json:"count"`
}
