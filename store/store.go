package store

import (
	"context"
	"errors"
	"time"

	"github.com/BaSui01/bstflow/types"
)

// ErrNotFound 报告不存在或已过期
var ErrNotFound = errors.New("report not found")

// ReportStore 报告存储
type ReportStore interface {
	Save(ctx context.Context, report *types.FinalReport) error
	Get(ctx context.Context, requestID string) (*types.FinalReport, error)
	// List 按创建时间倒序返回摘要，limit<=0 表示不限
	List(ctx context.Context, limit int) ([]Summary, error)
	Delete(ctx context.Context, requestID string) error
	Close() error
}

// Pinger 支持健康检查的存储
type Pinger interface {
	Ping(ctx context.Context) error
}

// Summary 报告摘要
type Summary struct {
	RequestID      string       `json:"request_id"`
	Status         types.Status `json:"status"`
	TotalTokens    int64        `json:"total_tokens"`
	Escalations    int          `json:"escalations"`
	Recommendation string       `json:"recommendation"`
	CreatedAt      time.Time    `json:"created_at"`
}

// Summarize 提取报告摘要
func Summarize(r *types.FinalReport) Summary {
	return Summary{
		RequestID:      r.RequestID,
		Status:         r.Status,
		TotalTokens:    r.TokenUsage.Total,
		Escalations:    len(r.EscalationTrail),
		Recommendation: r.Recommendation,
		CreatedAt:      r.CreatedAt,
	}
}

func validate(r *types.FinalReport) error {
	if r == nil {
		return types.NewError(types.ErrConfigInvalid, "nil report")
	}
	if r.RequestID == "" {
		return types.NewError(types.ErrConfigInvalid, "report has no request id")
	}
	return nil
}
