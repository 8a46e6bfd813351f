package aggregate

import (
	"maps"

	"go.uber.org/zap"

	"github.com/BaSui01/bstflow/types"
)

// Input 一次内部节点聚合的输入
// Children 必须按子节点位置排列
type Input struct {
	NodeID    string
	Level     int
	OwnStatus types.Status
	OwnTokens int64
	OwnLogs   []types.LogEntry
	Children  []types.NodeReport
	Decisions []types.AppliedDecision
	Error     string
	Debug     bool
}

// Aggregator 组合日志、状态与 Token 三条规则
type Aggregator struct {
	filter LogFilter
	logger *zap.Logger
}

// NewAggregator 创建聚合器
func NewAggregator(filter LogFilter, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		filter: filter.normalized(),
		logger: logger.With(zap.String("component", "aggregator")),
	}
}

// Aggregate 生成节点报告
// 叶子子节点的日志在此削减；内部子节点的日志已在下一层削减过，原样向上传递
func (a *Aggregator) Aggregate(in Input) (types.NodeReport, error) {
	own := in.OwnStatus
	if own == "" {
		own = types.StatusHealthy
	}

	logs := make([][]types.LogEntry, 0, len(in.Children)+1)
	statuses := make([]types.Status, 0, len(in.Children))
	usages := make([]types.TokenUsage, 0, len(in.Children))
	summaries := make(map[string]types.ChildSummary, len(in.Children))
	var results map[string]any

	for i := range in.Children {
		child := &in.Children[i]
		if child.Level <= 1 {
			logs = append(logs, a.filter.Filter(child.Logs, in.Debug))
		} else {
			logs = append(logs, dropDebug(child.Logs, in.Debug))
		}
		statuses = append(statuses, child.Status)
		usages = append(usages, child.Tokens)
		summaries[child.NodeID] = child.Summary()
		results = mergeResult(results, child)
	}
	logs = append(logs, dropDebug(in.OwnLogs, in.Debug))

	tokens := MergeTokens(in.NodeID, in.OwnTokens, usages...)
	report := types.NodeReport{
		NodeID:         in.NodeID,
		Level:          in.Level,
		Status:         FoldStatus(own, statuses...),
		Logs:           MergeLogs(logs...),
		Tokens:         tokens,
		ChildSummaries: summaries,
		Decisions:      in.Decisions,
		Error:          in.Error,
	}
	if results != nil {
		report.Result = results
	}

	if err := Verify(tokens, usages...); err != nil {
		a.logger.Error("token conservation violated",
			zap.String("node_id", in.NodeID),
			zap.Error(err),
		)
		return report, err
	}
	return report, nil
}

// mergeResult 将子节点结果展开为 叶子ID -> 结果
func mergeResult(dst map[string]any, child *types.NodeReport) map[string]any {
	if child.Result == nil {
		return dst
	}
	if dst == nil {
		dst = make(map[string]any)
	}
	if nested, ok := child.Result.(map[string]any); ok && child.Level > 1 {
		maps.Copy(dst, nested)
		return dst
	}
	dst[child.NodeID] = child.Result
	return dst
}

func dropDebug(entries []types.LogEntry, debug bool) []types.LogEntry {
	if debug || len(entries) == 0 {
		return entries
	}
	out := entries[:0:0]
	for _, e := range entries {
		if e.Level != types.LogDebug {
			out = append(out, e)
		}
	}
	return out
}
