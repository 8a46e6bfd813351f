package aggregate

import "github.com/BaSui01/bstflow/types"

// LogFilter INFO 日志的削减参数
type LogFilter struct {
	// Head 每个子节点-操作保留的前 N 条 INFO
	Head int `json:"head" yaml:"head"`
	// SampleEvery 其余 INFO 每 N 条采样 1 条
	SampleEvery int `json:"sample_every" yaml:"sample_every"`
	// MaxSamples 每个子节点-操作最多采样条数
	MaxSamples int `json:"max_samples" yaml:"max_samples"`
}

// DefaultLogFilter 默认参数：前 5 条、1/10 采样、最多 9 条采样
// 加上完成条目，单个操作最多向上传递 15 条 INFO
func DefaultLogFilter() LogFilter {
	return LogFilter{Head: 5, SampleEvery: 10, MaxSamples: 9}
}

func (f LogFilter) normalized() LogFilter {
	if f.Head < 0 {
		f.Head = 0
	}
	if f.SampleEvery <= 0 {
		f.SampleEvery = 10
	}
	if f.MaxSamples < 0 {
		f.MaxSamples = 0
	}
	return f
}

// Filter 过滤单个子节点的日志，保持原有顺序
// ERROR 与 WARNING 永不丢弃；DEBUG 仅在 debug 为 true 时保留
func (f LogFilter) Filter(entries []types.LogEntry, debug bool) []types.LogEntry {
	if len(entries) == 0 {
		return nil
	}
	f = f.normalized()

	// 每个操作的完成条目：显式标记优先，否则取最后一条 INFO
	completion := make(map[string]int)
	flagged := make(map[string]bool)
	for i, e := range entries {
		if e.Level != types.LogInfo {
			continue
		}
		key := e.OperationKey()
		if e.Completion {
			completion[key] = i
			flagged[key] = true
		} else if !flagged[key] {
			completion[key] = i
		}
	}

	seen := make(map[string]int)
	sampled := make(map[string]int)
	out := make([]types.LogEntry, 0, len(entries))
	for i, e := range entries {
		switch e.Level {
		case types.LogError, types.LogWarning:
			out = append(out, e)
			continue
		case types.LogDebug:
			if debug {
				out = append(out, e)
			}
			continue
		case types.LogInfo:
		default:
			out = append(out, e)
			continue
		}

		key := e.OperationKey()
		k := seen[key]
		seen[key]++

		switch {
		case k < f.Head, e.Anomalous, completion[key] == i:
			out = append(out, e)
		case (k-f.Head+1)%f.SampleEvery == 0 && sampled[key] < f.MaxSamples:
			sampled[key]++
			out = append(out, e)
		}
	}
	return out
}

// MergeLogs 按子节点位置拼接日志
func MergeLogs(children ...[]types.LogEntry) []types.LogEntry {
	n := 0
	for _, c := range children {
		n += len(c)
	}
	if n == 0 {
		return nil
	}
	out := make([]types.LogEntry, 0, n)
	for _, c := range children {
		out = append(out, c...)
	}
	return out
}

// CountLevel 统计指定级别的条目数
func CountLevel(entries []types.LogEntry, level types.LogLevel) int {
	n := 0
	for _, e := range entries {
		if e.Level == level {
			n++
		}
	}
	return n
}
