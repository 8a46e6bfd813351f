package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/bstflow/config"
	"github.com/BaSui01/bstflow/types"
)

// =============================================================================
// 🎲 模拟叶子处理器
// =============================================================================

var (
	errSimulatedFailure = errors.New("simulated failure")
	errSimulatedFlake   = errors.New("simulated transient failure")
)

// simulator 按配置确定性地模拟叶子行为，用于演示与联调
type simulator struct {
	cfg     config.SimulationConfig
	failing map[string]struct{}
	flaky   map[string]struct{}
}

func newSimulator(cfg config.SimulationConfig) *simulator {
	return &simulator{
		cfg:     cfg,
		failing: toSet(cfg.FailingLeaves),
		flaky:   toSet(cfg.FlakyLeaves),
	}
}

func toSet(ids []string) map[string]struct{} {
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}

// tokens 返回当前质量档位下一次调用的 Token 消耗
func (s *simulator) tokens(q types.Quality) int64 {
	switch q {
	case types.QualityFull:
		return s.cfg.TokensFull
	case types.QualityReduced:
		return s.cfg.TokensReduced
	default:
		return s.cfg.TokensMinimal
	}
}

// Handle 实现 types.Handler
func (s *simulator) Handle(ctx context.Context, in types.Input) types.Outcome {
	tokens := s.tokens(in.Quality)

	if s.cfg.Latency > 0 {
		timer := time.NewTimer(s.cfg.Latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			// 已开始的工作按一半计费
			in.Meter.Add(tokens / 2)
			return &types.Failure{Kind: types.FailureCancelled, Err: ctx.Err()}
		}
	}

	logs := []types.LogEntry{
		{Level: types.LogInfo, NodeID: in.NodeID, Operation: "analyze", Timestamp: time.Now(),
			Message: fmt.Sprintf("analysis started at %s quality", in.Quality)},
	}
	if in.Debug {
		logs = append(logs, types.LogEntry{Level: types.LogDebug, NodeID: in.NodeID, Operation: "analyze",
			Timestamp: time.Now(), Message: fmt.Sprintf("attempt %d, timeout %s", in.Attempt, in.Timeout)})
	}

	if _, ok := s.failing[in.NodeID]; ok {
		return &types.Failure{Kind: types.FailureUnrecoverable, Err: errSimulatedFailure, TokensUsed: tokens, Logs: logs}
	}
	if _, ok := s.flaky[in.NodeID]; ok && in.Attempt == 0 {
		return &types.Failure{Kind: types.FailureTransient, Err: errSimulatedFlake, TokensUsed: tokens, Logs: logs}
	}

	confidence := s.cfg.Confidence
	if c, ok := s.cfg.LeafConfidence[in.NodeID]; ok {
		confidence = c
	}
	logs = append(logs, types.LogEntry{Level: types.LogInfo, NodeID: in.NodeID, Operation: "analyze",
		Timestamp: time.Now(), Message: "analysis completed", Completion: true})

	return &types.Success{
		Result:     verdict(in.Request),
		Confidence: confidence,
		TokensUsed: tokens,
		Logs:       logs,
	}
}

// verdict 请求负载中带 expected 字段时以其为结果，否则为 "ok"
func verdict(payload any) any {
	if m, ok := payload.(map[string]any); ok {
		if v, ok := m["expected"]; ok {
			return v
		}
	}
	return "ok"
}
