package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/bstflow/config"
	"github.com/BaSui01/bstflow/types"
)

func testSimulationConfig() config.SimulationConfig {
	cfg := config.DefaultSimulationConfig()
	cfg.Latency = 0
	return cfg
}

func TestSimulator_TokensByQuality(t *testing.T) {
	s := newSimulator(testSimulationConfig())
	assert.Equal(t, int64(100), s.tokens(types.QualityFull))
	assert.Equal(t, int64(40), s.tokens(types.QualityReduced))
	assert.Equal(t, int64(10), s.tokens(types.QualityMinimal))
	assert.Equal(t, int64(10), s.tokens(types.QualityHalted))
}

func TestSimulator_Success(t *testing.T) {
	cfg := testSimulationConfig()
	cfg.LeafConfidence = map[string]float64{"1_3": 0.2}
	s := newSimulator(cfg)

	out := s.Handle(context.Background(), types.Input{NodeID: "1_0", Quality: types.QualityReduced,
		Request: map[string]any{"expected": "approve"}})
	success, ok := out.(*types.Success)
	require.True(t, ok, "got %T", out)
	assert.Equal(t, "approve", success.Result)
	assert.Equal(t, 0.9, success.Confidence)
	assert.Equal(t, int64(40), success.Tokens())
	require.NotEmpty(t, success.Logs)
	assert.True(t, success.Logs[len(success.Logs)-1].Completion)

	out = s.Handle(context.Background(), types.Input{NodeID: "1_3"})
	success, ok = out.(*types.Success)
	require.True(t, ok)
	assert.Equal(t, "ok", success.Result)
	assert.Equal(t, 0.2, success.Confidence)
}

func TestSimulator_DebugLogs(t *testing.T) {
	s := newSimulator(testSimulationConfig())

	plain := s.Handle(context.Background(), types.Input{NodeID: "1_0"})
	debug := s.Handle(context.Background(), types.Input{NodeID: "1_0", Debug: true})
	assert.Len(t, debug.Entries(), len(plain.Entries())+1)
	assert.Equal(t, types.LogDebug, debug.Entries()[1].Level)
}

func TestSimulator_FailingAndFlakyLeaves(t *testing.T) {
	cfg := testSimulationConfig()
	cfg.FailingLeaves = []string{"1_1"}
	cfg.FlakyLeaves = []string{"1_2"}
	s := newSimulator(cfg)

	out := s.Handle(context.Background(), types.Input{NodeID: "1_1", Attempt: 1})
	failure, ok := out.(*types.Failure)
	require.True(t, ok)
	assert.Equal(t, types.FailureUnrecoverable, failure.Kind)
	assert.ErrorIs(t, failure.Err, errSimulatedFailure)

	out = s.Handle(context.Background(), types.Input{NodeID: "1_2"})
	failure, ok = out.(*types.Failure)
	require.True(t, ok)
	assert.Equal(t, types.FailureTransient, failure.Kind)

	out = s.Handle(context.Background(), types.Input{NodeID: "1_2", Attempt: 1})
	assert.IsType(t, &types.Success{}, out)
}

func TestSimulator_CancelledDuringLatency(t *testing.T) {
	cfg := testSimulationConfig()
	cfg.Latency = time.Minute
	s := newSimulator(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	meter := &types.Meter{}

	out := s.Handle(ctx, types.Input{NodeID: "1_0", Meter: meter})
	failure, ok := out.(*types.Failure)
	require.True(t, ok)
	assert.Equal(t, types.FailureCancelled, failure.Kind)
	assert.Equal(t, int64(50), meter.Value())
	assert.Zero(t, failure.Tokens())
}

func TestVerdict(t *testing.T) {
	assert.Equal(t, "ok", verdict(nil))
	assert.Equal(t, "ok", verdict("plain"))
	assert.Equal(t, "ok", verdict(map[string]any{"doc": "x"}))
	assert.Equal(t, float64(3), verdict(map[string]any{"expected": float64(3)}))
}
