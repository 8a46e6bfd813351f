package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func okProbe(context.Context) error { return nil }

func TestHealthHandler_LivenessIgnoresProbes(t *testing.T) {
	h := NewHealthHandler(zap.NewNop(),
		WithProbe("report_store", func(context.Context) error { return errors.New("down") }),
		WithTopology(5, 2),
	)

	w := httptest.NewRecorder()
	h.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var live Liveness
	require.NoError(t, json.NewDecoder(w.Body).Decode(&live))
	assert.Equal(t, "alive", live.Status)
	require.NotNil(t, live.Topology)
	assert.Equal(t, Topology{Levels: 5, Fanout: 2}, *live.Topology)
}

func TestHealthHandler_Readiness(t *testing.T) {
	tests := []struct {
		name      string
		opts      []HealthOption
		wantCode  int
		wantReady bool
		failing   string
	}{
		{"no probes", nil, http.StatusOK, true, ""},
		{"all pass", []HealthOption{WithProbe("report_store", okProbe)}, http.StatusOK, true, ""},
		{"one fails", []HealthOption{
			WithProbe("report_store", okProbe),
			WithProbe("redis", func(context.Context) error { return errors.New("refused") }),
		}, http.StatusServiceUnavailable, false, "redis"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(nil, tt.opts...)

			w := httptest.NewRecorder()
			h.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

			assert.Equal(t, tt.wantCode, w.Code)
			var ready Readiness
			require.NoError(t, json.NewDecoder(w.Body).Decode(&ready))
			assert.Equal(t, tt.wantReady, ready.Ready)
			assert.Len(t, ready.Probes, len(tt.opts))
			for _, p := range ready.Probes {
				if p.Name == tt.failing {
					assert.False(t, p.OK)
					assert.Equal(t, "refused", p.Error)
				} else {
					assert.True(t, p.OK, p.Name)
				}
			}
		})
	}
}

func TestHealthHandler_ProbesRunConcurrently(t *testing.T) {
	var running, peak atomic.Int32
	slow := func(ctx context.Context) error {
		n := running.Add(1)
		defer running.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		select {
		case <-time.After(50 * time.Millisecond):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	h := NewHealthHandler(nil, WithProbe("a", slow), WithProbe("b", slow), WithProbe("c", slow))

	w := httptest.NewRecorder()
	h.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int32(3), peak.Load())
}

func TestHealthHandler_ProbeTimeout(t *testing.T) {
	h := NewHealthHandler(nil,
		WithProbeTimeout(20*time.Millisecond),
		WithProbe("hang", func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}),
	)

	w := httptest.NewRecorder()
	h.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var ready Readiness
	require.NoError(t, json.NewDecoder(w.Body).Decode(&ready))
	require.Len(t, ready.Probes, 1)
	assert.Contains(t, ready.Probes[0].Error, "deadline exceeded")
}

func TestHealthHandler_HandleVersion(t *testing.T) {
	h := NewHealthHandler(nil)
	w := httptest.NewRecorder()
	h.HandleVersion(BuildInfo{Version: "1.2.3", BuildTime: "today", GitCommit: "abc"})(w,
		httptest.NewRequest(http.MethodGet, "/version", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data BuildInfo `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "1.2.3", resp.Data.Version)
	assert.Equal(t, "abc", resp.Data.GitCommit)
	assert.NotEmpty(t, resp.Data.GoVersion)
}
