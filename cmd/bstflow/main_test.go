package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/bstflow/config"
	"github.com/BaSui01/bstflow/testutil"
	"github.com/BaSui01/bstflow/types"
)

// writeConfig 写入测试配置：关闭指标，日志落到临时文件
func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "bstflow.yaml")
	content := `
log:
  level: debug
  output_paths: ["` + filepath.Join(dir, "bstflow.log") + `"]
metrics:
  enabled: false
store:
  type: memory
simulation:
  latency: 0s
  tokens_full: 7
` + extra
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestInitLogger(t *testing.T) {
	cfg := config.DefaultLogConfig()
	cfg.OutputPaths = []string{"stderr"}

	for _, format := range []string{"json", "console"} {
		cfg.Format = format
		logger, err := initLogger(cfg)
		require.NoError(t, err, format)
		assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
		assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
	}

	cfg.Level = "verbose"
	_, err := initLogger(cfg)
	assert.Error(t, err)
}

func TestReadPayload(t *testing.T) {
	payload, err := readPayload("", nil)
	require.NoError(t, err)
	assert.Nil(t, payload)

	payload, err = readPayload("-", strings.NewReader(`{"expected":"deny"}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"expected": "deny"}, payload)

	path := filepath.Join(t.TempDir(), "p.json")
	require.NoError(t, os.WriteFile(path, []byte(`[1,2]`), 0o600))
	payload, err = readPayload(path, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{float64(1), float64(2)}, payload)

	_, err = readPayload("-", strings.NewReader(`{broken`))
	assert.Error(t, err)

	_, err = readPayload(filepath.Join(t.TempDir(), "missing.json"), nil)
	assert.Error(t, err)
}

func TestRunAnalyze(t *testing.T) {
	cfgPath := writeConfig(t, "")
	var out bytes.Buffer

	err := runAnalyze(context.Background(),
		[]string{"--config", cfgPath, "--id", "cli-1", "--payload", "-", "--debug"},
		strings.NewReader(`{"expected":"approve"}`), &out)
	require.NoError(t, err)

	var report types.FinalReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Equal(t, "cli-1", report.RequestID)
	assert.Equal(t, types.StatusHealthy, report.Status)
	assert.Equal(t, int64(16*7), report.TokenUsage.Total)
	testutil.AssertTokenConservation(t, &report)

	hasDebug := false
	for _, l := range report.Logs {
		if l.Level == types.LogDebug {
			hasDebug = true
		}
	}
	assert.True(t, hasDebug, "debug run carries DEBUG logs")
}

func TestRunAnalyze_FailingLeavesDegrade(t *testing.T) {
	cfgPath := writeConfig(t, `  failing_leaves: ["1_0", "1_1"]
`)
	var out bytes.Buffer
	require.NoError(t, runAnalyze(context.Background(), []string{"--config", cfgPath}, nil, &out))

	var report types.FinalReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.NotEmpty(t, report.RequestID)
	assert.NotEqual(t, types.StatusHealthy, report.Status)
	assert.NotEmpty(t, report.EscalationTrail)
	testutil.AssertTrailChain(t, report.EscalationTrail)
}

func TestRunAnalyze_Errors(t *testing.T) {
	var out bytes.Buffer
	ctx := context.Background()

	assert.Error(t, runAnalyze(ctx, []string{"--unknown"}, nil, &out))
	assert.Error(t, runAnalyze(ctx, []string{"--config", filepath.Join(t.TempDir(), "missing.yaml")}, nil, &out))

	cfgPath := writeConfig(t, "")
	assert.Error(t, runAnalyze(ctx, []string{"--config", cfgPath, "--payload", "-"}, strings.NewReader("nope"), &out))
	assert.Zero(t, out.Len())
}

func TestRunMigrate(t *testing.T) {
	var out bytes.Buffer

	assert.Error(t, runMigrate(nil, &out))
	assert.ErrorContains(t, runMigrate([]string{"sideways"}, &out), "unknown migrate action")
	assert.Error(t, runMigrate([]string{"up", "--driver", "oracle"}, &out))
	assert.ErrorIs(t, runMigrate([]string{"up", "--driver", "sqlite"}, &out), errSQLiteAutoMigrate)

	require.NoError(t, runMigrate([]string{"list", "--driver", "postgres"}, &out))
	assert.Contains(t, out.String(), "create_reports")
	assert.Contains(t, out.String(), "index_reports")
}

func TestRunHealthCheck(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ready", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer ok.Close()
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	var out bytes.Buffer
	require.NoError(t, runHealthCheck([]string{"--addr", ok.URL}, &out))
	assert.Equal(t, "OK\n", out.String())

	assert.ErrorContains(t, runHealthCheck([]string{"--addr", down.URL}, &out), "status 503")
}

func TestPrintVersionAndUsage(t *testing.T) {
	var out bytes.Buffer
	printVersion(&out)
	assert.Contains(t, out.String(), "bstflow "+Version)

	out.Reset()
	printUsage(&out)
	for _, cmd := range []string{"run", "serve", "migrate", "health", "version"} {
		assert.Contains(t, out.String(), cmd)
	}
}
