package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/bstflow/api"
	"github.com/BaSui01/bstflow/engine"
	"github.com/BaSui01/bstflow/internal/ctxkeys"
	"github.com/BaSui01/bstflow/store"
	"github.com/BaSui01/bstflow/testutil"
	"github.com/BaSui01/bstflow/testutil/fixtures"
	"github.com/BaSui01/bstflow/testutil/mocks"
	"github.com/BaSui01/bstflow/types"
)

// =============================================================================
// 🧪 ReportHandler 测试
// =============================================================================

type analyzerFunc func(ctx context.Context, req engine.Request) (*types.FinalReport, error)

func (f analyzerFunc) Analyze(ctx context.Context, req engine.Request) (*types.FinalReport, error) {
	return f(ctx, req)
}

func newMux(h *ReportHandler) *http.ServeMux {
	mux := http.NewServeMux()
	h.Register(mux)
	return mux
}

type reportEnvelope struct {
	Success bool               `json:"success"`
	Data    *types.FinalReport `json:"data"`
	Error   *ErrorInfo         `json:"error"`
}

func postAnalyze(t *testing.T, mux http.Handler, body string, requestID string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, "/v1/analyze", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	if requestID != "" {
		r = r.WithContext(ctxkeys.WithRequestID(r.Context(), requestID))
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)
	return w
}

func TestReportHandler_AnalyzeWithEngine(t *testing.T) {
	reports := mocks.NewMockReportStore()
	eng, err := engine.New(engine.DefaultConfig(), fixtures.Constant("ok", 0.95, 3),
		engine.WithLogger(zaptest.NewLogger(t)), engine.WithStore(reports))
	require.NoError(t, err)
	mux := newMux(NewReportHandler(eng, reports, zaptest.NewLogger(t)))

	w := postAnalyze(t, mux, `{"request_id":"r-1","payload":{"doc":"x"}}`, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp reportEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.True(t, resp.Success)
	assert.Equal(t, "r-1", resp.Data.RequestID)
	assert.Equal(t, types.StatusHealthy, resp.Data.Status)
	assert.Equal(t, int64(48), resp.Data.TokenUsage.Total)
	testutil.AssertTokenConservation(t, resp.Data)
	assert.Equal(t, 1, reports.SaveCalls())

	// 保存后可通过 GET 读取
	g := httptest.NewRecorder()
	mux.ServeHTTP(g, httptest.NewRequest(http.MethodGet, "/v1/reports/r-1", nil))
	assert.Equal(t, http.StatusOK, g.Code)
}

func TestReportHandler_AnalyzeFallsBackToHeaderID(t *testing.T) {
	var got engine.Request
	h := NewReportHandler(analyzerFunc(func(_ context.Context, req engine.Request) (*types.FinalReport, error) {
		got = req
		return fixtures.Report(req.ID, types.StatusHealthy, fixtures.Epoch), nil
	}), nil, nil)

	w := postAnalyze(t, newMux(h), `{"debug":true}`, "req-hdr")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-hdr", got.ID)
	assert.True(t, got.Debug)
}

func TestReportHandler_AnalyzeErrors(t *testing.T) {
	h := NewReportHandler(analyzerFunc(func(context.Context, engine.Request) (*types.FinalReport, error) {
		return nil, types.NewError(types.ErrConfigInvalid, "nil context")
	}), nil, nil)
	mux := newMux(h)

	w := postAnalyze(t, mux, `{}`, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postAnalyze(t, mux, `{"unknown":1}`, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	r := httptest.NewRequest(http.MethodPost, "/v1/analyze", strings.NewReader(`{}`))
	r.Header.Set("Content-Type", "text/plain")
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, r)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/analyze", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestReportHandler_GetAndDelete(t *testing.T) {
	reports := mocks.NewMockReportStore()
	require.NoError(t, reports.Save(context.Background(), fixtures.Report("r-1", types.StatusDegraded, fixtures.Epoch)))
	mux := newMux(NewReportHandler(nil, reports, nil))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/reports/r-1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var resp reportEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, types.StatusDegraded, resp.Data.Status)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/v1/reports/r-1", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/reports/r-1", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/v1/reports/r-1", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReportHandler_StoreFailure(t *testing.T) {
	reports := mocks.NewMockReportStore().
		WithGetError(errors.New("conn reset")).
		WithListError(errors.New("conn reset"))
	mux := newMux(NewReportHandler(nil, reports, nil))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/reports/r-1", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "conn reset")

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/reports", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestReportHandler_List(t *testing.T) {
	reports := mocks.NewMockReportStore()
	for _, r := range fixtures.Series("r", 4) {
		require.NoError(t, reports.Save(context.Background(), r))
	}
	mux := newMux(NewReportHandler(nil, reports, nil))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/reports?limit=2", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data api.ReportList `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, 2, resp.Data.Count)
	assert.Equal(t, "r-3", resp.Data.Reports[0].RequestID)

	for _, bad := range []string{"0", "-1", "x"} {
		w = httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/reports?limit="+bad, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code, bad)
	}
}

func TestReportHandler_ListEmpty(t *testing.T) {
	mux := newMux(NewReportHandler(nil, mocks.NewMockReportStore(), nil))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/reports", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"reports":[]`)
}

func TestReportHandler_StoreDisabled(t *testing.T) {
	mux := newMux(NewReportHandler(nil, nil, nil))
	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/v1/reports", nil),
		httptest.NewRequest(http.MethodGet, "/v1/reports/r-1", nil),
		httptest.NewRequest(http.MethodDelete, "/v1/reports/r-1", nil),
	} {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, req.Method+" "+req.URL.Path)
	}
}

var _ store.ReportStore = (*mocks.MockReportStore)(nil)
