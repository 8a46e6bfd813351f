package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/BaSui01/bstflow/api"
	"github.com/BaSui01/bstflow/engine"
	"github.com/BaSui01/bstflow/internal/ctxkeys"
	"github.com/BaSui01/bstflow/store"
	"github.com/BaSui01/bstflow/types"
)

// =============================================================================
// 🌳 分析与报告 Handler
// =============================================================================

// Analyzer 执行分析，由 *engine.Engine 实现
type Analyzer interface {
	Analyze(ctx context.Context, req engine.Request) (*types.FinalReport, error)
}

// 列表默认与最大条数
const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// ReportHandler 分析与报告查询处理器
type ReportHandler struct {
	analyzer Analyzer
	store    store.ReportStore
	logger   *zap.Logger
}

// NewReportHandler 创建处理器，reports 为 nil 时报告查询端点返回 503
func NewReportHandler(analyzer Analyzer, reports store.ReportStore, logger *zap.Logger) *ReportHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportHandler{
		analyzer: analyzer,
		store:    reports,
		logger:   logger.With(zap.String("component", "report_handler")),
	}
}

// Register 在 mux 上注册全部端点
func (h *ReportHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/analyze", h.HandleAnalyze)
	mux.HandleFunc("GET /v1/reports", h.HandleList)
	mux.HandleFunc("GET /v1/reports/{id}", h.HandleGet)
	mux.HandleFunc("DELETE /v1/reports/{id}", h.HandleDelete)
}

// HandleAnalyze 处理 POST /v1/analyze
// 叶子失败与升级都体现在报告中，只要分析完成就返回 200
func (h *ReportHandler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req api.AnalyzeRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.RequestID == "" {
		req.RequestID, _ = ctxkeys.RequestID(r.Context())
	}

	report, err := h.analyzer.Analyze(r.Context(), engine.Request{
		ID:      req.RequestID,
		Payload: req.Payload,
		Debug:   req.Debug,
	})
	if err != nil {
		WriteError(w, r, asAPIError(err), h.logger)
		return
	}
	WriteSuccess(w, r, report)
}

// HandleGet 处理 GET /v1/reports/{id}
func (h *ReportHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	if !h.storeEnabled(w, r) {
		return
	}
	id := r.PathValue("id")
	report, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, r, id, err)
		return
	}
	WriteSuccess(w, r, report)
}

// HandleList 处理 GET /v1/reports?limit=N
func (h *ReportHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	if !h.storeEnabled(w, r) {
		return
	}
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			WriteErrorMessage(w, r, types.ErrInvalidRequest, "limit must be a positive integer", h.logger)
			return
		}
		limit = min(n, maxListLimit)
	}

	summaries, err := h.store.List(r.Context(), limit)
	if err != nil {
		WriteError(w, r, types.NewError(types.ErrInternalError, "failed to list reports").WithCause(err), h.logger)
		return
	}
	if summaries == nil {
		summaries = []store.Summary{}
	}
	WriteSuccess(w, r, api.ReportList{Reports: summaries, Count: len(summaries)})
}

// HandleDelete 处理 DELETE /v1/reports/{id}
func (h *ReportHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if !h.storeEnabled(w, r) {
		return
	}
	id := r.PathValue("id")
	if err := h.store.Delete(r.Context(), id); err != nil {
		h.writeStoreError(w, r, id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ReportHandler) storeEnabled(w http.ResponseWriter, r *http.Request) bool {
	if h.store == nil {
		WriteErrorMessage(w, r, types.ErrServiceUnavailable, "report store is disabled", h.logger)
		return false
	}
	return true
}

func (h *ReportHandler) writeStoreError(w http.ResponseWriter, r *http.Request, id string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		WriteErrorMessage(w, r, types.ErrNotFound, "report "+id+" not found", h.logger)
		return
	}
	WriteError(w, r, types.NewError(types.ErrInternalError, "report store failure").WithCause(err), h.logger)
}
