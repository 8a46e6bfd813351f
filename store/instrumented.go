package store

import (
	"context"
	"errors"
	"time"

	"github.com/BaSui01/bstflow/types"
)

// OpRecorder 存储操作指标接收方，由 metrics.Collector 实现
type OpRecorder interface {
	RecordStoreOp(backend, operation string, err error, d time.Duration)
}

// Instrumented 为任意 ReportStore 记录操作耗时与结果
type Instrumented struct {
	inner   ReportStore
	backend string
	rec     OpRecorder
}

// Instrument 包装存储，rec 为 nil 时原样返回
func Instrument(inner ReportStore, backend string, rec OpRecorder) ReportStore {
	if inner == nil || rec == nil {
		return inner
	}
	return &Instrumented{inner: inner, backend: backend, rec: rec}
}

// ErrNotFound 不计为失败
func (s *Instrumented) observe(op string, start time.Time, err error) {
	if errors.Is(err, ErrNotFound) {
		err = nil
	}
	s.rec.RecordStoreOp(s.backend, op, err, time.Since(start))
}

func (s *Instrumented) Save(ctx context.Context, r *types.FinalReport) error {
	start := time.Now()
	err := s.inner.Save(ctx, r)
	s.observe("save", start, err)
	return err
}

func (s *Instrumented) Get(ctx context.Context, id string) (*types.FinalReport, error) {
	start := time.Now()
	r, err := s.inner.Get(ctx, id)
	s.observe("get", start, err)
	return r, err
}

func (s *Instrumented) List(ctx context.Context, limit int) ([]Summary, error) {
	start := time.Now()
	out, err := s.inner.List(ctx, limit)
	s.observe("list", start, err)
	return out, err
}

func (s *Instrumented) Delete(ctx context.Context, id string) error {
	start := time.Now()
	err := s.inner.Delete(ctx, id)
	s.observe("delete", start, err)
	return err
}

func (s *Instrumented) Close() error { return s.inner.Close() }

// Ping 透传到内部存储，不支持健康检查的存储视为健康
func (s *Instrumented) Ping(ctx context.Context) error {
	if p, ok := s.inner.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
