// =============================================================================
// 🗄️ MockReportStore - 报告存储模拟实现
// =============================================================================
// 用于测试的报告存储模拟，支持错误注入与调用计数
//
// 使用方法:
//
//	s := mocks.NewMockReportStore().WithSaveError(errors.New("disk full"))
//	err := s.Save(ctx, report)
//
// =============================================================================
package mocks

import (
	"context"
	"slices"
	"sync"

	"github.com/BaSui01/bstflow/store"
	"github.com/BaSui01/bstflow/types"
)

var _ store.ReportStore = (*MockReportStore)(nil)

// MockReportStore 报告存储模拟
type MockReportStore struct {
	mu      sync.RWMutex
	reports map[string]*types.FinalReport
	order   []string

	// 错误注入
	saveErr error
	getErr  error
	listErr error

	// 调用记录
	saveCalls int
	getCalls  int
	listCalls int
	closed    bool
}

// NewMockReportStore 创建空的模拟存储
func NewMockReportStore() *MockReportStore {
	return &MockReportStore{reports: make(map[string]*types.FinalReport)}
}

// WithSaveError 设置 Save 返回的错误
func (m *MockReportStore) WithSaveError(err error) *MockReportStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveErr = err
	return m
}

// WithGetError 设置 Get 返回的错误
func (m *MockReportStore) WithGetError(err error) *MockReportStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getErr = err
	return m
}

// WithListError 设置 List 返回的错误
func (m *MockReportStore) WithListError(err error) *MockReportStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listErr = err
	return m
}

func (m *MockReportStore) Save(_ context.Context, r *types.FinalReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCalls++
	if m.saveErr != nil {
		return m.saveErr
	}
	if _, ok := m.reports[r.RequestID]; !ok {
		m.order = append(m.order, r.RequestID)
	}
	m.reports[r.RequestID] = r
	return nil
}

func (m *MockReportStore) Get(_ context.Context, id string) (*types.FinalReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	if m.getErr != nil {
		return nil, m.getErr
	}
	r, ok := m.reports[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return r, nil
}

// List 按保存顺序倒序返回摘要
func (m *MockReportStore) List(_ context.Context, limit int) ([]store.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	ids := slices.Clone(m.order)
	slices.Reverse(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]store.Summary, len(ids))
	for i, id := range ids {
		out[i] = store.Summarize(m.reports[id])
	}
	return out, nil
}

func (m *MockReportStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reports[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.reports, id)
	m.order = slices.DeleteFunc(m.order, func(s string) bool { return s == id })
	return nil
}

func (m *MockReportStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// SaveCalls 返回 Save 调用次数
func (m *MockReportStore) SaveCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saveCalls
}

// GetCalls 返回 Get 调用次数
func (m *MockReportStore) GetCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getCalls
}

// Closed 是否已关闭
func (m *MockReportStore) Closed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
