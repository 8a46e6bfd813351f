package escalation

import (
	"cmp"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BaSui01/bstflow/types"
)

type trailRecord struct {
	seq   int64
	entry types.TrailEntry
}

// Trail 一次分析的升级审计轨迹，与日志聚合相互独立
// 每条记录由收到答复（或执行默认动作）的节点写入
type Trail struct {
	seq     atomic.Int64
	mu      sync.Mutex
	records []trailRecord
}

// NewTrail 创建审计轨迹
func NewTrail() *Trail {
	return &Trail{}
}

// nextSeq 请求创建序号，决定轨迹的输出顺序
func (t *Trail) nextSeq() int64 {
	return t.seq.Add(1)
}

func (t *Trail) record(seq int64, e types.TrailEntry) {
	if e.TimestampMs == 0 {
		e.TimestampMs = time.Now().UnixMilli()
	}
	t.mu.Lock()
	t.records = append(t.records, trailRecord{seq: seq, entry: e})
	t.mu.Unlock()
}

// Entries 按请求创建顺序返回全部记录
func (t *Trail) Entries() []types.TrailEntry {
	t.mu.Lock()
	records := slices.Clone(t.records)
	t.mu.Unlock()

	slices.SortStableFunc(records, func(a, b trailRecord) int {
		return cmp.Compare(a.seq, b.seq)
	})
	out := make([]types.TrailEntry, len(records))
	for i, r := range records {
		out[i] = r.entry
	}
	return out
}

// Len 记录条数
func (t *Trail) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}
