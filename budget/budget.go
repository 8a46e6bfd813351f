package budget

import (
	"maps"
	"sync/atomic"

	"github.com/BaSui01/bstflow/types"
)

// Budget 单个节点的预算
// consumed 只增不减；total 只在 Grant 时增加
type Budget struct {
	nodeID      string
	parent      *Budget
	children    []*Budget
	allocated   map[string]int64
	leavesTotal int64

	total      atomic.Int64
	consumed   atomic.Int64
	leavesDone atomic.Int64
	quality    atomic.Int32

	warned    atomic.Bool
	exhausted atomic.Bool
}

// NodeID 节点 ID
func (b *Budget) NodeID() string { return b.nodeID }

// Total 当前预算上限
func (b *Budget) Total() int64 { return b.total.Load() }

// Consumed 已消耗（自身 + 全部后代）
func (b *Budget) Consumed() int64 { return b.consumed.Load() }

// Remaining 剩余额度，可能为负
func (b *Budget) Remaining() int64 { return b.Total() - b.Consumed() }

// Allocated 初始分配给各子节点的额度，授予不改变此值
func (b *Budget) Allocated() map[string]int64 { return maps.Clone(b.allocated) }

// Quality 节点自身的质量指令
func (b *Budget) Quality() types.Quality { return types.Quality(b.quality.Load()) }

// LeavesDone 已完成的后代叶子数
func (b *Budget) LeavesDone() int64 { return b.leavesDone.Load() }

// LeavesTotal 后代叶子总数
func (b *Budget) LeavesTotal() int64 { return b.leavesTotal }

// Finished 所有后代叶子都已完成
func (b *Budget) Finished() bool { return b.LeavesDone() >= b.leavesTotal }

// Projection 按已完成叶子的平均消耗推算最终消耗
// 尚无叶子完成时返回当前消耗
func (b *Budget) Projection() float64 {
	done := b.LeavesDone()
	consumed := float64(b.Consumed())
	if done <= 0 {
		return consumed
	}
	return consumed / float64(done) * float64(b.leavesTotal)
}

// Headroom 可从本节点让出的额度
// 未完成子节点仍需的额度视为已占用，已完成子节点的结余可用于授予
func (b *Budget) Headroom() int64 {
	h := b.Total() - b.Consumed()
	for _, c := range b.children {
		if c.Finished() {
			continue
		}
		if rem := c.Remaining(); rem > 0 {
			h -= rem
		}
	}
	return max(h, 0)
}

// raiseQuality 将质量指令提升一档，返回新档位；已是目标档位以上时不变
func (b *Budget) raiseQuality(limit types.Quality) (types.Quality, bool) {
	for {
		cur := b.quality.Load()
		if types.Quality(cur) >= limit {
			return types.Quality(cur), false
		}
		if b.quality.CompareAndSwap(cur, cur+1) {
			return types.Quality(cur + 1), true
		}
	}
}

func (b *Budget) setQuality(q types.Quality) {
	for {
		cur := b.quality.Load()
		if types.Quality(cur) >= q {
			return
		}
		if b.quality.CompareAndSwap(cur, int32(q)) {
			return
		}
	}
}
