package escalation

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/BaSui01/bstflow/types"
)

// Board 父节点收集子节点投票的公告板
type Board struct {
	order   []string
	mu      sync.Mutex
	votes   map[string]types.Vote
	changed chan struct{}
}

// NewBoard 创建公告板，childIDs 决定投票输出顺序
func NewBoard(childIDs []string) *Board {
	return &Board{
		order:   slices.Clone(childIDs),
		votes:   make(map[string]types.Vote, len(childIDs)),
		changed: make(chan struct{}),
	}
}

// Post 张贴投票，同一子节点重复张贴时以最后一次为准
func (b *Board) Post(v types.Vote) {
	v = NormalizeVote(v)
	b.mu.Lock()
	b.votes[v.NodeID] = v
	close(b.changed)
	b.changed = make(chan struct{})
	b.mu.Unlock()
}

// Votes 按子节点顺序返回当前全部投票
func (b *Board) Votes() []types.Vote {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

func (b *Board) snapshotLocked() []types.Vote {
	out := make([]types.Vote, 0, len(b.votes))
	for _, id := range b.order {
		if v, ok := b.votes[id]; ok {
			out = append(out, v)
		}
	}
	return out
}

// Wait 等待全部子节点投票，最多等待 maxWait
func (b *Board) Wait(ctx context.Context, maxWait time.Duration) []types.Vote {
	timer := time.NewTimer(max(maxWait, 0))
	defer timer.Stop()
	for {
		b.mu.Lock()
		if len(b.votes) >= len(b.order) {
			out := b.snapshotLocked()
			b.mu.Unlock()
			return out
		}
		changed := b.changed
		b.mu.Unlock()

		select {
		case <-changed:
		case <-timer.C:
			return b.Votes()
		case <-ctx.Done():
			return b.Votes()
		}
	}
}
