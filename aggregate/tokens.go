package aggregate

import (
	"errors"
	"fmt"

	"github.com/BaSui01/bstflow/types"
)

// ErrTokenMismatch Token 汇总不守恒，属于编程错误
var ErrTokenMismatch = errors.New("token usage mismatch")

// MergeTokens 计算节点的 Token 用量：Total = Own + Σ 子节点 Total
func MergeTokens(nodeID string, own int64, children ...types.TokenUsage) types.TokenUsage {
	u := types.TokenUsage{Own: own, Total: own, ByNode: make(map[string]int64)}
	if own != 0 {
		u.ByNode[nodeID] = own
	}
	for _, c := range children {
		u.Total += c.Total
		for id, n := range c.ByNode {
			u.ByNode[id] += n
		}
	}
	return u
}

// LeafTokens 叶子节点的 Token 用量
func LeafTokens(nodeID string, tokens int64) types.TokenUsage {
	return MergeTokens(nodeID, tokens)
}

// Verify 校验 Token 守恒
func Verify(u types.TokenUsage, children ...types.TokenUsage) error {
	want := u.Own
	for _, c := range children {
		want += c.Total
	}
	if u.Total != want {
		return fmt.Errorf("%w: total %d, own+children %d", ErrTokenMismatch, u.Total, want)
	}
	var byNode int64
	for _, n := range u.ByNode {
		byNode += n
	}
	if byNode != u.Total {
		return fmt.Errorf("%w: total %d, by_node sum %d", ErrTokenMismatch, u.Total, byNode)
	}
	return nil
}
