package tree

import (
	"fmt"

	"github.com/BaSui01/bstflow/types"
)

// Node 树节点
type Node struct {
	ID       string
	Level    int
	Index    int
	Parent   *Node
	Children []*Node

	// Handler 仅叶子节点持有
	Handler types.Handler
	// Optional 叶子在预算压力下可被跳过
	Optional bool

	leafCount int
}

// IsLeaf 判断是否为叶子
func (n *Node) IsLeaf() bool { return len(n.Children) == 0 }

// IsRoot 判断是否为根
func (n *Node) IsRoot() bool { return n.Parent == nil }

// LeafCount 返回以该节点为根的子树中的叶子数
func (n *Node) LeafCount() int { return n.leafCount }

// ParentID 返回父节点 ID，根节点返回空串
func (n *Node) ParentID() string {
	if n.Parent == nil {
		return ""
	}
	return n.Parent.ID
}

// Ancestors 返回从父节点到根的祖先序列
func (n *Node) Ancestors() []*Node {
	var out []*Node
	for p := n.Parent; p != nil; p = p.Parent {
		out = append(out, p)
	}
	return out
}

// Tree 固定扇出、固定深度的完全树
type Tree struct {
	levels int
	fanout int
	root   *Node
	nodes  map[string]*Node
	byLvl  map[int][]*Node
}

// NodeID 返回确定性的节点名称
func NodeID(level, index int) string {
	return fmt.Sprintf("%d_%d", level, index)
}

// Build 构建完全树，fanout < 2 或 levels < 2 返回 ConfigError
func Build(levels, fanout int) (*Tree, error) {
	if levels < 2 {
		return nil, &types.ConfigError{Field: "levels", Reason: fmt.Sprintf("must be >= 2, got %d", levels)}
	}
	if fanout < 2 {
		return nil, &types.ConfigError{Field: "fanout", Reason: fmt.Sprintf("must be >= 2, got %d", fanout)}
	}

	t := &Tree{
		levels: levels,
		fanout: fanout,
		nodes:  make(map[string]*Node),
		byLvl:  make(map[int][]*Node, levels),
	}
	t.root = t.grow(levels, 0, nil)
	return t, nil
}

// grow 先序递归创建节点，level 1 的节点为叶子
func (t *Tree) grow(level, index int, parent *Node) *Node {
	n := &Node{
		ID:     NodeID(level, index),
		Level:  level,
		Index:  index,
		Parent: parent,
	}
	t.nodes[n.ID] = n

	if level == 1 {
		n.leafCount = 1
	} else {
		n.Children = make([]*Node, 0, t.fanout)
		for i := 0; i < t.fanout; i++ {
			child := t.grow(level-1, index*t.fanout+i, n)
			n.Children = append(n.Children, child)
			n.leafCount += child.leafCount
		}
	}

	// 子节点下标按 index 递增生成，因此每层天然保持从左到右的顺序
	t.byLvl[level] = append(t.byLvl[level], n)
	return n
}

// Root 返回根节点
func (t *Tree) Root() *Node { return t.root }

// Levels 返回层数
func (t *Tree) Levels() int { return t.levels }

// Fanout 返回扇出
func (t *Tree) Fanout() int { return t.fanout }

// Size 返回节点总数
func (t *Tree) Size() int { return len(t.nodes) }

// Node 按 ID 查找节点
func (t *Tree) Node(id string) (*Node, bool) {
	n, ok := t.nodes[id]
	return n, ok
}

// NodesAtLevel 返回某层全部节点（从左到右），越界返回 nil
func (t *Tree) NodesAtLevel(level int) []*Node {
	nodes := t.byLvl[level]
	out := make([]*Node, len(nodes))
	copy(out, nodes)
	return out
}

// Leaves 返回全部叶子（从左到右）
func (t *Tree) Leaves() []*Node {
	return t.NodesAtLevel(1)
}

// SetHandler 为指定叶子设置处理器
func (t *Tree) SetHandler(id string, h types.Handler) error {
	n, ok := t.nodes[id]
	if !ok {
		return types.NewError(types.ErrNotFound, "unknown node").WithNode(id)
	}
	if !n.IsLeaf() {
		return &types.ConfigError{Field: "handler", Reason: "node " + id + " is not a leaf"}
	}
	n.Handler = h
	return nil
}

// SetHandlerAll 为全部叶子设置同一个处理器
func (t *Tree) SetHandlerAll(h types.Handler) {
	for _, leaf := range t.byLvl[1] {
		leaf.Handler = h
	}
}

// MarkOptional 将叶子标记为可选
func (t *Tree) MarkOptional(ids ...string) error {
	for _, id := range ids {
		n, ok := t.nodes[id]
		if !ok || !n.IsLeaf() {
			return &types.ConfigError{Field: "optional_leaves", Reason: "not a leaf: " + id}
		}
		n.Optional = true
	}
	return nil
}

// Walk 先序遍历，fn 返回 false 时停止进入该子树
func (t *Tree) Walk(fn func(n *Node) bool) {
	var visit func(n *Node)
	visit = func(n *Node) {
		if !fn(n) {
			return
		}
		for _, c := range n.Children {
			visit(c)
		}
	}
	visit(t.root)
}
