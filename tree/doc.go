/*
包 tree 构建并持有固定扇出、固定深度的完全树拓扑。

每个节点以 "<level>_<index>" 命名，level 1 为叶子，level N 为根，
index 为该层从左到右的序号。父节点独占子节点，子节点仅持有指向
父节点的非拥有引用，用于升级与查找，不用于修改。

	t, err := tree.Build(5, 2)
	// t.Root().ID == "5_0"，len(t.Leaves()) == 16，t.Size() == 31

构建过程没有任何外部 I/O，相同参数的多次调用得到完全一致的结果。
*/
package tree
