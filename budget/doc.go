// Package budget 管理一次分析在整棵树上的 Token 预算。
//
// 预算自上而下按权重分配，消耗自下而上原子累加到叶子及其所有祖先。
// 每个内部节点根据已完成叶子推算最终消耗，超出阈值时告警并逐级降低
// 未启动后代的执行质量；已处于 minimal 仍超支的节点需要向上升级 budget_exhaustion。
package budget
