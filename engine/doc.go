// Copyright (c) BstFlow Authors.
// Licensed under the MIT License.

/*
Package engine 把拓扑、叶子执行、聚合、升级与预算组合成一次完整的分析。

# 执行模型

Analyze 从根节点开始递归向下分发：每个内部节点为每个子节点启动一个 goroutine，
在聚合超时内等待全部子节点；超时后取消仍在运行的子节点并收集它们的取消报告，
保证 Token 记账精确。叶子通过 leaf.Executor 调用处理器，结果为 Success、Escalate
或 Failure 三者之一。

# 升级与预算

低置信度结果与处理器主动请求经 escalation.Coordinator 逐级上送；预算管理器
根据推算消耗降低未启动叶子的执行质量，必要时节点在自身的汇聚循环中升级
budget_exhaustion。根节点是最终权威，Analyze 总会返回 FinalReport。
*/
package engine
