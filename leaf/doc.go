// Package leaf 包装叶子节点对外部协作者的单次调用。
//
// Executor 负责超时、仅针对瞬时失败的有界重试（指数退避）以及 Token 记账：
// 每次 Execute 无论成功、失败还是请求升级，都恰好上报一个 TokensUsed。
// 超时得到 Failure{Kind: Timeout}，父节点取消得到 Failure{Kind: Cancelled}；
// 被放弃的处理器即使稍后返回，其 Token 也无法再改变已上报的数值。
package leaf
