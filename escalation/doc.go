// Package escalation 实现节点间的升级协调。
//
// 每个节点持有一个 Coordinator。子节点通过 Escalate 同步调用父节点的 Decide，
// 调用受发送方层级的升级超时约束，超时后发送方执行请求自带的默认动作并继续。
// 父节点逐个处理升级请求，按 Policy 在本地裁决或携带原始上下文继续向上转发，
// 转发沿用调用方的截止时间。根节点是最终权威，不再向上升级。
//
// 跨越节点边界的请求与响应都经过 JSON 编解码，双方不共享可变状态。
package escalation
