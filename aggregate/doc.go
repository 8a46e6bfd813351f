// Package aggregate 实现内部节点的三条合并规则：日志过滤、状态折叠与 Token 汇总。
//
// 三条规则都满足交换律与结合律，合并结果按子节点位置排序，与子节点完成顺序无关。
package aggregate
