// Package telemetry 初始化 bstflow 的 OpenTelemetry 追踪与指标导出。
// 引擎为每个树节点创建 span，HTTP 入口的 traceparent 会延续到整棵分析树；
// 未启用时 Tracer 为 noop，不连接任何外部服务。
package telemetry
