// Package api 定义 bstflow HTTP API 的请求与响应类型。
//
// # 端点
//
//   - POST   /v1/analyze        执行一次分析，返回 FinalReport
//   - GET    /v1/reports        报告摘要列表，支持 ?limit=
//   - GET    /v1/reports/{id}   读取单个报告
//   - DELETE /v1/reports/{id}   删除报告
//   - GET    /health            存活检查
//   - GET    /ready             就绪检查（含报告存储连通性）
//   - GET    /version           版本信息
//   - GET    /metrics           Prometheus 指标
//
// 除 /metrics 外，响应均包裹在 handlers.Response 中。
package api
