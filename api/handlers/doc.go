// Copyright (c) BstFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 bstflow HTTP API 的请求处理器实现。

# 概述

handlers 包实现分析、报告查询与健康检查端点，
以及统一的响应包装与错误码到 HTTP 状态码的映射。

# 核心类型

  - Response / ErrorInfo: 统一响应结构
  - ReportHandler: /v1/analyze 与 /v1/reports 系列端点
  - HealthHandler: /health、/ready、/version，就绪探针通过 WithProbe 注册并发执行

# 错误映射

types.ErrorCode 通过 HTTPStatus 转换为状态码，
例如 INVALID_REQUEST → 400，NOT_FOUND → 404，SERVICE_UNAVAILABLE → 503。
*/
package handlers
