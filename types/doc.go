// Copyright (c) BstFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 bstflow 引擎的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 tree、leaf、aggregate、
escalation、budget、engine 等上层模块提供统一的值类型契约。所有跨越
父子节点边界的数据（报告、升级请求、决策响应、叶子结果）都定义于此，
并且都以值的形式传递，不共享可变状态。

# 核心类型

  - Status           : 有序健康状态（healthy < degraded < unhealthy < error，外加 unknown）
  - LogEntry         : 节点日志条目（级别、来源节点、操作、异常/完成标记）
  - NodeReport       : 单个节点单次操作的聚合报告
  - TokenUsage       : 自身 + 子树累计 Token 用量
  - EscalationRequest: 向父节点发起的升级请求
  - DecisionResponse : 父节点给出的决策
  - Outcome          : 叶子执行结果的三态标签联合（Success / Escalate / Failure）
  - Handler / Input  : 叶子能力回调接口，领域逻辑唯一的接入点
  - Error / ErrorCode: 结构化错误体系

# 主要能力

  - 状态比较：Status.Severity / MaxStatus / Status.AtLeast
  - 错误工具链：NewError / AsError / IsErrorCode / ConfigError
  - Token 计量：Meter 支持叶子在执行过程中渐进上报 Token，取消后自动封存
*/
package types
