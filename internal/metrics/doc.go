// 版权所有 2026 BstFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的引擎指标采集能力，覆盖
HTTP、叶子执行、节点聚合、升级、预算与报告存储六个维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，所有指标按 namespace 隔离。Collector 实现
engine.Recorder，可直接通过 engine.WithRecorder 注入。

# 主要能力

  - HTTP 指标：请求总数与耗时，状态码归类为 2xx/3xx/4xx/5xx。
  - 叶子指标：每次尝试的结果计数与 Token 消耗。
  - 节点指标：按层级与状态统计执行次数、耗时与自身 Token。
  - 升级指标：按层级、原因与结果（decided/timeout/default）统计往返耗时。
  - 预算指标：质量指令与告警计数。
  - 存储指标：按后端与操作统计耗时。
*/
package metrics
