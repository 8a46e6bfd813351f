// Copyright 2026 BstFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 BstFlow 测试的共享工具和辅助函数。

# 概述

testutil 包为各包的单元测试提供统一的辅助能力，
避免重复实现相似的测试基础设施。

# 核心能力

  - 上下文辅助: TestContext，自动注册 Cleanup 防止泄漏
  - 报告断言: AssertTokenConservation 校验 Token 按节点守恒，
    AssertTrailChain 校验升级轨迹逐级相连，
    AssertSevereLogsKept 校验日志归约不丢 ERROR/WARNING
  - 结果提取: LeafResults 按叶子 ID 取最终结果

# 子包

  - testutil/mocks: MockReportStore，支持错误注入与调用计数
  - testutil/fixtures: 报告样例与叶子处理器样例

# 使用示例

	ctx := testutil.TestContext(t)
	report := fixtures.Report("r-1", types.StatusHealthy, time.Now())
	testutil.AssertTokenConservation(t, report)
*/
package testutil
