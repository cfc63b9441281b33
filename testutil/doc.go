// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 Parliament 测试的共享工具和辅助函数。

# 核心能力

  - 上下文辅助: TestContext / CancelledContext，自动注册 Cleanup
  - 异步断言: AssertEventuallyTrue / WaitFor，用于等待异步账本写入等
  - 数据工具: MustJSON

# 子包

  - testutil/mocks: MockProvider（LLM 后端，Builder 模式与错误注入）与
    ScriptedInvoker（按人格和阶段编排回复的调用器）
*/
package testutil
