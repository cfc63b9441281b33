// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 llm 定义审议引擎与推理后端之间的最小契约。

# 概述

上层（agent、deliberation）只依赖这里的 Provider 接口和请求/响应模型，
不感知具体的网关或服务商。具体实现位于 providers 子包中。

# 核心类型

  - Provider：Completion / HealthCheck / Name
  - ChatRequest：模型、消息、采样参数与元数据
  - ChatResponse：choices 与 token 用量
  - Error：带错误码、HTTP 状态与可重试标记的统一错误

# 子包

  - providers：OpenAI 兼容协议的通用类型与错误映射
  - providers/openaicompat：面向 AI 网关的 OpenAI 兼容 Provider
  - retry：指数退避重试器
  - tokenizer：后端未返回用量时的 token 估算
  - pricing：模型价格表与成本计算
*/
package llm
