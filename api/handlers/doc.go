// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package handlers 提供 Parliament HTTP API 的请求处理器实现。

# 核心类型

  - DeliberationHandler  POST /v1/deliberations，同步 JSON 或 NDJSON 流式进度
  - CostHandler          GET /v1/sessions/{id}/costs，会话成本摘要
  - HealthHandler        /health、/healthz、/ready、/version
  - Response / ErrorInfo 统一 JSON 信封（success + data + error + timestamp）
  - ResponseWriter       捕获状态码与响应字节数，供中间件记录指标

# 错误处理

审议失败时客户端只会看到 UnavailableMessage，错误码只区分超时
（UPSTREAM_TIMEOUT，504）、服务不可用（SERVICE_UNAVAILABLE，503）
与其它内部错误（500），失败阶段与人格名只写日志。
流式模式不转发 persona_dropped 事件。
流式模式下响应头已发出，失败以 type=error 的最后一行表达。

DecodeJSONBody 限制请求体 1 MB 并拒绝未知字段。
*/
package handlers
