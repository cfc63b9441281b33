// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
parliament 是多人格审议服务的可执行入口。

# 子命令

  - serve：启动 HTTP API（/v1/deliberations、/v1/sessions/{id}/costs）
    与独立的 /metrics 端口，监听宪章文件变更并热替换审议引擎
  - ask：在命令行运行一次审议，进度写到 stderr，答案写到 stdout
  - migrate：成本账本的数据库迁移（up、down、status、version、info、force）
  - version、health：版本信息与健康探测

# 中间件

请求依次经过 Recovery、RequestID、OTelTracing、MetricsMiddleware、
RequestLogger、SecurityHeaders、RateLimiter 与 APIKeyAuth。
健康检查路径不做限流与鉴权。
*/
package main
