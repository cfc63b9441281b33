// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 ledger 记录每一次后端调用的成本，并按会话汇总。

# 写入路径

审议引擎每完成一次成功调用就交给 Recorder.Record 一条 Entry。
Record 不阻塞也不返回错误：条目被投递到内部 goroutine 池，
写入上下文脱离请求取消（context.WithoutCancel）并带独立超时。
没有会话 ID 的条目会被跳过；队列满时条目被丢弃并记录告警。

# Sink

  - GormSink：compute_ledger 表，按 interaction_id 幂等写入
  - RedisSink：按会话累加的运行总额哈希
  - MetricsSink：Prometheus 成本与 token 计数
  - MultiSink / SinkFunc：组合与适配

# 汇总

GormSink.Summarize 与 RedisSink.Summarize 返回 Summary，
FallbackSummarizer 按顺序尝试。Summary.String 渲染注入助手上下文的文本块。
*/
package ledger
