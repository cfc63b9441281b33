// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集，覆盖 HTTP、后端调用、
审议结果、账本写入、缓存与数据库连接。

# 核心类型

  - Collector：持有全部向量指标。NewCollector 注册到默认 registry，
    NewCollectorWithRegistry 注册到指定 registry。

# 接入点

  - agent.CallObserver：ObserveBackendCall，按 persona/model/status 分组。
  - deliberation.Observer：ObserveDeliberation 与 ObservePersonaDropped。
  - ledger.MetricsSink：RecordLedgerEntry；Recorder 通过 RecordLedgerWrite
    记录 ok/error/dropped/skipped。
  - HTTP 中间件：RecordHTTPRequest，状态码归类为 2xx/3xx/4xx/5xx。
*/
package metrics
