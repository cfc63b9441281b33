// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供基于 Redis 的缓存管理能力，支持连接池、健康检查
与哈希计数器。

# 核心类型

  - Manager：缓存管理器，持有 Redis 客户端与连接池配置，
    提供 Get/Set/Delete 字符串操作（宪章文档缓存）以及
    IncrementHash/GetHash 哈希计数操作（会话费用累计）。
  - Config：缓存配置，Addr 为空表示不启用 Redis。

# 主要能力

  - 事务流水线累加：IncrementHash 在 MULTI/EXEC 中执行 HINCRBY、
    HINCRBYFLOAT 与 EXPIRE，保证同一会话的计数一致。
  - 健康检查：后台定时 Ping 检测，异常时通过 zap 日志告警，
    Close 时退出。
  - 错误语义：提供 ErrCacheMiss 哨兵错误与 IsCacheMiss 判断函数。
*/
package cache
