// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 提供基于 GORM 的数据库连接与连接池管理，支持健康检查
与事务重试，是费用账本持久化的底座。

# 核心类型

  - PoolManager：封装 *gorm.DB 与 *sql.DB，统一管理连接生命周期、
    空闲回收、后台健康检查与事务执行。
  - PoolConfig：连接池参数，Validate 拒绝非正数与 idle > open。

# 驱动

Open / Dialector 按驱动名选择 GORM 方言：postgres、mysql、
sqlite（glebarez 纯 Go 实现，无需 cgo）与 sqlite3（gorm 官方 cgo 驱动）。

# 事务重试

WithTransactionRetry 对死锁、序列化失败、SQLite busy 与断连等
可重试错误做指数退避重试，其余错误立即返回。
*/
package database
