// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 管理 compute_ledger 账本表的 Schema 版本，支持 PostgreSQL、
MySQL 与 SQLite 三种方言，基于 golang-migrate 实现。

# 概述

各方言的 SQL 迁移文件通过 embed.FS 内嵌在二进制中，运行时无需外部
文件。版本记录写入 parliament_schema_migrations 表。

# 核心类型

  - Migrator：Up/Down/Force/Version/Status/Info/Close 操作集。
  - DefaultMigrator：golang-migrate 实例与 *sql.DB 的封装，ctx 取消时
    请求在当前文件执行完后停止。
  - CLI：parliament migrate 子命令的格式化输出层。

# 工厂函数

NewMigratorFromConfig / NewMigratorFromDatabaseConfig 从应用配置构建，
NewMigratorFromURL 直接使用连接串。SQLite 方言经 mattn/go-sqlite3
执行迁移，需要 cgo。
*/
package migration
