// 版权所有 2026 BstFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 管理报告表的 Schema 版本，基于 golang-migrate 实现，
支持 PostgreSQL、MySQL 与 SQLite 三种方言。

# 概述

各方言的 SQL 迁移文件通过 embed.FS 内嵌，经 iofs 源驱动交给
golang-migrate 执行。Migrator 可以自行按 DSN 打开连接，也可以
包装调用方已经创建的 database.Driver。

# 核心类型

  - Migrator：Up/Down/Version/Status/Close。
  - DatabaseType：数据库方言（postgres/mysql/sqlite）。
  - MigrationStatus：单个迁移版本的应用状态。
  - PrintStatus：以表格形式输出迁移状态，供命令行使用。
*/
package migration
