/*
包 database 为 SQL 报告存储提供连接池管理。

Pool 包装 gorm 实例与底层 sql.DB：

  - 按 PoolConfig 设置最大连接数、空闲连接与连接生命周期，零值保留驱动默认。
  - HealthCheckInterval 大于 0 时后台定时 Ping，失败通过 zap 记录。
  - WithRetry 在事务中执行写入，遇到死锁、序列化冲突或断连时按指数退避重试。
  - Close 停止探活并关闭连接，可重复调用。
*/
package database
