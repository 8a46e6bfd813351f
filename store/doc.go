/*
包 store 持久化分析的最终报告。

# 后端

  - MemoryStore：进程内存储，带过期时间。
  - FileStore：每个报告一个 JSON 文件。
  - RedisStore：go-redis，报告体为 JSON 字符串，另维护按时间排序的索引。
  - SQLStore：gorm，支持 postgres、mysql 与 sqlite（glebarez 纯 Go 驱动）。

所有后端实现 ReportStore，可直接作为 engine.WithStore 的参数；
New 根据 config.StoreConfig 构建对应后端，
Instrument 为任意后端附加操作耗时指标。
*/
package store
