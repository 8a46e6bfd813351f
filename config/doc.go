// Package config 提供 bstflow 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量 的顺序叠加，
// 引擎参数直接复用 engine.Config，其余为服务运行所需的外围配置。
package config
