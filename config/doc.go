// Package config 提供 Parliament 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → PARLIAMENT_ 前缀环境变量 的顺序合并，
// FileWatcher 在宪章或配置文件变化时通知调用方重建人格。
package config
