// Package telemetry 封装 OpenTelemetry SDK 初始化逻辑，
// 为 Parliament 提供集中式的 TracerProvider 和 MeterProvider 配置。
// 审议引擎通过全局 TracerProvider 记录 deliberation.run 与各阶段 span；
// 当遥测功能禁用时，使用 noop 实现，不连接任何外部服务。
package telemetry
