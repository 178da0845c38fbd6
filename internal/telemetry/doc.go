// Package telemetry 负责 FusionFlow 的 OpenTelemetry 接入：Init 安装
// OTLP gRPC 的 TracerProvider 与 MeterProvider，Recorder 把图像生成与
// 轮询事件记录为 OTel 指标（与 internal/metrics 的 Prometheus 指标并行）。
// 遥测禁用时全局 provider 为 noop，不连接任何外部服务。
package telemetry
