// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖 HTTP 接入层
与图像生成任务两大维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
注册到调用方提供的 Registerer（默认 prometheus.DefaultRegisterer），
测试中可传入独立的 Registry 以避免重复注册。所有指标按 namespace 隔离。

# 核心类型

  - Collector：指标收集器，实现 image.MetricsRecorder，
    可直接注入 image.Generator 与 image.Poller。

# 主要能力

  - HTTP 指标：请求总数、请求耗时、请求/响应体大小，
    按 method/path/status 分组，状态码归类为 2xx/3xx/4xx/5xx。
  - 生成指标：按 engine/outcome 统计生成次数，按 engine 统计端到端耗时。
  - 轮询指标：按 engine/status 统计异步任务的每次轮询结果，
    可观察 malformed 噪声与超时比例。
*/
package metrics
