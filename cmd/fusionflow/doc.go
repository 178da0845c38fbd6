// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 FusionFlow 服务端程序入口。

# 概述

cmd/fusionflow 是图像融合服务的可执行入口，基于 cobra 提供 HTTP API 服务、
命令行单次生成、引擎查询、健康检查和版本查询等子命令。配置按
默认值 → YAML 文件 → FUSIONFLOW_* 环境变量 的顺序加载。

# 核心类型

  - Server     : 主服务器，装配 image.Generator，管理 HTTP、Metrics 双端口及优雅关闭
  - Middleware : HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 子命令：serve、generate、engines、version、health
  - 中间件链：Recovery、RequestID、OTelTracing、SecurityHeaders、
    MetricsMiddleware、RequestLogger、RateLimiter（基于 IP）
  - Metrics 服务器：独立端口暴露 /metrics（Prometheus，独立注册表）
  - 优雅关闭：信号 / 服务异常 / ctx 结束 → 关闭全部服务器 → 刷新遥测
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
