// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 FusionFlow HTTP API 的请求处理器实现。

# 概述

handlers 包实现了图像生成、引擎查询、健康检查以及统一的响应/错误处理。
所有 Handler 均遵循标准 net/http 接口，通过 Swagger 注解生成 API 文档。

# 核心类型

  - ImageHandler    : 图像生成处理器：单次、SSE 流式进度、批量与引擎列表
  - ImageGenerator  : ImageHandler 依赖的生成接口，由 image.Generator 实现
  - HealthHandler   : 服务健康检查（/health, /healthz, /ready）
  - Response        : 统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo       : 结构化错误信息，含 code、provider、upstream_status、retryable
  - ResponseWriter  : 包装 http.ResponseWriter 以捕获状态码与响应大小

# 主要能力

  - 统一响应格式：WriteSuccess / WriteError / WriteJSON 辅助函数
  - 请求验证：DecodeJSONBody（严格模式 + MaxBytesReader 上限）、ValidateContentType
  - ErrorCode → HTTP 状态码映射：VALIDATION 400、CONFIG 503、服务商与任务失败 502、
    TIMED_OUT 504、CANCELLED 408（服务端超时到期时为 504）
  - SSE 流式输出：HandleGenerateStream 按轮询次数推送 progress 事件
*/
package handlers
