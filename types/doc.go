// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 FusionFlow 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包。image、api、config 与 cmd
共用这里的结构化错误，以避免循环依赖。

# 核心类型

  - ErrorCode: 错误分类（CONFIG_ERROR、VALIDATION_ERROR、JOB_FAILED 等）
  - Error    : 结构化错误，含 HTTPStatus、Retryable、Provider 标记与 Cause

# 主要能力

  - 链式构造：NewError / Errorf + WithCause / WithHTTPStatus / WithRetryable / WithProvider
  - 错误工具链：AsError / GetErrorCode / IsErrorCode / IsRetryable
  - 取消处理：NewCancelledError / FromContext 将 context 错误映射为 CANCELLED
*/
package types
