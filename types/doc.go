// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供跨层共享的结构化错误。

types 不依赖任何内部包。deliberation、ledger 与 api/handlers 都用
ErrorCode 标记失败类别，HTTP 层据此映射状态码与 retryable 标记。

# 错误码

  - 请求与传输：INVALID_REQUEST、UNAUTHORIZED、NOT_FOUND、RATE_LIMITED、
    UPSTREAM_TIMEOUT、INTERNAL_ERROR、SERVICE_UNAVAILABLE
  - 审议：BACKEND_ERROR、LEDGER_WRITE_FAILED、CONSTITUTION_UNAVAILABLE

NewError 配合 WithCause / WithHTTPStatus / WithRetryable 链式构造，
GetErrorCode 与 IsRetryable 会穿透 fmt.Errorf 的 %w 包装。
*/
package types
