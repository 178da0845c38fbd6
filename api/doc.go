// Package api 定义 FusionFlow HTTP API 的请求与响应类型。
//
// # API Overview
//
// FusionFlow exposes a small RESTful surface over the image package:
//   - POST /v1/images/generate         single generation, polling included
//   - POST /v1/images/generate/stream  same, with SSE progress events
//   - POST /v1/images/generate/batch   independent requests in parallel
//   - GET  /v1/images/engines          registered engines and their options
//   - GET  /health, /healthz, /ready   health probes
//
// Input images travel as base64 (or data URIs) together with a usage intent.
// Every JSON response is wrapped in the handlers.Response envelope.
//
// # Generating Documentation
//
//	swag init -g cmd/fusionflow/main.go -o api --parseDependency --parseInternal
package api
