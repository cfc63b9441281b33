// Package api defines the wire types of the Parliament HTTP API.
//
// # API Overview
//
// Parliament exposes a small RESTful surface:
//   - POST /v1/deliberations runs one deliberation, optionally streaming
//     progress as NDJSON
//   - GET /v1/sessions/{id}/costs returns the session's ledger summary
//   - /health, /ready, /version and /metrics for operations
//
// # Authentication
//
// When API keys are configured, endpoints under /v1 require the X-API-Key
// header:
//
//	X-API-Key: your-api-key
//
// # Streaming
//
// With "stream": true the response body is newline-delimited JSON. Each line
// is a StreamLine whose type is "progress", "result" or "error"; exactly one
// "result" or "error" line ends the stream.
package api
