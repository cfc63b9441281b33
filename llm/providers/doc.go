// Package providers holds the OpenAI-compatible wire types and HTTP error
// mapping shared by gateway-backed providers.
package providers
