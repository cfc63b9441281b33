// Package openaicompat implements llm.Provider against any endpoint that
// speaks the OpenAI Chat Completions protocol, including multi-vendor AI
// gateways that route on a model id of the form "<vendor>/<model>".
//
// Usage:
//
//	p := openaicompat.New(openaicompat.Config{
//	    ProviderName:   "gateway",
//	    APIKey:         cfg.APIKey,
//	    BaseURL:        "https://ai-gateway.vercel.sh",
//	    DefaultModel:   "anthropic/claude-3.5-haiku",
//	    RequestHeaders: openaicompat.GatewayHeaders(cfg.ProjectID),
//	}, logger)
package openaicompat
