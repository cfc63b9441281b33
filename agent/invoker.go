package agent

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/parliament/agent/persona"
	"github.com/BaSui01/parliament/internal/ctxkeys"
	"github.com/BaSui01/parliament/llm"
	"github.com/BaSui01/parliament/llm/pricing"
	"github.com/BaSui01/parliament/llm/tokenizer"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Response is one persona's output for one stage call.
type Response struct {
	Persona      persona.Key `json:"persona"`
	Text         string      `json:"text"`
	InputTokens  int         `json:"input_tokens"`
	OutputTokens int         `json:"output_tokens"`
	CostUSD      float64     `json:"cost_usd"`
	ModelName    string      `json:"model"`
}

// Invoker performs a single model call on behalf of a persona.
type Invoker interface {
	Invoke(ctx context.Context, def persona.Definition, prompt string) (Response, error)
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc func(ctx context.Context, def persona.Definition, prompt string) (Response, error)

func (f InvokerFunc) Invoke(ctx context.Context, def persona.Definition, prompt string) (Response, error) {
	return f(ctx, def, prompt)
}

// Pricer converts usage into USD.
type Pricer interface {
	Cost(model string, inputTokens, outputTokens int) float64
}

// CallObserver receives one record per backend call, successful or not.
type CallObserver interface {
	ObserveBackendCall(persona, model, status string, duration time.Duration, inputTokens, outputTokens int, costUSD float64)
}

// InvokerConfig tunes ProviderInvoker.
type InvokerConfig struct {
	MaxTokens   int           `yaml:"max_tokens" env:"MAX_TOKENS" json:"max_tokens"`
	Temperature float32       `yaml:"temperature" env:"TEMPERATURE" json:"temperature"`
	CallTimeout time.Duration `yaml:"call_timeout" env:"CALL_TIMEOUT" json:"call_timeout"`
	// RateLimit caps calls per second per provider; 0 disables the limiter.
	RateLimit float64 `yaml:"rate_limit" env:"RATE_LIMIT" json:"rate_limit"`
	Burst     int     `yaml:"burst" env:"BURST" json:"burst"`
}

// DefaultInvokerConfig returns the production defaults.
func DefaultInvokerConfig() InvokerConfig {
	return InvokerConfig{
		MaxTokens:   2048,
		Temperature: 0.7,
		CallTimeout: 45 * time.Second,
		RateLimit:   0,
		Burst:       6,
	}
}

// ProviderInvoker is the production Invoker. It resolves the persona's
// binding through a BackendClientFactory and does not retry.
type ProviderInvoker struct {
	factory  BackendClientFactory
	cfg      InvokerConfig
	pricer   Pricer
	counters *tokenizer.Registry
	observer CallObserver
	logger   *zap.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// InvokerOption configures optional collaborators.
type InvokerOption func(*ProviderInvoker)

// WithPricer replaces the built-in price table.
func WithPricer(p Pricer) InvokerOption {
	return func(i *ProviderInvoker) { i.pricer = p }
}

// WithTokenCounters replaces the token counters used when a backend omits usage.
func WithTokenCounters(r *tokenizer.Registry) InvokerOption {
	return func(i *ProviderInvoker) { i.counters = r }
}

// WithCallObserver reports every backend call, e.g. to Prometheus.
func WithCallObserver(o CallObserver) InvokerOption {
	return func(i *ProviderInvoker) { i.observer = o }
}

type defaultPricer struct{}

func (defaultPricer) Cost(model string, in, out int) float64 {
	return pricing.CalculateCost(model, in, out)
}

// NewProviderInvoker builds an invoker over factory.
func NewProviderInvoker(factory BackendClientFactory, cfg InvokerConfig, logger *zap.Logger, opts ...InvokerOption) *ProviderInvoker {
	if logger == nil {
		logger = zap.NewNop()
	}
	inv := &ProviderInvoker{
		factory:  factory,
		cfg:      cfg,
		pricer:   defaultPricer{},
		counters: tokenizer.NewRegistry(),
		logger:   logger.With(zap.String("component", "invoker")),
		limiters: make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

func (i *ProviderInvoker) limiter(provider string) *rate.Limiter {
	if i.cfg.RateLimit <= 0 {
		return nil
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	l, ok := i.limiters[provider]
	if !ok {
		burst := i.cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		l = rate.NewLimiter(rate.Limit(i.cfg.RateLimit), burst)
		i.limiters[provider] = l
	}
	return l
}

// Invoke sends [system: instructions, user: prompt] to the persona's backend.
// def is passed by value and never modified.
func (i *ProviderInvoker) Invoke(ctx context.Context, def persona.Definition, prompt string) (Response, error) {
	start := time.Now()
	model := def.Binding.Model
	fail := func(cause error) (Response, error) {
		i.observe(def, model, "error", time.Since(start), 0, 0, 0)
		return Response{}, &BackendError{Persona: def.Key, Model: model, Cause: cause}
	}

	provider, err := i.factory.ClientFor(def.Binding)
	if err != nil {
		return fail(err)
	}
	if l := i.limiter(provider.Name()); l != nil {
		if err := l.Wait(ctx); err != nil {
			return fail(&llm.Error{
				Code: llm.ErrRateLimited, Message: err.Error(),
				HTTPStatus: http.StatusTooManyRequests, Provider: provider.Name(),
			})
		}
	}

	req := &llm.ChatRequest{
		Model: model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: def.SystemInstructions},
			{Role: llm.RoleUser, Content: prompt},
		},
		MaxTokens:   i.cfg.MaxTokens,
		Temperature: i.cfg.Temperature,
		Timeout:     i.cfg.CallTimeout,
		Metadata:    map[string]string{"persona": string(def.Key)},
	}
	if traceID, ok := ctxkeys.TraceID(ctx); ok {
		req.TraceID = traceID
	}
	if id, ok := ctxkeys.DeliberationID(ctx); ok {
		req.Metadata["deliberation_id"] = id
	}

	resp, err := provider.Completion(ctx, req)
	if err != nil {
		return fail(err)
	}
	text := strings.TrimSpace(resp.FirstContent())
	if text == "" {
		return fail(&llm.Error{
			Code: llm.ErrMalformedResponse, Message: ErrEmptyCompletion.Error(),
			HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: provider.Name(),
		})
	}

	in, out := resp.Usage.PromptTokens, resp.Usage.CompletionTokens
	if in == 0 && out == 0 {
		in, out = i.estimate(model, def.SystemInstructions+"\n"+prompt, text)
	}
	cost := i.pricer.Cost(model, in, out)
	i.observe(def, model, "ok", time.Since(start), in, out, cost)

	return Response{
		Persona:      def.Key,
		Text:         text,
		InputTokens:  in,
		OutputTokens: out,
		CostUSD:      cost,
		ModelName:    model,
	}, nil
}

func (i *ProviderInvoker) estimate(model, input, output string) (int, int) {
	counter := i.counters.ForModel(model)
	in, err := counter.CountTokens(input)
	if err != nil {
		in = 0
	}
	out, err := counter.CountTokens(output)
	if err != nil {
		out = 0
	}
	i.logger.Debug("backend returned no usage, estimated tokens",
		zap.String("model", model),
		zap.String("counter", counter.Name()),
		zap.Int("input_tokens", in),
		zap.Int("output_tokens", out))
	return in, out
}

func (i *ProviderInvoker) observe(def persona.Definition, model, status string, d time.Duration, in, out int, cost float64) {
	if i.observer == nil {
		return
	}
	i.observer.ObserveBackendCall(string(def.Key), model, status, d, in, out, cost)
}
