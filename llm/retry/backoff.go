package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/BaSui01/parliament/llm"
	"go.uber.org/zap"
)

// RetryPolicy 定义重试策略配置。MaxRetries 为 0 时只执行一次，不重试。
type RetryPolicy struct {
	MaxRetries   int           `yaml:"max_retries" env:"MAX_RETRIES" json:"max_retries"`       // 最大重试次数
	InitialDelay time.Duration `yaml:"initial_delay" env:"INITIAL_DELAY" json:"initial_delay"` // 初始延迟时间
	MaxDelay     time.Duration `yaml:"max_delay" env:"MAX_DELAY" json:"max_delay"`             // 最大延迟时间
	Multiplier   float64       `yaml:"multiplier" env:"MULTIPLIER" json:"multiplier"`          // 指数退避倍数
	Jitter       bool          `yaml:"jitter" env:"JITTER" json:"jitter"`                      // ±25% 随机抖动

	// Retryable 判断错误是否值得重试，为 nil 时使用 llm.IsRetryable
	Retryable func(error) bool `yaml:"-" json:"-"`
	// OnRetry 在每次等待前调用
	OnRetry func(attempt int, err error, delay time.Duration) `yaml:"-" json:"-"`
}

// DisabledPolicy 返回不重试的策略，这是审议引擎的默认值。
func DisabledPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   0,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Retryer 重试器接口
type Retryer interface {
	// Do 执行函数，失败时根据策略重试
	Do(ctx context.Context, fn func() error) error
}

type backoffRetryer struct {
	policy RetryPolicy
	logger *zap.Logger
}

// NewBackoffRetryer 创建指数退避重试器
func NewBackoffRetryer(policy RetryPolicy, logger *zap.Logger) Retryer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	if policy.InitialDelay <= 0 {
		policy.InitialDelay = 500 * time.Millisecond
	}
	if policy.MaxDelay < policy.InitialDelay {
		policy.MaxDelay = policy.InitialDelay
	}
	if policy.Multiplier < 1.0 {
		policy.Multiplier = 2.0
	}
	if policy.Retryable == nil {
		policy.Retryable = llm.IsRetryable
	}
	return &backoffRetryer{policy: policy, logger: logger}
}

// Do 实现 Retryer.Do。返回的错误始终包裹最后一次失败，调用方可以 errors.As 到原始类型。
func (r *backoffRetryer) Do(ctx context.Context, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= r.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.calculateDelay(attempt)
			r.logger.Debug("retrying",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", r.policy.MaxRetries),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			if r.policy.OnRetry != nil {
				r.policy.OnRetry(attempt, lastErr, delay)
			}

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("retry cancelled: %w", lastErr)
			case <-timer.C:
			}
		}

		lastErr = fn()
		if lastErr == nil {
			if attempt > 0 {
				r.logger.Debug("retry succeeded", zap.Int("attempt", attempt))
			}
			return nil
		}
		if !r.policy.Retryable(lastErr) {
			return lastErr
		}
	}

	if r.policy.MaxRetries == 0 {
		return lastErr
	}
	r.logger.Warn("retries exhausted",
		zap.Int("attempts", r.policy.MaxRetries+1),
		zap.Error(lastErr),
	)
	return fmt.Errorf("failed after %d retries: %w", r.policy.MaxRetries, lastErr)
}

// calculateDelay 指数退避：delay = initial * multiplier^(attempt-1)，上限 MaxDelay
func (r *backoffRetryer) calculateDelay(attempt int) time.Duration {
	delay := float64(r.policy.InitialDelay) * math.Pow(r.policy.Multiplier, float64(attempt-1))
	if delay > float64(r.policy.MaxDelay) {
		delay = float64(r.policy.MaxDelay)
	}
	if r.policy.Jitter {
		jitter := delay * 0.25
		delay += (rand.Float64()*2 - 1) * jitter
	}
	if delay < float64(r.policy.InitialDelay) {
		delay = float64(r.policy.InitialDelay)
	}
	return time.Duration(delay)
}
