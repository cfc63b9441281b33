package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BaSui01/parliament/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fastPolicy(maxRetries int) RetryPolicy {
	return RetryPolicy{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

var errTransient = &llm.Error{Code: llm.ErrRateLimited, Message: "slow down", Retryable: true}

func TestBackoffRetryer_Success(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(3), zap.NewNop())

	callCount := 0
	err := retryer.Do(context.Background(), func() error {
		callCount++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, callCount)
}

func TestBackoffRetryer_RetryAndSuccess(t *testing.T) {
	var attempts []int
	policy := fastPolicy(3)
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		attempts = append(attempts, attempt)
	}
	retryer := NewBackoffRetryer(policy, nil)

	callCount := 0
	err := retryer.Do(context.Background(), func() error {
		callCount++
		if callCount < 3 {
			return errTransient
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, callCount)
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestBackoffRetryer_Exhausted(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(2), nil)

	callCount := 0
	err := retryer.Do(context.Background(), func() error {
		callCount++
		return errTransient
	})

	require.Error(t, err)
	assert.Equal(t, 3, callCount)
	var llmErr *llm.Error
	assert.ErrorAs(t, err, &llmErr)
}

func TestBackoffRetryer_NonRetryableStopsImmediately(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(5), nil)
	permanent := &llm.Error{Code: llm.ErrUnauthorized, Message: "bad key"}

	callCount := 0
	err := retryer.Do(context.Background(), func() error {
		callCount++
		return permanent
	})

	assert.Same(t, permanent, err)
	assert.Equal(t, 1, callCount)
}

func TestBackoffRetryer_DisabledPolicyRunsOnce(t *testing.T) {
	retryer := NewBackoffRetryer(DisabledPolicy(), nil)

	callCount := 0
	err := retryer.Do(context.Background(), func() error {
		callCount++
		return errTransient
	})

	assert.Same(t, errTransient, err)
	assert.Equal(t, 1, callCount)
}

func TestBackoffRetryer_CustomPredicate(t *testing.T) {
	sentinel := errors.New("flaky")
	policy := fastPolicy(1)
	policy.Retryable = func(err error) bool { return errors.Is(err, sentinel) }
	retryer := NewBackoffRetryer(policy, nil)

	callCount := 0
	_ = retryer.Do(context.Background(), func() error {
		callCount++
		return sentinel
	})
	assert.Equal(t, 2, callCount)
}

func TestBackoffRetryer_ContextCancelled(t *testing.T) {
	policy := fastPolicy(3)
	policy.InitialDelay = time.Hour
	policy.MaxDelay = time.Hour
	retryer := NewBackoffRetryer(policy, nil)

	ctx, cancel := context.WithCancel(context.Background())
	callCount := 0
	err := retryer.Do(ctx, func() error {
		callCount++
		cancel()
		return errTransient
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 1, callCount)
}

func TestBackoffRetryer_CalculateDelay(t *testing.T) {
	r := NewBackoffRetryer(RetryPolicy{
		MaxRetries:   5,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     50 * time.Millisecond,
		Multiplier:   2.0,
	}, nil).(*backoffRetryer)

	assert.Equal(t, 10*time.Millisecond, r.calculateDelay(1))
	assert.Equal(t, 20*time.Millisecond, r.calculateDelay(2))
	assert.Equal(t, 40*time.Millisecond, r.calculateDelay(3))
	assert.Equal(t, 50*time.Millisecond, r.calculateDelay(4))
}

func TestDoWithResult(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(1), nil)

	calls := 0
	v, err := DoWithResult(context.Background(), retryer, func() (string, error) {
		calls++
		if calls == 1 {
			return "", errTransient
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)

	v, err = DoWithResult(context.Background(), retryer, func() (string, error) {
		return "partial", &llm.Error{Message: "nope"}
	})
	require.Error(t, err)
	assert.Empty(t, v)
}
