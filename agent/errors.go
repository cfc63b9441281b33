package agent

import (
	"errors"
	"fmt"

	"github.com/BaSui01/parliament/agent/persona"
	"github.com/BaSui01/parliament/llm"
)

var (
	// ErrEmptyCompletion 后端返回了空文本
	ErrEmptyCompletion = errors.New("backend returned an empty completion")

	// ErrProviderNotFound 绑定的 Provider 未注册
	ErrProviderNotFound = errors.New("provider not registered")
)

// BackendError reports that one persona's model call failed. It is never
// retried by the invoker.
type BackendError struct {
	Persona persona.Key
	Model   string
	Cause   error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("persona %s: backend call to %s failed: %v", e.Persona, e.Model, e.Cause)
}

func (e *BackendError) Unwrap() error { return e.Cause }

// Retryable reports whether the underlying failure is marked retryable.
func (e *BackendError) Retryable() bool { return llm.IsRetryable(e.Cause) }

// IsBackendError reports whether err carries a *BackendError.
func IsBackendError(err error) bool {
	var be *BackendError
	return errors.As(err, &be)
}
