package retry

import "context"

// DoWithResult runs fn under r and returns its typed result.
//
// Usage:
//
//	resp, err := retry.DoWithResult(ctx, r, func() (agent.Response, error) {
//	    return invoker.Invoke(ctx, def, prompt)
//	})
func DoWithResult[T any](ctx context.Context, r Retryer, fn func() (T, error)) (T, error) {
	var result T
	err := r.Do(ctx, func() error {
		v, err := fn()
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
