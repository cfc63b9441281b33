package deliberation

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BaSui01/parliament/agent/persona"
)

// NoActivePersonasError means every persona failed before synthesis.
type NoActivePersonasError struct {
	// Stage is the stage in which the last persona was lost.
	Stage    string
	Failures map[persona.Key]error
}

func (e *NoActivePersonasError) Error() string {
	keys := make([]string, 0, len(e.Failures))
	for k := range e.Failures {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	return fmt.Sprintf("no active personas left after %s stage (failed: %s)", e.Stage, strings.Join(keys, ", "))
}

// Unwrap exposes every persona failure to errors.Is / errors.As.
func (e *NoActivePersonasError) Unwrap() []error {
	out := make([]error, 0, len(e.Failures))
	for _, k := range persona.Keys() {
		if err, ok := e.Failures[k]; ok {
			out = append(out, err)
		}
	}
	return out
}

// SynthesisError wraps the failure of the single synthesis call.
type SynthesisError struct {
	Cause error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesis failed: %v", e.Cause)
}

func (e *SynthesisError) Unwrap() error { return e.Cause }

// IsNoActivePersonas reports whether err carries a NoActivePersonasError.
func IsNoActivePersonas(err error) bool {
	var e *NoActivePersonasError
	return errors.As(err, &e)
}

// IsSynthesisError reports whether err carries a SynthesisError.
func IsSynthesisError(err error) bool {
	var e *SynthesisError
	return errors.As(err, &e)
}
