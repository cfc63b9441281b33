package deliberation

import (
	"errors"

	"github.com/BaSui01/parliament/llm/retry"
)

// Config bounds one deliberation.
type Config struct {
	// MaxRounds caps critique/vote rounds; the last round never refines.
	MaxRounds int `yaml:"max_rounds" env:"MAX_ROUNDS" json:"max_rounds"`
	// MinVotingPersonas is the smallest active set that still votes. Below it
	// the round closes without votes and the engine goes to synthesis.
	// 1 lets a lone persona reach consensus with its own Yes.
	MinVotingPersonas int `yaml:"min_voting_personas" env:"MIN_VOTING_PERSONAS" json:"min_voting_personas"`
	// Retry applies to every persona and synthesis call. MaxRetries 0 disables it.
	Retry retry.RetryPolicy `yaml:"retry" env:"RETRY" json:"retry"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxRounds:         4,
		MinVotingPersonas: 2,
		Retry:             retry.DisabledPolicy(),
	}
}

// Validate checks the bounds.
func (c Config) Validate() error {
	var errs []error
	if c.MaxRounds < 1 {
		errs = append(errs, errors.New("max_rounds must be at least 1"))
	}
	if c.MinVotingPersonas < 1 {
		errs = append(errs, errors.New("min_voting_personas must be at least 1"))
	}
	if c.Retry.MaxRetries < 0 {
		errs = append(errs, errors.New("retry.max_retries must not be negative"))
	}
	return errors.Join(errs...)
}
