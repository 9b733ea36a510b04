package simulation

import (
	"errors"
	"fmt"

	"github.com/signalnine/dilemmalab/strategy"
)

var (
	// ErrInvalidConfig matches every configuration failure reported by New and Validate.
	ErrInvalidConfig = errors.New("invalid configuration")

	ErrEmptyConfig      = errors.New("configuration is empty")
	ErrNoStrategies     = errors.New("no strategies specified")
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrNoAgents         = errors.New("at least one agent must be specified")
	ErrUnknownType      = errors.New("unknown game type")
	ErrUnknownStrategy  = strategy.ErrUnknownStrategy

	// ErrRoundPanic wraps a panic recovered while playing a round.
	ErrRoundPanic = errors.New("round panicked")
)

// ConfigError reports one invalid configuration field.
type ConfigError struct {
	Field   string
	Message string
	Cause   error
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Message)
	}
	return "invalid configuration: " + e.Message
}

// Unwrap lets errors.Is match both ErrInvalidConfig and the specific cause.
func (e *ConfigError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrInvalidConfig}
	}
	return []error{ErrInvalidConfig, e.Cause}
}
