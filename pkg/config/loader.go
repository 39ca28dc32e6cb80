package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// Validatable is implemented by config structs that check cross-field rules
// after parsing (backend selections, required secrets per environment).
type Validatable interface {
	Validate() error
}

// Load parses environment variables into the provided struct and, when the
// struct implements Validatable, validates the result.
//
// Example:
//
//	type Config struct {
//	    Port      int           `env:"REVIEWS_HTTP_PORT" envDefault:"8080"`
//	    TokenTTL  time.Duration `env:"TOKEN_TTL" envDefault:"48h"`
//	    Brokers   []string      `env:"KAFKA_BROKERS" envSeparator:","`
//	}
func Load(cfg any) error {
	return LoadWithPrefix(cfg, "")
}

// LoadWithPrefix is Load with every variable name prefixed, e.g. "REVIEWS_".
func LoadWithPrefix(cfg any, prefix string) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: prefix}); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if v, ok := cfg.(Validatable); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("validate config: %w", err)
		}
	}
	return nil
}
