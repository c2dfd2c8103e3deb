// Package config loads service settings from the environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// Validator is implemented by configs that check themselves after parsing.
type Validator interface {
	Validate() error
}

// Load fills cfg from environment variables using its `env` and `envDefault`
// tags, then runs cfg.Validate when cfg implements Validator.
//
//	type Config struct {
//	    Alias    string        `env:"INDEX_ALIAS" envDefault:"catalog_search"`
//	    Debounce time.Duration `env:"COLLECTION_DEBOUNCE" envDefault:"50ms"`
//	}
func Load(cfg any) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if v, ok := cfg.(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("validate config: %w", err)
		}
	}
	return nil
}
