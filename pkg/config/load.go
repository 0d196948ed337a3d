package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// LocalEnvFile is read before the environment is parsed, unless DOCKER is set.
const LocalEnvFile = ".env.local"

// Load reads configuration from environment variables.
// Variables already present in the environment win over LocalEnvFile.
func Load() (*Config, error) {
	if _, inDocker := os.LookupEnv("DOCKER"); !inDocker {
		if err := godotenv.Load(LocalEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: reading %s: %v", ErrInvalidConfig, LocalEnvFile, err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg.Postgres); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := envconfig.Process("", &cfg.App); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// MustLoad loads configuration and panics on error.
// Use this only in main during startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the struct-level constraints of cfg.
func Validate(cfg *Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, describe(fe))
	}
	sort.Strings(msgs)

	return &ValidationError{Fields: msgs}
}

// describe renders a field error using the env var name instead of the Go field name.
func describe(fe validator.FieldError) string {
	name := envName(fe.StructNamespace())

	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "gt":
		return name + " must be greater than " + fe.Param()
	case "gte":
		return name + " must be greater than or equal to " + fe.Param()
	case "lte":
		return name + " must be less than or equal to " + fe.Param()
	case "ltefield":
		return name + " must not exceed " + envName("Config.Postgres."+fe.Param())
	case "startswith":
		return name + " must start with " + fe.Param()
	case "oneof":
		return name + " must be one of: " + fe.Param()
	default:
		return name + " is invalid"
	}
}

// envName resolves "Config.Postgres.PoolMax" to the envconfig tag, PG_POOL_MAX.
func envName(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) != 3 {
		return namespace
	}

	if tag, ok := envTags[parts[1]][parts[2]]; ok {
		return tag
	}
	return parts[2]
}
