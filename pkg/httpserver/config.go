package httpserver

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config holds the HTTP server configuration.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	BodyLimit       int64
	ServiceName     string
	Environment     string
}

// DefaultConfig returns a new Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Address:         ":8080",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		BodyLimit:       4 * 1024 * 1024,
		ServiceName:     "unknown-service",
		Environment:     "development",
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Address) == "" {
		return errors.New("address is required")
	}

	if strings.TrimSpace(c.ServiceName) == "" {
		return errors.New("service name is required")
	}

	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive, got %v", c.ReadTimeout)
	}

	if c.WriteTimeout <= 0 {
		return fmt.Errorf("write timeout must be positive, got %v", c.WriteTimeout)
	}

	if c.IdleTimeout <= 0 {
		return fmt.Errorf("idle timeout must be positive, got %v", c.IdleTimeout)
	}

	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive, got %v", c.ShutdownTimeout)
	}

	if c.BodyLimit <= 0 {
		return fmt.Errorf("body limit must be positive, got %d", c.BodyLimit)
	}

	return nil
}
