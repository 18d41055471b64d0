// Package config reads the broker settings of the courier binaries from the
// environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/casualjim/courier"
)

const (
	EnvLogLevel    = "COURIER_LOG_LEVEL"
	EnvFaultPolicy = "COURIER_FAULT_POLICY"
	EnvTrace       = "COURIER_TRACE"
	EnvDumpStats   = "COURIER_DUMP_STATS"
)

type Config struct {
	LogLevel    slog.Level
	FaultPolicy courier.FaultPolicy
	// Trace installs a logging hook that reports every publish and delivery.
	Trace bool
	// DumpStats prints the delivery counters on exit.
	DumpStats bool
}

func envStrOrDefault(key string, def string) string {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def
	}
	return s
}

func envBool(key string) (bool, error) {
	s := envStrOrDefault(key, "false")
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("config: %s: %w", key, err)
	}
	return v, nil
}

// FromEnv reads the configuration. Unset variables take their defaults: info logging,
// the log-and-continue fault policy, no tracing and no stats dump. All invalid values
// are reported together.
func FromEnv() (Config, error) {
	var (
		cfg  Config
		errs []error
	)

	if err := cfg.LogLevel.UnmarshalText([]byte(envStrOrDefault(EnvLogLevel, "info"))); err != nil {
		errs = append(errs, fmt.Errorf("config: %s: %w", EnvLogLevel, err))
	}

	policy, err := courier.ParseFaultPolicy(os.Getenv(EnvFaultPolicy))
	if err != nil {
		errs = append(errs, fmt.Errorf("config: %s: %w", EnvFaultPolicy, err))
	}
	cfg.FaultPolicy = policy

	if cfg.Trace, err = envBool(EnvTrace); err != nil {
		errs = append(errs, err)
	}
	if cfg.DumpStats, err = envBool(EnvDumpStats); err != nil {
		errs = append(errs, err)
	}

	return cfg, errors.Join(errs...)
}

// BrokerOptions turns the configuration into options for courier.New, logging to
// logger.
func (c Config) BrokerOptions(logger *slog.Logger) []courier.Option {
	options := []courier.Option{
		courier.WithLogger(logger),
		courier.WithFaultPolicy(c.FaultPolicy),
	}
	if c.Trace {
		options = append(options, courier.WithHook(courier.LoggingHook(logger)))
	}
	return options
}
