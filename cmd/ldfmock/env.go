package main

import (
	"strconv"
	"time"

	ldfmock "github.com/William9923/go-ldfmock"
	"github.com/cockroachdb/errors"
)

const envPrefix = "LDFMOCK_"

// applyEnv overrides cfg with the LDFMOCK_* variables found by lookup.
func applyEnv(cfg ldfmock.Config, lookup func(string) (string, bool)) (ldfmock.Config, error) {
	ints := map[string]*int{
		"START_PORT":   &cfg.StartPort,
		"BIND_RETRIES": &cfg.BindRetries,
	}
	durations := map[string]*time.Duration{
		"SERVER_TERMINATION_DELAY": &cfg.ServerTerminationDelay,
		"FETCH_TIMEOUT":            &cfg.FetchTimeout,
		"SHUTDOWN_TIMEOUT":         &cfg.ShutdownTimeout,
		"POLL_INTERVAL":            &cfg.PollInterval,
		"POLL_TIMEOUT":             &cfg.PollTimeout,
	}
	bools := map[string]*bool{
		"NEGOTIATE_SUFFIX": &cfg.NegotiateSuffix,
		"CACHE_FETCHES":    &cfg.CacheFetches,
	}
	strs := map[string]*string{
		"PROBE_STRATEGY": &cfg.ProbeStrategy,
		"FIXTURE_SUFFIX": &cfg.FixtureSuffix,
	}

	for name, field := range ints {
		if raw, ok := lookup(envPrefix + name); ok {
			v, err := strconv.Atoi(raw)
			if err != nil {
				return cfg, errors.Wrapf(ldfmock.ErrInvalidConfig, "%s%s=%q", envPrefix, name, raw)
			}
			*field = v
		}
	}
	for name, field := range durations {
		if raw, ok := lookup(envPrefix + name); ok {
			v, err := time.ParseDuration(raw)
			if err != nil {
				return cfg, errors.Wrapf(ldfmock.ErrInvalidConfig, "%s%s=%q", envPrefix, name, raw)
			}
			*field = v
		}
	}
	for name, field := range bools {
		if raw, ok := lookup(envPrefix + name); ok {
			v, err := strconv.ParseBool(raw)
			if err != nil {
				return cfg, errors.Wrapf(ldfmock.ErrInvalidConfig, "%s%s=%q", envPrefix, name, raw)
			}
			*field = v
		}
	}
	for name, field := range strs {
		if raw, ok := lookup(envPrefix + name); ok {
			*field = raw
		}
	}
	return cfg, nil
}
