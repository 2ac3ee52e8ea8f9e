package ldfmock

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v2"
)

const (
	DefaultFetchTimeout    = 10 * time.Second
	DefaultShutdownTimeout = 5 * time.Second
	DefaultBindRetries     = 3
)

// Config drives a MockerFactory and the mockers it creates.
//
// Example:
//
//	start_port: 4000
//	server_termination_delay: 200ms
//	fetch_timeout: 10s
//	probe_strategy: wait
//	negotiate_suffix: true
//	suffix_by_media_type:
//	  text/turtle: .ttl
type Config struct {
	// StartPort is where port allocation starts. Parallel test runs must use
	// distinct values, all default to 3000.
	StartPort int `yaml:"start_port"`

	// ServerTerminationDelay is how long to wait after a query completes
	// before tearing the mock server down, so engine background requests can
	// still be served.
	ServerTerminationDelay time.Duration `yaml:"server_termination_delay"`

	FetchTimeout    time.Duration `yaml:"fetch_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// BindRetries bounds how often a factory picks a new port when a mocker
	// loses its port to another process between allocation and bind.
	BindRetries int `yaml:"bind_retries"`

	ProbeStrategy string        `yaml:"probe_strategy"` // bind or wait
	PollInterval  time.Duration `yaml:"poll_interval"`
	PollTimeout   time.Duration `yaml:"poll_timeout"`

	FixtureSuffix     string            `yaml:"fixture_suffix"`
	NegotiateSuffix   bool              `yaml:"negotiate_suffix"`
	SuffixByMediaType map[string]string `yaml:"suffix_by_media_type"`

	// CacheFetches keeps successful fetches in memory for the factory's
	// lifetime.
	CacheFetches bool `yaml:"cache_fetches"`
}

// LoadConfig reads a YAML config file and applies defaults.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "read config %s", path)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "parse config %s", path)
	}

	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// WithDefaults fills every zero field with its default.
func (c Config) WithDefaults() Config {
	if c.StartPort == 0 {
		c.StartPort = DefaultStartPort
	}
	if c.FetchTimeout == 0 {
		c.FetchTimeout = DefaultFetchTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.BindRetries == 0 {
		c.BindRetries = DefaultBindRetries
	}
	if c.ProbeStrategy == "" {
		c.ProbeStrategy = "bind"
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.PollTimeout == 0 {
		c.PollTimeout = DefaultPollTimeout
	}
	if c.SuffixByMediaType == nil {
		c.SuffixByMediaType = DefaultSuffixByMediaType()
	}
	return c
}

// Validate rejects values no component can work with.
func (c Config) Validate() error {
	if err := ValidatePort(c.StartPort); err != nil {
		return err
	}
	if c.ServerTerminationDelay < 0 || c.FetchTimeout < 0 || c.ShutdownTimeout < 0 ||
		c.PollInterval < 0 || c.PollTimeout < 0 {
		return errors.Wrap(ErrInvalidConfig, "durations must not be negative")
	}
	if c.BindRetries < 0 {
		return errors.Wrap(ErrInvalidConfig, "bind_retries must not be negative")
	}
	if _, err := c.probeStrategy(); err != nil {
		return err
	}
	return nil
}

func (c Config) probeStrategy() (ProbeStrategy, error) {
	switch c.ProbeStrategy {
	case "", "bind":
		return ProbeBind, nil
	case "wait":
		return ProbeWait, nil
	}
	return 0, errors.Wrapf(ErrInvalidConfig, "unknown probe_strategy %q", c.ProbeStrategy)
}

func (c Config) mockFetcherOptions() MockFetcherOptions {
	return MockFetcherOptions{
		Suffix:            c.FixtureSuffix,
		NegotiateSuffix:   c.NegotiateSuffix,
		SuffixByMediaType: c.SuffixByMediaType,
		FetchTimeout:      c.FetchTimeout,
	}
}
