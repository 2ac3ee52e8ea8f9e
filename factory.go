package ldfmock

import (
	"context"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
)

// MockerFactory hands out ResponseMockers on distinct ports. Mockers from one
// factory share its Fetcher, and with it the fetch cache.
type MockerFactory struct {
	Logger  interface{} // Customer logger instance. Can be either Logger or LeveledLogger
	Fetcher Fetcher
	Metrics *Metrics

	config    Config
	allocator *PortAllocator
}

// FactoryOption configures a MockerFactory.
type FactoryOption func(*MockerFactory)

func WithLogger(logger interface{}) FactoryOption {
	return func(f *MockerFactory) { f.Logger = logger }
}

func WithFetcher(fetcher Fetcher) FactoryOption {
	return func(f *MockerFactory) { f.Fetcher = fetcher }
}

func WithMetrics(metrics *Metrics) FactoryOption {
	return func(f *MockerFactory) { f.Metrics = metrics }
}

// NewMockerFactory validates cfg, filling in defaults, and creates a factory
// allocating ports from cfg.StartPort upwards.
func NewMockerFactory(cfg Config, opts ...FactoryOption) (*MockerFactory, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	strategy, err := cfg.probeStrategy()
	if err != nil {
		return nil, err
	}

	allocator := NewPortAllocator(cfg.StartPort)
	allocator.Strategy = strategy
	allocator.PollInterval = cfg.PollInterval
	allocator.PollTimeout = cfg.PollTimeout

	f := &MockerFactory{
		Logger:    defaultLogger(),
		config:    cfg,
		allocator: allocator,
	}
	for _, opt := range opts {
		opt(f)
	}
	checkLogger(f.Logger)

	if f.Fetcher == nil {
		fetcher := NewHTTPFetcher()
		fetcher.Logger = f.Logger
		fetcher.Cache = cfg.CacheFetches
		f.Fetcher = fetcher
	}
	return f, nil
}

// Config returns the effective configuration, defaults included.
func (f *MockerFactory) Config() Config { return f.config }

// ServerTerminationDelay is how long callers should wait after a query
// before tearing its mocker down.
func (f *MockerFactory) ServerTerminationDelay() time.Duration {
	return f.config.ServerTerminationDelay
}

// GetNewMocker allocates a port and returns an unbound mocker for it.
func (f *MockerFactory) GetNewMocker(ctx context.Context) (*ResponseMocker, error) {
	port, err := f.allocator.Allocate(ctx)
	if err != nil {
		return nil, err
	}

	m, err := NewResponseMocker(port)
	if err != nil {
		return nil, err
	}
	m.Logger = f.Logger
	m.Fetcher = f.Fetcher
	m.Metrics = f.Metrics
	m.MockOptions = f.config.mockFetcherOptions()
	m.ShutdownTimeout = f.config.ShutdownTimeout

	logDebug(f.Logger, "created mocker", "mocker", m.ID(), "port", port)
	return m, nil
}

// StartMocker returns a listening mocker loaded with tc. A port lost to
// another process between allocation and bind is retried on the next free
// port, up to BindRetries times.
func (f *MockerFactory) StartMocker(ctx context.Context, tc *TestCase) (*ResponseMocker, error) {
	var sources []DataSource
	if tc != nil {
		sources = tc.DataSources
	}

	for attempt := 0; ; attempt++ {
		m, err := f.GetNewMocker(ctx)
		if err != nil {
			return nil, err
		}
		m.LoadSources(sources)
		m.LoadTest(tc)

		err = m.SetUpServer(ctx)
		if err == nil {
			return m, nil
		}
		if !errors.Is(err, syscall.EADDRINUSE) || attempt >= f.config.BindRetries {
			return nil, err
		}
		logWarn(f.Logger, "port taken before bind, retrying", "port", m.Port(), "attempt", attempt+1)
	}
}
