package ldfmock

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/hashicorp/go-cleanhttp"
)

// MockerState is the lifecycle stage of a ResponseMocker.
type MockerState int

const (
	MockerUnbound MockerState = iota
	MockerListening
	MockerClosed
)

func (s MockerState) String() string {
	switch s {
	case MockerUnbound:
		return "unbound"
	case MockerListening:
		return "listening"
	case MockerClosed:
		return "closed"
	}
	return "unknown"
}

// whitelistProbeSegments is how many `/` separated segments of a requested
// URI form its whitelist probe key, `scheme://host` for absolute URIs.
const whitelistProbeSegments = 3

// hopHeaders are dropped when copying an upstream response back.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
	"Content-Length",
}

// ResponseMocker is an HTTP server standing in for the sources of one test
// case. The engine under test addresses every source as
// `<ProxyAddress><source URI>`; TPF and SPARQL traffic is answered from
// recorded fixtures, every other declared source is fetched for real.
//
// A ResponseMocker is bound at most once. After TearDownServer it cannot be
// reused.
type ResponseMocker struct {
	Logger  interface{} // Customer logger instance. Can be either Logger or LeveledLogger
	Fetcher Fetcher     // Reads fixtures and whitelisted sources.
	Metrics *Metrics

	// MockOptions are used for the MockFetcher built by LoadTest.
	MockOptions MockFetcherOptions

	// ShutdownTimeout bounds the graceful part of TearDownServer.
	ShutdownTimeout time.Duration

	id           string
	port         int
	proxyAddress string

	mu          sync.RWMutex
	state       MockerState
	whitelist   []string
	mockFetcher *MockFetcher
	server      *http.Server
	served      chan struct{}

	loggerInit sync.Once
}

// NewResponseMocker creates an unbound mocker for port. A zero port means
// DefaultStartPort.
func NewResponseMocker(port int) (*ResponseMocker, error) {
	if port == 0 {
		port = DefaultStartPort
	}
	if err := ValidatePort(port); err != nil {
		return nil, err
	}
	return &ResponseMocker{
		Logger:          defaultLogger(),
		Fetcher:         NewHTTPFetcher(),
		ShutdownTimeout: DefaultShutdownTimeout,
		id:              uuid.NewString(),
		port:            port,
		proxyAddress:    "http://" + net.JoinHostPort(loopbackHost, strconv.Itoa(port)) + "/",
	}, nil
}

func (m *ResponseMocker) logger() interface{} {
	m.loggerInit.Do(func() { checkLogger(m.Logger) })
	return m.Logger
}

// ProxyAddress is the URL engines prefix source URIs with.
func (m *ResponseMocker) ProxyAddress() string { return m.proxyAddress }

func (m *ResponseMocker) Port() int { return m.port }

// ID identifies the mocker in logs.
func (m *ResponseMocker) ID() string { return m.id }

func (m *ResponseMocker) State() MockerState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// LoadSources whitelists the values of every source that is not replayed
// from fixtures. It replaces any previous whitelist.
func (m *ResponseMocker) LoadSources(sources []DataSource) {
	live := filter(sources, func(s DataSource) bool { return !s.Type.Mocked() })
	whitelist := mapTo(live, func(s DataSource) string { return s.Value })

	m.mu.Lock()
	m.whitelist = whitelist // non-nil, so an empty list still counts as loaded
	m.mu.Unlock()
}

// LoadTest points fixture lookup at the mock folder of tc.
func (m *ResponseMocker) LoadTest(tc *TestCase) {
	var mockFolder string
	if tc != nil {
		mockFolder = tc.MockFolder
	}
	fetcher := NewMockFetcher(mockFolder, m.Fetcher, m.MockOptions)

	m.mu.Lock()
	m.mockFetcher = fetcher
	m.mu.Unlock()
}

// IsWhiteListed reports whether some loaded source value starts with prefix.
// It is false until LoadSources has been called, and an empty prefix only
// matches an empty source value.
func (m *ResponseMocker) IsWhiteListed(prefix string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.whitelist == nil {
		return false
	}
	return some(m.whitelist, func(entry string) bool {
		if prefix == "" {
			return entry == ""
		}
		return strings.HasPrefix(entry, prefix)
	})
}

// SetUpServer binds the mocker's port and starts serving. It returns once
// the listener is bound.
func (m *ResponseMocker) SetUpServer(ctx context.Context) error {
	logger := m.logger()

	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case MockerListening:
		return errors.Wrapf(ErrMockerListening, "mocker %s on port %d", m.id, m.port)
	case MockerClosed:
		return errors.Wrapf(ErrMockerClosed, "mocker %s on port %d", m.id, m.port)
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort(loopbackHost, strconv.Itoa(m.port)))
	if err != nil {
		return markAs(errors.Wrapf(err, "bind mocker on port %d", m.port), ErrPortUnavailable)
	}

	m.server = &http.Server{
		Handler:           m,
		ReadHeaderTimeout: 10 * time.Second,
	}
	m.served = make(chan struct{})
	m.state = MockerListening
	m.Metrics.mockerListening()

	go func(server *http.Server, served chan struct{}) {
		defer close(served)
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logError(logger, "mock server stopped", "mocker", m.id, "port", m.port, "error", err)
		}
	}(m.server, m.served)

	logInfo(logger, "mock server listening", "mocker", m.id, "address", m.proxyAddress)
	return nil
}

// TearDownServer stops a listening mocker. In-flight requests may finish
// within ShutdownTimeout, after which remaining connections are closed. On an
// unbound or closed mocker it does nothing.
func (m *ResponseMocker) TearDownServer(ctx context.Context) error {
	logger := m.logger()

	m.mu.Lock()
	if m.state != MockerListening {
		m.mu.Unlock()
		return nil
	}
	server, served := m.server, m.served
	m.state = MockerClosed
	m.mu.Unlock()
	defer m.Metrics.mockerClosed()

	shutdownCtx := ctx
	if m.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(ctx, m.ShutdownTimeout)
		defer cancel()
	}

	var result error
	if err := server.Shutdown(shutdownCtx); err != nil {
		logWarn(logger, "graceful shutdown failed, closing connections", "mocker", m.id, "error", err)
		result = errors.Wrapf(err, "shut down mocker %s", m.id)
		if err := server.Close(); err != nil {
			result = errors.CombineErrors(result, errors.Wrapf(err, "close mocker %s", m.id))
		}
	}
	<-served

	logInfo(logger, "mock server closed", "mocker", m.id, "port", m.port)
	return result
}

// ServeHTTP answers one proxied request. The mocker is its own handler since
// a ServeMux would clean the `//` inside requested URIs.
func (m *ResponseMocker) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	logger := m.logger()
	requestedURI := targetURI(req)

	if m.IsWhiteListed(probeKey(requestedURI)) {
		m.passThrough(w, req, requestedURI)
		return
	}

	body, err := requestBody(req)
	if err != nil {
		m.fail(w, http.StatusBadRequest, outcomeError, requestedURI, errors.Wrap(err, "read request body"))
		return
	}

	m.mu.RLock()
	mockFetcher := m.mockFetcher
	m.mu.RUnlock()
	if mockFetcher == nil {
		mockFetcher = NewMockFetcher("", m.Fetcher, m.MockOptions)
	}

	mocked, err := mockFetcher.Fetch(req.Context(), requestedURI, RequestMeta{
		Method: req.Method,
		Body:   body,
		Accept: req.Header.Get("Accept"),
	})
	if err != nil {
		if errors.Is(err, ErrFixtureNotFound) {
			m.fail(w, http.StatusNotFound, outcomeNotFound, requestedURI, err)
			return
		}
		m.fail(w, http.StatusInternalServerError, outcomeError, requestedURI, err)
		return
	}

	logDebug(logger, "mocked response", "mocker", m.id, "uri", requestedURI, "fixture", mocked.FixturePath)
	m.Metrics.observeRequest(outcomeMocked)

	w.Header().Set("Content-Type", mocked.ContentType)
	w.Header().Set("Connection", "close")
	w.WriteHeader(http.StatusOK)
	if req.Method != http.MethodHead {
		_, _ = w.Write([]byte(mocked.Body))
	}
}

// passThrough re-issues a whitelisted request against the network. Only
// http(s) targets are forwarded; anything else would be read from local disk.
func (m *ResponseMocker) passThrough(w http.ResponseWriter, req *http.Request, requestedURI string) {
	if u, err := url.Parse(requestedURI); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		m.fail(w, http.StatusNotFound, outcomeNotFound, requestedURI, errors.Newf("whitelisted target %q is not an http(s) URL", requestedURI))
		return
	}

	header := http.Header{}
	if accept := req.Header.Get("Accept"); accept != "" {
		header.Set("Accept", accept)
	}

	resp, err := m.Fetcher.Fetch(req.Context(), requestedURI, header)
	if err != nil {
		m.fail(w, http.StatusBadGateway, outcomeError, requestedURI, errors.Wrap(err, "forward whitelisted request"))
		return
	}

	logDebug(m.logger(), "passed through", "mocker", m.id, "uri", requestedURI, "status", resp.StatusCode)
	m.Metrics.observeRequest(outcomePassthrough)

	for name, values := range resp.Header {
		w.Header()[name] = values
	}
	for _, name := range hopHeaders {
		w.Header().Del(name)
	}
	w.WriteHeader(resp.StatusCode)
	if req.Method != http.MethodHead {
		_, _ = w.Write(resp.Body)
	}
}

func (m *ResponseMocker) fail(w http.ResponseWriter, status int, outcome, requestedURI string, err error) {
	logError(m.logger(), "could not answer request", "mocker", m.id, "uri", requestedURI, "status", status, "error", err)
	m.Metrics.observeRequest(outcome)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Connection", "close")
	w.WriteHeader(status)
	fmt.Fprintf(w, "could not answer %s: %v\n", requestedURI, err)
}

// HTTPClient returns a client routing every request through the mocker.
func (m *ResponseMocker) HTTPClient() *http.Client {
	client := cleanhttp.DefaultClient()
	client.Transport = &proxyRoundTripper{
		proxyAddress: m.proxyAddress,
		transport:    cleanhttp.DefaultTransport(),
	}
	return client
}

// requestBody reads the whole request body. It only takes part in fixture
// identity and is never forwarded.
func requestBody(req *http.Request) (string, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return "", nil
	}
	defer req.Body.Close()

	body, err := io.ReadAll(req.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// targetURI is the request-target without its leading slash. Absolute-form
// targets are taken as they are.
func targetURI(req *http.Request) string {
	target := req.RequestURI
	if target == "" {
		target = req.URL.RequestURI()
	}
	return strings.TrimPrefix(target, "/")
}

// probeKey cuts a requested URI down to its first three `/` separated
// segments.
func probeKey(requestedURI string) string {
	segments := strings.SplitN(requestedURI, "/", whitelistProbeSegments+1)
	if len(segments) > whitelistProbeSegments {
		segments = segments[:whitelistProbeSegments]
	}
	return strings.Join(segments, "/")
}
