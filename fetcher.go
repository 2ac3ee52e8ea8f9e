package ldfmock

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-cleanhttp"
	"golang.org/x/sync/singleflight"
)

// Fetcher retrieves a resource by URI. It backs both fixture lookup and
// pass-through of whitelisted sources.
type Fetcher interface {
	Fetch(ctx context.Context, uri string, header http.Header) (*FetchResponse, error)
}

// RequestLogHook allows a function to run before each HTTP request.
type RequestLogHook func(Logger, *http.Request)

// ResponseLogHook allows a function to run after each HTTP response. The
// response body has already been consumed.
type ResponseLogHook func(Logger, *http.Response)

// HTTPFetcher fetches http(s) resources with a pooled client and reads
// file:// URIs or plain paths from disk. Responses are shared between callers
// when caching is on and must not be modified.
type HTTPFetcher struct {
	HTTPClient *http.Client // Internal HTTP client.
	Logger     interface{}  // Customer logger instance. Can be either Logger or LeveledLogger

	// RequestLogHook allows a user-supplied function to be called
	// before each HTTP request.
	RequestLogHook RequestLogHook

	// ResponseLogHook allows a user-supplied function to be called
	// with the response from each HTTP request executed.
	ResponseLogHook ResponseLogHook

	// Cache keeps every 200 response in memory, keyed by URI and Accept.
	Cache bool

	mu    sync.RWMutex
	cache map[string]*FetchResponse
	group singleflight.Group

	loggerInit sync.Once
	clientInit sync.Once
}

// NewHTTPFetcher creates a new HTTPFetcher with default settings.
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{
		HTTPClient: cleanhttp.DefaultPooledClient(),
		Logger:     defaultLogger(),
	}
}

func (f *HTTPFetcher) logger() interface{} {
	f.loggerInit.Do(func() { checkLogger(f.Logger) })
	return f.Logger
}

// Fetch retrieves uri. Non-2xx statuses are returned as responses, not errors.
func (f *HTTPFetcher) Fetch(ctx context.Context, uri string, header http.Header) (*FetchResponse, error) {
	if !f.Cache {
		return f.fetch(ctx, uri, header)
	}

	key := uri + "\x00" + header.Get("Accept")
	f.mu.RLock()
	cached, ok := f.cache[key]
	f.mu.RUnlock()
	if ok {
		logDebug(f.logger(), "fetch cache hit", "uri", uri)
		return cached, nil
	}

	// The shared fetch ignores cancellation by the caller that started it.
	// Each caller still stops waiting when its own ctx is done.
	ch := f.group.DoChan(key, func() (interface{}, error) {
		sharedCtx, cancel := detach(ctx)
		defer cancel()

		resp, err := f.fetch(sharedCtx, uri, header)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusOK {
			f.mu.Lock()
			if f.cache == nil {
				f.cache = make(map[string]*FetchResponse)
			}
			f.cache[key] = resp
			f.mu.Unlock()
		}
		return resp, nil
	})

	select {
	case <-ctx.Done():
		return nil, errors.Wrapf(ctx.Err(), "fetch %s", uri)
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*FetchResponse), nil
	}
}

// detach drops the cancellation of ctx but keeps its deadline and values.
func detach(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if deadline, ok := ctx.Deadline(); ok {
		return context.WithDeadline(detached, deadline)
	}
	return detached, func() {}
}

func (f *HTTPFetcher) fetch(ctx context.Context, uri string, header http.Header) (*FetchResponse, error) {
	u, err := url.Parse(uri)
	if err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return f.fetchHTTP(ctx, uri, header)
	}

	path := uri
	if err == nil && u.Scheme == "file" {
		path = u.Path
	}
	return readFile(path)
}

func (f *HTTPFetcher) fetchHTTP(ctx context.Context, uri string, header http.Header) (*FetchResponse, error) {
	f.clientInit.Do(func() {
		if f.HTTPClient == nil {
			f.HTTPClient = cleanhttp.DefaultPooledClient()
		}
	})
	logger := f.logger()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "build request for %s", uri)
	}
	for name, values := range header {
		req.Header[name] = values
	}

	logDebug(logger, "performing request", "method", req.Method, "url", uri)
	if f.RequestLogHook != nil {
		f.RequestLogHook(hookLogger(logger), req)
	}

	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		logError(logger, "request failed", "error", err, "method", req.Method, "url", uri)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "read body of %s", uri)
	}
	if f.ResponseLogHook != nil {
		f.ResponseLogHook(hookLogger(logger), resp)
	}

	return &FetchResponse{
		URL:        resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

func readFile(path string) (*FetchResponse, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return &FetchResponse{
		URL:        path,
		StatusCode: http.StatusOK,
		Header:     http.Header{},
		Body:       body,
	}, nil
}

// hookLogger adapts a LeveledLogger to Logger for use by the hooks.
func hookLogger(logger interface{}) Logger {
	switch v := logger.(type) {
	case Logger:
		return v
	case LeveledLogger:
		return leveledPrintf{v}
	}
	return nil
}

type leveledPrintf struct {
	LeveledLogger
}

func (l leveledPrintf) Printf(format string, args ...interface{}) {
	l.Info(fmt.Sprintf(format, args...))
}
