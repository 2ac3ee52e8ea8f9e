package ldfmock

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// QueryOptions are passed through to the engine with every query.
type QueryOptions struct {
	BaseIRI string
}

// Engine is the query engine under test. It must send every request for a
// source through proxyAddress.
type Engine interface {
	QueryLdf(ctx context.Context, sources []Source, proxyAddress, query string, opts QueryOptions) (QueryResult, error)
}

// Evaluate runs tc against engine behind a fresh mocker and compares the
// outcome with the expected result. It returns how long the query took.
//
// The mocker is torn down on every path. Teardown failures are logged and
// never replace the test's own outcome.
func Evaluate(ctx context.Context, factory *MockerFactory, engine Engine, tc *TestCase) (time.Duration, error) {
	m, err := factory.StartMocker(ctx, tc)
	if err != nil {
		return 0, errors.Wrapf(err, "start mocker for %s", tc.URI)
	}
	defer tearDown(ctx, factory.Logger, m)
	logInfo(factory.Logger, "run test", "test", tc.URI, "mocker", m.ID(), "proxy", m.ProxyAddress())

	tmpDir, err := os.MkdirTemp("", "ldfmock-")
	if err != nil {
		return 0, errors.Wrap(err, "create source folder")
	}
	defer os.RemoveAll(tmpDir)

	sources, err := MapSources(ctx, tc.DataSources, factory.Fetcher, tmpDir)
	if err != nil {
		return 0, errors.Wrapf(err, "map sources of %s", tc.URI)
	}

	start := time.Now()
	result, err := engine.QueryLdf(ctx, sources, m.ProxyAddress(), tc.QueryString, QueryOptions{BaseIRI: tc.BaseIRI})
	duration := time.Since(start)
	if err != nil {
		return duration, errors.Wrapf(err, "query %s", tc.URI)
	}

	// the engine may still have background requests in flight
	if delay := factory.ServerTerminationDelay(); delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
		}
	}

	if tc.QueryResult == nil || !tc.QueryResult.Equals(result) {
		return duration, errors.Wrapf(ErrInvalidQueryEvaluation,
			"\n  Query: %s\n  Data: %s\n  Result Source: %s\n  Expected:\n%s\n  Got:\n%s\n",
			tc.QueryString, describeSources(tc.DataSources), resultSourceURL(tc), describeResult(tc.QueryResult), describeResult(result))
	}
	return duration, nil
}

func tearDown(ctx context.Context, logger interface{}, m *ResponseMocker) {
	if err := m.TearDownServer(context.WithoutCancel(ctx)); err != nil {
		logWarn(logger, "tear down failed", "mocker", m.ID(), "error", err)
	}
}

func describeSources(sources []DataSource) string {
	if len(sources) == 0 {
		return "none"
	}
	return strings.Join(mapTo(sources, func(s DataSource) string {
		return s.Value + " (" + s.Type.String() + ")"
	}), ", ")
}

func describeResult(r QueryResult) string {
	if r == nil {
		return "none"
	}
	return r.String()
}

func resultSourceURL(tc *TestCase) string {
	if tc.ResultSource == nil {
		return "none"
	}
	return tc.ResultSource.URL
}
