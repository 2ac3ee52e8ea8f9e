package ldfmock

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sparqlEngine posts the query to its first source through the proxy, the
// way an engine with a static proxy would.
type sparqlEngine struct {
	mu           sync.Mutex
	sources      []Source
	proxyAddress string
	err          error
}

func (e *sparqlEngine) QueryLdf(ctx context.Context, sources []Source, proxyAddress, query string, _ QueryOptions) (QueryResult, error) {
	e.mu.Lock()
	e.sources = sources
	e.proxyAddress = proxyAddress
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}

	form := url.Values{"query": {query}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, proxyAddress+sources[0].Value, strings.NewReader(form))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/sparql-results+json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("status %d: %s", resp.StatusCode, body)
	}
	return ParseQueryResult(resp.Header.Get("Content-Type"), body)
}

const askQuery = "ASK { ?s ?p ?o }"

func askFixtures(answer string) map[string]string {
	form := url.Values{"query": {askQuery}}.Encode()
	return map[string]string{
		FixtureID("http://sparql.example/sparql", http.MethodPost, form): "# Query: " + askQuery +
			"\n# Hashed IRI: http://sparql.example/sparql\n# Content-type: application/sparql-results+json\n" +
			`{"head": {}, "boolean": ` + answer + `}`,
	}
}

func askTestCase(t *testing.T, mockFolder, expected string) *TestCase {
	t.Helper()
	result, err := ParseQueryResult("application/sparql-results+json", []byte(`{"head": {}, "boolean": `+expected+`}`))
	require.NoError(t, err)
	return &TestCase{
		URI:         "http://ex.org/manifest#ask",
		Name:        "ask over sparql",
		QueryString: askQuery,
		DataSources: []DataSource{{Value: "http://sparql.example/sparql", Type: SourceTypeSPARQL}},
		QueryResult: result,
		MockFolder:  mockFolder,
	}
}

func TestEvaluate(t *testing.T) {
	host := fixtureHost(t, askFixtures("true"))
	metrics, err := NewMetrics(nil)
	require.NoError(t, err)
	f := newTestFactory(t, Config{StartPort: 44000, ServerTerminationDelay: 10 * time.Millisecond}, WithMetrics(metrics))
	engine := &sparqlEngine{}

	duration, err := Evaluate(context.Background(), f, engine, askTestCase(t, host.URL+"/set1", "true"))

	require.NoError(t, err)
	assert.GreaterOrEqual(t, duration, time.Duration(0))
	assert.Equal(t, []Source{{Type: "sparql", Value: "http://sparql.example/sparql"}}, engine.sources)
	assert.True(t, strings.HasPrefix(engine.proxyAddress, "http://127.0.0.1:"))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.listeningMockers), "mocker torn down")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.requestsTotal.WithLabelValues(outcomeMocked)))
}

func TestEvaluate_WrongResult(t *testing.T) {
	host := fixtureHost(t, askFixtures("true"))
	f := newTestFactory(t, Config{StartPort: 44100})

	_, err := Evaluate(context.Background(), f, &sparqlEngine{}, askTestCase(t, host.URL+"/set1", "false"))

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidQueryEvaluation), "got %v", err)
	assert.Contains(t, err.Error(), askQuery)
	assert.Contains(t, err.Error(), "http://sparql.example/sparql (SPARQL)")
}

func TestEvaluate_EngineFailure(t *testing.T) {
	metrics, err := NewMetrics(nil)
	require.NoError(t, err)
	f := newTestFactory(t, Config{StartPort: 44200}, WithMetrics(metrics))

	_, err = Evaluate(context.Background(), f, &sparqlEngine{err: errors.New("engine crashed")}, askTestCase(t, "", "true"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine crashed")
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.listeningMockers), "mocker torn down")
}

func TestEvaluate_MissingFixture(t *testing.T) {
	host := fixtureHost(t, nil)
	f := newTestFactory(t, Config{StartPort: 44300})

	_, err := Evaluate(context.Background(), f, &sparqlEngine{}, askTestCase(t, host.URL+"/set1", "true"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
	assert.Contains(t, err.Error(), "http://sparql.example/sparql")
}

func TestEvaluate_UnknownSourceType(t *testing.T) {
	f := newTestFactory(t, Config{StartPort: 44400})
	tc := askTestCase(t, "", "true")
	tc.DataSources = []DataSource{{Value: "http://ex.org/", Type: SourceType(42)}}

	_, err := Evaluate(context.Background(), f, &sparqlEngine{}, tc)

	assert.True(t, errors.Is(err, ErrUnknownSourceType), "got %v", err)
}
