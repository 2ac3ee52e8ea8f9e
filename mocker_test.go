package ldfmock

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const resourceFixture = `# Query: null
# Hashed IRI: http://ex.org/resource
# Content-type: text/turtle
@prefix ex: <http://ex.org/> . ex:s ex:p ex:o .`

// fixtureHost serves fixtures below /set1 keyed by fixture id.
func fixtureHost(t *testing.T, fixtures map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		content, ok := fixtures[strings.TrimPrefix(r.URL.Path, "/set1/")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, content)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestMocker(t *testing.T, start int) *ResponseMocker {
	t.Helper()
	port, err := NewPortAllocator(start).Allocate(context.Background())
	require.NoError(t, err)

	m, err := NewResponseMocker(port)
	require.NoError(t, err)
	m.Logger = log.New(io.Discard, "", 0)
	m.Fetcher = quietFetcher()
	return m
}

func startTestMocker(t *testing.T, start int, tc *TestCase) *ResponseMocker {
	t.Helper()
	m := newTestMocker(t, start)
	m.LoadSources(tc.DataSources)
	m.LoadTest(tc)
	require.NoError(t, m.SetUpServer(context.Background()))
	t.Cleanup(func() { m.TearDownServer(context.Background()) })
	return m
}

func get(t *testing.T, url, accept string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestNewResponseMocker(t *testing.T) {
	m, err := NewResponseMocker(0)
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:3000/", m.ProxyAddress())
	assert.Equal(t, 3000, m.Port())
	assert.Equal(t, MockerUnbound, m.State())
	assert.NotEmpty(t, m.ID())

	_, err = NewResponseMocker(80)
	assert.True(t, errors.Is(err, ErrInvalidPort))
}

func TestResponseMocker_MockedResponse(t *testing.T) {
	host := fixtureHost(t, map[string]string{
		FixtureID("http://ex.org/resource", http.MethodGet, ""): resourceFixture,
	})
	m := startTestMocker(t, 42000, &TestCase{MockFolder: host.URL + "/set1"})

	resp, body := get(t, m.ProxyAddress()+"http://ex.org/resource", "text/turtle")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/turtle", resp.Header.Get("Content-Type"))
	assert.Equal(t, "@prefix ex: <http://ex.org/> . ex:s ex:p ex:o .", body)
	assert.True(t, resp.Close, "mocked responses disable keep-alive")
}

func TestResponseMocker_MockedPost(t *testing.T) {
	const query = "query=ASK{}"
	host := fixtureHost(t, map[string]string{
		FixtureID("http://ex.org/sparql", http.MethodPost, query): "# Query: ASK{}\n# Hashed IRI: http://ex.org/sparql\n# Content-type: application/sparql-results+json\n{\"boolean\":true}",
	})
	m := startTestMocker(t, 42100, &TestCase{
		MockFolder:  host.URL + "/set1/",
		DataSources: []DataSource{{Value: "http://ex.org/sparql", Type: SourceTypeSPARQL}},
	})

	resp, err := http.Post(m.ProxyAddress()+"http://ex.org/sparql", "application/x-www-form-urlencoded", strings.NewReader(query))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/sparql-results+json", resp.Header.Get("Content-Type"))
	assert.Equal(t, `{"boolean":true}`, string(body))

	// a different body is a different fixture
	resp, err = http.Post(m.ProxyAddress()+"http://ex.org/sparql", "application/x-www-form-urlencoded", strings.NewReader("query=ASK{?s ?p ?o}"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestResponseMocker_FixtureNotFound(t *testing.T) {
	host := fixtureHost(t, nil)
	m := startTestMocker(t, 42200, &TestCase{MockFolder: host.URL + "/set1"})

	resp, body := get(t, m.ProxyAddress()+"http://ex.org/missing", "")

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body, "http://ex.org/missing")
	assert.Contains(t, body, Locate(host.URL+"/set1", "http://ex.org/missing", http.MethodGet, ""))
}

func TestResponseMocker_MalformedFixture(t *testing.T) {
	host := fixtureHost(t, map[string]string{
		FixtureID("http://ex.org/resource", http.MethodGet, ""): "# Query null\n# Hashed IRI: x\n# Content-type: text/turtle\nbody",
	})
	m := startTestMocker(t, 42300, &TestCase{MockFolder: host.URL + "/set1"})

	resp, body := get(t, m.ProxyAddress()+"http://ex.org/resource", "")

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, body, "malformed fixture header")
}

func TestResponseMocker_NoTestLoaded(t *testing.T) {
	m := startTestMocker(t, 42400, &TestCase{})

	resp, _ := get(t, m.ProxyAddress()+"http://ex.org/resource", "")

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestResponseMocker_PassThrough(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/data.ttl" {
			http.Error(w, "gone", http.StatusGone)
			return
		}
		w.Header().Set("Content-Type", "text/turtle")
		w.Header().Set("X-Accept", r.Header.Get("Accept"))
		io.WriteString(w, "<http://real.example/s> <http://real.example/p> \"o\" .")
	}))
	defer upstream.Close()

	m := startTestMocker(t, 42500, &TestCase{
		DataSources: []DataSource{{Value: upstream.URL + "/data.ttl", Type: SourceTypeFile}},
	})
	require.True(t, m.IsWhiteListed(upstream.URL+"/data.ttl"))

	resp, body := get(t, m.ProxyAddress()+upstream.URL+"/data.ttl", "text/turtle")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/turtle", resp.Header.Get("Content-Type"))
	assert.Equal(t, "text/turtle", resp.Header.Get("X-Accept"))
	assert.Equal(t, "<http://real.example/s> <http://real.example/p> \"o\" .", body)

	resp, _ = get(t, m.ProxyAddress()+upstream.URL+"/other", "")
	assert.Equal(t, http.StatusGone, resp.StatusCode)
}

func TestResponseMocker_PassThroughFailure(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	dead := upstream.URL
	upstream.Close()

	m := startTestMocker(t, 42600, &TestCase{
		DataSources: []DataSource{{Value: dead + "/data.ttl", Type: SourceTypeRDFJS}},
	})

	resp, body := get(t, m.ProxyAddress()+dead+"/data.ttl", "")

	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, body, dead+"/data.ttl")
}

func TestResponseMocker_PassThroughStaysOffDisk(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "data"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data", "x.ttl"), []byte("<s> <p> <o> ."), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "secret.txt"), []byte("top secret"), 0o600))

	tests := []struct {
		name   string
		source string
		target string
	}{
		{"plain path", dir + "/data/x.ttl", "/" + dir + "/data/../secret.txt"},
		{"file uri", "file://" + dir + "/data/x.ttl", "/file://" + dir + "/data/../secret.txt"},
		{"whitelisted file itself", dir + "/data/x.ttl", "/" + dir + "/data/x.ttl"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMocker(t, 43100)
			m.LoadSources([]DataSource{{Value: tt.source, Type: SourceTypeFile}})
			require.True(t, m.IsWhiteListed(probeKey(strings.TrimPrefix(tt.target, "/"))))

			rec := httptest.NewRecorder()
			m.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.target, nil))

			assert.Equal(t, http.StatusNotFound, rec.Code)
			assert.NotContains(t, rec.Body.String(), "top secret")
			assert.NotContains(t, rec.Body.String(), "<s> <p> <o> .")
		})
	}
}

func TestResponseMocker_HTTPClient(t *testing.T) {
	host := fixtureHost(t, map[string]string{
		FixtureID("http://ex.org/resource", http.MethodGet, ""): resourceFixture,
	})
	m := startTestMocker(t, 42700, &TestCase{MockFolder: host.URL + "/set1"})

	resp, err := m.HTTPClient().Get("http://ex.org/resource")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "@prefix ex: <http://ex.org/> . ex:s ex:p ex:o .", string(body))
}

func TestResponseMocker_Lifecycle(t *testing.T) {
	ctx := context.Background()
	m := newTestMocker(t, 42800)

	// teardown before setup is a no-op
	require.NoError(t, m.TearDownServer(ctx))
	require.NoError(t, m.TearDownServer(ctx))
	assert.Equal(t, MockerUnbound, m.State())

	require.NoError(t, m.SetUpServer(ctx))
	assert.Equal(t, MockerListening, m.State())

	err := m.SetUpServer(ctx)
	assert.True(t, errors.Is(err, ErrMockerListening), "got %v", err)

	require.NoError(t, m.TearDownServer(ctx))
	assert.Equal(t, MockerClosed, m.State())
	require.NoError(t, m.TearDownServer(ctx))
	require.NoError(t, m.TearDownServer(ctx))

	err = m.SetUpServer(ctx)
	assert.True(t, errors.Is(err, ErrMockerClosed), "got %v", err)
	assert.True(t, errors.Is(err, MockerError))

	_, err = http.Get(m.ProxyAddress())
	assert.Error(t, err, "closed mocker still accepts connections")
}

func TestResponseMocker_PortTaken(t *testing.T) {
	busy := occupyPort(t, 42900)
	m, err := NewResponseMocker(busy)
	require.NoError(t, err)
	m.Logger = nil

	err = m.SetUpServer(context.Background())

	assert.True(t, errors.Is(err, ErrPortUnavailable), "got %v", err)
	assert.True(t, errors.Is(err, syscall.EADDRINUSE), "got %v", err)
	assert.Equal(t, MockerUnbound, m.State())
}

func TestResponseMocker_IsWhiteListed(t *testing.T) {
	m, err := NewResponseMocker(0)
	require.NoError(t, err)

	assert.False(t, m.IsWhiteListed("http://real.example"), "nothing loaded yet")

	m.LoadSources([]DataSource{
		{Value: "http://real.example/data.ttl", Type: SourceTypeFile},
		{Value: "http://rdfjs.example/store", Type: SourceTypeRDFJS},
		{Value: "http://fragments.example/dataset", Type: SourceTypeTPF},
		{Value: "http://sparql.example/sparql", Type: SourceTypeSPARQL},
	})

	tests := []struct {
		prefix string
		want   bool
	}{
		{"http://real.example/data.ttl", true},
		{"http://real.example", true},
		{"http:/", true},
		{"http://rdfjs.example", true},
		{"http://real.example/data.ttl/more", false},
		{"http://fragments.example", false},
		{"http://sparql.example", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			assert.Equal(t, tt.want, m.IsWhiteListed(tt.prefix))
		})
	}

	m.LoadSources(nil)
	assert.False(t, m.IsWhiteListed("http://real.example"))

	m.LoadSources([]DataSource{{Value: "", Type: SourceTypeFile}})
	assert.True(t, m.IsWhiteListed(""))
}

func TestResponseMocker_Metrics(t *testing.T) {
	metrics, err := NewMetrics(nil)
	require.NoError(t, err)

	host := fixtureHost(t, map[string]string{
		FixtureID("http://ex.org/resource", http.MethodGet, ""): resourceFixture,
	})
	m := newTestMocker(t, 43000)
	m.Metrics = metrics
	m.LoadTest(&TestCase{MockFolder: host.URL + "/set1"})
	require.NoError(t, m.SetUpServer(context.Background()))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.listeningMockers))

	get(t, m.ProxyAddress()+"http://ex.org/resource", "")
	get(t, m.ProxyAddress()+"http://ex.org/resource", "")
	get(t, m.ProxyAddress()+"http://ex.org/missing", "")

	require.NoError(t, m.TearDownServer(context.Background()))

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.requestsTotal.WithLabelValues(outcomeMocked)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.requestsTotal.WithLabelValues(outcomeNotFound)))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.listeningMockers))
}

func TestProbeKey(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"http://ex.org/resource/deep", "http://ex.org"},
		{"http://ex.org", "http://ex.org"},
		{"http://ex.org/", "http://ex.org"},
		{"resource", "resource"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			assert.Equal(t, tt.want, probeKey(tt.uri))
		})
	}
}

func TestRequestBody(t *testing.T) {
	tests := []struct {
		name string
		req  *http.Request
		want string
	}{
		{"form post", httptest.NewRequest(http.MethodPost, "/http://ex.org/sparql", strings.NewReader("query=ASK{}")), "query=ASK{}"},
		{"no body", httptest.NewRequest(http.MethodGet, "/http://ex.org/resource", nil), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := requestBody(tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, body)
		})
	}
}

func TestTargetURI(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/http://ex.org/resource?page=2", nil)
	assert.Equal(t, "http://ex.org/resource?page=2", targetURI(req))

	req = httptest.NewRequest(http.MethodGet, "http://ex.org/resource", nil)
	assert.Equal(t, "http://ex.org/resource", targetURI(req))
}
