package ldfmock

import (
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
)

// SourceType tags the kind of a declared data source.
type SourceType int

const (
	SourceTypeTPF SourceType = iota + 1
	SourceTypeFile
	SourceTypeSPARQL
	SourceTypeHDT
	SourceTypeRDFJS
)

// SourceTypeNamespace prefixes the source type terms of test manifests.
const SourceTypeNamespace = "https://comunica.github.io/ontology-query-testing/ontology-query-testing.ttl#"

var sourceTypeNames = map[SourceType]string{
	SourceTypeTPF:    "TPF",
	SourceTypeFile:   "File",
	SourceTypeSPARQL: "SPARQL",
	SourceTypeHDT:    "HDT",
	SourceTypeRDFJS:  "RDFJS",
}

func (t SourceType) String() string {
	if name, ok := sourceTypeNames[t]; ok {
		return name
	}
	return "Unknown"
}

// URI returns the manifest term identifying the source type.
func (t SourceType) URI() string {
	return SourceTypeNamespace + t.String()
}

// Mocked reports whether traffic to this kind of source is replayed from
// fixtures instead of reaching the real network.
func (t SourceType) Mocked() bool {
	return t == SourceTypeTPF || t == SourceTypeSPARQL
}

// ParseSourceType resolves a manifest source type term. Only the fragment
// after '#' is significant, so bare names such as "TPF" are accepted too.
func ParseSourceType(uri string) (SourceType, error) {
	name := uri
	if idx := strings.LastIndex(uri, "#"); idx >= 0 {
		name = uri[idx+1:]
	}
	for t, n := range sourceTypeNames {
		if n == name {
			return t, nil
		}
	}
	return 0, errors.Wrapf(ErrUnknownSourceType, "%q", uri)
}

// DataSource is one source a test case queries over.
type DataSource struct {
	Value string
	Type  SourceType
}

// TestCase is a single query evaluation test as translated from a manifest.
type TestCase struct {
	URI          string
	Name         string
	QueryString  string
	BaseIRI      string
	DataSources  []DataSource
	QueryResult  QueryResult
	ResultSource *FetchResponse
	// MockFolder is the base URI of the fixtures for this test. Empty when
	// the test does not rely on recorded responses.
	MockFolder string
}

// MockedResponse is a fixture reduced to what the mocker writes back.
type MockedResponse struct {
	Body        string
	ContentType string
	IRI         string
	Query       string
	FixturePath string
}

// RequestMeta carries the parts of an inbound request that take part in
// fixture lookup.
type RequestMeta struct {
	Method string
	Body   string
	Accept string
}

// FetchResponse is the outcome of a Fetcher call.
type FetchResponse struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}
