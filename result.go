package ldfmock

import (
	"context"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/William9923/go-ldfmock/parser"
	"github.com/cockroachdb/errors"
)

// QueryResult is what a query evaluated to, expected or actual.
type QueryResult interface {
	Equals(other QueryResult) bool
	String() string
}

// SPARQLResult is a boolean or bindings query result. Bindings compare
// without regard to order.
type SPARQLResult struct {
	Results *parser.SPARQLResults
}

func (r *SPARQLResult) Equals(other QueryResult) bool {
	o, ok := other.(*SPARQLResult)
	if !ok || o == nil {
		return false
	}
	return r.Results.Equal(o.Results)
}

func (r *SPARQLResult) String() string {
	return r.Results.String()
}

var resultSuffixes = map[string]string{
	".srj":  "application/sparql-results+json",
	".srx":  "application/sparql-results+xml",
	".json": "application/sparql-results+json",
	".xml":  "application/sparql-results+xml",
}

// ParseQueryResult reads a SPARQL JSON or XML results document. RDF results
// are not handled here.
func ParseQueryResult(contentType string, body []byte) (QueryResult, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}

	var results *parser.SPARQLResults
	switch mediaType {
	case "application/sparql-results+json", "application/json":
		results, err = parser.ParseSPARQLJSON(body)
	case "application/sparql-results+xml", "application/xml", "text/xml":
		results, err = parser.ParseSPARQLXML(body)
	default:
		return nil, errors.Wrapf(ErrUnsupportedContentType, "%q", contentType)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s result", mediaType)
	}
	return &SPARQLResult{Results: results}, nil
}

// LoadQueryResult fetches and parses the expected result of a test. The
// content type comes from the response, or from the file suffix when the
// response has none.
func LoadQueryResult(ctx context.Context, fetcher Fetcher, uri string) (QueryResult, *FetchResponse, error) {
	resp, err := fetcher.Fetch(ctx, uri, http.Header{"Accept": {"application/sparql-results+json, application/sparql-results+xml;q=0.9"}})
	if err != nil {
		return nil, nil, errors.Wrapf(err, "fetch result %s", uri)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resp, errors.Newf("fetch result %s: status %d", uri, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if mediaType, ok := resultSuffixes[path.Ext(uri)]; ok && (contentType == "" || strings.HasPrefix(contentType, "text/plain")) {
		contentType = mediaType
	}

	result, err := ParseQueryResult(contentType, resp.Body)
	if err != nil {
		return nil, resp, errors.Wrapf(err, "result %s", uri)
	}
	return result, resp, nil
}
