package ldfmock

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/William9923/go-ldfmock/parser"
	"github.com/cockroachdb/errors"
)

// MockFetcherOptions tune fixture lookup.
type MockFetcherOptions struct {
	// Suffix is appended to the canonical fixture path.
	Suffix string

	// NegotiateSuffix makes the fetcher try one fixture path per media type
	// of the request's Accept header, most preferred first, before the
	// canonical path.
	NegotiateSuffix   bool
	SuffixByMediaType map[string]string

	FetchTimeout time.Duration
}

// MockFetcher resolves requests onto the recorded fixtures of one test.
type MockFetcher struct {
	mockFolder string
	fetcher    Fetcher
	opts       MockFetcherOptions
}

// NewMockFetcher creates a MockFetcher reading fixtures below mockFolder
// through fetcher.
func NewMockFetcher(mockFolder string, fetcher Fetcher, opts MockFetcherOptions) *MockFetcher {
	if opts.SuffixByMediaType == nil {
		opts.SuffixByMediaType = DefaultSuffixByMediaType()
	}
	return &MockFetcher{
		mockFolder: mockFolder,
		fetcher:    fetcher,
		opts:       opts,
	}
}

// CandidatePaths lists the fixture paths tried for a request, in order.
func (f *MockFetcher) CandidatePaths(requestURI string, meta RequestMeta) []string {
	var paths []string
	if f.opts.NegotiateSuffix {
		for _, suffix := range suffixCandidates(meta.Accept, f.opts.SuffixByMediaType) {
			paths = append(paths, Locator{Suffix: suffix}.Locate(f.mockFolder, requestURI, meta.Method, meta.Body))
		}
	}
	paths = append(paths, Locator{Suffix: f.opts.Suffix}.Locate(f.mockFolder, requestURI, meta.Method, meta.Body))
	return unique(paths)
}

// Fetch returns the mocked response recorded for requestURI. The first
// candidate path answering 200 is decoded; a malformed fixture fails right
// away instead of falling through to the next candidate.
func (f *MockFetcher) Fetch(ctx context.Context, requestURI string, meta RequestMeta) (*MockedResponse, error) {
	if f.mockFolder == "" {
		return nil, errors.Wrapf(ErrFixtureNotFound, "no mock folder configured for %s", requestURI)
	}

	var failures []string
	for _, path := range f.CandidatePaths(requestURI, meta) {
		resp, err := f.fetchFixture(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				return nil, errors.Wrapf(ctx.Err(), "fetch fixture %s for %s", path, requestURI)
			}
			failures = append(failures, fmt.Sprintf("%s: %v", path, err))
			continue
		}
		if resp.StatusCode != http.StatusOK {
			failures = append(failures, fmt.Sprintf("%s: status %d", path, resp.StatusCode))
			continue
		}

		fixture, err := parser.ParseFixture(string(resp.Body))
		if err != nil {
			return nil, markAs(errors.Wrapf(err, "fixture %s for %s", path, requestURI), ErrMalformedFixtureHeader)
		}
		return &MockedResponse{
			Body:        fixture.Body,
			ContentType: fixture.Headers["Content-type"],
			IRI:         fixture.Headers["Hashed IRI"],
			Query:       fixture.Headers["Query"],
			FixturePath: path,
		}, nil
	}

	return nil, errors.Wrapf(ErrFixtureNotFound, "no fixture for %s (tried %s)", requestURI, strings.Join(failures, "; "))
}

func (f *MockFetcher) fetchFixture(ctx context.Context, path string) (*FetchResponse, error) {
	if f.opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.opts.FetchTimeout)
		defer cancel()
	}
	return f.fetcher.Fetch(ctx, path, nil)
}
