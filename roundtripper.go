package ldfmock

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
)

// proxyRoundTripper implements the http.RoundTripper interface, sending every
// request to a mocker as `<proxyAddress><original URL>`, the way engines with
// a static proxy setting address their sources.
//
// WARN: proxyRoundTripper is not intended to be used by outside package, only to support ResponseMocker.HTTPClient
type proxyRoundTripper struct {
	proxyAddress string
	transport    http.RoundTripper
}

// RoundTrip satisfies the http.RoundTripper interface.
func (rt *proxyRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if strings.HasPrefix(req.URL.String(), rt.proxyAddress) {
		return rt.transport.RoundTrip(req)
	}

	target, err := url.Parse(rt.proxyAddress)
	if err != nil {
		// If we got a *url.Error, unwrap it otherwise we will wind up
		// erroneously re-nesting the error.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			return nil, urlErr.Err
		}
		return nil, err
	}

	original := *req.URL
	original.Fragment = ""
	original.RawFragment = ""
	// Opaque is written to the request line as is, so the original URL
	// reaches the mocker unescaped and with its own query string.
	target.Opaque = "/" + original.String()

	proxied := req.Clone(req.Context())
	proxied.URL = target
	proxied.Host = target.Host
	return rt.transport.RoundTrip(proxied)
}
