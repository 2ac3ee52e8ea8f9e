package ldfmock

import (
	"crypto/sha1"
	"encoding/hex"
	"net/http"
	"net/url"
	"strings"
)

// postBodySeparator joins a POST body onto the request URI before hashing,
// so SPARQL queries sent in the body take part in fixture identity.
const postBodySeparator = "@@POST:"

// Locator maps requests onto fixture paths below a mock folder.
type Locator struct {
	// Suffix is appended to every fixture path. Empty in the canonical naming
	// convention, where the fixture is named by the bare hash.
	Suffix string
}

// Locate is Locator{}.Locate.
func Locate(mockFolderBase, requestURI, method, body string) string {
	return Locator{}.Locate(mockFolderBase, requestURI, method, body)
}

// Locate returns `<mockFolderBase>/<sha1 hex><suffix>`. The hash covers the
// percent-decoded request URI, followed by "@@POST:" and the body for POST
// requests. Identical requests always land on the same path.
func (l Locator) Locate(mockFolderBase, requestURI, method, body string) string {
	return strings.TrimSuffix(mockFolderBase, "/") + "/" + FixtureID(requestURI, method, body) + l.Suffix
}

// FixtureID is the content hash naming the fixture of a request.
func FixtureID(requestURI, method, body string) string {
	effective := requestURI
	if method == http.MethodPost {
		effective += postBodySeparator + body
	}

	decoded, err := url.PathUnescape(effective)
	if err != nil {
		// invalid escapes are hashed as sent
		decoded = effective
	}

	sum := sha1.Sum([]byte(decoded))
	return hex.EncodeToString(sum[:])
}
