/*
The go-ldfmock package runs throwaway HTTP servers that stand in for the data sources of a Linked Data Fragments query engine during conformance tests.
Responses of Triple Pattern Fragments and SPARQL endpoints are replayed from recorded fixtures, so a test gives the same answer every time it runs.
Every other declared source (plain files, HDT, RDF-JS stores) is fetched for real.

# Basics

How does the engine under test reach a mock server ?

Each ResponseMocker listens on its own loopback port and exposes a proxy address of the form:

	http://127.0.0.1:<port>/

The engine prefixes every source URI with it. A request for `http://ex.org/resource` therefore arrives as:

	GET /http://ex.org/resource

For every request the mocker applies this approach:

	=> Cut the requested URI down to its first three segments (scheme://host)
	  => Some non-mocked source starts with it? Fetch the real resource and copy it back
	  => Otherwise?  Answer from the fixture recorded for the request

# Fixtures

A fixture is named by the SHA-1 of the percent-decoded request URI, in lowercase hex, below the mock folder of the test case.
For POST requests the body takes part in the hash, joined to the URI with `@@POST:`:

	sha1("http://ex.org/sparql@@POST:query=ASK{}")

The fixture itself starts with exactly three `#` header entries, followed by the body as it is written back:

	# Query: null
	# Hashed IRI: http://ex.org/resource
	# Content-type: text/turtle
	@prefix ex: <http://ex.org/> . ex:s ex:p ex:o .

What happen when no fixture matches ?

The mocker answers 404 with a message naming both the requested URI and the fixture path it computed. A fixture with a broken header block is answered with 500. A failure is never served as 200.

# Example Usage

Here are the example on how to use the library:

	factory, err := ldfmock.NewMockerFactory(ldfmock.Config{StartPort: 4000})
	if err != nil {
	  panic(err)
	}

	mocker, err := factory.StartMocker(ctx, &ldfmock.TestCase{
	  MockFolder:  "https://fixtures.example/set1",
	  DataSources: []ldfmock.DataSource{{Value: "http://fragments.example/dataset", Type: ldfmock.SourceTypeTPF}},
	})
	if err != nil {
	  panic(err)
	}
	defer mocker.TearDownServer(ctx)

	result, err := engine.QueryLdf(ctx, sources, mocker.ProxyAddress(), query, ldfmock.QueryOptions{})

Parallel test runs must use distinct start ports: two factories left at the default port 3000 may race for the same port.
*/

package ldfmock
