package parser

import (
	"fmt"
	"strings"
)

// fixtureHeaderEntries is the number of `#` header entries every fixture
// starts with: Query, Hashed IRI and Content-type.
const fixtureHeaderEntries = 3

var ErrMalformedFixtureHeader = fmt.Errorf("malformed fixture header")

// Fixture is a recorded response split into its header entries and the raw
// body that follows them.
type Fixture struct {
	Headers map[string]string
	Body    string
}

// ParseFixture splits a fixture document into its header map and body.
//
// A fixture looks like:
//
//	# Query: null
//	# Hashed IRI: http://ex.org/resource
//	# Content-type: text/turtle
//	@prefix ex: <http://ex.org/> . ex:s ex:p ex:o .
//
// Lines are consumed until the third line starting with `#`. A line in the
// header block that does not start with `#` continues the previous entry.
// Everything after the third `#` line is the body, untouched.
func ParseFixture(raw string) (*Fixture, error) {
	lines := strings.Split(raw, "\n")

	hashCount := 0
	consumed := 0
	for consumed < len(lines) && hashCount < fixtureHeaderEntries {
		if strings.HasPrefix(lines[consumed], "#") {
			hashCount++
		}
		consumed++
	}
	if hashCount < fixtureHeaderEntries {
		return nil, fmt.Errorf("%w: expected %d header lines, found %d", ErrMalformedFixtureHeader, fixtureHeaderEntries, hashCount)
	}

	headers, err := parseFixtureHeaders(groupHeaderEntries(lines[:consumed]))
	if err != nil {
		return nil, err
	}

	return &Fixture{
		Headers: headers,
		Body:    strings.Join(lines[consumed:], "\n"),
	}, nil
}

// groupHeaderEntries glues continuation lines onto the entry they follow.
func groupHeaderEntries(lines []string) []string {
	var (
		entries []string
		entry   string
	)
	for _, line := range lines {
		if strings.HasPrefix(line, "#") {
			if len(entry) > 0 {
				entries = append(entries, entry)
			}
			entry = ""
		}
		entry += line
	}
	return append(entries, entry)
}

func parseFixtureHeaders(entries []string) (map[string]string, error) {
	headers := make(map[string]string, len(entries))
	for _, entry := range entries {
		if !strings.Contains(entry, ":") {
			return nil, fmt.Errorf("%w: %q has no key/value separator", ErrMalformedFixtureHeader, entry)
		}

		line := entry
		if len(line) >= 2 {
			line = line[2:] // drop "# "
		}
		sep := strings.Index(line, ":")
		if sep < 0 {
			return nil, fmt.Errorf("%w: %q has no key/value separator", ErrMalformedFixtureHeader, entry)
		}
		headers[strings.TrimSpace(line[:sep])] = strings.TrimSpace(line[sep+1:])
	}
	return headers, nil
}
