package ldfmock

import (
	"sort"
	"strconv"
	"strings"
)

// DefaultSuffixByMediaType maps the media types engines ask for onto the
// suffixes fixture recorders use for them.
func DefaultSuffixByMediaType() map[string]string {
	return map[string]string{
		"text/turtle":                     ".ttl",
		"application/trig":                ".trig",
		"application/n-triples":           ".nt",
		"application/n-quads":             ".nq",
		"application/ld+json":             ".jsonld",
		"application/sparql-results+json": ".srj",
		"application/sparql-results+xml":  ".srx",
	}
}

type mediaRange struct {
	mediaType string
	q         float64
}

// parseAccept returns the media types of an Accept header by descending
// preference. Ranges with q=0 are dropped; ties keep header order.
func parseAccept(accept string) []string {
	var ranges []mediaRange
	for _, part := range strings.Split(accept, ",") {
		fields := strings.Split(part, ";")
		mediaType := strings.ToLower(strings.TrimSpace(fields[0]))
		if mediaType == "" {
			continue
		}

		q := 1.0
		for _, param := range fields[1:] {
			key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
			if !ok || strings.TrimSpace(key) != "q" {
				continue
			}
			if parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
				q = parsed
			}
		}
		if q <= 0 {
			continue
		}
		ranges = append(ranges, mediaRange{mediaType: mediaType, q: q})
	}

	sort.SliceStable(ranges, func(i, j int) bool { return ranges[i].q > ranges[j].q })
	return mapTo(ranges, func(r mediaRange) string { return r.mediaType })
}

// suffixCandidates lists the fixture suffixes to try for an Accept header, in
// preference order. Media types without a known suffix are skipped.
func suffixCandidates(accept string, table map[string]string) []string {
	var suffixes []string
	for _, mediaType := range parseAccept(accept) {
		if suffix, ok := table[mediaType]; ok {
			suffixes = append(suffixes, suffix)
		}
	}
	return unique(suffixes)
}
