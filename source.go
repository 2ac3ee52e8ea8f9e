package ldfmock

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
)

// Source types as engines name them.
const (
	EngineSourceTPF    = ""
	EngineSourceFile   = "file"
	EngineSourceSPARQL = "sparql"
	EngineSourceHDT    = "hdtFile"
	EngineSourceRDFJS  = "rdfjsSource"
)

// Source is a data source in the form an engine queries it.
type Source struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// MapSources translates test case sources into engine sources. HDT and RDFJS
// sources are downloaded into tmpDir first and handed over as local paths;
// parsing them is left to the engine. A file already present in tmpDir is
// not downloaded again.
func MapSources(ctx context.Context, sources []DataSource, fetcher Fetcher, tmpDir string) ([]Source, error) {
	mapped := make([]Source, 0, len(sources))
	for _, source := range sources {
		var (
			s   = Source{Value: source.Value}
			err error
		)
		switch source.Type {
		case SourceTypeTPF:
			s.Type = EngineSourceTPF
		case SourceTypeFile:
			s.Type = EngineSourceFile
		case SourceTypeSPARQL:
			s.Type = EngineSourceSPARQL
		case SourceTypeHDT:
			s.Type = EngineSourceHDT
			s.Value, err = download(ctx, fetcher, source.Value, tmpDir)
		case SourceTypeRDFJS:
			s.Type = EngineSourceRDFJS
			s.Value, err = download(ctx, fetcher, source.Value, tmpDir)
		default:
			return nil, errors.Wrapf(ErrUnknownSourceType, "source %s has type %d", source.Value, source.Type)
		}
		if err != nil {
			return nil, err
		}
		mapped = append(mapped, s)
	}
	return mapped, nil
}

// download stores uri below dir. The file is named by the hash of uri,
// followed by its last path segment so engines still see the extension.
func download(ctx context.Context, fetcher Fetcher, uri, dir string) (string, error) {
	path := filepath.Join(dir, downloadName(uri))
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	resp, err := fetcher.Fetch(ctx, uri, nil)
	if err != nil {
		return "", errors.Wrapf(err, "download %s", uri)
	}
	if resp.StatusCode != http.StatusOK {
		return "", errors.Newf("download %s: status %d", uri, resp.StatusCode)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "create %s", dir)
	}
	if err := os.WriteFile(path, resp.Body, 0o644); err != nil {
		return "", errors.Wrapf(err, "store %s", uri)
	}
	return path, nil
}

func downloadName(uri string) string {
	name := FixtureID(uri, http.MethodGet, "")
	if base := uri[strings.LastIndex(uri, "/")+1:]; base != "" {
		name += "-" + base
	}
	return name
}
