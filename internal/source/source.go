// Package source loads facility GeoJSON datasets from the data directory or
// over HTTP. Every call fetches fresh; nothing is cached or retried.
package source

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// maxBody caps a single dataset download.
const maxBody = 256 << 20

// FileLoader reads datasets relative to a root directory.
type FileLoader struct {
	Root string
}

// Load reads and parses the GeoJSON file at location.
func (l FileLoader) Load(ctx context.Context, location string) (*geojson.FeatureCollection, error) {
	path, err := l.resolve(location)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "source: load cancelled")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "source: read %s", location)
	}
	return parse(data, location)
}

func (l FileLoader) resolve(location string) (string, error) {
	if location == "" {
		return "", eris.New("source: empty location")
	}
	clean := filepath.Clean(filepath.FromSlash(location))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", eris.Errorf("source: location %q escapes the data directory", location)
	}
	return filepath.Join(l.Root, clean), nil
}

// HTTPLoader fetches datasets over HTTP(S).
type HTTPLoader struct {
	Client    *http.Client
	UserAgent string
}

// NewHTTPLoader creates an HTTP loader with a bounded client timeout.
func NewHTTPLoader(userAgent string) *HTTPLoader {
	return &HTTPLoader{
		Client:    &http.Client{Timeout: 60 * time.Second},
		UserAgent: userAgent,
	}
}

// Load downloads and parses the GeoJSON document at url.
func (l *HTTPLoader) Load(ctx context.Context, url string) (*geojson.FeatureCollection, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrap(err, "source: create request")
	}
	req.Header.Set("Accept", "application/geo+json, application/json")
	if l.UserAgent != "" {
		req.Header.Set("User-Agent", l.UserAgent)
	}

	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "source: fetch %s", url)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, eris.Errorf("source: %s returned %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, eris.Wrapf(err, "source: read body of %s", url)
	}
	return parse(data, url)
}

// Mux dispatches http(s) locations to HTTP and everything else to files.
type Mux struct {
	Files FileLoader
	HTTP  *HTTPLoader
}

// NewMux creates a loader rooted at dataDir.
func NewMux(dataDir, userAgent string) *Mux {
	return &Mux{
		Files: FileLoader{Root: dataDir},
		HTTP:  NewHTTPLoader(userAgent),
	}
}

// Load implements facility.Loader.
func (m *Mux) Load(ctx context.Context, location string) (*geojson.FeatureCollection, error) {
	start := time.Now()
	var (
		fc  *geojson.FeatureCollection
		err error
	)
	if IsRemote(location) {
		fc, err = m.HTTP.Load(ctx, location)
	} else {
		fc, err = m.Files.Load(ctx, location)
	}
	if err != nil {
		return nil, err
	}
	zap.L().Debug("source: loaded dataset",
		zap.String("location", location),
		zap.Int("features", len(fc.Features)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return fc, nil
}

// IsRemote reports whether a location is an http(s) URL.
func IsRemote(location string) bool {
	lower := strings.ToLower(location)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

func parse(data []byte, location string) (*geojson.FeatureCollection, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, eris.Wrapf(err, "source: parse %s", location)
	}
	return fc, nil
}
