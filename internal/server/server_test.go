package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-care/internal/config"
	"github.com/joeblew999/plat-care/internal/db"
	"github.com/joeblew999/plat-care/internal/source"
)

const longTermCare = `{"type":"FeatureCollection","features":[
{"type":"Feature","geometry":{"type":"Point","coordinates":[-73.75,42.65]},"properties":{"Name":"Oak Manor","Type":"Nursing"}},
{"type":"Feature","geometry":{"type":"Point","coordinates":[-76.15,43.05]},"properties":{"Name":"Pine","Type":"Assisted"}}]}`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "data"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data", "longtermcare.geojson"), []byte(longTermCare), 0o644))

	return &config.Config{
		Server:   config.ServerConfig{Host: "127.0.0.1", Port: 8086},
		DataDir:  dir,
		Map:      config.MapConfig{CenterLat: 42.7, CenterLon: -75.5, Zoom: 6},
		Basemaps: config.DefaultBasemaps(),
		Geocoder: config.GeocoderConfig{
			URL:       "http://127.0.0.1:1",
			UserAgent: "plat-care-test",
			RateLimit: 1,
			Limit:     5,
			Cache:     config.CacheConfig{Driver: "memory", TTLMinutes: 1, MaxEntries: 10},
		},
		Categories: config.DefaultCategories(),
		Sessions:   config.SessionConfig{IdleMinutes: 5},
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	srv, err := New(testConfig(t))
	require.NoError(t, err)
	return srv
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRoot(t *testing.T) {
	srv := newTestServer(t)

	rec := get(t, srv, "/")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "plat-care", body["service"])
	assert.NotEmpty(t, rec.Header().Values("Link"))

	assert.Equal(t, http.StatusNotFound, get(t, srv, "/nope").Code)
}

func TestRequestID(t *testing.T) {
	srv := newTestServer(t)

	rec := get(t, srv, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc")
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, "abc", rec.Header().Get(RequestIDHeader))
}

func TestViewerPage(t *testing.T) {
	srv := newTestServer(t)

	rec := get(t, srv, "/viewer")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")

	html := rec.Body.String()
	assert.Contains(t, html, "Long Term Care")
	assert.Contains(t, html, "Primary Care")
	assert.Contains(t, html, "/static/viewer.js")
	assert.Contains(t, html, `id="mapLegend"`)
}

func TestStaticAndData(t *testing.T) {
	srv := newTestServer(t)

	rec := get(t, srv, "/static/viewer.js")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "markerClusterGroup")

	rec = get(t, srv, "/data/longtermcare.geojson")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Oak Manor")
}

func TestCategoryRoutesReadFiles(t *testing.T) {
	srv := newTestServer(t)

	rec := get(t, srv, "/api/v1/categories/longtermcare/options")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Assisted")

	// hospitals.geojson is absent from the data directory
	rec = get(t, srv, "/api/v1/categories/hospitals/features")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestBasemapProxyRejectsUnknownProvider(t *testing.T) {
	srv := newTestServer(t)

	rec := get(t, srv, "/basemaps/nope/1/0/0")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOpenAPI(t *testing.T) {
	srv := newTestServer(t)

	spec := srv.OpenAPI()
	require.NotNil(t, spec)
	assert.Equal(t, "plat-care API", spec.Info.Title)
	assert.Contains(t, spec.Paths, "/api/v1/viewer/load")
	assert.Contains(t, spec.Paths, "/api/v1/tables")
	assert.True(t, strings.HasPrefix(spec.Servers[0].URL, "http://127.0.0.1:8086"))
}

func TestNewRejectsBadCategory(t *testing.T) {
	cfg := testConfig(t)
	cfg.Categories[0].Popup = "nope"

	_, err := New(cfg)
	assert.Error(t, err)
}

func TestNewGeocoderCacheDrivers(t *testing.T) {
	cfg := testConfig(t).Geocoder

	for _, driver := range []string{"memory", "none"} {
		cfg.Cache.Driver = driver
		c, err := newGeocoder(cfg)
		require.NoError(t, err, driver)
		assert.NotNil(t, c)
	}

	cfg.Cache.Driver = "redis"
	cfg.Cache.RedisURL = "://bad"
	_, err := newGeocoder(cfg)
	assert.Error(t, err)
}

func TestDisplayHost(t *testing.T) {
	assert.Equal(t, "localhost", displayHost("0.0.0.0"))
	assert.Equal(t, "localhost", displayHost(""))
	assert.Equal(t, "example.org", displayHost("example.org"))
}

func TestIndexAndLoaderOptions(t *testing.T) {
	cfg := testConfig(t)
	conn, err := db.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	srv, err := New(cfg, WithIndex(db.NewIndex(conn)), WithLoader(source.FileLoader{Root: cfg.DataDir}))
	require.NoError(t, err)

	rec := get(t, srv, "/api/v1/categories/longtermcare/features")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = get(t, srv, "/api/v1/tables")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "facilities_longtermcare")
}
