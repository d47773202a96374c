package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "geometry": {"type": "Point", "coordinates": [-73.75, 42.65]},
     "properties": {"Name": "Albany Med", "Type": "Hospital", "Zip Code": "12208"}},
    {"type": "Feature", "geometry": {"type": "Point", "coordinates": [-76.15, 43.05]},
     "properties": {"Name": "Upstate", "Type": "Hospital"}}
  ]
}`

func writeData(t *testing.T, dir, name, body string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
}

func TestFileLoader(t *testing.T) {
	dir := t.TempDir()
	writeData(t, dir, "data/hospitals.geojson", sampleGeoJSON)

	fc, err := FileLoader{Root: dir}.Load(context.Background(), "data/hospitals.geojson")
	require.NoError(t, err)
	require.Len(t, fc.Features, 2)
	assert.Equal(t, orb.Point{-73.75, 42.65}, fc.Features[0].Geometry)
	assert.Equal(t, "12208", fc.Features[0].Properties["Zip Code"])
}

func TestFileLoaderRejectsTraversal(t *testing.T) {
	l := FileLoader{Root: t.TempDir()}
	for _, loc := range []string{"../secret.geojson", "/etc/passwd", "data/../../x", ""} {
		_, err := l.Load(context.Background(), loc)
		assert.Error(t, err, loc)
	}
}

func TestFileLoaderErrors(t *testing.T) {
	dir := t.TempDir()
	writeData(t, dir, "bad.geojson", `{"type": "FeatureCollection", "features": [`)
	l := FileLoader{Root: dir}

	_, err := l.Load(context.Background(), "missing.geojson")
	assert.Error(t, err)

	_, err = l.Load(context.Background(), "bad.geojson")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Load(ctx, "bad.geojson")
	assert.Error(t, err)
}

func TestHTTPLoader(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/geo+json")
		_, _ = w.Write([]byte(sampleGeoJSON))
	}))
	defer srv.Close()

	fc, err := NewHTTPLoader("plat-care-test").Load(context.Background(), srv.URL+"/hospitals.geojson")
	require.NoError(t, err)
	assert.Len(t, fc.Features, 2)
	assert.Equal(t, "plat-care-test", gotUA)
}

func TestHTTPLoaderStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewHTTPLoader("").Load(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestMuxDispatch(t *testing.T) {
	dir := t.TempDir()
	writeData(t, dir, "local.geojson", sampleGeoJSON)

	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		_, _ = w.Write([]byte(`{"type":"FeatureCollection","features":[]}`))
	}))
	defer srv.Close()

	m := NewMux(dir, "")
	fc, err := m.Load(context.Background(), "local.geojson")
	require.NoError(t, err)
	assert.Len(t, fc.Features, 2)
	assert.Equal(t, 0, hits)

	fc, err = m.Load(context.Background(), srv.URL+"/remote.geojson")
	require.NoError(t, err)
	assert.Empty(t, fc.Features)
	assert.Equal(t, 1, hits)
}

func TestIsRemote(t *testing.T) {
	assert.True(t, IsRemote("https://example.com/a.geojson"))
	assert.True(t, IsRemote("HTTP://example.com/a.geojson"))
	assert.False(t, IsRemote("data/a.geojson"))
	assert.False(t, IsRemote("ftp://example.com/a"))
}
