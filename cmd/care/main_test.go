package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-care/internal/config"
	"github.com/joeblew999/plat-care/internal/facility"
	"github.com/joeblew999/plat-care/internal/server"
	"github.com/joeblew999/plat-care/internal/service"
)

func categories(t *testing.T) []*facility.Category {
	t.Helper()
	var out []*facility.Category
	for _, c := range config.DefaultCategories() {
		cat, err := service.NewCategory(c)
		require.NoError(t, err)
		out = append(out, cat)
	}
	return out
}

func labels(entries []facility.LegendEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Label
	}
	return out
}

func TestLegendAllByDefault(t *testing.T) {
	entries, err := legend(categories(t), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Long Term Care", "Hospitals", "Primary Care"}, labels(entries))
}

func TestLegendSubsetKeepsCategoryOrder(t *testing.T) {
	entries, err := legend(categories(t), []string{"primarycare,longtermcare"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Long Term Care", "Primary Care"}, labels(entries))
	assert.Equal(t, "green", entries[1].Color)
}

func TestLegendUnknownCategory(t *testing.T) {
	_, err := legend(categories(t), []string{"dentists"})
	assert.True(t, eris.Is(err, facility.ErrUnknownCategory))
}

func TestRedactedHidesKeys(t *testing.T) {
	cfg := config.Config{
		StadiaAPIKey: "secret",
		Basemaps:     []config.BasemapConfig{{ID: "a", APIKey: "secret"}, {ID: "b"}},
	}
	out := redacted(cfg)
	assert.Equal(t, "***", out.StadiaAPIKey)
	assert.Equal(t, "***", out.Basemaps[0].APIKey)
	assert.Empty(t, out.Basemaps[1].APIKey)
	assert.Equal(t, "secret", cfg.Basemaps[0].APIKey, "the loaded config is untouched")
}

func TestCheck(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "data"), 0o755))
	ltc := `{"type":"FeatureCollection","features":[
{"type":"Feature","geometry":{"type":"Point","coordinates":[-73.75,42.65]},"properties":{"Name":"Oak","Type":"Nursing"}},
{"type":"Feature","geometry":{"type":"Point","coordinates":[-73.70,42.60]},"properties":{"Name":"Elm","Type":"Nursing"}},
{"type":"Feature","geometry":{"type":"Point","coordinates":[-76.15,43.05]},"properties":{"Name":"Pine","Type":"Assisted"}}]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data", "longtermcare.geojson"), []byte(ltc), 0o644))

	srv, err := server.New(&config.Config{
		DataDir:    dir,
		Basemaps:   config.DefaultBasemaps(),
		Categories: config.DefaultCategories(),
		Geocoder:   config.GeocoderConfig{URL: "http://127.0.0.1:1", Cache: config.CacheConfig{Driver: "none"}},
		Sessions:   config.SessionConfig{IdleMinutes: 1},
	})
	require.NoError(t, err)

	var text []string
	failed := 0
	for _, l := range check(context.Background(), srv) {
		text = append(text, strings.Join(strings.Fields(l.text), " "))
		if l.failed {
			failed++
		}
	}

	assert.Contains(t, text, "longtermcare 3 of 3")
	assert.Contains(t, text, "Type=Assisted 1")
	assert.Contains(t, text, "Type=Nursing 2")
	// hospitals and primarycare have no data files
	assert.Equal(t, 2, failed)
}
