package templates

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-care/internal/facility"
)

func TestEmbeddedFragments(t *testing.T) {
	r, err := Load("")
	require.NoError(t, err)

	html, err := r.Render("legend", []facility.LegendEntry{
		{Category: "hospitals", Label: "Hospitals", Color: "red"},
	})
	require.NoError(t, err)
	assert.Equal(t,
		`<div><span style="background-color: red; display: inline-block; width: 12px; height: 12px; margin-right: 5px;"></span> Hospitals</div>`,
		html)

	html, err = r.Render("layer-status", facility.Result{Category: "hospitals", Status: facility.StatusFailed, Error: "boom"})
	require.NoError(t, err)
	assert.Contains(t, html, `id="status-hospitals"`)
	assert.Contains(t, html, "Failed to load: boom")

	html, err = r.Render("layer-status", facility.Result{
		Category: "hospitals", Status: facility.StatusLoaded, Total: 3,
		Markers: []facility.Marker{{ID: "1"}},
	})
	require.NoError(t, err)
	assert.Contains(t, html, "1 of 3")
}

func TestLegendEscapesLabels(t *testing.T) {
	r, err := Load("")
	require.NoError(t, err)
	html := r.MustRender("legend", []facility.LegendEntry{{Label: "<b>x</b>", Color: "blue"}})
	assert.Contains(t, html, "&lt;b&gt;x&lt;/b&gt;")
}

func TestRenderUnknownTemplate(t *testing.T) {
	r, err := New(fstest.MapFS{})
	require.NoError(t, err)
	_, err = r.Render("legend", nil)
	assert.ErrorContains(t, err, "templates: render legend")
}

func TestWebDirOverride(t *testing.T) {
	dir := t.TempDir()
	frag := filepath.Join(dir, "templates", "fragments")
	require.NoError(t, os.MkdirAll(frag, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(frag, "legend.html"),
		[]byte(`{{define "legend"}}custom{{end}}`), 0o644))

	r, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "custom", r.MustRender("legend", nil))

	// a directory without templates falls back to the embedded set
	r, err = Load(t.TempDir())
	require.NoError(t, err)
	_, err = r.Render("select-option", map[string]any{"Value": "all", "Label": "All", "Selected": true})
	assert.NoError(t, err)
}

func TestReload(t *testing.T) {
	r, err := New(fstest.MapFS{
		"templates/fragments/a.html": {Data: []byte(`{{define "a"}}one{{end}}`)},
	})
	require.NoError(t, err)
	assert.Equal(t, "one", r.MustRender("a", nil))

	require.NoError(t, r.Reload(fstest.MapFS{
		"templates/fragments/a.html": {Data: []byte(`{{define "a"}}two{{end}}`)},
	}))
	assert.Equal(t, "two", r.MustRender("a", nil))
}
