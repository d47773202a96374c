package viewer

import (
	"context"

	"go.uber.org/zap"

	"github.com/joeblew999/plat-care/internal/basemap"
	"github.com/joeblew999/plat-care/internal/facility"
	"github.com/joeblew999/plat-care/internal/humastar"
)

// PageConfig is the static part of the viewer page.
type PageConfig struct {
	Title      string
	CenterLat  float64
	CenterLon  float64
	Zoom       int
	Basemaps   []basemap.Provider
	GeocodeURL string
}

// PageCategory is one row of the layer controls.
type PageCategory struct {
	ID            string
	Label         string
	Color         string
	VisibleSignal string
	FilterSignal  string
	Options       []humastar.SelectOptionData
	Status        facility.Result
}

// Page is the template data of the viewer page.
type Page struct {
	Title      string
	Session    string
	Signals    map[string]any
	Config     map[string]any
	Categories []PageCategory
	Legend     []facility.LegendEntry
}

// Page builds the viewer page for a new session: every category visible and
// unfiltered, with the dropdowns listing each dataset's distinct values.
func (h *Handler) Page(ctx context.Context, cfg PageConfig) Page {
	session, m, _ := h.sessions.Get("")
	state := m.State()

	signals := map[string]any{SessionSignal: session, "error": ""}
	var ids []string
	var cats []PageCategory
	for _, c := range m.Categories() {
		ids = append(ids, c.ID)
		signals[c.VisibleSignal] = state.Visible[c.ID]

		pc := PageCategory{
			ID:            c.ID,
			Label:         c.Label,
			Color:         c.Style.Color,
			VisibleSignal: c.VisibleSignal,
			Status:        facility.Result{Category: c.ID, Status: facility.StatusPending},
		}
		if c.Filter.Enabled() && c.FilterSignal != "" {
			pc.FilterSignal = c.FilterSignal
			signals[c.FilterSignal] = facility.AllValues
			pc.Options = h.options(ctx, c)
		}
		cats = append(cats, pc)
	}

	basemaps := cfg.Basemaps
	if basemaps == nil {
		basemaps = []basemap.Provider{}
	}
	return Page{
		Title:   cfg.Title,
		Session: session,
		Signals: signals,
		Config: map[string]any{
			"center":     map[string]float64{"lat": cfg.CenterLat, "lon": cfg.CenterLon},
			"zoom":       cfg.Zoom,
			"basemaps":   basemaps,
			"geocodeUrl": cfg.GeocodeURL,
			"categories": ids,
		},
		Categories: cats,
		Legend:     m.Legend(),
	}
}

func (h *Handler) options(ctx context.Context, c *facility.Category) []humastar.SelectOptionData {
	values, err := h.categories.Options(ctx, c.ID)
	if err != nil {
		zap.L().Warn("viewer: filter options unavailable", zap.String("category", c.ID), zap.Error(err))
		values = []string{facility.AllValues}
	}
	opts := make([]humastar.SelectOptionData, 0, len(values))
	for _, v := range values {
		label := v
		if v == facility.AllValues {
			label = "All"
		}
		opts = append(opts, humastar.SelectOptionData{Value: v, Label: label, Selected: v == facility.AllValues})
	}
	return opts
}
