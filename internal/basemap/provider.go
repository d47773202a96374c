// Package basemap serves the raster base-map layers: the provider registry
// shown in the layer switcher and a caching proxy in front of the upstream
// tile servers.
package basemap

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-care/internal/config"
)

// Provider is an upstream raster tile service.
type Provider struct {
	ID          string `json:"id" doc:"Provider id" example:"osm-bright"`
	Name        string `json:"name" doc:"Layer switcher label" example:"Open Street Map Bright"`
	URL         string `json:"-"`
	APIKey      string `json:"-"`
	Attribution string `json:"attribution" doc:"Attribution HTML required by the provider's terms"`
	Ext         string `json:"ext" doc:"Tile image extension" example:"png"`
	MinZoom     int    `json:"minZoom" doc:"Minimum zoom"`
	MaxZoom     int    `json:"maxZoom" doc:"Maximum zoom"`
	Default     bool   `json:"default" doc:"Whether this base map is shown on load"`
	TileURL     string `json:"tileUrl" doc:"Leaflet URL template served by this server"`
}

// TileURLFor returns the upstream URL for a tile, carrying the provider's
// api_key when one is configured.
func (p Provider) TileURLFor(z, x, y int) string {
	r := strings.NewReplacer(
		"{z}", strconv.Itoa(z),
		"{x}", strconv.Itoa(x),
		"{y}", strconv.Itoa(y),
		"{r}", "",
		"{ext}", p.Ext,
	)
	u := r.Replace(p.URL)
	if p.APIKey == "" {
		return u
	}
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return u + sep + "api_key=" + url.QueryEscape(p.APIKey)
}

// ContentType returns the MIME type of the provider's tiles.
func (p Provider) ContentType() string {
	switch p.Ext {
	case "png":
		return "image/png"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

// Registry holds providers in layer-switcher order.
type Registry struct {
	providers []Provider
	byID      map[string]int
}

// NewRegistry builds a registry from configuration. Each provider is served
// locally under pathPrefix/{id}/{z}/{x}/{y}.
func NewRegistry(cfgs []config.BasemapConfig, pathPrefix string) (*Registry, error) {
	r := &Registry{byID: make(map[string]int, len(cfgs))}
	hasDefault := false
	for _, c := range cfgs {
		if c.ID == "" || c.URL == "" {
			return nil, eris.Errorf("basemap: provider %q needs an id and url", c.Name)
		}
		if _, dup := r.byID[c.ID]; dup {
			return nil, eris.Errorf("basemap: duplicate provider %q", c.ID)
		}
		p := Provider{
			ID:          c.ID,
			Name:        c.Name,
			URL:         c.URL,
			APIKey:      c.APIKey,
			Attribution: c.Attribution,
			Ext:         c.Ext,
			MinZoom:     c.MinZoom,
			MaxZoom:     c.MaxZoom,
			Default:     c.Default && !hasDefault,
			TileURL:     pathPrefix + "/" + c.ID + "/{z}/{x}/{y}",
		}
		if p.APIKey == "" && strings.Contains(p.URL, "stadiamaps.com") {
			zap.L().Warn("basemap: Stadia tiles proxied without api_key; upstream may refuse them",
				zap.String("provider", p.ID))
		}
		if p.MaxZoom == 0 {
			p.MaxZoom = 19
		}
		hasDefault = hasDefault || p.Default
		r.byID[c.ID] = len(r.providers)
		r.providers = append(r.providers, p)
	}
	if len(r.providers) > 0 && !hasDefault {
		r.providers[0].Default = true
	}
	return r, nil
}

// List returns all providers in order.
func (r *Registry) List() []Provider {
	out := make([]Provider, len(r.providers))
	copy(out, r.providers)
	return out
}

// Get returns a provider by id.
func (r *Registry) Get(id string) (Provider, bool) {
	i, ok := r.byID[id]
	if !ok {
		return Provider{}, false
	}
	return r.providers[i], true
}
