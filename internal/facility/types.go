// Package facility implements the category layers of the facility viewer:
// filter predicates, popup builders, marker styling, the refresh cycle,
// visibility toggles and the legend reducer.
package facility

import (
	"context"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
)

// AllValues is the dropdown sentinel meaning "no filtering, show everything".
const AllValues = "all"

var (
	// ErrUnknownCategory is returned for a category id that is not configured.
	ErrUnknownCategory = eris.New("facility: unknown category")
	// ErrStale is returned when a refresh finished after a newer one started.
	ErrStale = eris.New("facility: stale refresh discarded")
)

// Loader retrieves a category's full dataset from its source location.
type Loader interface {
	Load(ctx context.Context, location string) (*geojson.FeatureCollection, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, location string) (*geojson.FeatureCollection, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context, location string) (*geojson.FeatureCollection, error) {
	return f(ctx, location)
}

// MarkerStyle is the fixed styling rule of a category's circle markers.
type MarkerStyle struct {
	Color  string  `json:"color" doc:"Marker stroke and fill color (CSS)" example:"blue"`
	Radius float64 `json:"radius" doc:"Circle marker radius in pixels" example:"10"`
}

// DefaultRadius matches Leaflet's circleMarker default.
const DefaultRadius = 10

// Category is one independently managed facility layer.
type Category struct {
	ID            string
	Label         string
	Source        string
	Style         MarkerStyle
	Filter        Filter
	Popup         PopupBuilder
	FilterSignal  string
	VisibleSignal string
}

// Marker is a rendered feature: position, style and popup content.
type Marker struct {
	ID         string             `json:"id" doc:"Stable marker id within the category"`
	Lon        float64            `json:"lon" doc:"Longitude"`
	Lat        float64            `json:"lat" doc:"Latitude"`
	Color      string             `json:"color" doc:"Marker color"`
	Radius     float64            `json:"radius" doc:"Marker radius"`
	Popup      string             `json:"popup" doc:"Popup HTML"`
	Properties geojson.Properties `json:"properties" doc:"Source attributes (read-only)"`
}

// Point returns the marker position.
func (m Marker) Point() orb.Point {
	return orb.Point{m.Lon, m.Lat}
}

// Status describes the outcome of a layer's last refresh.
type Status string

const (
	StatusPending Status = "pending"
	StatusLoaded  Status = "loaded"
	StatusFailed  Status = "failed"
)

// Result reports a completed refresh.
type Result struct {
	Category string   `json:"category"`
	Seq      uint64   `json:"seq"`
	Filter   string   `json:"filter"`
	Status   Status   `json:"status"`
	Error    string   `json:"error,omitempty"`
	Total    int      `json:"total"`
	Markers  []Marker `json:"markers"`
}
