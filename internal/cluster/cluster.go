// Package cluster groups facility markers into grid clusters for a zoom level,
// the server-side counterpart of Leaflet.markercluster.
package cluster

import (
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"

	"github.com/joeblew999/plat-care/internal/facility"
)

// DefaultRadius matches MarkerCluster's maxClusterRadius.
const DefaultRadius = 80

const (
	tileSize = 256
	maxZoom  = 22
)

// Cluster is a group of markers sharing a grid cell.
type Cluster struct {
	Lon     float64   `json:"lon" doc:"Centroid longitude"`
	Lat     float64   `json:"lat" doc:"Centroid latitude"`
	Count   int       `json:"count" doc:"Number of markers"`
	Bound   []float64 `json:"bbox" doc:"Bounding box [minLon, minLat, maxLon, maxLat]"`
	Members []string  `json:"members" doc:"Member marker ids"`
	Tile    string    `json:"tile" doc:"Grid cell as z/x/y"`
	Point   bool      `json:"point" doc:"True when the cluster is a single marker"`
}

// CellZoom returns the tile zoom whose cells are about radiusPx wide when
// viewed at zoom.
func CellZoom(zoom, radiusPx int) maptile.Zoom {
	if radiusPx <= 0 {
		radiusPx = DefaultRadius
	}
	z := zoom + int(math.Floor(math.Log2(float64(tileSize)/float64(radiusPx))))
	if z < 0 {
		z = 0
	}
	if z > maxZoom {
		z = maxZoom
	}
	return maptile.Zoom(z)
}

// Group clusters markers at the given map zoom. Results are ordered by count
// descending, then by position.
func Group(markers []facility.Marker, zoom, radiusPx int) []Cluster {
	cz := CellZoom(zoom, radiusPx)

	type acc struct {
		tile    maptile.Tile
		sumLon  float64
		sumLat  float64
		bound   orb.Bound
		members []string
	}
	cells := make(map[maptile.Tile]*acc)
	for _, m := range markers {
		pt := m.Point()
		t := maptile.At(pt, cz)
		a, ok := cells[t]
		if !ok {
			a = &acc{tile: t, bound: pt.Bound()}
			cells[t] = a
		}
		a.sumLon += pt.Lon()
		a.sumLat += pt.Lat()
		a.bound = a.bound.Extend(pt)
		a.members = append(a.members, m.ID)
	}

	out := make([]Cluster, 0, len(cells))
	for _, a := range cells {
		n := float64(len(a.members))
		out = append(out, Cluster{
			Lon:     a.sumLon / n,
			Lat:     a.sumLat / n,
			Count:   len(a.members),
			Bound:   []float64{a.bound.Min.Lon(), a.bound.Min.Lat(), a.bound.Max.Lon(), a.bound.Max.Lat()},
			Members: a.members,
			Tile:    tileString(a.tile),
			Point:   len(a.members) == 1,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		if out[i].Lon != out[j].Lon {
			return out[i].Lon < out[j].Lon
		}
		return out[i].Lat < out[j].Lat
	})
	return out
}

func tileString(t maptile.Tile) string {
	return fmt.Sprintf("%d/%d/%d", t.Z, t.X, t.Y)
}
