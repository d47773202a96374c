package facility

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Render returns the markers for every point feature in fc that passes the
// category's filter under filterValue. Features without point geometry are
// skipped.
func Render(fc *geojson.FeatureCollection, cat *Category, filterValue string) []Marker {
	if fc == nil {
		return []Marker{}
	}

	markers := make([]Marker, 0, len(fc.Features))
	for i, f := range fc.Features {
		if f == nil {
			continue
		}
		pt, ok := f.Geometry.(orb.Point)
		if !ok {
			continue
		}
		if !cat.Filter.Match(f.Properties, filterValue) {
			continue
		}

		m := Marker{
			ID:         featureID(f, i),
			Lon:        pt.Lon(),
			Lat:        pt.Lat(),
			Color:      cat.Style.Color,
			Radius:     cat.Style.Radius,
			Properties: f.Properties,
		}
		if cat.Popup != nil && f.Properties != nil {
			m.Popup = cat.Popup(f.Properties)
		}
		markers = append(markers, m)
	}
	return markers
}

// FeatureCollection converts markers back to GeoJSON for the browser, adding
// popup and color to each feature's properties.
func FeatureCollection(markers []Marker) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, m := range markers {
		f := geojson.NewFeature(m.Point())
		f.ID = m.ID
		props := make(geojson.Properties, len(m.Properties)+3)
		for k, v := range m.Properties {
			props[k] = v
		}
		props["popup"] = m.Popup
		props["color"] = m.Color
		props["radius"] = m.Radius
		f.Properties = props
		fc.Append(f)
	}
	return fc
}

func featureID(f *geojson.Feature, index int) string {
	if f.ID != nil {
		return fmt.Sprint(f.ID)
	}
	return fmt.Sprintf("%d", index)
}
