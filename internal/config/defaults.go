package config

// Attribution strings are required by the providers' terms of use.
const (
	stadiaAttribution = `&copy; <a href="https://www.stadiamaps.com/" target="_blank">Stadia Maps</a> &copy; <a href="https://openmaptiles.org/" target="_blank">OpenMapTiles</a> &copy; <a href="https://www.openstreetmap.org/copyright">OpenStreetMap</a> contributors`
	esriAttribution   = `Tiles &copy; Esri &mdash; Source: Esri, i-cubed, USDA, USGS, AEX, GeoEye, Getmapping, Aerogrid, IGN, IGP, UPR-EGP, and the GIS User Community`
)

// DefaultBasemaps returns the two stock base-map providers.
func DefaultBasemaps() []BasemapConfig {
	return []BasemapConfig{
		{
			ID:          "osm-bright",
			Name:        "Open Street Map Bright",
			URL:         "https://tiles.stadiamaps.com/tiles/osm_bright/{z}/{x}/{y}.{ext}",
			Attribution: stadiaAttribution,
			Ext:         "png",
			MinZoom:     0,
			MaxZoom:     20,
			Default:     true,
		},
		{
			ID:          "esri-imagery",
			Name:        "Esri World Imagery",
			URL:         "https://server.arcgisonline.com/ArcGIS/rest/services/World_Imagery/MapServer/tile/{z}/{y}/{x}",
			Attribution: esriAttribution,
			Ext:         "jpg",
			MinZoom:     0,
			MaxZoom:     19,
		},
	}
}

// DefaultCategories returns the long-term care, hospital and primary care layers.
func DefaultCategories() []CategoryConfig {
	return []CategoryConfig{
		{
			ID:            "longtermcare",
			Label:         "Long Term Care",
			Color:         "blue",
			Source:        "data/longtermcare.geojson",
			Popup:         "facility",
			FilterField:   "Type",
			FilterSignal:  "longtermcareType",
			VisibleSignal: "longtermcare",
		},
		{
			ID:            "hospitals",
			Label:         "Hospitals",
			Color:         "red",
			Source:        "data/hospitals.geojson",
			Popup:         "facility",
			VisibleSignal: "hospitals",
		},
		{
			ID:            "primarycare",
			Label:         "Primary Care",
			Color:         "green",
			Source:        "data/primarycare.geojson",
			Popup:         "provider",
			FilterField:   "Specialty",
			FilterSignal:  "primarycareSpecialty",
			VisibleSignal: "primarycare",
		},
	}
}
