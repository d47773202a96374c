package facility

// LegendEntry is one legend row: a color swatch and a label.
type LegendEntry struct {
	Category string `json:"category" doc:"Category id" example:"hospitals"`
	Label    string `json:"label" doc:"Legend label" example:"Hospitals"`
	Color    string `json:"color" doc:"Swatch color (CSS)" example:"red"`
}

// Legend emits one entry per visible category, in category order. It is a
// pure function of the visibility flags.
func Legend(categories []*Category, state ViewState) []LegendEntry {
	entries := make([]LegendEntry, 0, len(categories))
	for _, c := range categories {
		if !state.Visible[c.ID] {
			continue
		}
		entries = append(entries, LegendEntry{Category: c.ID, Label: c.Label, Color: c.Style.Color})
	}
	return entries
}
