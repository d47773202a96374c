package facility

import "github.com/paulmach/orb/geojson"

// Filter is a select-driven predicate over one feature attribute.
// A zero Filter has no property and always passes.
type Filter struct {
	Property string
}

// Enabled reports whether the filter reads a property at all.
func (f Filter) Enabled() bool {
	return f.Property != ""
}

// Match reports whether props pass under the selected dropdown value.
// Only the "all" sentinel passes everything; any other selection, including
// "", must equal the string attribute exactly. Callers map a missing
// dropdown value to "all" before matching (see Map.SetFilter).
func (f Filter) Match(props geojson.Properties, selected string) bool {
	if !f.Enabled() || selected == AllValues {
		return true
	}
	v, ok := props[f.Property].(string)
	return ok && v == selected
}
