package facility

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/paulmach/orb/geojson"
)

// PopupBuilder produces the popup HTML for a feature's attributes.
type PopupBuilder func(props geojson.Properties) string

var facilityPopup = template.Must(template.New("facility").Parse(
	`<strong>Name:</strong> {{.Name}}<br>` +
		`<strong>Type:</strong> {{.Type}}<br>` +
		`<strong>Address:</strong> {{.Street}}, {{.City}}, {{.Zip}}<br>` +
		`<strong>Phone:</strong> {{.Phone}}`))

var providerPopup = template.Must(template.New("provider").Parse(
	`<strong>First Name:</strong> {{.First}}<br>` +
		`<strong>Last Name:</strong> {{.Last}}<br>` +
		`<strong>Specialty:</strong> {{.Specialty}}<br>` +
		`<strong>Address:</strong> {{.Street}}, {{.City}}, {{.Zip}}`))

// FacilityPopup renders long-term care and hospital records.
func FacilityPopup(props geojson.Properties) string {
	return execute(facilityPopup, map[string]string{
		"Name":   prop(props, "Name"),
		"Type":   prop(props, "Type"),
		"Street": prop(props, "Street Address"),
		"City":   prop(props, "City"),
		"Zip":    prop(props, "Zip Code"),
		"Phone":  prop(props, "Facility Phone Number"),
	})
}

// ProviderPopup renders primary care provider records. Its keys are lower
// case, unlike the facility datasets.
func ProviderPopup(props geojson.Properties) string {
	return execute(providerPopup, map[string]string{
		"First":     prop(props, "First Name"),
		"Last":      prop(props, "Last Name"),
		"Specialty": prop(props, "Specialty"),
		"Street":    prop(props, "street address"),
		"City":      prop(props, "city"),
		"Zip":       prop(props, "zipcode"),
	})
}

// PopupByName resolves a configured popup kind.
func PopupByName(name string) (PopupBuilder, bool) {
	switch name {
	case "facility", "":
		return FacilityPopup, true
	case "provider":
		return ProviderPopup, true
	}
	return nil, false
}

// prop formats an attribute for display; missing keys render empty.
func prop(props geojson.Properties, key string) string {
	v, ok := props[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		// Zip codes and phone numbers often arrive as JSON numbers.
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprint(t)
	default:
		return fmt.Sprint(t)
	}
}

func execute(t *template.Template, data any) string {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return ""
	}
	return buf.String()
}
