package facility

// Signals is the read side of a Datastar signal set.
type Signals interface {
	Bool(key string) bool
	String(key string) string
	Has(key string) bool
}

// ViewState is the explicit UI state: checkbox and dropdown values keyed by
// category id.
type ViewState struct {
	Visible map[string]bool   `json:"visible"`
	Filters map[string]string `json:"filters"`
}

// NewViewState returns a state with every category visible and unfiltered,
// the page-load default.
func NewViewState(categories []*Category) ViewState {
	s := ViewState{
		Visible: make(map[string]bool, len(categories)),
		Filters: make(map[string]string, len(categories)),
	}
	for _, c := range categories {
		s.Visible[c.ID] = true
		if c.Filter.Enabled() {
			s.Filters[c.ID] = AllValues
		}
	}
	return s
}

// ViewStateFromSignals reads each category's checkbox and dropdown signals.
// Missing signals keep the page-load default.
func ViewStateFromSignals(categories []*Category, sig Signals) ViewState {
	s := NewViewState(categories)
	for _, c := range categories {
		if c.VisibleSignal != "" && sig.Has(c.VisibleSignal) {
			s.Visible[c.ID] = sig.Bool(c.VisibleSignal)
		}
		if c.Filter.Enabled() && c.FilterSignal != "" && sig.Has(c.FilterSignal) {
			if v := sig.String(c.FilterSignal); v != "" {
				s.Filters[c.ID] = v
			}
		}
	}
	return s
}

// Filter returns the selected value for a category, defaulting to "all".
func (s ViewState) Filter(id string) string {
	if v, ok := s.Filters[id]; ok && v != "" {
		return v
	}
	return AllValues
}

// Clone returns a deep copy.
func (s ViewState) Clone() ViewState {
	out := ViewState{
		Visible: make(map[string]bool, len(s.Visible)),
		Filters: make(map[string]string, len(s.Filters)),
	}
	for k, v := range s.Visible {
		out.Visible[k] = v
	}
	for k, v := range s.Filters {
		out.Filters[k] = v
	}
	return out
}
