package facility

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
)

// Map is one viewer's display: a layer per category plus the set of layers
// currently attached. Categories never affect each other.
type Map struct {
	categories []*Category
	layers     map[string]*Layer
	loader     Loader
	observe    LoadObserver

	mu       sync.RWMutex
	attached map[string]bool
}

// MapOption configures a Map.
type MapOption func(*Map)

// WithLoadObserver registers a callback for every successful dataset fetch.
func WithLoadObserver(fn LoadObserver) MapOption {
	return func(m *Map) {
		m.observe = fn
	}
}

// NewMap creates a map with every layer attached and empty.
func NewMap(categories []*Category, loader Loader, opts ...MapOption) *Map {
	m := &Map{
		categories: categories,
		layers:     make(map[string]*Layer, len(categories)),
		loader:     loader,
		attached:   make(map[string]bool, len(categories)),
	}
	for _, c := range categories {
		m.layers[c.ID] = NewLayer(c)
		m.attached[c.ID] = true
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Categories returns the categories in display order.
func (m *Map) Categories() []*Category {
	return m.categories
}

// Layer returns the layer for a category id.
func (m *Map) Layer(id string) (*Layer, error) {
	l, ok := m.layers[id]
	if !ok {
		return nil, eris.Wrapf(ErrUnknownCategory, "category %q", id)
	}
	return l, nil
}

// Load refreshes every category concurrently under state's filters and
// applies its visibility flags. Failures are reported per result; one
// category failing never affects the others.
func (m *Map) Load(ctx context.Context, state ViewState) []Result {
	m.Apply(state)

	results := make([]Result, len(m.categories))
	var g errgroup.Group
	for i, c := range m.categories {
		g.Go(func() error {
			res, _ := m.layers[c.ID].Refresh(ctx, m.loader, state.Filter(c.ID), m.observe)
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Apply sets every layer's visibility from state without reloading.
func (m *Map) Apply(state ViewState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.categories {
		m.attached[c.ID] = state.Visible[c.ID]
	}
}

// SetFilter refreshes a single category with a new filter value. Sibling
// layers are untouched.
func (m *Map) SetFilter(ctx context.Context, id, value string) (Result, error) {
	l, err := m.Layer(id)
	if err != nil {
		return Result{}, err
	}
	if value == "" {
		value = AllValues
	}
	return l.Refresh(ctx, m.loader, value, m.observe)
}

// Toggle attaches or detaches a category's layer and returns the recomputed
// legend. No data is reloaded.
func (m *Map) Toggle(id string, visible bool) ([]LegendEntry, error) {
	if _, err := m.Layer(id); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.attached[id] = visible
	m.mu.Unlock()
	return m.Legend(), nil
}

// Visible reports whether a category's layer is attached.
func (m *Map) Visible(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.attached[id]
}

// State returns the current view state.
func (m *Map) State() ViewState {
	s := NewViewState(m.categories)
	m.mu.RLock()
	for id, v := range m.attached {
		s.Visible[id] = v
	}
	m.mu.RUnlock()
	for _, c := range m.categories {
		if c.Filter.Enabled() {
			s.Filters[c.ID] = m.layers[c.ID].Snapshot().Filter
		}
	}
	return s
}

// Legend recomputes the legend from the attached layers.
func (m *Map) Legend() []LegendEntry {
	return Legend(m.categories, m.State())
}

// Displayed returns the markers on screen: those of attached layers only.
func (m *Map) Displayed() map[string][]Marker {
	out := make(map[string][]Marker, len(m.categories))
	for _, c := range m.categories {
		if !m.Visible(c.ID) {
			continue
		}
		out[c.ID] = m.layers[c.ID].Markers()
	}
	return out
}
