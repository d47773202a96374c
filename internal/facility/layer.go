package facility

import (
	"context"
	"sync"

	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Layer holds the displayed markers of one category. Each Refresh takes a new
// sequence number; a refresh that completes after a newer one has started is
// discarded, so the newest request wins.
type Layer struct {
	category *Category

	mu      sync.Mutex
	started uint64
	applied uint64
	filter  string
	status  Status
	lastErr string
	markers []Marker
	total   int
}

// NewLayer creates an empty, pending layer.
func NewLayer(cat *Category) *Layer {
	return &Layer{category: cat, status: StatusPending, markers: []Marker{}, filter: AllValues}
}

// Category returns the category the layer renders.
func (l *Layer) Category() *Category {
	return l.category
}

// LoadObserver is notified of every dataset a layer fetches successfully.
type LoadObserver func(ctx context.Context, cat *Category, fc *geojson.FeatureCollection)

// Refresh fetches the category's full dataset, discards the previously
// displayed markers and renders the subset passing filterValue. A failed
// fetch leaves the layer empty with StatusFailed; it is never retried.
func (l *Layer) Refresh(ctx context.Context, loader Loader, filterValue string, observe LoadObserver) (Result, error) {
	l.mu.Lock()
	l.started++
	seq := l.started
	l.mu.Unlock()

	fc, loadErr := loader.Load(ctx, l.category.Source)

	var markers []Marker
	if loadErr == nil {
		markers = Render(fc, l.category, filterValue)
	}

	l.mu.Lock()
	if seq < l.started {
		latest := l.started
		l.mu.Unlock()
		zap.L().Debug("facility: dropping stale refresh",
			zap.String("category", l.category.ID),
			zap.Uint64("seq", seq),
			zap.Uint64("latest", latest),
		)
		return Result{Category: l.category.ID, Seq: seq, Filter: filterValue}, ErrStale
	}

	l.applied = seq
	l.filter = filterValue
	if loadErr != nil {
		l.status = StatusFailed
		l.lastErr = loadErr.Error()
		l.markers = []Marker{}
		l.total = 0
		res := l.resultLocked()
		l.mu.Unlock()

		zap.L().Warn("facility: layer load failed",
			zap.String("category", l.category.ID),
			zap.String("source", l.category.Source),
			zap.Error(loadErr),
		)
		return res, eris.Wrapf(loadErr, "facility: load %s", l.category.ID)
	}

	l.status = StatusLoaded
	l.lastErr = ""
	l.markers = markers
	l.total = 0
	if fc != nil {
		l.total = len(fc.Features)
	}
	res := l.resultLocked()
	l.mu.Unlock()

	if observe != nil && fc != nil {
		observe(ctx, l.category, fc)
	}
	return res, nil
}

// Markers returns a copy of the currently displayed markers.
func (l *Layer) Markers() []Marker {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Marker, len(l.markers))
	copy(out, l.markers)
	return out
}

// Snapshot returns the layer's current state as a Result.
func (l *Layer) Snapshot() Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.resultLocked()
}

func (l *Layer) resultLocked() Result {
	markers := make([]Marker, len(l.markers))
	copy(markers, l.markers)
	return Result{
		Category: l.category.ID,
		Seq:      l.applied,
		Filter:   l.filter,
		Status:   l.status,
		Error:    l.lastErr,
		Total:    l.total,
		Markers:  markers,
	}
}
