package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-care/internal/config"
	"github.com/joeblew999/plat-care/internal/db"
	"github.com/joeblew999/plat-care/internal/facility"
)

func feature(lon, lat float64, props geojson.Properties) *geojson.Feature {
	f := geojson.NewFeature(orb.Point{lon, lat})
	f.Properties = props
	return f
}

type countingLoader struct {
	calls atomic.Int32
	data  map[string]*geojson.FeatureCollection
}

func (l *countingLoader) Load(_ context.Context, location string) (*geojson.FeatureCollection, error) {
	l.calls.Add(1)
	fc, ok := l.data[location]
	if !ok {
		return nil, eris.Errorf("missing %s", location)
	}
	return fc, nil
}

func newLoader() *countingLoader {
	ltc := geojson.NewFeatureCollection()
	ltc.Append(feature(-75.1, 42.1, geojson.Properties{"Name": "Oak Manor", "Type": "Nursing"}))
	ltc.Append(feature(-75.2, 42.2, geojson.Properties{"Name": "Elm Court", "Type": "Assisted"}))
	ltc.Append(feature(-75.3, 42.3, geojson.Properties{"Name": "Pine", "Type": "Nursing"}))
	ltc.Append(feature(-75.4, 42.4, geojson.Properties{"Name": "Odd", "Type": 7}))

	hosp := geojson.NewFeatureCollection()
	hosp.Append(feature(-74.0, 40.7, geojson.Properties{"Name": "General"}))

	pc := geojson.NewFeatureCollection()
	pc.Append(feature(-73.9, 40.8, geojson.Properties{"first name": "Ada", "Specialty": "Pediatrics"}))

	return &countingLoader{data: map[string]*geojson.FeatureCollection{
		"data/longtermcare.geojson": ltc,
		"data/hospitals.geojson":    hosp,
		"data/primarycare.geojson":  pc,
	}}
}

func newService(t *testing.T, index *db.Index) (*CategoryService, *countingLoader) {
	t.Helper()
	loader := newLoader()
	svc, err := NewCategoryService(config.DefaultCategories(), loader, index)
	require.NoError(t, err)
	return svc, loader
}

func TestNewCategoryServiceOrder(t *testing.T) {
	svc, _ := newService(t, nil)
	var ids []string
	for _, c := range svc.List() {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{"longtermcare", "hospitals", "primarycare"}, ids)

	infos := svc.Infos()
	require.Len(t, infos, 3)
	assert.Equal(t, "blue", infos[0].Style.Color)
	assert.Equal(t, "Type", infos[0].FilterField)
	assert.Equal(t, "longtermcareType", infos[0].FilterSignal)
	assert.Empty(t, infos[1].FilterField)
}

func TestNewCategoryServiceErrors(t *testing.T) {
	cfgs := []config.CategoryConfig{{ID: "a", Source: "a", Popup: "nope"}}
	_, err := NewCategoryService(cfgs, newLoader(), nil)
	assert.ErrorContains(t, err, "unknown popup")

	cfgs = []config.CategoryConfig{
		{ID: "a", Source: "a", Popup: "facility"},
		{ID: "a", Source: "b", Popup: "facility"},
	}
	_, err = NewCategoryService(cfgs, newLoader(), nil)
	assert.ErrorContains(t, err, "duplicate")
}

func TestGetUnknown(t *testing.T) {
	svc, _ := newService(t, nil)
	_, err := svc.Get("pharmacies")
	assert.True(t, eris.Is(err, facility.ErrUnknownCategory))
}

func TestFeaturesFiltersAndFetchesFresh(t *testing.T) {
	svc, loader := newService(t, nil)
	ctx := context.Background()

	markers, total, err := svc.Features(ctx, "longtermcare", "Nursing")
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	require.Len(t, markers, 2)
	assert.Equal(t, "blue", markers[0].Color)

	markers, _, err = svc.Features(ctx, "longtermcare", facility.AllValues)
	require.NoError(t, err)
	assert.Len(t, markers, 4)
	assert.EqualValues(t, 2, loader.calls.Load())
}

func TestFeaturesLoadError(t *testing.T) {
	svc, loader := newService(t, nil)
	delete(loader.data, "data/hospitals.geojson")
	_, _, err := svc.Features(context.Background(), "hospitals", "")
	assert.ErrorContains(t, err, "service: load hospitals")
}

func TestOptions(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()

	opts, err := svc.Options(ctx, "longtermcare")
	require.NoError(t, err)
	assert.Equal(t, []string{"all", "Assisted", "Nursing"}, opts)

	opts, err = svc.Options(ctx, "hospitals")
	require.NoError(t, err)
	assert.Empty(t, opts)
}

func TestNewMapIngestsIntoIndex(t *testing.T) {
	conn, err := db.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	index := db.NewIndex(conn)

	svc, _ := newService(t, index)
	m := svc.NewMap()
	results := m.Load(context.Background(), facility.NewViewState(svc.List()))
	require.Len(t, results, 3)
	for _, r := range results {
		assert.Equal(t, facility.StatusLoaded, r.Status, r.Category)
	}

	tables, err := index.Tables(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"facilities_hospitals", "facilities_longtermcare", "facilities_primarycare"}, tables)
}

func TestSessionStore(t *testing.T) {
	svc, _ := newService(t, nil)
	store := NewSessionStore(svc, time.Minute)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	id, m, created := store.Get("")
	require.NotEmpty(t, id)
	require.NotNil(t, m)
	assert.True(t, created)

	again, m2, created := store.Get(id)
	assert.Equal(t, id, again)
	assert.Same(t, m, m2)
	assert.False(t, created)

	other, m3, created := store.Get("not-a-uuid")
	assert.NotEqual(t, id, other)
	assert.NotSame(t, m, m3)
	assert.True(t, created)
	assert.Equal(t, 2, store.Len())

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 2, store.Sweep())
	assert.Equal(t, 0, store.Len())
}

func TestSessionStoreExpiredIDGetsFreshSession(t *testing.T) {
	svc, _ := newService(t, nil)
	store := NewSessionStore(svc, time.Minute)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	id, m, _ := store.Get("")
	_, err := m.Toggle("hospitals", false)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	fresh, m2, created := store.Get(id)
	assert.True(t, created)
	assert.NotEqual(t, id, fresh)
	assert.NotSame(t, m, m2)
	assert.Equal(t, 1, store.Len())
}

func TestEventBus(t *testing.T) {
	bus := NewEventBus()
	ch := bus.Subscribe()
	assert.Equal(t, 1, bus.Subscribers())

	bus.Publish(Event{Resource: "categories", Action: "refreshed", ID: "hospitals", Session: "s1"})
	e := <-ch
	assert.Equal(t, "hospitals", e.ID)
	assert.True(t, e.For("s1"))
	assert.False(t, e.For("s2"))
	assert.True(t, Event{}.For("s2"))

	bus.Unsubscribe(ch)
	assert.Equal(t, 0, bus.Subscribers())
	_, open := <-ch
	assert.False(t, open)
}
