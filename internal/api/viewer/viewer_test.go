package viewer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-care/internal/config"
	"github.com/joeblew999/plat-care/internal/facility"
	"github.com/joeblew999/plat-care/internal/humastar"
	"github.com/joeblew999/plat-care/internal/service"
	"github.com/joeblew999/plat-care/internal/templates"
)

type fixture struct {
	api      humatest.TestAPI
	sessions *service.SessionStore
	bus      *service.EventBus
	handler  *Handler
	calls    *atomic.Int32
}

func feature(lon, lat float64, props geojson.Properties) *geojson.Feature {
	f := geojson.NewFeature(orb.Point{lon, lat})
	f.Properties = props
	return f
}

// hospitals has no dataset, so its loads always fail.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ltc := geojson.NewFeatureCollection()
	ltc.Append(feature(-73.75, 42.65, geojson.Properties{"Name": "Oak Manor", "Type": "Nursing"}))
	ltc.Append(feature(-76.15, 43.05, geojson.Properties{"Name": "Elm Court", "Type": "Assisted"}))
	pc := geojson.NewFeatureCollection()
	pc.Append(feature(-73.9, 40.8, geojson.Properties{"first name": "Ada", "Specialty": "Pediatrics"}))
	data := map[string]*geojson.FeatureCollection{
		"data/longtermcare.geojson": ltc,
		"data/primarycare.geojson":  pc,
	}

	calls := &atomic.Int32{}
	loader := facility.LoaderFunc(func(_ context.Context, location string) (*geojson.FeatureCollection, error) {
		calls.Add(1)
		fc, ok := data[location]
		if !ok {
			return nil, eris.Errorf("%s: connection refused", location)
		}
		return fc, nil
	})

	cats, err := service.NewCategoryService(config.DefaultCategories(), loader, nil)
	require.NoError(t, err)
	renderer, err := templates.Load("")
	require.NoError(t, err)

	sessions := service.NewSessionStore(cats, time.Hour)
	bus := service.NewEventBus()
	h := NewHandler(cats, sessions, bus, renderer)

	api := humago.New(http.NewServeMux(), huma.DefaultConfig("test", "1.0.0"))
	h.RegisterRoutes(api)

	return &fixture{api: humatest.Wrap(t, api), sessions: sessions, bus: bus, handler: h, calls: calls}
}

func TestRoutesCarryDatastarMetadata(t *testing.T) {
	f := newFixture(t)
	ops := humastar.DatastarOperations(f.api)
	assert.Len(t, ops, 4)
	assert.Contains(t, humastar.SignalNames(f.api), "longtermcareType")
	assert.Contains(t, humastar.SignalNames(f.api), SessionSignal)
}

func TestLoad(t *testing.T) {
	f := newFixture(t)

	resp := f.api.Post("/api/v1/viewer/load", map[string]any{
		"longtermcare":     true,
		"hospitals":        true,
		"primarycare":      false,
		"longtermcareType": "Nursing",
	})
	require.Equal(t, http.StatusOK, resp.Code)
	body := resp.Body.String()

	assert.Contains(t, body, "datastar-patch-signals")
	assert.Contains(t, body, `"sessionid":"`)
	assert.GreaterOrEqual(t, strings.Count(body, EventLayerRefreshed), 3)
	assert.Contains(t, body, "Oak Manor")
	assert.NotContains(t, body, "Elm Court")
	assert.Contains(t, body, "Failed to load hospitals")
	assert.Contains(t, body, " Long Term Care</div>")
	assert.Contains(t, body, " Hospitals</div>")
	assert.NotContains(t, body, " Primary Care</div>")
	assert.Equal(t, 1, f.sessions.Len())
	assert.EqualValues(t, 3, f.calls.Load())
}

func TestLoadReusesSession(t *testing.T) {
	f := newFixture(t)
	id, m, _ := f.sessions.Get("")

	resp := f.api.Post("/api/v1/viewer/load", map[string]any{SessionSignal: id})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.NotContains(t, resp.Body.String(), `"sessionid":"`)
	assert.Equal(t, 1, f.sessions.Len())

	layer, err := m.Layer("longtermcare")
	require.NoError(t, err)
	assert.Equal(t, facility.StatusLoaded, layer.Snapshot().Status)
}

func TestToggle(t *testing.T) {
	f := newFixture(t)
	id, m, _ := f.sessions.Get("")
	m.Load(context.Background(), facility.NewViewState(m.Categories()))
	before := f.calls.Load()

	resp := f.api.Post("/api/v1/viewer/categories/primarycare/toggle", map[string]any{
		SessionSignal: id, "primarycare": false,
	})
	require.Equal(t, http.StatusOK, resp.Code)
	body := resp.Body.String()
	assert.Contains(t, body, EventLayerVisibility)
	assert.Contains(t, body, "mapLegend")
	assert.NotContains(t, body, " Primary Care</div>")
	assert.Contains(t, body, " Hospitals</div>")
	assert.False(t, m.Visible("primarycare"))
	assert.Equal(t, before, f.calls.Load())

	resp = f.api.Post("/api/v1/viewer/categories/pharmacies/toggle", map[string]any{})
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestFilter(t *testing.T) {
	f := newFixture(t)
	id, m, _ := f.sessions.Get("")

	resp := f.api.Post("/api/v1/viewer/categories/longtermcare/filter", map[string]any{
		SessionSignal: id, "longtermcareType": "Assisted",
	})
	require.Equal(t, http.StatusOK, resp.Code)
	body := resp.Body.String()
	assert.Contains(t, body, EventLayerRefreshed)
	assert.Contains(t, body, "status-longtermcare")
	assert.Contains(t, body, "1 of 2")

	layer, err := m.Layer("longtermcare")
	require.NoError(t, err)
	require.Len(t, layer.Markers(), 1)
	assert.Equal(t, "Elm Court", layer.Markers()[0].Properties["Name"])

	other, err := m.Layer("primarycare")
	require.NoError(t, err)
	assert.Equal(t, facility.Status(""), other.Snapshot().Status)

	resp = f.api.Post("/api/v1/viewer/categories/hospitals/filter", map[string]any{SessionSignal: id})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestExpiredSessionIsSeededFromSignals(t *testing.T) {
	f := newFixture(t)
	f.handler.sessions = service.NewSessionStore(f.handler.categories, time.Millisecond)
	old, _, _ := f.handler.sessions.Get("")
	time.Sleep(5 * time.Millisecond)

	resp := f.api.Post("/api/v1/viewer/categories/primarycare/toggle", map[string]any{
		SessionSignal: old, "longtermcare": false, "hospitals": false, "primarycare": false,
	})
	require.Equal(t, http.StatusOK, resp.Code)
	body := resp.Body.String()
	assert.Contains(t, body, `"sessionid":"`)
	assert.NotContains(t, body, `"sessionid":"`+old)
	assert.NotContains(t, body, " Long Term Care</div>")
	assert.NotContains(t, body, " Hospitals</div>")
	assert.NotContains(t, body, " Primary Care</div>")

	time.Sleep(5 * time.Millisecond)
	resp = f.api.Post("/api/v1/viewer/categories/longtermcare/filter", map[string]any{
		SessionSignal: old, "longtermcare": false, "longtermcareType": "Assisted",
	})
	require.Equal(t, http.StatusOK, resp.Code)
	body = resp.Body.String()
	assert.Contains(t, body, EventLayerRefreshed)
	assert.Contains(t, body, `"visible":false`)
	assert.NotContains(t, body, `"session":"`+old)
	assert.Contains(t, body, "1 of 2")
}

func TestFilterFailureSurfacesError(t *testing.T) {
	f := newFixture(t)
	cats, err := service.NewCategoryService([]config.CategoryConfig{{
		ID: "hospitals", Source: "data/hospitals.geojson", Popup: "facility",
		FilterField: "Type", FilterSignal: "hospitalsType",
	}}, facility.LoaderFunc(func(context.Context, string) (*geojson.FeatureCollection, error) {
		return nil, eris.New("timeout")
	}), nil)
	require.NoError(t, err)
	f.handler.categories = cats
	f.handler.sessions = service.NewSessionStore(cats, time.Hour)

	resp := f.api.Post("/api/v1/viewer/categories/hospitals/filter", map[string]any{"hospitalsType": "General"})
	require.Equal(t, http.StatusOK, resp.Code)
	body := resp.Body.String()
	assert.Contains(t, body, "Failed to load hospitals")
	assert.Contains(t, body, "failed")
}

func TestEvents(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		for f.bus.Subscribers() == 0 {
			time.Sleep(time.Millisecond)
		}
		f.bus.Publish(service.Event{Resource: "categories", Action: "refreshed", ID: "longtermcare", Session: "s1"})
		f.bus.Publish(service.Event{Resource: "categories", Action: "refreshed", ID: "primarycare", Session: "s2"})
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	q := url.QueryEscape(`{"sessionid":"s1"}`)
	req := httptest.NewRequestWithContext(ctx, http.MethodGet, "/api/v1/viewer/events?datastar="+q, nil)
	rec := httptest.NewRecorder()
	f.api.Adapter().ServeHTTP(rec, req)

	body := rec.Body.String()
	assert.Contains(t, body, EventResourceChanged)
	assert.Contains(t, body, "longtermcare")
	assert.NotContains(t, body, "primarycare")
	assert.Equal(t, 0, f.bus.Subscribers())
}

func TestPage(t *testing.T) {
	f := newFixture(t)
	page := f.handler.Page(context.Background(), PageConfig{
		Title: "Care Facilities", CenterLat: 42.7, CenterLon: -75.5, Zoom: 6,
	})

	assert.NotEmpty(t, page.Session)
	assert.Equal(t, page.Session, page.Signals[SessionSignal])
	assert.Equal(t, true, page.Signals["hospitals"])
	assert.Equal(t, "all", page.Signals["longtermcareType"])
	require.Len(t, page.Categories, 3)
	assert.Empty(t, page.Categories[1].Options)
	require.Len(t, page.Categories[0].Options, 3)
	assert.Equal(t, "All", page.Categories[0].Options[0].Label)
	assert.True(t, page.Categories[0].Options[0].Selected)
	assert.Len(t, page.Legend, 3)
	assert.Equal(t, []string{"longtermcare", "hospitals", "primarycare"}, page.Config["categories"])

	html, err := f.handler.Renderer.Render("viewer", page)
	require.NoError(t, err)
	assert.Contains(t, html, `id="mapLegend"`)
	assert.Contains(t, html, `id="longtermcareType"`)
	assert.Contains(t, html, `<option value="Nursing">Nursing</option>`)
	assert.Contains(t, html, "/api/v1/viewer/load")
}
