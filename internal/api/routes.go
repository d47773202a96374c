// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-care/internal/basemap"
	"github.com/joeblew999/plat-care/internal/cluster"
	"github.com/joeblew999/plat-care/internal/facility"
	"github.com/joeblew999/plat-care/internal/geocode"
	"github.com/joeblew999/plat-care/internal/humastar"
	"github.com/joeblew999/plat-care/internal/service"
)

// Version is the API version reported by /health and /api/v1/info.
const Version = "0.1.0"

// Searcher finds places by free text.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]geocode.Place, error)
}

// Services holds the service dependencies for API handlers.
type Services struct {
	Categories  *service.CategoryService
	Basemaps    *basemap.Registry
	Geocoder    Searcher
	SearchLimit int
	DefaultZoom int
}

// Types

type IDInput struct {
	ID string `path:"id" doc:"Category ID" example:"longtermcare"`
}

type FilterInput struct {
	IDInput
	Filter string `query:"filter" default:"all" doc:"Filter value; \"all\" disables filtering" example:"Nursing"`
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"0.1.0"`
}

// CategoryDetail is a category plus its related actions.
type CategoryDetail struct {
	service.CategoryInfo
}

var categoryActions = []humastar.ActionDef{
	{Rel: "features", Pattern: "/api/v1/categories/%s/features", Method: "GET", Title: "Filtered GeoJSON"},
	{Rel: "facilities", Pattern: "/api/v1/categories/%s/facilities", Method: "GET", Title: "Paginated markers"},
	{Rel: "clusters", Pattern: "/api/v1/categories/%s/clusters", Method: "GET", Title: "Marker clusters"},
}

// Actions implements humastar.Actor. Only filtered categories expose options.
func (d CategoryDetail) Actions() []humastar.Action {
	actions := humastar.ActionsFor(d.ID, categoryActions)
	if d.FilterField != "" {
		actions = append(actions, humastar.ActionsFor(d.ID, []humastar.ActionDef{
			{Rel: "options", Pattern: "/api/v1/categories/%s/options", Method: "GET", Title: "Filter values"},
		})...)
	}
	return actions
}

type OptionsBody struct {
	Category string   `json:"category" doc:"Category ID"`
	Field    string   `json:"field" doc:"Filtered attribute"`
	Options  []string `json:"options" doc:"Dropdown values, \"all\" first"`
}

type ClustersBody struct {
	Category string            `json:"category" doc:"Category ID"`
	Zoom     int               `json:"zoom" doc:"Map zoom"`
	Total    int               `json:"total" doc:"Markers clustered"`
	Clusters []cluster.Cluster `json:"clusters" doc:"Clusters, largest first"`
}

type SearchBody struct {
	Query   string          `json:"query" doc:"Search text"`
	Results []geocode.Place `json:"results" doc:"Matching places"`
}

// APIHandler holds all REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	return &APIHandler{svc: svc}
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

// RegisterCategories registers the category layer routes.
func (h *APIHandler) RegisterCategories(api huma.API) {
	huma.Get(api, "/api/v1/categories", h.GetCategories, huma.OperationTags("categories"))
	huma.Get(api, "/api/v1/categories/{id}", h.GetCategory, huma.OperationTags("categories"))
	huma.Get(api, "/api/v1/categories/{id}/features", h.GetFeatures, huma.OperationTags("categories"))
	huma.Get(api, "/api/v1/categories/{id}/facilities", h.GetFacilities, huma.OperationTags("categories"))
	huma.Get(api, "/api/v1/categories/{id}/options", h.GetOptions, huma.OperationTags("categories"))
	huma.Get(api, "/api/v1/categories/{id}/clusters", h.GetClusters, huma.OperationTags("categories"))
}

// RegisterLegend registers the legend route.
func (h *APIHandler) RegisterLegend(api huma.API) {
	huma.Get(api, "/api/v1/legend", h.GetLegend, huma.OperationTags("categories"))
}

// RegisterBasemaps registers base map listing routes.
func (h *APIHandler) RegisterBasemaps(api huma.API) {
	huma.Get(api, "/api/v1/basemaps", h.GetBasemaps, huma.OperationTags("basemaps"))
}

// RegisterSearch registers place search routes.
func (h *APIHandler) RegisterSearch(api huma.API) {
	huma.Get(api, "/api/v1/search", h.Search, huma.OperationTags("search"))
}

// RegisterNominatim registers the Nominatim-compatible search mirror used by
// the page's geocoder control.
func (h *APIHandler) RegisterNominatim(api huma.API) {
	huma.Get(api, "/geocode/search", h.NominatimSearch, huma.OperationTags("nominatim"))
}

// Handlers

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: Version}}, nil
}

func (h *APIHandler) GetCategories(ctx context.Context, input *struct{}) (*struct{ Body []service.CategoryInfo }, error) {
	return &struct{ Body []service.CategoryInfo }{Body: h.svc.Categories.Infos()}, nil
}

func (h *APIHandler) GetCategory(ctx context.Context, input *IDInput) (*struct{ Body CategoryDetail }, error) {
	cat, err := h.svc.Categories.Get(input.ID)
	if err != nil {
		return nil, httpError(err)
	}
	return &struct{ Body CategoryDetail }{Body: CategoryDetail{service.Info(cat)}}, nil
}

// GetFeatures returns the filtered category as GeoJSON, with popup and color
// in each feature's properties.
func (h *APIHandler) GetFeatures(ctx context.Context, input *FilterInput) (*struct{ Body *geojson.FeatureCollection }, error) {
	markers, _, err := h.svc.Categories.Features(ctx, input.ID, input.Filter)
	if err != nil {
		return nil, httpError(err)
	}
	return &struct{ Body *geojson.FeatureCollection }{Body: facility.FeatureCollection(markers)}, nil
}

func (h *APIHandler) GetFacilities(ctx context.Context, input *struct {
	FilterInput
	Offset int `query:"offset" minimum:"0" doc:"Page offset"`
	Limit  int `query:"limit" minimum:"0" maximum:"1000" default:"100" doc:"Page size"`
}) (*struct {
	Body humastar.PageBody[facility.Marker]
}, error) {
	markers, _, err := h.svc.Categories.Features(ctx, input.ID, input.Filter)
	if err != nil {
		return nil, httpError(err)
	}
	return &struct {
		Body humastar.PageBody[facility.Marker]
	}{Body: humastar.Page(markers, input.Offset, input.Limit)}, nil
}

func (h *APIHandler) GetOptions(ctx context.Context, input *IDInput) (*struct{ Body OptionsBody }, error) {
	cat, err := h.svc.Categories.Get(input.ID)
	if err != nil {
		return nil, httpError(err)
	}
	if !cat.Filter.Enabled() {
		return nil, huma.Error404NotFound("category " + input.ID + " has no filter")
	}
	opts, err := h.svc.Categories.Options(ctx, input.ID)
	if err != nil {
		return nil, httpError(err)
	}
	return &struct{ Body OptionsBody }{Body: OptionsBody{
		Category: cat.ID, Field: cat.Filter.Property, Options: opts,
	}}, nil
}

func (h *APIHandler) GetClusters(ctx context.Context, input *struct {
	FilterInput
	Zoom   int `query:"zoom" minimum:"-1" maximum:"22" default:"-1" doc:"Map zoom; -1 uses the configured initial zoom"`
	Radius int `query:"radius" minimum:"1" maximum:"512" default:"80" doc:"Cluster radius in pixels"`
}) (*struct{ Body ClustersBody }, error) {
	markers, _, err := h.svc.Categories.Features(ctx, input.ID, input.Filter)
	if err != nil {
		return nil, httpError(err)
	}
	zoom := input.Zoom
	if zoom < 0 {
		zoom = h.svc.DefaultZoom
	}
	return &struct{ Body ClustersBody }{Body: ClustersBody{
		Category: input.ID,
		Zoom:     zoom,
		Total:    len(markers),
		Clusters: cluster.Group(markers, zoom, input.Radius),
	}}, nil
}

func (h *APIHandler) GetLegend(ctx context.Context, input *struct {
	Visible string `query:"visible" doc:"Comma-separated visible category IDs; empty means all" example:"longtermcare,hospitals"`
}) (*struct{ Body []facility.LegendEntry }, error) {
	cats := h.svc.Categories.List()
	state := facility.NewViewState(cats)
	if input.Visible != "" {
		for id := range state.Visible {
			state.Visible[id] = false
		}
		for _, id := range strings.Split(input.Visible, ",") {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			if _, err := h.svc.Categories.Get(id); err != nil {
				return nil, huma.Error400BadRequest("unknown category " + id)
			}
			state.Visible[id] = true
		}
	}
	return &struct{ Body []facility.LegendEntry }{Body: facility.Legend(cats, state)}, nil
}

func (h *APIHandler) GetBasemaps(ctx context.Context, input *struct{}) (*struct{ Body []basemap.Provider }, error) {
	if h.svc.Basemaps == nil {
		return &struct{ Body []basemap.Provider }{Body: []basemap.Provider{}}, nil
	}
	return &struct{ Body []basemap.Provider }{Body: h.svc.Basemaps.List()}, nil
}

func (h *APIHandler) Search(ctx context.Context, input *struct {
	Q     string `query:"q" required:"true" minLength:"1" doc:"Free-text place query" example:"Albany, NY"`
	Limit int    `query:"limit" minimum:"0" maximum:"50" doc:"Maximum results; 0 uses the configured default"`
}) (*struct{ Body SearchBody }, error) {
	if h.svc.Geocoder == nil {
		return nil, huma.Error503ServiceUnavailable("Search not available")
	}
	limit := input.Limit
	if limit == 0 {
		limit = h.svc.SearchLimit
	}
	places, err := h.svc.Geocoder.Search(ctx, input.Q, limit)
	if err != nil {
		zap.L().Warn("api: search failed", zap.String("query", input.Q), zap.Error(err))
		return nil, huma.Error502BadGateway("Search failed", err)
	}
	if places == nil {
		places = []geocode.Place{}
	}
	return &struct{ Body SearchBody }{Body: SearchBody{Query: input.Q, Results: places}}, nil
}

// NominatimSearch answers in Nominatim's jsonv2 format. Query parameters the
// browser control adds (format, addressdetails) are accepted and ignored.
func (h *APIHandler) NominatimSearch(ctx context.Context, input *struct {
	Q     string `query:"q" doc:"Free-text place query"`
	Limit int    `query:"limit" minimum:"0" maximum:"50" doc:"Maximum results"`
}) (*struct{ Body []map[string]any }, error) {
	if h.svc.Geocoder == nil {
		return nil, huma.Error503ServiceUnavailable("Search not available")
	}
	limit := input.Limit
	if limit == 0 {
		limit = h.svc.SearchLimit
	}
	places, err := h.svc.Geocoder.Search(ctx, input.Q, limit)
	if err != nil {
		zap.L().Warn("api: nominatim mirror failed", zap.String("query", input.Q), zap.Error(err))
		return nil, huma.Error502BadGateway("Search failed", err)
	}
	return &struct{ Body []map[string]any }{Body: geocode.Nominatim(places)}, nil
}

// httpError maps service errors onto HTTP status codes.
func httpError(err error) error {
	if eris.Is(err, facility.ErrUnknownCategory) {
		return huma.Error404NotFound("category not found", err)
	}
	zap.L().Warn("api: dataset unavailable", zap.Error(err))
	return huma.Error502BadGateway("Failed to load dataset", err)
}

// RegisterRoutes registers every REST route served from svc.
func RegisterRoutes(api huma.API, svc *Services) {
	huma.AutoRegister(api, NewAPIHandler(svc))
}
