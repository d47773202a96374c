// Package viewer contains the Datastar SSE handlers behind the facility map
// page: initial load, checkbox toggles, dropdown filters and the event stream.
package viewer

import (
	"context"
	"fmt"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-care/internal/facility"
	"github.com/joeblew999/plat-care/internal/humastar"
	"github.com/joeblew999/plat-care/internal/service"
)

// SessionSignal carries the viewer session id.
const SessionSignal = "sessionid"

// Custom DOM events dispatched to the page.
const (
	EventLayerRefreshed  = "layer-refreshed"
	EventLayerVisibility = "layer-visibility"
	EventResourceChanged = "resource-changed"
)

// LegendSelector is the element holding the legend.
const LegendSelector = "#mapLegend"

// Handler serves the viewer's Datastar endpoints.
type Handler struct {
	humastar.Handler
	categories *service.CategoryService
	sessions   *service.SessionStore
	bus        *service.EventBus
}

// NewHandler creates a viewer handler.
func NewHandler(categories *service.CategoryService, sessions *service.SessionStore, bus *service.EventBus, renderer *humastar.Renderer) *Handler {
	return &Handler{
		Handler:    humastar.Handler{Renderer: renderer},
		categories: categories,
		sessions:   sessions,
		bus:        bus,
	}
}

func (h *Handler) RegisterRoutes(api huma.API) {
	var visible, filters []string
	for _, c := range h.categories.List() {
		visible = append(visible, c.VisibleSignal)
		if c.FilterSignal != "" {
			filters = append(filters, c.FilterSignal)
		}
	}

	huma.Post(api, "/api/v1/viewer/load", h.Load,
		huma.OperationTags("viewer"),
		humastar.Datastar(humastar.DatastarOperation{
			Signals: append(append([]string{SessionSignal}, visible...), filters...),
			Events:  []string{EventLayerRefreshed},
			Patches: []string{LegendSelector, "#status-{id}"},
		}),
	)
	huma.Post(api, "/api/v1/viewer/categories/{id}/toggle", h.Toggle,
		huma.OperationTags("viewer"),
		humastar.Datastar(humastar.DatastarOperation{
			Signals: append([]string{SessionSignal}, visible...),
			Events:  []string{EventLayerVisibility},
			Patches: []string{LegendSelector},
		}),
	)
	huma.Post(api, "/api/v1/viewer/categories/{id}/filter", h.Filter,
		huma.OperationTags("viewer"),
		humastar.Datastar(humastar.DatastarOperation{
			Signals: append([]string{SessionSignal}, filters...),
			Events:  []string{EventLayerRefreshed},
			Patches: []string{"#status-{id}"},
		}),
	)
	huma.Get(api, "/api/v1/viewer/events", h.Events,
		huma.OperationTags("viewer"),
		humastar.Datastar(humastar.DatastarOperation{
			Signals: []string{SessionSignal},
			Events:  []string{EventResourceChanged},
		}),
	)
}

// CategoryInput is a category path parameter plus the page's signals.
type CategoryInput struct {
	ID      string `path:"id" doc:"Category ID" example:"longtermcare"`
	RawBody []byte
}

// Load refreshes every category for the session under the page's checkbox
// and dropdown state.
func (h *Handler) Load(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}

	return h.Stream(func(sse humastar.SSE) {
		session, m := h.session(sse, signals)
		state := facility.ViewStateFromSignals(m.Categories(), signals)

		failed := ""
		for _, res := range m.Load(ctx, state) {
			if res.Status == "" {
				continue
			}
			h.refreshed(sse, session, res, state.Visible[res.Category])
			if res.Status == facility.StatusFailed && failed == "" {
				failed = fmt.Sprintf("Failed to load %s: %s", res.Category, res.Error)
			}
		}
		sse.Patch(h.Render("legend", m.Legend()), LegendSelector)
		sse.Signals(map[string]any{"error": failed})
	}), nil
}

// Toggle attaches or detaches one category's layer. Nothing is reloaded.
func (h *Handler) Toggle(ctx context.Context, input *CategoryInput) (*huma.StreamResponse, error) {
	cat, signals, err := h.parse(input)
	if err != nil {
		return nil, err
	}
	visible := signals.Bool(cat.VisibleSignal)

	return h.Stream(func(sse humastar.SSE) {
		session, m := h.session(sse, signals)
		legend, err := m.Toggle(cat.ID, visible)
		if err != nil {
			sse.Error(err.Error())
			return
		}
		sse.Dispatch(EventLayerVisibility, map[string]any{
			"category": cat.ID, "visible": visible,
		})
		sse.Patch(h.Render("legend", legend), LegendSelector)
		h.bus.Publish(service.Event{Resource: "categories", Action: "toggled", ID: cat.ID, Session: session})
	}), nil
}

// Filter refreshes one category under its dropdown's new value. Sibling
// categories are untouched. A refresh overtaken by a newer one is dropped.
func (h *Handler) Filter(ctx context.Context, input *CategoryInput) (*huma.StreamResponse, error) {
	cat, signals, err := h.parse(input)
	if err != nil {
		return nil, err
	}
	if !cat.Filter.Enabled() {
		return nil, huma.Error400BadRequest("category " + cat.ID + " has no filter")
	}
	value := signals.String(cat.FilterSignal)

	return h.Stream(func(sse humastar.SSE) {
		session, m := h.session(sse, signals)
		res, err := m.SetFilter(ctx, cat.ID, value)
		if eris.Is(err, facility.ErrStale) {
			return
		}
		h.refreshed(sse, session, res, m.Visible(cat.ID))
		if res.Status == facility.StatusFailed {
			sse.Error(fmt.Sprintf("Failed to load %s: %s", cat.ID, res.Error))
			return
		}
		sse.Signals(map[string]any{"error": ""})
	}), nil
}

// Events streams the session's change events until the client disconnects.
func (h *Handler) Events(ctx context.Context, input *humastar.QuerySignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	session := signals.String(SessionSignal)

	return h.Stream(func(sse humastar.SSE) {
		ch := h.bus.Subscribe()
		defer h.bus.Unsubscribe(ch)

		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-ch:
				if !ev.For(session) {
					continue
				}
				sse.Dispatch(EventResourceChanged, map[string]any{
					"resource": ev.Resource,
					"action":   ev.Action,
					"id":       ev.ID,
				})
			}
		}
	}), nil
}

// RefreshedDetail is the layer-refreshed event payload.
type RefreshedDetail struct {
	Session  string `json:"session"`
	Category string `json:"category"`
	Seq      uint64 `json:"seq"`
	Visible  bool   `json:"visible"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
	Total    int    `json:"total"`
	Features any    `json:"features"`
}

func (h *Handler) refreshed(sse humastar.SSE, session string, res facility.Result, visible bool) {
	sse.Dispatch(EventLayerRefreshed, RefreshedDetail{
		Session:  session,
		Category: res.Category,
		Seq:      res.Seq,
		Visible:  visible,
		Status:   string(res.Status),
		Error:    res.Error,
		Total:    res.Total,
		Features: facility.FeatureCollection(res.Markers),
	})
	sse.Replace(h.Render("layer-status", res), "#status-"+res.Category)

	action := "refreshed"
	if res.Status == facility.StatusFailed {
		action = "failed"
	}
	h.bus.Publish(service.Event{Resource: "categories", Action: action, ID: res.Category, Session: session})
}

func (h *Handler) parse(input *CategoryInput) (*facility.Category, humastar.Signals, error) {
	cat, err := h.categories.Get(input.ID)
	if err != nil {
		return nil, nil, huma.Error404NotFound("category not found", err)
	}
	signals, err := humastar.ParseSignals(input.RawBody)
	if err != nil {
		return nil, nil, huma.Error400BadRequest("Invalid request data: " + err.Error())
	}
	return cat, signals, nil
}

// session resolves the request's session. A new session, whether the page had
// no id or its old one expired, gets a fresh id sent back to the page and is
// seeded from the request's checkbox and dropdown signals.
func (h *Handler) session(sse humastar.SSE, signals humastar.Signals) (string, *facility.Map) {
	sent := signals.String(SessionSignal)
	id, m, created := h.sessions.Get(sent)
	if created {
		zap.L().Debug("viewer: new session", zap.String("session", id), zap.String("previous", sent))
		sse.Signals(map[string]any{SessionSignal: id})
		m.Apply(facility.ViewStateFromSignals(m.Categories(), signals))
	}
	return id, m
}
