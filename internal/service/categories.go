// Package service contains the plat-care business logic between the HTTP
// handlers and the facility layers.
package service

import (
	"context"
	"sort"

	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-care/internal/config"
	"github.com/joeblew999/plat-care/internal/db"
	"github.com/joeblew999/plat-care/internal/facility"
)

// CategoryInfo is the public description of a category layer.
type CategoryInfo struct {
	ID            string               `json:"id" doc:"Category id" example:"longtermcare"`
	Label         string               `json:"label" doc:"Display label" example:"Long Term Care"`
	Style         facility.MarkerStyle `json:"style" doc:"Marker style"`
	Source        string               `json:"source" doc:"Dataset location" example:"data/longtermcare.geojson"`
	FilterField   string               `json:"filterField,omitempty" doc:"Attribute the dropdown filters on" example:"Type"`
	FilterSignal  string               `json:"filterSignal,omitempty" doc:"Dropdown element id" example:"longtermcareType"`
	VisibleSignal string               `json:"visibleSignal" doc:"Checkbox element id" example:"longtermcare"`
}

// CategoryService owns the configured categories and the dataset loader.
type CategoryService struct {
	categories []*facility.Category
	byID       map[string]*facility.Category
	loader     facility.Loader
	index      *db.Index
}

// NewCategory converts a category definition into a facility category.
func NewCategory(c config.CategoryConfig) (*facility.Category, error) {
	popup, ok := facility.PopupByName(c.Popup)
	if !ok {
		return nil, eris.Errorf("service: category %q has unknown popup %q", c.ID, c.Popup)
	}
	label := c.Label
	if label == "" {
		label = c.ID
	}
	visible := c.VisibleSignal
	if visible == "" {
		visible = c.ID
	}
	return &facility.Category{
		ID:            c.ID,
		Label:         label,
		Source:        c.Source,
		Style:         facility.MarkerStyle{Color: c.Color, Radius: facility.DefaultRadius},
		Filter:        facility.Filter{Property: c.FilterField},
		Popup:         popup,
		FilterSignal:  c.FilterSignal,
		VisibleSignal: visible,
	}, nil
}

// NewCategoryService builds the registry in configuration order. index may be nil.
func NewCategoryService(cfgs []config.CategoryConfig, loader facility.Loader, index *db.Index) (*CategoryService, error) {
	s := &CategoryService{
		byID:   make(map[string]*facility.Category, len(cfgs)),
		loader: loader,
		index:  index,
	}
	for _, c := range cfgs {
		cat, err := NewCategory(c)
		if err != nil {
			return nil, err
		}
		if _, dup := s.byID[cat.ID]; dup {
			return nil, eris.Errorf("service: duplicate category %q", cat.ID)
		}
		s.byID[cat.ID] = cat
		s.categories = append(s.categories, cat)
	}
	return s, nil
}

// List returns the categories in display order.
func (s *CategoryService) List() []*facility.Category {
	return s.categories
}

// Infos returns the public descriptions in display order.
func (s *CategoryService) Infos() []CategoryInfo {
	out := make([]CategoryInfo, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, Info(c))
	}
	return out
}

// Info describes a category.
func Info(c *facility.Category) CategoryInfo {
	return CategoryInfo{
		ID:            c.ID,
		Label:         c.Label,
		Style:         c.Style,
		Source:        c.Source,
		FilterField:   c.Filter.Property,
		FilterSignal:  c.FilterSignal,
		VisibleSignal: c.VisibleSignal,
	}
}

// Get returns a category by id.
func (s *CategoryService) Get(id string) (*facility.Category, error) {
	c, ok := s.byID[id]
	if !ok {
		return nil, eris.Wrapf(facility.ErrUnknownCategory, "category %q", id)
	}
	return c, nil
}

// Features runs one stateless refresh: a fresh fetch filtered by value.
// It returns the rendered markers and the size of the full dataset.
func (s *CategoryService) Features(ctx context.Context, id, value string) ([]facility.Marker, int, error) {
	cat, err := s.Get(id)
	if err != nil {
		return nil, 0, err
	}
	fc, err := s.loader.Load(ctx, cat.Source)
	if err != nil {
		return nil, 0, eris.Wrapf(err, "service: load %s", id)
	}
	s.Observe(ctx, cat, fc)
	return facility.Render(fc, cat, value), len(fc.Features), nil
}

// Options returns the dropdown values for a filtered category: the "all"
// sentinel followed by the sorted distinct filter attribute values.
func (s *CategoryService) Options(ctx context.Context, id string) ([]string, error) {
	cat, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if !cat.Filter.Enabled() {
		return []string{}, nil
	}
	fc, err := s.loader.Load(ctx, cat.Source)
	if err != nil {
		return nil, eris.Wrapf(err, "service: load %s", id)
	}
	return DistinctValues(fc, cat.Filter.Property), nil
}

// DistinctValues returns "all" plus the sorted distinct string values of prop.
func DistinctValues(fc *geojson.FeatureCollection, prop string) []string {
	seen := map[string]bool{}
	var values []string
	for _, f := range fc.Features {
		if f == nil {
			continue
		}
		v, ok := f.Properties[prop].(string)
		if !ok || v == "" || v == facility.AllValues || seen[v] {
			continue
		}
		seen[v] = true
		values = append(values, v)
	}
	sort.Strings(values)
	return append([]string{facility.AllValues}, values...)
}

// Observe mirrors a freshly fetched dataset into the index, if enabled.
func (s *CategoryService) Observe(ctx context.Context, cat *facility.Category, fc *geojson.FeatureCollection) {
	if s.index == nil {
		return
	}
	if _, err := s.index.Ingest(ctx, cat.ID, fc); err != nil {
		zap.L().Warn("service: index ingest failed", zap.String("category", cat.ID), zap.Error(err))
	}
}

// NewMap creates a viewer map over every category.
func (s *CategoryService) NewMap() *facility.Map {
	return facility.NewMap(s.categories, s.loader, facility.WithLoadObserver(s.Observe))
}
