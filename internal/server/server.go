// Package server wires configuration, services and routes into the
// plat-care HTTP server.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"path/filepath"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-care/internal/api"
	"github.com/joeblew999/plat-care/internal/api/viewer"
	"github.com/joeblew999/plat-care/internal/basemap"
	"github.com/joeblew999/plat-care/internal/config"
	"github.com/joeblew999/plat-care/internal/db"
	"github.com/joeblew999/plat-care/internal/facility"
	"github.com/joeblew999/plat-care/internal/geocode"
	"github.com/joeblew999/plat-care/internal/humastar"
	"github.com/joeblew999/plat-care/internal/service"
	"github.com/joeblew999/plat-care/internal/source"
	"github.com/joeblew999/plat-care/internal/templates"
)

// Tile cache sizing for the base map proxy.
const (
	tileCacheEntries = 4096
	tileCacheTTL     = 24 * time.Hour
)

// Server is the plat-care HTTP server.
type Server struct {
	config     *config.Config
	mux        *http.ServeMux
	handler    http.Handler
	humaAPI    huma.API
	links      *humastar.Links
	index      *db.Index
	categories *service.CategoryService
	sessions   *service.SessionStore
	bus        *service.EventBus
	renderer   *templates.Renderer
	basemaps   *basemap.Proxy
	viewer     *viewer.Handler
	geocoder   *geocode.Client
}

// Option customizes a Server.
type Option func(*options)

type options struct {
	loader facility.Loader
	index  *db.Index
}

// WithLoader replaces the dataset loader.
func WithLoader(l facility.Loader) Option {
	return func(o *options) { o.loader = l }
}

// WithIndex supplies an open facility index instead of the on-disk one.
func WithIndex(idx *db.Index) Option {
	return func(o *options) { o.index = idx }
}

// New creates a new plat-care server.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	s := &Server{
		config: cfg,
		mux:    http.NewServeMux(),
		bus:    service.NewEventBus(),
	}

	// Create Huma API with humago (pure stdlib) adapter
	humaConfig := huma.DefaultConfig("plat-care API", api.Version)
	humaConfig.Info.Description = "Care facility map API: category layers, filters, legend, base maps and place search."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%d", displayHost(cfg.Server.Host), cfg.Server.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, humastar.LinkTransformer(func() *humastar.Links { return s.links }))
	s.humaAPI = humago.New(s.mux, humaConfig)

	loader := o.loader
	if loader == nil {
		loader = source.NewMux(cfg.DataDir, cfg.Geocoder.UserAgent)
	}

	s.index = o.index
	if s.index == nil && cfg.Index.Enabled {
		conn, err := db.Get(db.Config{DataDir: cfg.DataDir, DBName: cfg.Index.DBName})
		if err != nil {
			zap.L().Warn("server: facility index disabled", zap.Error(err))
		} else {
			s.index = db.NewIndex(conn)
		}
	}

	var err error
	if s.categories, err = service.NewCategoryService(cfg.Categories, loader, s.index); err != nil {
		return nil, err
	}
	s.sessions = service.NewSessionStore(s.categories, time.Duration(cfg.Sessions.IdleMinutes)*time.Minute)

	if s.renderer, err = templates.Load(cfg.WebDir); err != nil {
		return nil, eris.Wrap(err, "server: load templates")
	}

	registry, err := basemap.NewRegistry(cfg.Basemaps, "/basemaps")
	if err != nil {
		return nil, err
	}
	s.basemaps = basemap.NewProxy(registry, basemap.NewTileCache(tileCacheEntries, tileCacheTTL), cfg.Geocoder.UserAgent)

	if s.geocoder, err = newGeocoder(cfg.Geocoder); err != nil {
		return nil, err
	}

	s.viewer = viewer.NewHandler(s.categories, s.sessions, s.bus, s.renderer)

	s.routes()
	s.handler = requestLogger(s.mux)
	return s, nil
}

func newGeocoder(cfg config.GeocoderConfig) (*geocode.Client, error) {
	opts := []geocode.Option{
		geocode.WithRateLimit(cfg.RateLimit),
		geocode.WithUserAgent(cfg.UserAgent),
	}
	ttl := time.Duration(cfg.Cache.TTLMinutes) * time.Minute
	switch cfg.Cache.Driver {
	case "memory":
		opts = append(opts, geocode.WithCache(geocode.NewMemoryCache(cfg.Cache.MaxEntries, ttl)))
	case "redis":
		cache, err := geocode.NewRedisCache(cfg.Cache.RedisURL, ttl)
		if err != nil {
			return nil, eris.Wrap(err, "server: geocoder cache")
		}
		opts = append(opts, geocode.WithCache(cache))
	}
	return geocode.NewClient(cfg.URL, opts...), nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// OpenAPI returns the generated OpenAPI document.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Categories returns the category registry.
func (s *Server) Categories() *service.CategoryService {
	return s.categories
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.sweepSessions(ctx)

	errc := make(chan error, 1)
	go func() {
		zap.L().Info("server: listening", zap.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if eris.Is(err, http.ErrServerClosed) {
			return nil
		}
		return eris.Wrap(err, "server: listen")
	case <-ctx.Done():
	}

	zap.L().Info("server: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "server: shutdown")
	}
	return nil
}

func (s *Server) sweepSessions(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sessions.Sweep()
		}
	}
}

// Close closes server resources.
func (s *Server) Close() error {
	return db.Close()
}

func (s *Server) routes() {
	// Huma REST API routes (OpenAPI-documented JSON endpoints)
	api.RegisterRoutes(s.humaAPI, &api.Services{
		Categories:  s.categories,
		Basemaps:    s.basemaps.Registry(),
		Geocoder:    s.geocoder,
		SearchLimit: s.config.Geocoder.Limit,
		DefaultZoom: s.config.Map.Zoom,
	})
	api.NewInfoHandler(s.config.DataDir, s.index != nil, len(s.categories.List())).RegisterRoutes(s.humaAPI)
	api.NewDBHandler(s.index).RegisterRoutes(s.humaAPI)

	// Viewer SSE routes using Huma + Datastar SDK
	s.viewer.RegisterRoutes(s.humaAPI)

	s.links = humastar.AutoLinks(s.humaAPI, "viewer", "nominatim")

	// Static files, datasets and the base map proxy
	static, err := fs.Sub(templates.FS(s.config.WebDir), "static")
	if err == nil {
		s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(static))))
	}
	dataDir := filepath.Join(s.config.DataDir, "data")
	s.mux.Handle("/data/", http.StripPrefix("/data/", http.FileServer(http.Dir(dataDir))))
	s.mux.Handle("/basemaps/", http.StripPrefix("/basemaps", s.basemaps))

	// Page routes
	s.mux.HandleFunc("/viewer", s.handleViewer)
	s.mux.HandleFunc("/", s.handleRoot)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	for _, link := range s.links.Root() {
		w.Header().Add("Link", link)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"service": "plat-care",
		"status":  "running",
		"viewer":  "/viewer",
	})
}

func (s *Server) handleViewer(w http.ResponseWriter, r *http.Request) {
	page := s.viewer.Page(r.Context(), viewer.PageConfig{
		Title:      "Care Facilities",
		CenterLat:  s.config.Map.CenterLat,
		CenterLon:  s.config.Map.CenterLon,
		Zoom:       s.config.Map.Zoom,
		Basemaps:   s.basemaps.Registry().List(),
		GeocodeURL: "/geocode/",
	})
	html, err := s.renderer.Render("viewer", page)
	if err != nil {
		zap.L().Error("server: render viewer", zap.Error(err))
		http.Error(w, "viewer unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(html))
}

func displayHost(host string) string {
	if host == "" || host == "0.0.0.0" {
		return "localhost"
	}
	return host
}
