package basemap

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

var (
	// ErrUnknownProvider is returned for a provider id not in the registry.
	ErrUnknownProvider = eris.New("basemap: unknown provider")
	// ErrInvalidTile is returned for coordinates the provider cannot serve.
	ErrInvalidTile = eris.New("basemap: invalid tile")
)

// Proxy fetches tiles from the upstream providers through a shared cache.
type Proxy struct {
	registry  *Registry
	client    *http.Client
	cache     *TileCache
	userAgent string
}

// NewProxy creates a tile proxy. cache may be nil.
func NewProxy(registry *Registry, cache *TileCache, userAgent string) *Proxy {
	return &Proxy{
		registry:  registry,
		client:    &http.Client{Timeout: 30 * time.Second},
		cache:     cache,
		userAgent: userAgent,
	}
}

// Registry returns the provider registry.
func (p *Proxy) Registry() *Registry {
	return p.registry
}

// Fetch returns a tile and its content type.
func (p *Proxy) Fetch(ctx context.Context, providerID string, z, x, y int) ([]byte, string, error) {
	prov, ok := p.registry.Get(providerID)
	if !ok {
		return nil, "", eris.Wrapf(ErrUnknownProvider, "provider %q", providerID)
	}
	if z < prov.MinZoom || z > prov.MaxZoom {
		return nil, "", eris.Wrapf(ErrInvalidTile, "zoom %d outside %d-%d for %s", z, prov.MinZoom, prov.MaxZoom, providerID)
	}
	if n := 1 << uint(z); x < 0 || y < 0 || x >= n || y >= n {
		return nil, "", eris.Wrapf(ErrInvalidTile, "tile %d/%d/%d out of range", z, x, y)
	}

	if p.cache != nil {
		if cached := p.cache.Get(providerID, z, x, y); cached != nil {
			return cached, prov.ContentType(), nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, prov.TileURLFor(z, x, y), nil)
	if err != nil {
		return nil, "", eris.Wrap(err, "basemap: create request")
	}
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, "", eris.Wrap(err, "basemap: fetch tile")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, "", eris.Errorf("basemap: upstream returned %d for %s/%d/%d/%d", resp.StatusCode, providerID, z, x, y)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", eris.Wrap(err, "basemap: read tile body")
	}

	if p.cache != nil {
		p.cache.Put(providerID, z, x, y, data)
	}

	ct := prov.ContentType()
	if upstream := resp.Header.Get("Content-Type"); strings.HasPrefix(upstream, "image/") {
		ct = upstream
	}
	zap.L().Debug("basemap: fetched tile", zap.String("provider", providerID),
		zap.Int("z", z), zap.Int("x", x), zap.Int("y", y), zap.Int("bytes", len(data)))
	return data, ct, nil
}

// ServeHTTP serves /{provider}/{z}/{x}/{y}; mount it with http.StripPrefix.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 4 {
		http.Error(w, "invalid tile path", http.StatusBadRequest)
		return
	}
	coords := make([]int, 3)
	for i, s := range parts[1:] {
		// Accept an optional extension on y, e.g. 12.png.
		if dot := strings.IndexByte(s, '.'); dot >= 0 {
			s = s[:dot]
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			http.Error(w, "invalid tile path", http.StatusBadRequest)
			return
		}
		coords[i] = n
	}

	data, ct, err := p.Fetch(r.Context(), parts[0], coords[0], coords[1], coords[2])
	if err != nil {
		switch {
		case eris.Is(err, ErrUnknownProvider):
			http.Error(w, "unknown base map", http.StatusNotFound)
			return
		case eris.Is(err, ErrInvalidTile):
			http.Error(w, "invalid tile", http.StatusBadRequest)
			return
		}
		zap.L().Warn("basemap: tile fetch failed", zap.String("path", r.URL.Path), zap.Error(err))
		http.Error(w, "upstream fetch failed", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", ct)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	_, _ = w.Write(data)
}
