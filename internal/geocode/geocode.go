// Package geocode provides place search against a Nominatim-compatible service.
package geocode

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// Place is one search hit.
type Place struct {
	DisplayName string    `json:"display_name" doc:"Full place name"`
	Lat         float64   `json:"lat" doc:"Latitude"`
	Lon         float64   `json:"lon" doc:"Longitude"`
	BoundingBox []float64 `json:"boundingbox" doc:"South, north, west, east"`
	OSMType     string    `json:"osm_type,omitempty" doc:"node, way or relation"`
	OSMID       int64     `json:"osm_id,omitempty" doc:"OpenStreetMap id"`
	Category    string    `json:"category,omitempty" doc:"Place category"`
	Type        string    `json:"type,omitempty" doc:"Place type"`
	Importance  float64   `json:"importance,omitempty" doc:"Search ranking importance"`
}

// nominatimPlace mirrors the jsonv2 wire format, which encodes numbers as strings.
type nominatimPlace struct {
	DisplayName string   `json:"display_name"`
	Lat         string   `json:"lat"`
	Lon         string   `json:"lon"`
	BoundingBox []string `json:"boundingbox"`
	OSMType     string   `json:"osm_type"`
	OSMID       int64    `json:"osm_id"`
	Category    string   `json:"category"`
	Type        string   `json:"type"`
	Importance  float64  `json:"importance"`
}

func (n nominatimPlace) place() (Place, error) {
	lat, err := strconv.ParseFloat(n.Lat, 64)
	if err != nil {
		return Place{}, eris.Wrapf(err, "geocode: parse lat %q", n.Lat)
	}
	lon, err := strconv.ParseFloat(n.Lon, 64)
	if err != nil {
		return Place{}, eris.Wrapf(err, "geocode: parse lon %q", n.Lon)
	}
	p := Place{
		DisplayName: n.DisplayName,
		Lat:         lat,
		Lon:         lon,
		OSMType:     n.OSMType,
		OSMID:       n.OSMID,
		Category:    n.Category,
		Type:        n.Type,
		Importance:  n.Importance,
	}
	for _, s := range n.BoundingBox {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			p.BoundingBox = append(p.BoundingBox, f)
		}
	}
	return p, nil
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRateLimit sets the upstream requests-per-second limit.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithCache stores results for repeated queries.
func WithCache(cache Cache) Option {
	return func(c *Client) {
		c.cache = cache
	}
}

// WithUserAgent identifies the application, as Nominatim's usage policy requires.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// Client searches a Nominatim-compatible endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      Cache
	userAgent  string
	group      singleflight.Group
}

// NewClient creates a search client for baseURL (e.g. https://nominatim.openstreetmap.org).
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    rate.NewLimiter(1, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search returns up to limit places matching query.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Place, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []Place{}, nil
	}
	if limit <= 0 {
		limit = 5
	}
	key := cacheKey(query, limit)

	if c.cache != nil {
		if places, ok := c.cache.Get(ctx, key); ok {
			return places, nil
		}
	}

	// The shared fetch outlives any one caller; each caller still honors its own ctx.
	ch := c.group.DoChan(key, func() (any, error) {
		return c.fetch(context.WithoutCancel(ctx), query, limit)
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, eris.Wrap(ctx.Err(), "geocode: search cancelled")
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}
	places := res.Val.([]Place)

	if c.cache != nil {
		c.cache.Set(ctx, key, places)
	}
	return places, nil
}

func (c *Client) fetch(ctx context.Context, query string, limit int) ([]Place, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: rate limit wait")
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "jsonv2")
	params.Set("limit", strconv.Itoa(limit))
	params.Set("addressdetails", "0")
	reqURL := c.baseURL + "/search?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: create request")
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: search request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("geocode: upstream returned %d", resp.StatusCode)
	}

	var raw []nominatimPlace
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, eris.Wrap(err, "geocode: decode response")
	}

	places := make([]Place, 0, len(raw))
	for _, r := range raw {
		p, err := r.place()
		if err != nil {
			zap.L().Debug("geocode: skipping result", zap.Error(err))
			continue
		}
		places = append(places, p)
	}
	zap.L().Debug("geocode: search", zap.String("query", query), zap.Int("results", len(places)))
	return places, nil
}

// Nominatim converts places back to the jsonv2 wire format, so a browser
// geocoder control can point at this server as if it were Nominatim.
func Nominatim(places []Place) []map[string]any {
	out := make([]map[string]any, 0, len(places))
	for _, p := range places {
		bbox := make([]string, 0, len(p.BoundingBox))
		for _, f := range p.BoundingBox {
			bbox = append(bbox, strconv.FormatFloat(f, 'f', -1, 64))
		}
		out = append(out, map[string]any{
			"display_name": p.DisplayName,
			"lat":          strconv.FormatFloat(p.Lat, 'f', -1, 64),
			"lon":          strconv.FormatFloat(p.Lon, 'f', -1, 64),
			"boundingbox":  bbox,
			"osm_type":     p.OSMType,
			"osm_id":       p.OSMID,
			"category":     p.Category,
			"type":         p.Type,
			"importance":   p.Importance,
		})
	}
	return out
}

func cacheKey(query string, limit int) string {
	return strings.ToLower(query) + "|" + strconv.Itoa(limit)
}
