// Package config loads plat-care configuration from file, .env and environment.
package config

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	DataDir    string           `yaml:"data_dir" mapstructure:"data_dir"`
	WebDir     string           `yaml:"web_dir" mapstructure:"web_dir"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Map        MapConfig        `yaml:"map" mapstructure:"map"`
	Basemaps   []BasemapConfig  `yaml:"basemaps" mapstructure:"basemaps"`
	Geocoder   GeocoderConfig   `yaml:"geocoder" mapstructure:"geocoder"`
	Categories []CategoryConfig `yaml:"categories" mapstructure:"categories"`
	Sessions   SessionConfig    `yaml:"sessions" mapstructure:"sessions"`
	Index      IndexConfig      `yaml:"index" mapstructure:"index"`

	// StadiaAPIKey fills api_key on Stadia base maps that have none, so the
	// key can come from CARE_STADIA_API_KEY.
	StadiaAPIKey string `yaml:"stadia_api_key" mapstructure:"stadia_api_key"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host" mapstructure:"host"`
	Port int    `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// MapConfig holds the initial map view.
type MapConfig struct {
	CenterLat float64 `yaml:"center_lat" mapstructure:"center_lat"`
	CenterLon float64 `yaml:"center_lon" mapstructure:"center_lon"`
	Zoom      int     `yaml:"zoom" mapstructure:"zoom"`
}

// BasemapConfig describes one upstream raster tile provider.
type BasemapConfig struct {
	ID          string `yaml:"id" mapstructure:"id"`
	Name        string `yaml:"name" mapstructure:"name"`
	URL         string `yaml:"url" mapstructure:"url"`
	Attribution string `yaml:"attribution" mapstructure:"attribution"`
	Ext         string `yaml:"ext" mapstructure:"ext"`
	MinZoom     int    `yaml:"min_zoom" mapstructure:"min_zoom"`
	MaxZoom     int    `yaml:"max_zoom" mapstructure:"max_zoom"`
	Default     bool   `yaml:"default" mapstructure:"default"`
	// APIKey is sent upstream as the api_key query parameter. Stadia only
	// serves keyless requests from browsers, so a proxied Stadia layer needs one.
	APIKey string `yaml:"api_key" mapstructure:"api_key"`
}

// GeocoderConfig configures the Nominatim-compatible search backend.
type GeocoderConfig struct {
	URL       string      `yaml:"url" mapstructure:"url"`
	UserAgent string      `yaml:"user_agent" mapstructure:"user_agent"`
	RateLimit float64     `yaml:"rate_limit" mapstructure:"rate_limit"`
	Limit     int         `yaml:"limit" mapstructure:"limit"`
	Cache     CacheConfig `yaml:"cache" mapstructure:"cache"`
}

// CacheConfig selects the search result cache backend.
type CacheConfig struct {
	Driver     string `yaml:"driver" mapstructure:"driver"` // memory, redis or none
	RedisURL   string `yaml:"redis_url" mapstructure:"redis_url"`
	TTLMinutes int    `yaml:"ttl_minutes" mapstructure:"ttl_minutes"`
	MaxEntries int    `yaml:"max_entries" mapstructure:"max_entries"`
}

// CategoryConfig defines one facility category layer.
type CategoryConfig struct {
	ID            string `yaml:"id" mapstructure:"id"`
	Label         string `yaml:"label" mapstructure:"label"`
	Color         string `yaml:"color" mapstructure:"color"`
	Source        string `yaml:"source" mapstructure:"source"`
	Popup         string `yaml:"popup" mapstructure:"popup"` // facility or provider
	FilterField   string `yaml:"filter_field" mapstructure:"filter_field"`
	FilterSignal  string `yaml:"filter_signal" mapstructure:"filter_signal"`
	VisibleSignal string `yaml:"visible_signal" mapstructure:"visible_signal"`
}

// SessionConfig configures viewer session retention.
type SessionConfig struct {
	IdleMinutes int `yaml:"idle_minutes" mapstructure:"idle_minutes"`
}

// IndexConfig configures the DuckDB facility index.
type IndexConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	DBName  string `yaml:"db_name" mapstructure:"db_name"`
}

// Load reads configuration from an optional file, .env and CARE_* environment variables.
// An empty path searches for config.yaml in the working directory.
func Load(path string) (*Config, error) {
	_ = godotenv.Load(".env")

	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("CARE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !eris.As(err, &notFound) {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	cfg.applyStadiaKey()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8086)
	v.SetDefault("data_dir", ".")
	v.SetDefault("web_dir", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("map.center_lat", 42.7)
	v.SetDefault("map.center_lon", -75.5)
	v.SetDefault("map.zoom", 6)
	v.SetDefault("geocoder.url", "https://nominatim.openstreetmap.org")
	v.SetDefault("geocoder.user_agent", "plat-care/0.1 (facility viewer)")
	v.SetDefault("geocoder.rate_limit", 1.0)
	v.SetDefault("geocoder.limit", 5)
	v.SetDefault("geocoder.cache.driver", "memory")
	v.SetDefault("geocoder.cache.ttl_minutes", 24*60)
	v.SetDefault("geocoder.cache.max_entries", 1000)
	v.SetDefault("sessions.idle_minutes", 60)
	v.SetDefault("index.enabled", true)
	v.SetDefault("index.db_name", "care")
	v.SetDefault("basemaps", DefaultBasemaps())
	v.SetDefault("stadia_api_key", "")
	v.SetDefault("categories", DefaultCategories())
}

func (c *Config) applyStadiaKey() {
	if c.StadiaAPIKey == "" {
		return
	}
	for i := range c.Basemaps {
		if c.Basemaps[i].APIKey == "" && strings.Contains(c.Basemaps[i].URL, "stadiamaps.com") {
			c.Basemaps[i].APIKey = c.StadiaAPIKey
		}
	}
}

// Validate checks cross-field constraints that defaults cannot express.
func (c *Config) Validate() error {
	if len(c.Categories) == 0 {
		return eris.New("config: at least one category is required")
	}
	seen := make(map[string]bool, len(c.Categories))
	for _, cat := range c.Categories {
		if cat.ID == "" {
			return eris.New("config: category id is required")
		}
		if seen[cat.ID] {
			return eris.Errorf("config: duplicate category %q", cat.ID)
		}
		seen[cat.ID] = true
		if cat.Source == "" {
			return eris.Errorf("config: category %q has no source", cat.ID)
		}
		if cat.FilterField != "" && cat.FilterSignal == "" {
			return eris.Errorf("config: category %q filters on %q but has no filter_signal", cat.ID, cat.FilterField)
		}
	}
	switch c.Geocoder.Cache.Driver {
	case "memory", "redis", "none":
	default:
		return eris.Errorf("config: unknown geocoder cache driver %q", c.Geocoder.Cache.Driver)
	}
	if c.Geocoder.Cache.Driver == "redis" && c.Geocoder.Cache.RedisURL == "" {
		return eris.New("config: geocoder.cache.redis_url is required for the redis driver")
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
