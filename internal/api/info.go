package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
)

type InfoHandler struct {
	dataDir    string
	dbOK       bool
	categories int
}

func NewInfoHandler(dataDir string, dbOK bool, categories int) *InfoHandler {
	return &InfoHandler{dataDir: dataDir, dbOK: dbOK, categories: categories}
}

func (h *InfoHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

type InfoBody struct {
	Name       string   `json:"name" doc:"Service name"`
	Version    string   `json:"version" doc:"Service version"`
	DataDir    string   `json:"data_dir" doc:"Data directory path"`
	DB         bool     `json:"db" doc:"Whether the facility index is available"`
	Categories int      `json:"categories" doc:"Number of configured categories"`
	Features   []string `json:"features" doc:"Available features"`
}

func (h *InfoHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	features := []string{"categories", "legend", "clusters", "basemaps", "geocode"}
	if h.dbOK {
		features = append(features, "duckdb")
	}
	return &struct{ Body InfoBody }{Body: InfoBody{
		Name:       "plat-care",
		Version:    Version,
		DataDir:    h.dataDir,
		DB:         h.dbOK,
		Categories: h.categories,
		Features:   features,
	}}, nil
}
