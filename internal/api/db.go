package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-care/internal/db"
)

// DBHandler exposes the DuckDB facility index.
type DBHandler struct {
	index *db.Index
}

// NewDBHandler creates a new database handler. index may be nil when the
// index is disabled.
func NewDBHandler(index *db.Index) *DBHandler {
	return &DBHandler{index: index}
}

// RegisterRoutes registers database routes with Huma.
func (h *DBHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/tables", h.ListTables, huma.OperationTags("index"))
	huma.Post(api, "/api/v1/query", h.Query, huma.OperationTags("index"))
}

// TablesBody lists the index tables.
type TablesBody struct {
	Tables []string `json:"tables" doc:"Index table names, one per loaded category" example:"facilities_hospitals"`
}

// ListTables returns the facility index tables.
func (h *DBHandler) ListTables(ctx context.Context, input *struct{}) (*struct{ Body TablesBody }, error) {
	if h.index == nil {
		return nil, huma.Error503ServiceUnavailable("Database not available")
	}
	tables, err := h.index.Tables(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to list tables", err)
	}
	return &struct{ Body TablesBody }{Body: TablesBody{Tables: tables}}, nil
}

// QueryInput is the input for SQL queries.
type QueryInput struct {
	Body struct {
		Query string `json:"query" required:"true" minLength:"1" doc:"SQL query to execute" example:"SELECT count(*) FROM facilities_hospitals"`
	}
}

// QueryBody is the response for SQL queries.
type QueryBody struct {
	Columns []string         `json:"columns" doc:"Column names"`
	Rows    []map[string]any `json:"rows" doc:"Query results"`
	Count   int              `json:"count" doc:"Number of rows returned"`
}

// Query executes a SQL query against the index.
func (h *DBHandler) Query(ctx context.Context, input *QueryInput) (*struct{ Body QueryBody }, error) {
	if h.index == nil {
		return nil, huma.Error503ServiceUnavailable("Database not available")
	}
	res, err := h.index.Query(ctx, input.Body.Query)
	if err != nil {
		return nil, huma.Error400BadRequest("Query failed: " + err.Error())
	}
	return &struct{ Body QueryBody }{Body: QueryBody{
		Columns: res.Columns,
		Rows:    res.Rows,
		Count:   len(res.Rows),
	}}, nil
}
