package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

var identRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Index mirrors every successfully loaded category dataset into a DuckDB
// table named facilities_<category>, replacing it wholesale each load.
// Ingests are serialized; concurrent catalog changes conflict in DuckDB.
type Index struct {
	db *sql.DB
	mu sync.Mutex
}

// NewIndex wraps an open connection.
func NewIndex(db *sql.DB) *Index {
	return &Index{db: db}
}

// DB returns the underlying connection.
func (i *Index) DB() *sql.DB {
	return i.db
}

// TableName returns the table holding a category.
func TableName(category string) (string, error) {
	if !identRe.MatchString(category) {
		return "", eris.Errorf("db: category %q is not a valid table suffix", category)
	}
	return "facilities_" + category, nil
}

// Ingest replaces the category's table with the point features of fc.
func (i *Index) Ingest(ctx context.Context, category string, fc *geojson.FeatureCollection) (int, error) {
	table, err := TableName(category)
	if err != nil {
		return 0, err
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "db: begin ingest")
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []string{
		fmt.Sprintf("DROP TABLE IF EXISTS %s", table),
		fmt.Sprintf("CREATE TABLE %s (id VARCHAR, lon DOUBLE, lat DOUBLE, properties VARCHAR)", table),
	}
	for _, s := range stmts {
		if _, err := tx.ExecContext(ctx, s); err != nil {
			return 0, eris.Wrapf(err, "db: prepare %s", table)
		}
	}

	insert, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s VALUES (?, ?, ?, ?)", table))
	if err != nil {
		return 0, eris.Wrap(err, "db: prepare insert")
	}
	defer func() { _ = insert.Close() }()

	rows := 0
	for n, f := range fc.Features {
		if f == nil {
			continue
		}
		pt, ok := f.Geometry.(orb.Point)
		if !ok {
			continue
		}
		props, err := json.Marshal(f.Properties)
		if err != nil {
			return 0, eris.Wrap(err, "db: encode properties")
		}
		id := fmt.Sprint(n)
		if f.ID != nil {
			id = fmt.Sprint(f.ID)
		}
		if _, err := insert.ExecContext(ctx, id, pt.Lon(), pt.Lat(), string(props)); err != nil {
			return 0, eris.Wrapf(err, "db: insert into %s", table)
		}
		rows++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "db: commit ingest")
	}
	zap.L().Debug("db: indexed category", zap.String("table", table), zap.Int("rows", rows))
	return rows, nil
}

// Tables lists the index tables.
func (i *Index) Tables(ctx context.Context) ([]string, error) {
	rows, err := i.db.QueryContext(ctx, "SELECT table_name FROM information_schema.tables WHERE table_name LIKE 'facilities_%'")
	if err != nil {
		return nil, eris.Wrap(err, "db: list tables")
	}
	defer func() { _ = rows.Close() }()

	tables := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err == nil {
			tables = append(tables, name)
		}
	}
	sort.Strings(tables)
	return tables, rows.Err()
}

// QueryResult is a generic tabular result.
type QueryResult struct {
	Columns []string
	Rows    []map[string]any
}

// Query runs an ad hoc SQL query against the index.
func (i *Index) Query(ctx context.Context, query string) (QueryResult, error) {
	rows, err := i.db.QueryContext(ctx, query)
	if err != nil {
		return QueryResult{}, eris.Wrap(err, "db: query")
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return QueryResult{}, eris.Wrap(err, "db: columns")
	}

	result := QueryResult{Columns: columns, Rows: []map[string]any{}}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for n := range values {
			ptrs[n] = &values[n]
		}
		if err := rows.Scan(ptrs...); err != nil {
			continue
		}
		row := make(map[string]any, len(columns))
		for n, col := range columns {
			row[col] = values[n]
		}
		result.Rows = append(result.Rows, row)
	}
	return result, rows.Err()
}
