// Package warehouse is a thin adapter over the BigQuery SQL driver.
//
// It exposes exactly two capabilities to the agent: schema inspection and
// query execution. Each call is a single bounded round trip; there is no
// caching, no retry, and no local SQL validation. Retry policy belongs to the
// caller (in practice, the agent's fold-back loop).
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	_ "github.com/viant/bigquery" // registers the "bigquery" driver
)

// Config contains the parameters for a warehouse client.
type Config struct {
	// ProjectID is the GCP project holding the dataset.
	ProjectID string

	// DatasetID is the default dataset for unqualified table references.
	DatasetID string

	// CallTimeout bounds each round trip. Zero means DefaultCallTimeout.
	CallTimeout time.Duration
}

// DefaultCallTimeout bounds a warehouse round trip when none is configured.
const DefaultCallTimeout = 60 * time.Second

// Column describes one column of a table schema snapshot.
type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// Schema is an immutable snapshot of a table's schema at fetch time.
type Schema struct {
	Table   string   `json:"table"`
	Columns []Column `json:"columns"`
}

// ResultSet holds query results in the order the warehouse returned them.
// Values are rendered to strings at scan time; NULL becomes "NULL".
type ResultSet struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Client executes schema lookups and queries against BigQuery.
// Stateless apart from the connection pool; safe for concurrent use.
type Client struct {
	db        *sql.DB
	projectID string
	datasetID string
	timeout   time.Duration
	logger    *slog.Logger
}

// New opens a warehouse client.
// Credentials are resolved by the driver from the environment (application
// default credentials), the same way the hosted model credential is.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.ProjectID == "" || cfg.DatasetID == "" {
		return nil, fmt.Errorf("warehouse: project and dataset are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}

	db, err := sql.Open("bigquery",
		fmt.Sprintf("bigquery://%s/%s", cfg.ProjectID, cfg.DatasetID))
	if err != nil {
		return nil, fmt.Errorf("opening warehouse connection: %w", err)
	}

	return &Client{
		db:        db,
		projectID: cfg.ProjectID,
		datasetID: cfg.DatasetID,
		timeout:   timeout,
		logger:    logger,
	}, nil
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("closing warehouse connection: %w", err)
	}
	return nil
}

// TableSchema fetches the schema of a table.
//
// The table reference is qualified against the configured project and
// dataset: "orders" becomes project.dataset.orders, "ds.orders" becomes
// project.ds.orders, and a fully qualified reference passes through.
// Returns ErrTableNotFound if the table has no columns in INFORMATION_SCHEMA.
func (c *Client) TableSchema(ctx context.Context, table string) (*Schema, error) {
	project, dataset, name := c.qualify(table)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	query := fmt.Sprintf(
		"SELECT column_name, data_type, is_nullable FROM `%s.%s.INFORMATION_SCHEMA.COLUMNS` WHERE table_name = ? ORDER BY ordinal_position",
		project, dataset)

	rows, err := c.db.QueryContext(ctx, query, name)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	schema := &Schema{Table: fmt.Sprintf("%s.%s.%s", project, dataset, name)}
	for rows.Next() {
		var col Column
		var nullable string
		if err := rows.Scan(&col.Name, &col.Type, &nullable); err != nil {
			return nil, classify(err)
		}
		col.Nullable = strings.EqualFold(nullable, "YES")
		schema.Columns = append(schema.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}

	if len(schema.Columns) == 0 {
		return nil, fmt.Errorf("table %q: %w", schema.Table, ErrTableNotFound)
	}

	c.logger.Debug("fetched table schema", "table", schema.Table, "columns", len(schema.Columns))
	return schema, nil
}

// Query executes a SQL statement and returns the result set in warehouse
// order. A surrounding ```sql fence is stripped first, since models tend to
// wrap generated SQL in one.
func (c *Client) Query(ctx context.Context, sqlText string) (*ResultSet, error) {
	sqlText = StripSQLFence(sqlText)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	rows, err := c.db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, classify(err)
	}

	result := &ResultSet{Columns: columns}
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, classify(err)
		}
		row := make([]string, len(columns))
		for i, v := range values {
			row[i] = renderValue(v)
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}

	c.logger.Debug("executed query", "columns", len(result.Columns), "rows", len(result.Rows))
	return result, nil
}

// sqlFenceRe matches a whole message wrapped in a ```sql fence.
var sqlFenceRe = regexp.MustCompile("(?s)^```sql(.*)```$")

// StripSQLFence removes a surrounding ```sql code fence, if present.
func StripSQLFence(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	if m := sqlFenceRe.FindStringSubmatch(trimmed); m != nil {
		return strings.TrimSpace(m[1])
	}
	return trimmed
}

// qualify splits a table reference into project, dataset, and table parts,
// filling missing parts from the client configuration.
func (c *Client) qualify(table string) (project, dataset, name string) {
	parts := strings.Split(strings.TrimSpace(table), ".")
	switch len(parts) {
	case 1:
		return c.projectID, c.datasetID, parts[0]
	case 2:
		return c.projectID, parts[0], parts[1]
	default:
		return parts[0], parts[1], strings.Join(parts[2:], ".")
	}
}

func renderValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return fmt.Sprint(val)
	}
}
