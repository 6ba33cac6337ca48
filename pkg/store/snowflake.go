// pkg/store/snowflake.go
package store

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/snowflakedb/gosnowflake" // registers the snowflake driver
	"go.uber.org/zap"

	"github.com/xtechon/vatflow/pkg/config"
	"github.com/xtechon/vatflow/pkg/frame"
)

// identifierPattern restricts warehouse identifiers to safe characters
// since table names are interpolated into queries
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

// WarehouseSource reads transaction frames straight from a Snowflake
// table, as an alternative to file upload
type WarehouseSource struct {
	db     *sqlx.DB
	cfg    *config.SnowflakeConfig
	logger *zap.Logger
}

// NewWarehouseSource connects to Snowflake and verifies the connection
// with a bounded ping
func NewWarehouseSource(ctx context.Context, cfg *config.SnowflakeConfig, logger *zap.Logger) (*WarehouseSource, error) {
	if cfg == nil {
		return nil, fmt.Errorf("snowflake configuration is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	dsn, err := cfg.ConnectionString()
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open("snowflake", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open Snowflake connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping Snowflake: %w", err)
	}

	logger.Info("Connected to Snowflake",
		zap.String("account", cfg.Account),
		zap.String("warehouse", cfg.Warehouse))

	return &WarehouseSource{
		db:     db,
		cfg:    cfg,
		logger: logger.Named("warehouse"),
	}, nil
}

// Close releases the underlying connection pool
func (s *WarehouseSource) Close() error {
	return s.db.Close()
}

// FetchFrame reads an entire warehouse table into a Frame. The table
// reference must be "schema.table"; column names become frame column
// names as-is and are reconciled downstream like any uploaded header
// row.
func (s *WarehouseSource) FetchFrame(ctx context.Context, tableRef string) (*frame.Frame, error) {
	schemaName, tableName, err := splitTableRef(tableRef)
	if err != nil {
		return nil, err
	}

	queryCtx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()

	query := fmt.Sprintf("SELECT * FROM %s.%s", schemaName, tableName)
	rows, err := s.db.QueryxContext(queryCtx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", tableRef, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", tableRef, err)
	}

	cells := make([][]interface{}, len(columns))
	rowCount := 0
	for rows.Next() {
		values, err := rows.SliceScan()
		if err != nil {
			return nil, fmt.Errorf("failed to scan row %d of %s: %w", rowCount, tableRef, err)
		}
		for i := range columns {
			var v interface{}
			if i < len(values) {
				v = normalizeDriverValue(values[i])
			}
			cells[i] = append(cells[i], v)
		}
		rowCount++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s: %w", tableRef, err)
	}

	f := frame.New()
	for i, name := range columns {
		f.AddColumn(name, cells[i])
	}

	s.logger.Info("Fetched warehouse table",
		zap.String("table", tableRef),
		zap.Int("rows", rowCount),
		zap.Int("columns", len(columns)))

	return f, nil
}

// splitTableRef validates and splits a "schema.table" reference
func splitTableRef(ref string) (string, string, error) {
	parts := strings.Split(ref, ".")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("table reference %q must be schema.table", ref)
	}
	for _, p := range parts {
		if !identifierPattern.MatchString(p) {
			return "", "", fmt.Errorf("invalid identifier %q in table reference", p)
		}
	}
	return parts[0], parts[1], nil
}

// normalizeDriverValue flattens driver byte slices into strings so the
// frame carries comparable cell values
func normalizeDriverValue(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
