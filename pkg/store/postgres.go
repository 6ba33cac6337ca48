// pkg/store/postgres.go
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq" // registers the postgres driver
	"go.uber.org/zap"

	"github.com/xtechon/vatflow/pkg/config"
	"github.com/xtechon/vatflow/pkg/schema"
	"github.com/xtechon/vatflow/pkg/vat"
)

// PostgresStore backs the header, rule and rate stores with a
// PostgreSQL database
type PostgresStore struct {
	db     *sqlx.DB
	cfg    *config.PostgresConfig
	logger *zap.Logger
}

// NewPostgresStore connects to PostgreSQL, applies the configured pool
// settings and verifies the connection with a bounded ping
func NewPostgresStore(ctx context.Context, cfg *config.PostgresConfig, logger *zap.Logger) (*PostgresStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("postgres configuration is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	logger.Info("Connected to PostgreSQL",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database))

	return &PostgresStore{
		db:     db,
		cfg:    cfg,
		logger: logger.Named("pgstore"),
	}, nil
}

// Close releases the underlying connection pool
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// headerRow is the scan target for the headers table
type headerRow struct {
	Value         string         `db:"value"`
	Label         string         `db:"label"`
	Type          string         `db:"type"`
	Required      bool           `db:"required"`
	Aliases       pq.StringArray `db:"aliases"`
	AllowedValues pq.StringArray `db:"allowed_values"`
}

// ListHeaders returns all header definitions
func (s *PostgresStore) ListHeaders(ctx context.Context) ([]schema.HeaderDef, error) {
	queryCtx, cancel := context.WithTimeout(ctx, s.cfg.StatementTimeout)
	defer cancel()

	var rows []headerRow
	err := s.db.SelectContext(queryCtx, &rows, `
		SELECT value, label, type, required,
		       COALESCE(aliases, '{}') AS aliases,
		       COALESCE(allowed_values, '{}') AS allowed_values
		FROM headers
		ORDER BY value`)
	if err != nil {
		return nil, fmt.Errorf("failed to list headers: %w", err)
	}

	defs := make([]schema.HeaderDef, 0, len(rows))
	for _, r := range rows {
		defs = append(defs, schema.HeaderDef{
			Value:         r.Value,
			Label:         r.Label,
			Type:          schema.ParseSemanticType(r.Type),
			Required:      r.Required,
			Aliases:       r.Aliases,
			AllowedValues: r.AllowedValues,
		})
	}

	s.logger.Debug("Loaded header definitions", zap.Int("count", len(defs)))
	return defs, nil
}

// ListRules returns all VAT rules
func (s *PostgresStore) ListRules(ctx context.Context) ([]vat.Rule, error) {
	queryCtx, cancel := context.WithTimeout(ctx, s.cfg.StatementTimeout)
	defer cancel()

	var rules []vat.Rule
	err := s.db.SelectContext(queryCtx, &rules, `
		SELECT product_type, country, vat_rate, shipping_vat_rate
		FROM vat_rules
		ORDER BY product_type, country`)
	if err != nil {
		return nil, fmt.Errorf("failed to list VAT rules: %w", err)
	}

	s.logger.Debug("Loaded VAT rules", zap.Int("count", len(rules)))
	return rules, nil
}

// rateRow is the scan target for the exchange_rates table
type rateRow struct {
	Date     string  `db:"rate_date"`
	Currency string  `db:"currency"`
	Rate     float64 `db:"rate"`
}

// GetRates returns the persisted exchange rate table
func (s *PostgresStore) GetRates(ctx context.Context) (map[string]map[string]float64, error) {
	queryCtx, cancel := context.WithTimeout(ctx, s.cfg.StatementTimeout)
	defer cancel()

	var rows []rateRow
	err := s.db.SelectContext(queryCtx, &rows, `
		SELECT to_char(rate_date, 'YYYY-MM-DD') AS rate_date, currency, rate
		FROM exchange_rates
		ORDER BY rate_date`)
	if err != nil {
		return nil, fmt.Errorf("failed to load exchange rates: %w", err)
	}

	out := make(map[string]map[string]float64)
	for _, r := range rows {
		if _, ok := out[r.Date]; !ok {
			out[r.Date] = make(map[string]float64)
		}
		out[r.Date][r.Currency] = r.Rate
	}

	s.logger.Debug("Loaded exchange rates",
		zap.Int("dates", len(out)),
		zap.Int("rows", len(rows)))
	return out, nil
}

// SaveRates upserts a batch of synced rates
func (s *PostgresStore) SaveRates(ctx context.Context, rates map[string]map[string]float64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO exchange_rates (rate_date, currency, rate)
		VALUES ($1, $2, $3)
		ON CONFLICT (rate_date, currency) DO UPDATE SET rate = EXCLUDED.rate`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	var saved int
	for date, byCurrency := range rates {
		for currency, rate := range byCurrency {
			if _, err := stmt.ExecContext(ctx, date, currency, rate); err != nil {
				return fmt.Errorf("failed to upsert rate %s/%s: %w", date, currency, err)
			}
			saved++
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rate sync: %w", err)
	}

	s.logger.Info("Saved exchange rates", zap.Int("rows", saved))
	return nil
}
