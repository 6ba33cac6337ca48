// cmd/wiring.go
package cmd

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xtechon/vatflow/pkg/config"
	"github.com/xtechon/vatflow/pkg/notify"
	"github.com/xtechon/vatflow/pkg/pipeline"
	"github.com/xtechon/vatflow/pkg/rates"
	"github.com/xtechon/vatflow/pkg/report"
	"github.com/xtechon/vatflow/pkg/session"
	"github.com/xtechon/vatflow/pkg/store"
	"github.com/xtechon/vatflow/pkg/validate"
	"github.com/xtechon/vatflow/pkg/vat"
)

// referenceStores bundles the reference-data stores for one backend
// together with their teardown
type referenceStores struct {
	headers store.HeaderStore
	rules   store.RuleStore
	rates   store.RateStore
	close   func()
}

func buildStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*referenceStores, error) {
	switch cfg.StoreBackend {
	case "postgres":
		pg, err := store.NewPostgresStore(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		return &referenceStores{
			headers: pg,
			rules:   pg,
			rates:   pg,
			close: func() {
				if err := pg.Close(); err != nil {
					logger.Warn("Failed to close postgres store", zap.Error(err))
				}
			},
		}, nil
	case "yaml":
		fs, err := store.NewFileStore(cfg.HeadersFile, cfg.RulesFile, cfg.RatesFile, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open file store: %w", err)
		}
		return &referenceStores{headers: fs, rules: fs, rates: fs, close: func() {}}, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// feedSource adapts the ECB feed client to the rate cache's Source
// interface, fetching the configured trailing window on each refresh
type feedSource struct {
	client *rates.FeedClient
	window time.Duration
}

func (f feedSource) GetRates(ctx context.Context) (map[string]map[string]float64, error) {
	end := time.Now()
	return f.client.FetchRates(ctx, end.Add(-f.window), end)
}

// buildRateSource prefers the live feed when one is configured and
// falls back to the persisted rate store otherwise
func buildRateSource(cfg *config.Config, stores *referenceStores, logger *zap.Logger) (rates.Source, error) {
	if cfg.RateFeedURL == "" {
		return stores.rates, nil
	}
	client, err := rates.NewFeedClient(cfg.RateFeedURL, 30*time.Second, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate feed client: %w", err)
	}
	return feedSource{client: client, window: cfg.RateFeedWindow}, nil
}

func buildProcessor(cfg *config.Config, stores *referenceStores, logger *zap.Logger) (*pipeline.Processor, *session.Store, error) {
	source, err := buildRateSource(cfg, stores, logger)
	if err != nil {
		return nil, nil, err
	}
	rateCache, err := rates.NewCache(cfg.BaseCurrency, source, cfg.RateCacheTTL, logger)
	if err != nil {
		return nil, nil, err
	}

	validator, err := validate.NewValidator(logger, cfg.ValidationWorkers)
	if err != nil {
		return nil, nil, err
	}

	engine, err := vat.NewEngine(cfg.BaseCurrency, logger)
	if err != nil {
		return nil, nil, err
	}
	engine.WithChunkSize(cfg.ChunkSize).WithWorkers(cfg.WorkerPoolSize)

	builder, err := report.NewBuilder(logger)
	if err != nil {
		return nil, nil, err
	}

	sessions, err := session.NewStore(cfg.SessionTTL, logger)
	if err != nil {
		return nil, nil, err
	}

	var mailer *notify.Mailer
	if cfg.NotifyEnabled() {
		mailer, err = notify.NewMailer(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		}, logger)
		if err != nil {
			sessions.Close()
			return nil, nil, fmt.Errorf("invalid SMTP configuration: %w", err)
		}
	}

	processor, err := pipeline.NewProcessor(pipeline.Deps{
		HeaderStore: stores.headers,
		RuleStore:   stores.rules,
		RateCache:   rateCache,
		Validator:   validator,
		Engine:      engine,
		Reports:     builder,
		Sessions:    sessions,
		Mailer:      mailer,
		Recipient:   cfg.ReviewRecipient,
		HeaderTTL:   cfg.HeaderCacheTTL,
		RuleTTL:     cfg.RuleCacheTTL,
	}, logger)
	if err != nil {
		sessions.Close()
		return nil, nil, err
	}

	return processor, sessions, nil
}
