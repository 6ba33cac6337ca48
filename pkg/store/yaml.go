// pkg/store/yaml.go
package store

import (
	"context"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/xtechon/vatflow/pkg/schema"
	"github.com/xtechon/vatflow/pkg/vat"
)

// FileStore backs the header, rule and rate stores with YAML files on
// disk. Intended for single-node deployments and local development.
type FileStore struct {
	headersPath string
	rulesPath   string
	ratesPath   string
	logger      *zap.Logger
	mu          sync.Mutex
}

// NewFileStore creates a YAML-backed reference data store. ratesPath
// may be empty when rates come exclusively from the live feed.
func NewFileStore(headersPath, rulesPath, ratesPath string, logger *zap.Logger) (*FileStore, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if headersPath == "" || rulesPath == "" {
		return nil, fmt.Errorf("headers and rules file paths are required")
	}

	return &FileStore{
		headersPath: headersPath,
		rulesPath:   rulesPath,
		ratesPath:   ratesPath,
		logger:      logger.Named("filestore"),
	}, nil
}

// headersDoc is the YAML document shape for header definitions
type headersDoc struct {
	Headers []schema.HeaderDef `yaml:"headers"`
}

// ListHeaders loads header definitions from the headers file
func (s *FileStore) ListHeaders(_ context.Context) ([]schema.HeaderDef, error) {
	data, err := os.ReadFile(s.headersPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read headers file: %w", err)
	}

	var doc headersDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse headers file: %w", err)
	}
	if err := schema.ValidateHeaderDefs(doc.Headers); err != nil {
		return nil, fmt.Errorf("invalid headers file: %w", err)
	}

	s.logger.Debug("Loaded header definitions",
		zap.String("path", s.headersPath),
		zap.Int("count", len(doc.Headers)))
	return doc.Headers, nil
}

// rulesDoc is the YAML document shape for VAT rules
type rulesDoc struct {
	Rules []vat.Rule `yaml:"rules"`
}

// ListRules loads VAT rules from the rules file
func (s *FileStore) ListRules(_ context.Context) ([]vat.Rule, error) {
	data, err := os.ReadFile(s.rulesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var doc rulesDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse rules file: %w", err)
	}

	s.logger.Debug("Loaded VAT rules",
		zap.String("path", s.rulesPath),
		zap.Int("count", len(doc.Rules)))
	return doc.Rules, nil
}

// ratesDoc is the YAML document shape for persisted exchange rates
type ratesDoc struct {
	Rates map[string]map[string]float64 `yaml:"rates"`
}

// GetRates loads the persisted exchange rate table. A missing rates
// file reads as an empty table rather than an error.
func (s *FileStore) GetRates(_ context.Context) (map[string]map[string]float64, error) {
	if s.ratesPath == "" {
		return map[string]map[string]float64{}, nil
	}

	data, err := os.ReadFile(s.ratesPath)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]map[string]float64{}, nil
		}
		return nil, fmt.Errorf("failed to read rates file: %w", err)
	}

	var doc ratesDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse rates file: %w", err)
	}
	if doc.Rates == nil {
		doc.Rates = map[string]map[string]float64{}
	}
	return doc.Rates, nil
}

// SaveRates merges synced rates into the rates file
func (s *FileStore) SaveRates(ctx context.Context, rates map[string]map[string]float64) error {
	if s.ratesPath == "" {
		return fmt.Errorf("no rates file configured")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.GetRates(ctx)
	if err != nil {
		return err
	}

	for date, byCurrency := range rates {
		if _, ok := existing[date]; !ok {
			existing[date] = make(map[string]float64)
		}
		for currency, rate := range byCurrency {
			existing[date][currency] = rate
		}
	}

	data, err := yaml.Marshal(ratesDoc{Rates: existing})
	if err != nil {
		return fmt.Errorf("failed to serialize rates: %w", err)
	}

	if err := os.WriteFile(s.ratesPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write rates file: %w", err)
	}

	s.logger.Info("Saved exchange rates",
		zap.String("path", s.ratesPath),
		zap.Int("dates", len(existing)))
	return nil
}
