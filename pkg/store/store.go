// pkg/store/store.go
package store

import (
	"context"

	"github.com/xtechon/vatflow/pkg/schema"
	"github.com/xtechon/vatflow/pkg/vat"
)

// HeaderStore supplies the header definitions used for reconciliation
// and validation. The returned set must be stable for the duration of
// one validation pass.
type HeaderStore interface {
	ListHeaders(ctx context.Context) ([]schema.HeaderDef, error)
}

// RuleStore supplies the VAT rules
type RuleStore interface {
	ListRules(ctx context.Context) ([]vat.Rule, error)
}

// RateStore supplies persisted exchange rates as
// date->currency->rate and accepts synced rates from the live feed
type RateStore interface {
	GetRates(ctx context.Context) (map[string]map[string]float64, error)
	SaveRates(ctx context.Context, rates map[string]map[string]float64) error
}
