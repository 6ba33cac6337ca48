// pkg/vat/engine.go
package vat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/xtechon/vatflow/pkg/coerce"
	"github.com/xtechon/vatflow/pkg/frame"
	"github.com/xtechon/vatflow/pkg/rates"
)

// Canonical input column names the engine addresses. Upstream header
// reconciliation guarantees these names; the engine never guesses at
// alternate spellings.
const (
	ColOrderDate      = "order_date"
	ColProductType    = "product_type"
	ColCountry        = "country"
	ColNetPrice       = "net_price"
	ColShippingAmount = "shipping_amount"
	ColCurrency       = "currency"
)

// Output column names added by enrichment
const (
	ColOriginalCurrency = "original_currency"
	ColOriginalNetPrice = "original_net_price"
	ColOriginalShipping = "original_shipping_amount"
	ColVATRate          = "vat_rate"
	ColProductVAT       = "product_vat"
	ColShippingVAT      = "shipping_vat"
	ColTotalVAT         = "total_vat"
	ColGrossTotal       = "gross_total"
)

// NotFoundSentinel marks computed VAT fields on rows with no matching
// rule, so reports can distinguish unresolved rows from genuine zeros
const NotFoundSentinel = "Not Found"

// Status is the terminal state of one enrichment run
type Status string

const (
	StatusCompleted            Status = "completed"
	StatusManualReviewRequired Status = "manual_review_required"
)

// RowOutcome classifies how a single row was handled
type RowOutcome int

const (
	// OutcomeConverted: currency converted and VAT computed
	OutcomeConverted RowOutcome = iota
	// OutcomeNoConversion: already base currency or no conversion needed
	OutcomeNoConversion
	// OutcomeUnconvertedNoRate: no FX rate known; amounts left as-is
	OutcomeUnconvertedNoRate
	// OutcomeRuleMissing: no VAT rule; routed to manual review
	OutcomeRuleMissing
	// OutcomeRowError: the row could not be processed at all
	OutcomeRowError
)

// CountrySummary aggregates net sales and VAT collected per country
type CountrySummary struct {
	Country  string  `json:"country"`
	TotalNet float64 `json:"total_net"`
	TotalVAT float64 `json:"total_vat"`
	Rows     int     `json:"rows"`
}

// Totals holds the overall sums across all auto-processed rows
type Totals struct {
	Net   float64 `json:"net"`
	VAT   float64 `json:"vat"`
	Gross float64 `json:"gross"`
}

// Result is the outcome of one enrichment run. When Status is
// StatusManualReviewRequired, ManualRows carries the raw rows needing
// human attention; the enriched frame still contains every row, with
// sentinel VAT fields on the unresolved ones.
type Result struct {
	Status         Status                   `json:"status"`
	Enriched       *frame.Frame             `json:"-"`
	ManualCount    int                      `json:"manual_count"`
	ManualRows     []map[string]interface{} `json:"manual_rows,omitempty"`
	CountrySummary []CountrySummary         `json:"country_summary,omitempty"`
	Totals         Totals                   `json:"totals"`
}

// rowResult is the pure per-row output before accumulation
type rowResult struct {
	outcome         RowOutcome
	reason          string
	currency        string
	origCurrency    string
	origNet         float64
	origShipping    float64
	netPrice        float64
	shippingAmount  float64
	vatRateFraction float64
	productVAT      float64
	shippingVAT     float64
	totalVAT        float64
	grossTotal      float64
	country         string
	raw             map[string]interface{}
}

// Engine converts currency, looks up VAT rules and computes per-row and
// aggregate VAT amounts. Rows are processed in fixed-size chunks;
// chunks run concurrently but chunk boundaries never affect output.
type Engine struct {
	base      string
	chunkSize int
	workers   int
	logger    *zap.Logger
}

// NewEngine creates a VAT enrichment engine normalizing to the given
// base currency
func NewEngine(base string, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	base = strings.ToUpper(strings.TrimSpace(base))
	if base == "" {
		return nil, fmt.Errorf("base currency is required")
	}

	return &Engine{
		base:      base,
		chunkSize: 1000,
		workers:   4,
		logger:    logger.Named("vat"),
	}, nil
}

// WithChunkSize sets the number of rows processed per chunk
func (e *Engine) WithChunkSize(size int) *Engine {
	if size > 0 {
		e.chunkSize = size
	}
	return e
}

// WithWorkers sets the number of chunks processed concurrently
func (e *Engine) WithWorkers(workers int) *Engine {
	if workers > 0 {
		e.workers = workers
	}
	return e
}

// Process enriches every row of a validated frame. The input frame is
// never mutated; the returned frame carries the original columns plus
// the enrichment output columns. Rows without a matching VAT rule are
// collected for manual review and flip the terminal state to
// StatusManualReviewRequired.
func (e *Engine) Process(ctx context.Context, f *frame.Frame, table *rates.Table, rules *RuleSet) (*Result, error) {
	if f == nil {
		return nil, fmt.Errorf("frame is required")
	}
	if table == nil {
		return nil, fmt.Errorf("rate table is required")
	}
	if rules == nil {
		return nil, fmt.Errorf("rule set is required")
	}

	total := f.Len()
	results, err := e.processChunks(ctx, f, table, rules, total)
	if err != nil {
		return nil, err
	}

	return e.accumulate(f, results), nil
}

// processChunks splits row positions into fixed-size chunks, runs them
// on a worker pool and stitches the per-row results back together in
// row order
func (e *Engine) processChunks(ctx context.Context, f *frame.Frame, table *rates.Table, rules *RuleSet, total int) ([]rowResult, error) {
	results := make([]rowResult, total)
	if total == 0 {
		return results, nil
	}

	type chunk struct {
		start, end int
	}

	chunks := make([]chunk, 0, total/e.chunkSize+1)
	for start := 0; start < total; start += e.chunkSize {
		end := start + e.chunkSize
		if end > total {
			end = total
		}
		chunks = append(chunks, chunk{start: start, end: end})
	}

	workers := e.workers
	if workers > len(chunks) {
		workers = len(chunks)
	}

	jobs := make(chan chunk)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range jobs {
				for i := c.start; i < c.end; i++ {
					// Each slot is owned by exactly one chunk, so
					// writing without further synchronization is safe.
					results[i] = e.processRow(f, i, table, rules)
				}
			}
		}()
	}

	var cancelled error
dispatch:
	for _, c := range chunks {
		if err := ctx.Err(); err != nil {
			cancelled = err
			break
		}
		select {
		case jobs <- c:
		case <-ctx.Done():
			cancelled = ctx.Err()
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	if cancelled != nil {
		// Outstanding chunks completed but the run is abandoned; the
		// results are discarded without having touched any sink.
		return nil, fmt.Errorf("enrichment cancelled: %w", cancelled)
	}

	return results, nil
}

// processRow is the pure per-row enrichment function. It never panics
// across the row boundary; any unexpected failure becomes an
// OutcomeRowError result.
func (e *Engine) processRow(f *frame.Frame, i int, table *rates.Table, rules *RuleSet) (result rowResult) {
	defer func() {
		if r := recover(); r != nil {
			result = rowResult{
				outcome: OutcomeRowError,
				reason:  fmt.Sprintf("internal error: %v", r),
				raw:     f.Row(i),
			}
		}
	}()

	currency := e.base
	if f.HasColumn(ColCurrency) {
		if c := strings.ToUpper(strings.TrimSpace(coerce.ToString(f.Cell(ColCurrency, i)))); c != "" {
			currency = c
		}
	}

	productType := strings.ToLower(strings.TrimSpace(coerce.ToString(f.Cell(ColProductType, i))))
	country := strings.ToLower(strings.TrimSpace(coerce.ToString(f.Cell(ColCountry, i))))
	netPrice := coerce.FloatOrDefault(f.Cell(ColNetPrice, i), 0.0)
	shipping := coerce.FloatOrDefault(f.Cell(ColShippingAmount, i), 0.0)

	result = rowResult{
		outcome:      OutcomeNoConversion,
		currency:     currency,
		origCurrency: currency,
		origNet:      netPrice,
		origShipping: shipping,
		country:      country,
	}

	// Currency normalization
	if currency != e.base {
		orderDate := f.Cell(ColOrderDate, i)
		if !coerce.IsMissing(orderDate) {
			if date, err := coerce.ParseDate(orderDate); err == nil {
				rate, rerr := table.Rate(currency, date)
				switch {
				case rerr == nil:
					netPrice = coerce.RoundHalfUp(netPrice/rate, 2)
					shipping = coerce.RoundHalfUp(shipping/rate, 2)
					result.outcome = OutcomeConverted
					result.currency = e.base
				case errors.Is(rerr, rates.ErrNoRate):
					result.outcome = OutcomeUnconvertedNoRate
					result.reason = rerr.Error()
				default:
					result.outcome = OutcomeUnconvertedNoRate
					result.reason = rerr.Error()
				}
			} else {
				result.outcome = OutcomeUnconvertedNoRate
				result.reason = fmt.Sprintf("unparseable order date: %v", err)
			}
		} else {
			result.outcome = OutcomeUnconvertedNoRate
			result.reason = "order date missing, amount left unconverted"
		}
	}

	result.netPrice = netPrice
	result.shippingAmount = shipping

	// VAT rule lookup and computation
	rule, found := rules.Lookup(productType, country)
	if !found {
		result.outcome = OutcomeRuleMissing
		result.reason = fmt.Sprintf("no VAT rule for (%s, %s)", productType, country)
		result.raw = f.Row(i)
		return result
	}

	vatFraction := coerce.RoundHalfUp(rule.VATRate/100, 2)
	shippingFraction := coerce.RoundHalfUp(rule.ShippingVATRate/100, 2)

	result.vatRateFraction = vatFraction
	result.productVAT = coerce.RoundHalfUp(vatFraction*netPrice, 2)
	result.shippingVAT = coerce.RoundHalfUp(shippingFraction*shipping, 2)
	result.totalVAT = coerce.RoundHalfUp(result.productVAT+result.shippingVAT, 2)
	result.grossTotal = coerce.RoundHalfUp(netPrice+shipping+result.totalVAT, 2)

	return result
}

// accumulate folds per-row results into the enriched frame, the
// country summary and the overall totals
func (e *Engine) accumulate(f *frame.Frame, results []rowResult) *Result {
	enriched := f.Clone()
	total := len(results)

	currencies := make([]interface{}, total)
	origCurrencies := make([]interface{}, total)
	origNet := make([]interface{}, total)
	origShipping := make([]interface{}, total)
	netPrices := make([]interface{}, total)
	shippings := make([]interface{}, total)
	vatRates := make([]interface{}, total)
	productVATs := make([]interface{}, total)
	shippingVATs := make([]interface{}, total)
	totalVATs := make([]interface{}, total)
	grossTotals := make([]interface{}, total)

	manualRows := make([]map[string]interface{}, 0)
	perCountry := make(map[string]*CountrySummary)
	var totals Totals

	for i, r := range results {
		currencies[i] = r.currency
		origCurrencies[i] = r.origCurrency
		origNet[i] = r.origNet
		origShipping[i] = r.origShipping
		netPrices[i] = r.netPrice
		shippings[i] = r.shippingAmount

		switch r.outcome {
		case OutcomeRuleMissing, OutcomeRowError:
			vatRates[i] = NotFoundSentinel
			productVATs[i] = NotFoundSentinel
			shippingVATs[i] = NotFoundSentinel
			totalVATs[i] = NotFoundSentinel
			grossTotals[i] = NotFoundSentinel
			manualRows = append(manualRows, r.raw)

		default:
			vatRates[i] = r.vatRateFraction
			productVATs[i] = r.productVAT
			shippingVATs[i] = r.shippingVAT
			totalVATs[i] = r.totalVAT
			grossTotals[i] = r.grossTotal

			summary, ok := perCountry[r.country]
			if !ok {
				summary = &CountrySummary{Country: r.country}
				perCountry[r.country] = summary
			}
			summary.TotalNet = coerce.RoundHalfUp(summary.TotalNet+r.netPrice, 2)
			summary.TotalVAT = coerce.RoundHalfUp(summary.TotalVAT+r.totalVAT, 2)
			summary.Rows++

			totals.Net = coerce.RoundHalfUp(totals.Net+r.netPrice, 2)
			totals.VAT = coerce.RoundHalfUp(totals.VAT+r.totalVAT, 2)
			totals.Gross = coerce.RoundHalfUp(totals.Gross+r.grossTotal, 2)
		}
	}

	enriched.AddColumn(ColCurrency, currencies)
	enriched.AddColumn(ColOriginalCurrency, origCurrencies)
	enriched.AddColumn(ColOriginalNetPrice, origNet)
	enriched.AddColumn(ColOriginalShipping, origShipping)
	enriched.AddColumn(ColNetPrice, netPrices)
	enriched.AddColumn(ColShippingAmount, shippings)
	enriched.AddColumn(ColVATRate, vatRates)
	enriched.AddColumn(ColProductVAT, productVATs)
	enriched.AddColumn(ColShippingVAT, shippingVATs)
	enriched.AddColumn(ColTotalVAT, totalVATs)
	enriched.AddColumn(ColGrossTotal, grossTotals)

	summaries := make([]CountrySummary, 0, len(perCountry))
	for _, s := range perCountry {
		summaries = append(summaries, *s)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Country < summaries[j].Country
	})

	status := StatusCompleted
	if len(manualRows) > 0 {
		status = StatusManualReviewRequired
	}

	e.logger.Info("Enrichment run finished",
		zap.String("status", string(status)),
		zap.Int("rows", total),
		zap.Int("manualReview", len(manualRows)),
		zap.Float64("totalVAT", totals.VAT))

	return &Result{
		Status:         status,
		Enriched:       enriched,
		ManualCount:    len(manualRows),
		ManualRows:     manualRows,
		CountrySummary: summaries,
		Totals:         totals,
	}
}
