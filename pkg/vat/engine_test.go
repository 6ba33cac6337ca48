package vat

import (
	"context"
	"fmt"
	"math"
	"testing"

	"go.uber.org/zap"

	"github.com/xtechon/vatflow/pkg/frame"
	"github.com/xtechon/vatflow/pkg/rates"
)

func testRates(t *testing.T) *rates.Table {
	t.Helper()
	table, err := rates.NewTable("EUR", map[string]map[string]float64{
		"2024-03-01": {"USD": 1.08, "GBP": 0.85},
	})
	if err != nil {
		t.Fatalf("NewTable failed: %v", err)
	}
	return table
}

func testRules(t *testing.T) *RuleSet {
	t.Helper()
	rules, err := NewRuleSet([]Rule{
		{ProductType: "software", Country: "germany", VATRate: 19, ShippingVATRate: 19},
		{ProductType: "books", Country: "france", VATRate: 5.5, ShippingVATRate: 20},
	})
	if err != nil {
		t.Fatalf("NewRuleSet failed: %v", err)
	}
	return rules
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine("EUR", zap.NewNop())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return e
}

func singleRowFrame() *frame.Frame {
	f := frame.New()
	f.AddColumn(ColOrderDate, []interface{}{"2024-03-01"})
	f.AddColumn(ColProductType, []interface{}{"software"})
	f.AddColumn(ColCountry, []interface{}{"germany"})
	f.AddColumn(ColNetPrice, []interface{}{100.0})
	f.AddColumn(ColShippingAmount, []interface{}{10.0})
	f.AddColumn(ColCurrency, []interface{}{"USD"})
	return f
}

func approx(t *testing.T, name string, got interface{}, want float64) {
	t.Helper()
	f, ok := got.(float64)
	if !ok {
		t.Fatalf("%s = %v (%T), want float64", name, got, got)
	}
	if math.Abs(f-want) > 0.005 {
		t.Errorf("%s = %v, want %v", name, f, want)
	}
}

func TestProcessConvertsAndComputesVAT(t *testing.T) {
	e := newTestEngine(t)

	result, err := e.Process(context.Background(), singleRowFrame(), testRates(t), testRules(t))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if result.Status != StatusCompleted {
		t.Fatalf("Status = %s, want completed", result.Status)
	}

	enriched := result.Enriched
	approx(t, "net_price", enriched.Cell(ColNetPrice, 0), 92.59)
	approx(t, "shipping_amount", enriched.Cell(ColShippingAmount, 0), 9.26)
	approx(t, "product_vat", enriched.Cell(ColProductVAT, 0), 17.59)
	approx(t, "shipping_vat", enriched.Cell(ColShippingVAT, 0), 1.76)
	approx(t, "total_vat", enriched.Cell(ColTotalVAT, 0), 19.35)
	approx(t, "gross_total", enriched.Cell(ColGrossTotal, 0), 121.20)

	if got := enriched.Cell(ColCurrency, 0); got != "EUR" {
		t.Errorf("currency = %v, want EUR", got)
	}
	if got := enriched.Cell(ColOriginalCurrency, 0); got != "USD" {
		t.Errorf("original_currency = %v, want USD", got)
	}
	approx(t, "original_net_price", enriched.Cell(ColOriginalNetPrice, 0), 100.0)
}

func TestProcessGrossEqualsParts(t *testing.T) {
	e := newTestEngine(t)

	result, err := e.Process(context.Background(), singleRowFrame(), testRates(t), testRules(t))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	enriched := result.Enriched
	net := enriched.Cell(ColNetPrice, 0).(float64)
	shipping := enriched.Cell(ColShippingAmount, 0).(float64)
	totalVAT := enriched.Cell(ColTotalVAT, 0).(float64)
	gross := enriched.Cell(ColGrossTotal, 0).(float64)

	want := math.Round((net+shipping+totalVAT)*100) / 100
	if gross != want {
		t.Errorf("gross_total = %v, want %v", gross, want)
	}
}

func TestProcessMissingRuleRoutesToManualReview(t *testing.T) {
	e := newTestEngine(t)

	f := singleRowFrame()
	f.SetCell(ColCountry, 0, "atlantis")

	result, err := e.Process(context.Background(), f, testRates(t), testRules(t))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if result.Status != StatusManualReviewRequired {
		t.Fatalf("Status = %s, want manual_review_required", result.Status)
	}
	if result.ManualCount != 1 || len(result.ManualRows) != 1 {
		t.Fatalf("ManualCount = %d, ManualRows = %d, want 1 each", result.ManualCount, len(result.ManualRows))
	}

	// Raw values preserved in the manual-review row
	if got := result.ManualRows[0][ColCountry]; got != "atlantis" {
		t.Errorf("manual row country = %v, want atlantis", got)
	}

	// Sentinel, never a numeric zero
	for _, col := range []string{ColVATRate, ColProductVAT, ColShippingVAT, ColTotalVAT, ColGrossTotal} {
		if got := result.Enriched.Cell(col, 0); got != NotFoundSentinel {
			t.Errorf("%s = %v, want %q", col, got, NotFoundSentinel)
		}
	}

	// Manual-review rows never contribute to totals
	if result.Totals.VAT != 0 || result.Totals.Net != 0 {
		t.Errorf("Totals = %+v, want zeros", result.Totals)
	}
}

func TestProcessNoRateLeavesAmountsUnchanged(t *testing.T) {
	e := newTestEngine(t)

	f := singleRowFrame()
	f.SetCell(ColCurrency, 0, "AUD") // no AUD rate in the table

	result, err := e.Process(context.Background(), f, testRates(t), testRules(t))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	enriched := result.Enriched
	approx(t, "net_price", enriched.Cell(ColNetPrice, 0), 100.0)
	if got := enriched.Cell(ColCurrency, 0); got != "AUD" {
		t.Errorf("currency = %v, want AUD (unchanged)", got)
	}
}

func TestProcessBaseCurrencySkipsConversion(t *testing.T) {
	e := newTestEngine(t)

	f := singleRowFrame()
	f.SetCell(ColCurrency, 0, "EUR")

	result, err := e.Process(context.Background(), f, testRates(t), testRules(t))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	approx(t, "net_price", result.Enriched.Cell(ColNetPrice, 0), 100.0)
	approx(t, "product_vat", result.Enriched.Cell(ColProductVAT, 0), 19.0)
}

func TestProcessMissingCurrencyColumnDefaultsToBase(t *testing.T) {
	e := newTestEngine(t)

	f := singleRowFrame()
	f.Rename(ColCurrency, "ignored")

	result, err := e.Process(context.Background(), f, testRates(t), testRules(t))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if got := result.Enriched.Cell(ColCurrency, 0); got != "EUR" {
		t.Errorf("currency = %v, want EUR default", got)
	}
}

func TestProcessCountrySummary(t *testing.T) {
	e := newTestEngine(t)

	f := frame.New()
	f.AddColumn(ColOrderDate, []interface{}{"2024-03-01", "2024-03-01", "2024-03-01"})
	f.AddColumn(ColProductType, []interface{}{"software", "software", "books"})
	f.AddColumn(ColCountry, []interface{}{"germany", "germany", "france"})
	f.AddColumn(ColNetPrice, []interface{}{100.0, 200.0, 50.0})
	f.AddColumn(ColShippingAmount, []interface{}{0.0, 0.0, 0.0})
	f.AddColumn(ColCurrency, []interface{}{"EUR", "EUR", "EUR"})

	result, err := e.Process(context.Background(), f, testRates(t), testRules(t))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if len(result.CountrySummary) != 2 {
		t.Fatalf("CountrySummary = %v, want 2 countries", result.CountrySummary)
	}
	// Sorted by country name
	if result.CountrySummary[0].Country != "france" || result.CountrySummary[1].Country != "germany" {
		t.Errorf("summary order = %v", result.CountrySummary)
	}
	if result.CountrySummary[1].TotalNet != 300.0 {
		t.Errorf("germany TotalNet = %v, want 300", result.CountrySummary[1].TotalNet)
	}
	if result.CountrySummary[1].Rows != 2 {
		t.Errorf("germany Rows = %d, want 2", result.CountrySummary[1].Rows)
	}
}

func TestProcessChunkBoundariesDoNotAffectOutput(t *testing.T) {
	const rows = 500

	buildFrame := func() *frame.Frame {
		f := frame.New()
		dates := make([]interface{}, rows)
		products := make([]interface{}, rows)
		countries := make([]interface{}, rows)
		nets := make([]interface{}, rows)
		shippings := make([]interface{}, rows)
		currencies := make([]interface{}, rows)
		for i := 0; i < rows; i++ {
			dates[i] = "2024-03-01"
			products[i] = "software"
			countries[i] = "germany"
			nets[i] = float64(10 + i%37)
			shippings[i] = float64(i % 5)
			if i%3 == 0 {
				currencies[i] = "USD"
			} else {
				currencies[i] = "EUR"
			}
		}
		f.AddColumn(ColOrderDate, dates)
		f.AddColumn(ColProductType, products)
		f.AddColumn(ColCountry, countries)
		f.AddColumn(ColNetPrice, nets)
		f.AddColumn(ColShippingAmount, shippings)
		f.AddColumn(ColCurrency, currencies)
		return f
	}

	run := func(chunkSize, workers int) *Result {
		e := newTestEngine(t).WithChunkSize(chunkSize).WithWorkers(workers)
		result, err := e.Process(context.Background(), buildFrame(), testRates(t), testRules(t))
		if err != nil {
			t.Fatalf("Process(chunk=%d) failed: %v", chunkSize, err)
		}
		return result
	}

	whole := run(rows, 1)
	chunked := run(50, 4)

	if whole.Totals != chunked.Totals {
		t.Errorf("totals differ: whole=%+v chunked=%+v", whole.Totals, chunked.Totals)
	}
	for i := 0; i < rows; i++ {
		a := whole.Enriched.Cell(ColTotalVAT, i)
		b := chunked.Enriched.Cell(ColTotalVAT, i)
		if a != b {
			t.Fatalf("row %d total_vat differs: %v vs %v", i, a, b)
		}
	}
}

func TestProcessCancellation(t *testing.T) {
	e := newTestEngine(t).WithChunkSize(1).WithWorkers(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := frame.New()
	cells := make([]interface{}, 100)
	for i := range cells {
		cells[i] = "software"
	}
	f.AddColumn(ColProductType, cells)

	if _, err := e.Process(ctx, f, testRates(t), testRules(t)); err == nil {
		t.Fatal("Process with cancelled context succeeded, want error")
	}
}

func TestRuleSetLookup(t *testing.T) {
	rules := testRules(t)

	if _, ok := rules.Lookup("  Software ", "GERMANY"); !ok {
		t.Error("lookup should trim and lower-case inputs")
	}
	if _, ok := rules.Lookup("software", "spain"); ok {
		t.Error("lookup matched a missing country")
	}
	if _, ok := rules.Lookup("softwar", "germany"); ok {
		t.Error("lookup fuzzy-matched a product type")
	}
}

func TestNewRuleSetRejectsDuplicates(t *testing.T) {
	_, err := NewRuleSet([]Rule{
		{ProductType: "software", Country: "germany", VATRate: 19},
		{ProductType: " SOFTWARE ", Country: "Germany", VATRate: 20},
	})
	if err == nil {
		t.Fatal("NewRuleSet accepted duplicate keys")
	}
}

func TestProcessScaleSmoke(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping scale test in short mode")
	}

	const rows = 10000
	f := frame.New()
	cols := map[string][]interface{}{}
	for _, name := range []string{ColOrderDate, ColProductType, ColCountry, ColNetPrice, ColShippingAmount, ColCurrency} {
		cols[name] = make([]interface{}, rows)
	}
	for i := 0; i < rows; i++ {
		cols[ColOrderDate][i] = "2024-03-01"
		cols[ColProductType][i] = "software"
		cols[ColCountry][i] = "germany"
		cols[ColNetPrice][i] = fmt.Sprintf("%d.50", i%100)
		cols[ColShippingAmount][i] = "5"
		cols[ColCurrency][i] = "EUR"
	}
	for name, cells := range cols {
		f.AddColumn(name, cells)
	}

	e := newTestEngine(t).WithChunkSize(1000).WithWorkers(8)
	result, err := e.Process(context.Background(), f, testRates(t), testRules(t))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if result.Status != StatusCompleted {
		t.Fatalf("Status = %s, want completed", result.Status)
	}
	if result.Enriched.Len() != rows {
		t.Errorf("enriched rows = %d, want %d", result.Enriched.Len(), rows)
	}
}
