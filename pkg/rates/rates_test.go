package rates

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"go.uber.org/zap"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func testTable(t *testing.T) *Table {
	t.Helper()
	table, err := NewTable("EUR", map[string]map[string]float64{
		"2024-02-28": {"USD": 1.07, "GBP": 0.85},
		"2024-03-01": {"USD": 1.08},
		"2024-03-04": {"USD": 1.09, "GBP": 0.86},
	})
	if err != nil {
		t.Fatalf("NewTable failed: %v", err)
	}
	return table
}

func TestRateBaseCurrencyAlwaysOne(t *testing.T) {
	table := testTable(t)
	for _, d := range []string{"2024-03-01", "1999-01-01", "2030-12-31"} {
		rate, err := table.Rate("EUR", day(d))
		if err != nil || rate != 1.0 {
			t.Errorf("Rate(EUR, %s) = %v, %v, want 1.0, nil", d, rate, err)
		}
	}
	// Base lookup is case-insensitive
	if rate, _ := table.Rate("eur", day("2024-03-01")); rate != 1.0 {
		t.Errorf("Rate(eur) = %v, want 1.0", rate)
	}
}

func TestRateExactDateHit(t *testing.T) {
	table := testTable(t)
	rate, err := table.Rate("USD", day("2024-03-01"))
	if err != nil {
		t.Fatalf("Rate failed: %v", err)
	}
	if rate != 1.08 {
		t.Errorf("Rate = %v, want 1.08", rate)
	}
}

func TestRatePriorDateFallback(t *testing.T) {
	table := testTable(t)

	// 2024-03-02 is a gap; the most recent prior date with USD is 03-01
	rate, err := table.Rate("USD", day("2024-03-02"))
	if err != nil {
		t.Fatalf("Rate failed: %v", err)
	}
	if rate != 1.08 {
		t.Errorf("Rate = %v, want 1.08 from 2024-03-01", rate)
	}

	// GBP has no rate on 03-01; prior date is 02-28, not the closer
	// future date 03-04
	rate, err = table.Rate("GBP", day("2024-03-03"))
	if err != nil {
		t.Fatalf("Rate failed: %v", err)
	}
	if rate != 0.85 {
		t.Errorf("Rate = %v, want 0.85 from 2024-02-28", rate)
	}
}

func TestRateNeverUsesFutureRate(t *testing.T) {
	table := testTable(t)
	_, err := table.Rate("GBP", day("2024-02-27"))
	if !errors.Is(err, ErrNoRate) {
		t.Errorf("err = %v, want ErrNoRate", err)
	}
}

func TestRateUnknownCurrency(t *testing.T) {
	table := testTable(t)
	_, err := table.Rate("XXX", day("2024-03-01"))
	if !errors.Is(err, ErrNoRate) {
		t.Errorf("err = %v, want ErrNoRate", err)
	}
}

func TestConvertRoundTrip(t *testing.T) {
	table := testTable(t)

	converted, rate, err := table.Convert(100.0, "USD", day("2024-03-01"))
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	back := converted * rate
	if math.Abs(back-100.0) > 0.01 {
		t.Errorf("round trip = %v, want within 0.01 of 100", back)
	}
}

func TestNewTableRejectsBadDates(t *testing.T) {
	_, err := NewTable("EUR", map[string]map[string]float64{
		"03/01/2024": {"USD": 1.08},
	})
	if err == nil {
		t.Fatal("NewTable accepted a non-canonical date key")
	}
}

// stubSource counts fetches so the cache TTL behavior can be observed
type stubSource struct {
	calls int
	rates map[string]map[string]float64
	err   error
}

func (s *stubSource) GetRates(_ context.Context) (map[string]map[string]float64, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.rates, nil
}

func TestCacheServesWithinTTL(t *testing.T) {
	source := &stubSource{rates: map[string]map[string]float64{
		"2024-03-01": {"USD": 1.08},
	}}
	cache, err := NewCache("EUR", source, time.Hour, zap.NewNop())
	if err != nil {
		t.Fatalf("NewCache failed: %v", err)
	}

	ctx := context.Background()
	if _, err := cache.Table(ctx); err != nil {
		t.Fatalf("Table failed: %v", err)
	}
	if _, err := cache.Table(ctx); err != nil {
		t.Fatalf("Table failed: %v", err)
	}
	if source.calls != 1 {
		t.Errorf("source fetched %d times within TTL, want 1", source.calls)
	}
}

func TestCacheRefreshesAfterTTL(t *testing.T) {
	source := &stubSource{rates: map[string]map[string]float64{
		"2024-03-01": {"USD": 1.08},
	}}
	cache, err := NewCache("EUR", source, time.Hour, zap.NewNop())
	if err != nil {
		t.Fatalf("NewCache failed: %v", err)
	}

	current := day("2024-03-01")
	cache.now = func() time.Time { return current }

	ctx := context.Background()
	if _, err := cache.Table(ctx); err != nil {
		t.Fatalf("Table failed: %v", err)
	}

	current = current.Add(2 * time.Hour)
	if _, err := cache.Table(ctx); err != nil {
		t.Fatalf("Table failed: %v", err)
	}
	if source.calls != 2 {
		t.Errorf("source fetched %d times after TTL expiry, want 2", source.calls)
	}
}

func TestCacheServesStaleOnSourceFailure(t *testing.T) {
	source := &stubSource{rates: map[string]map[string]float64{
		"2024-03-01": {"USD": 1.08},
	}}
	cache, err := NewCache("EUR", source, time.Hour, zap.NewNop())
	if err != nil {
		t.Fatalf("NewCache failed: %v", err)
	}

	ctx := context.Background()
	table1, err := cache.Table(ctx)
	if err != nil {
		t.Fatalf("Table failed: %v", err)
	}

	source.err = errors.New("feed down")
	cache.Invalidate()

	table2, err := cache.Table(ctx)
	if err != nil {
		t.Fatalf("Table with failing source errored: %v", err)
	}
	if table2 != table1 {
		t.Error("stale table not served on source failure")
	}
}

func TestCacheErrorsWhenNothingCached(t *testing.T) {
	source := &stubSource{err: errors.New("feed down")}
	cache, err := NewCache("EUR", source, time.Hour, zap.NewNop())
	if err != nil {
		t.Fatalf("NewCache failed: %v", err)
	}

	if _, err := cache.Table(context.Background()); err == nil {
		t.Fatal("Table succeeded with no cache and failing source")
	}
}

func TestDecodeSeries(t *testing.T) {
	payload := &sdmxResponse{}
	payload.Structure.Dimensions.Observation = []struct {
		ID     string `json:"id"`
		Values []struct {
			ID string `json:"id"`
		} `json:"values"`
	}{
		{
			ID: "TIME_PERIOD",
			Values: []struct {
				ID string `json:"id"`
			}{{ID: "2024-03-01"}, {ID: "2024-03-04"}},
		},
	}
	rate1, rate2 := 1.08, 1.09
	payload.DataSets = []struct {
		Series map[string]struct {
			Observations map[string][]*float64 `json:"observations"`
		} `json:"series"`
	}{
		{
			Series: map[string]struct {
				Observations map[string][]*float64 `json:"observations"`
			}{
				"0:0:0:0:0": {Observations: map[string][]*float64{
					"0": {&rate1},
					"1": {&rate2},
				}},
			},
		},
	}

	series, err := decodeSeries(payload)
	if err != nil {
		t.Fatalf("decodeSeries failed: %v", err)
	}
	if series["2024-03-01"] != 1.08 || series["2024-03-04"] != 1.09 {
		t.Errorf("series = %v", series)
	}
}
