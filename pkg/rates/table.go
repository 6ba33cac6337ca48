// pkg/rates/table.go
package rates

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNoRate signals that no rate is known for a currency on or before
// the requested date. Callers must leave the amount unconverted and
// keep the original currency.
var ErrNoRate = errors.New("no exchange rate available")

// dateLayout is the canonical date key format for the rate table
const dateLayout = "2006-01-02"

// Table holds a date-indexed exchange rate table. Rates are expressed
// as foreign units per 1 base-currency unit; the base currency itself
// always resolves to 1.0 without a lookup. The table is read-only
// after construction.
type Table struct {
	base string
	// rates[date][currency] = units of currency per 1 base unit
	rates map[string]map[string]float64
	// datesByCurrency caches the sorted publish dates per currency so
	// prior-date lookups stay cheap on large tables
	datesByCurrency map[string][]time.Time
}

// NewTable builds a Table from raw date->currency->rate data. Currency
// codes are upper-cased; date keys must be YYYY-MM-DD.
func NewTable(base string, raw map[string]map[string]float64) (*Table, error) {
	base = strings.ToUpper(strings.TrimSpace(base))
	if base == "" {
		return nil, fmt.Errorf("base currency is required")
	}

	t := &Table{
		base:            base,
		rates:           make(map[string]map[string]float64, len(raw)),
		datesByCurrency: make(map[string][]time.Time),
	}

	for date, byCurrency := range raw {
		parsed, err := time.Parse(dateLayout, date)
		if err != nil {
			return nil, fmt.Errorf("invalid date key %q: %w", date, err)
		}

		normalized := make(map[string]float64, len(byCurrency))
		for ccy, rate := range byCurrency {
			ccy = strings.ToUpper(strings.TrimSpace(ccy))
			if rate <= 0 {
				continue // zero or negative rates are publisher noise
			}
			normalized[ccy] = rate
			t.datesByCurrency[ccy] = insertSorted(t.datesByCurrency[ccy], parsed)
		}
		t.rates[date] = normalized
	}

	return t, nil
}

// Base returns the base currency code
func (t *Table) Base() string {
	return t.base
}

// Len returns the number of dates carried by the table
func (t *Table) Len() int {
	return len(t.rates)
}

// Rate answers "units of currency per 1 base unit" for the given
// currency on the given date. An exact-date hit returns the published
// rate; otherwise the most recent prior publish date is used. A
// transaction converts at the rate known as of its date, never at a
// future rate, so dates after the requested one are never considered.
// Returns ErrNoRate when the currency has no rate on or before date.
func (t *Table) Rate(currency string, date time.Time) (float64, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == t.base {
		return 1.0, nil
	}

	key := date.Format(dateLayout)
	if byCurrency, ok := t.rates[key]; ok {
		if rate, ok := byCurrency[currency]; ok {
			return rate, nil
		}
	}

	dates := t.datesByCurrency[currency]
	if len(dates) == 0 {
		return 0, fmt.Errorf("%w for %s", ErrNoRate, currency)
	}

	// Walk back from the latest publish date to the most recent one
	// on or before the requested date.
	for i := len(dates) - 1; i >= 0; i-- {
		if !dates[i].After(date) {
			return t.rates[dates[i].Format(dateLayout)][currency], nil
		}
	}

	return 0, fmt.Errorf("%w for %s on or before %s", ErrNoRate, currency, key)
}

// Convert converts an amount quoted in the given currency to the base
// currency using the rate for the given date. Returns the converted
// amount and the rate used.
func (t *Table) Convert(amount float64, currency string, date time.Time) (float64, float64, error) {
	rate, err := t.Rate(currency, date)
	if err != nil {
		return 0, 0, err
	}
	return amount / rate, rate, nil
}

// insertSorted inserts a date into an ascending slice, skipping
// duplicates
func insertSorted(dates []time.Time, d time.Time) []time.Time {
	lo, hi := 0, len(dates)
	for lo < hi {
		mid := (lo + hi) / 2
		if dates[mid].Before(d) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(dates) && dates[lo].Equal(d) {
		return dates
	}
	dates = append(dates, time.Time{})
	copy(dates[lo+1:], dates[lo:])
	dates[lo] = d
	return dates
}
