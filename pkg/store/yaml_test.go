package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/xtechon/vatflow/pkg/schema"
)

const headersYAML = `
headers:
  - value: order_date
    label: Order Date
    type: date
    required: true
    aliases: [date, purchase date]
  - value: country
    label: Country
    type: string
    required: true
  - value: status
    label: Status
    type: categorical
    allowed_values: [shipped, pending]
`

const rulesYAML = `
rules:
  - product_type: software
    country: germany
    vat_rate: 19
    shipping_vat_rate: 19
  - product_type: books
    country: france
    vat_rate: 5.5
    shipping_vat_rate: 20
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	dir := t.TempDir()
	headers := writeFile(t, dir, "headers.yaml", headersYAML)
	rules := writeFile(t, dir, "rules.yaml", rulesYAML)
	rates := filepath.Join(dir, "rates.yaml")

	s, err := NewFileStore(headers, rules, rates, zap.NewNop())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	return s
}

func TestFileStoreListHeaders(t *testing.T) {
	s := newTestFileStore(t)

	defs, err := s.ListHeaders(context.Background())
	if err != nil {
		t.Fatalf("ListHeaders failed: %v", err)
	}
	if len(defs) != 3 {
		t.Fatalf("headers = %d, want 3", len(defs))
	}

	if defs[0].Value != "order_date" || defs[0].Type != schema.TypeDate || !defs[0].Required {
		t.Errorf("defs[0] = %+v", defs[0])
	}
	if len(defs[0].Aliases) != 2 {
		t.Errorf("aliases = %v, want 2", defs[0].Aliases)
	}
	if len(defs[2].AllowedValues) != 2 {
		t.Errorf("allowed_values = %v, want 2", defs[2].AllowedValues)
	}
}

func TestFileStoreListHeadersRejectsDuplicates(t *testing.T) {
	dir := t.TempDir()
	headers := writeFile(t, dir, "headers.yaml", `
headers:
  - value: country
    label: Country
  - value: country
    label: Country Again
`)
	rules := writeFile(t, dir, "rules.yaml", rulesYAML)

	s, err := NewFileStore(headers, rules, "", zap.NewNop())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	if _, err := s.ListHeaders(context.Background()); err == nil {
		t.Fatal("duplicate canonical values accepted")
	}
}

func TestFileStoreListRules(t *testing.T) {
	s := newTestFileStore(t)

	rules, err := s.ListRules(context.Background())
	if err != nil {
		t.Fatalf("ListRules failed: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("rules = %d, want 2", len(rules))
	}
	if rules[0].ProductType != "software" || rules[0].VATRate != 19 {
		t.Errorf("rules[0] = %+v", rules[0])
	}
	if rules[1].VATRate != 5.5 {
		t.Errorf("rules[1].VATRate = %v, want 5.5", rules[1].VATRate)
	}
}

func TestFileStoreRatesRoundTrip(t *testing.T) {
	s := newTestFileStore(t)
	ctx := context.Background()

	// Missing file reads as an empty table
	rates, err := s.GetRates(ctx)
	if err != nil {
		t.Fatalf("GetRates failed: %v", err)
	}
	if len(rates) != 0 {
		t.Errorf("rates = %v, want empty", rates)
	}

	if err := s.SaveRates(ctx, map[string]map[string]float64{
		"2024-03-01": {"USD": 1.08},
	}); err != nil {
		t.Fatalf("SaveRates failed: %v", err)
	}

	// A second sync merges rather than replaces
	if err := s.SaveRates(ctx, map[string]map[string]float64{
		"2024-03-01": {"GBP": 0.85},
		"2024-03-04": {"USD": 1.09},
	}); err != nil {
		t.Fatalf("SaveRates failed: %v", err)
	}

	rates, err = s.GetRates(ctx)
	if err != nil {
		t.Fatalf("GetRates failed: %v", err)
	}
	if rates["2024-03-01"]["USD"] != 1.08 || rates["2024-03-01"]["GBP"] != 0.85 {
		t.Errorf("merged rates = %v", rates)
	}
	if rates["2024-03-04"]["USD"] != 1.09 {
		t.Errorf("second date missing: %v", rates)
	}
}

func TestSplitTableRef(t *testing.T) {
	schemaName, table, err := splitTableRef("SALES.TRANSACTIONS")
	if err != nil || schemaName != "SALES" || table != "TRANSACTIONS" {
		t.Errorf("splitTableRef = %s, %s, %v", schemaName, table, err)
	}

	bad := []string{"no_schema", "a.b.c", "sales.tx; DROP TABLE", "sales.1tx"}
	for _, ref := range bad {
		if _, _, err := splitTableRef(ref); err == nil {
			t.Errorf("splitTableRef(%q) accepted", ref)
		}
	}
}
