package frame

import (
	"strings"
	"testing"
)

func sampleFrame() *Frame {
	f := New()
	f.AddColumn("country", []interface{}{"germany", "france"})
	f.AddColumn("net_price", []interface{}{100.0, 50.0})
	return f
}

func TestAddAndAccess(t *testing.T) {
	f := sampleFrame()

	if f.Len() != 2 {
		t.Errorf("Len() = %d, want 2", f.Len())
	}

	cols := f.Columns()
	if len(cols) != 2 || cols[0] != "country" || cols[1] != "net_price" {
		t.Errorf("Columns() = %v, want [country net_price]", cols)
	}

	if got := f.Cell("country", 1); got != "france" {
		t.Errorf("Cell(country, 1) = %v, want france", got)
	}
	if got := f.Cell("country", 5); got != nil {
		t.Errorf("Cell beyond length = %v, want nil", got)
	}
	if got := f.Cell("missing", 0); got != nil {
		t.Errorf("Cell of absent column = %v, want nil", got)
	}
}

func TestRenamePreservesOrder(t *testing.T) {
	f := sampleFrame()
	f.Rename("country", "dest_country")

	cols := f.Columns()
	if cols[0] != "dest_country" {
		t.Errorf("renamed column moved: %v", cols)
	}
	if f.HasColumn("country") {
		t.Error("old name still present after rename")
	}
	if got := f.Cell("dest_country", 0); got != "germany" {
		t.Errorf("data lost on rename: %v", got)
	}
}

func TestRenameCollisionLastOneWins(t *testing.T) {
	f := New()
	f.AddColumn("Country", []interface{}{"a"})
	f.AddColumn("COUNTRY", []interface{}{"b"})
	f.Rename("Country", "country")
	f.Rename("COUNTRY", "country")

	if len(f.Columns()) != 1 {
		t.Fatalf("Columns() = %v, want single country column", f.Columns())
	}
	if got := f.Cell("country", 0); got != "b" {
		t.Errorf("Cell(country, 0) = %v, want b (last one wins)", got)
	}
}

func TestSetCellGrowsColumn(t *testing.T) {
	f := New()
	f.SetCell("vat", 2, 19.35)

	if f.Len() != 3 {
		t.Errorf("Len() = %d, want 3", f.Len())
	}
	if got := f.Cell("vat", 0); got != nil {
		t.Errorf("padding cell = %v, want nil", got)
	}
	if got := f.Cell("vat", 2); got != 19.35 {
		t.Errorf("Cell(vat, 2) = %v, want 19.35", got)
	}
}

func TestDisplayRow(t *testing.T) {
	if DisplayRow(0) != 2 {
		t.Errorf("DisplayRow(0) = %d, want 2", DisplayRow(0))
	}
	if DisplayRow(9) != 11 {
		t.Errorf("DisplayRow(9) = %d, want 11", DisplayRow(9))
	}
}

func TestCloneIsIndependent(t *testing.T) {
	f := sampleFrame()
	c := f.Clone()
	c.SetCell("country", 0, "spain")

	if f.Cell("country", 0) != "germany" {
		t.Error("mutating the clone changed the original")
	}
}

func TestReadCSV(t *testing.T) {
	input := "Order Date,Country,Net Price\n2024-03-01,germany,100\n2024-03-02,france,50\n"
	f, err := Read(strings.NewReader(input), "sales.csv")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	if f.Len() != 2 {
		t.Errorf("Len() = %d, want 2", f.Len())
	}
	cols := f.Columns()
	if len(cols) != 3 || cols[0] != "Order Date" {
		t.Errorf("Columns() = %v", cols)
	}
	if got := f.Cell("Country", 1); got != "france" {
		t.Errorf("Cell(Country, 1) = %v, want france", got)
	}
}

func TestReadTSVRaggedRows(t *testing.T) {
	input := "a\tb\tc\n1\t2\n"
	f, err := Read(strings.NewReader(input), "data.tsv")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got := f.Cell("c", 0); got != nil {
		t.Errorf("short row cell = %v, want nil", got)
	}
}

func TestReadUnsupportedFormat(t *testing.T) {
	_, err := Read(strings.NewReader("x"), "data.pdf")
	if err == nil {
		t.Fatal("Read(pdf) succeeded, want error")
	}
}

func TestReadEmptyFile(t *testing.T) {
	_, err := Read(strings.NewReader(""), "empty.csv")
	if err == nil {
		t.Fatal("Read of empty file succeeded, want error")
	}
}
