package coerce

import (
	"math"
	"testing"
	"time"
)

func TestIsMissing(t *testing.T) {
	missing := []interface{}{
		nil,
		"",
		"   ",
		"nan",
		"NaN",
		"None",
		"NONE",
		"(empty)",
		"(NULL)",
		math.NaN(),
	}
	for _, v := range missing {
		if !IsMissing(v) {
			t.Errorf("IsMissing(%v) = false, want true", v)
		}
	}

	present := []interface{}{"0", 0, "value", false, 3.14, "null value"}
	for _, v := range present {
		if IsMissing(v) {
			t.Errorf("IsMissing(%v) = true, want false", v)
		}
	}
}

func TestToInt(t *testing.T) {
	tests := []struct {
		in      interface{}
		want    int64
		wantErr bool
	}{
		{"3", 3, false},
		{"-42", -42, false},
		{"+7", 7, false},
		{3.0, 3, false},
		{"3.5", 0, true},
		{3.5, 0, true},
		{true, 0, true},
		{"abc", 0, true},
		{nil, 0, true},
		{int64(99), 99, false},
	}

	for _, tt := range tests {
		got, err := ToInt(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ToInt(%v) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ToInt(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestToBool(t *testing.T) {
	truthy := []interface{}{"true", "T", "Yes", "y", "1", true, 1}
	for _, v := range truthy {
		got, err := ToBool(v)
		if err != nil || !got {
			t.Errorf("ToBool(%v) = %v, %v, want true, nil", v, got, err)
		}
	}

	falsy := []interface{}{"false", "F", "No", "n", "0", false, 0}
	for _, v := range falsy {
		got, err := ToBool(v)
		if err != nil || got {
			t.Errorf("ToBool(%v) = %v, %v, want false, nil", v, got, err)
		}
	}

	if _, err := ToBool("maybe"); err == nil {
		t.Error("ToBool(maybe) succeeded, want error")
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-03-01", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"01-03-2024", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"2024/03/01", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"2024-03-01T10:30:00Z", time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		got, err := ParseDate(tt.in)
		if err != nil {
			t.Errorf("ParseDate(%q) error = %v", tt.in, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("ParseDate(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if _, err := ParseDate("not a date"); err == nil {
		t.Error("ParseDate(not a date) succeeded, want error")
	}
}

func TestNormalizeDate(t *testing.T) {
	got, err := NormalizeDate("01/03/2024")
	if err != nil {
		t.Fatalf("NormalizeDate failed: %v", err)
	}
	// Month-first format wins when both interpretations are valid
	if got != "2024-01-03" {
		t.Errorf("NormalizeDate(01/03/2024) = %s, want 2024-01-03", got)
	}

	got, err = NormalizeDate("2024-03-01")
	if err != nil {
		t.Fatalf("NormalizeDate failed: %v", err)
	}
	if got != "2024-03-01" {
		t.Errorf("NormalizeDate(2024-03-01) = %s, want 2024-03-01", got)
	}
}

func TestIsPurelyNumeric(t *testing.T) {
	numeric := []string{"12", "-12", "3.5", "12.", "0"}
	for _, s := range numeric {
		if !IsPurelyNumeric(s) {
			t.Errorf("IsPurelyNumeric(%q) = false, want true", s)
		}
	}

	notNumeric := []string{"abc", "12a", "software", "1.2.3", ""}
	for _, s := range notNumeric {
		if IsPurelyNumeric(s) {
			t.Errorf("IsPurelyNumeric(%q) = true, want false", s)
		}
	}
}

func TestIsCurrencyCode(t *testing.T) {
	if !IsCurrencyCode("USD") || !IsCurrencyCode("eur") || !IsCurrencyCode(" GBP ") {
		t.Error("valid 3-letter codes rejected")
	}
	if IsCurrencyCode("12") || IsCurrencyCode("EURO") || IsCurrencyCode("E1R") {
		t.Error("invalid codes accepted")
	}
}

func TestSafeFloat(t *testing.T) {
	if SafeFloat(math.NaN()) != 0 {
		t.Error("NaN not clamped to zero")
	}
	if SafeFloat(math.Inf(1)) != 0 || SafeFloat(math.Inf(-1)) != 0 {
		t.Error("Inf not clamped to zero")
	}
	if SafeFloat(1.5) != 1.5 {
		t.Error("finite value altered")
	}
}

func TestRoundHalfUp(t *testing.T) {
	tests := []struct {
		in     float64
		places int32
		want   float64
	}{
		{2.345, 2, 2.35},
		{2.344, 2, 2.34},
		{92.592592, 2, 92.59},
		{0.185, 2, 0.19},
		{math.NaN(), 2, 0},
	}

	for _, tt := range tests {
		got := RoundHalfUp(tt.in, tt.places)
		if got != tt.want {
			t.Errorf("RoundHalfUp(%v, %d) = %v, want %v", tt.in, tt.places, got, tt.want)
		}
	}
}
