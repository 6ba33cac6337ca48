// pkg/coerce/coerce.go
package coerce

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// missingMarkers are the textual values treated as absent data.
// Comparison happens after trimming and lower-casing.
var missingMarkers = map[string]struct{}{
	"":        {},
	"nan":     {},
	"none":    {},
	"(empty)": {},
	"(null)":  {},
}

var (
	pureIntPattern      = regexp.MustCompile(`^[+-]?\d+$`)
	pureNumericPattern  = regexp.MustCompile(`^-?\d+\.?\d*$`)
	currencyCodePattern = regexp.MustCompile(`^[A-Za-z]{3}$`)
)

// dateFormats are tried in order before falling back to the permissive set.
var dateFormats = []string{
	"02-01-2006",
	"2006-01-02",
	"01/02/2006",
	"02/01/2006",
	"2006/01/02",
}

// fallbackDateFormats cover timestamped and RFC-style inputs that show
// up when spreadsheets are exported from other systems.
var fallbackDateFormats = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"02-01-2006 15:04:05",
	"Jan 2, 2006",
	"2 Jan 2006",
}

// IsMissing reports whether a cell value counts as missing data.
// Nil values, empty strings and the common placeholder markers
// ("nan", "None", "(empty)", "(null)") are all treated identically.
func IsMissing(v interface{}) bool {
	if v == nil {
		return true
	}

	switch val := v.(type) {
	case string:
		_, ok := missingMarkers[strings.ToLower(strings.TrimSpace(val))]
		return ok
	case []byte:
		_, ok := missingMarkers[strings.ToLower(strings.TrimSpace(string(val)))]
		return ok
	case float64:
		return math.IsNaN(val)
	case float32:
		return math.IsNaN(float64(val))
	default:
		return false
	}
}

// ToString converts a cell value to its string form
func ToString(v interface{}) string {
	if v == nil {
		return ""
	}

	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// ToFloat attempts to convert a cell value to float64
func ToFloat(v interface{}) (float64, error) {
	if v == nil {
		return 0, errors.New("nil value")
	}

	switch val := v.(type) {
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case int:
		return float64(val), nil
	case int32:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case bool:
		return 0, errors.New("boolean is not numeric")
	case string:
		cleaned := strings.TrimSpace(val)
		if cleaned == "" {
			return 0, errors.New("empty string")
		}
		return strconv.ParseFloat(cleaned, 64)
	case []byte:
		return ToFloat(string(val))
	default:
		return 0, fmt.Errorf("cannot convert %T to float", v)
	}
}

// FloatOrDefault converts a cell value to float64, falling back to def
// when conversion fails. Never returns NaN or Inf.
func FloatOrDefault(v interface{}, def float64) float64 {
	f, err := ToFloat(v)
	if err != nil {
		return def
	}
	return SafeFloat(f)
}

// ToInt attempts to convert a cell value to int64. Booleans are rejected,
// strings must be pure (optionally signed) digit strings, and numeric
// inputs must carry no fractional part.
func ToInt(v interface{}) (int64, error) {
	if v == nil {
		return 0, errors.New("nil value")
	}

	switch val := v.(type) {
	case bool:
		return 0, errors.New("boolean is not an integer")
	case int:
		return int64(val), nil
	case int32:
		return int64(val), nil
	case int64:
		return val, nil
	case float64:
		if val != math.Trunc(val) {
			return 0, fmt.Errorf("value %v has a fractional part", val)
		}
		return int64(val), nil
	case float32:
		return ToInt(float64(val))
	case string:
		cleaned := strings.TrimSpace(val)
		if !pureIntPattern.MatchString(cleaned) {
			return 0, fmt.Errorf("%q is not an integer string", val)
		}
		return strconv.ParseInt(cleaned, 10, 64)
	case []byte:
		return ToInt(string(val))
	default:
		return 0, fmt.Errorf("cannot convert %T to int", v)
	}
}

// ToBool attempts to convert a cell value to bool using the accepted
// truthy/falsy token set
func ToBool(v interface{}) (bool, error) {
	if v == nil {
		return false, errors.New("nil value")
	}

	switch val := v.(type) {
	case bool:
		return val, nil
	case int, int32, int64:
		i, _ := ToInt(val)
		if i == 0 {
			return false, nil
		}
		if i == 1 {
			return true, nil
		}
		return false, fmt.Errorf("numeric %d is not a boolean", i)
	case float64:
		return ToBool(ToString(val))
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "t", "yes", "y", "1":
			return true, nil
		case "false", "f", "no", "n", "0":
			return false, nil
		default:
			return false, fmt.Errorf("cannot parse %q as boolean", val)
		}
	default:
		return false, fmt.Errorf("cannot convert %T to bool", v)
	}
}

// ParseDate parses a date cell against the explicit format list first,
// then the permissive fallback formats
func ParseDate(v interface{}) (time.Time, error) {
	if v == nil {
		return time.Time{}, errors.New("nil value")
	}

	if t, ok := v.(time.Time); ok {
		return t, nil
	}

	cleaned := strings.TrimSpace(ToString(v))
	if cleaned == "" {
		return time.Time{}, errors.New("empty string")
	}

	for _, format := range dateFormats {
		if t, err := time.Parse(format, cleaned); err == nil {
			return t, nil
		}
	}
	for _, format := range fallbackDateFormats {
		if t, err := time.Parse(format, cleaned); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("cannot parse date from %q", cleaned)
}

// NormalizeDate converts any parseable date cell to canonical YYYY-MM-DD form
func NormalizeDate(v interface{}) (string, error) {
	t, err := ParseDate(v)
	if err != nil {
		return "", err
	}
	return t.Format("2006-01-02"), nil
}

// IsPurelyNumeric reports whether a string looks like a bare number
// (optional sign, digits, optional decimal part)
func IsPurelyNumeric(s string) bool {
	return pureNumericPattern.MatchString(strings.TrimSpace(s))
}

// IsCurrencyCode reports whether a string matches a 3-letter currency
// code pattern. Matching is case-insensitive.
func IsCurrencyCode(s string) bool {
	return currencyCodePattern.MatchString(strings.TrimSpace(s))
}

// SafeFloat clamps NaN and infinite values to zero so they can never
// reach serialization boundaries
func SafeFloat(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// RoundHalfUp rounds a float to the given number of decimal places using
// standard half-up rounding. NaN and Inf inputs round to zero.
func RoundHalfUp(f float64, places int32) float64 {
	f = SafeFloat(f)
	return decimal.NewFromFloat(f).Round(places).InexactFloat64()
}
