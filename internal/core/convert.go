package core

// convert.go coerces source values and destination cells into comparable
// Go values.
//
// Both sides are messy: the source sends JSON numbers, strings and bools,
// while a spreadsheet cell may come back as a number, a formatted string
// ("1 234,50", "30.00%", "$12"), a bool, or "TRUE"/"да". Every comparison in
// the upsert planner and the validator goes through these helpers so the two
// agree on what "equal" means.

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// NumericTolerance is the largest absolute difference at which two numeric
// values still compare equal.
const NumericTolerance = 0.01

// numericRegex validates that a string is a valid numeric format after cleanup.
// Matches integers, decimals, and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// ParseNumber converts a cell or source value to float64.
// Handles currency symbols, thousands separators (space, nbsp, comma),
// decimal commas, a trailing percent sign (which divides by 100, as the
// destination would store it), and accounting format for negatives.
// Returns false for blank or non-numeric input.
func ParseNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case nil:
		return 0, false
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case bool:
		return 0, false
	case string:
		return parseNumberString(n)
	default:
		if s, ok := v.(interface{ String() string }); ok {
			return parseNumberString(s.String())
		}
		return 0, false
	}
}

func parseNumberString(s string) (float64, bool) {
	s = CleanCell(s)
	if s == "" {
		return 0, false
	}

	// Detect negative accounting format "(123.45)"
	isNegative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		isNegative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	isPercent := false
	if strings.HasSuffix(s, "%") {
		isPercent = true
		s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	}

	// Remove common currency symbols and thousands separators
	s = strings.NewReplacer(
		"$", "",
		"\u20ac", "", // Euro
		"\u00a3", "", // Pound
		"\u20bd", "", // Ruble
		"\u00a0", "", // nbsp, thousands separator in ru locales
		" ", "",
	).Replace(s)

	// "1,234.56" vs "1234,56": a comma is a decimal separator only when it
	// is the sole separator and appears once.
	if strings.Contains(s, ",") {
		if strings.Contains(s, ".") || strings.Count(s, ",") > 1 {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.Replace(s, ",", ".", 1)
		}
	}

	if isNegative {
		s = "-" + s
	}

	if !numericRegex.MatchString(s) {
		return 0, false
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if isPercent {
		f /= 100
	}
	return f, true
}

// ParseBool converts a value to a bool by truthiness.
// Accepts true/false, yes/no, t/f, y/n, 1/0 and да/нет. Numbers are true
// when non-zero. The second result is false for blank or unrecognized input.
func ParseBool(v any) (bool, bool) {
	switch b := v.(type) {
	case nil:
		return false, false
	case bool:
		return b, true
	case string:
		s := strings.ToLower(CleanCell(b))
		switch s {
		case "true", "t", "yes", "y", "1", "да":
			return true, true
		case "false", "f", "no", "n", "0", "нет":
			return false, true
		default:
			return false, false
		}
	default:
		if f, ok := ParseNumber(v); ok {
			return f != 0, true
		}
		return false, false
	}
}

// Truthy is ParseBool with unrecognized input treated as false.
func Truthy(v any) bool {
	b, _ := ParseBool(v)
	return b
}

// IsBlank reports whether a value is nil or a whitespace-only string.
func IsBlank(v any) bool {
	switch s := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(s) == ""
	default:
		return false
	}
}

// CellString renders a value the way it would read in a cell. Integral
// floats lose their fraction so 100.0 from JSON matches "100" from a sheet.
func CellString(v any) string {
	switch n := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(n)
	case float64:
		return formatFloat(n)
	case float32:
		return formatFloat(float64(n))
	case int:
		return strconv.Itoa(n)
	case int64:
		return strconv.FormatInt(n, 10)
	case bool:
		if n {
			return "TRUE"
		}
		return "FALSE"
	default:
		if s, ok := v.(interface{ String() string }); ok {
			return strings.TrimSpace(s.String())
		}
		return ""
	}
}

func formatFloat(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// KeyPart canonicalizes one component of a business key. Numeric-looking
// strings such as "100.0" collapse to "100".
func KeyPart(v any) string {
	s := CellString(v)
	if s == "" {
		return ""
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return s
}

// CompositeKey joins key parts with "|". Any blank part yields an empty key.
func CompositeKey(parts ...any) RecordKey {
	ss := make([]string, len(parts))
	for i, p := range parts {
		ss[i] = KeyPart(p)
		if ss[i] == "" {
			return ""
		}
	}
	return RecordKey(strings.Join(ss, "|"))
}

// EncodeValue converts a source value into what is written to the cell.
// Percent fields are stored as fractions: 30 becomes 0.3.
func EncodeValue(t FieldType, v any) any {
	if IsBlank(v) {
		return ""
	}
	switch t {
	case FieldNumeric:
		if f, ok := ParseNumber(v); ok {
			return f
		}
	case FieldPercent:
		if f, ok := ParseNumber(v); ok {
			return f / 100
		}
	case FieldBool:
		if b, ok := ParseBool(v); ok {
			return b
		}
	}
	return CellString(v)
}

// SheetComparable converts a destination cell into the source's units:
// percent fractions are multiplied back by 100.
func SheetComparable(t FieldType, cell any) any {
	if t != FieldPercent {
		return cell
	}
	f, ok := ParseNumber(cell)
	if !ok {
		return cell
	}
	return f * 100
}

// ValuesEqual compares a source value with a destination cell under the
// rules of the field type. A blank cell only equals a blank source value.
func ValuesEqual(t FieldType, source, cell any) bool {
	if IsBlank(cell) || IsBlank(source) {
		return IsBlank(cell) && IsBlank(source)
	}
	switch t {
	case FieldNumeric, FieldPercent:
		a, okA := ParseNumber(source)
		b, okB := ParseNumber(SheetComparable(t, cell))
		if !okA || !okB {
			return CellString(source) == CellString(cell)
		}
		return math.Abs(a-b) <= NumericTolerance+1e-9
	case FieldBool:
		return Truthy(source) == Truthy(cell)
	default:
		return CellString(source) == CellString(cell)
	}
}

// CleanCell removes common spreadsheet artifacts from a cell value:
// - Trims whitespace
// - Removes Excel formula prefix (="...")
// - Removes surrounding quotes
// - Removes a leading apostrophe used to force text
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	// Remove leading '='
	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	// Remove any surrounding quotes
	s = strings.Trim(s, `"'`)

	return strings.TrimSpace(s)
}
