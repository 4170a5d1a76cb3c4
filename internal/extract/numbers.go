package extract

import (
	"regexp"
	"strings"

	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"
)

// placeholders are upstream tokens meaning "no value"
var placeholders = map[string]bool{
	"":  true,
	"-": true,
}

var numberPattern = regexp.MustCompile(`[-+]?\d[\d,]*(?:\.\d+)?|[-+]?\.\d+`)

// ParseDecimal normalizes s (thousands separators, percent signs, surrounding
// whitespace) and parses it. Placeholders and malformed input yield false.
func ParseDecimal(s string) (decimal.Decimal, bool) {
	s = CleanText(s)
	if placeholders[s] {
		return decimal.Decimal{}, false
	}

	s = strings.NewReplacer(",", "", "%", "", " ", "").Replace(s)
	if placeholders[s] {
		return decimal.Decimal{}, false
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// ParseNumber parses a formatted numeric cell. "1,234.50%" becomes 1234.5;
// "-" and "" become null rather than zero.
func ParseNumber(s string) null.Float {
	d, ok := ParseDecimal(s)
	if !ok {
		return null.Float{}
	}
	return null.FloatFrom(d.InexactFloat64())
}

// ParseInt parses a formatted integer cell, rejecting fractional values
func ParseInt(s string) null.Int {
	d, ok := ParseDecimal(s)
	if !ok || !d.IsInteger() {
		return null.Int{}
	}
	return null.IntFrom(d.IntPart())
}

// ParseScaled parses s after removing unit and multiplies by factor, keeping
// the arithmetic exact until the final conversion.
func ParseScaled(s, unit string, factor int64) null.Float {
	if unit != "" {
		s = strings.ReplaceAll(CleanText(s), unit, "")
	}
	d, ok := ParseDecimal(s)
	if !ok {
		return null.Float{}
	}
	return null.FloatFrom(d.Mul(decimal.NewFromInt(factor)).InexactFloat64())
}

// FirstNumber parses the first number embedded in free text such as
// "฿ 34.50 (+0.25)".
func FirstNumber(s string) null.Float {
	m := numberPattern.FindString(CleanText(s))
	if m == "" {
		return null.Float{}
	}
	return ParseNumber(m)
}
