package invoice

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	reNumberNoise  = regexp.MustCompile(`[^0-9.,]`)
	reCurrencyHint = regexp.MustCompile(`[$€£¥₹₩₦₱]|\b[A-Z]{3}\b`)
	reDigits       = regexp.MustCompile(`[0-9]`)
)

// dateLayouts are tried in order. Slash dates are read month-first.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"2006.01.02",
	"01/02/2006",
	"1/2/2006",
	"01/02/06",
	"02-01-2006",
	"02.01.2006",
	"2 Jan 2006",
	"02 Jan 2006",
	"2 January 2006",
	"Jan 2, 2006",
	"Jan 02, 2006",
	"January 2, 2006",
	"02-Jan-2006",
	"2-Jan-2006",
}

// object wraps a decoded JSON object and resolves canonical keys against
// the spellings different providers use for the same field.
type object map[string]any

// lookup returns the first non-null value found under any of names.
// Exact keys win; after that keys are compared ignoring case and
// underscores, in sorted key order so the result is deterministic.
func (o object) lookup(names ...string) (any, bool) {
	for _, name := range names {
		if v, ok := o[name]; ok && v != nil {
			return v, true
		}
	}
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, name := range names {
		want := foldKey(name)
		for _, k := range keys {
			if foldKey(k) == want && o[k] != nil {
				return o[k], true
			}
		}
	}
	return nil, false
}

func foldKey(k string) string {
	k = strings.ReplaceAll(k, "_", "")
	k = strings.ReplaceAll(k, "-", "")
	k = strings.ReplaceAll(k, " ", "")
	return strings.ToLower(k)
}

// notes collects normalization remarks that end up in additionalInfo
type notes []string

func (n *notes) add(format string, args ...any) {
	*n = append(*n, fmt.Sprintf(format, args...))
}

func (o object) str(names ...string) (string, bool) {
	v, ok := o.lookup(names...)
	if !ok {
		return "", false
	}
	return toString(v)
}

func toString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), true
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case bool:
		return strconv.FormatBool(t), true
	case map[string]any:
		// {"value": "..."} or {"name": "..."} wrappers
		if inner, ok := object(t).lookup("value", "content", "text", "name"); ok {
			return toString(inner)
		}
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := toString(e); ok && s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", "), true
	}
	return "", false
}

// money resolves a monetary field. It returns the value, whether the field
// was present and usable, and any currency marker seen in a textual value.
func (o object) money(n *notes, field string, names ...string) (float64, bool, string) {
	v, ok := o.lookup(append([]string{field}, names...)...)
	if !ok {
		return 0, false, ""
	}
	d, hint, ok := toDecimal(v)
	if !ok {
		n.add("%s value %q could not be read as a number; using 0", field, fmt.Sprint(v))
		return 0, false, ""
	}
	f, ok := clampNonNegative(n, field, d)
	return f, ok, hint
}

// clampNonNegative converts d for the record. Negative values become 0 and
// values beyond float64 range are unreadable.
func clampNonNegative(n *notes, field string, d decimal.Decimal) (float64, bool) {
	if d.IsNegative() {
		n.add("%s reported as %s; clamped to 0", field, d.String())
		return 0, true
	}
	f := d.InexactFloat64()
	if math.IsInf(f, 0) || math.IsNaN(f) {
		n.add("%s value is out of range; using 0", field)
		return 0, false
	}
	return f, true
}

func toDecimal(v any) (decimal.Decimal, string, bool) {
	switch t := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		return d, "", err == nil
	case float64:
		return decimal.NewFromFloat(t), "", true
	case float32:
		return decimal.NewFromFloat32(t), "", true
	case int:
		return decimal.NewFromInt(int64(t)), "", true
	case int64:
		return decimal.NewFromInt(t), "", true
	case string:
		return parseAmount(t)
	case map[string]any:
		// {"amount": 12.5, "currencyCode": "USD"} style values
		obj := object(t)
		inner, ok := obj.lookup("amount", "value")
		if !ok {
			return decimal.Zero, "", false
		}
		d, hint, ok := toDecimal(inner)
		if code, found := obj.str("currencyCode", "currency_code", "currencySymbol", "currency_symbol", "currency"); found && code != "" {
			hint = code
		}
		return d, hint, ok
	}
	return decimal.Zero, "", false
}

// parseAmount reads human formatted amounts such as "$1,234.50",
// "1.234,50 EUR" or "(12.00)".
func parseAmount(s string) (decimal.Decimal, string, bool) {
	s = strings.TrimSpace(s)
	if s == "" || !reDigits.MatchString(s) {
		return decimal.Zero, "", false
	}
	hint := reCurrencyHint.FindString(s)

	firstDigit := strings.IndexAny(s, "0123456789")
	negative := strings.Contains(s[:firstDigit], "-") ||
		(strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")"))

	cleaned := reNumberNoise.ReplaceAllString(s, "")
	cleaned = normalizeSeparators(cleaned)

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, hint, false
	}
	if negative {
		d = d.Neg()
	}
	return d, hint, true
}

// normalizeSeparators rewrites a digits-and-separators string into the
// plain "1234.50" form decimal understands.
func normalizeSeparators(s string) string {
	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			// 1.234,50
			s = strings.ReplaceAll(s, ".", "")
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case lastComma >= 0:
		if strings.Count(s, ",") == 1 && len(s)-lastComma-1 <= 2 {
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case strings.Count(s, ".") > 1:
		return strings.ReplaceAll(s, ".", "")
	}
	return s
}

func (o object) date(names ...string) *string {
	v, ok := o.lookup(names...)
	if !ok {
		return nil
	}
	s, ok := toString(v)
	if !ok || s == "" {
		return nil
	}
	d := normalizeDate(s)
	return &d
}

// normalizeDate renders any recognizable date as YYYY-MM-DD. Text that
// matches no layout is returned unchanged so the evidence is not lost.
func normalizeDate(s string) string {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	if len(s) > 10 {
		if t, err := time.Parse("2006-01-02", s[:10]); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return s
}

// percent coerces a lone confidence value onto the 0-100 scale. Fractions
// in (0, 1] are read as probabilities.
func percent(v any) (float64, bool) {
	return percentOf(v, true)
}

// percentOf coerces v onto the 0-100 scale, multiplying values in (0, 1]
// by 100 only when fractional is set.
func percentOf(v any, fractional bool) (float64, bool) {
	d, _, ok := toDecimal(v)
	if !ok {
		return 0, false
	}
	if fractional && d.IsPositive() && d.LessThanOrEqual(decimal.NewFromInt(1)) {
		d = d.Mul(decimal.NewFromInt(100))
	}
	f := d.InexactFloat64()
	if f < 0 {
		f = 0
	}
	if f > 100 {
		f = 100
	}
	return f, true
}

// fractionalScale reports whether a set of scores uses the 0-1 scale: no
// readable score in scores or fields is above 1. Nested maps in scores
// are skipped.
func fractionalScale(scores, fields map[string]any) bool {
	one := decimal.NewFromInt(1)
	for _, m := range []map[string]any{scores, fields} {
		for _, v := range m {
			if _, nested := v.(map[string]any); nested {
				continue
			}
			if d, _, ok := toDecimal(v); ok && d.GreaterThan(one) {
				return false
			}
		}
	}
	return true
}
