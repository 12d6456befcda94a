package transform

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var separatorStripper = strings.NewReplacer(
	",", "",
	"_", "",
	" ", "",
	"\u00a0", "",
	"\u202f", "",
	"\t", "",
)

// ParseValue coerces a raw cell into a strictly positive finite number.
// Thousands separators are stripped from text before parsing. ok is false
// for anything unparseable, zero, negative or non-finite.
func ParseValue(v any) (value float64, ok bool) {
	var d decimal.Decimal

	switch x := v.(type) {
	case string:
		parsed, err := decimal.NewFromString(separatorStripper.Replace(strings.TrimSpace(x)))
		if err != nil {
			return 0, false
		}
		d = parsed
	case json.Number:
		return ParseValue(string(x))
	case decimal.Decimal:
		d = x
	case float64:
		return checkFloat(x)
	case float32:
		return checkFloat(float64(x))
	case int:
		d = decimal.NewFromInt(int64(x))
	case int32:
		d = decimal.NewFromInt32(x)
	case int64:
		d = decimal.NewFromInt(x)
	case uint:
		return ParseValue(strconv.FormatUint(uint64(x), 10))
	case uint64:
		return ParseValue(strconv.FormatUint(x, 10))
	default:
		return 0, false
	}

	if !d.IsPositive() {
		return 0, false
	}
	return checkFloat(d.InexactFloat64())
}

func checkFloat(f float64) (float64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return 0, false
	}
	return f, true
}
