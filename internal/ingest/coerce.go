package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/localnerve/lite/internal/catalog"
	"github.com/localnerve/lite/internal/types"
)

// MaxStringLength caps text columns, in characters
const MaxStringLength = 10000

// plain decimal notation; big.Rat alone would also take fractions and base prefixes
var decimalPattern = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d{1,4})?$`)

// seconds between 1601-01-01 and 1970-01-01, the WebKit/Chrome epoch offset
const webkitEpochOffset = 11644473600

// Coerce converts a decoded JSON value into the storage value of a column.
// A nil result with a nil error means NULL.
func Coerce(col catalog.Column, v interface{}) (interface{}, error) {
	if isEmpty(v) {
		return nil, nil
	}

	switch col.Type {
	case catalog.TypeString:
		return coerceString(col, v)
	case catalog.TypeInteger:
		return coerceInteger(col, v)
	case catalog.TypeDecimal:
		return coerceDecimal(col, v)
	case catalog.TypeBoolean:
		return coerceBoolean(col, v)
	case catalog.TypeTimestamp:
		return coerceTimestamp(col, v)
	case catalog.TypeJSON:
		return coerceJSON(col, v)
	}
	return nil, fail(col, v, fmt.Sprintf("unsupported column type %q", col.Type))
}

func fail(col catalog.Column, v interface{}, reason string) error {
	return &types.CoercionError{Column: col.Name, Value: v, Reason: reason}
}

func isEmpty(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	}
	return false
}

func coerceString(col catalog.Column, v interface{}) (interface{}, error) {
	var s string
	switch t := v.(type) {
	case string:
		s = strings.TrimSpace(t)
	case json.Number:
		s = t.String()
	case bool:
		s = strconv.FormatBool(t)
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		s = strconv.FormatInt(t, 10)
	case int:
		s = strconv.Itoa(t)
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return nil, fail(col, v, "cannot encode as text")
		}
		s = string(raw)
	}
	if utf8.RuneCountInString(s) > MaxStringLength {
		s = string([]rune(s)[:MaxStringLength])
	}
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "�")
	}
	return s, nil
}

func coerceInteger(col catalog.Column, v interface{}) (interface{}, error) {
	var text string
	switch t := v.(type) {
	case json.Number:
		text = t.String()
	case string:
		text = strings.TrimSpace(t)
	case float64:
		if t != math.Trunc(t) || math.IsInf(t, 0) || math.IsNaN(t) {
			return nil, fail(col, v, "not an integer")
		}
		if !fitsInt64(t) {
			return nil, fail(col, v, "integer out of range")
		}
		return int64(t), nil
	case int64:
		return t, nil
	case int:
		return int64(t), nil
	default:
		return nil, fail(col, v, "not an integer")
	}

	n, err := strconv.ParseInt(text, 10, 64)
	if err == nil {
		return n, nil
	}
	if errors.Is(err, strconv.ErrRange) {
		return nil, fail(col, v, "integer out of range")
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || f != math.Trunc(f) {
		return nil, fail(col, v, "not an integer")
	}
	if !fitsInt64(f) {
		return nil, fail(col, v, "integer out of range")
	}
	return int64(f), nil
}

// fitsInt64 reports whether f converts to int64 without wrapping.
// float64(math.MaxInt64) rounds up to 2^63, so the upper bound is exclusive.
func fitsInt64(f float64) bool {
	return f >= -(1<<63) && f < 1<<63
}

func coerceDecimal(col catalog.Column, v interface{}) (interface{}, error) {
	var text string
	switch t := v.(type) {
	case json.Number:
		text = t.String()
	case string:
		text = strings.TrimSuffix(strings.TrimSpace(t), "%")
	case float64:
		text = strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		text = strconv.FormatInt(t, 10)
	case int:
		text = strconv.Itoa(t)
	default:
		return nil, fail(col, v, "not a decimal")
	}

	text = strings.TrimSpace(text)
	if !decimalPattern.MatchString(text) {
		return nil, fail(col, v, "not a decimal")
	}
	r, ok := new(big.Rat).SetString(text)
	if !ok {
		return nil, fail(col, v, "not a decimal")
	}

	scale := col.Scale
	if scale <= 0 {
		scale = catalog.DefaultDecimalScale
	}
	out := r.FloatString(scale)

	// DECIMAL(20, scale) leaves 20-scale integral digits
	intDigits := strings.TrimLeft(strings.SplitN(strings.TrimPrefix(out, "-"), ".", 2)[0], "0")
	if len(intDigits) > 20-scale {
		return nil, fail(col, v, "decimal out of range")
	}
	return out, nil
}

func coerceBoolean(col catalog.Column, v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case json.Number:
		switch t.String() {
		case "1":
			return true, nil
		case "0":
			return false, nil
		}
	case float64:
		switch t {
		case 1:
			return true, nil
		case 0:
			return false, nil
		}
	case int64:
		switch t {
		case 1:
			return true, nil
		case 0:
			return false, nil
		}
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "t", "1", "yes", "y", "on", "enabled", "success", "succeeded":
			return true, nil
		case "false", "f", "0", "no", "n", "off", "disabled", "failure", "failed":
			return false, nil
		}
	}
	return nil, fail(col, v, "not a boolean")
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999 -0700",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
	time.ANSIC,
	time.UnixDate,
	time.RubyDate,
	time.RFC1123Z,
	time.RFC1123,
	time.RFC850,
	time.RFC822Z,
	time.RFC822,
	"02/Jan/2006:15:04:05 -0700",
	"Mon 2006-01-02 15:04:05 MST",
	"2006/01/02 15:04:05",
	"01/02/2006 15:04:05",
}

// syslog timestamps carry no year
var yearlessLayouts = []string{
	time.Stamp,
	time.StampMicro,
	"Jan _2 15:04",
}

func coerceTimestamp(col catalog.Column, v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return nil, fail(col, v, "not a timestamp")
		}
		return epochToTime(col, v, f)
	case float64:
		return epochToTime(col, v, t)
	case int64:
		return epochToTime(col, v, float64(t))
	case string:
		s := strings.TrimSpace(t)
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return epochToTime(col, v, f)
		}
		for _, layout := range timestampLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC(), nil
			}
		}
		for _, layout := range yearlessLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				now := time.Now().UTC()
				ts = ts.AddDate(now.Year(), 0, 0)
				if ts.After(now.AddDate(0, 0, 1)) {
					ts = ts.AddDate(-1, 0, 0)
				}
				return ts.UTC(), nil
			}
		}
	}
	return nil, fail(col, v, "not a timestamp")
}

// epochToTime picks the unit by magnitude: WebKit microseconds, unix microseconds,
// unix milliseconds or unix seconds.
func epochToTime(col catalog.Column, v interface{}, f float64) (interface{}, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return nil, fail(col, v, "not a timestamp")
	}
	if f == 0 {
		// collectors write 0 for "never"
		return nil, nil
	}

	var micros float64
	switch {
	case f > 1e16:
		micros = f - webkitEpochOffset*1e6
	case f > 1e14:
		micros = f
	case f > 1e11:
		micros = f * 1e3
	default:
		micros = f * 1e6
	}
	if micros <= 0 {
		return nil, fail(col, v, "timestamp before 1970")
	}
	sec, frac := math.Modf(micros / 1e6)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
}

func coerceJSON(col catalog.Column, v interface{}) (interface{}, error) {
	if s, ok := v.(string); ok {
		trimmed := strings.TrimSpace(s)
		if (strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "{")) && json.Valid([]byte(trimmed)) {
			var buf bytes.Buffer
			if err := json.Compact(&buf, []byte(trimmed)); err == nil {
				return buf.String(), nil
			}
		}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fail(col, v, "cannot encode as JSON")
	}
	return string(raw), nil
}
