package val

import (
	"bytes"
	"cmp"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Kind discriminates the value held by a Val.
type Kind uint8

const (
	// KindNull is the absent value.
	KindNull Kind = iota
	// KindString is text.
	KindString
	// KindLong is a 64-bit integer.
	KindLong
	// KindDouble is a 64-bit float.
	KindDouble
	// KindBool is a boolean.
	KindBool
	// KindDate is epoch milliseconds.
	KindDate
)

// Val is a single typed cell. The zero value is null.
type Val struct {
	kind Kind
	s    string
	n    int64
	f    float64
}

// Null returns the null value.
func Null() Val { return Val{} }

// String wraps text.
func String(s string) Val { return Val{kind: KindString, s: s} }

// Long wraps an integer.
func Long(n int64) Val { return Val{kind: KindLong, n: n} }

// Double wraps a float.
func Double(f float64) Val { return Val{kind: KindDouble, f: f} }

// Bool wraps a boolean.
func Bool(b bool) Val {
	if b {
		return Val{kind: KindBool, n: 1}
	}
	return Val{kind: KindBool}
}

// Date wraps epoch milliseconds.
func Date(ms int64) Val { return Val{kind: KindDate, n: ms} }

// FromTime wraps a time as a date.
func FromTime(t time.Time) Val { return Date(t.UnixMilli()) }

// Kind returns the value kind.
func (v Val) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Val) IsNull() bool { return v.kind == KindNull }

// IsNumeric reports whether v compares numerically.
func (v Val) IsNumeric() bool {
	return v.kind == KindLong || v.kind == KindDouble || v.kind == KindDate
}

// AsLong returns an integer view of v.
func (v Val) AsLong() (int64, bool) {
	switch v.kind {
	case KindLong, KindDate, KindBool:
		return v.n, true
	case KindDouble:
		return int64(v.f), true
	case KindString:
		n, err := strconv.ParseInt(v.s, 10, 64)
		return n, err == nil
	}
	return 0, false
}

// AsDouble returns a float view of v.
func (v Val) AsDouble() (float64, bool) {
	switch v.kind {
	case KindLong, KindDate, KindBool:
		return float64(v.n), true
	case KindDouble:
		return v.f, true
	case KindString:
		f, err := strconv.ParseFloat(v.s, 64)
		return f, err == nil
	}
	return 0, false
}

// Raw returns the natural Go representation used for expression matching.
func (v Val) Raw() any {
	switch v.kind {
	case KindString:
		return v.s
	case KindLong, KindDate:
		return v.n
	case KindDouble:
		return v.f
	case KindBool:
		return v.n == 1
	}
	return nil
}

// String renders v for display. Dates render as RFC 3339 in UTC.
func (v Val) String() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindLong:
		return strconv.FormatInt(v.n, 10)
	case KindDouble:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.n == 1)
	case KindDate:
		return time.UnixMilli(v.n).UTC().Format("2006-01-02T15:04:05.000Z")
	}
	return ""
}

// Key returns a string that is equal for equal values, used for grouping.
func (v Val) Key() string {
	switch v.kind {
	case KindNull:
		return "\x00"
	case KindDouble:
		if v.f == math.Trunc(v.f) && math.Abs(v.f) < 1<<53 {
			return "n" + strconv.FormatInt(int64(v.f), 10)
		}
		return "n" + strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindLong, KindDate:
		return "n" + strconv.FormatInt(v.n, 10)
	}
	return "s" + v.String()
}

// Compare orders values: null first, numbers numerically, everything else by text.
func Compare(a, b Val) int {
	switch {
	case a.IsNull() && b.IsNull():
		return 0
	case a.IsNull():
		return -1
	case b.IsNull():
		return 1
	}
	if a.IsNumeric() && b.IsNumeric() {
		if a.kind != KindDouble && b.kind != KindDouble {
			return cmp.Compare(a.n, b.n)
		}
		af, _ := a.AsDouble()
		bf, _ := b.AsDouble()
		return cmp.Compare(af, bf)
	}
	return cmp.Compare(a.String(), b.String())
}

// MarshalJSON encodes v as a native JSON value. Dates encode as epoch millis.
func (v Val) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindString:
		return json.Marshal(v.s)
	case KindLong, KindDate:
		return []byte(strconv.FormatInt(v.n, 10)), nil
	case KindDouble:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return []byte("null"), nil
		}
		return json.Marshal(v.f)
	case KindBool:
		return []byte(strconv.FormatBool(v.n == 1)), nil
	}
	return nil, fmt.Errorf("unknown value kind %d", v.kind)
}

// UnmarshalJSON decodes a native JSON value. Integral numbers become longs.
func (v *Val) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*v = Null()
	case bytes.Equal(data, []byte("true")):
		*v = Bool(true)
	case bytes.Equal(data, []byte("false")):
		*v = Bool(false)
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode string value: %w", err)
		}
		*v = String(s)
	default:
		if n, err := strconv.ParseInt(string(data), 10, 64); err == nil {
			*v = Long(n)
			return nil
		}
		f, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return fmt.Errorf("decode value %q: %w", data, err)
		}
		*v = Double(f)
	}
	return nil
}
