package val

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Tagged is the lossless JSON form of a Val: a two element array of kind tag and value,
// or null. Dates and whole doubles keep their kind, which the native form loses.
type Tagged Val

const (
	tagString = "s"
	tagLong   = "l"
	tagDouble = "d"
	tagBool   = "b"
	tagDate   = "t"
)

func (t Tagged) MarshalJSON() ([]byte, error) {
	v := Val(t)
	var tag string
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindString:
		tag = tagString
	case KindLong:
		tag = tagLong
	case KindDouble:
		tag = tagDouble
	case KindBool:
		tag = tagBool
	case KindDate:
		tag = tagDate
	default:
		return nil, fmt.Errorf("unknown value kind %d", v.kind)
	}
	data, err := v.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return fmt.Appendf(nil, `[%q,%s]`, tag, data), nil
}

func (t *Tagged) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*t = Tagged(Null())
		return nil
	}
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("decode tagged value: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("decode tagged value %s: want [kind, value]", data)
	}
	var tag string
	if err := json.Unmarshal(pair[0], &tag); err != nil {
		return fmt.Errorf("decode value kind: %w", err)
	}
	var v Val
	if err := v.UnmarshalJSON(pair[1]); err != nil {
		return err
	}
	if v.IsNull() {
		*t = Tagged(v)
		return nil
	}

	switch tag {
	case tagString:
		if v.kind == KindString {
			*t = Tagged(v)
			return nil
		}
	case tagBool:
		if v.kind == KindBool {
			*t = Tagged(v)
			return nil
		}
	case tagLong, tagDate:
		if v.kind == KindLong {
			if tag == tagDate {
				v = Date(v.n)
			}
			*t = Tagged(v)
			return nil
		}
	case tagDouble:
		if v.kind == KindLong || v.kind == KindDouble {
			f, _ := v.AsDouble()
			*t = Tagged(Double(f))
			return nil
		}
	default:
		return fmt.Errorf("unknown value kind %q", tag)
	}
	return fmt.Errorf("value %s does not match kind %q", pair[1], tag)
}

// TagRow converts a row to its tagged form.
func TagRow(row []Val) []Tagged {
	out := make([]Tagged, len(row))
	for i, v := range row {
		out[i] = Tagged(v)
	}
	return out
}

// UntagRow converts a tagged row back.
func UntagRow(row []Tagged) []Val {
	out := make([]Val, len(row))
	for i, v := range row {
		out[i] = Val(v)
	}
	return out
}
