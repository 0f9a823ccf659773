package timeofday

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Raw is one of the supported wire shapes of a start time:
// Text, Tuple, Fields, or an already normalized TimeOfDay.
type Raw interface {
	isRaw()
}

// Text is "HH:MM" or "HH:MM:SS"; seconds are ignored.
type Text string

// Tuple is [hours, minutes] or [hours, minutes, seconds].
type Tuple []int

// Fields is a structured value with named hour and minute.
type Fields struct {
	Hour   int
	Minute int
}

func (Text) isRaw()      {}
func (Tuple) isRaw()     {}
func (Fields) isRaw()    {}
func (TimeOfDay) isRaw() {}

// Normalize converts any supported shape into a validated TimeOfDay.
// It does not modify its input.
func Normalize(raw Raw) (TimeOfDay, error) {
	switch v := raw.(type) {
	case TimeOfDay:
		return New(v.Hours, v.Minutes)
	case Text:
		return parseText(string(v))
	case Tuple:
		if len(v) < 2 || len(v) > 3 {
			return TimeOfDay{}, malformed(fmt.Sprint([]int(v)), "expected 2 or 3 elements, got %d", len(v))
		}
		return New(v[0], v[1])
	case Fields:
		return New(v.Hour, v.Minute)
	case nil:
		return TimeOfDay{}, malformed("<nil>", "time is missing")
	default:
		return TimeOfDay{}, malformed(fmt.Sprintf("%T", raw), "unsupported shape")
	}
}

// Decode maps a JSON value onto a Raw variant without validating ranges.
// A JSON null or empty input yields (nil, nil): the time is absent.
func Decode(data []byte) (Raw, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, malformed(string(trimmed), "invalid string: %v", err)
		}
		return Text(s), nil
	case '[':
		var parts []int
		if err := json.Unmarshal(trimmed, &parts); err != nil {
			return nil, malformed(string(trimmed), "invalid tuple: %v", err)
		}
		return Tuple(parts), nil
	case '{':
		var obj struct {
			Hour   *int `json:"hour"`
			Minute *int `json:"minute"`
		}
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return nil, malformed(string(trimmed), "invalid object: %v", err)
		}
		if obj.Hour == nil || obj.Minute == nil {
			return nil, malformed(string(trimmed), "object needs hour and minute")
		}
		return Fields{Hour: *obj.Hour, Minute: *obj.Minute}, nil
	default:
		return nil, malformed(string(trimmed), "unsupported shape")
	}
}

// DecodeAndNormalize is Decode followed by Normalize.
// A missing value is reported as (zero, false, nil).
func DecodeAndNormalize(data []byte) (TimeOfDay, bool, error) {
	raw, err := Decode(data)
	if err != nil {
		return TimeOfDay{}, false, err
	}
	if raw == nil {
		return TimeOfDay{}, false, nil
	}
	t, err := Normalize(raw)
	if err != nil {
		return TimeOfDay{}, false, err
	}
	return t, true, nil
}
