package yomichan

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"
)

// MetaData is the payload of a kanji or term metadata entry. It is either a
// Frequency or a Structured value.
type MetaData interface {
	json.Marshaler
	isMetaData()
}

// Frequency is a bare occurrence count.
type Frequency uint32

func (Frequency) isMetaData() {}

// MarshalJSON encodes the frequency as a JSON number.
func (f Frequency) MarshalJSON() ([]byte, error) {
	return strconv.AppendUint(nil, uint64(f), 10), nil
}

// Structured is any other JSON payload, kept as the raw bytes it was read
// from. Pitch accent data is stored this way.
type Structured []byte

func (Structured) isMetaData() {}

// MarshalJSON returns the original bytes.
func (s Structured) MarshalJSON() ([]byte, error) {
	if len(s) == 0 {
		return []byte("null"), nil
	}
	return []byte(s), nil
}

var errNullMetaData = errors.New("meta data is null")

// ResolveMetaData classifies a metadata payload by its shape.
//
// The numeric reading is tried first: a JSON integer in the uint32 range is a
// Frequency. Everything else that is valid JSON, other than null, is kept as
// Structured. The order matters. Structured accepts numbers too, so trying it
// first would hide every frequency.
func ResolveMetaData(raw []byte) (MetaData, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("meta data is not valid JSON: %q", truncate(raw, 32))
	}
	res := gjson.ParseBytes(raw)
	if f, ok := asFrequency(res); ok {
		return f, nil
	}
	if res.Type == gjson.Null {
		return nil, errNullMetaData
	}
	return Structured(bytes.Clone(bytes.TrimSpace(raw))), nil
}

func asFrequency(res gjson.Result) (Frequency, bool) {
	if res.Type != gjson.Number {
		return 0, false
	}
	// The literal has to be plain digits: 1.5, -3 and 1e3 are not counts.
	n, err := strconv.ParseUint(res.Raw, 10, 32)
	if err != nil {
		return 0, false
	}
	return Frequency(n), true
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
