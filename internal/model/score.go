package model

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Score holds a numeric-ish field exactly as received. Resolvers and older
// artifacts emit it either as a JSON number (1) or a string ("1"); both decode
// to the same text, and numeric text encodes back as a JSON number.
type Score string

// Float parses the score. Non-numeric scores count as zero.
func (s Score) Float() float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(string(s)), 64)
	if err != nil {
		return 0
	}
	return v
}

// Numeric reports whether the score is a valid JSON number literal.
func (s Score) Numeric() bool {
	var n json.Number
	if err := json.Unmarshal([]byte(s), &n); err != nil {
		return false
	}
	return string(n) == string(s)
}

// MarshalJSON implements json.Marshaler.
func (s Score) MarshalJSON() ([]byte, error) {
	if s.Numeric() {
		return []byte(s), nil
	}
	return json.Marshal(string(s))
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Score) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*s = ""
		return nil
	case len(data) > 0 && data[0] == '"':
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = Score(str)
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*s = Score(n)
		return nil
	}
}
