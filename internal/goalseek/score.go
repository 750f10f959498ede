package goalseek

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

// Score bounds.
const (
	MinScore = 0.0
	MaxScore = 100.0
)

// Score is an extracted validator score. The zero value is NoScore, meaning
// the validator output could not be scored.
type Score struct {
	value float64
	valid bool
}

// NoScore marks an attempt whose validation output could not be scored.
var NoScore = Score{}

// Scored returns a valid score clamped to [MinScore, MaxScore].
// NaN yields NoScore.
func Scored(v float64) Score {
	if math.IsNaN(v) {
		return NoScore
	}
	return Score{value: clamp(v), valid: true}
}

func clamp(v float64) float64 {
	switch {
	case v < MinScore:
		return MinScore
	case v > MaxScore:
		return MaxScore
	default:
		return v
	}
}

// Value returns the score and whether one was extracted.
func (s Score) Value() (float64, bool) {
	return s.value, s.valid
}

// IsSet reports whether the score was extracted.
func (s Score) IsSet() bool {
	return s.valid
}

// OrZero returns the score, treating NoScore as 0 for threshold comparison.
func (s Score) OrZero() float64 {
	if !s.valid {
		return 0
	}
	return s.value
}

// Better reports whether s should replace best as the best score seen.
// Any scored value beats NoScore.
func (s Score) Better(best Score) bool {
	if !s.valid {
		return false
	}
	return !best.valid || s.value > best.value
}

// String formats the score compactly, or "none".
func (s Score) String() string {
	if !s.valid {
		return "none"
	}
	return strconv.FormatFloat(s.value, 'f', -1, 64)
}

// MarshalJSON encodes NoScore as null.
func (s Score) MarshalJSON() ([]byte, error) {
	if !s.valid {
		return []byte("null"), nil
	}
	return json.Marshal(s.value)
}

// UnmarshalJSON accepts a number or null.
func (s *Score) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*s = NoScore
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = Scored(v)
	return nil
}
