package goalseek

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScored_Clamps(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{in: 42, want: 42},
		{in: -5, want: 0},
		{in: 150, want: 100},
		{in: 100, want: 100},
		{in: 0, want: 0},
		{in: math.Inf(1), want: 100},
	}
	for _, tt := range tests {
		v, ok := Scored(tt.in).Value()
		assert.True(t, ok)
		assert.Equal(t, tt.want, v, "Scored(%v)", tt.in)
	}
}

func TestScored_NaNIsNoScore(t *testing.T) {
	assert.False(t, Scored(math.NaN()).IsSet())
}

func TestNoScore(t *testing.T) {
	assert.False(t, NoScore.IsSet())
	assert.Equal(t, 0.0, NoScore.OrZero())
	assert.Equal(t, "none", NoScore.String())

	var zero Score
	assert.Equal(t, NoScore, zero)
	assert.NotEqual(t, NoScore, Scored(0), "a real zero is distinct from no score")
}

func TestScore_Better(t *testing.T) {
	assert.True(t, Scored(0).Better(NoScore))
	assert.False(t, NoScore.Better(Scored(0)))
	assert.False(t, NoScore.Better(NoScore))
	assert.True(t, Scored(51).Better(Scored(50)))
	assert.False(t, Scored(50).Better(Scored(50)))
}

func TestScore_JSON(t *testing.T) {
	b, err := json.Marshal(struct {
		A Score `json:"a"`
		B Score `json:"b"`
	}{A: Scored(82.5), B: NoScore})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":82.5,"b":null}`, string(b))

	var s Score
	require.NoError(t, json.Unmarshal([]byte("null"), &s))
	assert.False(t, s.IsSet())
	require.NoError(t, json.Unmarshal([]byte("120"), &s))
	assert.Equal(t, Scored(100), s)
}
