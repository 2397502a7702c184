package estimation

import (
	"errors"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeVote(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    *int
		reason  string
	}{
		{name: "fibonacci value", payload: `{"points": 8}`, want: lo.ToPtr(8)},
		{name: "largest value", payload: `{"points": 21}`, want: lo.ToPtr(21)},
		{name: "retract", payload: `{"points": null}`, want: nil},
		{name: "unknown fields tolerated", payload: `{"points": 3, "player_id": "spoofed"}`, want: lo.ToPtr(3)},
		{name: "surrounding whitespace", payload: " \n{\"points\": 1}\n", want: lo.ToPtr(1)},
		{name: "off scale", payload: `{"points": 4}`, reason: "points not on the estimation scale"},
		{name: "negative", payload: `{"points": -1}`, reason: "points not on the estimation scale"},
		{name: "string points", payload: `{"points": "5"}`, reason: "points is not an integer"},
		{name: "fractional points", payload: `{"points": 5.5}`, reason: "points is not an integer"},
		{name: "boolean points", payload: `{"points": true}`, reason: "points is not an integer"},
		{name: "missing points", payload: `{"userName": "Ada"}`, reason: "missing points"},
		{name: "array", payload: `[5]`, reason: "payload is not a JSON object"},
		{name: "bare number", payload: `5`, reason: "payload is not a JSON object"},
		{name: "empty", payload: ``, reason: "payload is not a JSON object"},
		{name: "truncated", payload: `{"points": `, reason: "malformed JSON"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeVote([]byte(tt.payload))

			if tt.reason == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
				return
			}

			require.Error(t, err)
			assert.Nil(t, got)
			assert.True(t, errors.Is(err, ErrRejected))

			var rej *RejectedError
			require.True(t, errors.As(err, &rej))
			assert.Equal(t, tt.reason, rej.Reason)
		})
	}
}

func TestScaleIsACopy(t *testing.T) {
	values := Scale()
	values[0] = 4

	assert.Equal(t, []int{1, 2, 3, 5, 8, 13, 21}, Scale())
	assert.False(t, IsLegalPoints(lo.ToPtr(4)))
	assert.True(t, IsLegalPoints(lo.ToPtr(1)))
}

func TestIsLegalPoints(t *testing.T) {
	assert.True(t, IsLegalPoints(nil))
	for _, v := range Scale() {
		assert.True(t, IsLegalPoints(lo.ToPtr(v)), "%d should be legal", v)
	}
	for _, v := range []int{0, 4, 6, 7, 20, 34, -8} {
		assert.False(t, IsLegalPoints(lo.ToPtr(v)), "%d should be rejected", v)
	}
}
