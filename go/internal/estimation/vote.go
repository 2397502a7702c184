package estimation

import (
	"bytes"
	"encoding/json"
	"slices"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

var scale = []int{1, 2, 3, 5, 8, 13, 21}

// Scale returns the fixed set of legal estimates.
func Scale() []int {
	return slices.Clone(scale)
}

var (
	validate   = validator.New()
	pointsRule = "oneof=" + strings.Join(lo.Map(scale, func(v int, _ int) string {
		return strconv.Itoa(v)
	}), " ")
)

// votePayload is the inbound frame. The participant id comes from the
// connection, never from the payload, so only points is read.
type votePayload struct {
	Points json.RawMessage `json:"points"`
}

// IsLegalPoints reports whether points is a retraction (nil) or a value on the scale.
func IsLegalPoints(points *int) bool {
	if points == nil {
		return true
	}
	return validate.Var(*points, pointsRule) == nil
}

// DecodeVote parses and validates a raw vote frame. It returns the points to
// store (nil means retract) or a *RejectedError. It has no side effects.
func DecodeVote(payload []byte) (*int, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, rejected("payload is not a JSON object", nil)
	}

	var msg votePayload
	if err := json.Unmarshal(trimmed, &msg); err != nil {
		return nil, rejected("malformed JSON", err)
	}
	if len(msg.Points) == 0 {
		return nil, rejected("missing points", nil)
	}
	if bytes.Equal(msg.Points, []byte("null")) {
		return nil, nil
	}

	var points int
	if err := json.Unmarshal(msg.Points, &points); err != nil {
		return nil, rejected("points is not an integer", err)
	}
	if err := validate.Var(points, pointsRule); err != nil {
		return nil, rejected("points not on the estimation scale", err)
	}
	return lo.ToPtr(points), nil
}
