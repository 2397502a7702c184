package estimation

import (
	"errors"
	"fmt"
)

// ErrDuplicateParticipant is returned by Join when the participant id is already in the session
var ErrDuplicateParticipant = errors.New("participant already joined")

// ErrRejected matches every *RejectedError
var ErrRejected = errors.New("vote rejected")

// RejectedError describes why an inbound vote payload was dropped.
type RejectedError struct {
	Reason string
	Err    error
}

func (e *RejectedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("vote rejected: %s: %v", e.Reason, e.Err)
	}
	return "vote rejected: " + e.Reason
}

func (e *RejectedError) Unwrap() error {
	return e.Err
}

func (e *RejectedError) Is(target error) bool {
	return target == ErrRejected
}

func rejected(reason string, err error) error {
	return &RejectedError{Reason: reason, Err: err}
}
