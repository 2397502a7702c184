package models

// Participant represents one voter in the estimation session.
type Participant struct {
	ID          string
	DisplayName string
	Points      *int // nil until a vote is cast
}

// NewParticipant creates a participant that has not voted yet.
func NewParticipant(id, displayName string) *Participant {
	return &Participant{
		ID:          id,
		DisplayName: displayName,
	}
}

// HasVoted reports whether the participant currently holds a vote.
func (p *Participant) HasVoted() bool {
	return p.Points != nil
}

// SetPoints stores a copy of points so callers cannot mutate the stored vote.
func (p *Participant) SetPoints(points *int) {
	if points == nil {
		p.Points = nil
		return
	}
	v := *points
	p.Points = &v
}

// ClearVote retracts the participant's vote.
func (p *Participant) ClearVote() {
	p.Points = nil
}
