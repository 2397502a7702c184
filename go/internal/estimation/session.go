package estimation

import (
	"fmt"
	"sync"

	"github.com/mcdev12/pointing/go/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// Session is the authoritative estimation state: the participants and
// whether their votes are revealed. Every operation runs under one mutex and
// the resulting snapshot is broadcast before the mutex is released, so each
// observer sees snapshots in mutation order.
type Session struct {
	mu           sync.Mutex
	participants map[string]*models.Participant
	revealed     bool

	broadcaster Broadcaster
}

// NewSession creates a hidden, empty session that reports every change to broadcaster.
func NewSession(broadcaster Broadcaster) *Session {
	if broadcaster == nil {
		broadcaster = Broadcasters{}
	}
	return &Session{
		participants: make(map[string]*models.Participant),
		broadcaster:  broadcaster,
	}
}

// Join adds a participant. It returns ErrDuplicateParticipant if the id is
// already present; the caller must then refuse the connection.
// onJoined hooks run under the session lock after the participant is added
// and before the join is broadcast, so a connection registered there
// receives the join snapshot as its first frame.
func (s *Session) Join(id, displayName string, onJoined ...func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.participants[id]; exists {
		log.Error().Str("participant_id", id).Msg("participant joined twice")
		return fmt.Errorf("join %q: %w", id, ErrDuplicateParticipant)
	}

	s.participants[id] = models.NewParticipant(id, displayName)
	for _, hook := range onJoined {
		if hook != nil {
			hook()
		}
	}
	log.Info().
		Str("participant_id", id).
		Int("participants", len(s.participants)).
		Msg("participant joined")

	s.broadcastLocked()
	return nil
}

// Leave removes a participant. Absent ids are ignored but still broadcast.
// Leaving never reveals the session, even if everyone left has voted.
func (s *Session) Leave(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.participants[id]; exists {
		delete(s.participants, id)
		log.Info().
			Str("participant_id", id).
			Int("participants", len(s.participants)).
			Msg("participant left")
	}

	s.broadcastLocked()
}

// CastVote sets or retracts (nil) a participant's vote. Unknown participants
// and values off the scale are logged and ignored. It reports whether the
// vote was applied. A vote never reveals the session on its own.
func (s *Session) CastVote(id string, points *int) bool {
	if !IsLegalPoints(points) {
		log.Warn().Str("participant_id", id).Int("points", *points).Msg("ignoring vote off the estimation scale")
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.participants[id]
	if !exists {
		log.Warn().Str("participant_id", id).Msg("ignoring vote from unknown participant")
		return false
	}

	p.SetPoints(points)
	event := log.Info().Str("participant_id", id)
	if points != nil {
		event = event.Int("points", *points)
	}
	event.Msg("vote received")

	s.broadcastLocked()
	return true
}

// Reveal opens the votes if every participant has voted. With no
// participants the condition holds trivially. It reports whether the
// session is now revealed; on false nothing changes and nothing is broadcast.
func (s *Session) Reveal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	allVoted := lo.EveryBy(lo.Values(s.participants), func(p *models.Participant) bool {
		return p.HasVoted()
	})
	if !allVoted {
		log.Info().Msg("reveal requested before everyone voted")
		return false
	}

	s.revealed = true
	log.Info().Int("participants", len(s.participants)).Msg("votes revealed")

	s.broadcastLocked()
	return true
}

// Clear retracts every vote and hides the session again.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.participants {
		p.ClearVote()
	}
	s.revealed = false
	log.Info().Msg("session cleared")

	s.broadcastLocked()
}

// Rename changes a participant's display name. Unknown ids are logged and
// ignored. It reports whether the name was applied.
func (s *Session) Rename(id, displayName string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.participants[id]
	if !exists {
		log.Warn().Str("participant_id", id).Msg("ignoring rename of unknown participant")
		return false
	}

	p.DisplayName = displayName
	log.Info().Str("participant_id", id).Str("user_name", displayName).Msg("participant renamed")

	s.broadcastLocked()
	return true
}

// Snapshot returns the current projection.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return newSnapshot(s.participants, s.revealed)
}

// Len returns the number of participants.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.participants)
}

// Revealed reports whether the votes are open.
func (s *Session) Revealed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revealed
}

// broadcastLocked must be called with s.mu held.
func (s *Session) broadcastLocked() {
	s.broadcaster.Broadcast(newSnapshot(s.participants, s.revealed))
}
