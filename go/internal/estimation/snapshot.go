package estimation

import (
	"github.com/mcdev12/pointing/go/internal/models"
	"github.com/samber/lo"
)

// Snapshot is the broadcast projection of the session. It is derived on
// demand and never stored.
type Snapshot struct {
	Participants map[string]ParticipantView `json:"participants"`
	Opened       bool                       `json:"opened"`
}

// ParticipantView is one participant as seen by every client.
// Points holds a bool ("has voted") while the session is hidden and the
// actual *int vote once it is opened.
type ParticipantView struct {
	UserName string `json:"userName"`
	Points   any    `json:"points"`
}

func newSnapshot(participants map[string]*models.Participant, opened bool) Snapshot {
	project := maskedView
	if opened {
		project = fullView
	}
	return Snapshot{
		Participants: lo.MapValues(participants, func(p *models.Participant, _ string) ParticipantView {
			return project(p)
		}),
		Opened: opened,
	}
}

func maskedView(p *models.Participant) ParticipantView {
	return ParticipantView{UserName: p.DisplayName, Points: p.HasVoted()}
}

func fullView(p *models.Participant) ParticipantView {
	var points *int
	if p.Points != nil {
		points = lo.ToPtr(*p.Points)
	}
	return ParticipantView{UserName: p.DisplayName, Points: points}
}
