// Package history appends immutable audit events to a proposal's history log.
package history

import (
	"time"

	"github.com/google/uuid"

	"github.com/medizininformatik-initiative/fdpg-api-sub000/internal/domain"
)

type Recorder struct {
	Now func() time.Time
}

func (r Recorder) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Append pushes one event capturing actor identity, timestamp and the
// aggregate's current version. Prior entries are never touched.
func (r Recorder) Append(p *domain.Proposal, actor domain.Actor, evtType domain.HistoryEventType, location string, data map[string]any) {
	p.History = append(p.History, domain.HistoryEvent{
		ID:              uuid.New().String(),
		Type:            evtType,
		ProposalID:      p.ID,
		ProposalVersion: p.Version,
		ActorID:         actor.ID,
		ActorRole:       actor.Role,
		Location:        location,
		Data:            data,
		CreatedAt:       r.now().UTC(),
	})
}

// StatusChange records a status-change event, typed purely by the new status.
// A no-op when the status did not change.
func (r Recorder) StatusChange(p *domain.Proposal, actor domain.Actor, oldStatus domain.Status) {
	if p.Status == oldStatus {
		return
	}
	r.Append(p, actor, domain.StatusEventType(p.Status), "", map[string]any{
		"from": string(oldStatus),
		"to":   string(p.Status),
	})
}
