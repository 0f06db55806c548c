package history_test

import (
	"testing"
	"time"

	"github.com/medizininformatik-initiative/fdpg-api-sub000/internal/domain"
	"github.com/medizininformatik-initiative/fdpg-api-sub000/internal/history"
)

func TestAppendStampsActorAndVersion(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := history.Recorder{Now: func() time.Time { return now }}
	p := domain.New("p-1", "TEST", "res-1", nil, now)
	p.Version = domain.Version{Major: 1, Minor: 2}
	actor := domain.Actor{ID: "fdpg-1", Role: domain.RoleFdpgMember}

	r.Append(p, actor, domain.EvtCommentAdded, "loc-a", map[string]any{"k": "v"})
	if len(p.History) != 1 {
		t.Fatalf("history %d", len(p.History))
	}
	evt := p.History[0]
	if evt.ID == "" || evt.ActorID != "fdpg-1" || evt.ActorRole != domain.RoleFdpgMember {
		t.Fatalf("event %+v", evt)
	}
	if evt.ProposalVersion.Major != 1 || evt.ProposalVersion.Minor != 2 {
		t.Fatalf("version %+v", evt.ProposalVersion)
	}
	if !evt.CreatedAt.Equal(now) || evt.Location != "loc-a" {
		t.Fatalf("event %+v", evt)
	}
}

func TestStatusChangeTypedByNewStatus(t *testing.T) {
	r := history.Recorder{}
	p := domain.New("p-1", "TEST", "res-1", nil, time.Now())
	p.Status = domain.StatusFdpgCheck
	r.StatusChange(p, domain.SystemActor, domain.StatusDraft)
	if len(p.History) != 1 || p.History[0].Type != domain.EvtStatusFdpgCheck {
		t.Fatalf("history %+v", p.History)
	}

	// Same old and new status records nothing.
	r.StatusChange(p, domain.SystemActor, domain.StatusFdpgCheck)
	if len(p.History) != 1 {
		t.Fatal("no-op status change appended")
	}
}
