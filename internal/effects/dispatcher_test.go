package effects_test

import (
	"context"
	"testing"
	"time"

	"github.com/medizininformatik-initiative/fdpg-api-sub000/internal/deadline"
	"github.com/medizininformatik-initiative/fdpg-api-sub000/internal/domain"
	"github.com/medizininformatik-initiative/fdpg-api-sub000/internal/effects"
	"github.com/medizininformatik-initiative/fdpg-api-sub000/internal/history"
	"github.com/medizininformatik-initiative/fdpg-api-sub000/internal/schedule"
	"github.com/medizininformatik-initiative/fdpg-api-sub000/internal/tasks"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

type schedulerCall struct {
	op    string
	kinds []domain.ReminderKind
}

// spyScheduler records every call so tests can assert the dispatcher's
// authoritative cancel-then-create pattern.
type spyScheduler struct {
	calls []schedulerCall
}

func (s *spyScheduler) CreateEvents(_ context.Context, _ *domain.Proposal, kinds []domain.ReminderKind) error {
	s.calls = append(s.calls, schedulerCall{op: "create", kinds: kinds})
	return nil
}

func (s *spyScheduler) CancelEventsByKinds(_ context.Context, _ string, kinds []domain.ReminderKind) error {
	s.calls = append(s.calls, schedulerCall{op: "cancel", kinds: kinds})
	return nil
}

func (s *spyScheduler) CancelAll(_ context.Context, _ string) error {
	s.calls = append(s.calls, schedulerCall{op: "cancel_all"})
	return nil
}

type spyDocs struct {
	feasibility int
	contracts   int
}

func (d *spyDocs) FetchFeasibility(context.Context, domain.Proposal) error {
	d.feasibility++
	return nil
}

func (d *spyDocs) RenderContract(context.Context, domain.Proposal) error {
	d.contracts++
	return nil
}

func newDispatcher(spy *spyScheduler, docs *spyDocs) *effects.Dispatcher {
	return &effects.Dispatcher{
		Deadlines: deadline.Engine{
			OffsetDays: map[domain.DeadlineKind]int{
				domain.DeadlineFdpgCheck:     14,
				domain.DeadlineLocationCheck: 56,
			},
			Now: clock,
		},
		Tasks:     tasks.Tracker{Now: clock},
		History:   history.Recorder{Now: clock},
		Scheduler: spy,
		Runner:    schedule.SyncRunner{},
		Docs:      docs,
		Now:       clock,
	}
}

func newProposal(locations ...string) *domain.Proposal {
	return domain.New("p-1", "TEST", "res-1", locations, now)
}

var fdpg = domain.Actor{ID: "fdpg-1", Role: domain.RoleFdpgMember}

func TestSameStatusIsNoOp(t *testing.T) {
	spy := &spyScheduler{}
	d := newDispatcher(spy, &spyDocs{})
	p := newProposal()
	p.Status = domain.StatusDraft
	if err := d.Handle(context.Background(), p, domain.StatusDraft, fdpg, nil); err != nil {
		t.Fatal(err)
	}
	if len(spy.calls) != 0 {
		t.Fatalf("scheduler called on a same-status set: %+v", spy.calls)
	}
}

func TestEnterFdpgCheck(t *testing.T) {
	spy := &spyScheduler{}
	docs := &spyDocs{}
	d := newDispatcher(spy, docs)
	p := newProposal("loc-a")
	p.Status = domain.StatusFdpgCheck

	if err := d.Handle(context.Background(), p, domain.StatusDraft, fdpg, nil); err != nil {
		t.Fatal(err)
	}
	if p.Version.Major != 1 || p.Version.Minor != 0 {
		t.Fatalf("version %+v", p.Version)
	}
	if p.FdpgChecklist == nil || len(p.FdpgChecklist.Items) == 0 {
		t.Fatal("checklist not attached")
	}
	if p.SubmittedAt == nil {
		t.Fatal("submission not stamped")
	}
	if docs.feasibility != 1 {
		t.Fatalf("feasibility fetches %d", docs.feasibility)
	}
	if p.DueDateForStatus == nil {
		t.Fatal("fdpg check clock not armed")
	}
	// Cancel-then-create, both present even when one list is empty.
	if len(spy.calls) != 2 || spy.calls[0].op != "cancel" || spy.calls[1].op != "create" {
		t.Fatalf("scheduler calls %+v", spy.calls)
	}
	if len(spy.calls[1].kinds) != 2 {
		t.Fatalf("fdpg check reminders %v", spy.calls[1].kinds)
	}

	// Resubmission after rework bumps the minor version only.
	p.Status = domain.StatusRework
	if err := d.Handle(context.Background(), p, domain.StatusFdpgCheck, fdpg, nil); err != nil {
		t.Fatal(err)
	}
	p.Status = domain.StatusFdpgCheck
	if err := d.Handle(context.Background(), p, domain.StatusRework, fdpg, nil); err != nil {
		t.Fatal(err)
	}
	if p.Version.Major != 1 || p.Version.Minor != 1 {
		t.Fatalf("version after resubmit %+v", p.Version)
	}
}

func TestEnterLocationCheckResetsVotingRound(t *testing.T) {
	spy := &spyScheduler{}
	d := newDispatcher(spy, &spyDocs{})
	p := newProposal("loc-a", "loc-b")
	p.Status = domain.StatusLocationCheck
	// Residue from an imaginary earlier round.
	p.UacApprovedLocations = []string{"loc-a"}
	p.UacApprovals = []domain.UacApproval{{Location: "loc-a", DataAmount: 10}}
	p.TotalPromisedDataAmount = 10
	p.RequestedButExcludedLocations = []string{"loc-b"}
	p.DeclineReasons = []domain.DeclineReason{{Location: "loc-b", Type: domain.DeclineInitial}}

	if err := d.Handle(context.Background(), p, domain.StatusFdpgCheck, fdpg, nil); err != nil {
		t.Fatal(err)
	}
	if len(p.OpenDizChecks) != 2 || p.NumberOfRequestedLocations != 2 {
		t.Fatalf("open checks %v requested %d", p.OpenDizChecks, p.NumberOfRequestedLocations)
	}
	if len(p.UacApprovedLocations) != 0 || len(p.UacApprovals) != 0 || len(p.DeclineReasons) != 0 {
		t.Fatal("previous round residue survived")
	}
	if p.TotalPromisedDataAmount != 0 {
		t.Fatalf("promised %d", p.TotalPromisedDataAmount)
	}
	for _, loc := range []string{"loc-a", "loc-b"} {
		if got := p.LocationStateOf(loc); got != domain.LocationIsDizCheck {
			t.Fatalf("%s state %s", loc, got)
		}
	}
}

func TestEnterContractingSelectionAndAutoDecline(t *testing.T) {
	spy := &spyScheduler{}
	docs := &spyDocs{}
	d := newDispatcher(spy, docs)
	p := newProposal("loc-a", "loc-b", "loc-c", "loc-d")
	p.Status = domain.StatusContracting
	p.NumberOfRequestedLocations = 4
	p.UacApprovedLocations = []string{"loc-a", "loc-c"}
	p.UacApprovals = []domain.UacApproval{
		{Location: "loc-a", DataAmount: 100},
		{Location: "loc-c", DataAmount: 60},
	}
	p.OpenDizChecks = []string{"loc-b"}
	p.OpenDizConditionChecks = []string{"loc-d"}
	p.ConditionalApprovals = []domain.ConditionalApproval{
		{ID: "ca-1", Location: "loc-d", TaskID: "t-1", DataAmount: 20},
	}

	// Only loc-a is selected for contracting.
	if err := d.Handle(context.Background(), p, domain.StatusLocationCheck, fdpg, []string{"loc-a"}); err != nil {
		t.Fatal(err)
	}
	if len(p.UacApprovedLocations) != 1 || p.UacApprovedLocations[0] != "loc-a" {
		t.Fatalf("approved %v", p.UacApprovedLocations)
	}
	if p.NumberOfApprovedLocations != 1 {
		t.Fatalf("approved count %d", p.NumberOfApprovedLocations)
	}
	for _, loc := range []string{"loc-b", "loc-c", "loc-d"} {
		if got := p.LocationStateOf(loc); got != domain.LocationExcluded {
			t.Fatalf("%s state %s", loc, got)
		}
	}
	ca := p.ConditionalApprovalByID("ca-1")
	if ca.ReviewedAt == nil || ca.IsAccepted || ca.ReviewedBy != domain.SystemActor.ID {
		t.Fatalf("unreviewed condition not system-declined: %+v", ca)
	}
	if docs.contracts != 1 {
		t.Fatalf("contract renders %d", docs.contracts)
	}
	// The contracting clock stays unarmed until the researcher signs.
	if p.DueDateForStatus != nil {
		t.Fatal("contracting clock armed on entry")
	}
}

func TestEnterExpectDataDeliverySystemDeclinesUnsigned(t *testing.T) {
	spy := &spyScheduler{}
	d := newDispatcher(spy, &spyDocs{})
	p := newProposal("loc-a", "loc-b")
	p.Status = domain.StatusExpectDataDelivery
	p.SignedLocations = []string{"loc-a"}
	p.UacApprovedLocations = []string{"loc-b"}

	if err := d.Handle(context.Background(), p, domain.StatusContracting, fdpg, nil); err != nil {
		t.Fatal(err)
	}
	if p.NumberOfSignedLocations != 1 {
		t.Fatalf("signed %d", p.NumberOfSignedLocations)
	}
	if got := p.LocationStateOf("loc-b"); got != domain.LocationExcluded {
		t.Fatalf("loc-b state %s", got)
	}
	if got := p.LocationStateOf("loc-a"); got != domain.LocationSignedContractingDone {
		t.Fatalf("loc-a state %s", got)
	}
}

func TestEnterRejectedCancelsEverything(t *testing.T) {
	spy := &spyScheduler{}
	d := newDispatcher(spy, &spyDocs{})
	p := newProposal("loc-a", "loc-b")
	p.Status = domain.StatusRejected
	p.OpenDizChecks = []string{"loc-a"}
	p.UacApprovedLocations = []string{"loc-b"}

	if err := d.Handle(context.Background(), p, domain.StatusLocationCheck, fdpg, nil); err != nil {
		t.Fatal(err)
	}
	if len(spy.calls) != 1 || spy.calls[0].op != "cancel_all" {
		t.Fatalf("scheduler calls %+v", spy.calls)
	}
	for _, loc := range []string{"loc-a", "loc-b"} {
		if got := p.LocationStateOf(loc); got != domain.LocationExcluded {
			t.Fatalf("%s state %s", loc, got)
		}
	}
	for _, k := range domain.AllDeadlineKinds {
		if p.Deadlines[k] != nil {
			t.Fatalf("deadline %s survived rejection", k)
		}
	}
}

func TestSchedulerCalledForEveryStatus(t *testing.T) {
	// Even a status with nothing to create goes through cancel-then-create;
	// the scheduler's view stays authoritative.
	spy := &spyScheduler{}
	d := newDispatcher(spy, &spyDocs{})
	p := newProposal()
	p.Status = domain.StatusDataResearch
	if err := d.Handle(context.Background(), p, domain.StatusExpectDataDelivery, fdpg, nil); err != nil {
		t.Fatal(err)
	}
	spy.calls = nil

	p.Status = domain.StatusFinishedProject
	if err := d.Handle(context.Background(), p, domain.StatusDataResearch, fdpg, nil); err != nil {
		t.Fatal(err)
	}
	if len(spy.calls) != 2 || spy.calls[0].op != "cancel" || spy.calls[1].op != "create" {
		t.Fatalf("scheduler calls %+v", spy.calls)
	}
	if len(spy.calls[1].kinds) != 0 {
		t.Fatalf("finished project creates %v", spy.calls[1].kinds)
	}

	// The archive family carries its own cancel set and creates nothing.
	for _, target := range []domain.Status{domain.StatusReadyToArchive, domain.StatusArchived} {
		spy.calls = nil
		old := p.Status
		p.Status = target
		if err := d.Handle(context.Background(), p, old, fdpg, nil); err != nil {
			t.Fatal(err)
		}
		if len(spy.calls) != 2 || spy.calls[0].op != "cancel" || spy.calls[1].op != "create" {
			t.Fatalf("%s: scheduler calls %+v", target, spy.calls)
		}
		cancelled := map[domain.ReminderKind]bool{}
		for _, k := range spy.calls[0].kinds {
			cancelled[k] = true
		}
		if !cancelled[domain.ReminderResearchPeriod] || !cancelled[domain.ReminderDataCorrupt] {
			t.Fatalf("%s cancels %v", target, spy.calls[0].kinds)
		}
		if len(spy.calls[1].kinds) != 0 {
			t.Fatalf("%s creates %v", target, spy.calls[1].kinds)
		}
	}
}
