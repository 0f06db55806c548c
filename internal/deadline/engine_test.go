package deadline_test

import (
	"errors"
	"testing"
	"time"

	"github.com/medizininformatik-initiative/fdpg-api-sub000/internal/deadline"
	"github.com/medizininformatik-initiative/fdpg-api-sub000/internal/domain"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newEngine() deadline.Engine {
	return deadline.Engine{
		OffsetDays: map[domain.DeadlineKind]int{
			domain.DeadlineFdpgCheck:           14,
			domain.DeadlineLocationCheck:       56,
			domain.DeadlineLocationContracting: 28,
			domain.DeadlineExpectDataDelivery:  28,
			domain.DeadlineDataCorrupt:         14,
			domain.DeadlineFinishedProject:     365,
		},
		Now: func() time.Time { return now },
	}
}

func newProposal() *domain.Proposal {
	return domain.New("p-1", "TEST", "res-1", []string{"loc-a"}, now)
}

func TestSetForStatusArmsOnce(t *testing.T) {
	e := newEngine()
	p := newProposal()
	p.Status = domain.StatusFdpgCheck
	e.SetForStatus(p, p.Status)
	first := p.Deadlines[domain.DeadlineFdpgCheck]
	if first == nil {
		t.Fatal("fdpg check deadline not armed")
	}
	want := now.AddDate(0, 0, 14)
	if !first.Equal(want) {
		t.Fatalf("due %v, want %v", first, want)
	}
	if p.DueDateForStatus == nil || !p.DueDateForStatus.Equal(want) {
		t.Fatalf("active due %v, want %v", p.DueDateForStatus, want)
	}

	// A later visit of the same status must not overwrite the stored value.
	later := now.AddDate(0, 1, 0)
	e.Now = func() time.Time { return later }
	e.SetForStatus(p, p.Status)
	if !p.Deadlines[domain.DeadlineFdpgCheck].Equal(want) {
		t.Fatal("first-write-wins violated")
	}
}

func TestIdleStatusNullsAllDeadlines(t *testing.T) {
	e := newEngine()
	p := newProposal()
	p.Status = domain.StatusFdpgCheck
	e.SetForStatus(p, p.Status)
	p.Status = domain.StatusRework
	e.SetForStatus(p, p.Status)
	for _, k := range domain.AllDeadlineKinds {
		if p.Deadlines[k] != nil {
			t.Fatalf("deadline %s survived rework", k)
		}
	}
	if p.DueDateForStatus != nil {
		t.Fatal("active due survived rework")
	}
}

func TestContractingNotArmedOnEntry(t *testing.T) {
	e := newEngine()
	p := newProposal()
	p.Status = domain.StatusContracting
	e.SetForStatus(p, p.Status)
	if p.Deadlines[domain.DeadlineLocationContracting] != nil {
		t.Fatal("contracting deadline must wait for the researcher signature")
	}
	if p.DueDateForStatus != nil {
		t.Fatal("active due must be empty before the signature")
	}

	e.ArmContracting(p)
	want := now.AddDate(0, 0, 28)
	got := p.Deadlines[domain.DeadlineLocationContracting]
	if got == nil || !got.Equal(want) {
		t.Fatalf("armed due %v, want %v", got, want)
	}
	if p.DueDateForStatus == nil || !p.DueDateForStatus.Equal(want) {
		t.Fatal("active due not set by arming")
	}

	// Arming again overwrites; this is the one explicit re-arm.
	later := now.AddDate(0, 0, 10)
	e.Now = func() time.Time { return later }
	e.ArmContracting(p)
	if !p.Deadlines[domain.DeadlineLocationContracting].Equal(later.AddDate(0, 0, 28)) {
		t.Fatal("re-arm did not overwrite")
	}
}

func TestResearchDueFromProjectDates(t *testing.T) {
	e := newEngine()
	p := newProposal()
	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	p.ProjectStartAt = &start
	p.ProjectDurationMonths = 24
	p.Status = domain.StatusDataResearch
	e.SetForStatus(p, p.Status)
	got := p.Deadlines[domain.DeadlineFinishedProject]
	want := start.AddDate(0, 24, 0)
	if got == nil || !got.Equal(want) {
		t.Fatalf("research due %v, want %v", got, want)
	}
}

func TestValidateOrder(t *testing.T) {
	d1 := now.AddDate(0, 0, 10)
	d2 := now.AddDate(0, 0, 20)
	ok := map[domain.DeadlineKind]*time.Time{
		domain.DeadlineFdpgCheck:     &d1,
		domain.DeadlineLocationCheck: &d2,
	}
	if err := deadline.ValidateOrder(ok); err != nil {
		t.Fatalf("ordered map rejected: %v", err)
	}

	bad := map[domain.DeadlineKind]*time.Time{
		domain.DeadlineFdpgCheck:     &d2,
		domain.DeadlineLocationCheck: &d1,
	}
	err := deadline.ValidateOrder(bad)
	var sc *domain.StateConflictError
	if !errors.As(err, &sc) || sc.Code != domain.CodeDeadlineOrderViolated {
		t.Fatalf("want order violation, got %v", err)
	}

	// Gaps are skipped: only defined values participate in the order.
	gap := map[domain.DeadlineKind]*time.Time{
		domain.DeadlineFdpgCheck:      &d1,
		domain.DeadlineFinishedProject: &d2,
	}
	if err := deadline.ValidateOrder(gap); err != nil {
		t.Fatalf("map with gaps rejected: %v", err)
	}
}

func TestValidateEdit(t *testing.T) {
	if !deadline.ValidateEdit(domain.StatusLocationCheck, []domain.DeadlineKind{domain.DeadlineLocationCheck, domain.DeadlineFinishedProject}) {
		t.Fatal("current and later phases must be editable")
	}
	if deadline.ValidateEdit(domain.StatusLocationCheck, []domain.DeadlineKind{domain.DeadlineFdpgCheck}) {
		t.Fatal("past phase must not be editable")
	}
	if deadline.ValidateEdit(domain.StatusDraft, []domain.DeadlineKind{domain.DeadlineFdpgCheck}) {
		t.Fatal("idle status has no running clock to edit")
	}
}

func TestPredecessorChainIsAcyclic(t *testing.T) {
	pred := deadline.PredecessorMap()
	for start := range pred {
		seen := map[domain.DeadlineKind]bool{}
		for k, ok := start, true; ok; k, ok = pred[k] {
			if seen[k] {
				t.Fatalf("cycle through %s", k)
			}
			seen[k] = true
		}
	}
}

func TestKindForStatus(t *testing.T) {
	if _, ok := deadline.KindForStatus(domain.StatusDraft); ok {
		t.Fatal("draft has no deadline kind")
	}
	k, ok := deadline.KindForStatus(domain.StatusDataResearch)
	if !ok || k != domain.DeadlineFinishedProject {
		t.Fatalf("data_research kind %s", k)
	}
}
