// Package effects orchestrates the side effects of a committed global status
// change: deadline recomputation, location-array resets, reminder
// (re)registration, auto-declines, and deferred document generation.
package effects

import (
	"context"
	"log"
	"time"

	"github.com/medizininformatik-initiative/fdpg-api-sub000/internal/deadline"
	"github.com/medizininformatik-initiative/fdpg-api-sub000/internal/domain"
	"github.com/medizininformatik-initiative/fdpg-api-sub000/internal/history"
	"github.com/medizininformatik-initiative/fdpg-api-sub000/internal/schedule"
	"github.com/medizininformatik-initiative/fdpg-api-sub000/internal/tasks"
)

// DocumentGenerator produces the feasibility export and the contract PDF from
// a read-only copy of the proposal. Rendering lives outside this module.
type DocumentGenerator interface {
	FetchFeasibility(ctx context.Context, p domain.Proposal) error
	RenderContract(ctx context.Context, p domain.Proposal) error
}

type NoopDocumentGenerator struct{}

func (NoopDocumentGenerator) FetchFeasibility(context.Context, domain.Proposal) error { return nil }
func (NoopDocumentGenerator) RenderContract(context.Context, domain.Proposal) error   { return nil }

// Deferred-runner kinds for cancellable background work.
const (
	DeferredFeasibility = "feasibility_fetch"
	DeferredContractPDF = "contract_pdf"
)

// DefaultDeferDelay keeps document generation off the synchronous request
// path while staying cancellable if a later change supersedes it.
const DefaultDeferDelay = 3 * time.Second

// reminderChange is one row of the per-status scheduler table: cancel these
// kinds, then create those. Executed unconditionally on every committed
// change, even when both lists are empty, so the scheduler's view stays
// authoritative.
type reminderChange struct {
	Remove []domain.ReminderKind
	Create []domain.ReminderKind
}

var fdpgCheckReminders = []domain.ReminderKind{domain.ReminderFdpgCheck1, domain.ReminderFdpgCheck2}
var locationCheckReminders = []domain.ReminderKind{domain.ReminderLocationCheck1, domain.ReminderLocationCheck2, domain.ReminderLocationCheck3}
var contractingReminders = []domain.ReminderKind{domain.ReminderContracting1, domain.ReminderContracting2}

var reminderTable = map[domain.Status]reminderChange{
	domain.StatusFdpgCheck:     {Create: fdpgCheckReminders},
	domain.StatusLocationCheck: {Remove: fdpgCheckReminders, Create: locationCheckReminders},
	domain.StatusContracting:   {Remove: locationCheckReminders, Create: contractingReminders},
	domain.StatusExpectDataDelivery: {
		Remove: contractingReminders,
		Create: []domain.ReminderKind{domain.ReminderDataDelivery},
	},
	domain.StatusDataResearch: {
		Remove: []domain.ReminderKind{domain.ReminderDataDelivery},
		Create: []domain.ReminderKind{domain.ReminderResearchPeriod},
	},
	domain.StatusDataCorrupt: {
		Create: []domain.ReminderKind{domain.ReminderDataCorrupt},
	},
	domain.StatusFinishedProject: {
		Remove: []domain.ReminderKind{domain.ReminderResearchPeriod, domain.ReminderDataCorrupt},
	},
	// The archive family creates nothing; the cancels repeat the
	// finished-project set so the rows stand on their own.
	domain.StatusReadyToArchive: {
		Remove: []domain.ReminderKind{domain.ReminderResearchPeriod, domain.ReminderDataCorrupt},
	},
	domain.StatusArchived: {
		Remove: []domain.ReminderKind{domain.ReminderResearchPeriod, domain.ReminderDataCorrupt},
	},
	domain.StatusRework: {Remove: fdpgCheckReminders},
}

type Dispatcher struct {
	Deadlines deadline.Engine
	Tasks     tasks.Tracker
	History   history.Recorder
	Scheduler schedule.Scheduler
	Runner    schedule.DeferredRunner
	Docs      DocumentGenerator

	DeferDelay time.Duration
	Now        func() time.Time
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

func (d *Dispatcher) docs() DocumentGenerator {
	if d.Docs != nil {
		return d.Docs
	}
	return NoopDocumentGenerator{}
}

func (d *Dispatcher) deferDelay() time.Duration {
	if d.DeferDelay > 0 {
		return d.DeferDelay
	}
	return DefaultDeferDelay
}

type handler func(d *Dispatcher, ctx context.Context, p *domain.Proposal, actor domain.Actor, locationList []string)

var handlers = map[domain.Status]handler{
	domain.StatusFdpgCheck:          (*Dispatcher).enterFdpgCheck,
	domain.StatusLocationCheck:      (*Dispatcher).enterLocationCheck,
	domain.StatusContracting:        (*Dispatcher).enterContracting,
	domain.StatusExpectDataDelivery: (*Dispatcher).enterExpectDataDelivery,
	domain.StatusRejected:           (*Dispatcher).enterRejected,
}

// Handle performs all derived mutations and scheduler calls for a committed
// status change. A no-op when the status did not change.
func (d *Dispatcher) Handle(ctx context.Context, p *domain.Proposal, oldStatus domain.Status, actor domain.Actor, locationList []string) error {
	if p.Status == oldStatus {
		return nil
	}
	d.Deadlines.SetForStatus(p, p.Status)
	if h, ok := handlers[p.Status]; ok {
		h(d, ctx, p, actor, locationList)
	}
	if p.Status == domain.StatusRejected {
		return d.Scheduler.CancelAll(ctx, p.ID)
	}
	change := reminderTable[p.Status]
	if err := d.Scheduler.CancelEventsByKinds(ctx, p.ID, change.Remove); err != nil {
		return err
	}
	return d.Scheduler.CreateEvents(ctx, p, change.Create)
}

func (d *Dispatcher) enterFdpgCheck(ctx context.Context, p *domain.Proposal, actor domain.Actor, _ []string) {
	if p.Version.Major == 0 {
		p.Version.Major = 1
	} else {
		p.Version.Minor++
	}
	if p.FdpgChecklist == nil {
		p.FdpgChecklist = domain.DefaultChecklist()
	}
	if p.SubmittedAt == nil {
		now := d.now()
		p.SubmittedAt = &now
	}
	view := *p
	d.runner().Schedule(p.ID, DeferredFeasibility, d.deferDelay(), func(ctx context.Context) {
		if err := d.docs().FetchFeasibility(ctx, view); err != nil {
			log.Printf("proposal %s: feasibility fetch failed: %v", view.ID, err)
		}
	})
}

func (d *Dispatcher) enterLocationCheck(_ context.Context, p *domain.Proposal, _ domain.Actor, _ []string) {
	// Fresh voting round: only the open-checks array carries locations.
	p.DizApprovedLocations = nil
	p.OpenDizConditionChecks = nil
	p.UacApprovedLocations = nil
	p.RequestedButExcludedLocations = nil
	p.SignedLocations = nil
	p.OpenDizChecks = append([]string(nil), p.RequestedLocations...)
	p.NumberOfRequestedLocations = len(p.RequestedLocations)
	p.NumberOfApprovedLocations = 0
	p.NumberOfSignedLocations = 0
	p.TotalPromisedDataAmount = 0
	p.TotalContractedDataAmount = 0
	p.UacApprovals = nil
	p.ConditionalApprovals = nil
	p.DeclineReasons = nil
}

func (d *Dispatcher) enterContracting(_ context.Context, p *domain.Proposal, actor domain.Actor, locationList []string) {
	now := d.now()

	// Conditional approvals still unreviewed are declined by the system.
	for i := range p.ConditionalApprovals {
		ca := &p.ConditionalApprovals[i]
		if ca.ReviewedAt != nil {
			continue
		}
		ca.ReviewedAt = &now
		ca.ReviewedBy = domain.SystemActor.ID
		ca.IsAccepted = false
		d.Tasks.Remove(p, ca.TaskID)
		d.excludeWithReason(p, ca.Location, "condition not reviewed before contracting", domain.DeclineSystem, now)
		d.History.Append(p, domain.SystemActor, domain.EvtConditionAutoDeclined, ca.Location, map[string]any{"condition_id": ca.ID})
	}

	// Approved locations the caller did not select are declined too.
	selected := map[string]bool{}
	for _, loc := range locationList {
		selected[loc] = true
	}
	for _, loc := range append([]string(nil), p.UacApprovedLocations...) {
		if !selected[loc] {
			d.excludeWithReason(p, loc, "not selected for contracting", domain.DeclineSystem, now)
			d.History.Append(p, domain.SystemActor, domain.EvtLocationAutoExcluded, loc, nil)
		}
	}

	// Every location still in a non-terminal array moves to excluded.
	for _, loc := range mergeUnique(p.OpenDizChecks, p.DizApprovedLocations, p.OpenDizConditionChecks) {
		d.excludeWithReason(p, loc, "no vote before contracting", domain.DeclineSystem, now)
		d.History.Append(p, domain.SystemActor, domain.EvtLocationAutoExcluded, loc, nil)
	}
	p.OpenDizChecks = nil
	p.DizApprovedLocations = nil
	p.OpenDizConditionChecks = nil

	// Excluded wins over approved if a location ended up in both.
	p.UacApprovedLocations = subtract(p.UacApprovedLocations, p.RequestedButExcludedLocations)
	p.NumberOfApprovedLocations = len(p.UacApprovedLocations)

	d.Tasks.RemoveByKind(p, domain.TaskUacApprovalComplete, domain.TaskDataAmountReached)

	view := *p
	d.runner().Schedule(p.ID, DeferredContractPDF, d.deferDelay(), func(ctx context.Context) {
		if err := d.docs().RenderContract(ctx, view); err != nil {
			log.Printf("proposal %s: contract render failed: %v", view.ID, err)
		}
	})
}

func (d *Dispatcher) enterExpectDataDelivery(_ context.Context, p *domain.Proposal, _ domain.Actor, _ []string) {
	now := d.now()
	// Contracts left unanswered count as rejected by the system.
	for _, loc := range append([]string(nil), p.UacApprovedLocations...) {
		d.excludeWithReason(p, loc, "contract not signed before delivery", domain.DeclineSystem, now)
		d.History.Append(p, domain.SystemActor, domain.EvtContractSystemDeclined, loc, nil)
	}
	for _, loc := range mergeUnique(p.OpenDizChecks, p.DizApprovedLocations, p.OpenDizConditionChecks) {
		d.excludeWithReason(p, loc, "no vote before delivery", domain.DeclineSystem, now)
		d.History.Append(p, domain.SystemActor, domain.EvtLocationAutoExcluded, loc, nil)
	}
	p.OpenDizChecks = nil
	p.DizApprovedLocations = nil
	p.OpenDizConditionChecks = nil
	p.UacApprovedLocations = nil
	p.NumberOfSignedLocations = len(p.SignedLocations)
	d.Tasks.RemoveByKind(p, domain.TaskContractingComplete)
}

func (d *Dispatcher) enterRejected(_ context.Context, p *domain.Proposal, _ domain.Actor, _ []string) {
	now := d.now()
	for _, loc := range mergeUnique(p.OpenDizChecks, p.DizApprovedLocations, p.OpenDizConditionChecks, p.UacApprovedLocations) {
		d.excludeWithReason(p, loc, "proposal rejected", domain.DeclineSystem, now)
	}
	p.OpenDizChecks = nil
	p.DizApprovedLocations = nil
	p.OpenDizConditionChecks = nil
	p.UacApprovedLocations = nil
	d.runner().Cancel(p.ID, DeferredFeasibility)
	d.runner().Cancel(p.ID, DeferredContractPDF)
}

func (d *Dispatcher) runner() schedule.DeferredRunner {
	if d.Runner != nil {
		return d.Runner
	}
	return schedule.SyncRunner{}
}

func (d *Dispatcher) excludeWithReason(p *domain.Proposal, location, reason string, declineType domain.DeclineType, now time.Time) {
	p.ClearLocationFromFlow(location)
	p.RequestedButExcludedLocations = append(p.RequestedButExcludedLocations, location)
	p.DeclineReasons = append(p.DeclineReasons, domain.DeclineReason{
		Location:  location,
		Reason:    reason,
		Type:      declineType,
		CreatedAt: now,
	})
}

func mergeUnique(lists ...[]string) []string {
	seen := map[string]bool{}
	var out []string
	for _, list := range lists {
		for _, v := range list {
			if !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	return out
}

func subtract(list, minus []string) []string {
	drop := map[string]bool{}
	for _, v := range minus {
		drop[v] = true
	}
	var out []string
	for _, v := range list {
		if !drop[v] {
			out = append(out, v)
		}
	}
	return out
}
