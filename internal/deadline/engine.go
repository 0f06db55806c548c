// Package deadline computes and validates the per-status due dates of a
// proposal: the full deadline map, the single active deadline, and the
// ordering constraints between deadline kinds.
package deadline

import (
	"time"

	"github.com/medizininformatik-initiative/fdpg-api-sub000/internal/domain"
)

// kindForStatus maps each status to at most one deadline kind. The
// contracting deadline is deliberately absent: it is only armed when the
// researcher signs, not on status entry.
var kindForStatus = map[domain.Status]domain.DeadlineKind{
	domain.StatusFdpgCheck:          domain.DeadlineFdpgCheck,
	domain.StatusLocationCheck:      domain.DeadlineLocationCheck,
	domain.StatusContracting:        domain.DeadlineLocationContracting,
	domain.StatusExpectDataDelivery: domain.DeadlineExpectDataDelivery,
	domain.StatusDataCorrupt:        domain.DeadlineDataCorrupt,
	domain.StatusDataResearch:       domain.DeadlineFinishedProject,
}

// predecessor defines the partial order between deadline kinds. A defined
// deadline must not precede its nearest defined predecessor.
var predecessor = map[domain.DeadlineKind]domain.DeadlineKind{
	domain.DeadlineLocationCheck:       domain.DeadlineFdpgCheck,
	domain.DeadlineLocationContracting: domain.DeadlineLocationCheck,
	domain.DeadlineExpectDataDelivery:  domain.DeadlineLocationContracting,
	domain.DeadlineDataCorrupt:         domain.DeadlineExpectDataDelivery,
	domain.DeadlineFinishedProject:     domain.DeadlineDataCorrupt,
}

// idleStatuses are the stages with no running clock; entering one nulls out
// every stored deadline.
var idleStatuses = map[domain.Status]bool{
	domain.StatusDraft:           true,
	domain.StatusRework:          true,
	domain.StatusRejected:        true,
	domain.StatusFinishedProject: true,
	domain.StatusReadyToArchive:  true,
	domain.StatusArchived:        true,
}

// phaseOf orders deadline kinds by lifecycle phase for permitted-edit checks.
var phaseOf = func() map[domain.DeadlineKind]int {
	m := map[domain.DeadlineKind]int{}
	for i, k := range domain.AllDeadlineKinds {
		m[k] = i
	}
	return m
}()

type Engine struct {
	// OffsetDays holds per-kind offsets from "now" (or from the project end
	// for the research-phase deadline when no project dates are set).
	OffsetDays map[domain.DeadlineKind]int
	Now        func() time.Time
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

// KindForStatus returns the deadline kind governing the status, if any.
func KindForStatus(s domain.Status) (domain.DeadlineKind, bool) {
	k, ok := kindForStatus[s]
	return k, ok
}

// SetForStatus recomputes the active deadline after a status change. It arms
// the status's deadline kind first-write-wins, except for the contracting
// deadline which is only armed explicitly via ArmContracting. Idle statuses
// null out every stored deadline.
func (e Engine) SetForStatus(p *domain.Proposal, status domain.Status) {
	if p.Deadlines == nil {
		p.Deadlines = map[domain.DeadlineKind]*time.Time{}
	}
	if idleStatuses[status] {
		for _, k := range domain.AllDeadlineKinds {
			p.Deadlines[k] = nil
		}
		p.DueDateForStatus = nil
		return
	}
	kind, ok := kindForStatus[status]
	if !ok {
		p.DueDateForStatus = nil
		return
	}
	if p.Deadlines[kind] == nil && kind != domain.DeadlineLocationContracting {
		due := e.computeDue(p, kind)
		p.Deadlines[kind] = &due
	}
	p.DueDateForStatus = p.Deadlines[kind]
}

// ArmContracting writes the contracting deadline. This is the one explicit
// re-arm: it runs when the researcher signs, overwriting any stored value.
func (e Engine) ArmContracting(p *domain.Proposal) {
	if p.Deadlines == nil {
		p.Deadlines = map[domain.DeadlineKind]*time.Time{}
	}
	due := e.now().AddDate(0, 0, e.OffsetDays[domain.DeadlineLocationContracting])
	p.Deadlines[domain.DeadlineLocationContracting] = &due
	if p.Status == domain.StatusContracting {
		p.DueDateForStatus = &due
	}
}

func (e Engine) computeDue(p *domain.Proposal, kind domain.DeadlineKind) time.Time {
	if kind == domain.DeadlineFinishedProject && p.ProjectStartAt != nil && p.ProjectDurationMonths > 0 {
		return p.ProjectStartAt.AddDate(0, p.ProjectDurationMonths, 0)
	}
	return e.now().AddDate(0, 0, e.OffsetDays[kind])
}

// ValidateOrder enforces the partial order: every defined deadline must be on
// or after its nearest defined predecessor.
func ValidateOrder(deadlines map[domain.DeadlineKind]*time.Time) error {
	var prev *time.Time
	for _, k := range domain.AllDeadlineKinds {
		d := deadlines[k]
		if d == nil {
			continue
		}
		if prev != nil && d.Before(*prev) {
			return domain.NewStateConflict(domain.CodeDeadlineOrderViolated,
				"deadline %s precedes an earlier-phase deadline", k)
		}
		prev = d
	}
	return nil
}

// ValidateEdit reports whether a manual edit of the given kinds is legal for
// the proposal's current status: only kinds at or after the current phase may
// be changed.
func ValidateEdit(status domain.Status, kinds []domain.DeadlineKind) bool {
	current, ok := kindForStatus[status]
	if !ok {
		return false
	}
	for _, k := range kinds {
		if phaseOf[k] < phaseOf[current] {
			return false
		}
	}
	return true
}

// PredecessorMap exposes the ordering table for static checks.
func PredecessorMap() map[domain.DeadlineKind]domain.DeadlineKind {
	out := map[domain.DeadlineKind]domain.DeadlineKind{}
	for k, v := range predecessor {
		out[k] = v
	}
	return out
}
