// Package votes implements the per-location sub-workflow: DIZ intake check,
// UAC approval or decline, conditional approval with reviewer decision,
// reversal, and contract signing.
package votes

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/medizininformatik-initiative/fdpg-api-sub000/internal/deadline"
	"github.com/medizininformatik-initiative/fdpg-api-sub000/internal/domain"
	"github.com/medizininformatik-initiative/fdpg-api-sub000/internal/history"
	"github.com/medizininformatik-initiative/fdpg-api-sub000/internal/tasks"
)

// UploadStore deletes condition attachments when a vote is reverted. Blob
// storage lives outside this module.
type UploadStore interface {
	Delete(ctx context.Context, proposalID, uploadID string, actor domain.Actor) error
}

type NoopUploadStore struct{}

func (NoopUploadStore) Delete(context.Context, string, string, domain.Actor) error { return nil }

type Engine struct {
	Tasks     tasks.Tracker
	History   history.Recorder
	Deadlines deadline.Engine
	Uploads   UploadStore

	// DataAmountThreshold raises the data-amount-reached task once the
	// promised total crosses it. Zero disables the task.
	DataAmountThreshold int

	Now func() time.Time
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e Engine) uploads() UploadStore {
	if e.Uploads != nil {
		return e.Uploads
	}
	return NoopUploadStore{}
}

// CheckLocation records the DIZ intake check for a location: pass moves it on
// to the UAC stage, fail excludes it with a decline reason.
func (e Engine) CheckLocation(p *domain.Proposal, actor domain.Actor, location string, accept bool, reason string) error {
	if !p.IsRequested(location) {
		return domain.NewNotFound("location", location)
	}
	if p.LocationStateOf(location) != domain.LocationIsDizCheck {
		return domain.NewStateConflict(domain.CodeVoteNotPossible,
			"location %s is not awaiting a DIZ check", location)
	}
	p.ClearLocationFromFlow(location)
	if accept {
		p.DizApprovedLocations = append(p.DizApprovedLocations, location)
		e.History.Append(p, actor, domain.EvtDizCheckPassed, location, nil)
	} else {
		e.exclude(p, location, reason, domain.DeclineInitial)
		e.History.Append(p, actor, domain.EvtDizCheckFailed, location, map[string]any{"reason": reason})
		e.maybeCompleteReview(p)
	}
	return nil
}

// RecordInitialApproval records a location's unconditional vote. Accept moves
// it to the approved array with its promised data amount; decline excludes it
// with a reason. Either way the location is first cleared from every flow
// array, so re-submitting a vote cannot duplicate it.
func (e Engine) RecordInitialApproval(p *domain.Proposal, actor domain.Actor, location string, accept bool, dataAmount int, reason string) error {
	if !p.IsRequested(location) {
		return domain.NewNotFound("location", location)
	}
	switch p.LocationStateOf(location) {
	case domain.LocationIsDizCheck, domain.LocationDizApproved:
	default:
		return domain.NewStateConflict(domain.CodeVoteNotPossible,
			"location %s already voted; revert first", location)
	}
	p.ClearLocationFromFlow(location)
	if accept {
		p.UacApprovedLocations = append(p.UacApprovedLocations, location)
		p.UacApprovals = append(p.UacApprovals, domain.UacApproval{Location: location, DataAmount: dataAmount})
		e.recomputePromised(p)
		e.History.Append(p, actor, domain.EvtLocationApproved, location, map[string]any{"data_amount": dataAmount})
	} else {
		e.exclude(p, location, reason, domain.DeclineInitial)
		e.History.Append(p, actor, domain.EvtLocationDeclined, location, map[string]any{"reason": reason})
	}
	e.maybeCompleteReview(p)
	return nil
}

// RecordConditionalApproval parks the location in the condition-check array
// and opens a draft conditional approval plus its review task.
func (e Engine) RecordConditionalApproval(p *domain.Proposal, actor domain.Actor, location string, dataAmount int, reasoning, uploadID string) (string, error) {
	if !p.IsRequested(location) {
		return "", domain.NewNotFound("location", location)
	}
	switch p.LocationStateOf(location) {
	case domain.LocationIsDizCheck, domain.LocationDizApproved:
	default:
		return "", domain.NewStateConflict(domain.CodeVoteNotPossible,
			"location %s cannot raise a condition in its current state", location)
	}
	p.ClearLocationFromFlow(location)
	p.OpenDizConditionChecks = append(p.OpenDizConditionChecks, location)
	ca := domain.ConditionalApproval{
		ID:         uuid.New().String(),
		Location:   location,
		DataAmount: dataAmount,
		Reasoning:  reasoning,
		UploadID:   uploadID,
		CreatedAt:  e.now(),
	}
	ca.TaskID = e.Tasks.AddDetailed(p, domain.Task{
		Kind:      domain.TaskConditionApproval,
		Location:  location,
		RelatedID: ca.ID,
	})
	p.ConditionalApprovals = append(p.ConditionalApprovals, ca)
	e.History.Append(p, actor, domain.EvtConditionCreated, location, map[string]any{"condition_id": ca.ID})
	return ca.ID, nil
}

// ReviewCondition finalizes a pending conditional approval. A condition is
// terminal once ReviewedAt is set; reviewing it twice is a state conflict and
// leaves the first decision untouched.
func (e Engine) ReviewCondition(p *domain.Proposal, actor domain.Actor, conditionID string, accept bool) error {
	ca := p.ConditionalApprovalByID(conditionID)
	if ca == nil {
		return domain.NewNotFound("conditional approval", conditionID)
	}
	if ca.ReviewedAt != nil {
		return domain.NewStateConflict(domain.CodeConditionAlreadyDecided,
			"conditional approval %s already reviewed", conditionID)
	}
	now := e.now()
	ca.ReviewedAt = &now
	ca.ReviewedBy = actor.ID
	ca.IsAccepted = accept
	e.Tasks.Remove(p, ca.TaskID)
	p.ClearLocationFromFlow(ca.Location)
	if accept {
		p.UacApprovedLocations = append(p.UacApprovedLocations, ca.Location)
		e.recomputePromised(p)
		e.History.Append(p, actor, domain.EvtConditionAccepted, ca.Location, map[string]any{"condition_id": conditionID})
	} else {
		e.exclude(p, ca.Location, ca.Reasoning, domain.DeclineConditional)
		e.History.Append(p, actor, domain.EvtConditionDeclined, ca.Location, map[string]any{"condition_id": conditionID})
	}
	e.maybeCompleteReview(p)
	return nil
}

// Revert undoes a location's vote and resets it to the DIZ check stage. Legal
// only from approved-but-not-signed, condition-pending, or excluded-by-decline.
func (e Engine) Revert(ctx context.Context, p *domain.Proposal, actor domain.Actor, location string) error {
	if !p.IsRequested(location) {
		return domain.NewNotFound("location", location)
	}
	if !e.revertable(p, location) {
		return domain.NewStateConflict(domain.CodeRevertNotPossible,
			"location %s cannot be reverted from state %s", location, p.LocationStateOf(location))
	}

	// Drop the unconditional approval record and its counted amount.
	approvals := p.UacApprovals[:0]
	for _, a := range p.UacApprovals {
		if a.Location != location {
			approvals = append(approvals, a)
		}
	}
	p.UacApprovals = approvals

	// Drop conditional approvals: cancel the review task and delete any
	// attached upload before removing the record.
	conditionals := p.ConditionalApprovals[:0]
	for _, ca := range p.ConditionalApprovals {
		if ca.Location != location {
			conditionals = append(conditionals, ca)
			continue
		}
		e.Tasks.Remove(p, ca.TaskID)
		if ca.UploadID != "" {
			if err := e.uploads().Delete(ctx, p.ID, ca.UploadID, actor); err != nil {
				return err
			}
		}
	}
	p.ConditionalApprovals = conditionals

	// Decline reasons from the initial or conditional stage go away too.
	reasons := p.DeclineReasons[:0]
	for _, r := range p.DeclineReasons {
		if r.Location == location && (r.Type == domain.DeclineInitial || r.Type == domain.DeclineConditional) {
			continue
		}
		reasons = append(reasons, r)
	}
	p.DeclineReasons = reasons

	// Subtract the reverted amount before re-checking the threshold.
	e.recomputePromised(p)
	e.Tasks.RemoveByKind(p, domain.TaskUacApprovalComplete)

	p.ClearLocationFromFlow(location)
	p.OpenDizChecks = append(p.OpenDizChecks, location)
	e.History.Append(p, actor, domain.EvtVoteReverted, location, nil)
	return nil
}

func (e Engine) revertable(p *domain.Proposal, location string) bool {
	switch p.LocationStateOf(location) {
	case domain.LocationUacApproved, domain.LocationConditionalApprovalAccepted:
		// Approved but not yet signed; signed locations are in another array.
		return true
	case domain.LocationDizConditionCheck:
		return true
	case domain.LocationExcluded:
		// Only when excluded by a site decline, not by the system.
		for _, r := range p.DeclineReasonsByLocation(location) {
			if r.Type == domain.DeclineInitial || r.Type == domain.DeclineConditional {
				return true
			}
		}
	}
	return false
}

// SignContractForLocation records a site's contract decision during the
// contracting phase.
func (e Engine) SignContractForLocation(p *domain.Proposal, actor domain.Actor, location string, accept bool, reason string) error {
	if p.Status != domain.StatusContracting {
		return domain.NewStateConflict(domain.CodeVoteNotPossible,
			"contracts can only be signed while contracting")
	}
	if !p.IsRequested(location) {
		return domain.NewNotFound("location", location)
	}
	state := p.LocationStateOf(location)
	if state == domain.LocationSignedContract || state == domain.LocationSignedContractingDone {
		return domain.NewStateConflict(domain.CodeContractAlreadyDecided,
			"location %s already signed", location)
	}
	if state != domain.LocationUacApproved && state != domain.LocationConditionalApprovalAccepted {
		return domain.NewStateConflict(domain.CodeVoteNotPossible,
			"location %s has no contract to sign", location)
	}
	now := e.now()
	if accept {
		p.ClearLocationFromFlow(location)
		p.SignedLocations = append(p.SignedLocations, location)
		amount := 0
		if a := p.UacApprovalByLocation(location); a != nil {
			a.SignedAt = &now
			amount = a.DataAmount
		} else if ca := p.ConditionalApprovalByLocation(location); ca != nil {
			ca.SignedAt = &now
			amount = ca.DataAmount
		}
		p.TotalContractedDataAmount += amount
		p.NumberOfSignedLocations = len(p.SignedLocations)
		e.History.Append(p, actor, domain.EvtContractSigned, location, map[string]any{"data_amount": amount})
	} else {
		e.exclude(p, location, reason, domain.DeclineContract)
		e.History.Append(p, actor, domain.EvtContractDeclined, location, map[string]any{"reason": reason})
	}
	if len(p.UacApprovedLocations) == 0 {
		e.Tasks.Add(p, domain.TaskContractingComplete)
	}
	return nil
}

// SignContractForResearcher records the researcher's own contract decision.
// A rejection returns true; the caller must then force the proposal into the
// rejected status.
func (e Engine) SignContractForResearcher(p *domain.Proposal, actor domain.Actor, accept bool, reason string) (bool, error) {
	if p.Status != domain.StatusContracting {
		return false, domain.NewStateConflict(domain.CodeVoteNotPossible,
			"contracts can only be signed while contracting")
	}
	if p.ContractAcceptedByResearcher || p.ContractRejectedByResearcher {
		return false, domain.NewStateConflict(domain.CodeContractAlreadyDecided,
			"researcher contract decision already recorded")
	}
	if accept {
		p.ContractAcceptedByResearcher = true
		// The contracting clock starts with the researcher's signature,
		// not with the status entry.
		e.Deadlines.ArmContracting(p)
		e.History.Append(p, actor, domain.EvtResearcherAccepted, "", nil)
		return false, nil
	}
	p.ContractRejectedByResearcher = true
	p.DeclineReasons = append(p.DeclineReasons, domain.DeclineReason{
		Reason:    reason,
		Type:      domain.DeclineResearcher,
		CreatedAt: e.now(),
	})
	e.History.Append(p, actor, domain.EvtResearcherRejected, "", map[string]any{"reason": reason})
	return true, nil
}

func (e Engine) exclude(p *domain.Proposal, location, reason string, declineType domain.DeclineType) {
	p.ClearLocationFromFlow(location)
	p.RequestedButExcludedLocations = append(p.RequestedButExcludedLocations, location)
	p.DeclineReasons = append(p.DeclineReasons, domain.DeclineReason{
		Location:  location,
		Reason:    reason,
		Type:      declineType,
		CreatedAt: e.now(),
	})
}

// recomputePromised rebuilds the promised total from the records and keeps
// the data-amount-reached task in sync with the threshold.
func (e Engine) recomputePromised(p *domain.Proposal) {
	p.TotalPromisedDataAmount = p.PromisedDataAmount()
	if e.DataAmountThreshold <= 0 {
		return
	}
	if p.TotalPromisedDataAmount >= e.DataAmountThreshold {
		e.Tasks.Add(p, domain.TaskDataAmountReached)
	} else {
		e.Tasks.RemoveByKind(p, domain.TaskDataAmountReached)
	}
}

// maybeCompleteReview raises the review-complete task once every requested
// location has answered (approved or excluded).
func (e Engine) maybeCompleteReview(p *domain.Proposal) {
	answered := len(p.UacApprovedLocations) + len(p.RequestedButExcludedLocations)
	if p.NumberOfRequestedLocations > 0 && answered == p.NumberOfRequestedLocations {
		e.Tasks.Add(p, domain.TaskUacApprovalComplete)
	}
}
