package domain

import "time"

type HistoryEventType string

const (
	EvtStatusDraft              HistoryEventType = "status.draft"
	EvtStatusRework             HistoryEventType = "status.rework"
	EvtStatusFdpgCheck          HistoryEventType = "status.fdpg_check"
	EvtStatusLocationCheck      HistoryEventType = "status.location_check"
	EvtStatusContracting        HistoryEventType = "status.contracting"
	EvtStatusExpectDataDelivery HistoryEventType = "status.expect_data_delivery"
	EvtStatusDataResearch       HistoryEventType = "status.data_research"
	EvtStatusDataCorrupt        HistoryEventType = "status.data_corrupt"
	EvtStatusFinishedProject    HistoryEventType = "status.finished_project"
	EvtStatusReadyToArchive     HistoryEventType = "status.ready_to_archive"
	EvtStatusArchived           HistoryEventType = "status.archived"
	EvtStatusRejected           HistoryEventType = "status.rejected"

	EvtDizCheckPassed        HistoryEventType = "location.diz_check_passed"
	EvtDizCheckFailed        HistoryEventType = "location.diz_check_failed"
	EvtLocationApproved      HistoryEventType = "location.uac_approved"
	EvtLocationDeclined      HistoryEventType = "location.declined"
	EvtLocationAutoExcluded  HistoryEventType = "location.auto_excluded"
	EvtConditionCreated      HistoryEventType = "location.condition_created"
	EvtConditionAccepted     HistoryEventType = "location.condition_accepted"
	EvtConditionDeclined     HistoryEventType = "location.condition_declined"
	EvtConditionAutoDeclined HistoryEventType = "location.condition_auto_declined"
	EvtVoteReverted          HistoryEventType = "location.vote_reverted"

	EvtContractSigned         HistoryEventType = "contract.location_signed"
	EvtContractDeclined       HistoryEventType = "contract.location_declined"
	EvtContractSystemDeclined HistoryEventType = "contract.system_declined"
	EvtResearcherAccepted     HistoryEventType = "contract.researcher_accepted"
	EvtResearcherRejected     HistoryEventType = "contract.researcher_rejected"

	EvtProposalCreated   HistoryEventType = "proposal.created"
	EvtDeadlineChanged   HistoryEventType = "deadline.changed"
	EvtDueDateReached    HistoryEventType = "deadline.due_date_reached"
	EvtProposalLocked    HistoryEventType = "proposal.locked"
	EvtProposalUnlocked  HistoryEventType = "proposal.unlocked"
	EvtCommentAdded      HistoryEventType = "comment.added"
	EvtCommentResolved   HistoryEventType = "comment.resolved"
	EvtChecklistItemDone HistoryEventType = "checklist.item_done"
)

var statusEventTypes = map[Status]HistoryEventType{
	StatusDraft:              EvtStatusDraft,
	StatusRework:             EvtStatusRework,
	StatusFdpgCheck:          EvtStatusFdpgCheck,
	StatusLocationCheck:      EvtStatusLocationCheck,
	StatusContracting:        EvtStatusContracting,
	StatusExpectDataDelivery: EvtStatusExpectDataDelivery,
	StatusDataResearch:       EvtStatusDataResearch,
	StatusDataCorrupt:        EvtStatusDataCorrupt,
	StatusFinishedProject:    EvtStatusFinishedProject,
	StatusReadyToArchive:     EvtStatusReadyToArchive,
	StatusArchived:           EvtStatusArchived,
	StatusRejected:           EvtStatusRejected,
}

// StatusEventType derives the history event type purely from the new status.
func StatusEventType(s Status) HistoryEventType {
	return statusEventTypes[s]
}

// HistoryEvent is one immutable entry in the proposal's audit trail.
type HistoryEvent struct {
	ID              string           `json:"id"`
	Type            HistoryEventType `json:"type"`
	ProposalID      string           `json:"proposal_id"`
	ProposalVersion Version          `json:"proposal_version"`
	ActorID         string           `json:"actor_id"`
	ActorRole       Role             `json:"actor_role"`
	Location        string           `json:"location,omitempty"`
	Data            map[string]any   `json:"data,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}
