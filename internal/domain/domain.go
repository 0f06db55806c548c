package domain

import "time"

// Status is the single top-level lifecycle stage of a proposal.
type Status string

const (
	StatusDraft              Status = "draft"
	StatusRework             Status = "rework"
	StatusFdpgCheck          Status = "fdpg_check"
	StatusLocationCheck      Status = "location_check"
	StatusContracting        Status = "contracting"
	StatusExpectDataDelivery Status = "expect_data_delivery"
	StatusDataResearch       Status = "data_research"
	StatusDataCorrupt        Status = "data_corrupt"
	StatusFinishedProject    Status = "finished_project"
	StatusReadyToArchive     Status = "ready_to_archive"
	StatusArchived           Status = "archived"
	StatusRejected           Status = "rejected"
)

// AllStatuses lists every lifecycle stage; used by table totality checks.
var AllStatuses = []Status{
	StatusDraft, StatusRework, StatusFdpgCheck, StatusLocationCheck,
	StatusContracting, StatusExpectDataDelivery, StatusDataResearch,
	StatusDataCorrupt, StatusFinishedProject, StatusReadyToArchive,
	StatusArchived, StatusRejected,
}

type Role string

const (
	RoleResearcher Role = "researcher"
	RoleFdpgMember Role = "fdpg_member"
	RoleDizMember  Role = "diz_member"
	RoleUacMember  Role = "uac_member"
	RoleSystem     Role = "system"
)

// Actor is the acting principal for an operation. Authentication happens
// outside this module; the core only sees identity, role and home location.
type Actor struct {
	ID       string `json:"id"`
	Role     Role   `json:"role"`
	Location string `json:"location,omitempty"`
}

// SystemActor stamps mutations performed by the workflow itself
// (auto-declines, scheduler callbacks).
var SystemActor = Actor{ID: "system", Role: RoleSystem}

// LocationState is the derived per-location sub-state. It is never stored;
// it follows from the six flow arrays and the persistent vote records.
type LocationState string

const (
	LocationNotRequested                LocationState = "not_requested"
	LocationIsDizCheck                  LocationState = "is_diz_check"
	LocationDizApproved                 LocationState = "diz_approved"
	LocationDizConditionCheck           LocationState = "diz_condition_check"
	LocationUacApproved                 LocationState = "uac_approved"
	LocationConditionalApprovalAccepted LocationState = "conditional_approval_accepted"
	LocationSignedContract              LocationState = "signed_contract"
	LocationSignedContractingDone       LocationState = "signed_contract_and_contracting_done"
	LocationExcluded                    LocationState = "excluded"
)

type DeadlineKind string

const (
	DeadlineFdpgCheck           DeadlineKind = "due_days_fdpg_check"
	DeadlineLocationCheck       DeadlineKind = "due_days_location_check"
	DeadlineLocationContracting DeadlineKind = "due_days_location_contracting"
	DeadlineExpectDataDelivery  DeadlineKind = "due_days_expect_data_delivery"
	DeadlineDataCorrupt         DeadlineKind = "due_days_data_corrupt"
	DeadlineFinishedProject     DeadlineKind = "due_days_finished_project"
)

// AllDeadlineKinds is ordered by lifecycle phase, earliest first.
var AllDeadlineKinds = []DeadlineKind{
	DeadlineFdpgCheck,
	DeadlineLocationCheck,
	DeadlineLocationContracting,
	DeadlineExpectDataDelivery,
	DeadlineDataCorrupt,
	DeadlineFinishedProject,
}

type TaskKind string

const (
	TaskUacApprovalComplete TaskKind = "uac_approval_complete"
	TaskDataAmountReached   TaskKind = "data_amount_reached"
	TaskContractingComplete TaskKind = "contracting_complete"
	TaskDueDateReached      TaskKind = "due_date_reached"
	TaskComment             TaskKind = "comment"
	TaskConditionApproval   TaskKind = "condition_approval"
)

// IsSingleton reports whether at most one open instance of the kind may exist
// per proposal.
func (k TaskKind) IsSingleton() bool {
	switch k {
	case TaskUacApprovalComplete, TaskDataAmountReached, TaskContractingComplete, TaskDueDateReached:
		return true
	}
	return false
}

// Task is an outstanding obligation surfaced to reviewers.
type Task struct {
	ID        string    `json:"id"`
	Kind      TaskKind  `json:"kind"`
	Location  string    `json:"location,omitempty"`
	RelatedID string    `json:"related_id,omitempty"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type ReminderKind string

const (
	ReminderFdpgCheck1     ReminderKind = "fdpg_check_reminder_1"
	ReminderFdpgCheck2     ReminderKind = "fdpg_check_reminder_2"
	ReminderLocationCheck1 ReminderKind = "location_check_reminder_1"
	ReminderLocationCheck2 ReminderKind = "location_check_reminder_2"
	ReminderLocationCheck3 ReminderKind = "location_check_reminder_3"
	ReminderContracting1   ReminderKind = "contracting_reminder_1"
	ReminderContracting2   ReminderKind = "contracting_reminder_2"
	ReminderDataDelivery   ReminderKind = "data_delivery_reminder"
	ReminderResearchPeriod ReminderKind = "research_period_reminder"
	ReminderDataCorrupt    ReminderKind = "data_corrupt_reminder"
)

type DeclineType string

const (
	DeclineInitial     DeclineType = "initial"
	DeclineConditional DeclineType = "conditional"
	DeclineContract    DeclineType = "contract"
	DeclineResearcher  DeclineType = "researcher"
	DeclineSystem      DeclineType = "system"
)

// DeclineReason is an immutable record of why a location or the researcher
// declined at a given stage.
type DeclineReason struct {
	Location  string      `json:"location,omitempty"`
	Reason    string      `json:"reason,omitempty"`
	Type      DeclineType `json:"type"`
	CreatedAt time.Time   `json:"created_at"`
}

// UacApproval is a site's unconditional approval including the data volume it
// promises to contribute.
type UacApproval struct {
	Location   string     `json:"location"`
	DataAmount int        `json:"data_amount"`
	SignedAt   *time.Time `json:"signed_at,omitempty"`
}

// ConditionalApproval is a site's approval granted subject to a condition.
// It stays a draft until a reviewer decides; ReviewedAt marks it terminal.
type ConditionalApproval struct {
	ID         string     `json:"id"`
	Location   string     `json:"location"`
	IsAccepted bool       `json:"is_accepted"`
	ReviewedAt *time.Time `json:"reviewed_at,omitempty"`
	ReviewedBy string     `json:"reviewed_by,omitempty"`
	DataAmount int        `json:"data_amount"`
	Reasoning  string     `json:"reasoning,omitempty"`
	UploadID   string     `json:"upload_id,omitempty"`
	TaskID     string     `json:"task_id,omitempty"`
	SignedAt   *time.Time `json:"signed_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Version counts submissions: Major bumps on the first submission to the
// FDPG check, Minor on every re-submission after rework.
type Version struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
}

type ChecklistItem struct {
	ID     string     `json:"id"`
	Title  string     `json:"title"`
	IsDone bool       `json:"is_done"`
	DoneAt *time.Time `json:"done_at,omitempty"`
}

type Checklist struct {
	Items []ChecklistItem `json:"items"`
}

// DefaultChecklist is the checklist lazily attached when a proposal enters
// the FDPG check.
func DefaultChecklist() *Checklist {
	return &Checklist{Items: []ChecklistItem{
		{ID: "formal", Title: "Formal check"},
		{ID: "legal", Title: "Legal check"},
		{ID: "scientific", Title: "Scientific check"},
		{ID: "data-privacy", Title: "Data privacy check"},
	}}
}

// Proposal is the aggregate root. Every field is mutated exclusively through
// the workflow components, never by direct external assignment.
type Proposal struct {
	ID                  string `json:"id"`
	ProjectAbbreviation string `json:"project_abbreviation"`
	OwnerID             string `json:"owner_id"`
	Status              Status `json:"status"`
	IsLocked            bool   `json:"is_locked"`

	Version       Version    `json:"version"`
	FdpgChecklist *Checklist `json:"fdpg_checklist,omitempty"`
	SubmittedAt   *time.Time `json:"submitted_at,omitempty"`

	RequestedLocations []string `json:"requested_locations"`

	// The six flow arrays. A location appears in at most one of them.
	OpenDizChecks                 []string `json:"open_diz_checks"`
	DizApprovedLocations          []string `json:"diz_approved_locations"`
	OpenDizConditionChecks        []string `json:"open_diz_condition_checks"`
	UacApprovedLocations          []string `json:"uac_approved_locations"`
	RequestedButExcludedLocations []string `json:"requested_but_excluded_locations"`
	SignedLocations               []string `json:"signed_locations"`

	UacApprovals         []UacApproval         `json:"uac_approvals"`
	ConditionalApprovals []ConditionalApproval `json:"conditional_approvals"`
	DeclineReasons       []DeclineReason       `json:"decline_reasons"`

	NumberOfRequestedLocations int `json:"number_of_requested_locations"`
	NumberOfApprovedLocations  int `json:"number_of_approved_locations"`
	NumberOfSignedLocations    int `json:"number_of_signed_locations"`
	TotalPromisedDataAmount    int `json:"total_promised_data_amount"`
	TotalContractedDataAmount  int `json:"total_contracted_data_amount"`

	OpenTasks      []Task `json:"open_tasks"`
	OpenTasksCount int    `json:"open_tasks_count"`

	History []HistoryEvent `json:"history"`

	Deadlines        map[DeadlineKind]*time.Time `json:"deadlines"`
	DueDateForStatus *time.Time                  `json:"due_date_for_status,omitempty"`

	ProjectStartAt        *time.Time `json:"project_start_at,omitempty"`
	ProjectDurationMonths int        `json:"project_duration_months,omitempty"`

	ContractAcceptedByResearcher bool `json:"contract_accepted_by_researcher"`
	ContractRejectedByResearcher bool `json:"contract_rejected_by_researcher"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New returns a proposal in the initial draft status with empty flow arrays.
func New(id, abbreviation, ownerID string, requested []string, now time.Time) *Proposal {
	return &Proposal{
		ID:                  id,
		ProjectAbbreviation: abbreviation,
		OwnerID:             ownerID,
		Status:              StatusDraft,
		RequestedLocations:  append([]string(nil), requested...),
		Deadlines:           map[DeadlineKind]*time.Time{},
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}
