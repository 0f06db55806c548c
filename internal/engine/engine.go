// Package engine wires the workflow components to persistence and the
// external collaborators, one transaction per operation.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/medizininformatik-initiative/fdpg-api-sub000/internal/config"
	"github.com/medizininformatik-initiative/fdpg-api-sub000/internal/deadline"
	"github.com/medizininformatik-initiative/fdpg-api-sub000/internal/domain"
	"github.com/medizininformatik-initiative/fdpg-api-sub000/internal/effects"
	"github.com/medizininformatik-initiative/fdpg-api-sub000/internal/events"
	"github.com/medizininformatik-initiative/fdpg-api-sub000/internal/history"
	"github.com/medizininformatik-initiative/fdpg-api-sub000/internal/schedule"
	"github.com/medizininformatik-initiative/fdpg-api-sub000/internal/store"
	"github.com/medizininformatik-initiative/fdpg-api-sub000/internal/tasks"
	"github.com/medizininformatik-initiative/fdpg-api-sub000/internal/transition"
	"github.com/medizininformatik-initiative/fdpg-api-sub000/internal/votes"
)

// Notifier receives one event per committed transition or vote for
// downstream messaging. Delivery is best effort: a failed notification is
// logged, never rolled back into the aggregate.
type Notifier interface {
	Notify(ctx context.Context, evt domain.HistoryEvent) error
}

type NoopNotifier struct{}

func (NoopNotifier) Notify(context.Context, domain.HistoryEvent) error { return nil }

type Engine struct {
	DB     *sql.DB
	Store  store.Store
	Events events.Writer
	Config *config.Config

	Scheduler schedule.Scheduler
	Runner    schedule.DeferredRunner
	Uploads   votes.UploadStore
	Docs      effects.DocumentGenerator
	Notifiers []Notifier

	Now func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:        db,
		Store:     store.Store{DB: db},
		Events:    events.Writer{DB: db},
		Config:    cfg,
		Scheduler: schedule.NewMemoryScheduler(),
		Runner:    schedule.NewTimerRunner(),
		Now:       time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e Engine) deadlines() deadline.Engine {
	offsets := map[domain.DeadlineKind]int{}
	if e.Config != nil {
		offsets[domain.DeadlineFdpgCheck] = e.Config.Deadlines.DueDaysFdpgCheck
		offsets[domain.DeadlineLocationCheck] = e.Config.Deadlines.DueDaysLocationCheck
		offsets[domain.DeadlineLocationContracting] = e.Config.Deadlines.DueDaysLocationContracting
		offsets[domain.DeadlineExpectDataDelivery] = e.Config.Deadlines.DueDaysExpectDataDelivery
		offsets[domain.DeadlineDataCorrupt] = e.Config.Deadlines.DueDaysDataCorrupt
		offsets[domain.DeadlineFinishedProject] = e.Config.Deadlines.DueDaysFinishedProject
	}
	return deadline.Engine{OffsetDays: offsets, Now: e.Now}
}

func (e Engine) tracker() tasks.Tracker {
	return tasks.Tracker{Now: e.Now}
}

func (e Engine) recorder() history.Recorder {
	return history.Recorder{Now: e.Now}
}

func (e Engine) voteEngine() votes.Engine {
	threshold := 0
	if e.Config != nil {
		threshold = e.Config.Votes.DataAmountThreshold
	}
	return votes.Engine{
		Tasks:               e.tracker(),
		History:             e.recorder(),
		Deadlines:           e.deadlines(),
		Uploads:             e.Uploads,
		DataAmountThreshold: threshold,
		Now:                 e.Now,
	}
}

func (e Engine) dispatcher() *effects.Dispatcher {
	delay := effects.DefaultDeferDelay
	if e.Config != nil && e.Config.Documents.DeferSeconds > 0 {
		delay = time.Duration(e.Config.Documents.DeferSeconds) * time.Second
	}
	return &effects.Dispatcher{
		Deadlines:  e.deadlines(),
		Tasks:      e.tracker(),
		History:    e.recorder(),
		Scheduler:  e.Scheduler,
		Runner:     e.Runner,
		Docs:       e.Docs,
		DeferDelay: delay,
		Now:        e.Now,
	}
}

// CreateOptions are parameters for creating a proposal.
type CreateOptions struct {
	ID                    string
	ProjectAbbreviation   string
	OwnerID               string
	Locations             []string
	ProjectStartAt        *time.Time
	ProjectDurationMonths int
}

func (e Engine) CreateProposal(ctx context.Context, opts CreateOptions, actor domain.Actor) (*domain.Proposal, error) {
	if opts.ProjectAbbreviation == "" {
		return nil, errors.New("project abbreviation is required")
	}
	if opts.OwnerID == "" {
		opts.OwnerID = actor.ID
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	p := domain.New(id, opts.ProjectAbbreviation, opts.OwnerID, opts.Locations, e.now())
	p.ProjectStartAt = opts.ProjectStartAt
	p.ProjectDurationMonths = opts.ProjectDurationMonths
	e.recorder().Append(p, actor, domain.EvtProposalCreated, "", nil)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	if err := e.Store.InsertTx(ctx, tx, p); err != nil {
		return nil, err
	}
	if err := e.Events.Append(ctx, tx, string(domain.EvtProposalCreated), p.ID, "", actor.ID, events.EventPayload{"status": p.Status}); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	e.notify(ctx, p)
	return p, nil
}

func (e Engine) GetProposal(ctx context.Context, id string) (*domain.Proposal, error) {
	return e.Store.Get(ctx, id)
}

func (e Engine) ListProposals(ctx context.Context, status domain.Status) ([]store.ListItem, error) {
	return e.Store.List(ctx, status)
}

func (e Engine) LatestEvents(ctx context.Context, n int, proposalID, evtType string) ([]store.Event, error) {
	return e.Store.LatestEvents(ctx, n, proposalID, evtType)
}

// ValidateTransition is the feasibility pre-check: it reports whether the
// transition would be legal without committing anything.
func (e Engine) ValidateTransition(ctx context.Context, id string, target domain.Status, actor domain.Actor) error {
	p, err := e.Store.Get(ctx, id)
	if err != nil {
		return err
	}
	return transition.Validate(p, target, actor, false)
}

// SetStatus commits a global status change and runs its effects. The
// location-check to contracting hand-over cannot commit here; it goes through
// InitContracting with the selected location list.
func (e Engine) SetStatus(ctx context.Context, id string, target domain.Status, actor domain.Actor) (*domain.Proposal, error) {
	p, err := e.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status == target {
		// Same-status set: no effects, no history, no scheduler call.
		return p, nil
	}
	if err := e.ensureUnlocked(p); err != nil {
		return nil, err
	}
	if err := transition.Validate(p, target, actor, true); err != nil {
		return nil, err
	}
	return e.commitStatusChange(ctx, p, target, actor, nil)
}

// InitContracting performs the deferred second step of the location-check to
// contracting transition with the caller's selected locations.
func (e Engine) InitContracting(ctx context.Context, id string, actor domain.Actor, locationList []string) (*domain.Proposal, error) {
	p, err := e.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := e.ensureUnlocked(p); err != nil {
		return nil, err
	}
	if err := transition.Validate(p, domain.StatusContracting, actor, false); err != nil {
		return nil, err
	}
	return e.commitStatusChange(ctx, p, domain.StatusContracting, actor, locationList)
}

func (e Engine) commitStatusChange(ctx context.Context, p *domain.Proposal, target domain.Status, actor domain.Actor, locationList []string) (*domain.Proposal, error) {
	oldStatus := p.Status
	p.Status = target
	if err := e.dispatcher().Handle(ctx, p, oldStatus, actor, locationList); err != nil {
		return nil, err
	}
	e.recorder().StatusChange(p, actor, oldStatus)
	if err := e.save(ctx, p, string(domain.StatusEventType(target)), "", actor, events.EventPayload{
		"from": string(oldStatus),
		"to":   string(target),
	}); err != nil {
		return nil, err
	}
	e.notify(ctx, p)
	return p, nil
}

func (e Engine) CheckLocation(ctx context.Context, id string, actor domain.Actor, location string, accept bool, reason string) (*domain.Proposal, error) {
	return e.voteOp(ctx, id, "location.diz_check", location, actor, func(p *domain.Proposal, v votes.Engine) error {
		return v.CheckLocation(p, actor, location, accept, reason)
	})
}

func (e Engine) RecordInitialApproval(ctx context.Context, id string, actor domain.Actor, location string, accept bool, dataAmount int, reason string) (*domain.Proposal, error) {
	return e.voteOp(ctx, id, "location.vote", location, actor, func(p *domain.Proposal, v votes.Engine) error {
		return v.RecordInitialApproval(p, actor, location, accept, dataAmount, reason)
	})
}

func (e Engine) RecordConditionalApproval(ctx context.Context, id string, actor domain.Actor, location string, dataAmount int, reasoning, uploadID string) (*domain.Proposal, string, error) {
	var conditionID string
	p, err := e.voteOp(ctx, id, "location.condition", location, actor, func(p *domain.Proposal, v votes.Engine) error {
		var err error
		conditionID, err = v.RecordConditionalApproval(p, actor, location, dataAmount, reasoning, uploadID)
		return err
	})
	return p, conditionID, err
}

func (e Engine) ReviewCondition(ctx context.Context, id string, actor domain.Actor, conditionID string, accept bool) (*domain.Proposal, error) {
	return e.voteOp(ctx, id, "location.condition_review", "", actor, func(p *domain.Proposal, v votes.Engine) error {
		return v.ReviewCondition(p, actor, conditionID, accept)
	})
}

func (e Engine) RevertVote(ctx context.Context, id string, actor domain.Actor, location string) (*domain.Proposal, error) {
	return e.voteOp(ctx, id, "location.revert", location, actor, func(p *domain.Proposal, v votes.Engine) error {
		return v.Revert(ctx, p, actor, location)
	})
}

func (e Engine) SignContractForLocation(ctx context.Context, id string, actor domain.Actor, location string, accept bool, reason string) (*domain.Proposal, error) {
	return e.voteOp(ctx, id, "contract.location", location, actor, func(p *domain.Proposal, v votes.Engine) error {
		return v.SignContractForLocation(p, actor, location, accept, reason)
	})
}

// SignContractForResearcher records the researcher's contract decision; a
// rejection force-transitions the whole proposal to rejected.
func (e Engine) SignContractForResearcher(ctx context.Context, id string, actor domain.Actor, accept bool, reason string) (*domain.Proposal, error) {
	p, err := e.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := e.ensureUnlocked(p); err != nil {
		return nil, err
	}
	rejected, err := e.voteEngine().SignContractForResearcher(p, actor, accept, reason)
	if err != nil {
		return nil, err
	}
	if rejected {
		return e.commitStatusChange(ctx, p, domain.StatusRejected, actor, nil)
	}
	if err := e.save(ctx, p, "contract.researcher", "", actor, events.EventPayload{"accepted": accept}); err != nil {
		return nil, err
	}
	e.notify(ctx, p)
	return p, nil
}

// SetDeadline manually edits one deadline kind. Only kinds reachable from the
// current status may change, and the result must keep the phase order.
func (e Engine) SetDeadline(ctx context.Context, id string, actor domain.Actor, kind domain.DeadlineKind, date *time.Time) (*domain.Proposal, error) {
	p, err := e.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := e.ensureUnlocked(p); err != nil {
		return nil, err
	}
	if !deadline.ValidateEdit(p.Status, []domain.DeadlineKind{kind}) {
		return nil, domain.NewStateConflict(domain.CodeDeadlineEditForbidden,
			"deadline %s cannot be edited in status %s", kind, p.Status)
	}
	next := map[domain.DeadlineKind]*time.Time{}
	for k, v := range p.Deadlines {
		next[k] = v
	}
	next[kind] = date
	if err := deadline.ValidateOrder(next); err != nil {
		return nil, err
	}
	p.Deadlines = next
	if active, ok := deadline.KindForStatus(p.Status); ok {
		p.DueDateForStatus = p.Deadlines[active]
	}
	e.recorder().Append(p, actor, domain.EvtDeadlineChanged, "", map[string]any{"kind": string(kind)})
	if err := e.save(ctx, p, string(domain.EvtDeadlineChanged), "", actor, events.EventPayload{"kind": string(kind)}); err != nil {
		return nil, err
	}
	e.notify(ctx, p)
	return p, nil
}

// MarkDueDateReached is the scheduler callback raising the due-date task when
// the active deadline passes.
func (e Engine) MarkDueDateReached(ctx context.Context, id string) (*domain.Proposal, error) {
	p, err := e.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	e.tracker().Add(p, domain.TaskDueDateReached)
	e.recorder().Append(p, domain.SystemActor, domain.EvtDueDateReached, "", nil)
	if err := e.save(ctx, p, string(domain.EvtDueDateReached), "", domain.SystemActor, nil); err != nil {
		return nil, err
	}
	e.notify(ctx, p)
	return p, nil
}

func (e Engine) AddComment(ctx context.Context, id string, actor domain.Actor, message string) (*domain.Proposal, string, error) {
	p, err := e.Store.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if err := e.ensureUnlocked(p); err != nil {
		return nil, "", err
	}
	taskID := e.tracker().AddDetailed(p, domain.Task{Kind: domain.TaskComment, Message: message})
	e.recorder().Append(p, actor, domain.EvtCommentAdded, "", map[string]any{"task_id": taskID})
	if err := e.save(ctx, p, string(domain.EvtCommentAdded), "", actor, events.EventPayload{"task_id": taskID}); err != nil {
		return nil, "", err
	}
	return p, taskID, nil
}

// ResolveComment closes a comment task. Resolving an already-gone task is a
// silent success.
func (e Engine) ResolveComment(ctx context.Context, id string, actor domain.Actor, taskID string) (*domain.Proposal, error) {
	p, err := e.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := e.ensureUnlocked(p); err != nil {
		return nil, err
	}
	e.tracker().Remove(p, taskID)
	e.recorder().Append(p, actor, domain.EvtCommentResolved, "", map[string]any{"task_id": taskID})
	if err := e.save(ctx, p, string(domain.EvtCommentResolved), "", actor, events.EventPayload{"task_id": taskID}); err != nil {
		return nil, err
	}
	return p, nil
}

func (e Engine) MarkChecklistItem(ctx context.Context, id string, actor domain.Actor, itemID string, done bool) (*domain.Proposal, error) {
	p, err := e.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := e.ensureUnlocked(p); err != nil {
		return nil, err
	}
	if p.FdpgChecklist == nil {
		return nil, domain.NewNotFound("checklist", id)
	}
	found := false
	for i := range p.FdpgChecklist.Items {
		item := &p.FdpgChecklist.Items[i]
		if item.ID != itemID {
			continue
		}
		found = true
		item.IsDone = done
		if done {
			now := e.now()
			item.DoneAt = &now
		} else {
			item.DoneAt = nil
		}
	}
	if !found {
		return nil, domain.NewNotFound("checklist item", itemID)
	}
	e.recorder().Append(p, actor, domain.EvtChecklistItemDone, "", map[string]any{"item": itemID, "done": done})
	if err := e.save(ctx, p, string(domain.EvtChecklistItemDone), "", actor, events.EventPayload{"item": itemID}); err != nil {
		return nil, err
	}
	return p, nil
}

func (e Engine) SetLocked(ctx context.Context, id string, actor domain.Actor, locked bool) (*domain.Proposal, error) {
	p, err := e.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.IsLocked == locked {
		return p, nil
	}
	p.IsLocked = locked
	evt := domain.EvtProposalUnlocked
	if locked {
		evt = domain.EvtProposalLocked
	}
	e.recorder().Append(p, actor, evt, "", nil)
	if err := e.save(ctx, p, string(evt), "", actor, nil); err != nil {
		return nil, err
	}
	return p, nil
}

// voteOp runs one location-vote operation against a loaded aggregate and
// persists the result.
func (e Engine) voteOp(ctx context.Context, id, evtType, location string, actor domain.Actor, fn func(*domain.Proposal, votes.Engine) error) (*domain.Proposal, error) {
	p, err := e.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := e.ensureUnlocked(p); err != nil {
		return nil, err
	}
	if err := fn(p, e.voteEngine()); err != nil {
		return nil, err
	}
	if err := e.save(ctx, p, evtType, location, actor, nil); err != nil {
		return nil, err
	}
	e.notify(ctx, p)
	return p, nil
}

func (e Engine) ensureUnlocked(p *domain.Proposal) error {
	if p.IsLocked {
		return domain.NewStateConflict(domain.CodeProposalLocked, "proposal %s is locked", p.ID)
	}
	return nil
}

// save persists the aggregate and one audit row in a single transaction. The
// open-task counter is repaired from the array length on every write.
func (e Engine) save(ctx context.Context, p *domain.Proposal, evtType, location string, actor domain.Actor, payload events.EventPayload) error {
	p.OpenTasksCount = len(p.OpenTasks)
	p.UpdatedAt = e.now()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Store.UpdateTx(ctx, tx, p); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, evtType, p.ID, location, actor.ID, payload); err != nil {
		return err
	}
	return tx.Commit()
}

// notify fans the newest history event out to every notifier. Failures are
// collected and logged; the committed mutation stands.
func (e Engine) notify(ctx context.Context, p *domain.Proposal) {
	if len(e.Notifiers) == 0 || len(p.History) == 0 {
		return
	}
	evt := p.History[len(p.History)-1]
	var errs []error
	for _, n := range e.Notifiers {
		if err := n.Notify(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		log.Printf("proposal %s: notify %s: %v", p.ID, evt.Type, err)
	}
}
