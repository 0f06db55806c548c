// Package tasks maintains the set of outstanding obligations attached to a
// proposal. Singleton kinds have at most one open instance proposal-wide;
// multi-instance kinds (comments, per-condition approval requests) are
// unbounded.
package tasks

import (
	"time"

	"github.com/google/uuid"

	"github.com/medizininformatik-initiative/fdpg-api-sub000/internal/domain"
)

type Tracker struct {
	Now func() time.Time
}

func (t Tracker) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

// Add opens a task of the kind and returns its id. For a singleton kind that
// is already open it is a no-op returning the empty string.
func (t Tracker) Add(p *domain.Proposal, kind domain.TaskKind) string {
	return t.AddDetailed(p, domain.Task{Kind: kind})
}

// AddDetailed opens a task with location/related-id/message attached.
func (t Tracker) AddDetailed(p *domain.Proposal, task domain.Task) string {
	if task.Kind.IsSingleton() && p.OpenTaskByKind(task.Kind) != nil {
		resync(p)
		return ""
	}
	task.ID = uuid.New().String()
	task.CreatedAt = t.now().UTC()
	p.OpenTasks = append(p.OpenTasks, task)
	resync(p)
	return task.ID
}

// Remove deletes the task with the given id. Removing an id that is already
// gone is a silent success.
func (t Tracker) Remove(p *domain.Proposal, id string) {
	out := p.OpenTasks[:0]
	for _, task := range p.OpenTasks {
		if task.ID != id {
			out = append(out, task)
		}
	}
	p.OpenTasks = out
	resync(p)
}

// RemoveByKind deletes every open task of the kind. Used for singleton kinds
// and for dropping a whole phase's obligations on a status change.
func (t Tracker) RemoveByKind(p *domain.Proposal, kinds ...domain.TaskKind) {
	drop := map[domain.TaskKind]bool{}
	for _, k := range kinds {
		drop[k] = true
	}
	out := p.OpenTasks[:0]
	for _, task := range p.OpenTasks {
		if !drop[task.Kind] {
			out = append(out, task)
		}
	}
	p.OpenTasks = out
	resync(p)
}

// resync repairs the stored counter from the array length. The counter is
// kept for persistence shape; it is never trusted incrementally.
func resync(p *domain.Proposal) {
	p.OpenTasksCount = len(p.OpenTasks)
}
