package tasks_test

import (
	"testing"
	"time"

	"github.com/medizininformatik-initiative/fdpg-api-sub000/internal/domain"
	"github.com/medizininformatik-initiative/fdpg-api-sub000/internal/tasks"
)

func newProposal() *domain.Proposal {
	return domain.New("p-1", "TEST", "res-1", nil, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
}

func TestSingletonKindOpensOnce(t *testing.T) {
	tr := tasks.Tracker{}
	p := newProposal()
	id := tr.Add(p, domain.TaskUacApprovalComplete)
	if id == "" {
		t.Fatal("first add must return an id")
	}
	if again := tr.Add(p, domain.TaskUacApprovalComplete); again != "" {
		t.Fatal("second add of an open singleton must be a no-op")
	}
	if len(p.OpenTasks) != 1 || p.OpenTasksCount != 1 {
		t.Fatalf("tasks %d count %d", len(p.OpenTasks), p.OpenTasksCount)
	}
}

func TestMultiInstanceKindsAccumulate(t *testing.T) {
	tr := tasks.Tracker{}
	p := newProposal()
	a := tr.AddDetailed(p, domain.Task{Kind: domain.TaskComment, Message: "first"})
	b := tr.AddDetailed(p, domain.Task{Kind: domain.TaskComment, Message: "second"})
	if a == "" || b == "" || a == b {
		t.Fatalf("comment ids %q %q", a, b)
	}
	if len(p.OpenTasks) != 2 {
		t.Fatalf("want 2 open tasks, got %d", len(p.OpenTasks))
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	tr := tasks.Tracker{}
	p := newProposal()
	id := tr.Add(p, domain.TaskDataAmountReached)
	tr.Remove(p, id)
	tr.Remove(p, id)
	tr.Remove(p, "never-existed")
	if len(p.OpenTasks) != 0 || p.OpenTasksCount != 0 {
		t.Fatalf("tasks %d count %d", len(p.OpenTasks), p.OpenTasksCount)
	}
}

func TestRemoveByKindDropsAllInstances(t *testing.T) {
	tr := tasks.Tracker{}
	p := newProposal()
	tr.AddDetailed(p, domain.Task{Kind: domain.TaskComment, Message: "a"})
	tr.AddDetailed(p, domain.Task{Kind: domain.TaskComment, Message: "b"})
	tr.Add(p, domain.TaskUacApprovalComplete)
	tr.RemoveByKind(p, domain.TaskComment)
	if len(p.OpenTasks) != 1 || p.OpenTasks[0].Kind != domain.TaskUacApprovalComplete {
		t.Fatalf("unexpected remaining tasks %+v", p.OpenTasks)
	}
	if p.OpenTasksCount != 1 {
		t.Fatalf("count %d", p.OpenTasksCount)
	}
}

func TestCounterRepairedFromArray(t *testing.T) {
	tr := tasks.Tracker{}
	p := newProposal()
	tr.Add(p, domain.TaskDueDateReached)
	p.OpenTasksCount = 99
	tr.Add(p, domain.TaskDueDateReached) // singleton no-op still resyncs
	if p.OpenTasksCount != 1 {
		t.Fatalf("count %d, want 1", p.OpenTasksCount)
	}
}
