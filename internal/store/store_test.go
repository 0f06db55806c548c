package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/medizininformatik-initiative/fdpg-api-sub000/internal/db"
	"github.com/medizininformatik-initiative/fdpg-api-sub000/internal/domain"
	"github.com/medizininformatik-initiative/fdpg-api-sub000/internal/events"
	"github.com/medizininformatik-initiative/fdpg-api-sub000/internal/migrate"
	"github.com/medizininformatik-initiative/fdpg-api-sub000/internal/store"
)

func newStore(t *testing.T) (store.Store, events.Writer) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store.Store{DB: conn}, events.Writer{DB: conn}
}

func insert(t *testing.T, s store.Store, p *domain.Proposal) {
	t.Helper()
	ctx := context.Background()
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()
	if err := s.InsertTx(ctx, tx, p); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
}

func TestInsertGetUpdate(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := domain.New("p-1", "TEST", "res-1", []string{"loc-a"}, now)
	due := now.AddDate(0, 0, 14)
	p.Deadlines[domain.DeadlineFdpgCheck] = &due
	insert(t, s, p)

	got, err := s.Get(ctx, "p-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ProjectAbbreviation != "TEST" || len(got.RequestedLocations) != 1 {
		t.Fatalf("round trip %+v", got)
	}
	if d := got.Deadlines[domain.DeadlineFdpgCheck]; d == nil || !d.Equal(due) {
		t.Fatalf("deadline %v", d)
	}

	got.Status = domain.StatusFdpgCheck
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()
	if err := s.UpdateTx(ctx, tx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	reloaded, err := s.Get(ctx, "p-1")
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Status != domain.StatusFdpgCheck {
		t.Fatalf("status %s", reloaded.Status)
	}
}

func TestGetMissingIsNotFound(t *testing.T) {
	s, _ := newStore(t)
	_, err := s.Get(context.Background(), "absent")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestUpdateMissingIsNotFound(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	p := domain.New("ghost", "TEST", "res-1", nil, time.Now().UTC())
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()
	if err := s.UpdateTx(ctx, tx, p); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestLatestEventsOldestFirst(t *testing.T) {
	s, w := newStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := domain.New("p-1", "TEST", "res-1", nil, now)
	insert(t, s, p)

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()
	for _, typ := range []string{"proposal.created", "status.fdpg_check", "status.location_check"} {
		if err := w.Append(ctx, tx, typ, "p-1", "", "res-1", nil); err != nil {
			t.Fatalf("append %s: %v", typ, err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	got, err := s.LatestEvents(ctx, 2, "p-1", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Type != "status.fdpg_check" || got[1].Type != "status.location_check" {
		t.Fatalf("events %+v", got)
	}

	filtered, err := s.LatestEvents(ctx, 10, "p-1", "proposal.created")
	if err != nil {
		t.Fatal(err)
	}
	if len(filtered) != 1 {
		t.Fatalf("filtered %+v", filtered)
	}
}
