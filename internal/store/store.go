// Package store persists the proposal aggregate. The aggregate travels as a
// JSON document; a few columns are lifted out for listing and filtering.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/medizininformatik-initiative/fdpg-api-sub000/internal/domain"
)

type Store struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func (s Store) InsertTx(ctx context.Context, tx *sql.Tx, p *domain.Proposal) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal proposal: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO proposals(id,project_abbreviation,status,is_locked,doc,created_at,updated_at) VALUES (?,?,?,?,?,?,?)`,
		p.ID, p.ProjectAbbreviation, string(p.Status), boolInt(p.IsLocked), string(doc),
		p.CreatedAt.UTC().Format(time.RFC3339), p.UpdatedAt.UTC().Format(time.RFC3339))
	return err
}

func (s Store) UpdateTx(ctx context.Context, tx *sql.Tx, p *domain.Proposal) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal proposal: %w", err)
	}
	res, err := tx.ExecContext(ctx, `UPDATE proposals SET project_abbreviation=?,status=?,is_locked=?,doc=?,updated_at=? WHERE id=?`,
		p.ProjectAbbreviation, string(p.Status), boolInt(p.IsLocked), string(doc),
		p.UpdatedAt.UTC().Format(time.RFC3339), p.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s Store) Get(ctx context.Context, id string) (*domain.Proposal, error) {
	var doc string
	err := s.DB.QueryRowContext(ctx, `SELECT doc FROM proposals WHERE id=?`, id).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var p domain.Proposal
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		return nil, fmt.Errorf("unmarshal proposal %s: %w", id, err)
	}
	if p.Deadlines == nil {
		p.Deadlines = map[domain.DeadlineKind]*time.Time{}
	}
	return &p, nil
}

// ListItem is the projection used for listings; the full document stays in
// the doc column.
type ListItem struct {
	ID                  string        `json:"id"`
	ProjectAbbreviation string        `json:"project_abbreviation"`
	Status              domain.Status `json:"status"`
	IsLocked            bool          `json:"is_locked"`
	CreatedAt           string        `json:"created_at"`
	UpdatedAt           string        `json:"updated_at"`
}

func (s Store) List(ctx context.Context, status domain.Status) ([]ListItem, error) {
	query := `SELECT id,project_abbreviation,status,is_locked,created_at,updated_at FROM proposals`
	var args []any
	if status != "" {
		query += ` WHERE status=?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC`
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ListItem
	for rows.Next() {
		var it ListItem
		var locked int
		if err := rows.Scan(&it.ID, &it.ProjectAbbreviation, &it.Status, &locked, &it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, err
		}
		it.IsLocked = locked != 0
		out = append(out, it)
	}
	return out, rows.Err()
}

// Event is one durable audit row.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	ProposalID string `json:"proposal_id,omitempty"`
	Location   string `json:"location,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// LatestEvents returns up to n most recent audit rows for a proposal, oldest
// first.
func (s Store) LatestEvents(ctx context.Context, n int, proposalID, evtType string) ([]Event, error) {
	query := `SELECT id,ts,type,COALESCE(proposal_id,''),COALESCE(location,''),actor_id,payload_json FROM events WHERE 1=1`
	var args []any
	if proposalID != "" {
		query += ` AND proposal_id=?`
		args = append(args, proposalID)
	}
	if evtType != "" {
		query += ` AND type=?`
		args = append(args, evtType)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, n)
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.ProposalID, &e.Location, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
