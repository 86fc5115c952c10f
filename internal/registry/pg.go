package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/teesched/internal/db"
	"github.com/example/teesched/internal/secrets"
	"github.com/example/teesched/internal/task"
)

const taskColumns = `id,credentials,course,players,holes,time_start,time_end,target_date,opening_instant,status,last_error,created_at,updated_at`

// PGStore persists tasks in Postgres with credentials sealed at rest.
type PGStore struct {
	db     *db.DB
	sealer *secrets.Sealer
}

func NewPGStore(d *db.DB, sealer *secrets.Sealer) *PGStore {
	return &PGStore{db: d, sealer: sealer}
}

func (s *PGStore) Create(ctx context.Context, t task.Task) (task.Task, error) {
	if err := t.Validate(); err != nil {
		return task.Task{}, err
	}
	blob, err := s.sealer.Seal(t.Credentials)
	if err != nil {
		return task.Task{}, err
	}
	if t.ID == "" {
		t.ID = task.NewID()
	}
	t.Status = task.StatusPending

	err = s.db.QueryRow(ctx, `
INSERT INTO tasks(id,credentials,course,players,holes,time_start,time_end,target_date,opening_instant,status)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,'pending')
RETURNING created_at, updated_at`,
		t.ID, blob, t.Params.Course, t.Params.Players, t.Params.Holes,
		t.Params.TimeStart, t.Params.TimeEnd, nullable(t.TargetDate), t.OpeningInstant,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return task.Task{}, db.WrapNotFound(err)
	}
	t.Credentials = task.Credentials{}
	return t, nil
}

func (s *PGStore) List(ctx context.Context) ([]task.Task, error) {
	rows, err := s.db.Query(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY opening_instant ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []task.Task
	for rows.Next() {
		t, _, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PGStore) Get(ctx context.Context, id string) (task.Task, error) {
	t, _, err := s.fetch(ctx, id)
	return t, err
}

func (s *PGStore) SecureConfig(ctx context.Context, id string) (task.Task, error) {
	t, blob, err := s.fetch(ctx, id)
	if err != nil {
		return task.Task{}, err
	}
	creds, err := s.sealer.Open(blob)
	if err != nil {
		return task.Task{}, fmt.Errorf("task %s: %w", id, err)
	}
	t.Credentials = creds
	return t, nil
}

func (s *PGStore) UpdateStatus(ctx context.Context, id string, status task.Status, lastError string) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", task.ErrBadTransition, status)
	}
	cur, _, err := s.fetch(ctx, id)
	if err != nil {
		return err
	}
	if !task.CanTransition(cur.Status, status) {
		return fmt.Errorf("%w: %s -> %s", task.ErrBadTransition, cur.Status, status)
	}
	if status != task.StatusFailed {
		lastError = ""
	}
	// Guard on the status we read so a concurrent writer cannot slip an
	// illegal transition through.
	rows, err := s.db.Exec(ctx,
		`UPDATE tasks SET status=$2, last_error=$3, updated_at=now() WHERE id=$1 AND status=$4`,
		id, status, nullable(lastError), cur.Status)
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: concurrent update on %s", task.ErrBadTransition, id)
	}
	return nil
}

func (s *PGStore) Delete(ctx context.Context, id string) error {
	cur, _, err := s.fetch(ctx, id)
	if err != nil {
		return err
	}
	if cur.Status == task.StatusRunning {
		return ErrRunning
	}
	rows, err := s.db.Exec(ctx, `DELETE FROM tasks WHERE id=$1 AND status<>'running'`, id)
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrRunning
	}
	return nil
}

func (s *PGStore) fetch(ctx context.Context, id string) (task.Task, string, error) {
	row := s.db.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=$1`, id)
	t, blob, err := scanTask(row)
	if err != nil {
		if errors.Is(db.WrapNotFound(err), db.ErrNotFound) {
			return task.Task{}, "", ErrNotFound
		}
		return task.Task{}, "", err
	}
	return t, blob, nil
}

func scanTask(row db.Row) (task.Task, string, error) {
	var (
		t         task.Task
		blob      string
		target    *string
		lastError *string
	)
	err := row.Scan(&t.ID, &blob, &t.Params.Course, &t.Params.Players, &t.Params.Holes,
		&t.Params.TimeStart, &t.Params.TimeEnd, &target, &t.OpeningInstant,
		&t.Status, &lastError, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return task.Task{}, "", err
	}
	if target != nil {
		t.TargetDate = *target
	}
	if lastError != nil {
		t.LastError = *lastError
	}
	return t, blob, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
