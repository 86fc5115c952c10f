package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/example/teesched/internal/secrets"
	"github.com/example/teesched/internal/task"
)

// MemStore keeps tasks in process memory. It backs --memory mode (no
// Postgres required, contents lost on restart) and the package tests.
// Credentials are sealed exactly as in the Postgres store.
type MemStore struct {
	sealer *secrets.Sealer

	mu    sync.Mutex
	tasks map[string]memTask
}

type memTask struct {
	t    task.Task
	blob string
}

func NewMemStore(sealer *secrets.Sealer) *MemStore {
	return &MemStore{sealer: sealer, tasks: make(map[string]memTask)}
}

func (s *MemStore) Create(_ context.Context, t task.Task) (task.Task, error) {
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
	t.Credentials = task.Credentials{}
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.tasks[t.ID]; dup {
		return task.Task{}, fmt.Errorf("duplicate task id %s", t.ID)
	}
	s.tasks[t.ID] = memTask{t: t, blob: blob}
	return t, nil
}

func (s *MemStore) List(context.Context) ([]task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]task.Task, 0, len(s.tasks))
	for _, m := range s.tasks {
		out = append(out, m.t)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].OpeningInstant.Before(out[j].OpeningInstant)
	})
	return out, nil
}

func (s *MemStore) Get(_ context.Context, id string) (task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.tasks[id]
	if !ok {
		return task.Task{}, ErrNotFound
	}
	return m.t, nil
}

func (s *MemStore) SecureConfig(_ context.Context, id string) (task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.tasks[id]
	if !ok {
		return task.Task{}, ErrNotFound
	}
	creds, err := s.sealer.Open(m.blob)
	if err != nil {
		return task.Task{}, err
	}
	t := m.t
	t.Credentials = creds
	return t, nil
}

func (s *MemStore) UpdateStatus(_ context.Context, id string, status task.Status, lastError string) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", task.ErrBadTransition, status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.tasks[id]
	if !ok {
		return ErrNotFound
	}
	if !task.CanTransition(m.t.Status, status) {
		return fmt.Errorf("%w: %s -> %s", task.ErrBadTransition, m.t.Status, status)
	}
	m.t.Status = status
	if status == task.StatusFailed {
		m.t.LastError = lastError
	} else {
		m.t.LastError = ""
	}
	m.t.UpdatedAt = time.Now().UTC()
	s.tasks[id] = m
	return nil
}

func (s *MemStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.tasks[id]
	if !ok {
		return ErrNotFound
	}
	if m.t.Status == task.StatusRunning {
		return ErrRunning
	}
	delete(s.tasks, id)
	return nil
}
