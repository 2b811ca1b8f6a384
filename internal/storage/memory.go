package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/NeveIsa/LEAP2/pkg/apperr"
)

// MemoryStore keeps experiment state in process memory. Used by tests and
// by ephemeral experiments that do not need durability.
type MemoryStore struct {
	mu         sync.RWMutex
	experiment string
	students   map[string]*Student
	entries    []*Entry
	nextID     int64
}

// NewMemoryStore creates an empty in-memory store for one experiment.
func NewMemoryStore(experiment string) *MemoryStore {
	return &MemoryStore{
		experiment: experiment,
		students:   make(map[string]*Student),
		nextID:     1,
	}
}

// AddStudent implements Store.
func (m *MemoryStore) AddStudent(_ context.Context, s *Student) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.students[s.StudentID]; ok {
		return apperr.Conflict("Student '%s' already exists", s.StudentID)
	}
	clone := *s
	m.students[s.StudentID] = &clone
	return nil
}

// ListStudents implements Store.
func (m *MemoryStore) ListStudents(_ context.Context) ([]*Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Student, 0, len(m.students))
	for _, s := range m.students {
		clone := *s
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out, nil
}

// DeleteStudent implements Store.
func (m *MemoryStore) DeleteStudent(_ context.Context, studentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.students[studentID]; !ok {
		return apperr.NotFound("Student '%s' not found", studentID)
	}
	delete(m.students, studentID)
	kept := m.entries[:0]
	for _, e := range m.entries {
		if e.StudentID != studentID {
			kept = append(kept, e)
		}
	}
	m.entries = kept
	return nil
}

// IsRegistered implements Store.
func (m *MemoryStore) IsRegistered(_ context.Context, studentID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.students[studentID]
	return ok, nil
}

// CountStudents implements Store.
func (m *MemoryStore) CountStudents(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.students)), nil
}

// Append implements Store.
func (m *MemoryStore) Append(_ context.Context, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = m.nextID
	e.Experiment = m.experiment
	m.nextID++
	clone := *e
	m.entries = append(m.entries, &clone)
	return nil
}

// Query implements Store. Entries are held in append (id) order.
func (m *MemoryStore) Query(_ context.Context, f Filter) ([]*Entry, error) {
	f.normalize()
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Entry
	if f.Order == OrderLatest {
		for i := len(m.entries) - 1; i >= 0 && len(out) < f.Limit; i-- {
			e := m.entries[i]
			if f.AfterID > 0 && e.ID >= f.AfterID {
				continue
			}
			if f.matches(e) {
				clone := *e
				out = append(out, &clone)
			}
		}
	} else {
		for _, e := range m.entries {
			if len(out) == f.Limit {
				break
			}
			if f.AfterID > 0 && e.ID <= f.AfterID {
				continue
			}
			if f.matches(e) {
				clone := *e
				out = append(out, &clone)
			}
		}
	}
	return out, nil
}

// Options implements Store.
func (m *MemoryStore) Options(_ context.Context) (*FilterOptions, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	students := make(map[string]struct{})
	trials := make(map[string]struct{})
	for _, e := range m.entries {
		students[e.StudentID] = struct{}{}
		if e.Trial != nil {
			trials[*e.Trial] = struct{}{}
		}
	}

	opts := &FilterOptions{
		Students: sortedKeys(students),
		Trials:   sortedKeys(trials),
		LogCount: int64(len(m.entries)),
	}
	return opts, nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	return nil
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var _ Store = (*MemoryStore)(nil)
