package realtime

import (
	"context"
	"sync"
)

// Store is a per-session mirror: table name to an ordered list of rows
// unique by id, plus the identity of the session that owns it.
type Store struct {
	mu       sync.RWMutex
	identity Identity
	tables   map[string][]Row

	persist Persister
	key     string
}

// NewStore creates an empty store. persist may be nil, in which case the
// identity lives only as long as the store.
func NewStore(persist Persister, key string) *Store {
	return &Store{
		tables:  make(map[string][]Row),
		persist: persist,
		key:     key,
	}
}

func (s *Store) Identity() Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

// SetIdentity replaces the identity fields and persists them.
func (s *Store) SetIdentity(ctx context.Context, id Identity) error {
	s.mu.Lock()
	s.identity = id
	s.mu.Unlock()

	if s.persist == nil {
		return nil
	}
	return s.persist.Save(ctx, s.key, id)
}

// SetTable replaces the whole collection for a table. Rows without an id are
// skipped; duplicate ids keep the first position and the last value.
func (s *Store) SetTable(name string, rows []Row) {
	out := make([]Row, 0, len(rows))
	index := make(map[string]int, len(rows))
	for _, row := range rows {
		id := row.ID()
		if id == "" {
			continue
		}
		if i, ok := index[id]; ok {
			out[i] = row.Clone()
			continue
		}
		index[id] = len(out)
		out = append(out, row.Clone())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[name] = out
}

// UpsertRow merges row into the existing row with the same id, or appends it.
func (s *Store) UpsertRow(name string, row Row) {
	id := row.ID()
	if id == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.tables[name]
	for i, existing := range rows {
		if existing.ID() != id {
			continue
		}
		merged := existing.Clone()
		for k, v := range row {
			merged[k] = v
		}
		rows[i] = merged
		return
	}
	s.tables[name] = append(rows, row.Clone())
}

// RemoveRow deletes the row with id and reports whether it was present.
// Absent ids are a no-op.
func (s *Store) RemoveRow(name, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.tables[name]
	for i, existing := range rows {
		if existing.ID() == id {
			s.tables[name] = append(rows[:i:i], rows[i+1:]...)
			return true
		}
	}
	return false
}

// Table returns a copy of a table's rows.
func (s *Store) Table(name string) []Row {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneRows(s.tables[name])
}

// Tables returns a copy of every non-empty table.
func (s *Store) Tables() map[string][]Row {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]Row, len(s.tables))
	for name, rows := range s.tables {
		if len(rows) > 0 {
			out[name] = cloneRows(rows)
		}
	}
	return out
}

func cloneRows(rows []Row) []Row {
	out := make([]Row, len(rows))
	for i, row := range rows {
		out[i] = row.Clone()
	}
	return out
}

// ClearAll resets identity and every table and forgets the persisted identity.
func (s *Store) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	s.identity = Identity{}
	s.tables = make(map[string][]Row)
	s.mu.Unlock()

	if s.persist == nil {
		return nil
	}
	return s.persist.Delete(ctx, s.key)
}

// Rehydrate restores the persisted identity, if any, and empties every table
// so rows are always re-derived from a live hydration.
func (s *Store) Rehydrate(ctx context.Context) error {
	var (
		id    Identity
		found bool
		err   error
	)
	if s.persist != nil {
		id, found, err = s.persist.Load(ctx, s.key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables = make(map[string][]Row)
	if found {
		s.identity = id
	}
	return err
}
