// Package memory is an in-process Store used for tests and single-node
// deployments without a database.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"blackout/internal/core"
	"blackout/internal/storage"
)

type recordKey struct {
	kind core.Kind
	id   int64
}

// Store keeps records in maps. Writers of one owner are serialized by a
// per-owner mutex; staged writes are applied under the store lock at commit,
// so a View never observes half of a scope.
type Store struct {
	mu      sync.RWMutex
	records map[recordKey]core.Record
	nextID  map[core.Kind]int64

	locksMu sync.Mutex
	locks   map[core.OwnerID]*sync.Mutex

	users *userStore
}

func New() *Store {
	return &Store{
		records: make(map[recordKey]core.Record),
		nextID:  make(map[core.Kind]int64),
		locks:   make(map[core.OwnerID]*sync.Mutex),
		users:   newUserStore(),
	}
}

func (s *Store) ownerLock(owner core.OwnerID) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	if _, ok := s.locks[owner]; !ok {
		s.locks[owner] = &sync.Mutex{}
	}
	return s.locks[owner]
}

func (s *Store) WithinOwner(ctx context.Context, owner core.OwnerID, fn func(tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	lock := s.ownerLock(owner)
	lock.Lock()
	defer lock.Unlock()

	tx := &memTx{store: s, owner: owner, staged: make(map[recordKey]*core.Record)}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, rec := range tx.staged {
		if rec == nil {
			delete(s.records, key)
			continue
		}
		s.records[key] = *rec
	}
	return nil
}

func (s *Store) View(ctx context.Context, owner core.OwnerID, fn func(tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	return fn(&memTx{store: s, owner: owner, readOnly: true, locked: true})
}

func (s *Store) Users() storage.UserStore { return s.users }

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) Close() error { return nil }

type memTx struct {
	store    *Store
	owner    core.OwnerID
	readOnly bool
	// locked is set when the caller already holds the store read lock.
	locked bool
	// staged holds pending writes; a nil entry is a pending delete.
	staged map[recordKey]*core.Record
}

func (t *memTx) rlock() func() {
	if t.locked {
		return func() {}
	}
	t.store.mu.RLock()
	return t.store.mu.RUnlock
}

// lookup returns the record as this scope sees it.
func (t *memTx) lookup(key recordKey) (core.Record, bool) {
	if rec, ok := t.staged[key]; ok {
		if rec == nil {
			return core.Record{}, false
		}
		return *rec, true
	}
	unlock := t.rlock()
	defer unlock()
	rec, ok := t.store.records[key]
	return rec, ok
}

func (t *memTx) Get(ctx context.Context, kind core.Kind, id int64) (core.Record, error) {
	if err := kind.Validate(); err != nil {
		return core.Record{}, err
	}
	rec, ok := t.lookup(recordKey{kind: kind, id: id})
	if !ok || rec.Owner != t.owner {
		return core.Record{}, fmt.Errorf("%s %d: %w", kind, id, core.ErrNotFound)
	}
	return rec, nil
}

func (t *memTx) visible(kind core.Kind) []core.Record {
	unlock := t.rlock()
	var out []core.Record
	for key, rec := range t.store.records {
		if key.kind != kind || rec.Owner != t.owner {
			continue
		}
		if _, overridden := t.staged[key]; overridden {
			continue
		}
		out = append(out, rec)
	}
	unlock()

	for key, rec := range t.staged {
		if key.kind == kind && rec != nil {
			out = append(out, *rec)
		}
	}
	return out
}

func (t *memTx) List(ctx context.Context, kind core.Kind) ([]core.Record, error) {
	if err := kind.Validate(); err != nil {
		return nil, err
	}
	records := t.visible(kind)
	sort.Slice(records, func(i, j int) bool {
		if !records[i].Date.Equal(records[j].Date.Time) {
			return records[i].Date.After(records[j].Date.Time)
		}
		return records[i].ID > records[j].ID
	})
	if records == nil {
		records = []core.Record{}
	}
	return records, nil
}

func (t *memTx) Insert(ctx context.Context, r core.Record) (core.Record, error) {
	if t.readOnly {
		return core.Record{}, storage.ErrReadOnly
	}
	r.Owner = t.owner
	if err := r.Validate(); err != nil {
		return core.Record{}, err
	}

	t.store.mu.Lock()
	t.store.nextID[r.Kind]++
	r.ID = t.store.nextID[r.Kind]
	t.store.mu.Unlock()

	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now
	t.staged[recordKey{kind: r.Kind, id: r.ID}] = &r
	return r, nil
}

func (t *memTx) Update(ctx context.Context, r core.Record) (core.Record, error) {
	if t.readOnly {
		return core.Record{}, storage.ErrReadOnly
	}
	r.Owner = t.owner
	if err := r.Validate(); err != nil {
		return core.Record{}, err
	}
	current, err := t.Get(ctx, r.Kind, r.ID)
	if err != nil {
		return core.Record{}, err
	}
	updated := current.WithFields(r.Fields())
	updated.UpdatedAt = time.Now().UTC()
	t.staged[recordKey{kind: r.Kind, id: r.ID}] = &updated
	return updated, nil
}

func (t *memTx) Delete(ctx context.Context, kind core.Kind, id int64) (bool, error) {
	if t.readOnly {
		return false, storage.ErrReadOnly
	}
	if _, err := t.Get(ctx, kind, id); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	t.staged[recordKey{kind: kind, id: id}] = nil
	return true, nil
}

func (t *memTx) Sum(ctx context.Context, kind core.Kind) (core.Money, error) {
	if err := kind.Validate(); err != nil {
		return core.Money{}, err
	}
	var total core.Money
	for _, rec := range t.visible(kind) {
		sum, err := total.CheckedAdd(rec.Value)
		if err != nil {
			return core.Money{}, err
		}
		total = sum
	}
	return total, nil
}

var _ storage.Store = (*Store)(nil)
