// Package mirror holds the in-process copy of every shared collection.
//
// The mirror is written only through Apply and Replace, which must be called
// from a single update path; readers on any goroutine take a Snapshot. There
// is no version vector: whichever value for an ID is applied last is kept,
// regardless of which writer produced it or when.
package mirror

import (
	"sync"
	"sync/atomic"

	"github.com/golang/glog"
	"github.com/pliu/socialsync/internal/errors"
	"github.com/pliu/socialsync/internal/models"
)

// Sink receives normalized changes. The mirror is a Sink; so is the
// client's serialized update path in front of it.
type Sink interface {
	Apply(records ...models.Record) error
	Replace(collection models.Collection, records []models.Record) error
}

// Source hands out read-only views of the current state.
type Source interface {
	Snapshot() *Snapshot
}

// Listener is told which collection changed after each batch.
type Listener func(models.Collection)

type Mirror struct {
	mu          sync.RWMutex
	collections map[models.Collection]map[string]models.Record
	version     uint64

	listenersMu  sync.Mutex
	listeners    map[int]Listener
	nextListener int

	notifying atomic.Bool
}

func New() *Mirror {
	return &Mirror{
		collections: make(map[models.Collection]map[string]models.Record),
		listeners:   make(map[int]Listener),
	}
}

// OnChange registers a listener and returns a func that removes it.
// Listeners run synchronously on the update path and must not write back.
func (m *Mirror) OnChange(fn Listener) (cancel func()) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()

	id := m.nextListener
	m.nextListener++
	m.listeners[id] = fn

	return func() {
		m.listenersMu.Lock()
		defer m.listenersMu.Unlock()
		delete(m.listeners, id)
	}
}

// Apply replaces each record by ID. Applying a value identical to the one
// held is a no-op and produces no notification.
func (m *Mirror) Apply(records ...models.Record) error {
	if m.notifying.Load() {
		return errors.New(errors.ErrReentrantApply, "apply called from a change listener")
	}
	for _, r := range records {
		if r == nil || r.RecordID() == "" {
			return errors.New(errors.ErrValidation, "cannot apply a record without an id")
		}
	}

	var touched []models.Collection
	seen := make(map[models.Collection]bool)

	m.mu.Lock()
	for _, r := range records {
		c := r.Collection()
		current, ok := m.collections[c][r.RecordID()]
		if ok && models.Equal(current, r) {
			continue
		}
		if !seen[c] {
			seen[c] = true
			touched = append(touched, c)
			// copy on write so outstanding snapshots stay frozen
			m.collections[c] = cloneCollection(m.collections[c], 1)
		}
		m.collections[c][r.RecordID()] = r
		m.version++
	}
	m.mu.Unlock()

	m.notify(touched)
	return nil
}

// Replace swaps a collection's contents for exactly records. Anything the
// mirror held that is missing from records is evicted.
func (m *Mirror) Replace(collection models.Collection, records []models.Record) error {
	if m.notifying.Load() {
		return errors.New(errors.ErrReentrantApply, "replace called from a change listener")
	}

	next := make(map[string]models.Record, len(records))
	for _, r := range records {
		if r == nil || r.RecordID() == "" {
			return errors.New(errors.ErrValidation, "cannot apply a record without an id")
		}
		if r.Collection() != collection {
			return errors.Newf(errors.ErrValidation, "%s record in %s snapshot", r.Collection(), collection)
		}
		next[r.RecordID()] = r
	}

	m.mu.Lock()
	changed := !sameContents(m.collections[collection], next)
	if changed {
		m.collections[collection] = next
		m.version++
	}
	m.mu.Unlock()

	if changed {
		glog.V(2).Infof("mirror: replaced %s with %d records", collection, len(next))
		m.notify([]models.Collection{collection})
	}
	return nil
}

func (m *Mirror) notify(collections []models.Collection) {
	if len(collections) == 0 {
		return
	}

	m.listenersMu.Lock()
	listeners := make([]Listener, 0, len(m.listeners))
	for i := 0; i < m.nextListener; i++ {
		if fn, ok := m.listeners[i]; ok {
			listeners = append(listeners, fn)
		}
	}
	m.listenersMu.Unlock()

	m.notifying.Store(true)
	defer m.notifying.Store(false)
	for _, c := range collections {
		for _, fn := range listeners {
			fn(c)
		}
	}
}

// Version increases by one for every effective change.
func (m *Mirror) Version() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version
}

func (m *Mirror) Get(collection models.Collection, id string) (models.Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.collections[collection][id]
	return r, ok
}

func (m *Mirror) Len(collection models.Collection) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.collections[collection])
}

// Snapshot returns the current state. It is never modified afterwards.
func (m *Mirror) Snapshot() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	collections := make(map[models.Collection]map[string]models.Record, len(m.collections))
	for c, records := range m.collections {
		collections[c] = records
	}
	return &Snapshot{collections: collections, version: m.version}
}

func cloneCollection(records map[string]models.Record, extra int) map[string]models.Record {
	out := make(map[string]models.Record, len(records)+extra)
	for id, r := range records {
		out[id] = r
	}
	return out
}

func sameContents(a, b map[string]models.Record) bool {
	if len(a) != len(b) {
		return false
	}
	for id, ra := range a {
		rb, ok := b[id]
		if !ok || !models.Equal(ra, rb) {
			return false
		}
	}
	return true
}
