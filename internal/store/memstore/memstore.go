// Package memstore is an in-process store shared by any number of client
// instances. Records are kept in wire form so no two readers ever share a
// value, and committed changes are pushed to subscribers in commit order.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/golang/glog"
	"github.com/pliu/socialsync/internal/errors"
	"github.com/pliu/socialsync/internal/models"
	"github.com/pliu/socialsync/internal/store"
)

const subscriptionBuffer = 256

type Store struct {
	mu        sync.Mutex
	records   map[models.Collection]map[string][]byte
	subs      map[models.Collection]map[*subscription]struct{}
	available bool
	puts      int
}

func New() *Store {
	return &Store{
		records:   make(map[models.Collection]map[string][]byte),
		subs:      make(map[models.Collection]map[*subscription]struct{}),
		available: true,
	}
}

// SetAvailable simulates losing or regaining the transport. While
// unavailable every call fails with STORE_UNAVAILABLE and open
// subscriptions are dropped.
func (s *Store) SetAvailable(available bool) {
	s.mu.Lock()
	s.available = available
	var dropped []*subscription
	if !available {
		for _, subs := range s.subs {
			for sub := range subs {
				dropped = append(dropped, sub)
			}
		}
	}
	s.mu.Unlock()

	for _, sub := range dropped {
		sub.end(errors.New(errors.ErrStoreUnavailable, "subscription dropped"))
	}
}

// Puts returns how many writes were committed.
func (s *Store) Puts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}

// Delete removes a record without notifying subscribers, the way a live
// record can silently vanish from a store that omits it from List.
func (s *Store) Delete(collection models.Collection, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records[collection], id)
}

func (s *Store) Put(ctx context.Context, record models.Record) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(errors.ErrStoreUnavailable, "put", err)
	}
	env, err := models.Encode(record)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.available {
		return errors.New(errors.ErrStoreUnavailable, "store unreachable")
	}

	coll, ok := s.records[env.Collection]
	if !ok {
		coll = make(map[string][]byte)
		s.records[env.Collection] = coll
	}
	coll[env.ID] = env.Record
	s.puts++

	// Enqueue under the lock so every subscriber sees commit order.
	for sub := range s.subs[env.Collection] {
		rec, err := models.DecodeRecord(env.Collection, env.Record)
		if err != nil {
			continue
		}
		select {
		case sub.queue <- rec:
		default:
			glog.Warningf("memstore: dropping slow %s subscriber", env.Collection)
			delete(s.subs[env.Collection], sub)
			go sub.end(errors.New(errors.ErrStoreUnavailable, "subscriber fell behind"))
		}
	}
	return nil
}

func (s *Store) List(ctx context.Context, collection models.Collection) ([]models.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrStoreUnavailable, "list", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.available {
		return nil, errors.New(errors.ErrStoreUnavailable, "store unreachable")
	}

	ids := make([]string, 0, len(s.records[collection]))
	for id := range s.records[collection] {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	records := make([]models.Record, 0, len(ids))
	for _, id := range ids {
		r, err := models.DecodeRecord(collection, s.records[collection][id])
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}

func (s *Store) Subscribe(ctx context.Context, collection models.Collection, handler func(models.Record)) (store.Subscription, error) {
	s.mu.Lock()
	if !s.available {
		s.mu.Unlock()
		return nil, errors.New(errors.ErrStoreUnavailable, "store unreachable")
	}
	sub := &subscription{
		store:      s,
		collection: collection,
		handler:    handler,
		queue:      make(chan models.Record, subscriptionBuffer),
		done:       make(chan struct{}),
	}
	if s.subs[collection] == nil {
		s.subs[collection] = make(map[*subscription]struct{})
	}
	s.subs[collection][sub] = struct{}{}
	s.mu.Unlock()

	go sub.pump(ctx)
	return sub, nil
}

// Subscribers returns the number of open subscriptions on a collection.
func (s *Store) Subscribers(collection models.Collection) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs[collection])
}

type subscription struct {
	store      *Store
	collection models.Collection
	handler    func(models.Record)
	queue      chan models.Record
	done       chan struct{}

	once sync.Once
	mu   sync.Mutex
	err  error
}

func (sub *subscription) pump(ctx context.Context) {
	for {
		select {
		case r := <-sub.queue:
			sub.handler(r)
		case <-ctx.Done():
			sub.end(nil)
			return
		case <-sub.done:
			return
		}
	}
}

func (sub *subscription) end(err error) {
	sub.once.Do(func() {
		sub.store.mu.Lock()
		delete(sub.store.subs[sub.collection], sub)
		sub.store.mu.Unlock()

		sub.mu.Lock()
		sub.err = err
		sub.mu.Unlock()
		close(sub.done)
	})
}

func (sub *subscription) Close() { sub.end(nil) }

func (sub *subscription) Done() <-chan struct{} { return sub.done }

func (sub *subscription) Err() error {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	return sub.err
}
