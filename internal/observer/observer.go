// Package observer turns a store's changes into mirror updates, either from
// pushed events or from fixed-interval full snapshots. Both transports feed
// the same Sink, so nothing downstream knows which one is running.
package observer

import (
	"context"
	"time"

	"github.com/golang/glog"
	"github.com/pliu/socialsync/internal/config"
	"github.com/pliu/socialsync/internal/mirror"
	"github.com/pliu/socialsync/internal/models"
	"github.com/pliu/socialsync/internal/store"
)

type State int

const (
	Idle State = iota
	Subscribed
	Polling
)

func (s State) String() string {
	switch s {
	case Subscribed:
		return "subscribed"
	case Polling:
		return "polling"
	default:
		return "idle"
	}
}

type Op string

const (
	// OpPut carries a single pushed record.
	OpPut Op = "put"
	// OpSnapshot carries the full contents of a collection.
	OpSnapshot Op = "snapshot"
)

type Event struct {
	Collection models.Collection
	Op         Op
	Record     models.Record
	Records    []models.Record
}

// ApplyTo hands the event to a sink: a put becomes an idempotent Apply and a
// snapshot becomes a wholesale Replace.
func (e Event) ApplyTo(sink mirror.Sink) error {
	if e.Op == OpSnapshot {
		return sink.Replace(e.Collection, e.Records)
	}
	return sink.Apply(e.Record)
}

type Observer interface {
	// Start returns once every watched collection has been seeded, or has
	// failed to and been left to retry.
	Start(ctx context.Context) error
	// Stop cancels every subscription and timer and waits for them to exit.
	Stop()
	State() State
}

type Options struct {
	// Collections to watch. Defaults to every known collection.
	Collections    []models.Collection
	PollInterval   time.Duration
	SubscribeRetry time.Duration
}

func (o Options) withDefaults() Options {
	if len(o.Collections) == 0 {
		o.Collections = models.Collections
	}
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.SubscribeRetry <= 0 {
		o.SubscribeRetry = 2 * time.Second
	}
	return o
}

// New picks the observer for mode. A push request against a store that
// cannot push falls back to polling.
func New(mode config.TransportMode, st store.Store, sink mirror.Sink, opts Options) Observer {
	if mode == config.TransportPush {
		if sub, ok := st.(store.Subscriber); ok {
			return NewPusher(st, sub, sink, opts)
		}
		glog.Warningf("observer: store %T cannot push, polling instead", st)
	}
	return NewPoller(st, sink, opts)
}
