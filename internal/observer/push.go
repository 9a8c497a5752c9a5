package observer

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/pliu/socialsync/internal/errors"
	"github.com/pliu/socialsync/internal/mirror"
	"github.com/pliu/socialsync/internal/models"
	"github.com/pliu/socialsync/internal/store"
)

// Pusher keeps one subscription open per watched collection. Each
// subscription is opened before the collection is seeded from List, so no
// commit after the subscription can be missed. A dropped subscription is
// reopened and reseeded every retry interval until Stop.
type Pusher struct {
	store       store.Store
	subscriber  store.Subscriber
	sink        mirror.Sink
	collections []models.Collection
	retry       time.Duration

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPusher(st store.Store, sub store.Subscriber, sink mirror.Sink, opts Options) *Pusher {
	opts = opts.withDefaults()
	return &Pusher{
		store:       st,
		subscriber:  sub,
		sink:        sink,
		collections: opts.Collections,
		retry:       opts.SubscribeRetry,
	}
}

// Start opens and seeds every subscription before returning. Collections
// that cannot be subscribed yet are retried in the background.
func (p *Pusher) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.state != Idle {
		p.mu.Unlock()
		return nil
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.state = Subscribed
	p.wg.Add(len(p.collections))
	p.mu.Unlock()

	glog.Infof("observer: subscribing to %d collections", len(p.collections))
	for _, c := range p.collections {
		sub, err := p.open(ctx, c)
		go p.watch(ctx, c, sub, err)
	}
	return nil
}

func (p *Pusher) Stop() {
	p.mu.Lock()
	if p.state == Idle {
		p.mu.Unlock()
		return
	}
	p.cancel()
	p.state = Idle
	p.mu.Unlock()

	p.wg.Wait()
	glog.Infof("observer: subscriptions closed")
}

func (p *Pusher) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Pusher) watch(ctx context.Context, c models.Collection, sub store.Subscription, err error) {
	defer p.wg.Done()

	for {
		if err == nil {
			err = p.wait(ctx, sub)
		}
		if ctx.Err() != nil {
			return
		}
		glog.Warningf("observer: %s subscription lost, retrying in %s: %v", c, p.retry, err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(p.retry):
		}
		sub, err = p.open(ctx, c)
	}
}

// open subscribes and then seeds the collection from List.
func (p *Pusher) open(ctx context.Context, c models.Collection) (store.Subscription, error) {
	sub, err := p.subscriber.Subscribe(ctx, c, func(r models.Record) {
		ev := Event{Collection: c, Op: OpPut, Record: r}
		if err := ev.ApplyTo(p.sink); err != nil {
			glog.Warningf("observer: applying pushed %s/%s: %v", c, r.RecordID(), err)
			return
		}
		glog.V(2).Infof("observer: applied pushed %s/%s", c, r.RecordID())
	})
	if err != nil {
		return nil, err
	}

	records, err := p.store.List(ctx, c)
	if err != nil {
		sub.Close()
		return nil, err
	}
	seed := Event{Collection: c, Op: OpSnapshot, Records: records}
	if err := seed.ApplyTo(p.sink); err != nil {
		glog.Warningf("observer: seeding %s: %v", c, err)
	}
	return sub, nil
}

// wait blocks until the subscription ends and closes it.
func (p *Pusher) wait(ctx context.Context, sub store.Subscription) error {
	defer sub.Close()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-sub.Done():
		if err := sub.Err(); err != nil {
			return err
		}
		return errors.New(errors.ErrStoreUnavailable, "subscription closed by store")
	}
}
