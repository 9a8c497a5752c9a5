package observer

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/pliu/socialsync/internal/mirror"
	"github.com/pliu/socialsync/internal/models"
	"github.com/pliu/socialsync/internal/store"
	"golang.org/x/sync/errgroup"
)

// Poller lists every watched collection each interval and replaces the
// mirror's copy wholesale. A collection whose fetch fails keeps its previous
// contents until a later cycle succeeds.
type Poller struct {
	store       store.Store
	sink        mirror.Sink
	collections []models.Collection
	interval    time.Duration

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPoller(st store.Store, sink mirror.Sink, opts Options) *Poller {
	opts = opts.withDefaults()
	return &Poller{
		store:       st,
		sink:        sink,
		collections: opts.Collections,
		interval:    opts.PollInterval,
	}
}

// Start runs the first cycle before returning, then keeps polling in the
// background.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.state != Idle {
		p.mu.Unlock()
		return nil
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.state = Polling
	p.wg.Add(1)
	p.mu.Unlock()

	glog.Infof("observer: polling %d collections every %s", len(p.collections), p.interval)
	p.PollOnce(ctx)
	go p.loop(ctx)
	return nil
}

func (p *Poller) Stop() {
	p.mu.Lock()
	if p.state == Idle {
		p.mu.Unlock()
		return
	}
	p.cancel()
	p.state = Idle
	p.mu.Unlock()

	p.wg.Wait()
	glog.Infof("observer: polling stopped")
}

func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Poller) loop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.PollOnce(ctx)
		}
	}
}

// PollOnce runs a single cycle: all collections are fetched concurrently,
// then each successful one is replaced in collection order. The first
// error encountered is returned after the cycle completes.
func (p *Poller) PollOnce(ctx context.Context) error {
	results := make([][]models.Record, len(p.collections))
	errs := make([]error, len(p.collections))

	var g errgroup.Group
	for i, c := range p.collections {
		g.Go(func() error {
			results[i], errs[i] = p.store.List(ctx, c)
			return nil
		})
	}
	g.Wait()

	var first error
	for i, c := range p.collections {
		if errs[i] != nil {
			if ctx.Err() == nil {
				glog.Warningf("observer: skipping %s this cycle: %v", c, errs[i])
			}
			if first == nil {
				first = errs[i]
			}
			continue
		}
		ev := Event{Collection: c, Op: OpSnapshot, Records: results[i]}
		if err := ev.ApplyTo(p.sink); err != nil {
			glog.Warningf("observer: applying %s snapshot: %v", c, err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}
