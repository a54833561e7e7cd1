// Package router subscribes to a change source, filters and records the
// changes each configured entity cares about, and turns each debounced batch
// into one notification handed to the delivery service.
package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"

	"pushwatch/internal/buffer"
	"pushwatch/internal/change"
	"pushwatch/internal/compose"
	"pushwatch/internal/countdown"
	"pushwatch/internal/delivery"
	"pushwatch/internal/metrics"
	"pushwatch/internal/source"
	"pushwatch/pkg/logx"
)

var (
	ErrEmptyKinds = errors.New("route has no kinds")
	ErrNoEntity   = errors.New("route has empty entity")
)

// Routes maps target name -> entity -> kinds.
type Routes map[string]map[string][]string

// Deliverer accepts a composed notification. Deliver must not block on the
// send itself.
type Deliverer interface {
	Deliver(ctx context.Context, n delivery.Notification) error
}

type Config struct {
	Debounce  time.Duration
	Compose   compose.Config
	Countdown countdown.Config
}

type Option func(*Router)

func WithLogger(log logx.Logger) Option { return func(r *Router) { r.log = log } }

func WithMetrics(m metrics.Recorder) Option { return func(r *Router) { r.metrics = m } }

// WithClock overrides the observation timestamp source.
func WithClock(now func() time.Time) Option { return func(r *Router) { r.now = now } }

// WithContext sets the context passed to Deliver.
func WithContext(ctx context.Context) Option { return func(r *Router) { r.ctx = ctx } }

type Router struct {
	cfg       Config
	client    source.Client
	deliverer Deliverer
	composer  *compose.Composer

	log     logx.Logger
	metrics metrics.Recorder
	now     func() time.Time
	ctx     context.Context

	// configMu serializes Configure calls.
	configMu sync.Mutex
	subs     *xsync.Map[string, *Subscription]
}

func New(cfg Config, client source.Client, deliverer Deliverer, opts ...Option) *Router {
	if cfg.Debounce <= 0 {
		cfg.Debounce = buffer.DefaultInterval
	}
	r := &Router{
		cfg:       cfg,
		client:    client,
		deliverer: deliverer,
		composer:  compose.New(cfg.Compose),
		now:       time.Now,
		ctx:       context.Background(),
		subs:      xsync.NewMap[string, *Subscription](),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.log.IsZero() {
		r.log = logx.Nop()
	}
	if r.metrics == nil {
		r.metrics = metrics.Noop()
	}
	return r
}

// Configure registers routes. Target names resolve through dir; the
// reserved "all" name means every target. Source callbacks are registered
// once per entity, however many times it is configured.
func (r *Router) Configure(routes Routes, dir *delivery.Directory) error {
	r.configMu.Lock()
	defer r.configMu.Unlock()

	targetNames := make([]string, 0, len(routes))
	for name := range routes {
		targetNames = append(targetNames, name)
	}
	sort.Strings(targetNames)

	for _, name := range targetNames {
		targetID := delivery.AllTargets
		if name != delivery.AllTargets {
			if dir == nil {
				return fmt.Errorf("route target %q: %w", name, delivery.ErrUnknownTarget)
			}
			id, err := dir.Resolve(name)
			if err != nil {
				return fmt.Errorf("route target %q: %w", name, err)
			}
			targetID = id
		}

		entities := make([]string, 0, len(routes[name]))
		for entity := range routes[name] {
			entities = append(entities, entity)
		}
		sort.Strings(entities)

		for _, entity := range entities {
			if entity == "" {
				return fmt.Errorf("route target %q: %w", name, ErrNoEntity)
			}
			rawKinds := routes[name][entity]
			if len(rawKinds) == 0 {
				return fmt.Errorf("route %q/%q: %w", name, entity, ErrEmptyKinds)
			}
			props := make([]change.Property, 0, len(rawKinds))
			for _, raw := range rawKinds {
				k, err := ParseKind(raw)
				if err != nil {
					return fmt.Errorf("route %q/%q: %w", name, entity, err)
				}
				props = append(props, k.Properties()...)
			}

			sub := r.subscribe(entity)
			sub.mu.Lock()
			for _, p := range props {
				if prev, ok := sub.state.Targets[p]; ok && prev != targetID {
					r.log.Warn("property routed to several targets, last one wins",
						logx.String("entity", entity),
						logx.String("property", p.String()),
						logx.String("previous", prev),
						logx.String("target", targetID),
					)
				}
				sub.state.Targets[p] = targetID
			}
			sub.mu.Unlock()
		}
	}
	r.metrics.SetTrackedEntities(r.subs.Size())
	return nil
}

func (r *Router) subscribe(entity string) *Subscription {
	sub, loaded := r.subs.LoadOrCompute(entity, func() (*Subscription, bool) {
		return r.newSubscription(entity), false
	})
	if !loaded {
		r.client.OnVideoState(entity, r.onVideoState)
		r.client.OnRank(entity, r.onRank)
		r.client.OnTopic(entity, r.onTopic)
		r.log.Debug("entity tracked", logx.String("entity", entity))
	}
	return sub
}

// Subscription returns the tracked state for entity.
func (r *Router) Subscription(entity string) (*Subscription, bool) {
	return r.subs.Load(entity)
}

// Entities lists tracked entities in name order.
func (r *Router) Entities() []string {
	out := make([]string, 0, r.subs.Size())
	r.subs.Range(func(entity string, _ *Subscription) bool {
		out = append(out, entity)
		return true
	})
	sort.Strings(out)
	return out
}

// Stats reports pending record counts per entity.
func (r *Router) Stats() map[string]int {
	out := make(map[string]int, r.subs.Size())
	r.subs.Range(func(entity string, sub *Subscription) bool {
		out[entity] = sub.buf.Pending()
		return true
	})
	return out
}

// Flush drains every subscription now instead of waiting for its debounce
// timer. It returns the number of records flushed.
func (r *Router) Flush(ctx context.Context) int {
	total := 0
	r.subs.Range(func(_ string, sub *Subscription) bool {
		if ctx.Err() != nil {
			return false
		}
		total += sub.buf.Flush()
		return true
	})
	return total
}

func (r *Router) onVideoState(entity string, before, after *int) {
	sub, ok := r.subs.Load(entity)
	if !ok || after == nil {
		return
	}
	bv, av := change.IntPtr(before), change.IntPtr(after)
	if bv.Equal(av) {
		return
	}
	now := r.now()

	sub.mu.Lock()
	defer sub.mu.Unlock()

	prevState := -1
	if before != nil {
		prevState = *before
	}
	if sub.wants(change.OnlineState) && change.IsOnlineEdge(prevState, *after) {
		rec := change.NewValueChange(change.OnlineState, bv, av, now)
		if sub.state.LastOnline == nil {
			seed := rec
			sub.state.LastOnline = &seed
		}
		r.enqueueLocked(sub, rec)
	}
	if sub.wants(change.VideoState) {
		rec := change.NewValueChange(change.VideoState, bv, av, now)
		if sub.state.LastVideo == nil {
			seed := rec
			sub.state.LastVideo = &seed
		}
		r.enqueueLocked(sub, rec)
	}
}

func (r *Router) onRank(entity string, before, after *int) {
	sub, ok := r.subs.Load(entity)
	if !ok || after == nil {
		return
	}
	bv, av := change.IntPtr(before), change.IntPtr(after)
	if bv.Equal(av) {
		return
	}
	// A first sighting below the ranked threshold carries no news.
	if before == nil && *after == 0 {
		return
	}
	now := r.now()

	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.wants(change.Rank) {
		r.enqueueLocked(sub, change.NewValueChange(change.Rank, bv, av, now))
	}
}

func (r *Router) onTopic(entity string, before, after *string) {
	sub, ok := r.subs.Load(entity)
	if !ok {
		return
	}
	var b, a string
	if before != nil {
		b = *before
	}
	if after != nil {
		a = *after
	}
	if b == a {
		return
	}
	now := r.now()

	sub.mu.Lock()
	defer sub.mu.Unlock()

	for _, ev := range sub.countdown.Observe(b, a) {
		r.metrics.CountdownEvent(ev.Kind.String())
		prop := change.CountdownStarted
		if ev.Kind == countdown.Completed {
			prop = change.CountdownCompleted
		}
		r.log.Debug("countdown event",
			logx.String("entity", entity),
			logx.String("kind", ev.Kind.String()),
			logx.Int("remaining", ev.Remaining),
		)
		if sub.wants(prop) {
			r.enqueueLocked(sub, change.NewMessage(prop, ev.Message(), now))
		}
	}

	if a != "" && sub.wants(change.Topic) {
		r.enqueueLocked(sub, change.NewValueChange(change.Topic, change.TextPtr(before), change.Text(a), now))
	}
}

func (r *Router) enqueueLocked(sub *Subscription, rec change.Record) {
	postponed := sub.buf.Enqueue(rec)
	r.metrics.ChangeEnqueued(rec.Property.String(), postponed)
}

// flush renders one drained batch. A render error means a record reached a
// subscription that cannot route it, which is a programming error.
func (r *Router) flush(sub *Subscription, records []change.Record) {
	sub.mu.Lock()
	n, err := r.composer.Render(sub.entity, &sub.state, records)
	sub.mu.Unlock()
	if err != nil {
		panic(fmt.Sprintf("router: render batch for %s: %v", sub.entity, err))
	}
	n.BatchID = uuid.NewString()

	r.metrics.BatchFlushed(len(records))
	r.log.Debug("batch flushed",
		logx.String("entity", sub.entity),
		logx.String("batch", n.BatchID),
		logx.Int("records", len(records)),
		logx.Bool("all_targets", n.All()),
		logx.Strings("targets", n.Targets),
	)
	if err := r.deliverer.Deliver(r.ctx, n); err != nil {
		r.log.Warn("delivery rejected",
			logx.String("entity", sub.entity),
			logx.String("batch", n.BatchID),
			logx.Err(err),
		)
	}
}
