package router

import (
	"sync"

	"pushwatch/internal/buffer"
	"pushwatch/internal/change"
	"pushwatch/internal/compose"
	"pushwatch/internal/countdown"
)

// Subscription is the router-owned state of one tracked entity.
type Subscription struct {
	entity string
	buf    *buffer.Buffer

	mu        sync.Mutex
	state     compose.State
	countdown *countdown.Engine
}

func (r *Router) newSubscription(entity string) *Subscription {
	sub := &Subscription{
		entity:    entity,
		state:     compose.State{Targets: make(map[change.Property]string)},
		countdown: countdown.New(r.cfg.Countdown),
	}
	sub.buf = buffer.New(r.cfg.Debounce, func(records []change.Record) { r.flush(sub, records) })
	return sub
}

func (s *Subscription) Entity() string { return s.entity }

// Target returns the target id property p routes to.
func (s *Subscription) Target(p change.Property) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.state.Targets[p]
	return t, ok
}

func (s *Subscription) Pending() int { return s.buf.Pending() }

func (s *Subscription) wants(p change.Property) bool {
	_, ok := s.state.Targets[p]
	return ok
}
