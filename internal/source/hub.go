package source

import (
	"context"
	"errors"
	"sync"
	"time"

	"pushwatch/pkg/logx"
)

var ErrHubClosed = errors.New("source hub closed")

// Observation is one absolute reading of an entity's properties. Nil fields
// were not observed.
type Observation struct {
	Entity     string  `json:"entity"`
	VideoState *int    `json:"video_state,omitempty"`
	Rank       *int    `json:"rank,omitempty"`
	Topic      *string `json:"topic,omitempty"`
	// Wait delays a replayed observation relative to the previous one.
	Wait string `json:"wait,omitempty"`
}

type entityState struct {
	video *int
	rank  *int
	topic *string

	videoHandlers []IntHandler
	rankHandlers  []IntHandler
	topicHandlers []TextHandler
}

// Hub turns absolute observations into (before, after) callbacks.
// Observations published through Publish are dispatched serially by Run.
type Hub struct {
	log logx.Logger
	in  chan Observation

	mu       sync.Mutex
	entities map[string]*entityState

	closeOnce sync.Once
	closed    chan struct{}
}

func NewHub(log logx.Logger, queueSize int) *Hub {
	if log.IsZero() {
		log = logx.Nop()
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Hub{
		log:      log,
		in:       make(chan Observation, queueSize),
		entities: make(map[string]*entityState),
		closed:   make(chan struct{}),
	}
}

func (h *Hub) stateLocked(entity string) *entityState {
	st := h.entities[entity]
	if st == nil {
		st = &entityState{}
		h.entities[entity] = st
	}
	return st
}

func (h *Hub) OnVideoState(entity string, fn IntHandler) {
	h.mu.Lock()
	st := h.stateLocked(entity)
	st.videoHandlers = append(st.videoHandlers, fn)
	h.mu.Unlock()
}

func (h *Hub) OnRank(entity string, fn IntHandler) {
	h.mu.Lock()
	st := h.stateLocked(entity)
	st.rankHandlers = append(st.rankHandlers, fn)
	h.mu.Unlock()
}

func (h *Hub) OnTopic(entity string, fn TextHandler) {
	h.mu.Lock()
	st := h.stateLocked(entity)
	st.topicHandlers = append(st.topicHandlers, fn)
	h.mu.Unlock()
}

// Publish queues obs for Run. It blocks while the queue is full.
func (h *Hub) Publish(ctx context.Context, obs Observation) error {
	select {
	case <-h.closed:
		return ErrHubClosed
	default:
	}
	select {
	case h.in <- obs:
		return nil
	case <-h.closed:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run dispatches queued observations until ctx is done or Close is called.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-h.closed:
			return nil
		case obs := <-h.in:
			h.Apply(obs)
		}
	}
}

func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.closed) })
}

// Apply dispatches obs synchronously. Handlers fire only for properties
// whose value differs from the last observation; the first observation of a
// property reports a nil before.
func (h *Hub) Apply(obs Observation) {
	if obs.Entity == "" {
		h.log.Warn("observation without entity dropped")
		return
	}

	h.mu.Lock()
	st := h.stateLocked(obs.Entity)
	var calls []func()
	if obs.VideoState != nil && !sameInt(st.video, obs.VideoState) {
		before, after := st.video, clonePtr(obs.VideoState)
		st.video = after
		for _, fn := range st.videoHandlers {
			calls = append(calls, func() { fn(obs.Entity, before, after) })
		}
	}
	if obs.Rank != nil && !sameInt(st.rank, obs.Rank) {
		before, after := st.rank, clonePtr(obs.Rank)
		st.rank = after
		for _, fn := range st.rankHandlers {
			calls = append(calls, func() { fn(obs.Entity, before, after) })
		}
	}
	if obs.Topic != nil && (st.topic == nil || *st.topic != *obs.Topic) {
		before, after := st.topic, clonePtr(obs.Topic)
		st.topic = after
		for _, fn := range st.topicHandlers {
			calls = append(calls, func() { fn(obs.Entity, before, after) })
		}
	}
	h.mu.Unlock()

	for _, call := range calls {
		call()
	}
}

// Entities lists entities that have state or handlers.
func (h *Hub) Entities() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.entities))
	for name := range h.entities {
		out = append(out, name)
	}
	return out
}

func sameInt(a, b *int) bool { return a != nil && b != nil && *a == *b }

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// waitFor parses an observation's wait field.
func waitFor(obs Observation) (time.Duration, error) {
	if obs.Wait == "" {
		return 0, nil
	}
	return time.ParseDuration(obs.Wait)
}
