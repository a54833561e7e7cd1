// Package supervisor runs named goroutines under one context. Panics are
// recovered, failures are recorded, and GoRestart keeps a loop alive with
// exponential backoff.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"pushwatch/pkg/logx"
)

// a run that lasted this long resets the backoff window
const stableRun = 30 * time.Second

type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    logx.Logger

	cancelOnErr bool

	wg      sync.WaitGroup
	running atomic.Int64
	err     atomic.Pointer[error]

	waitOnce sync.Once
	done     chan struct{}
}

type Option func(*Supervisor)

func WithLogger(log logx.Logger) Option { return func(s *Supervisor) { s.log = log } }

// WithCancelOnError makes the first recorded failure cancel every goroutine.
func WithCancelOnError(enabled bool) Option { return func(s *Supervisor) { s.cancelOnErr = enabled } }

func New(parent context.Context, opts ...Option) *Supervisor {
	s := &Supervisor{done: make(chan struct{})}
	s.ctx, s.cancel = context.WithCancel(parent)
	for _, opt := range opts {
		opt(s)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	return s
}

func (s *Supervisor) Context() context.Context { return s.ctx }

// Cancel signals every goroutine and returns immediately.
func (s *Supervisor) Cancel() { s.cancel() }

func (s *Supervisor) Active() int64 { return s.running.Load() }

// Err returns the first recorded failure.
func (s *Supervisor) Err() error {
	if p := s.err.Load(); p != nil {
		return *p
	}
	return nil
}

// Go runs fn once. A panic or an error other than context.Canceled is
// recorded as a failure.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	s.wg.Add(1)
	s.running.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Add(-1)

		log := s.log.With(logx.String("goroutine", name))
		log.Debug("started")
		if err := s.guard(log, fn); err != nil && !errors.Is(err, context.Canceled) {
			s.record(fmt.Errorf("%s: %w", name, err))
		}
		log.Debug("stopped")
	}()
}

// guard calls fn and turns a panic into an error.
func (s *Supervisor) guard(log logx.Logger, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic recovered", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(s.ctx)
}

type RestartOption func(*backoff)

// WithRestartBackoff sets the first and the largest delay between restarts.
func WithRestartBackoff(min, max time.Duration) RestartOption {
	return func(b *backoff) {
		if min > 0 {
			b.min = min
		}
		if max > 0 {
			b.max = max
		}
	}
}

// WithMaxRestarts gives up after n restarts; n <= 0 never gives up.
func WithMaxRestarts(n int) RestartOption { return func(b *backoff) { b.limit = n } }

type backoff struct {
	min, max time.Duration
	limit    int

	cur      time.Duration
	restarts int
}

// next returns the delay before the next attempt with up to 20% jitter.
func (b *backoff) next(ranFor time.Duration) time.Duration {
	if b.cur == 0 || ranFor >= stableRun {
		b.cur = b.min
	}
	d := b.cur
	b.cur = min(b.cur*2, b.max)
	if j := int64(d) / 5; j > 0 {
		d += time.Duration(rand.Int64N(j + 1))
	}
	return d
}

// GoRestart runs fn until it returns nil or the context ends, restarting
// it after errors and panics.
func (s *Supervisor) GoRestart(name string, fn func(ctx context.Context) error, opts ...RestartOption) {
	if fn == nil {
		return
	}
	b := &backoff{min: 250 * time.Millisecond, max: 30 * time.Second}
	for _, opt := range opts {
		opt(b)
	}
	b.max = max(b.max, b.min)

	log := s.log.With(logx.String("goroutine", name))
	s.Go(name, func(ctx context.Context) error {
		for {
			began := time.Now()
			err := s.guard(log, fn)
			if err == nil || ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}

			b.restarts++
			if b.limit > 0 && b.restarts > b.limit {
				log.Error("giving up", logx.Int("restarts", b.restarts-1), logx.Err(err))
				return err
			}
			delay := b.next(time.Since(began))
			log.Warn("restarting", logx.Duration("backoff", delay), logx.Err(err))

			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil
			case <-t.C:
			}
		}
	})
}

// Stop cancels and waits.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.cancel()
	return s.Wait(ctx)
}

// Wait blocks until every goroutine returned or ctx ends.
func (s *Supervisor) Wait(ctx context.Context) error {
	s.waitOnce.Do(func() {
		go func() {
			s.wg.Wait()
			close(s.done)
		}()
	})
	select {
	case <-s.done:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Supervisor) record(err error) {
	s.err.CompareAndSwap(nil, &err)
	if s.cancelOnErr {
		s.cancel()
	}
}
