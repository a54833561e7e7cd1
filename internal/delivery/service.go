package delivery

import (
	"context"
	"encoding/binary"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/coocood/freecache"
	"github.com/zeebo/xxh3"
	"golang.org/x/time/rate"

	"pushwatch/internal/metrics"
	"pushwatch/internal/runtime/supervisor"
	"pushwatch/internal/storage"
	"pushwatch/pkg/logx"
)

var (
	ErrDisabled  = errors.New("delivery disabled")
	ErrQueueFull = errors.New("delivery queue full")
	ErrStopped   = errors.New("delivery stopped")
)

type job struct {
	n        Notification
	queuedAt time.Time
}

// Service hands notifications to a Sender from a bounded queue drained by
// a worker pool. Sends are rate limited and identical notifications inside
// the dedup window are dropped. A failed send is recorded, never retried.
type Service struct {
	mu sync.Mutex

	log     logx.Logger
	sender  Sender
	dir     *Directory
	store   storage.Store
	metrics metrics.Recorder

	cfg     Config
	limiter *rate.Limiter
	dedup   *freecache.Cache

	accepting bool
	sendWG    sync.WaitGroup

	queue    chan job
	sup      *supervisor.Supervisor
	stopping chan struct{}

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, sender Sender, dir *Directory, log logx.Logger, store storage.Store, m metrics.Recorder) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if m == nil {
		m = metrics.Noop()
	}
	s := &Service{
		sender:  sender,
		dir:     dir,
		log:     log,
		store:   store,
		metrics: m,
	}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Apply swaps tuning knobs at runtime. Worker count and queue size take
// effect on the next Start.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.DedupWindow < 0 {
		cfg.DedupWindow = 0
	}
	if cfg.DedupCacheMB <= 0 {
		cfg.DedupCacheMB = 1
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 100
	}

	if s.dedup == nil || s.cfg.DedupCacheMB != cfg.DedupCacheMB {
		s.dedup = freecache.NewCache(cfg.DedupCacheMB * 1024 * 1024)
	}
	s.cfg = cfg
	// burst of one second's worth
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if s.stopping != nil {
		done := s.stopping
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		s.mu.Lock()
	}
	if s.queue != nil || !s.cfg.Enabled {
		s.mu.Unlock()
		return
	}

	s.queue = make(chan job, s.cfg.QueueSize)
	s.accepting = true
	workers := s.cfg.Workers
	s.sup = supervisor.New(ctx,
		supervisor.WithLogger(s.log),
		supervisor.WithCancelOnError(false),
	)
	sup := s.sup
	q := s.queue
	s.mu.Unlock()

	for i := 0; i < workers; i++ {
		sup.GoRestart("delivery.worker", func(c context.Context) error {
			s.workerLoop(c, q)
			return nil
		})
	}
	s.log.Info("delivery started", logx.String("sender", s.sender.Name()), logx.Int("workers", workers))
}

// Stop refuses new notifications and lets workers drain the queue until
// ctx ends; anything still queued after that is dropped.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	q := s.queue
	sup := s.sup
	if q == nil {
		s.mu.Unlock()
		return
	}
	if s.stopping != nil {
		done := s.stopping
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopping = done
	s.accepting = false
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.sendWG.Wait()
		close(q)
		_ = sup.Wait(context.Background())

		s.mu.Lock()
		s.queue = nil
		s.stopping = nil
		s.sup = nil
		s.mu.Unlock()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		sup.Cancel()
	}
}

// Deliver enqueues n without waiting for the send.
func (s *Service) Deliver(ctx context.Context, n Notification) error {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	if !s.cfg.Enabled {
		s.mu.Unlock()
		return ErrDisabled
	}
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		return ErrStopped
	}
	q := s.queue
	window := s.cfg.DedupWindow
	cache := s.dedup
	s.sendWG.Add(1)
	s.mu.Unlock()
	defer s.sendWG.Done()

	key := dedupKey(n)
	if window > 0 && !dedupAllow(cache, key, window) {
		s.metrics.DeliveryResult(metrics.ResultDeduped)
		s.log.Debug("notification deduped", logx.String("entity", n.Entity), logx.String("batch", n.BatchID))
		return nil
	}

	select {
	case q <- job{n: n, queuedAt: time.Now()}:
		return nil
	default:
		s.metrics.DeliveryResult(metrics.ResultDropped)
		return ErrQueueFull
	}
}

// Snapshot returns recent deliveries, oldest first.
func (s *Service) Snapshot() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func (s *Service) appendHistory(it HistoryItem, max int) {
	s.hmu.Lock()
	s.history = append(s.history, it)
	if len(s.history) > max {
		s.history = s.history[len(s.history)-max:]
	}
	s.hmu.Unlock()
}

func (s *Service) workerLoop(ctx context.Context, q <-chan job) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q:
			if !ok {
				return
			}
			s.send(ctx, j)
		}
	}
}

func (s *Service) send(runCtx context.Context, j job) {
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	s.mu.Unlock()

	targets := j.n.Targets
	if targets == nil {
		targets = s.dir.IDs()
	}

	start := time.Now()
	var errs []error
	for _, target := range targets {
		if err := lim.Wait(runCtx); err != nil {
			errs = append(errs, err)
			break
		}
		callCtx, cancel := context.WithTimeout(runCtx, cfg.SendTimeout)
		err := s.sender.Send(callCtx, target, j.n.Title, j.n.Body)
		cancel()
		if err != nil {
			s.log.Warn("notification send failed",
				logx.String("entity", j.n.Entity), logx.String("target", target), logx.String("batch", j.n.BatchID), logx.Err(err))
			errs = append(errs, err)
		}
	}
	took := time.Since(start)
	sendErr := errors.Join(errs...)

	result := metrics.ResultSent
	if sendErr != nil {
		result = metrics.ResultFailed
	}
	s.metrics.DeliveryResult(result)
	s.log.Debug("notification processed",
		logx.String("batch", j.n.BatchID),
		logx.String("result", result),
		logx.Duration("queued", start.Sub(j.queuedAt)),
		logx.Duration("took", took),
	)

	s.appendHistory(HistoryItem{
		At:      start,
		BatchID: j.n.BatchID,
		Entity:  j.n.Entity,
		Targets: targets,
		OK:      sendErr == nil,
		Error:   errString(sendErr),
	}, cfg.HistorySize)

	if s.store != nil {
		actx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
		err := s.store.AppendDelivery(actx, storage.DeliveryEntry{
			At:      start,
			BatchID: j.n.BatchID,
			Entity:  j.n.Entity,
			Targets: j.n.Targets,
			All:     j.n.All(),
			Title:   j.n.Title,
			Body:    j.n.Body,
			OK:      sendErr == nil,
			Error:   errString(sendErr),
			TookMS:  took.Milliseconds(),
		})
		cancel()
		if err != nil {
			s.log.Debug("delivery audit append failed", logx.Err(err))
		}
	}
}

func dedupKey(n Notification) []byte {
	targets := AllTargets
	if !n.All() {
		targets = strings.Join(n.Targets, ",")
	}
	var key [8]byte
	binary.BigEndian.PutUint64(key[:], xxh3.HashString(targets+"|"+n.Title+"|"+n.Body))
	return key[:]
}

func dedupAllow(cache *freecache.Cache, key []byte, window time.Duration) bool {
	if cache == nil {
		return true
	}
	if _, err := cache.Get(key); err == nil {
		return false
	}
	secs := int((window + time.Second - 1) / time.Second)
	_ = cache.Set(key, []byte{1}, secs)
	return true
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
