package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/farshadfahimi/sellerbot/internal/alerting"
	"github.com/farshadfahimi/sellerbot/internal/broker"
	"github.com/farshadfahimi/sellerbot/internal/metrics"
	"github.com/farshadfahimi/sellerbot/internal/persistence"
	"github.com/farshadfahimi/sellerbot/internal/session"
)

// Supervisor owns the watcher set. Watchers are keyed by account@broker:isin
// and run independently; one failing or completing never affects the others.
type Supervisor struct {
	clock    *session.Clock
	factory  broker.Factory
	alerter  alerting.Alerter
	journal  persistence.Journal
	logger   *slog.Logger
	recorder *metrics.Recorder

	mu       sync.Mutex
	watchers map[string]*Watcher
}

// NewSupervisor creates a supervisor. The factory builds one broker client
// per account on demand.
func NewSupervisor(clock *session.Clock, factory broker.Factory, alerter alerting.Alerter, journal persistence.Journal, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		clock:    clock,
		factory:  factory,
		alerter:  alerter,
		journal:  journal,
		logger:   logger,
		recorder: metrics.NewRecorder(),
		watchers: make(map[string]*Watcher),
	}
}

// Start launches a watcher for the given config. Starting a key that is
// already running is a no-op; a key whose previous watcher finished gets a
// fresh one. Config errors are fatal and reported before anything runs.
func (s *Supervisor) Start(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("watcher %s: %w", cfg.Key(), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := cfg.Key()
	if existing, ok := s.watchers[key]; ok {
		if existing.Status().Running() {
			s.logger.Debug("watcher already running", "watcher", key)
			return nil
		}
		delete(s.watchers, key)
	}

	client, err := s.factory(ctx, broker.Account{Username: cfg.Account, Broker: cfg.Broker})
	if err != nil {
		return fmt.Errorf("watcher %s: broker client: %w", key, err)
	}

	w := New(cfg, s.clock, client, s.alerter, s.journal, s.logger)
	if err := w.Start(ctx); err != nil {
		return err
	}
	s.watchers[key] = w
	s.recorder.RecordWatchersRunning(s.runningLocked())
	return nil
}

// Stop stops the watcher for key and waits for its loop to exit. Unknown
// keys are a no-op.
func (s *Supervisor) Stop(key string) {
	s.mu.Lock()
	w, ok := s.watchers[key]
	s.mu.Unlock()
	if !ok {
		return
	}

	w.Stop()

	s.mu.Lock()
	s.recorder.RecordWatchersRunning(s.runningLocked())
	s.mu.Unlock()
}

// StopAll stops every watcher and blocks until all loops have exited.
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	all := make([]*Watcher, 0, len(s.watchers))
	for _, w := range s.watchers {
		all = append(all, w)
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, w := range all {
		wg.Add(1)
		go func(w *Watcher) {
			defer wg.Done()
			w.Stop()
		}(w)
	}
	wg.Wait()

	s.mu.Lock()
	s.recorder.RecordWatchersRunning(s.runningLocked())
	s.mu.Unlock()

	s.logger.Info("all watchers stopped", "count", len(all))
}

// Status returns a snapshot per watcher, sorted by key for stable display.
func (s *Supervisor) Status() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Status, 0, len(s.watchers))
	for _, w := range s.watchers {
		out = append(out, w.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Running returns the number of watchers whose loop is active.
func (s *Supervisor) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runningLocked()
}

func (s *Supervisor) runningLocked() int {
	n := 0
	for _, w := range s.watchers {
		if w.Status().Running() {
			n++
		}
	}
	return n
}
