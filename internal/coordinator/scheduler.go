package coordinator

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JNZader/rosie/internal/logger"
	"github.com/JNZader/rosie/internal/metrics"
)

type session struct {
	coordinator *Coordinator
	stop        chan struct{}
	done        chan struct{}
}

// Scheduler ticks one coordinator per session on a fixed interval.
type Scheduler struct {
	mu       sync.Mutex
	sessions map[string]*session

	log     *logger.Logger
	metrics *metrics.Collector
}

// NewScheduler creates an empty scheduler.
func NewScheduler(log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.Default().WithPrefix("SCHED")
	}
	return &Scheduler{
		sessions: make(map[string]*session),
		log:      log,
		metrics:  metrics.Global(),
	}
}

// Start ticks c immediately and then every interval until Stop is called
// for id or ctx is done. An empty id is replaced by a generated one, which
// is returned. Starting an id that is already running does nothing.
func (s *Scheduler) Start(ctx context.Context, id string, c *Coordinator, interval time.Duration) string {
	if id == "" {
		id = uuid.New().String()
	}

	sess := &session{
		coordinator: c,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}

	s.mu.Lock()
	if _, ok := s.sessions[id]; ok {
		s.mu.Unlock()
		return id
	}
	s.sessions[id] = sess
	s.metrics.Gauge(metrics.MetricActiveSessions).Set(float64(len(s.sessions)))
	s.mu.Unlock()

	go s.loop(ctx, id, sess, interval)
	s.log.Debug("session %s started, interval %s", id, interval)
	return id
}

func (s *Scheduler) loop(ctx context.Context, id string, sess *session, interval time.Duration) {
	defer close(sess.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	go s.runTick(ctx, id, sess.coordinator)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sess.stop:
			return
		case <-ticker.C:
			// Ticks overlap only when one outlasts the interval; Tick skips then.
			go s.runTick(ctx, id, sess.coordinator)
		}
	}
}

func (s *Scheduler) runTick(ctx context.Context, id string, c *Coordinator) {
	outcome, err := c.Tick(ctx)
	if err != nil {
		s.log.WithField("session", id).Debug("tick %s: %v", outcome, err)
		return
	}
	if outcome != OutcomeNoop {
		s.log.WithField("session", id).Debug("tick %s", outcome)
	}
}

// Stop cancels the session and disposes its coordinator. A tick still in
// flight completes without touching the cache.
func (s *Scheduler) Stop(id string) bool {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
		s.metrics.Gauge(metrics.MetricActiveSessions).Set(float64(len(s.sessions)))
	}
	s.mu.Unlock()

	if !ok {
		return false
	}

	sess.coordinator.Dispose()
	close(sess.stop)
	<-sess.done
	s.log.Debug("session %s stopped", id)
	return true
}

// StopAll stops every session.
func (s *Scheduler) StopAll() {
	for _, id := range s.Sessions() {
		s.Stop(id)
	}
}

// Sessions returns the running session ids, sorted.
func (s *Scheduler) Sessions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Coordinator returns the coordinator of a running session.
func (s *Scheduler) Coordinator(id string) (*Coordinator, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	return sess.coordinator, true
}
