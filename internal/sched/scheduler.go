// Package sched provides the per-session task scheduler: periodic tick loops
// for the real-time engines and one-shot deferred actions such as bot think
// delays and game-over countdowns.
package sched

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
)

// TaskID identifies a registered task.
type TaskID uint64

// PanicHandler is invoked when a task callback panics. The panic is confined
// to the owning session; the scheduler itself keeps running.
type PanicHandler func(sessionID string, recovered any)

// Scheduler dispatches periodic and one-shot callbacks on an injectable
// clock. Callbacks run on scheduler goroutines; it is the callback's job to
// take the session lock. A periodic callback that overruns its period
// coalesces: ticks are dropped, never queued.
type Scheduler struct {
	clock   quartz.Clock
	logger  *log.Logger
	onPanic PanicHandler

	mu        sync.Mutex
	nextID    TaskID
	tasks     map[TaskID]*task
	bySession map[string]map[TaskID]struct{}
	stopped   bool

	wg sync.WaitGroup
}

type task struct {
	id        TaskID
	sessionID string
	cancel    func()
}

// New creates a scheduler on the given clock.
func New(clock quartz.Clock, logger *log.Logger, onPanic PanicHandler) *Scheduler {
	return &Scheduler{
		clock:     clock,
		logger:    logger.WithPrefix("sched"),
		onPanic:   onPanic,
		tasks:     make(map[TaskID]*task),
		bySession: make(map[string]map[TaskID]struct{}),
	}
}

// Every registers a periodic task for a session. fn receives the monotonic
// dispatch time. The task runs until cancelled or the scheduler stops.
func (s *Scheduler) Every(sessionID string, period time.Duration, fn func(now time.Time)) TaskID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := s.register(sessionID, cancel)

	s.wg.Add(1)
	waiter := s.clock.TickerFunc(ctx, period, func() error {
		s.safeCall(sessionID, fn)
		return nil
	}, "sched", sessionID)

	go func() {
		defer s.wg.Done()
		_ = waiter.Wait()
		s.remove(t.id)
	}()

	return t.id
}

// After registers a one-shot task for a session.
func (s *Scheduler) After(sessionID string, delay time.Duration, fn func(now time.Time)) TaskID {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return 0
	}
	t := s.register(sessionID, func() {})
	s.mu.Unlock()

	timer := s.clock.AfterFunc(delay, func() {
		s.safeCall(sessionID, fn)
		s.remove(t.id)
	}, "sched", sessionID)

	// Arm the cancel hook unless the task was cancelled while the timer was
	// being created.
	s.mu.Lock()
	if cur, ok := s.tasks[t.id]; ok {
		cur.cancel = func() { timer.Stop() }
	} else {
		timer.Stop()
	}
	s.mu.Unlock()

	return t.id
}

// Cancel stops a single task. Cancelling an unknown or finished task is a
// no-op.
func (s *Scheduler) Cancel(id TaskID) {
	s.mu.Lock()
	t, ok := s.tasks[id]
	s.mu.Unlock()
	if ok {
		t.cancel()
		s.remove(id)
	}
}

// CancelSession stops every task registered for the session. Tasks already
// dispatched finish their current callback; none fire afterwards.
func (s *Scheduler) CancelSession(sessionID string) {
	s.mu.Lock()
	ids := make([]TaskID, 0, len(s.bySession[sessionID]))
	for id := range s.bySession[sessionID] {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.Cancel(id)
	}
}

// Stop cancels all tasks and waits for in-flight callbacks to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	all := make([]*task, 0, len(s.tasks))
	for _, t := range s.tasks {
		all = append(all, t)
	}
	s.mu.Unlock()

	for _, t := range all {
		t.cancel()
	}
	s.wg.Wait()

	s.mu.Lock()
	s.tasks = make(map[TaskID]*task)
	s.bySession = make(map[string]map[TaskID]struct{})
	s.mu.Unlock()
}

// TaskCount reports the number of live tasks. Used by tests and the health
// endpoint.
func (s *Scheduler) TaskCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// register must be called with s.mu held.
func (s *Scheduler) register(sessionID string, cancel func()) *task {
	s.nextID++
	t := &task{id: s.nextID, sessionID: sessionID, cancel: cancel}
	s.tasks[t.id] = t
	if s.bySession[sessionID] == nil {
		s.bySession[sessionID] = make(map[TaskID]struct{})
	}
	s.bySession[sessionID][t.id] = struct{}{}
	return t
}

func (s *Scheduler) remove(id TaskID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return
	}
	delete(s.tasks, id)
	if set := s.bySession[t.sessionID]; set != nil {
		delete(set, id)
		if len(set) == 0 {
			delete(s.bySession, t.sessionID)
		}
	}
}

func (s *Scheduler) safeCall(sessionID string, fn func(now time.Time)) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("task panicked", "session", sessionID, "panic", r)
			if s.onPanic != nil {
				s.onPanic(sessionID, r)
			}
		}
	}()
	fn(s.clock.Now())
}
