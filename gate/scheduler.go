// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package gate

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/absmach/fluxgate/broker"
)

// Task is one deferred delivery waiting on a timer.
type Task struct {
	ID      uint64
	Msg     *broker.Message
	Due     time.Time
	Attempt int

	// FirstDeferred is when the message was first withheld. It
	// survives requeues so the total deferral time can be reported on
	// release.
	FirstDeferred time.Time

	timer *time.Timer
}

// TaskInfo is a read-only snapshot of a scheduled task.
type TaskInfo struct {
	ID      uint64    `json:"id"`
	Topic   string    `json:"topic"`
	Due     time.Time `json:"due"`
	Attempt int       `json:"attempt"`
}

// Scheduler owns the redelivery timers. The registry exists so that
// shutdown can cancel every outstanding timer in one sweep; individual
// tasks are never cancelled, they fire or the gate stops. The registry
// is unbounded: memory is proportional to deferred messages.
type Scheduler struct {
	mu      sync.Mutex
	tasks   map[uint64]*Task
	stopped bool

	nextID atomic.Uint64
}

func NewScheduler() *Scheduler {
	return &Scheduler{tasks: make(map[uint64]*Task)}
}

// Schedule registers msg for re-evaluation after delay and arms the
// timer. The fire callback runs on the timer goroutine with the task
// already removed from the registry, so a concurrent CancelAll can
// never cancel a task that is mid-fire. Returns false once the
// scheduler has been shut down.
func (s *Scheduler) Schedule(msg *broker.Message, delay time.Duration, attempt int, firstDeferred time.Time, fire func(*Task)) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return 0, false
	}

	id := s.nextID.Add(1)
	t := &Task{
		ID:            id,
		Msg:           msg,
		Due:           time.Now().Add(delay),
		Attempt:       attempt,
		FirstDeferred: firstDeferred,
	}
	s.tasks[id] = t
	t.timer = time.AfterFunc(delay, func() {
		if task, ok := s.take(id); ok {
			fire(task)
		}
	})

	return id, true
}

// take removes a task from the registry, claiming the right to fire
// it. A task already swept by CancelAll is not found and must not
// fire.
func (s *Scheduler) take(id uint64) (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if ok {
		delete(s.tasks, id)
	}
	return t, ok
}

// CancelAll stops every outstanding timer, marks the scheduler as shut
// down and returns the cancelled tasks so the caller can account for
// them. Further Schedule calls are refused.
func (s *Scheduler) CancelAll() []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	cancelled := make([]*Task, 0, len(s.tasks))
	for id, t := range s.tasks {
		t.timer.Stop()
		delete(s.tasks, id)
		cancelled = append(cancelled, t)
	}
	return cancelled
}

// Len returns the number of outstanding tasks.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Snapshot lists outstanding tasks ordered by ID.
func (s *Scheduler) Snapshot() []TaskInfo {
	s.mu.Lock()
	infos := make([]TaskInfo, 0, len(s.tasks))
	for _, t := range s.tasks {
		infos = append(infos, TaskInfo{
			ID:      t.ID,
			Topic:   t.Msg.Topic,
			Due:     t.Due,
			Attempt: t.Attempt,
		})
	}
	s.mu.Unlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}
