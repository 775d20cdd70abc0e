// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package gate

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/absmach/fluxgate/broker"
)

func TestScheduleFires(t *testing.T) {
	s := NewScheduler()
	fired := make(chan *Task, 1)

	first := time.Now()
	msg := &broker.Message{Topic: "a/b", Payload: []byte("x")}
	id, ok := s.Schedule(msg, 10*time.Millisecond, 3, first, func(task *Task) {
		fired <- task
	})
	require.True(t, ok)
	require.NotZero(t, id)

	select {
	case task := <-fired:
		assert.Equal(t, id, task.ID)
		assert.Equal(t, msg, task.Msg)
		assert.Equal(t, 3, task.Attempt)
		assert.Equal(t, first, task.FirstDeferred)
	case <-time.After(time.Second):
		t.Fatal("task did not fire")
	}

	assert.Equal(t, 0, s.Len())
}

func TestCancelAllPreventsFiring(t *testing.T) {
	s := NewScheduler()
	var fired atomic.Int32

	for range 3 {
		_, ok := s.Schedule(&broker.Message{Topic: "a/b"}, 20*time.Millisecond, 1, time.Now(), func(*Task) {
			fired.Add(1)
		})
		require.True(t, ok)
	}
	require.Equal(t, 3, s.Len())

	cancelled := s.CancelAll()
	assert.Len(t, cancelled, 3)
	assert.Equal(t, 0, s.Len())

	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, fired.Load())
}

func TestScheduleAfterCancelAllRefused(t *testing.T) {
	s := NewScheduler()
	s.CancelAll()

	id, ok := s.Schedule(&broker.Message{Topic: "a/b"}, time.Millisecond, 1, time.Now(), func(*Task) {})
	assert.False(t, ok)
	assert.Zero(t, id)
	assert.Equal(t, 0, s.Len())
}

func TestSchedulerIDsAreUnique(t *testing.T) {
	s := NewScheduler()
	defer s.CancelAll()

	seen := make(map[uint64]bool)
	for range 100 {
		id, ok := s.Schedule(&broker.Message{Topic: "a/b"}, time.Minute, 1, time.Now(), func(*Task) {})
		require.True(t, ok)
		require.False(t, seen[id], "duplicate task ID %d", id)
		seen[id] = true
	}
}

func TestSnapshotOrderedByID(t *testing.T) {
	s := NewScheduler()
	defer s.CancelAll()

	topicsIn := []string{"c/3", "a/1", "b/2"}
	for i, topic := range topicsIn {
		_, ok := s.Schedule(&broker.Message{Topic: topic}, time.Minute, i+1, time.Now(), func(*Task) {})
		require.True(t, ok)
	}

	infos := s.Snapshot()
	require.Len(t, infos, 3)
	for i := 1; i < len(infos); i++ {
		assert.Less(t, infos[i-1].ID, infos[i].ID)
	}
	assert.Equal(t, "c/3", infos[0].Topic)
	assert.Equal(t, "b/2", infos[2].Topic)
	assert.Equal(t, 3, infos[2].Attempt)
}

func TestConcurrentScheduleAndCancelAccounting(t *testing.T) {
	s := NewScheduler()

	var fired, refused atomic.Int32
	const workers = 8
	const perWorker = 50

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWorker {
				if _, ok := s.Schedule(&broker.Message{Topic: "a/b"}, time.Millisecond, 1, time.Now(), func(*Task) {
					fired.Add(1)
				}); !ok {
					refused.Add(1)
				}
			}
		}()
	}

	time.Sleep(5 * time.Millisecond)
	cancelled := len(s.CancelAll())
	wg.Wait()

	// Timers are armed for 1ms; give claimed ones time to run.
	require.Eventually(t, func() bool {
		return int(fired.Load())+cancelled+int(refused.Load()) == workers*perWorker
	}, time.Second, 5*time.Millisecond,
		"fired=%d cancelled=%d refused=%d", fired.Load(), cancelled, refused.Load())

	assert.Equal(t, 0, s.Len())
}
