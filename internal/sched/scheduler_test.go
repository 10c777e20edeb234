package sched

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(t *testing.T, onPanic PanicHandler) (*Scheduler, *quartz.Mock) {
	t.Helper()
	mock := quartz.NewMock(t)
	s := New(mock, log.New(io.Discard), onPanic)
	t.Cleanup(s.Stop)
	return s, mock
}

func TestEveryFiresOnPeriod(t *testing.T) {
	s, mock := newTestScheduler(t, nil)

	var fired atomic.Int32
	s.Every("sess-1", 50*time.Millisecond, func(now time.Time) {
		fired.Add(1)
	})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		mock.Advance(50 * time.Millisecond).MustWait(ctx)
	}
	assert.Equal(t, int32(3), fired.Load())
}

func TestAfterFiresOnce(t *testing.T) {
	s, mock := newTestScheduler(t, nil)

	var fired atomic.Int32
	s.After("sess-1", 200*time.Millisecond, func(now time.Time) {
		fired.Add(1)
	})

	ctx := context.Background()
	mock.Advance(199 * time.Millisecond).MustWait(ctx)
	assert.Equal(t, int32(0), fired.Load())

	mock.Advance(1 * time.Millisecond).MustWait(ctx)
	assert.Equal(t, int32(1), fired.Load())

	mock.Advance(time.Second).MustWait(ctx)
	assert.Equal(t, int32(1), fired.Load())
	assert.Equal(t, 0, s.TaskCount())
}

func TestCancelStopsTask(t *testing.T) {
	s, mock := newTestScheduler(t, nil)

	var fired atomic.Int32
	id := s.After("sess-1", 100*time.Millisecond, func(now time.Time) {
		fired.Add(1)
	})
	s.Cancel(id)

	mock.Advance(time.Second).MustWait(context.Background())
	assert.Equal(t, int32(0), fired.Load())
	assert.Equal(t, 0, s.TaskCount())
}

func TestCancelSessionStopsAllSessionTasks(t *testing.T) {
	s, mock := newTestScheduler(t, nil)

	var a, b atomic.Int32
	s.Every("sess-1", 10*time.Millisecond, func(now time.Time) { a.Add(1) })
	s.Every("sess-2", 10*time.Millisecond, func(now time.Time) { b.Add(1) })

	s.CancelSession("sess-1")

	mock.Advance(10 * time.Millisecond).MustWait(context.Background())
	assert.Equal(t, int32(0), a.Load())
	assert.Equal(t, int32(1), b.Load())
}

func TestPanicIsConfined(t *testing.T) {
	var panicked atomic.Value
	s, mock := newTestScheduler(t, func(sessionID string, recovered any) {
		panicked.Store(sessionID)
	})

	var survived atomic.Int32
	s.Every("bad", 10*time.Millisecond, func(now time.Time) {
		panic("engine invariant failure")
	})
	s.Every("good", 10*time.Millisecond, func(now time.Time) { survived.Add(1) })

	mock.Advance(10 * time.Millisecond).MustWait(context.Background())

	require.Equal(t, "bad", panicked.Load())
	assert.Equal(t, int32(1), survived.Load())
}

func TestStopIsIdempotent(t *testing.T) {
	s, _ := newTestScheduler(t, nil)
	s.Every("sess-1", time.Second, func(now time.Time) {})
	s.Stop()
	s.Stop()
	assert.Equal(t, 0, s.TaskCount())

	// A stopped scheduler refuses new work.
	assert.Equal(t, TaskID(0), s.Every("sess-1", time.Second, func(now time.Time) {}))
	assert.Equal(t, TaskID(0), s.After("sess-1", time.Second, func(now time.Time) {}))
}
