package realtime

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDebouncerCoalescesBurst(t *testing.T) {
	var calls int32
	debouncer := NewDebouncer(50*time.Millisecond, func() { atomic.AddInt32(&calls, 1) })

	for i := 0; i < 10; i++ {
		debouncer.Trigger()
	}
	time.Sleep(150 * time.Millisecond)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDebouncerWindowIsNotExtended(t *testing.T) {
	var calls int32
	fired := make(chan time.Time, 4)
	debouncer := NewDebouncer(80*time.Millisecond, func() {
		atomic.AddInt32(&calls, 1)
		fired <- time.Now()
	})

	start := time.Now()
	debouncer.Trigger()
	time.Sleep(40 * time.Millisecond)
	debouncer.Trigger()

	select {
	case at := <-fired:
		assert.Less(t, at.Sub(start), 120*time.Millisecond)
	case <-time.After(time.Second):
		t.Fatal("debounced function never ran")
	}
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDebouncerRunsAgainAfterWindow(t *testing.T) {
	var calls int32
	debouncer := NewDebouncer(30*time.Millisecond, func() { atomic.AddInt32(&calls, 1) })

	debouncer.Trigger()
	time.Sleep(80 * time.Millisecond)
	debouncer.Trigger()
	time.Sleep(80 * time.Millisecond)

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestDebouncerStopDiscardsPending(t *testing.T) {
	var calls int32
	debouncer := NewDebouncer(30*time.Millisecond, func() { atomic.AddInt32(&calls, 1) })

	debouncer.Trigger()
	debouncer.Stop()
	debouncer.Trigger()
	time.Sleep(80 * time.Millisecond)

	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}
