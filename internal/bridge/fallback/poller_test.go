package fallback

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTracker struct {
	mu         sync.Mutex
	pending    bool
	hookActive bool
	completed  int
}

func (f *fakeTracker) HasPending(string, string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending
}

func (f *fakeTracker) IsHookActive(string, string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hookActive
}

func (f *fakeTracker) MarkCompleted(context.Context, string, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = false
	f.completed++
}

func (f *fakeTracker) completedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completed
}

// fakeCapture serves frames in sequence and sticks at the last one.
type fakeCapture struct {
	mu     sync.Mutex
	frames [][]string
	calls  int
}

func (f *fakeCapture) GetWindowFrame(context.Context, string, string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.frames) == 0 {
		return nil, fmt.Errorf("no window")
	}
	i := f.calls
	if i >= len(f.frames) {
		i = len(f.frames) - 1
	}
	f.calls++
	return f.frames[i], nil
}

func (f *fakeCapture) GetWindowBuffer(context.Context, string, string) (string, error) {
	return "", fmt.Errorf("no window")
}

type fakeSender struct {
	mu    sync.Mutex
	sends []string
}

func (f *fakeSender) SendToChannel(_ context.Context, _ string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, text)
	return nil
}

func (f *fakeSender) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sends))
	copy(out, f.sends)
	return out
}

func fastConfig() Config {
	return Config{
		InitialDelay:   5 * time.Millisecond,
		StabilityDelay: 5 * time.Millisecond,
		MaxChecks:      3,
	}
}

func TestStableBufferDeliversOnce(t *testing.T) {
	frame := []string{"> fix the bug", "Fixed the null check in parser.go"}
	tracker := &fakeTracker{pending: true}
	capture := &fakeCapture{frames: [][]string{frame, frame}}
	sender := &fakeSender{}
	p := NewPoller(tracker, capture, sender, fastConfig())

	p.ScheduleBufferFallback("main", "agent", "proj", "claude", "claude", "C1")

	require.Eventually(t, func() bool {
		return tracker.completedCount() == 1
	}, time.Second, time.Millisecond)

	sends := sender.sent()
	require.Len(t, sends, 1)
	assert.Equal(t, "> fix the bug\nFixed the null check in parser.go", sends[0])

	// No further delivery after resolution.
	time.Sleep(30 * time.Millisecond)
	assert.Len(t, sender.sent(), 1)
	assert.Equal(t, 1, tracker.completedCount())
}

func TestChangingBufferGivesUpSilently(t *testing.T) {
	tracker := &fakeTracker{pending: true}
	capture := &fakeCapture{frames: [][]string{
		{"> go", "step one"},
		{"> go", "step two"},
		{"> go", "step three"},
		{"> go", "step four"},
	}}
	sender := &fakeSender{}
	p := NewPoller(tracker, capture, sender, fastConfig())

	p.ScheduleBufferFallback("main", "agent", "proj", "claude", "claude", "C1")

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, sender.sent())
	assert.Equal(t, 0, tracker.completedCount())
	assert.True(t, tracker.HasPending("proj", "claude"))
}

func TestIdleBufferNeverDelivered(t *testing.T) {
	tracker := &fakeTracker{pending: true}
	capture := &fakeCapture{frames: [][]string{{">", ""}}}
	sender := &fakeSender{}
	p := NewPoller(tracker, capture, sender, fastConfig())

	p.ScheduleBufferFallback("main", "agent", "proj", "claude", "claude", "C1")

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, sender.sent())
	assert.Equal(t, 0, tracker.completedCount())
}

func TestIdleReadsDoNotExhaustAttempts(t *testing.T) {
	// The agent sits at its prompt far longer than MaxChecks reads before
	// producing output; idle reads keep waiting for free, so the eventual
	// stable block is still delivered.
	idle := []string{">", ""}
	done := []string{"> fix the bug", "All tests pass now"}
	tracker := &fakeTracker{pending: true}
	capture := &fakeCapture{frames: [][]string{idle, idle, idle, idle, idle, done, done}}
	sender := &fakeSender{}
	p := NewPoller(tracker, capture, sender, fastConfig())

	p.ScheduleBufferFallback("main", "agent", "proj", "claude", "claude", "C1")

	require.Eventually(t, func() bool {
		return tracker.completedCount() == 1
	}, time.Second, time.Millisecond)

	sends := sender.sent()
	require.Len(t, sends, 1)
	assert.Equal(t, "> fix the bug\nAll tests pass now", sends[0])
}

func TestHookActiveAborts(t *testing.T) {
	frame := []string{"> go", "real output"}
	tracker := &fakeTracker{pending: true, hookActive: true}
	capture := &fakeCapture{frames: [][]string{frame, frame}}
	sender := &fakeSender{}
	p := NewPoller(tracker, capture, sender, fastConfig())

	p.ScheduleBufferFallback("main", "agent", "proj", "claude", "claude", "C1")

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, sender.sent())
	assert.Equal(t, 0, tracker.completedCount())
}

func TestResolvedTurnAborts(t *testing.T) {
	frame := []string{"> go", "real output"}
	tracker := &fakeTracker{pending: false}
	capture := &fakeCapture{frames: [][]string{frame, frame}}
	sender := &fakeSender{}
	p := NewPoller(tracker, capture, sender, fastConfig())

	p.ScheduleBufferFallback("main", "agent", "proj", "claude", "claude", "C1")

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, sender.sent())
}

func TestCancelStopsScheduledCheck(t *testing.T) {
	frame := []string{"> go", "real output"}
	tracker := &fakeTracker{pending: true}
	capture := &fakeCapture{frames: [][]string{frame, frame}}
	sender := &fakeSender{}
	p := NewPoller(tracker, capture, sender, Config{
		InitialDelay:   50 * time.Millisecond,
		StabilityDelay: 5 * time.Millisecond,
		MaxChecks:      3,
	})

	p.ScheduleBufferFallback("main", "agent", "proj", "claude", "claude", "C1")
	p.Cancel("proj", "claude")

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, sender.sent())
	assert.Equal(t, 0, tracker.completedCount())
}

func TestEmptyInstanceFallsBackToAgentType(t *testing.T) {
	frame := []string{"> go", "output"}
	tracker := &fakeTracker{pending: true}
	capture := &fakeCapture{frames: [][]string{frame, frame}}
	sender := &fakeSender{}
	p := NewPoller(tracker, capture, sender, Config{
		InitialDelay:   50 * time.Millisecond,
		StabilityDelay: 5 * time.Millisecond,
		MaxChecks:      3,
	})

	p.ScheduleBufferFallback("main", "agent", "proj", "claude", "", "C1")
	// The slot is keyed by agent type, so cancelling by it works.
	p.Cancel("proj", "claude")

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, sender.sent())
}

func TestCaptureFailureClearsSlot(t *testing.T) {
	tracker := &fakeTracker{pending: true}
	capture := &fakeCapture{} // every call errors
	sender := &fakeSender{}
	p := NewPoller(tracker, capture, sender, fastConfig())

	p.ScheduleBufferFallback("main", "agent", "proj", "claude", "claude", "C1")

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, sender.sent())
	assert.Equal(t, 0, tracker.completedCount())
}
