package followerwatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

type panickySource struct {
	fakeSource
}

func (ps *panickySource) FetchCount(ctx context.Context) (int, error) {
	n, err := ps.fakeSource.FetchCount(ctx)
	if ps.Calls() == 1 {
		panic("scraper exploded")
	}
	return n, err
}

// testLogger drops cron's debug chatter, which can outlive the test.
func testLogger(t *testing.T) *zap.SugaredLogger {
	return zaptest.NewLogger(t, zaptest.Level(zapcore.InfoLevel)).Sugar()
}

func runWatch(t *testing.T, w *Watcher) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx) }()
	return func() {
		stop()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("Watch did not return after cancel")
		}
	}
}

func TestWatchRunsImmediately(t *testing.T) {
	src := &fakeSource{counts: []int{150}}
	n := &fakeNotifier{}
	w, err := NewWatcher("dancer", 1000, time.Hour, src, n, NewMemoryStore(90),
		WithLogger(testLogger(t)))
	require.NoError(t, err)

	stop := runWatch(t, w)
	require.Eventually(t, func() bool { return src.Calls() == 1 }, 2*time.Second, 5*time.Millisecond)
	stop()

	assert.Len(t, n.Messages(), 2)
	assert.Equal(t, 150, w.Status().LastCount)
}

func TestWatchReportsStoredCountBeforeFirstCycle(t *testing.T) {
	src := &fakeSource{counts: []int{95}, block: make(chan struct{})}
	w, err := NewWatcher("dancer", 1000, time.Hour, src, &fakeNotifier{}, NewMemoryStore(90),
		WithLogger(testLogger(t)))
	require.NoError(t, err)
	assert.Equal(t, 0, w.Status().LastCount)

	stop := runWatch(t, w)
	require.Eventually(t, func() bool {
		st := w.Status()
		return st.Running && st.LastCount == 90
	}, 2*time.Second, 5*time.Millisecond, "stored count is reported while the first cycle is still fetching")
	close(src.block)
	require.Eventually(t, func() bool { return w.Status().LastCount == 95 }, 2*time.Second, 5*time.Millisecond)
	stop()
}

func TestWatchTicks(t *testing.T) {
	src := &fakeSource{counts: []int{10, 20, 30}}
	n := &fakeNotifier{}
	w, err := NewWatcher("dancer", 1000, time.Second, src, n, NewMemoryStore(0),
		WithLogger(testLogger(t)))
	require.NoError(t, err)

	stop := runWatch(t, w)
	require.Eventually(t, func() bool { return src.Calls() >= 3 }, 5*time.Second, 10*time.Millisecond)
	stop()

	assert.Equal(t, []string{
		"🎉 Followers increased from 0 to 10 (+10)",
		"🎉 Followers increased from 10 to 20 (+10)",
		"🎉 Followers increased from 20 to 30 (+10)",
	}, n.Messages()[:3])
}

func TestWatchSurvivesPanic(t *testing.T) {
	src := &panickySource{fakeSource{counts: []int{10, 20}}}
	w, err := NewWatcher("dancer", 1000, time.Second, src, &fakeNotifier{}, NewMemoryStore(0),
		WithLogger(testLogger(t)))
	require.NoError(t, err)

	stop := runWatch(t, w)
	require.Eventually(t, func() bool { return src.Calls() >= 2 }, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return w.Status().LastCount == 20 }, 5*time.Second, 10*time.Millisecond)
	stop()
}

func TestWatchSkipsOverlappingTicks(t *testing.T) {
	src := &fakeSource{counts: []int{10}, block: make(chan struct{})}
	w, err := NewWatcher("dancer", 1000, time.Second, src, &fakeNotifier{}, NewMemoryStore(0),
		WithLogger(testLogger(t)))
	require.NoError(t, err)

	stop := runWatch(t, w)
	require.Eventually(t, func() bool { return w.Status().SkippedCycles >= 1 }, 5*time.Second, 10*time.Millisecond)
	close(src.block)
	stop()

	st := w.Status()
	assert.GreaterOrEqual(t, st.SkippedCycles, int64(1))
	assert.Equal(t, int64(src.Calls()), st.Cycles, "skipped ticks must not fetch")
}

func TestWatchBadSchedule(t *testing.T) {
	w, err := NewWatcher("dancer", 1000, 0, &fakeSource{}, &fakeNotifier{}, NewMemoryStore(0),
		WithSchedule("every other tuesday"))
	require.NoError(t, err)
	assert.Error(t, w.Watch(context.Background()))
}
