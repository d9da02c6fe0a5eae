package welcomer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/NordCoder/Welcomer/internal/domain/membership"
)

func newTarget(t *testing.T, memberID string) membership.Artifact {
	t.Helper()
	return membership.Artifact{
		MemberID: memberID,
		Key:      memberID,
		Path:     filepath.Join(t.TempDir(), memberID+".png"),
	}
}

func testDoc() membership.CardDocument {
	return membership.CardDocument{HTML: "<p>card</p>", Width: membership.CardWidth, Height: membership.CardHeight}
}

func TestRender_Success(t *testing.T) {
	eng := &fakeEngine{}
	r := NewRenderer(eng, RenderOptions{SettleDelay: 2 * time.Second}, zap.NewNop())

	art, err := r.Render(context.Background(), testDoc(), newTarget(t, "123"))
	require.NoError(t, err)

	assert.Equal(t, []string{"launch", "load", "wait", "viewport", "capture", "close"}, eng.Calls())
	assert.Equal(t, [2]int{1100, 500}, eng.viewport)
	assert.Equal(t, 2*time.Second, eng.waitTimeout)
	assert.Equal(t, 1100, art.Width)
	assert.Equal(t, 500, art.Height)

	data, err := os.ReadFile(art.Path)
	require.NoError(t, err)
	assert.Equal(t, testPNG, data[:len(testPNG)])
	assert.True(t, eng.allClosed())
}

func TestRender_ZeroSizeUsesCardSize(t *testing.T) {
	eng := &fakeEngine{}
	r := NewRenderer(eng, RenderOptions{}, zap.NewNop())

	_, err := r.Render(context.Background(), membership.CardDocument{HTML: "x"}, newTarget(t, "1"))
	require.NoError(t, err)
	assert.Equal(t, [2]int{membership.CardWidth, membership.CardHeight}, eng.viewport)
}

func TestRender_FailuresCloseSession(t *testing.T) {
	cases := []struct {
		failAt string
		step   string
	}{
		{"load", "load"},
		{"settle", "settle"},
		{"viewport", "viewport"},
		{"capture", "capture"},
		{"garbage", "capture"},
	}
	for _, tc := range cases {
		t.Run(tc.failAt, func(t *testing.T) {
			eng := &fakeEngine{failAt: tc.failAt}
			r := NewRenderer(eng, RenderOptions{}, zap.NewNop())
			target := newTarget(t, "123")

			_, err := r.Render(context.Background(), testDoc(), target)

			var re *membership.RenderError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, tc.step, re.Step)
			assert.Equal(t, membership.StageRender, membership.StageOf(err))
			assert.True(t, eng.allClosed())
			assert.Equal(t, "close", eng.Calls()[len(eng.Calls())-1])
			assert.NoFileExists(t, target.Path)
		})
	}
}

func TestRender_LaunchFailure(t *testing.T) {
	eng := &fakeEngine{failAt: "launch"}
	r := NewRenderer(eng, RenderOptions{}, zap.NewNop())
	target := newTarget(t, "123")

	_, err := r.Render(context.Background(), testDoc(), target)

	var re *membership.RenderError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "launch", re.Step)
	assert.Equal(t, []string{"launch"}, eng.Calls())
	assert.NoFileExists(t, target.Path)
}

func TestRender_WriteFailure(t *testing.T) {
	eng := &fakeEngine{}
	r := NewRenderer(eng, RenderOptions{}, zap.NewNop())
	target := membership.Artifact{MemberID: "1", Path: filepath.Join(t.TempDir(), "missing", "1.png")}

	_, err := r.Render(context.Background(), testDoc(), target)

	var re *membership.RenderError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "write", re.Step)
	assert.True(t, eng.allClosed())
}

func TestRender_FixedSettleSleeps(t *testing.T) {
	eng := &fakeEngine{}
	r := NewRenderer(eng, RenderOptions{SettleMode: SettleFixed, SettleDelay: 2 * time.Second}, zap.NewNop())

	var slept []time.Duration
	r.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	_, err := r.Render(context.Background(), testDoc(), newTarget(t, "1"))
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{2 * time.Second}, slept)
	assert.NotContains(t, eng.Calls(), "wait")
}

func TestRender_SlowImagesStillCaptured(t *testing.T) {
	eng := &fakeEngine{imagesSlow: true}
	r := NewRenderer(eng, RenderOptions{SettleDelay: 10 * time.Millisecond}, zap.NewNop())

	art, err := r.Render(context.Background(), testDoc(), newTarget(t, "1"))
	require.NoError(t, err)
	assert.FileExists(t, art.Path)
}

func TestRender_CancelledWhileQueued(t *testing.T) {
	eng := &fakeEngine{holdUntil: 2}
	r := NewRenderer(eng, RenderOptions{MaxConcurrent: 1}, zap.NewNop())

	// The first render holds the only slot.
	firstCtx, cancelFirst := context.WithCancel(context.Background())
	defer cancelFirst()
	first := newTarget(t, "a")
	go func() { _, _ = r.Render(firstCtx, testDoc(), first) }()
	require.Eventually(t, func() bool { return eng.open.Load() == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := r.Render(ctx, testDoc(), newTarget(t, "b"))

	var re *membership.RenderError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "queue", re.Step)
}

func TestRender_QueueWaitCountsTowardTimeout(t *testing.T) {
	eng := &fakeEngine{}
	r := NewRenderer(eng, RenderOptions{MaxConcurrent: 1, Timeout: 50 * time.Millisecond}, zap.NewNop())
	require.True(t, r.sem.TryAcquire(1))
	defer r.sem.Release(1)

	start := time.Now()
	_, err := r.Render(context.WithoutCancel(context.Background()), testDoc(), newTarget(t, "a"))

	var re *membership.RenderError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "queue", re.Step)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
	assert.Empty(t, eng.Calls())
}

func TestRender_BoundsOpenSessions(t *testing.T) {
	eng := &fakeEngine{gate: make(chan struct{})}
	r := NewRenderer(eng, RenderOptions{MaxConcurrent: 2}, zap.NewNop())

	dir := t.TempDir()
	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		target := membership.Artifact{MemberID: "m", Path: filepath.Join(dir, fmt.Sprintf("m-%d.png", i))}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Render(context.Background(), testDoc(), target)
			assert.NoError(t, err)
		}()
	}

	require.Eventually(t, func() bool { return eng.open.Load() == 2 }, time.Second, time.Millisecond)
	// The other ten stay queued while both sessions are held open.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(2), eng.open.Load())

	close(eng.gate)
	wg.Wait()

	assert.Equal(t, int32(2), eng.maxOpen.Load())
	assert.Zero(t, eng.open.Load())
	assert.True(t, eng.allClosed())
	assert.Len(t, eng.Calls(), 12*6)
}
