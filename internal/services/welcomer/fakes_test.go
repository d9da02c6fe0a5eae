package welcomer

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/NordCoder/Welcomer/internal/domain/membership"
)

var testPNG = func() []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, membership.CardWidth, membership.CardHeight))); err != nil {
		panic(err)
	}
	return buf.Bytes()
}()

type fakeSession struct {
	eng  *fakeEngine
	html string

	closed atomic.Bool
}

func (s *fakeSession) Load(html string) error {
	s.eng.record("load")
	if s.eng.failAt == "load" {
		return errors.New("page crashed")
	}
	s.html = html
	return nil
}

func (s *fakeSession) WaitImages(timeout time.Duration) (bool, error) {
	s.eng.record("wait")
	s.eng.mu.Lock()
	s.eng.waitTimeout = timeout
	s.eng.mu.Unlock()
	if s.eng.failAt == "settle" {
		return false, errors.New("runtime evaluate failed")
	}
	return !s.eng.imagesSlow, nil
}

func (s *fakeSession) SetViewport(width, height int) error {
	s.eng.record("viewport")
	if s.eng.failAt == "viewport" {
		return errors.New("emulation refused")
	}
	s.eng.mu.Lock()
	s.eng.viewport = [2]int{width, height}
	s.eng.mu.Unlock()
	return nil
}

// Screenshot appends the page source after the PNG stream so tests can tell
// which document produced a file; png.DecodeConfig ignores trailing bytes.
func (s *fakeSession) Screenshot() ([]byte, error) {
	s.eng.record("capture")
	switch s.eng.failAt {
	case "capture":
		return nil, errors.New("target closed")
	case "garbage":
		return []byte("not an image"), nil
	}
	out := append([]byte{}, testPNG...)
	return append(out, []byte(s.html)...), nil
}

func (s *fakeSession) Close() error {
	s.closed.Store(true)
	s.eng.open.Add(-1)
	s.eng.record("close")
	return nil
}

type fakeEngine struct {
	failAt     string
	imagesSlow bool

	// holdUntil makes NewSession wait until that many sessions have been open
	// at once. The hold lifts for good the first time that happens.
	holdUntil int32
	// gate, when set, blocks every NewSession until it is closed.
	gate chan struct{}

	holdOnce sync.Once
	held     chan struct{}

	mu          sync.Mutex
	calls       []string
	sessions    []*fakeSession
	viewport    [2]int
	waitTimeout time.Duration

	open    atomic.Int32
	maxOpen atomic.Int32
}

func (e *fakeEngine) record(call string) {
	e.mu.Lock()
	e.calls = append(e.calls, call)
	e.mu.Unlock()
}

func (e *fakeEngine) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

func (e *fakeEngine) NewSession(ctx context.Context) (membership.Session, error) {
	e.record("launch")
	if e.failAt == "launch" {
		return nil, errors.New("chrome not found")
	}
	n := e.open.Add(1)
	for {
		m := e.maxOpen.Load()
		if n <= m || e.maxOpen.CompareAndSwap(m, n) {
			break
		}
	}
	if e.holdUntil > 0 {
		lifted := e.holdLatch()
		if n >= e.holdUntil {
			e.holdOnce.Do(func() { close(lifted) })
		}
		if err := e.block(ctx, lifted); err != nil {
			return nil, err
		}
	}
	if e.gate != nil {
		if err := e.block(ctx, e.gate); err != nil {
			return nil, err
		}
	}
	s := &fakeSession{eng: e}
	e.mu.Lock()
	e.sessions = append(e.sessions, s)
	e.mu.Unlock()
	return s, nil
}

func (e *fakeEngine) holdLatch() chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.held == nil {
		e.held = make(chan struct{})
	}
	return e.held
}

func (e *fakeEngine) block(ctx context.Context, until <-chan struct{}) error {
	select {
	case <-until:
		return nil
	case <-ctx.Done():
		e.open.Add(-1)
		return ctx.Err()
	}
}

func (e *fakeEngine) allClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, s := range e.sessions {
		if !s.closed.Load() {
			return false
		}
	}
	return true
}

type sentCard struct {
	ChannelID  string
	Msg        membership.Message
	Attachment string
	Path       string
	Content    []byte
}

type fakeChannel struct {
	id      string
	sendErr []error

	mu   sync.Mutex
	sent []sentCard
	hits int
}

func (c *fakeChannel) ID() string { return c.id }

func (c *fakeChannel) Send(_ context.Context, msg membership.Message, attachmentName, filePath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hits++
	if len(c.sendErr) > 0 {
		err := c.sendErr[0]
		c.sendErr = c.sendErr[1:]
		if err != nil {
			return err
		}
	}
	content, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	c.sent = append(c.sent, sentCard{ChannelID: c.id, Msg: msg, Attachment: attachmentName, Path: filePath, Content: content})
	return nil
}

func (c *fakeChannel) Sent() []sentCard {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sentCard(nil), c.sent...)
}

type fakeResolver struct {
	channels map[string]*fakeChannel
}

func (r *fakeResolver) Resolve(_ context.Context, channelID string) (membership.Channel, error) {
	ch, ok := r.channels[channelID]
	if !ok {
		return nil, membership.ErrChannelNotFound
	}
	return ch, nil
}

// countingAssets wraps the real store and counts calls per artifact path.
type countingAssets struct {
	*AssetStore
	failRelease error

	mu       sync.Mutex
	reserved map[string]int
	released map[string]int
}

func newCountingAssets(store *AssetStore) *countingAssets {
	return &countingAssets{AssetStore: store, reserved: map[string]int{}, released: map[string]int{}}
}

func (c *countingAssets) Reserve(memberID string) (membership.Artifact, error) {
	a, err := c.AssetStore.Reserve(memberID)
	if err == nil {
		c.mu.Lock()
		c.reserved[a.Path]++
		c.mu.Unlock()
	}
	return a, err
}

func (c *countingAssets) Release(a membership.Artifact) error {
	c.mu.Lock()
	c.released[a.Path]++
	c.mu.Unlock()
	err := c.AssetStore.Release(a)
	if c.failRelease != nil {
		return c.failRelease
	}
	return err
}

func (c *countingAssets) counts() (reserved, released map[string]int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	reserved, released = map[string]int{}, map[string]int{}
	for k, v := range c.reserved {
		reserved[k] = v
	}
	for k, v := range c.released {
		released[k] = v
	}
	return reserved, released
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type memStore struct {
	mu   sync.Mutex
	recs []membership.Delivery
	err  error
}

func (s *memStore) Record(_ context.Context, d *membership.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, *d)
	return s.err
}

func (s *memStore) All() []membership.Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]membership.Delivery(nil), s.recs...)
}
