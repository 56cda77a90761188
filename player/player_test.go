package player

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeResource records the callbacks handed to Play so tests can complete or
// fail playback at a chosen moment, like an audio element firing its events.
type fakeResource struct {
	chunk      *Chunk
	mu         sync.Mutex
	released   bool
	onComplete func()
	onError    func(err error)
	owner      *fakePlayback
}

func (r *fakeResource) Play(onComplete func(), onError func(err error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onComplete = onComplete
	r.onError = onError
	return nil
}

func (r *fakeResource) Release() {
	r.mu.Lock()
	already := r.released
	r.released = true
	r.mu.Unlock()
	if !already {
		atomic.AddInt32(&r.owner.live, -1)
	}
}

func (r *fakeResource) complete() {
	r.mu.Lock()
	cb := r.onComplete
	r.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func (r *fakeResource) fail(err error) {
	r.mu.Lock()
	cb := r.onError
	r.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}

// fakePlayback hands out fakeResources in acquisition order and tracks how
// many are live at once.
type fakePlayback struct {
	mu       sync.Mutex
	started  chan *fakeResource
	acquired []*fakeResource
	live     int32
	maxLive  int32
}

func newFakePlayback() *fakePlayback {
	return &fakePlayback{started: make(chan *fakeResource, 32)}
}

func (f *fakePlayback) factory(chunk *Chunk) (Resource, error) {
	r := &fakeResource{chunk: chunk, owner: f}
	f.mu.Lock()
	f.acquired = append(f.acquired, r)
	f.mu.Unlock()
	live := atomic.AddInt32(&f.live, 1)
	for {
		max := atomic.LoadInt32(&f.maxLive)
		if live <= max || atomic.CompareAndSwapInt32(&f.maxLive, max, live) {
			break
		}
	}
	f.started <- r
	return r, nil
}

func (f *fakePlayback) playedOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	order := make([]string, len(f.acquired))
	for i, r := range f.acquired {
		order[i] = r.chunk.ID
	}
	return order
}

func testConfig() Config {
	return Config{
		InterChunkDelay: 5 * time.Millisecond,   // Reduced for testing
		PlaybackTimeout: 150 * time.Millisecond, // Reduced for testing
	}
}

func waitForStart(t *testing.T, f *fakePlayback) *fakeResource {
	t.Helper()
	select {
	case r := <-f.started:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for playback to start")
		return nil
	}
}

func expectNoStart(t *testing.T, f *fakePlayback, within time.Duration) {
	t.Helper()
	select {
	case r := <-f.started:
		t.Fatalf("unexpected playback start for chunk %s", r.chunk.ID)
	case <-time.After(within):
	}
}

func waitForIdle(t *testing.T, p *Player) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s := p.Status()
		if s.QueueLength == 0 && !s.IsPlaying {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("player never returned to idle: %+v", p.Status())
}

func TestEnqueueReturnsChunkIdentity(t *testing.T) {
	f := newFakePlayback()
	p := NewPlayer(f.factory, testConfig(), nil)
	defer p.Stop()

	id := p.Enqueue([]byte{1, 2, 3}, "hello", "r1", 0)
	if id != "r1:0" {
		t.Errorf("Enqueue returned %q, want %q", id, "r1:0")
	}
}

func TestEnqueueRejectsInvalidChunks(t *testing.T) {
	f := newFakePlayback()
	p := NewPlayer(f.factory, testConfig(), nil)
	defer p.Stop()

	if id := p.Enqueue(nil, "empty", "r1", 0); id != "" {
		t.Errorf("empty payload should be dropped, got id %q", id)
	}
	if id := p.Enqueue([]byte{1}, "no response", "", 0); id != "" {
		t.Errorf("missing response id should be dropped, got id %q", id)
	}
	expectNoStart(t, f, 50*time.Millisecond)

	s := p.Status()
	if s.QueueLength != 0 || s.IsPlaying {
		t.Errorf("invalid chunks must not change state: %+v", s)
	}
}

func TestChunksPlayInArrivalOrder(t *testing.T) {
	f := newFakePlayback()
	p := NewPlayer(f.factory, testConfig(), nil)
	defer p.Stop()

	// Arrival order deliberately interleaves response ids and indices; the
	// player must never reorder.
	p.Enqueue([]byte{1}, "a", "r1", 0)
	p.Enqueue([]byte{2}, "b", "r2", 5)
	p.Enqueue([]byte{3}, "c", "r1", 1)

	// Complete each chunk after a different delay to show order does not
	// depend on completion timing.
	delays := []time.Duration{20 * time.Millisecond, time.Millisecond, 10 * time.Millisecond}
	for _, d := range delays {
		r := waitForStart(t, f)
		time.Sleep(d)
		r.complete()
	}
	waitForIdle(t, p)

	want := []string{"r1:0", "r2:5", "r1:1"}
	got := f.playedOrder()
	if len(got) != len(want) {
		t.Fatalf("played %d chunks, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: played %s, want %s", i, got[i], want[i])
		}
	}
}

func TestSingleResponsePlaysIndicesInOrder(t *testing.T) {
	f := newFakePlayback()
	p := NewPlayer(f.factory, testConfig(), nil)
	defer p.Stop()

	for i := 0; i < 3; i++ {
		p.Enqueue([]byte{byte(i + 1)}, "part", "r1", i)
	}
	for i := 0; i < 3; i++ {
		waitForStart(t, f).complete()
	}
	waitForIdle(t, p)

	want := []string{"r1:0", "r1:1", "r1:2"}
	got := f.playedOrder()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("played order %v, want %v", got, want)
		}
	}

	s := p.Status()
	if s.QueueLength != 0 || s.IsPlaying || s.ActiveChunkID != "" {
		t.Errorf("final status not idle: %+v", s)
	}
}

func TestStatusWhilePlaying(t *testing.T) {
	f := newFakePlayback()
	p := NewPlayer(f.factory, testConfig(), nil)
	defer p.Stop()

	p.Enqueue([]byte{1}, "a", "r1", 0)
	p.Enqueue([]byte{2}, "b", "r1", 1)
	r := waitForStart(t, f)

	s := p.Status()
	if !s.IsPlaying {
		t.Error("expected IsPlaying while a chunk is active")
	}
	if s.ActiveChunkID != "r1:0" {
		t.Errorf("active chunk %q, want r1:0", s.ActiveChunkID)
	}
	if s.QueueLength != 1 {
		t.Errorf("queue length %d, want 1", s.QueueLength)
	}

	r.complete()
	waitForStart(t, f).complete()
	waitForIdle(t, p)
}

func TestStopClearsEverything(t *testing.T) {
	f := newFakePlayback()
	p := NewPlayer(f.factory, testConfig(), nil)

	// Stop on an empty idle player.
	p.Stop()
	s := p.Status()
	if s.QueueLength != 0 || s.IsPlaying {
		t.Errorf("stop on idle player: %+v", s)
	}

	// Stop mid-playback with chunks queued behind the active one.
	p.Enqueue([]byte{1}, "a", "r1", 0)
	p.Enqueue([]byte{2}, "b", "r1", 1)
	r := waitForStart(t, f)
	p.Stop()

	s = p.Status()
	if s.QueueLength != 0 || s.IsPlaying || s.ActiveChunkID != "" {
		t.Errorf("stop mid-playback: %+v", s)
	}
	r.mu.Lock()
	released := r.released
	r.mu.Unlock()
	if !released {
		t.Error("stop must release the active playback resource")
	}

	// The player must accept new enqueues immediately after a stop.
	p.Enqueue([]byte{3}, "c", "r2", 0)
	waitForStart(t, f).complete()
	waitForIdle(t, p)
}

func TestStopIsIdempotent(t *testing.T) {
	f := newFakePlayback()
	p := NewPlayer(f.factory, testConfig(), nil)

	p.Enqueue([]byte{1}, "a", "r1", 0)
	waitForStart(t, f)

	p.Stop()
	first := p.Status()
	p.Stop()
	second := p.Status()

	if first != second {
		t.Errorf("second stop changed status: %+v vs %+v", first, second)
	}
	if second.QueueLength != 0 || second.IsPlaying {
		t.Errorf("status after double stop: %+v", second)
	}
}

func TestStopSuppressesLateCallbacks(t *testing.T) {
	f := newFakePlayback()
	p := NewPlayer(f.factory, testConfig(), nil)

	p.Enqueue([]byte{1}, "a", "r1", 0)
	r := waitForStart(t, f)
	p.Stop()

	// Callbacks from the stopped playback must be no-ops.
	r.complete()
	r.fail(errors.New("late error"))

	expectNoStart(t, f, 50*time.Millisecond)
	s := p.Status()
	if s.QueueLength != 0 || s.IsPlaying {
		t.Errorf("late callbacks changed state: %+v", s)
	}
	if r.chunk.Played {
		t.Error("chunk completed after stop must not be marked played")
	}
}

func TestFailedChunkIsSkipped(t *testing.T) {
	cfg := testConfig()
	f := newFakePlayback()
	p := NewPlayer(f.factory, cfg, nil)
	defer p.Stop()

	p.Enqueue([]byte{1}, "bad", "r1", 0)
	p.Enqueue([]byte{2}, "good", "r1", 1)

	first := waitForStart(t, f)
	failedAt := time.Now()
	first.fail(errors.New("decode failure"))

	second := waitForStart(t, f)
	elapsed := time.Since(failedAt)
	if elapsed < cfg.InterChunkDelay {
		t.Errorf("next chunk started after %v, want at least the %v inter-chunk delay", elapsed, cfg.InterChunkDelay)
	}
	if elapsed > time.Second {
		t.Errorf("next chunk took %v to start, queue stalled", elapsed)
	}

	if first.chunk.Played {
		t.Error("failed chunk must not be marked played")
	}
	first.mu.Lock()
	released := first.released
	first.mu.Unlock()
	if !released {
		t.Error("failed chunk's resource must be released")
	}

	second.complete()
	waitForIdle(t, p)
	if !second.chunk.Played {
		t.Error("successful chunk should be marked played")
	}
}

func TestStalledChunkTimesOut(t *testing.T) {
	cfg := testConfig()
	f := newFakePlayback()
	p := NewPlayer(f.factory, cfg, nil)
	defer p.Stop()

	p.Enqueue([]byte{1}, "stalled", "r1", 0)
	p.Enqueue([]byte{2}, "next", "r1", 1)

	stalled := waitForStart(t, f)
	// Never complete or fail the first chunk; the watchdog must reclaim it.
	second := waitForStart(t, f)

	if stalled.chunk.Played {
		t.Error("timed-out chunk must not be marked played")
	}
	stalled.mu.Lock()
	released := stalled.released
	stalled.mu.Unlock()
	if !released {
		t.Error("timed-out chunk's resource must be released")
	}
	if max := atomic.LoadInt32(&f.maxLive); max > 1 {
		t.Errorf("%d playback resources were live concurrently, want at most 1", max)
	}

	second.complete()
	waitForIdle(t, p)
}

func TestCompletionAfterTimeoutIsNoOp(t *testing.T) {
	cfg := testConfig()
	f := newFakePlayback()
	p := NewPlayer(f.factory, cfg, nil)
	defer p.Stop()

	p.Enqueue([]byte{1}, "slow", "r1", 0)
	slow := waitForStart(t, f)

	// Let the watchdog win the race, then deliver the real completion.
	time.Sleep(cfg.PlaybackTimeout + 50*time.Millisecond)
	slow.complete()

	if slow.chunk.Played {
		t.Error("completion arriving after timeout must not mark the chunk played")
	}
	waitForIdle(t, p)
}

func TestAtMostOneLiveResource(t *testing.T) {
	f := newFakePlayback()
	p := NewPlayer(f.factory, testConfig(), nil)
	defer p.Stop()

	for i := 0; i < 5; i++ {
		p.Enqueue([]byte{byte(i + 1)}, "chunk", "r1", i)
	}
	for i := 0; i < 5; i++ {
		waitForStart(t, f).complete()
	}
	waitForIdle(t, p)

	if max := atomic.LoadInt32(&f.maxLive); max > 1 {
		t.Errorf("%d playback resources were live concurrently, want at most 1", max)
	}
}

func TestEnqueueDuringInterChunkDelay(t *testing.T) {
	f := newFakePlayback()
	p := NewPlayer(f.factory, testConfig(), nil)
	defer p.Stop()

	p.Enqueue([]byte{1}, "a", "r1", 0)
	waitForStart(t, f).complete()

	// The completion schedules the inter-chunk delay; enqueueing inside that
	// window must not start a second concurrent playback.
	p.Enqueue([]byte{2}, "b", "r1", 1)

	waitForStart(t, f).complete()
	waitForIdle(t, p)

	if max := atomic.LoadInt32(&f.maxLive); max > 1 {
		t.Errorf("%d playback resources were live concurrently, want at most 1", max)
	}
	want := []string{"r1:0", "r1:1"}
	got := f.playedOrder()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("played order %v, want %v", got, want)
		}
	}
}

func TestResourceAcquisitionFailureSkipsChunk(t *testing.T) {
	f := newFakePlayback()
	calls := 0
	factory := func(chunk *Chunk) (Resource, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("device busy")
		}
		return f.factory(chunk)
	}
	p := NewPlayer(factory, testConfig(), nil)
	defer p.Stop()

	p.Enqueue([]byte{1}, "a", "r1", 0)
	p.Enqueue([]byte{2}, "b", "r1", 1)

	// First acquisition fails; the player must drop the chunk and carry on.
	r := waitForStart(t, f)
	if r.chunk.ID != "r1:1" {
		t.Errorf("expected second chunk to play after acquisition failure, got %s", r.chunk.ID)
	}
	r.complete()
	waitForIdle(t, p)
}

func TestStatusChangeNotifications(t *testing.T) {
	f := newFakePlayback()
	p := NewPlayer(f.factory, testConfig(), nil)
	defer p.Stop()

	var mu sync.Mutex
	var sawPlaying bool
	p.OnStatusChange = func(s Status) {
		mu.Lock()
		if s.IsPlaying {
			sawPlaying = true
		}
		mu.Unlock()
	}

	p.Enqueue([]byte{1}, "a", "r1", 0)
	waitForStart(t, f).complete()
	waitForIdle(t, p)

	mu.Lock()
	defer mu.Unlock()
	if !sawPlaying {
		t.Error("status observer never saw a playing snapshot")
	}
}
