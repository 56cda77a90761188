package playback

import (
	"context"
	"testing"
	"time"

	"voicekit/core"
	playbackevents "voicekit/events/playback"
	ttsevents "voicekit/events/tts"
	"voicekit/player"
)

func newTestHandler(t *testing.T, cfg player.Config) (*PlaybackHandler, chan *core.EventPacket, chan *core.EventPacket, chan *core.EventPacket) {
	t.Helper()
	h := NewPlaybackHandler(cfg, nil)
	in := make(chan *core.EventPacket, 100)
	next := make(chan *core.EventPacket, 100)
	top := make(chan *core.EventPacket, 100)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := h.Initialize(in, next, top, ctx); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := h.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { h.Cleanup() })
	return h, in, next, top
}

func testPlayerConfig() player.Config {
	return player.Config{
		InterChunkDelay: 5 * time.Millisecond,
		PlaybackTimeout: 150 * time.Millisecond,
	}
}

func chunkEvent(responseID string, index int) *ttsevents.TTSChunkSynthesizedEvent {
	return &ttsevents.TTSChunkSynthesizedEvent{
		ResponseID: responseID,
		ChunkIndex: index,
		Audio:      []byte("not-real-mp3-data"),
		Text:       "hello",
	}
}

func push(ch chan *core.EventPacket, event core.IEvent) {
	ch <- core.NewEventPacket(event, core.EventRelayDestinationNextService, "test")
}

// waitForChunkStarted drains top-bound packets until a chunk-started event
// appears, skipping the status events interleaved with it.
func waitForChunkStarted(t *testing.T, top chan *core.EventPacket) *playbackevents.PlaybackChunkStartedEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case packet := <-top:
			if started, ok := packet.Event.(*playbackevents.PlaybackChunkStartedEvent); ok {
				return started
			}
		case <-deadline:
			t.Fatal("timed out waiting for chunk-started event")
			return nil
		}
	}
}

func expectNoChunkStarted(t *testing.T, top chan *core.EventPacket, within time.Duration) {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case packet := <-top:
			if started, ok := packet.Event.(*playbackevents.PlaybackChunkStartedEvent); ok {
				t.Fatalf("unexpected chunk start: %s:%d", started.ResponseID, started.ChunkIndex)
			}
		case <-deadline:
			return
		}
	}
}

func waitForIdleStatus(t *testing.T, h *PlaybackHandler) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s := h.player.Status()
		if s.QueueLength == 0 && !s.IsPlaying {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("player never went idle: %+v", h.player.Status())
}

func TestChunksSurfaceInOrderAsClientAcks(t *testing.T) {
	_, in, _, top := newTestHandler(t, testPlayerConfig())

	push(in, chunkEvent("r1", 0))
	push(in, chunkEvent("r1", 1))

	first := waitForChunkStarted(t, top)
	if first.ResponseID != "r1" || first.ChunkIndex != 0 {
		t.Fatalf("first chunk = %s:%d, want r1:0", first.ResponseID, first.ChunkIndex)
	}

	push(in, &playbackevents.PlaybackFinishedEvent{ResponseID: "r1", ChunkIndex: 0})

	second := waitForChunkStarted(t, top)
	if second.ResponseID != "r1" || second.ChunkIndex != 1 {
		t.Fatalf("second chunk = %s:%d, want r1:1", second.ResponseID, second.ChunkIndex)
	}
}

func TestFailedAckSkipsToNextChunk(t *testing.T) {
	_, in, _, top := newTestHandler(t, testPlayerConfig())

	push(in, chunkEvent("r1", 0))
	push(in, chunkEvent("r1", 1))
	waitForChunkStarted(t, top)

	push(in, &playbackevents.PlaybackFinishedEvent{
		ResponseID: "r1", ChunkIndex: 0,
		Failed: true, Error: "decode error",
	})

	next := waitForChunkStarted(t, top)
	if next.ChunkIndex != 1 {
		t.Fatalf("chunk after failure = %d, want 1", next.ChunkIndex)
	}
}

func TestStopEventDiscardsQueuedChunks(t *testing.T) {
	h, in, _, top := newTestHandler(t, testPlayerConfig())

	push(in, chunkEvent("r1", 0))
	push(in, chunkEvent("r1", 1))
	push(in, chunkEvent("r1", 2))
	waitForChunkStarted(t, top)

	push(in, &playbackevents.PlaybackStopEvent{})

	waitForIdleStatus(t, h)
	expectNoChunkStarted(t, top, 50*time.Millisecond)
}

func TestStaleAckIsIgnored(t *testing.T) {
	h, in, _, _ := newTestHandler(t, testPlayerConfig())

	push(in, &playbackevents.PlaybackFinishedEvent{ResponseID: "ghost", ChunkIndex: 7})

	time.Sleep(20 * time.Millisecond)
	s := h.player.Status()
	if s.QueueLength != 0 || s.IsPlaying {
		t.Fatalf("stale ack disturbed the player: %+v", s)
	}
}

func TestUnackedChunkTimesOutAndNextPlays(t *testing.T) {
	_, in, _, top := newTestHandler(t, testPlayerConfig())

	push(in, chunkEvent("r1", 0))
	push(in, chunkEvent("r1", 1))
	waitForChunkStarted(t, top)

	// No ack for chunk 0; the playback timeout abandons it.
	next := waitForChunkStarted(t, top)
	if next.ChunkIndex != 1 {
		t.Fatalf("chunk after timeout = %d, want 1", next.ChunkIndex)
	}
}

func TestUnconsumedEventsAreForwarded(t *testing.T) {
	_, in, next, _ := newTestHandler(t, testPlayerConfig())

	push(in, &core.WarningEvent{Error: "just passing through"})

	select {
	case packet := <-next:
		if _, ok := packet.Event.(*core.WarningEvent); !ok {
			t.Fatalf("forwarded unexpected event: %T", packet.Event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event was not forwarded downstream")
	}
}

func TestStatusEventsReflectPlayerState(t *testing.T) {
	_, in, _, top := newTestHandler(t, testPlayerConfig())

	push(in, chunkEvent("r1", 0))

	deadline := time.After(2 * time.Second)
	sawPlaying := false
	for !sawPlaying {
		select {
		case packet := <-top:
			if status, ok := packet.Event.(*playbackevents.PlaybackStatusEvent); ok && status.IsPlaying {
				if status.ActiveChunkID != player.ChunkID("r1", 0) {
					t.Fatalf("active chunk = %q", status.ActiveChunkID)
				}
				sawPlaying = true
			}
		case <-deadline:
			t.Fatal("never saw a playing status event")
		}
	}
}
