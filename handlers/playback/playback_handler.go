package playback

import (
	"context"
	"errors"
	"sync"
	"time"

	"voicekit/core"
	"voicekit/events/playback"
	"voicekit/events/tts"
	"voicekit/player"
	"voicekit/utils/audio"
)

// noopService satisfies core.IService; the handler owns a player, not a
// remote service.
type noopService struct{}

func (s *noopService) Initialize(_ context.Context) error { return nil }
func (s *noopService) Cleanup() error                     { return nil }
func (s *noopService) Reset() error                       { return nil }

// PlaybackHandler owns the session's sequential chunk player. Synthesized
// chunks are enqueued in arrival order; when the player activates a chunk the
// handler surfaces it to the session, which ships the audio to the browser.
// The browser's end-of-media ack completes the chunk; clients that never ack
// are covered by an estimated-duration fallback and finally by the player's
// playback timeout.
type PlaybackHandler struct {
	core.BaseHandler
	player *player.Player

	mu        sync.Mutex
	resources map[string]*playbackResource
}

func NewPlaybackHandler(config player.Config, logger *core.Logger) *PlaybackHandler {
	h := &PlaybackHandler{
		BaseHandler: *core.NewBaseHandler(&noopService{}, nil, nil, logger),
		resources:   make(map[string]*playbackResource),
	}
	h.player = player.NewPlayer(h.acquireResource, config, logger)
	return h
}

func (h *PlaybackHandler) Initialize(
	inputChan chan *core.EventPacket,
	outputNextChan chan *core.EventPacket,
	outputTopChan chan *core.EventPacket,
	ctx context.Context,
) error {
	if err := h.BaseHandler.Initialize(inputChan, outputNextChan, outputTopChan, ctx); err != nil {
		return err
	}
	h.player.OnStatusChange = h.publishStatus
	return nil
}

func (h *PlaybackHandler) Start() error {
	go h.eventLoop()
	return nil
}

func (h *PlaybackHandler) eventLoop() {
	for {
		select {
		case <-h.Ctx.Done():
			return
		case packet := <-h.InputChan:
			if packet == nil {
				continue
			}
			h.HandleEvent(packet)
		}
	}
}

func (h *PlaybackHandler) HandleEvent(packet *core.EventPacket) error {
	switch event := packet.Event.(type) {
	case *tts.TTSChunkSynthesizedEvent:
		h.player.Enqueue(event.Audio, event.Text, event.ResponseID, event.ChunkIndex)
		return nil // consumed — the chunk surfaces again when the player activates it

	case *playback.PlaybackFinishedEvent:
		h.handleFinished(event)
		return nil

	case *playback.PlaybackStopEvent:
		h.player.Stop()
		return nil

	default:
	}
	h.SendPacket(packet)
	return nil
}

// handleFinished routes a client ack to the resource currently waiting on it.
// Acks for chunks that already completed, failed or were stopped are ignored.
func (h *PlaybackHandler) handleFinished(event *playback.PlaybackFinishedEvent) {
	id := player.ChunkID(event.ResponseID, event.ChunkIndex)

	h.mu.Lock()
	resource := h.resources[id]
	h.mu.Unlock()

	if resource == nil {
		h.Logger.Debug("ignoring stale playback ack", "chunk_id", id)
		return
	}

	if event.Failed {
		detail := event.Error
		if detail == "" {
			detail = "client reported playback failure"
		}
		resource.finish(errors.New(detail))
		return
	}
	resource.finish(nil)
}

func (h *PlaybackHandler) publishStatus(status player.Status) {
	h.SendPacket(core.NewEventPacket(
		&playback.PlaybackStatusEvent{
			QueueLength:   status.QueueLength,
			IsPlaying:     status.IsPlaying,
			ActiveChunkID: status.ActiveChunkID,
		},
		core.EventRelayDestinationTopService,
		"PlaybackHandler",
	))
}

func (h *PlaybackHandler) acquireResource(chunk *player.Chunk) (player.Resource, error) {
	return &playbackResource{handler: h, chunk: chunk}, nil
}

func (h *PlaybackHandler) registerResource(id string, r *playbackResource) {
	h.mu.Lock()
	h.resources[id] = r
	h.mu.Unlock()
}

func (h *PlaybackHandler) unregisterResource(id string, r *playbackResource) {
	h.mu.Lock()
	if h.resources[id] == r {
		delete(h.resources, id)
	}
	h.mu.Unlock()
}

func (h *PlaybackHandler) Cleanup() error {
	h.player.Stop()
	return h.BaseHandler.Cleanup()
}

func (h *PlaybackHandler) Reset() error {
	h.player.Stop()
	return h.BaseHandler.Reset()
}

// ackGrace pads the estimated chunk duration before the no-ack fallback
// fires, leaving room for network delivery and decode start.
const ackGrace = 2 * time.Second

// playbackResource renders one chunk by shipping it to the browser and
// waiting for the playback_finished ack.
type playbackResource struct {
	handler *PlaybackHandler
	chunk   *player.Chunk

	mu         sync.Mutex
	done       bool
	onComplete func()
	onError    func(err error)
	fallback   *time.Timer
}

func (r *playbackResource) Play(onComplete func(), onError func(err error)) error {
	r.mu.Lock()
	r.onComplete = onComplete
	r.onError = onError
	r.mu.Unlock()

	r.handler.registerResource(r.chunk.ID, r)

	r.handler.SendPacket(core.NewEventPacket(
		&playback.PlaybackChunkStartedEvent{
			ResponseID: r.chunk.ResponseID,
			ChunkIndex: r.chunk.ChunkIndex,
			Audio:      r.chunk.Audio,
			Text:       r.chunk.Text,
		},
		core.EventRelayDestinationTopService,
		"PlaybackHandler",
	))

	// Clients that do not send acks still advance once the chunk should have
	// finished. Unknown formats skip the fallback; the player's own timeout
	// covers them.
	if estimate, err := audio.EstimateMP3Duration(r.chunk.Audio); err == nil && estimate > 0 {
		r.mu.Lock()
		if !r.done {
			r.fallback = time.AfterFunc(estimate+ackGrace, func() { r.finish(nil) })
		}
		r.mu.Unlock()
	}

	return nil
}

// finish fires the completion callback exactly once. Later acks, fallback
// fires and releases all collapse into no-ops.
func (r *playbackResource) finish(err error) {
	r.mu.Lock()
	if r.done {
		r.mu.Unlock()
		return
	}
	r.done = true
	onComplete, onError := r.onComplete, r.onError
	if r.fallback != nil {
		r.fallback.Stop()
		r.fallback = nil
	}
	r.mu.Unlock()

	r.handler.unregisterResource(r.chunk.ID, r)

	if err != nil {
		onError(err)
		return
	}
	onComplete()
}

func (r *playbackResource) Release() {
	r.mu.Lock()
	r.done = true
	if r.fallback != nil {
		r.fallback.Stop()
		r.fallback = nil
	}
	r.mu.Unlock()

	r.handler.unregisterResource(r.chunk.ID, r)
}
