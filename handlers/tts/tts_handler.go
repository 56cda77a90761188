package tts

import (
	"context"
	"sync"

	"voicekit/core"
	"voicekit/events/chat"
	"voicekit/events/playback"
	"voicekit/events/tts"
	"voicekit/utils/text"
)

type TTSService interface {
	core.IService
	Synthesize(ctx context.Context, text string, voice string, speed float64) ([]byte, error)
	ResolveVoice(voice string) string
	MaxInputLength() int
}

// sentenceJob is one sentence awaiting synthesis. Voice and speed are
// snapshotted at enqueue time so a settings change mid-stream does not switch
// voices inside a reply.
type sentenceJob struct {
	responseID string
	index      int
	text       string
	voice      string
	speed      float64
}

// TTSHandler synthesizes reply sentences as they stream out of the chat
// handler. A single worker drains the sentence queue, so audio chunks are
// emitted strictly in sentence order even though each synthesis is a separate
// network round trip. A failed sentence is reported and skipped; the rest of
// the reply still gets spoken.
type TTSHandler struct {
	core.BaseHandler
	sentenceChan chan sentenceJob

	mu      sync.RWMutex
	autoTTS bool
	voice   string
	speed   float64
}

func NewTTSHandler(service TTSService, config TTSConfig, logger *core.Logger) *TTSHandler {
	if config.Speed == 0 {
		config.Speed = DefaultConfig().Speed
	}
	return &TTSHandler{
		BaseHandler: *core.NewBaseHandler(service, nil, nil, logger),
		autoTTS:     config.AutoTTS,
		voice:       config.Voice,
		speed:       config.Speed,
	}
}

// WithBackupService registers a fallback service used when the primary fails.
// Returns the handler to allow chaining.
func (h *TTSHandler) WithBackupService(service TTSService) *TTSHandler {
	h.BackupServices = append(h.BackupServices, service)
	return h
}

func (h *TTSHandler) Initialize(
	inputChan chan *core.EventPacket,
	outputNextChan chan *core.EventPacket,
	outputTopChan chan *core.EventPacket,
	ctx context.Context,
) error {
	h.sentenceChan = make(chan sentenceJob, 32)
	if err := h.BaseHandler.Initialize(inputChan, outputNextChan, outputTopChan, ctx); err != nil {
		return err
	}
	h.BaseHandler.SetHandleEventFunc(h.HandleEvent)
	return nil
}

func (h *TTSHandler) Start() error {
	go h.synthesisLoop()
	return nil
}

func (h *TTSHandler) HandleEvent(packet *core.EventPacket) error {
	switch event := packet.Event.(type) {
	case *chat.ChatSentenceEvent:
		h.enqueueSentence(event)
		return nil // consumed — playback gets the synthesized chunk instead
	case *tts.VoiceSettingsUpdatedEvent:
		h.mu.Lock()
		h.autoTTS = event.AutoTTS
		if event.Voice != "" {
			h.voice = event.Voice
		}
		if event.Speed > 0 {
			h.speed = event.Speed
		}
		h.mu.Unlock()
		return nil
	case *playback.PlaybackStopEvent:
		// Stop means the user is done listening to this reply; sentences still
		// waiting for synthesis are discarded along with the playback queue.
		h.drainPending()
	default:
	}
	h.SendPacket(packet)
	return nil
}

func (h *TTSHandler) drainPending() {
	for {
		select {
		case <-h.sentenceChan:
		default:
			return
		}
	}
}

func (h *TTSHandler) enqueueSentence(event *chat.ChatSentenceEvent) {
	h.mu.RLock()
	autoTTS, voice, speed := h.autoTTS, h.voice, h.speed
	h.mu.RUnlock()

	if !autoTTS {
		return
	}

	job := sentenceJob{
		responseID: event.ResponseID,
		index:      event.Index,
		text:       event.Text,
		voice:      voice,
		speed:      speed,
	}
	select {
	case h.sentenceChan <- job:
	case <-h.Ctx.Done():
	}
}

func (h *TTSHandler) synthesisLoop() {
	lastResponseID := ""
	for {
		select {
		case job := <-h.sentenceChan:
			if job.responseID != lastResponseID {
				lastResponseID = job.responseID
				h.SendPacket(core.NewEventPacket(
					&tts.TTSGeneratingEvent{ResponseID: job.responseID},
					core.EventRelayDestinationTopService,
					"TTSHandler",
				))
			}
			h.synthesize(job)
		case <-h.Ctx.Done():
			return
		}
	}
}

func (h *TTSHandler) synthesize(job sentenceJob) {
	service := h.Service.(TTSService)

	spoken := text.NormalizeForSpeech(job.text)
	if spoken == "" {
		return
	}
	spoken = text.Truncate(spoken, service.MaxInputLength())
	voice := service.ResolveVoice(job.voice)

	audio, err := service.Synthesize(h.Ctx, spoken, voice, job.speed)
	if err != nil {
		h.Logger.Error("sentence synthesis failed",
			"response_id", job.responseID, "chunk_index", job.index, "error", err.Error())
		h.SendPacket(core.NewEventPacket(
			&tts.TTSFailedEvent{ResponseID: job.responseID, Text: job.text, Error: err.Error()},
			core.EventRelayDestinationTopService,
			"TTSHandler",
		))
		return
	}

	h.SendPacket(core.NewEventPacket(
		&tts.TTSChunkSynthesizedEvent{
			ResponseID: job.responseID,
			ChunkIndex: job.index,
			Audio:      audio,
			Text:       job.text,
			Voice:      voice,
		},
		core.EventRelayDestinationNextService,
		"TTSHandler",
	))
}
