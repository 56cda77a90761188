package stt

import (
	"context"
	"strings"

	"voicekit/core"
	"voicekit/events/stt"
)

type ISTTService interface {
	core.IService
	Transcribe(ctx context.Context, audioData []byte, format, language string) (string, error)
	Model() string
}

// STTHandler turns transcribe requests into transcription results. Each
// utterance is one request/response exchange against the service; the handler
// stays free to accept further events while a transcription is in flight.
type STTHandler struct {
	core.BaseHandler
	config STTConfig
}

func NewSTTHandler(service ISTTService, config STTConfig, logger *core.Logger) *STTHandler {
	return &STTHandler{
		BaseHandler: *core.NewBaseHandler(service, nil, nil, logger),
		config:      config,
	}
}

// WithBackupService registers a fallback service used when the primary fails.
// Returns the handler to allow chaining.
func (h *STTHandler) WithBackupService(service ISTTService) *STTHandler {
	h.BackupServices = append(h.BackupServices, service)
	return h
}

func (h *STTHandler) Initialize(
	inputChan chan *core.EventPacket,
	outputNextChan chan *core.EventPacket,
	outputTopChan chan *core.EventPacket,
	ctx context.Context,
) error {
	if err := h.BaseHandler.Initialize(inputChan, outputNextChan, outputTopChan, ctx); err != nil {
		return err
	}
	h.BaseHandler.SetHandleEventFunc(h.HandleEvent)
	return nil
}

func (h *STTHandler) HandleEvent(packet *core.EventPacket) error {
	switch event := packet.Event.(type) {
	case *stt.STTTranscribeRequestEvent:
		h.SendPacket(core.NewEventPacket(
			&stt.STTProcessingEvent{},
			core.EventRelayDestinationTopService,
			"STTHandler",
		))
		go h.transcribe(event)
		return nil // consumed — do not relay downstream
	default:
	}
	h.SendPacket(packet)
	return nil
}

func (h *STTHandler) transcribe(event *stt.STTTranscribeRequestEvent) {
	service := h.Service.(ISTTService)

	language := event.Language
	if language == "" {
		language = h.config.DefaultLanguage
	}

	text, err := service.Transcribe(h.Ctx, event.Audio, event.Format, language)
	if err != nil {
		h.Logger.Error("transcription failed", "error", err.Error())
		h.SendPacket(core.NewEventPacket(
			&stt.STTFailedEvent{Error: err.Error()},
			core.EventRelayDestinationTopService,
			"STTHandler",
		))
		return
	}

	if strings.TrimSpace(text) == "" {
		h.SendPacket(core.NewEventPacket(
			&stt.STTFailedEvent{Error: "could not transcribe audio, please try again"},
			core.EventRelayDestinationTopService,
			"STTHandler",
		))
		return
	}

	// Top-bound so the session can show the transcript; the runner echoes it
	// back through the chain for the chat handler.
	h.SendPacket(core.NewEventPacket(
		&stt.STTFinalOutputEvent{
			Text:     strings.TrimSpace(text),
			Language: language,
			Model:    service.Model(),
		},
		core.EventRelayDestinationTopService,
		"STTHandler",
	))
}
