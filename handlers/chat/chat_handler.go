package chat

import (
	"context"
	"strings"
	"sync"

	"voicekit/core"
	"voicekit/events/chat"
	"voicekit/events/stt"
	"voicekit/utils/text"

	"github.com/google/uuid"
)

type ChatService interface {
	core.IService
	RunCompletion(
		llmContext core.LLMContext,
		outChan chan<- string,
		fatalServiceErrorChan chan<- error,
		completionStartChan chan<- struct{},
		completionEndChan chan<- struct{},
	)
}

// ChatHandler owns the session's conversation. It feeds user turns (typed or
// transcribed) to the chat service, re-assembles the streamed reply, and cuts
// it into sentence events as soon as each sentence is complete so synthesis
// can start before the model finishes.
type ChatHandler struct {
	core.BaseHandler
	messageOutChan      chan string
	completionStartChan chan struct{}
	completionEndChan   chan struct{}
	promptChan          chan string
	config              ChatConfig

	mu           sync.Mutex
	conversation core.LLMContext
}

func NewChatHandler(service ChatService, config ChatConfig, logger *core.Logger) *ChatHandler {
	if config.HistoryWindow <= 0 {
		config.HistoryWindow = DefaultConfig().HistoryWindow
	}
	return &ChatHandler{
		BaseHandler: *core.NewBaseHandler(service, nil, nil, logger),
		config:      config,
	}
}

// WithBackupService registers a fallback service used when the primary fails.
// Returns the handler to allow chaining.
func (h *ChatHandler) WithBackupService(service ChatService) *ChatHandler {
	h.BackupServices = append(h.BackupServices, service)
	return h
}

func (h *ChatHandler) Initialize(
	inputChan chan *core.EventPacket,
	outputNextChan chan *core.EventPacket,
	outputTopChan chan *core.EventPacket,
	ctx context.Context,
) error {
	h.messageOutChan = make(chan string, 10)
	h.completionStartChan = make(chan struct{}, 1)
	h.completionEndChan = make(chan struct{}, 1)
	h.promptChan = make(chan string, 4)
	if err := h.BaseHandler.Initialize(inputChan, outputNextChan, outputTopChan, ctx); err != nil {
		return err
	}
	h.BaseHandler.SetHandleEventFunc(h.HandleEvent)
	return nil
}

func (h *ChatHandler) Start() error {
	// Create a goroutine to listen for incoming events and process them.
	go h.eventLoop()
	return nil
}

func (h *ChatHandler) HandleEvent(packet *core.EventPacket) error {
	switch event := packet.Event.(type) {
	case *chat.ChatUserMessageEvent:
		h.enqueuePrompt(event.Text)
		return nil // consumed — do not relay downstream
	case *stt.STTFinalOutputEvent:
		h.enqueuePrompt(event.Text)
		return nil
	default:
	}
	h.SendPacket(packet)
	return nil
}

func (h *ChatHandler) enqueuePrompt(prompt string) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return
	}
	select {
	case h.promptChan <- prompt:
	case <-h.Ctx.Done():
	}
}

// eventLoop serialises all generation state. Prompts that arrive while a
// reply is streaming wait their turn, so chunks of different replies never
// interleave on the shared service channels.
func (h *ChatHandler) eventLoop() {
	var (
		responseID     string
		fullText       string
		sentenceBuffer string
		sentenceIndex  int
		generating     bool
		pending        []string
	)

	startGeneration := func(prompt string) {
		generating = true
		responseID = uuid.New().String()
		fullText = ""
		sentenceBuffer = ""
		sentenceIndex = 0

		h.mu.Lock()
		h.conversation.AddUserMessage(prompt)
		window := h.conversation.Window(h.config.HistoryWindow)
		messages := make([]core.LLMMessage, len(window))
		copy(messages, window)
		h.mu.Unlock()

		h.SendPacket(core.NewEventPacket(
			&chat.ChatResponseStartedEvent{ResponseID: responseID},
			core.EventRelayDestinationNextService,
			"ChatHandler",
		))

		go h.Service.(ChatService).RunCompletion(
			core.LLMContext{Messages: messages},
			h.messageOutChan,
			h.FatalServiceErrorChan,
			h.completionStartChan,
			h.completionEndChan,
		)
	}

	emitSentence := func(sentence string) {
		h.SendPacket(core.NewEventPacket(
			&chat.ChatSentenceEvent{
				ResponseID: responseID,
				Index:      sentenceIndex,
				Text:       sentence,
			},
			core.EventRelayDestinationNextService,
			"ChatHandler",
		))
		sentenceIndex++
	}

	for {
		select {
		case prompt := <-h.promptChan:
			if generating {
				pending = append(pending, prompt)
				continue
			}
			startGeneration(prompt)

		case msg := <-h.messageOutChan:
			fullText += msg
			sentenceBuffer += msg
			for {
				sentence, rest, ok := text.ExtractSentence(sentenceBuffer)
				if !ok {
					break
				}
				emitSentence(sentence)
				sentenceBuffer = rest
			}

		case <-h.completionStartChan:
			// The service accepted the request; nothing to do until text lands.

		case <-h.completionEndChan:
			if leftover, ok := text.Flush(sentenceBuffer); ok {
				emitSentence(leftover)
			}
			sentenceBuffer = ""

			if strings.TrimSpace(fullText) == "" {
				h.SendPacket(core.NewEventPacket(
					&chat.ChatFailedEvent{Error: "the assistant did not produce a reply, please try again"},
					core.EventRelayDestinationTopService,
					"ChatHandler",
				))
			} else {
				h.mu.Lock()
				h.conversation.AddAssistantMessage(fullText)
				h.mu.Unlock()

				// Top-bound so the session can deliver the reply text; the
				// runner echo carries it on through the chain.
				h.SendPacket(core.NewEventPacket(
					&chat.ChatResponseCompletedEvent{ResponseID: responseID, FullText: fullText},
					core.EventRelayDestinationTopService,
					"ChatHandler",
				))
			}

			generating = false
			if len(pending) > 0 {
				next := pending[0]
				pending = pending[1:]
				startGeneration(next)
			}

		case <-h.Ctx.Done():
			return
		}
	}
}

// Reset clears the conversation history alongside the service state.
func (h *ChatHandler) Reset() error {
	h.mu.Lock()
	h.conversation.Clear()
	h.mu.Unlock()
	return h.BaseHandler.Reset()
}
