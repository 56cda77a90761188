package llm

import (
	"context"
	"fmt"
	"sync"

	"voicekit/core"

	"github.com/sashabaranov/go-openai"
)

const (
	// DefaultBaseURL targets Groq's OpenAI-compatible API surface.
	DefaultBaseURL = "https://api.groq.com/openai/v1"
	DefaultModel   = "llama3-8b-8192"

	defaultMaxTokens   = 500
	defaultTemperature = 0.7
	defaultTopP        = 1.0
)

// DefaultSystemPrompt keeps replies short and speakable; most responses end
// up synthesized, so walls of text and markdown are a liability.
const DefaultSystemPrompt = `You are a friendly voice assistant.
Answer exactly what is asked, in two to four conversational sentences that sound natural when spoken aloud.
Avoid markdown, lists, and code blocks unless the user explicitly asks for them.`

// GroqLLMService runs chat completions against Groq's OpenAI-compatible API.
type GroqLLMService struct {
	client       *openai.Client
	logger       *core.Logger
	apiKey       string
	baseURL      string
	model        string
	maxTokens    int
	temperature  float32
	topP         float32
	streaming    bool
	systemPrompt string

	// Streaming management
	activeStreams map[string]*openai.ChatCompletionStream
	streamsMutex  sync.RWMutex
	ctx           context.Context
	cancel        context.CancelFunc

	// Service state
	isInitialized bool
	mu            sync.RWMutex
}

// Config holds the configuration for the Groq chat service.
type Config struct {
	APIKey       string  `json:"api_key"`
	BaseURL      string  `json:"base_url,omitempty"`
	Model        string  `json:"model,omitempty"`
	MaxTokens    int     `json:"max_tokens,omitempty"`
	Temperature  float32 `json:"temperature,omitempty"`
	TopP         float32 `json:"top_p,omitempty"`
	Streaming    bool    `json:"streaming,omitempty"`
	SystemPrompt string  `json:"system_prompt,omitempty"`
}

func NewGroqLLMService(config Config, logger *core.Logger) *GroqLLMService {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = defaultMaxTokens
	}
	if config.Temperature <= 0 {
		config.Temperature = defaultTemperature
	}
	if config.TopP <= 0 {
		config.TopP = defaultTopP
	}
	if config.SystemPrompt == "" {
		config.SystemPrompt = DefaultSystemPrompt
	}
	if logger == nil {
		logger = core.GetLogger()
	}
	return &GroqLLMService{
		logger:        logger.With(map[string]any{"service": "groq_llm"}),
		apiKey:        config.APIKey,
		baseURL:       config.BaseURL,
		model:         config.Model,
		maxTokens:     config.MaxTokens,
		temperature:   config.Temperature,
		topP:          config.TopP,
		streaming:     config.Streaming,
		systemPrompt:  config.SystemPrompt,
		activeStreams: make(map[string]*openai.ChatCompletionStream),
	}
}

// Initialize verifies connectivity by listing models, like a login check.
func (s *GroqLLMService) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.apiKey == "" {
		return fmt.Errorf("groq API key is required")
	}

	// Create context with cancel for managing streams
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.client = s.newClient()

	if _, err := s.client.ListModels(ctx); err != nil {
		return fmt.Errorf("failed to connect to groq: %w", err)
	}

	s.isInitialized = true
	s.logger.Info("groq chat service initialized", "model", s.model)
	return nil
}

func (s *GroqLLMService) newClient() *openai.Client {
	clientConfig := openai.DefaultConfig(s.apiKey)
	clientConfig.BaseURL = s.baseURL
	return openai.NewClientWithConfig(clientConfig)
}

// Cleanup performs cleanup operations
func (s *GroqLLMService) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopAllStreams()

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}

	s.client = nil
	s.isInitialized = false

	return nil
}

// Reset stops all active streams and recreates the client so an in-flight
// completion cannot leak into the next turn.
func (s *GroqLLMService) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopAllStreams()

	if s.cancel != nil {
		s.cancel()
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.client = s.newClient()
	s.activeStreams = make(map[string]*openai.ChatCompletionStream)

	return nil
}

// stopAllStreams stops all active streaming sessions
func (s *GroqLLMService) stopAllStreams() {
	s.streamsMutex.Lock()
	defer s.streamsMutex.Unlock()

	for id, stream := range s.activeStreams {
		if stream != nil {
			stream.Close()
		}
		delete(s.activeStreams, id)
	}
}

// registerStream adds a stream to the active streams map
func (s *GroqLLMService) registerStream(id string, stream *openai.ChatCompletionStream) {
	s.streamsMutex.Lock()
	defer s.streamsMutex.Unlock()
	s.activeStreams[id] = stream
}

// unregisterStream removes a stream from the active streams map
func (s *GroqLLMService) unregisterStream(id string) {
	s.streamsMutex.Lock()
	defer s.streamsMutex.Unlock()
	delete(s.activeStreams, id)
}

// generateStreamID generates a unique ID for a stream
func (s *GroqLLMService) generateStreamID() string {
	return fmt.Sprintf("%p-%d", s, len(s.activeStreams))
}

// RunCompletion generates a reply for the conversation. Text lands on outChan
// chunk by chunk when streaming, or as one piece otherwise. Start and end
// signals are non-blocking so a slow consumer cannot stall the service.
func (s *GroqLLMService) RunCompletion(
	llmContext core.LLMContext,
	outChan chan<- string,
	fatalServiceErrorChan chan<- error,
	completionStartChan chan<- struct{},
	completionEndChan chan<- struct{},
) {
	s.mu.RLock()
	if !s.isInitialized {
		s.mu.RUnlock()
		fatalServiceErrorChan <- fmt.Errorf("groq service not initialized")
		return
	}
	s.mu.RUnlock()

	// Check if reset was called (context cancelled)
	select {
	case <-s.ctx.Done():
		fatalServiceErrorChan <- fmt.Errorf("service was reset during completion")
		return
	default:
	}

	select {
	case completionStartChan <- struct{}{}:
	default:
	}

	defer func() {
		select {
		case completionEndChan <- struct{}{}:
		default:
		}
	}()

	req := openai.ChatCompletionRequest{
		Model:       s.model,
		Messages:    s.buildMessages(llmContext.Messages),
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
		TopP:        s.topP,
		Stream:      s.streaming,
	}

	if s.streaming {
		s.runStreamingCompletion(req, outChan, fatalServiceErrorChan)
	} else {
		s.runNonStreamingCompletion(req, outChan, fatalServiceErrorChan)
	}
}

// runStreamingCompletion handles streaming responses
func (s *GroqLLMService) runStreamingCompletion(
	req openai.ChatCompletionRequest,
	outChan chan<- string,
	fatalServiceErrorChan chan<- error,
) {
	select {
	case <-s.ctx.Done():
		fatalServiceErrorChan <- fmt.Errorf("service was reset during streaming")
		return
	default:
	}

	stream, err := s.client.CreateChatCompletionStream(s.ctx, req)
	if err != nil {
		fatalServiceErrorChan <- fmt.Errorf("failed to create completion stream: %w", err)
		return
	}

	streamID := s.generateStreamID()
	s.registerStream(streamID, stream)
	defer func() {
		s.unregisterStream(streamID)
		stream.Close()
	}()

	for {
		select {
		case <-s.ctx.Done():
			// Service was reset, stop streaming immediately
			return
		default:
		}

		response, err := stream.Recv()
		if err != nil {
			// io.EOF is the normal end of stream; anything else already
			// delivered partial text, so the turn completes with what we have.
			break
		}

		if len(response.Choices) > 0 && response.Choices[0].Delta.Content != "" {
			select {
			case <-s.ctx.Done():
				return
			case outChan <- response.Choices[0].Delta.Content:
			}
		}
	}
}

// runNonStreamingCompletion handles non-streaming responses
func (s *GroqLLMService) runNonStreamingCompletion(
	req openai.ChatCompletionRequest,
	outChan chan<- string,
	fatalServiceErrorChan chan<- error,
) {
	select {
	case <-s.ctx.Done():
		fatalServiceErrorChan <- fmt.Errorf("service was reset during completion")
		return
	default:
	}

	resp, err := s.client.CreateChatCompletion(s.ctx, req)
	if err != nil {
		fatalServiceErrorChan <- fmt.Errorf("failed to create completion: %w", err)
		return
	}

	if len(resp.Choices) > 0 && resp.Choices[0].Message.Content != "" {
		select {
		case <-s.ctx.Done():
		case outChan <- resp.Choices[0].Message.Content:
		}
	}
}

// buildMessages prepends the system prompt and converts the conversation
// window into the wire format.
func (s *GroqLLMService) buildMessages(messages []core.LLMMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages)+1)

	hasSystem := len(messages) > 0 && messages[0].Role == core.LLMMessageRoleSystem
	if !hasSystem && s.systemPrompt != "" {
		out = append(out, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: s.systemPrompt,
		})
	}

	for _, msg := range messages {
		out = append(out, openai.ChatCompletionMessage{
			Role:    convertRole(msg.Role),
			Content: msg.Message,
		})
	}
	return out
}

func convertRole(role core.LLMMessageRole) string {
	switch role {
	case core.LLMMessageRoleAssistant:
		return openai.ChatMessageRoleAssistant
	case core.LLMMessageRoleSystem:
		return openai.ChatMessageRoleSystem
	default:
		return openai.ChatMessageRoleUser
	}
}

// ListModelIDs returns the model identifiers visible to this API key. The
// server's models-info endpoint uses it.
func (s *GroqLLMService) ListModelIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	client := s.client
	initialized := s.isInitialized
	s.mu.RUnlock()

	if !initialized || client == nil {
		return nil, fmt.Errorf("groq service not initialized")
	}

	models, err := client.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	ids := make([]string, 0, len(models.Models))
	for _, m := range models.Models {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// Model reports the configured chat model.
func (s *GroqLLMService) Model() string {
	return s.model
}
