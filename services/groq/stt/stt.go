package stt

import (
	"bytes"
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"

	"voicekit/core"
	"voicekit/utils/audio"

	"github.com/sashabaranov/go-openai"
)

const (
	// DefaultBaseURL targets Groq's OpenAI-compatible API surface.
	DefaultBaseURL = "https://api.groq.com/openai/v1"
	// DefaultModel is Groq's fastest Whisper variant.
	DefaultModel = "whisper-large-v3-turbo"

	// ModelWhisperLargeV3 trades speed for accuracy.
	ModelWhisperLargeV3 = "whisper-large-v3"
	// ModelDistilWhisperEN is the distilled English-only variant.
	ModelDistilWhisperEN = "distil-whisper-large-v3-en"

	// DefaultMaxUploadBytes mirrors the provider's 25MB file limit.
	DefaultMaxUploadBytes = 25 * 1024 * 1024
)

// SupportedFormats lists the container formats the provider accepts.
var SupportedFormats = []string{"wav", "mp3", "m4a", "flac", "ogg", "webm"}

// mockResponses feed development setups that have no API key. The same
// payload always maps to the same line so tests stay deterministic.
var mockResponses = []string{
	"Hello, this is a test transcription.",
	"The quick brown fox jumps over the lazy dog.",
	"Testing speech to text functionality.",
	"This is a mock response for audio transcription.",
	"Voice recognition is working in test mode.",
}

// GroqSTTService transcribes audio through Groq's Whisper endpoint. Without
// an API key it serves deterministic mock transcriptions instead of failing,
// so the rest of the pipeline stays exercisable in development.
type GroqSTTService struct {
	client         *openai.Client
	logger         *core.Logger
	apiKey         string
	baseURL        string
	model          string
	language       string
	maxUploadBytes int

	isInitialized bool
	mu            sync.RWMutex
}

// Config holds the configuration for the Groq transcription service.
type Config struct {
	APIKey         string `json:"api_key"`
	BaseURL        string `json:"base_url,omitempty"`
	Model          string `json:"model,omitempty"`
	Language       string `json:"language,omitempty"`
	MaxUploadBytes int    `json:"max_upload_bytes,omitempty"`
}

func NewGroqSTTService(config Config, logger *core.Logger) *GroqSTTService {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if logger == nil {
		logger = core.GetLogger()
	}
	return &GroqSTTService{
		logger:         logger.With(map[string]any{"service": "groq_stt"}),
		apiKey:         config.APIKey,
		baseURL:        config.BaseURL,
		model:          config.Model,
		language:       config.Language,
		maxUploadBytes: config.MaxUploadBytes,
	}
}

func (s *GroqSTTService) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.apiKey == "" {
		s.logger.Warn("no API key configured, serving mock transcriptions")
	} else {
		clientConfig := openai.DefaultConfig(s.apiKey)
		clientConfig.BaseURL = s.baseURL
		s.client = openai.NewClientWithConfig(clientConfig)
		s.logger.Info("groq whisper service initialized", "model", s.model)
	}

	s.isInitialized = true
	return nil
}

func (s *GroqSTTService) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.client = nil
	s.isInitialized = false
	return nil
}

func (s *GroqSTTService) Reset() error {
	return nil
}

// IsConfigured reports whether real transcription is available.
func (s *GroqSTTService) IsConfigured() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client != nil
}

// Model reports the configured Whisper model.
func (s *GroqSTTService) Model() string {
	return s.model
}

// MaxUploadBytes reports the provider upload limit.
func (s *GroqSTTService) MaxUploadBytes() int {
	return s.maxUploadBytes
}

// FormatSupported reports whether the provider accepts the container format.
func FormatSupported(format string) bool {
	for _, f := range SupportedFormats {
		if f == format {
			return true
		}
	}
	return false
}

// Transcribe converts an audio payload to text. format may be empty, in
// which case it is sniffed from the payload. language may be empty for
// auto-detection.
func (s *GroqSTTService) Transcribe(ctx context.Context, audioData []byte, format, language string) (string, error) {
	s.mu.RLock()
	if !s.isInitialized {
		s.mu.RUnlock()
		return "", fmt.Errorf("groq stt service not initialized")
	}
	client := s.client
	s.mu.RUnlock()

	if err := audio.ValidateSize(audioData, s.maxUploadBytes); err != nil {
		return "", err
	}

	if format == "" {
		format = audio.DetectFormat(audioData, "")
	}
	if format == "" {
		return "", fmt.Errorf("could not determine audio format")
	}
	if !FormatSupported(format) {
		return "", fmt.Errorf("unsupported audio format %q (supported: %s)", format, strings.Join(SupportedFormats, ", "))
	}

	if client == nil {
		text := mockTranscription(audioData)
		s.logger.Info("using mock transcription", "bytes", len(audioData), "format", format)
		return text, nil
	}

	if language == "" {
		language = s.language
	}

	req := openai.AudioRequest{
		Model:    s.model,
		FilePath: "audio." + format,
		Reader:   bytes.NewReader(audioData),
		Language: language,
		Format:   openai.AudioResponseFormatText,
	}

	resp, err := client.CreateTranscription(ctx, req)
	if err != nil {
		return "", fmt.Errorf("transcription request failed: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", fmt.Errorf("transcription returned empty text")
	}
	return text, nil
}

// mockTranscription maps a payload to one of the canned responses. FNV keeps
// the selection stable for identical payloads.
func mockTranscription(audioData []byte) string {
	h := fnv.New32a()
	h.Write(audioData)
	return mockResponses[int(h.Sum32())%len(mockResponses)]
}
