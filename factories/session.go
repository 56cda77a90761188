package factories

import (
	"encoding/json"
	"fmt"

	"voicekit/core"
	chathandler "voicekit/handlers/chat"
	playbackhandler "voicekit/handlers/playback"
	stthandler "voicekit/handlers/stt"
	ttshandler "voicekit/handlers/tts"
	"voicekit/player"
	edgetts "voicekit/services/edge/tts"
	groqllm "voicekit/services/groq/llm"
	groqstt "voicekit/services/groq/stt"
)

// SessionSTTConfig bundles STT handler config with primary and optional
// fallback service factory configs.
type SessionSTTConfig struct {
	// HandlerConfig controls handler-level STT behaviour.
	HandlerConfig stthandler.STTConfig `json:"handler"`
	// ServiceConfig selects and configures the primary STT provider.
	// Set exactly one provider field inside STTFactoryConfig.
	ServiceConfig STTFactoryConfig `json:"service"`
	// FallbackServiceConfigs is an ordered list of fallback providers tried if the primary fails.
	FallbackServiceConfigs []STTFactoryConfig `json:"fallbacks,omitempty"`
}

// DefaultSessionSTTConfig returns a SessionSTTConfig with sensible handler defaults.
// Populate ServiceConfig before calling BuildHandler or SessionConfig.BuildHandlers.
func DefaultSessionSTTConfig() SessionSTTConfig {
	return SessionSTTConfig{
		HandlerConfig: stthandler.DefaultConfig(),
	}
}

// BuildHandler constructs an STTHandler with primary and fallback services wired up.
func (c SessionSTTConfig) BuildHandler(logger *core.Logger) (*stthandler.STTHandler, error) {
	primary, err := BuildSTTService(c.ServiceConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("stt primary service: %w", err)
	}
	handler := stthandler.NewSTTHandler(primary, c.HandlerConfig, logger)
	for i, fbCfg := range c.FallbackServiceConfigs {
		fb, err := BuildSTTService(fbCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("stt fallback[%d]: %w", i, err)
		}
		handler.WithBackupService(fb)
	}
	return handler, nil
}

// SessionChatConfig bundles chat handler config with primary and optional
// fallback service factory configs.
type SessionChatConfig struct {
	// HandlerConfig controls handler-level chat behaviour (history window).
	HandlerConfig chathandler.ChatConfig `json:"handler"`
	// ServiceConfig selects and configures the primary chat provider.
	// Set exactly one provider field inside ChatFactoryConfig.
	ServiceConfig ChatFactoryConfig `json:"service"`
	// FallbackServiceConfigs is an ordered list of fallback providers tried if the primary fails.
	FallbackServiceConfigs []ChatFactoryConfig `json:"fallbacks,omitempty"`
}

// DefaultSessionChatConfig returns a SessionChatConfig with sensible handler defaults.
// Populate ServiceConfig before calling BuildHandler or SessionConfig.BuildHandlers.
func DefaultSessionChatConfig() SessionChatConfig {
	return SessionChatConfig{
		HandlerConfig: chathandler.DefaultConfig(),
	}
}

// BuildHandler constructs a ChatHandler with primary and fallback services wired up.
func (c SessionChatConfig) BuildHandler(logger *core.Logger) (*chathandler.ChatHandler, error) {
	primary, err := BuildChatService(c.ServiceConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("chat primary service: %w", err)
	}
	handler := chathandler.NewChatHandler(primary, c.HandlerConfig, logger)
	for i, fbCfg := range c.FallbackServiceConfigs {
		fb, err := BuildChatService(fbCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("chat fallback[%d]: %w", i, err)
		}
		handler.WithBackupService(fb)
	}
	return handler, nil
}

// SessionTTSConfig bundles TTS handler config with primary and optional
// fallback service factory configs.
type SessionTTSConfig struct {
	// HandlerConfig controls handler-level TTS behaviour (auto-TTS, voice, speed).
	HandlerConfig ttshandler.TTSConfig `json:"handler"`
	// ServiceConfig selects and configures the primary TTS provider.
	// Set exactly one provider field inside TTSFactoryConfig.
	ServiceConfig TTSFactoryConfig `json:"service"`
	// FallbackServiceConfigs is an ordered list of fallback providers tried if the primary fails.
	FallbackServiceConfigs []TTSFactoryConfig `json:"fallbacks,omitempty"`
}

// DefaultSessionTTSConfig returns a SessionTTSConfig with sensible handler
// defaults and the Edge synthesizer preconfigured. Edge TTS needs no API
// key, so the default config works as-is.
func DefaultSessionTTSConfig() SessionTTSConfig {
	return SessionTTSConfig{
		HandlerConfig: ttshandler.DefaultConfig(),
		ServiceConfig: TTSFactoryConfig{
			EdgeConfig: &edgetts.EdgeTTSConfig{},
		},
	}
}

// BuildHandler constructs a TTSHandler with primary and fallback services wired up.
func (c SessionTTSConfig) BuildHandler(logger *core.Logger) (*ttshandler.TTSHandler, error) {
	primary, err := BuildTTSService(c.ServiceConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("tts primary service: %w", err)
	}
	handler := ttshandler.NewTTSHandler(primary, c.HandlerConfig, logger)
	for i, fbCfg := range c.FallbackServiceConfigs {
		fb, err := BuildTTSService(fbCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("tts fallback[%d]: %w", i, err)
		}
		handler.WithBackupService(fb)
	}
	return handler, nil
}

// SessionConfig is the top-level configuration for a complete voice chat
// session pipeline. It groups STT, chat, and TTS configs — each with
// primary and fallback services — plus the playback queue config, and
// exposes BuildHandlers to construct all ready-to-wire handlers in a
// single call.
type SessionConfig struct {
	STT    SessionSTTConfig  `json:"stt"`
	Chat   SessionChatConfig `json:"chat"`
	TTS    SessionTTSConfig  `json:"tts"`
	Player player.Config     `json:"player"`
}

// DefaultSessionConfig returns a SessionConfig pre-filled with sensible
// defaults for every component. STT and chat still need provider configs
// (or API key injection) before BuildHandlers.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		STT:    DefaultSessionSTTConfig(),
		Chat:   DefaultSessionChatConfig(),
		TTS:    DefaultSessionTTSConfig(),
		Player: player.DefaultConfig(),
	}
}

// SessionConfigFromJSON parses a JSON blob into a SessionConfig, starting from
// DefaultSessionConfig so that any fields absent from the JSON retain their defaults.
// API keys and other secrets should be injected after loading via env vars rather than
// stored in config files.
func SessionConfigFromJSON(data []byte) (SessionConfig, error) {
	cfg := DefaultSessionConfig()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return SessionConfig{}, fmt.Errorf("session config: %w", err)
	}
	return cfg, nil
}

// APIKeys holds API credentials for the supported service providers.
// Edge TTS is keyless, so only STT and chat providers appear here.
// Pass to SessionConfig.InjectAPIKeys after loading from JSON so that
// secrets are never stored in config files.
type APIKeys struct {
	Groq     string // Used for Groq Whisper STT and Groq chat providers.
	OpenAI   string // Used for the OpenAI chat provider.
	Together string // Used for the Together AI chat provider.
}

// InjectAPIKeys applies API credentials to all configured service providers
// (primary and fallbacks) in the SessionConfig. Keys already present in the
// config are preserved. When no STT or chat provider is configured at all,
// a Groq key selects Groq for both, so a bare default config plus
// GROQ_API_KEY is enough to run.
func (c *SessionConfig) InjectAPIKeys(keys APIKeys) {
	if keys.Groq != "" {
		if c.STT.ServiceConfig == (STTFactoryConfig{}) {
			c.STT.ServiceConfig.GroqConfig = &groqstt.Config{}
		}
		if c.Chat.ServiceConfig == (ChatFactoryConfig{}) {
			c.Chat.ServiceConfig.GroqConfig = &groqllm.Config{}
		}
	}

	injectSTTKeys(&c.STT.ServiceConfig, keys)
	for i := range c.STT.FallbackServiceConfigs {
		injectSTTKeys(&c.STT.FallbackServiceConfigs[i], keys)
	}

	injectChatKeys(&c.Chat.ServiceConfig, keys)
	for i := range c.Chat.FallbackServiceConfigs {
		injectChatKeys(&c.Chat.FallbackServiceConfigs[i], keys)
	}
}

// injectSTTKeys applies the relevant API key to a single STTFactoryConfig.
func injectSTTKeys(cfg *STTFactoryConfig, keys APIKeys) {
	if cfg.GroqConfig != nil && cfg.GroqConfig.APIKey == "" {
		cfg.GroqConfig.APIKey = keys.Groq
	}
}

// injectChatKeys applies the relevant API key to a single ChatFactoryConfig.
func injectChatKeys(cfg *ChatFactoryConfig, keys APIKeys) {
	if cfg.GroqConfig != nil && cfg.GroqConfig.APIKey == "" {
		cfg.GroqConfig.APIKey = keys.Groq
	}
	if cfg.OpenAIConfig != nil && cfg.OpenAIConfig.APIKey == "" {
		cfg.OpenAIConfig.APIKey = keys.OpenAI
	}
	if cfg.TogetherConfig != nil && cfg.TogetherConfig.APIKey == "" {
		cfg.TogetherConfig.APIKey = keys.Together
	}
}

// SessionHandlers holds all constructed handlers ready to be assembled into
// a Runner pipeline.
//
// Pipeline order:
//
//	STT → Chat → TTS → Playback
type SessionHandlers struct {
	STT      *stthandler.STTHandler
	Chat     *chathandler.ChatHandler
	TTS      *ttshandler.TTSHandler
	Playback *playbackhandler.PlaybackHandler
}

// Ordered returns the handlers in pipeline wire order, ready for core.NewRunner.
func (h *SessionHandlers) Ordered() []core.IHandler {
	return []core.IHandler{h.STT, h.Chat, h.TTS, h.Playback}
}

// BuildHandlers constructs all handlers described by the SessionConfig.
// Returns an error if any service factory config is invalid or construction fails.
func (c SessionConfig) BuildHandlers(logger *core.Logger) (*SessionHandlers, error) {
	sttHandler, err := c.STT.BuildHandler(logger)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	chatHandler, err := c.Chat.BuildHandler(logger)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	ttsHandler, err := c.TTS.BuildHandler(logger)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	playbackHandler := playbackhandler.NewPlaybackHandler(c.Player, logger)

	return &SessionHandlers{
		STT:      sttHandler,
		Chat:     chatHandler,
		TTS:      ttsHandler,
		Playback: playbackHandler,
	}, nil
}
