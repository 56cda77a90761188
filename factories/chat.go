package factories

import (
	"errors"

	"voicekit/core"
	chathandler "voicekit/handlers/chat"
	groqllm "voicekit/services/groq/llm"
)

// ChatFactoryConfig holds provider-specific configs for chat service
// construction. Set exactly one provider config; the rest should be left
// nil. OpenAI and Together speak the OpenAI-compatible protocol and are
// served by the same client with a different base URL.
type ChatFactoryConfig struct {
	GroqConfig     *groqllm.Config `json:"groq,omitempty"`
	OpenAIConfig   *groqllm.Config `json:"openai,omitempty"`
	TogetherConfig *groqllm.Config `json:"together,omitempty"`
}

// Default base URLs for OpenAI-compatible providers.
const (
	openaiBaseURL   = "https://api.openai.com/v1"
	togetherBaseURL = "https://api.together.xyz/v1"
)

// BuildChatService constructs a ChatService from the given factory config.
// Exactly one provider config must be non-nil.
func BuildChatService(config ChatFactoryConfig, logger *core.Logger) (chathandler.ChatService, error) {
	if config.GroqConfig != nil {
		return groqllm.NewGroqLLMService(*config.GroqConfig, logger), nil
	}
	if config.OpenAIConfig != nil {
		return buildOpenAICompatible(*config.OpenAIConfig, openaiBaseURL, "gpt-4o-mini", logger), nil
	}
	if config.TogetherConfig != nil {
		return buildOpenAICompatible(*config.TogetherConfig, togetherBaseURL, "meta-llama/Llama-3.3-70B-Instruct-Turbo", logger), nil
	}
	return nil, errors.New("ChatFactoryConfig: no provider config specified")
}

// buildOpenAICompatible creates an OpenAI-compatible chat service, applying
// the provider's base URL and default model when the config leaves them
// empty.
func buildOpenAICompatible(cfg groqllm.Config, defaultBaseURL, defaultModel string, logger *core.Logger) *groqllm.GroqLLMService {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	return groqllm.NewGroqLLMService(cfg, logger)
}
