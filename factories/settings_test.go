package factories

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"

	groqllm "voicekit/services/groq/llm"
	groqstt "voicekit/services/groq/stt"
)

func TestDefaultSettings(t *testing.T) {
	cfg := DefaultSettingsConfig()
	if cfg.Server.Addr != ":8000" {
		t.Errorf("default addr = %q, want :8000", cfg.Server.Addr)
	}
	if cfg.Server.LogDir != "./logs" {
		t.Errorf("default log dir = %q, want ./logs", cfg.Server.LogDir)
	}
	if cfg.Session.Player.InterChunkDelay != 100*time.Millisecond {
		t.Errorf("default inter-chunk delay = %v, want 100ms", cfg.Session.Player.InterChunkDelay)
	}
	if cfg.Session.Player.PlaybackTimeout != 30*time.Second {
		t.Errorf("default playback timeout = %v, want 30s", cfg.Session.Player.PlaybackTimeout)
	}
	if !cfg.Session.TTS.HandlerConfig.AutoTTS {
		t.Error("auto TTS should default to on")
	}
}

func TestSettingsFromJSONKeepsDefaultsForAbsentFields(t *testing.T) {
	cfg, err := SettingsConfigFromJSON([]byte(`{"server":{"addr":":9999"}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Server.Addr != ":9999" {
		t.Errorf("addr = %q, want :9999", cfg.Server.Addr)
	}
	if cfg.Server.LogDir != "./logs" {
		t.Errorf("log dir lost its default: %q", cfg.Server.LogDir)
	}
	if cfg.Session.Player.PlaybackTimeout != 30*time.Second {
		t.Errorf("player timeout lost its default: %v", cfg.Session.Player.PlaybackTimeout)
	}
}

func TestSettingsFromJSONOverridesPlayer(t *testing.T) {
	// Durations are JSON numbers in nanoseconds.
	doc := `{"session":{"player":{"inter_chunk_delay":250000000}}}`
	cfg, err := SettingsConfigFromJSON([]byte(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Session.Player.InterChunkDelay != 250*time.Millisecond {
		t.Errorf("inter-chunk delay = %v, want 250ms", cfg.Session.Player.InterChunkDelay)
	}
}

func TestSettingsFromJSONRejectsMalformed(t *testing.T) {
	if _, err := SettingsConfigFromJSON([]byte(`{"server":`)); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestSettingsFromYAML(t *testing.T) {
	doc := "server:\n  addr: \":7070\"\n  allowed_origins:\n    - https://chat.example.com\n"
	cfg, err := SettingsConfigFromYAML([]byte(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Server.Addr != ":7070" {
		t.Errorf("addr = %q, want :7070", cfg.Server.Addr)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "https://chat.example.com" {
		t.Errorf("allowed origins = %v", cfg.Server.AllowedOrigins)
	}
}

func TestSettingsFromBase64(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte(`{"server":{"addr":":6000"}}`))
	cfg, err := SettingsConfigFromBase64(encoded)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Server.Addr != ":6000" {
		t.Errorf("addr = %q, want :6000", cfg.Server.Addr)
	}

	if _, err := SettingsConfigFromBase64("not-base64!!!"); err == nil {
		t.Error("expected error for invalid base64")
	}
}

func TestSettingsFromFile(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "settings.json")
	if err := os.WriteFile(jsonPath, []byte(`{"server":{"addr":":5001"}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := SettingsConfigFromFile(jsonPath)
	if err != nil {
		t.Fatalf("json file: %v", err)
	}
	if cfg.Server.Addr != ":5001" {
		t.Errorf("json addr = %q, want :5001", cfg.Server.Addr)
	}

	yamlPath := filepath.Join(dir, "settings.yaml")
	if err := os.WriteFile(yamlPath, []byte("server:\n  addr: \":5002\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = SettingsConfigFromFile(yamlPath)
	if err != nil {
		t.Fatalf("yaml file: %v", err)
	}
	if cfg.Server.Addr != ":5002" {
		t.Errorf("yaml addr = %q, want :5002", cfg.Server.Addr)
	}

	if _, err := SettingsConfigFromFile(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestInjectAPIKeysSelectsGroqForBareConfig(t *testing.T) {
	cfg := DefaultSessionConfig()
	cfg.InjectAPIKeys(APIKeys{Groq: "gsk_test"})

	if cfg.STT.ServiceConfig.GroqConfig == nil {
		t.Fatal("Groq key should select the Groq STT provider")
	}
	if cfg.STT.ServiceConfig.GroqConfig.APIKey != "gsk_test" {
		t.Errorf("stt key = %q", cfg.STT.ServiceConfig.GroqConfig.APIKey)
	}
	if cfg.Chat.ServiceConfig.GroqConfig == nil {
		t.Fatal("Groq key should select the Groq chat provider")
	}
	if cfg.Chat.ServiceConfig.GroqConfig.APIKey != "gsk_test" {
		t.Errorf("chat key = %q", cfg.Chat.ServiceConfig.GroqConfig.APIKey)
	}
}

func TestInjectAPIKeysPreservesConfiguredKeys(t *testing.T) {
	cfg := DefaultSessionConfig()
	cfg.STT.ServiceConfig.GroqConfig = &groqstt.Config{APIKey: "configured"}
	cfg.Chat.ServiceConfig.GroqConfig = &groqllm.Config{}
	cfg.Chat.FallbackServiceConfigs = []ChatFactoryConfig{
		{OpenAIConfig: &groqllm.Config{}},
	}

	cfg.InjectAPIKeys(APIKeys{Groq: "gsk_env", OpenAI: "sk_env"})

	if got := cfg.STT.ServiceConfig.GroqConfig.APIKey; got != "configured" {
		t.Errorf("configured key overwritten: %q", got)
	}
	if got := cfg.Chat.ServiceConfig.GroqConfig.APIKey; got != "gsk_env" {
		t.Errorf("chat key = %q, want gsk_env", got)
	}
	if got := cfg.Chat.FallbackServiceConfigs[0].OpenAIConfig.APIKey; got != "sk_env" {
		t.Errorf("fallback key = %q, want sk_env", got)
	}
}

func TestBuildHandlersRequiresProviders(t *testing.T) {
	cfg := DefaultSessionConfig()
	if _, err := cfg.BuildHandlers(nil); err == nil {
		t.Error("expected error when no STT provider is configured")
	}
}

func TestBuildHandlersAssemblesChain(t *testing.T) {
	cfg := DefaultSessionConfig()
	cfg.InjectAPIKeys(APIKeys{Groq: "gsk_test"})

	handlers, err := cfg.BuildHandlers(nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	ordered := handlers.Ordered()
	if len(ordered) != 4 {
		t.Fatalf("chain length = %d, want 4", len(ordered))
	}
	for i, h := range ordered {
		if h == nil {
			t.Errorf("handler %d is nil", i)
		}
	}
}
