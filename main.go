package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"voicekit/core"
	"voicekit/factories"
	"voicekit/metrics"
	"voicekit/server"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(".env.local"); err != nil {
		core.GetLogger().With(map[string]any{"error": err}).Warn("No .env.local file found or failed to load")
	}

	logger := core.NewDevelopmentLogger(getEnv("LOG_LEVEL", "INFO"))
	core.SetLogger(logger)

	settings, apiKeys := loadSettingsFromEnv()
	settings.Session.InjectAPIKeys(apiKeys)

	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		settings.Server.Addr = addr
	}
	if logDir := os.Getenv("LOG_DIR"); logDir != "" {
		settings.Server.LogDir = logDir
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.NewServer(settings, metrics.NewMetrics(), logger)
	if err := srv.Run(ctx); err != nil {
		logger.With(map[string]any{"error": err}).Fatal("server exited")
	}
	logger.Info("Shutting down...")
}

// loadSettingsFromEnv loads SettingsConfig from SETTINGS_JSON_B64 or a
// settings file, and API keys from env vars.
func loadSettingsFromEnv() (factories.SettingsConfig, factories.APIKeys) {
	var settings factories.SettingsConfig
	var err error

	if b64 := os.Getenv("SETTINGS_JSON_B64"); b64 != "" {
		settings, err = factories.SettingsConfigFromBase64(b64)
		if err != nil {
			core.GetLogger().With(map[string]any{"error": err}).Error("failed to parse SETTINGS_JSON_B64, using defaults")
			settings = factories.DefaultSettingsConfig()
		} else {
			core.GetLogger().Info("loaded settings from SETTINGS_JSON_B64")
		}
	} else {
		settingsPath := getEnv("SETTINGS_PATH", "./settings.json")
		settings, err = factories.SettingsConfigFromFile(settingsPath)
		if err != nil {
			core.GetLogger().With(map[string]any{"path": settingsPath, "error": err}).Warn("failed to load settings, using defaults")
			settings = factories.DefaultSettingsConfig()
		}
	}

	apiKeys := factories.APIKeys{
		Groq:     getEnv("GROQ_API_KEY", ""),
		OpenAI:   getEnv("OPENAI_API_KEY", ""),
		Together: getEnv("TOGETHER_API_KEY", ""),
	}

	return settings, apiKeys
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}
