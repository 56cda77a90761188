package stt

type STTConfig struct {
	DefaultLanguage string // Language hint passed to the transcription API when the client does not set one.
}

func DefaultConfig() STTConfig {
	return STTConfig{
		DefaultLanguage: "en",
	}
}
