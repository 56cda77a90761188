package tts

type TTSConfig struct {
	AutoTTS bool    `json:"auto_tts"` // Synthesize replies without being asked; clients can toggle this per message.
	Voice   string  `json:"voice"`    // Initial voice until the client picks one.
	Speed   float64 `json:"speed"`    // Initial speaking speed multiplier.
}

// DefaultConfig returns a TTSConfig with sensible defaults.
func DefaultConfig() TTSConfig {
	return TTSConfig{
		AutoTTS: true,
		Speed:   1.0,
	}
}
