package tts

// VoiceSettingsUpdatedEvent broadcasts the client's current synthesis
// preferences. The TTS handler caches the latest values it sees.
type VoiceSettingsUpdatedEvent struct {
	AutoTTS bool
	Voice   string
	Speed   float64
}

func (e *VoiceSettingsUpdatedEvent) GetId() string {
	return "tts.voice_settings_updated"
}

// TTSGeneratingEvent tells the client synthesis has started for a response.
type TTSGeneratingEvent struct {
	ResponseID string
}

func (e *TTSGeneratingEvent) GetId() string {
	return "tts.generating"
}

// TTSChunkSynthesizedEvent carries one synthesized audio fragment. ChunkIndex
// is the fragment's position within its response, used for display grouping.
type TTSChunkSynthesizedEvent struct {
	ResponseID string
	ChunkIndex int
	Audio      []byte
	Text       string
	Voice      string
}

func (e *TTSChunkSynthesizedEvent) GetId() string {
	return "tts.chunk_synthesized"
}

type TTSFailedEvent struct {
	ResponseID string
	Text       string
	Error      string
}

func (e *TTSFailedEvent) GetId() string {
	return "tts.failed"
}
