package protocol

// REST bodies for the HTTP API. The WebSocket wire types live in
// messages.go; these cover the request/response pairs of /api/voice
// and /api/chat.

// TranscriptionResponse answers POST /api/voice/transcribe.
type TranscriptionResponse struct {
	TranscribedText string `json:"transcribed_text"`
	ModelUsed       string `json:"model_used"`
	Language        string `json:"language"`
}

// SynthesisRequest is the body of POST /api/voice/synthesize.
type SynthesisRequest struct {
	Text  string  `json:"text"`
	Voice string  `json:"voice,omitempty"`
	Speed float64 `json:"speed,omitempty"`
}

// SynthesisResponse answers POST /api/voice/synthesize. AudioData is
// base64-encoded.
type SynthesisResponse struct {
	AudioData string `json:"audio_data"`
	Filename  string `json:"filename"`
	Format    string `json:"format"`
	SizeBytes int    `json:"size_bytes"`
	VoiceUsed string `json:"voice_used"`
}

// ConversationResponse answers POST /api/voice/conversation, the
// one-shot transcribe -> chat -> synthesize round trip.
type ConversationResponse struct {
	TranscribedText string `json:"transcribed_text,omitempty"`
	AIResponse      string `json:"ai_response"`
	AudioData       string `json:"audio_data"`
	Filename        string `json:"filename"`
	VoiceUsed       string `json:"voice_used"`
}

// ChatTurn is one prior message in a chat request's history.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of POST /api/chat/text.
type ChatRequest struct {
	Message             string     `json:"message"`
	ConversationHistory []ChatTurn `json:"conversation_history,omitempty"`
}

// ChatResponse answers POST /api/chat/text.
type ChatResponse struct {
	Response  string `json:"response"`
	Timestamp string `json:"timestamp,omitempty"`
}

// ModelsInfoResponse answers GET /api/voice/models-info.
type ModelsInfoResponse struct {
	STTModel              map[string]any `json:"stt_model"`
	TTSModel              map[string]any `json:"tts_model"`
	SupportedAudioFormats []string       `json:"supported_audio_formats"`
	MaxFileSizeMB         float64        `json:"max_file_size_mb"`
}

// HealthResponse answers GET /health and GET /api/voice/health.
type HealthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services,omitempty"`
	Models   map[string]string `json:"models,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// WSStatusResponse answers GET /ws/status.
type WSStatusResponse struct {
	ActiveConnections     int           `json:"active_connections"`
	WebSocketEnabled      bool          `json:"websocket_enabled"`
	SupportedMessageTypes []MessageType `json:"supported_message_types"`
}

// ErrorResponse is the body of non-2xx REST answers.
type ErrorResponse struct {
	Detail string `json:"detail"`
}
