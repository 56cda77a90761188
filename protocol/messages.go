package protocol

import "time"

// MessageType enumerates all WebSocket message types.
type MessageType string

const (
	// Client -> server
	MsgTextMessage      MessageType = "text_message"
	MsgAudioData        MessageType = "audio_data"
	MsgStartRecording   MessageType = "start_recording"
	MsgStopRecording    MessageType = "stop_recording"
	MsgPlaybackFinished MessageType = "playback_finished"
	MsgStopPlayback     MessageType = "stop_playback"
	MsgGetVoices        MessageType = "get_voices"
	MsgPing             MessageType = "ping"

	// Server -> client
	MsgConnectionEstablished MessageType = "connection_established"
	MsgMessageReceived       MessageType = "message_received"
	MsgRecordingStarted      MessageType = "recording_started"
	MsgRecordingStopped      MessageType = "recording_stopped"
	MsgProcessingAudio       MessageType = "processing_audio"
	MsgTranscriptionResult   MessageType = "transcription_result"
	MsgAIResponse            MessageType = "ai_response"
	MsgGeneratingTTS         MessageType = "generating_tts"
	MsgTTSAudio              MessageType = "tts_audio"
	MsgTTSError              MessageType = "tts_error"
	MsgPlaybackStatus        MessageType = "playback_status"
	MsgVoicesList            MessageType = "voices_list"
	MsgPong                  MessageType = "pong"
	MsgError                 MessageType = "error"
)

// ClientMessageTypes lists the message types the server accepts, in the
// order the status endpoint reports them.
func ClientMessageTypes() []MessageType {
	return []MessageType{
		MsgTextMessage,
		MsgAudioData,
		MsgStartRecording,
		MsgStopRecording,
		MsgPlaybackFinished,
		MsgStopPlayback,
		MsgGetVoices,
		MsgPing,
	}
}

// Header carries the fields common to every message. Messages are flat
// JSON objects, so Header is embedded rather than wrapped.
type Header struct {
	Type      MessageType `json:"type"`
	Timestamp string      `json:"timestamp,omitempty"`
}

// NewHeader stamps a header with the current time in RFC 3339.
func NewHeader(msgType MessageType) Header {
	return Header{
		Type:      msgType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// VoiceSettings selects how replies are spoken. A zero Speed or empty
// Voice means "keep the current setting".
type VoiceSettings struct {
	AutoTTS bool    `json:"auto_tts"`
	Voice   string  `json:"voice,omitempty"`
	Speed   float64 `json:"speed,omitempty"`
}

// --- Client -> server messages ---

// TextMessage carries a typed chat prompt.
type TextMessage struct {
	Header
	Message       string         `json:"message"`
	VoiceSettings *VoiceSettings `json:"voice_settings,omitempty"`
}

// AudioData carries base64-encoded audio. While a recording is open it
// is appended to the take; otherwise it is transcribed as a complete
// utterance.
type AudioData struct {
	Header
	AudioData     string         `json:"audio_data"`
	Format        string         `json:"format,omitempty"`
	Encoding      string         `json:"encoding,omitempty"`
	SampleRate    int            `json:"sample_rate,omitempty"`
	Language      string         `json:"language,omitempty"`
	VoiceSettings *VoiceSettings `json:"voice_settings,omitempty"`
}

// StartRecording opens a recording take.
type StartRecording struct {
	Header
}

// StopRecording closes the take and submits it for transcription.
type StopRecording struct {
	Header
	Language      string         `json:"language,omitempty"`
	VoiceSettings *VoiceSettings `json:"voice_settings,omitempty"`
}

// PlaybackFinished acknowledges that the browser finished (or failed)
// playing one synthesized chunk.
type PlaybackFinished struct {
	Header
	ResponseID string `json:"response_id"`
	ChunkIndex int    `json:"chunk_index"`
	Failed     bool   `json:"failed,omitempty"`
	Error      string `json:"error,omitempty"`
}

// StopPlayback discards everything queued for the speaker.
type StopPlayback struct {
	Header
}

// GetVoices requests the synthesizer's voice catalog.
type GetVoices struct {
	Header
}

// Ping is a client keepalive.
type Ping struct {
	Header
}

// --- Server -> client messages ---

// ConnectionEstablished is the first frame after an upgrade.
type ConnectionEstablished struct {
	Header
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

// MessageReceived acknowledges a prompt before the reply is generated.
type MessageReceived struct {
	Header
	Message string `json:"message"`
}

// RecordingStarted confirms a take is open.
type RecordingStarted struct {
	Header
	Message string `json:"message"`
}

// RecordingStopped confirms the take was closed.
type RecordingStopped struct {
	Header
	Message string `json:"message"`
}

// ProcessingAudio reports that transcription is underway.
type ProcessingAudio struct {
	Header
	Message string `json:"message"`
}

// TranscriptionResult carries the recognized text.
type TranscriptionResult struct {
	Header
	TranscribedText string `json:"transcribed_text"`
}

// AIResponse carries the assistant's full reply text.
type AIResponse struct {
	Header
	Message string `json:"message"`
}

// GeneratingTTS reports that synthesis started for a reply.
type GeneratingTTS struct {
	Header
	Message string `json:"message"`
}

// TTSAudio carries one synthesized chunk, base64-encoded. ChunkIndex
// orders chunks within their response; the client plays them in the
// order received and acks each with playback_finished.
type TTSAudio struct {
	Header
	AudioData  string `json:"audio_data"`
	Text       string `json:"text"`
	ResponseID string `json:"response_id"`
	ChunkIndex int    `json:"chunk_index"`
}

// TTSError reports a synthesis failure for one chunk.
type TTSError struct {
	Header
	Message string `json:"message"`
}

// PlaybackStatus mirrors the server-side playback queue.
type PlaybackStatus struct {
	Header
	QueueLength   int    `json:"queue_length"`
	IsPlaying     bool   `json:"is_playing"`
	ActiveChunkID string `json:"active_chunk_id,omitempty"`
}

// VoicesList answers get_voices.
type VoicesList struct {
	Header
	VoicesData VoiceCatalog `json:"voices_data"`
}

// Pong answers ping.
type Pong struct {
	Header
}

// ErrorMessage reports a failure the client should surface.
type ErrorMessage struct {
	Header
	Message string `json:"message"`
}

// VoiceCatalog describes the synthesizer's voice inventory.
type VoiceCatalog struct {
	Provider         string              `json:"provider"`
	DefaultVoice     string              `json:"default_voice"`
	AllVoices        []string            `json:"all_voices"`
	VoicesByCategory map[string][]string `json:"voices_by_category,omitempty"`
	Recommendations  map[string][]string `json:"recommendations,omitempty"`
}
