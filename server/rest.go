package server

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"voicekit/core"
	"voicekit/protocol"
	edgetts "voicekit/services/edge/tts"
	groqstt "voicekit/services/groq/stt"
	"voicekit/utils/audio"
	"voicekit/utils/text"

	"github.com/bytedance/sonic"
)

const (
	// maxMessageLength caps a single chat message; maxTextLength caps
	// synthesis input.
	maxMessageLength = 5000
	maxTextLength    = 10000
	maxHistoryTurns  = 50

	multipartMemory   = 8 << 20
	healthTTSTimeout  = 5 * time.Second
	minSynthesisSpeed = 0.5
	maxSynthesisSpeed = 2.0
)

// handleTranscribe converts an uploaded recording to text.
func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	maxUpload := s.restSTT.MaxUploadBytes()
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxUpload)+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid multipart form: %v", err))
		return
	}

	file, header, err := r.FormFile("audio_file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "audio_file is required")
		return
	}
	defer file.Close()

	language := r.FormValue("language")
	if language == "" {
		language = "en-US"
	}

	data, format, errDetail := readAudioUpload(file, header, maxUpload)
	if errDetail != "" {
		writeError(w, http.StatusBadRequest, errDetail)
		return
	}

	transcribed, err := s.restSTT.Transcribe(r.Context(), data, format, normalizeLanguage(language))
	if err != nil {
		s.metrics.RecordTranscription(false)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("transcription error: %v", err))
		return
	}
	s.metrics.RecordTranscription(true)

	writeJSON(w, http.StatusOK, protocol.TranscriptionResponse{
		TranscribedText: transcribed,
		ModelUsed:       s.restSTT.Model(),
		Language:        language,
	})
}

// readAudioUpload pulls the uploaded payload into memory and validates its
// size and container format. A non-empty errDetail is a client error.
func readAudioUpload(file multipart.File, header *multipart.FileHeader, maxUpload int) (data []byte, format, errDetail string) {
	filename := ""
	if header != nil {
		filename = header.Filename
	}

	data, err := io.ReadAll(io.LimitReader(file, int64(maxUpload)+1))
	if err != nil {
		return nil, "", fmt.Sprintf("could not read audio_file: %v", err)
	}
	if err := audio.ValidateSize(data, maxUpload); err != nil {
		return nil, "", err.Error()
	}

	format = audio.DetectFormat(data, filename)
	if format == "" {
		return nil, "", "could not determine audio format"
	}
	if !groqstt.FormatSupported(format) {
		return nil, "", fmt.Sprintf("unsupported audio format %q (supported: %s)",
			format, strings.Join(groqstt.SupportedFormats, ", "))
	}
	return data, format, ""
}

// handleSynthesize converts text to speech in one round trip.
func (s *Server) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read request body")
		return
	}
	var req protocol.SynthesisRequest
	if err := sonic.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	input, err := text.Sanitize(req.Text, s.restTTS.MaxInputLength())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	speed, errDetail := validateSpeed(req.Speed)
	if errDetail != "" {
		writeError(w, http.StatusBadRequest, errDetail)
		return
	}

	voice := s.restTTS.ResolveVoice(req.Voice)
	audioData, err := s.restTTS.Synthesize(r.Context(), input, voice, speed)
	if err != nil {
		s.metrics.RecordTTSChunk(false)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("speech synthesis error: %v", err))
		return
	}
	s.metrics.RecordTTSChunk(true)

	writeJSON(w, http.StatusOK, protocol.SynthesisResponse{
		AudioData: base64.StdEncoding.EncodeToString(audioData),
		Filename:  "response.mp3",
		Format:    "mp3",
		SizeBytes: len(audioData),
		VoiceUsed: voice,
	})
}

// handleConversation runs the full exchange in one request: transcribe the
// uploaded audio (or take the text field), generate a reply, synthesize it.
func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	maxUpload := s.restSTT.MaxUploadBytes()
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxUpload)+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid multipart form: %v", err))
		return
	}

	speed, errDetail := parseSpeedField(r.FormValue("speed"))
	if errDetail != "" {
		writeError(w, http.StatusBadRequest, errDetail)
		return
	}
	voice := r.FormValue("voice")
	language := r.FormValue("language")
	if language == "" {
		language = "en"
	}

	var transcribed, userInput string
	if file, header, err := r.FormFile("audio_file"); err == nil {
		defer file.Close()

		data, format, errDetail := readAudioUpload(file, header, maxUpload)
		if errDetail != "" {
			writeError(w, http.StatusBadRequest, errDetail)
			return
		}

		transcribed, err = s.restSTT.Transcribe(r.Context(), data, format, normalizeLanguage(language))
		if err != nil {
			s.metrics.RecordTranscription(false)
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("transcription error: %v", err))
			return
		}
		s.metrics.RecordTranscription(true)
		userInput = transcribed
	} else if input := r.FormValue("text"); input != "" {
		userInput, err = text.Sanitize(input, maxTextLength)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	} else {
		writeError(w, http.StatusBadRequest, "either audio_file or text must be provided")
		return
	}

	reply, err := s.runChatOnce(r.Context(), userInput, nil)
	if err != nil {
		s.metrics.RecordChatCompletion(false)
		writeError(w, chatErrorStatus(err), fmt.Sprintf("voice conversation error: %v", err))
		return
	}
	s.metrics.RecordChatCompletion(true)

	spoken := text.Truncate(text.NormalizeForSpeech(reply), s.restTTS.MaxInputLength())
	resolvedVoice := s.restTTS.ResolveVoice(voice)
	audioData, err := s.restTTS.Synthesize(r.Context(), spoken, resolvedVoice, speed)
	if err != nil {
		s.metrics.RecordTTSChunk(false)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("speech synthesis error: %v", err))
		return
	}
	s.metrics.RecordTTSChunk(true)

	writeJSON(w, http.StatusOK, protocol.ConversationResponse{
		TranscribedText: transcribed,
		AIResponse:      reply,
		AudioData:       base64.StdEncoding.EncodeToString(audioData),
		Filename:        "conversation_response.mp3",
		VoiceUsed:       resolvedVoice,
	})
}

// handleChatText answers a typed message, optionally seeded with prior turns.
func (s *Server) handleChatText(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read request body")
		return
	}
	var req protocol.ChatRequest
	if err := sonic.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	message, err := text.Sanitize(req.Message, maxMessageLength)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if errDetail := validateHistory(req.ConversationHistory); errDetail != "" {
		writeError(w, http.StatusBadRequest, errDetail)
		return
	}

	reply, err := s.runChatOnce(r.Context(), message, req.ConversationHistory)
	if err != nil {
		s.metrics.RecordChatCompletion(false)
		writeError(w, chatErrorStatus(err), fmt.Sprintf("chat processing error: %v", err))
		return
	}
	s.metrics.RecordChatCompletion(true)

	writeJSON(w, http.StatusOK, protocol.ChatResponse{
		Response:  reply,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// handleVoices lists the synthesis catalog.
func (s *Server) handleVoices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.voiceCatalog())
}

func (s *Server) voiceCatalog() protocol.VoiceCatalog {
	return protocol.VoiceCatalog{
		Provider:         "edge",
		DefaultVoice:     s.restTTS.ResolveVoice(""),
		AllVoices:        edgetts.AllVoices(),
		VoicesByCategory: edgetts.VoicesByCategory(),
		Recommendations:  edgetts.VoiceRecommendations(),
	}
}

// handleModelsInfo describes the configured models and limits.
func (s *Server) handleModelsInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	maxUpload := s.restSTT.MaxUploadBytes()
	sttInfo := map[string]any{
		"provider":          "Groq",
		"model":             s.restSTT.Model(),
		"supported_formats": groqstt.SupportedFormats,
		"max_file_size_mb":  float64(maxUpload) / (1 << 20),
		"mock_mode":         !s.restSTT.IsConfigured(),
	}

	writeJSON(w, http.StatusOK, protocol.ModelsInfoResponse{
		STTModel:              sttInfo,
		TTSModel:              s.restTTS.ModelInfo(),
		SupportedAudioFormats: groqstt.SupportedFormats,
		MaxFileSizeMB:         float64(maxUpload) / (1 << 20),
	})
}

// handleVoiceHealth probes the voice services. The TTS check performs a real
// synthesis, so it reflects the provider being reachable, not just our state.
func (s *Server) handleVoiceHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	sttStatus := "available"
	if !s.restSTT.IsConfigured() {
		sttStatus = "mock"
	}

	ttsStatus := "available"
	ctx, cancel := context.WithTimeout(r.Context(), healthTTSTimeout)
	defer cancel()
	if _, err := s.restTTS.Synthesize(ctx, "Test", "", 1.0); err != nil {
		s.logger.Warn("tts health probe failed", "error", err.Error())
		ttsStatus = "unavailable"
	}

	chatModel := "not_configured"
	if s.restChat != nil {
		chatModel = s.restChat.Model()
	}

	writeJSON(w, http.StatusOK, protocol.HealthResponse{
		Status: "healthy",
		Services: map[string]string{
			"speech_to_text": sttStatus,
			"text_to_speech": ttsStatus,
		},
		Models: map[string]string{
			"stt":  s.restSTT.Model(),
			"tts":  "edge",
			"chat": chatModel,
		},
	})
}

// handleHealth reports overall API readiness, keyed on provider credentials.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if s.restChat == nil && !s.restSTT.IsConfigured() {
		writeJSON(w, http.StatusServiceUnavailable, protocol.HealthResponse{
			Status: "unhealthy",
			Error:  "no Groq API key configured",
			Services: map[string]string{
				"api":              "running",
				"groq_integration": "not_configured",
			},
		})
		return
	}

	writeJSON(w, http.StatusOK, protocol.HealthResponse{
		Status: "healthy",
		Services: map[string]string{
			"api":              "running",
			"groq_integration": "configured",
		},
	})
}

// handleWSStatus reports WebSocket availability and the live session count.
func (s *Server) handleWSStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	writeJSON(w, http.StatusOK, protocol.WSStatusResponse{
		ActiveConnections:     s.sessionCount(),
		WebSocketEnabled:      true,
		SupportedMessageTypes: protocol.ClientMessageTypes(),
	})
}

var errChatNotConfigured = errors.New("chat service is not configured")

func chatErrorStatus(err error) int {
	if errors.Is(err, errChatNotConfigured) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// runChatOnce drives a single completion over the streaming service API and
// returns the assembled reply.
func (s *Server) runChatOnce(ctx context.Context, message string, history []protocol.ChatTurn) (string, error) {
	if s.restChat == nil {
		return "", errChatNotConfigured
	}

	var conversation core.LLMContext
	for _, turn := range history {
		conversation.Messages = append(conversation.Messages, core.LLMMessage{
			Role:    core.LLMMessageRole(turn.Role),
			Message: turn.Content,
		})
	}
	conversation.AddUserMessage(message)

	outChan := make(chan string, 32)
	errChan := make(chan error, 1)
	startChan := make(chan struct{}, 1)
	endChan := make(chan struct{}, 1)

	go s.restChat.RunCompletion(conversation, outChan, errChan, startChan, endChan)

	var reply strings.Builder
collect:
	for {
		select {
		case chunk := <-outChan:
			reply.WriteString(chunk)
		case err := <-errChan:
			return "", err
		case <-endChan:
			break collect
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	// The worker has exited; drain stragglers and surface a queued error.
	for {
		select {
		case chunk := <-outChan:
			reply.WriteString(chunk)
		case err := <-errChan:
			return "", err
		default:
			out := strings.TrimSpace(reply.String())
			if out == "" {
				return "", errors.New("model returned an empty reply")
			}
			return out, nil
		}
	}
}

func validateHistory(history []protocol.ChatTurn) string {
	if len(history) > maxHistoryTurns {
		return fmt.Sprintf("conversation history too long: %d turns (max: %d)", len(history), maxHistoryTurns)
	}
	for i, turn := range history {
		switch turn.Role {
		case "user", "assistant", "system":
		default:
			return fmt.Sprintf("invalid role %q at history position %d", turn.Role, i)
		}
		if strings.TrimSpace(turn.Content) == "" {
			return fmt.Sprintf("empty content at history position %d", i)
		}
	}
	return ""
}

// validateSpeed applies the default and enforces the synthesis range.
func validateSpeed(speed float64) (float64, string) {
	if speed == 0 {
		return 1.0, ""
	}
	if speed < minSynthesisSpeed || speed > maxSynthesisSpeed {
		return 0, fmt.Sprintf("speed must be between %.1f and %.1f, got %g", minSynthesisSpeed, maxSynthesisSpeed, speed)
	}
	return speed, ""
}

func parseSpeedField(raw string) (float64, string) {
	if raw == "" {
		return 1.0, ""
	}
	speed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Sprintf("invalid speed %q", raw)
	}
	return validateSpeed(speed)
}

// normalizeLanguage reduces locale codes like "en-US" to the base language
// tag Whisper expects.
func normalizeLanguage(language string) string {
	language = strings.TrimSpace(language)
	if i := strings.IndexByte(language, '-'); i > 0 {
		language = language[:i]
	}
	return strings.ToLower(language)
}
