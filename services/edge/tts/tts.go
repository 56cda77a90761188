package edge

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
	"voicekit/core"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	defaultBaseURL = "wss://speech.platform.bing.com/consumer/speech/synthesize/readaloud/edge/v1"

	// trustedClientToken is the public token the Edge browser itself uses
	// for the free readaloud endpoint.
	trustedClientToken = "6A5AA1D4EAFF4E9FB37E23D68491D6F4"

	outputFormat = "audio-24khz-48kbitrate-mono-mp3"

	secMSGECVersion = "1-130.0.2849.68"
	userAgent       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36 Edg/130.0.0.0"
	wsOrigin        = "chrome-extension://jdiccldimpdaibmpdkjnbmckianbfold"

	// The Sec-MS-GEC token hashes Windows file time rounded down to a five
	// minute window, so tokens stay valid across clock skew.
	winEpochOffsetSecs = 11644473600
	gecWindowTicks     = 3_000_000_000

	defaultMaxInputLength = 10000
)

// EdgeTTSConfig holds configuration for the Edge TTS service
type EdgeTTSConfig struct {
	BaseURL        string `json:"base_url"`
	DefaultVoice   string `json:"default_voice"`
	MaxInputLength int    `json:"max_input_length"`
}

// EdgeTTS synthesizes speech over the Microsoft Edge readaloud WebSocket API.
// The endpoint is connection-per-utterance: each Synthesize call dials, sends
// the config and SSML messages, and accumulates MP3 frames until turn.end.
type EdgeTTS struct {
	config EdgeTTSConfig
	logger *core.Logger

	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc

	isInitialized bool
}

// speech.config payload
type (
	speechConfigMessage struct {
		Context speechConfigContext `json:"context"`
	}

	speechConfigContext struct {
		Synthesis synthesisConfig `json:"synthesis"`
	}

	synthesisConfig struct {
		Audio audioOutputConfig `json:"audio"`
	}

	audioOutputConfig struct {
		MetadataOptions metadataOptions `json:"metadataoptions"`
		OutputFormat    string          `json:"outputFormat"`
	}

	metadataOptions struct {
		SentenceBoundaryEnabled string `json:"sentenceBoundaryEnabled"`
		WordBoundaryEnabled     string `json:"wordBoundaryEnabled"`
	}
)

// NewEdgeTTS creates a new Edge TTS service with the provided config
func NewEdgeTTS(config EdgeTTSConfig, logger *core.Logger) *EdgeTTS {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.DefaultVoice == "" {
		config.DefaultVoice = DefaultVoice
	}
	if config.MaxInputLength == 0 {
		config.MaxInputLength = defaultMaxInputLength
	}

	if logger == nil {
		logger = core.GetLogger()
	}
	return &EdgeTTS{
		config: config,
		logger: logger,
	}
}

// Initialize initializes the Edge TTS service. The endpoint needs no API key.
func (e *EdgeTTS) Initialize(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.isInitialized {
		return nil
	}

	e.ctx, e.cancel = context.WithCancel(ctx)
	e.isInitialized = true

	return nil
}

// Cleanup performs cleanup of the Edge TTS service
func (e *EdgeTTS) Cleanup() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.isInitialized {
		return nil
	}

	if e.cancel != nil {
		e.cancel()
	}
	e.isInitialized = false
	e.logger.Info("Edge TTS service cleaned up")

	return nil
}

// Reset is a no-op; connections are per-utterance so there is no session
// state to clear.
func (e *EdgeTTS) Reset() error {
	return nil
}

// ModelInfo describes the synthesizer for the models-info endpoint.
func (e *EdgeTTS) ModelInfo() map[string]interface{} {
	return map[string]interface{}{
		"provider":         "Microsoft Edge TTS",
		"default_voice":    e.config.DefaultVoice,
		"max_input_length": e.config.MaxInputLength,
		"output_format":    "mp3",
		"available_voices": AllVoices(),
		"voice_categories": VoicesByCategory(),
	}
}

// MaxInputLength returns the per-request text cap in runes.
func (e *EdgeTTS) MaxInputLength() int {
	return e.config.MaxInputLength
}

// ResolveVoice maps provider aliases onto the Edge catalog and falls back to
// the default for unknown names.
func (e *EdgeTTS) ResolveVoice(voice string) string {
	if voice == "" {
		return e.config.DefaultVoice
	}
	mapped := MapVoiceName(voice)
	if !IsKnownVoice(mapped) {
		e.logger.Warnf("Edge TTS: voice %q not found, using default %q", voice, e.config.DefaultVoice)
		return e.config.DefaultVoice
	}
	return mapped
}

// Synthesize converts text to MP3 audio using the given voice and speed
// multiplier. It blocks until the full utterance has been received.
func (e *EdgeTTS) Synthesize(ctx context.Context, text string, voice string, speed float64) ([]byte, error) {
	e.mu.RLock()
	if !e.isInitialized {
		e.mu.RUnlock()
		return nil, errors.New("service not initialized")
	}
	serviceCtx := e.ctx
	e.mu.RUnlock()

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("text cannot be empty")
	}
	if n := utf8.RuneCountInString(text); n > e.config.MaxInputLength {
		return nil, fmt.Errorf("text length (%d) exceeds maximum (%d characters)", n, e.config.MaxInputLength)
	}

	voice = e.ResolveVoice(voice)
	rate := ConvertSpeedToRate(speed)

	e.logger.Debugf("Edge TTS request: text_len=%d voice=%s rate=%s", len(text), voice, rate)

	conn, err := e.establishConnection(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to establish WebSocket connection: %w", err)
	}
	defer e.closeConnection(conn)

	// Close the socket if either context dies so the read loop unblocks.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-serviceCtx.Done():
			conn.Close()
		case <-watchDone:
		}
	}()

	if err := e.sendSpeechConfig(conn); err != nil {
		return nil, fmt.Errorf("failed to send speech.config: %w", err)
	}
	if err := e.sendSSML(conn, voice, rate, text); err != nil {
		return nil, fmt.Errorf("failed to send ssml: %w", err)
	}

	audio, err := e.collectAudio(ctx, conn)
	if err != nil {
		return nil, err
	}
	if len(audio) == 0 {
		return nil, errors.New("received empty audio data from Edge TTS")
	}

	e.logger.Debugf("Edge TTS response: %d bytes of audio", len(audio))
	return audio, nil
}

// establishConnection dials with retry logic
func (e *EdgeTTS) establishConnection(ctx context.Context) (*websocket.Conn, error) {
	const maxRetries = 3
	const baseDelay = 500 * time.Millisecond

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			delay := baseDelay * time.Duration(attempt)
			e.logger.Infof("Edge TTS: retrying connection (attempt %d/%d) in %v after error: %v",
				attempt+1, maxRetries, delay, lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		conn, err := e.dialConnection(ctx)
		if err != nil {
			lastErr = err
			continue
		}
		return conn, nil
	}

	return nil, fmt.Errorf("failed to connect after %d attempts: %w", maxRetries, lastErr)
}

// dialConnection performs a single WebSocket dial to the readaloud endpoint
func (e *EdgeTTS) dialConnection(ctx context.Context) (*websocket.Conn, error) {
	connectionID := uuidHex()
	url := fmt.Sprintf("%s?TrustedClientToken=%s&Sec-MS-GEC=%s&Sec-MS-GEC-Version=%s&ConnectionId=%s",
		e.config.BaseURL,
		trustedClientToken,
		secMSGEC(time.Now()),
		secMSGECVersion,
		connectionID,
	)

	headers := map[string][]string{
		"Pragma":        {"no-cache"},
		"Cache-Control": {"no-cache"},
		"Origin":        {wsOrigin},
		"User-Agent":    {userAgent},
	}

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.DialContext(ctx, url, headers)
	if err != nil {
		return nil, err
	}

	conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))

	return conn, nil
}

// secMSGEC derives the rotating DRM token the endpoint checks alongside the
// trusted client token: SHA-256 of the windowed Windows file time
// concatenated with the token, uppercase hex.
func secMSGEC(now time.Time) string {
	ticks := (now.Unix() + winEpochOffsetSecs) * 10_000_000
	ticks -= ticks % gecWindowTicks
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d%s", ticks, trustedClientToken)))
	return strings.ToUpper(fmt.Sprintf("%x", sum))
}

// jsTimestamp renders the JavaScript-style date string the protocol expects
// in X-Timestamp headers.
func jsTimestamp(now time.Time) string {
	return now.UTC().Format("Mon Jan 02 2006 15:04:05 GMT+0000 (Coordinated Universal Time)")
}

func uuidHex() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// sendSpeechConfig sends the output-format negotiation message
func (e *EdgeTTS) sendSpeechConfig(conn *websocket.Conn) error {
	cfg := speechConfigMessage{
		Context: speechConfigContext{
			Synthesis: synthesisConfig{
				Audio: audioOutputConfig{
					MetadataOptions: metadataOptions{
						SentenceBoundaryEnabled: "false",
						WordBoundaryEnabled:     "false",
					},
					OutputFormat: outputFormat,
				},
			},
		},
	}
	body, err := sonic.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal speech config: %w", err)
	}

	msg := fmt.Sprintf("X-Timestamp:%s\r\nContent-Type:application/json; charset=utf-8\r\nPath:speech.config\r\n\r\n%s",
		jsTimestamp(time.Now()), body)

	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, []byte(msg))
}

// sendSSML sends the utterance itself
func (e *EdgeTTS) sendSSML(conn *websocket.Conn, voice, rate, text string) error {
	msg := fmt.Sprintf("X-RequestId:%s\r\nContent-Type:application/ssml+xml\r\nX-Timestamp:%s\r\nPath:ssml\r\n\r\n%s",
		uuidHex(), jsTimestamp(time.Now()), buildSSML(voice, rate, text))

	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, []byte(msg))
}

// buildSSML wraps escaped text in the speak/voice/prosody envelope
func buildSSML(voice, rate, text string) string {
	var escaped bytes.Buffer
	xml.EscapeText(&escaped, []byte(text))
	return fmt.Sprintf("<speak version='1.0' xmlns='http://www.w3.org/2001/10/synthesis' xml:lang='en-US'>"+
		"<voice name='%s'><prosody pitch='+0Hz' rate='%s' volume='+0%%'>%s</prosody></voice></speak>",
		voice, rate, escaped.String())
}

// collectAudio reads frames until turn.end, appending Path:audio payloads
func (e *EdgeTTS) collectAudio(ctx context.Context, conn *websocket.Conn) ([]byte, error) {
	var audio []byte

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("connection closed before turn.end: %w", err)
		}

		switch messageType {
		case websocket.TextMessage:
			switch framePath(headerSection(message)) {
			case "turn.end":
				return audio, nil
			case "turn.start", "response", "audio.metadata":
				// Informational frames, nothing to collect.
			}
		case websocket.BinaryMessage:
			headers, payload, err := parseBinaryFrame(message)
			if err != nil {
				e.logger.Warnf("Edge TTS: dropping malformed binary frame: %v", err)
				continue
			}
			if framePath(headers) == "audio" && len(payload) > 0 {
				audio = append(audio, payload...)
			}
		}
	}
}

// parseBinaryFrame splits a binary frame into its header block and payload.
// The first two bytes are the big-endian header length.
func parseBinaryFrame(frame []byte) (headers string, payload []byte, err error) {
	if len(frame) < 2 {
		return "", nil, errors.New("frame shorter than header length prefix")
	}
	headerLen := int(binary.BigEndian.Uint16(frame[:2]))
	if 2+headerLen > len(frame) {
		return "", nil, fmt.Errorf("header length %d exceeds frame size %d", headerLen, len(frame))
	}
	return string(frame[2 : 2+headerLen]), frame[2+headerLen:], nil
}

// headerSection returns everything before the blank line of a text frame.
func headerSection(message []byte) string {
	if i := bytes.Index(message, []byte("\r\n\r\n")); i >= 0 {
		return string(message[:i])
	}
	return string(message)
}

// framePath extracts the Path header value from a header block.
func framePath(headers string) string {
	for _, line := range strings.Split(headers, "\r\n") {
		if value, ok := strings.CutPrefix(line, "Path:"); ok {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func (e *EdgeTTS) closeConnection(conn *websocket.Conn) {
	conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()
}
