package server

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"voicekit/core"
	"voicekit/events/chat"
	"voicekit/events/playback"
	"voicekit/events/stt"
	"voicekit/events/tts"
	"voicekit/factories"
	"voicekit/metrics"
	"voicekit/protocol"
	"voicekit/recorder"
	"voicekit/utils/audio"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait     = 10 * time.Second
	outChanBuffer = 64
)

// Session owns one WebSocket connection and the pipeline behind it. The
// read loop turns wire frames into pipeline events; top-bound pipeline
// packets come back through onTopPacket and leave via the write pump, so a
// single goroutine touches the connection for writes.
type Session struct {
	ID string

	server   *Server
	conn     *websocket.Conn
	logger   *core.Logger
	pipeline *factories.Pipeline
	recorder *recorder.Recorder
	logFile  *core.SessionLogWriter

	ctx    context.Context
	cancel context.CancelFunc

	outChan chan any

	mu          sync.Mutex
	language    string // most recent transcription language hint
	captureRate int    // sample rate of a telephony-encoded take, 0 for container formats
	queueLength int    // last reported playback queue depth
	isPlaying   bool

	closeOnce sync.Once
}

// handleVoiceChat upgrades the connection and runs a session until the
// client leaves or the pipeline ends.
func (s *Server) handleVoiceChat(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err.Error())
		return
	}

	sess, err := s.newSession(conn, r.RemoteAddr)
	if err != nil {
		s.logger.Error("session setup failed", "error", err.Error())
		conn.Close()
		return
	}

	s.registerSession(sess)
	s.metrics.ConnectionOpened()
	defer func() {
		s.unregisterSession(sess)
		s.metrics.ConnectionClosed()
		sess.Close()
	}()

	sess.Run()
}

func (s *Server) newSession(conn *websocket.Conn, remoteAddr string) (*Session, error) {
	id := uuid.New().String()

	logger := s.logger.With(map[string]any{"session_id": id[:8]})
	var logFile *core.SessionLogWriter
	if s.config.Server.LogDir != "" {
		writer, err := core.NewSessionLogWriter(s.config.Server.LogDir, id, remoteAddr)
		if err != nil {
			logger.Warn("session transcript disabled", "error", err.Error())
		} else {
			logFile = writer
			logger = core.NewSessionLogger(logger, writer)
		}
	}

	pipeline, err := factories.BuildPipeline(s.config.Session, logger)
	if err != nil {
		if logFile != nil {
			logFile.Close()
		}
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	sess := &Session{
		ID:       id,
		server:   s,
		conn:     conn,
		logger:   logger,
		pipeline: pipeline,
		logFile:  logFile,
		ctx:      ctx,
		cancel:   cancel,
		outChan:  make(chan any, outChanBuffer),
	}
	sess.recorder = recorder.NewRecorder(sess.consumeRecording, logger)

	// The observer must be in place before the first handler can emit.
	pipeline.Runner.OnTopPacket = sess.onTopPacket
	if err := pipeline.Start(); err != nil {
		cancel()
		if logFile != nil {
			logFile.Close()
		}
		return nil, err
	}

	if s.config.Server.ReadLimit > 0 {
		conn.SetReadLimit(s.config.Server.ReadLimit)
	}
	return sess, nil
}

// Run pumps the connection until the client disconnects.
func (sess *Session) Run() {
	go sess.writePump()
	go sess.watchPipeline()

	sess.logger.Info("client connected", "remote", sess.conn.RemoteAddr().String())
	sess.send(&protocol.ConnectionEstablished{
		Header:    protocol.NewHeader(protocol.MsgConnectionEstablished),
		Message:   "WebSocket connection established for real-time voice chat",
		SessionID: sess.ID,
	})

	sess.readLoop()
}

// Close tears the session down. Safe to call more than once.
func (sess *Session) Close() {
	sess.closeOnce.Do(func() {
		sess.cancel()
		sess.pipeline.Stop()
		sess.conn.Close()
		if sess.logFile != nil {
			sess.logFile.Close()
		}
		sess.logger.Info("session closed")
	})
}

// watchPipeline closes the connection when the pipeline ends on its own,
// for example after a handler requested session end. That unblocks the read
// loop, which drives the rest of the teardown.
func (sess *Session) watchPipeline() {
	if err := sess.pipeline.Wait(sess.ctx); err == nil {
		sess.logger.Info("pipeline finished, closing connection")
	}
	sess.conn.Close()
}

func (sess *Session) readLoop() {
	for {
		_, data, err := sess.conn.ReadMessage()
		if err != nil {
			sess.logger.Info("read loop ended", "error", err.Error())
			return
		}
		sess.handleFrame(data)
	}
}

// writePump is the only writer on the connection.
func (sess *Session) writePump() {
	for {
		select {
		case msg := <-sess.outChan:
			data, err := protocol.Encode(msg)
			if err != nil {
				sess.logger.Error("encode outbound frame failed", "error", err.Error())
				continue
			}
			sess.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sess.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				sess.logger.Info("write failed, closing session", "error", err.Error())
				sess.cancel()
				return
			}
		case <-sess.ctx.Done():
			return
		}
	}
}

func (sess *Session) send(msg any) {
	select {
	case sess.outChan <- msg:
	case <-sess.ctx.Done():
	}
}

func (sess *Session) sendError(detail string) {
	sess.send(&protocol.ErrorMessage{
		Header:  protocol.NewHeader(protocol.MsgError),
		Message: detail,
	})
}

// handleFrame decodes one client frame and routes it.
func (sess *Session) handleFrame(data []byte) {
	msgType, err := protocol.DecodeType(data)
	if err != nil {
		sess.sendError("Invalid message format")
		return
	}

	switch msgType {
	case protocol.MsgTextMessage:
		sess.handleTextMessage(data)
	case protocol.MsgAudioData:
		sess.handleAudioData(data)
	case protocol.MsgStartRecording:
		sess.handleStartRecording()
	case protocol.MsgStopRecording:
		sess.handleStopRecording(data)
	case protocol.MsgPlaybackFinished:
		sess.handlePlaybackFinished(data)
	case protocol.MsgStopPlayback:
		sess.recordDroppedPlayback()
		sess.push(&playback.PlaybackStopEvent{})
	case protocol.MsgGetVoices:
		sess.send(&protocol.VoicesList{
			Header:     protocol.NewHeader(protocol.MsgVoicesList),
			VoicesData: sess.server.voiceCatalog(),
		})
	case protocol.MsgPing:
		sess.send(&protocol.Pong{Header: protocol.NewHeader(protocol.MsgPong)})
	default:
		sess.sendError(fmt.Sprintf("Unknown message type: %s", msgType))
	}
}

func (sess *Session) handleTextMessage(data []byte) {
	msg, err := protocol.DecodeAs[protocol.TextMessage](data)
	if err != nil {
		sess.sendError("Error processing text_message: invalid message")
		return
	}
	sess.applyVoiceSettings(msg.VoiceSettings)

	trimmed := strings.TrimSpace(msg.Message)
	if trimmed == "" {
		sess.sendError("Empty message received")
		return
	}

	sess.send(&protocol.MessageReceived{
		Header:  protocol.NewHeader(protocol.MsgMessageReceived),
		Message: trimmed,
	})
	sess.push(&chat.ChatUserMessageEvent{Text: trimmed})
}

func (sess *Session) handleAudioData(data []byte) {
	msg, err := protocol.DecodeAs[protocol.AudioData](data)
	if err != nil {
		sess.sendError("Error processing audio_data: invalid message")
		return
	}
	sess.applyVoiceSettings(msg.VoiceSettings)

	if msg.AudioData == "" {
		sess.sendError("No audio data received")
		return
	}
	raw, err := base64.StdEncoding.DecodeString(msg.AudioData)
	if err != nil {
		sess.sendError("Audio processing error: invalid base64 payload")
		return
	}

	if msg.Language != "" {
		sess.setLanguage(msg.Language)
	}

	format := msg.Format
	if pcm := decodeTelephony(msg.Encoding, raw); pcm != nil {
		sampleRate := msg.SampleRate
		if sampleRate == 0 {
			sampleRate = 8000
		}
		if sess.recorder.State() == recorder.StateRecording {
			// Telephony frames accumulate as raw PCM; the take is wrapped
			// into a WAV container once on stop.
			sess.mu.Lock()
			sess.captureRate = sampleRate
			sess.mu.Unlock()
			sess.recorder.Append(pcm)
			return
		}
		wav, err := audio.PCMBytesToWavBytes(pcm, 1, sampleRate)
		if err != nil {
			sess.sendError(fmt.Sprintf("Audio processing error: %v", err))
			return
		}
		raw, format = wav, "wav"
	}

	// Frames sent while a recording is open belong to the take; anything
	// else is a complete utterance and goes straight to transcription.
	if sess.recorder.State() == recorder.StateRecording {
		sess.recorder.Append(raw)
		return
	}
	sess.push(&stt.STTTranscribeRequestEvent{
		Audio:    raw,
		Format:   format,
		Language: msg.Language,
	})
}

// decodeTelephony converts µ-law or A-law frames to 16-bit PCM. Returns nil
// when the encoding is not a telephony codec, including the empty default.
func decodeTelephony(encoding string, raw []byte) []byte {
	switch strings.ToLower(encoding) {
	case "ulaw", "mulaw", "g711_ulaw":
		return audio.ULawBytesToPCM(raw)
	case "alaw", "g711_alaw":
		return audio.ALawBytesToPCM(raw)
	}
	return nil
}

func (sess *Session) handleStartRecording() {
	// A new take interrupts whatever is still playing.
	sess.recordDroppedPlayback()
	sess.push(&playback.PlaybackStopEvent{})

	sess.mu.Lock()
	sess.captureRate = 0
	sess.mu.Unlock()

	sess.recorder.Start()
	sess.send(&protocol.RecordingStarted{
		Header:  protocol.NewHeader(protocol.MsgRecordingStarted),
		Message: "Recording started - speak now",
	})
}

func (sess *Session) handleStopRecording(data []byte) {
	if msg, err := protocol.DecodeAs[protocol.StopRecording](data); err == nil {
		sess.applyVoiceSettings(msg.VoiceSettings)
		if msg.Language != "" {
			sess.setLanguage(msg.Language)
		}
	}

	sess.send(&protocol.RecordingStopped{
		Header:  protocol.NewHeader(protocol.MsgRecordingStopped),
		Message: "Recording stopped - processing audio",
	})
	sess.recorder.Stop()
}

func (sess *Session) handlePlaybackFinished(data []byte) {
	msg, err := protocol.DecodeAs[protocol.PlaybackFinished](data)
	if err != nil {
		sess.sendError("Error processing playback_finished: invalid message")
		return
	}

	if msg.Failed {
		sess.server.metrics.RecordPlaybackChunk(metrics.OutcomeFailed)
	} else {
		sess.server.metrics.RecordPlaybackChunk(metrics.OutcomePlayed)
	}
	sess.push(&playback.PlaybackFinishedEvent{
		ResponseID: msg.ResponseID,
		ChunkIndex: msg.ChunkIndex,
		Failed:     msg.Failed,
		Error:      msg.Error,
	})
}

// consumeRecording feeds a finished take into the pipeline.
func (sess *Session) consumeRecording(audioData []byte, startedAt time.Time) {
	sess.mu.Lock()
	language := sess.language
	captureRate := sess.captureRate
	sess.mu.Unlock()

	format := ""
	if captureRate > 0 {
		wav, err := audio.PCMBytesToWavBytes(audioData, 1, captureRate)
		if err != nil {
			sess.logger.Error("failed to package telephony take", "error", err.Error())
			sess.sendError(fmt.Sprintf("Audio processing error: %v", err))
			return
		}
		audioData, format = wav, "wav"
	}

	sess.logger.Info("recording complete",
		"bytes", len(audioData), "took", time.Since(startedAt).String())
	sess.push(&stt.STTTranscribeRequestEvent{Audio: audioData, Format: format, Language: language})
}

func (sess *Session) applyVoiceSettings(vs *protocol.VoiceSettings) {
	if vs == nil {
		return
	}
	sess.push(&tts.VoiceSettingsUpdatedEvent{
		AutoTTS: vs.AutoTTS,
		Voice:   vs.Voice,
		Speed:   vs.Speed,
	})
}

func (sess *Session) setLanguage(language string) {
	sess.mu.Lock()
	sess.language = language
	sess.mu.Unlock()
}

// recordDroppedPlayback counts the chunks a stop discards, estimated from
// the last status report.
func (sess *Session) recordDroppedPlayback() {
	sess.mu.Lock()
	dropped := sess.queueLength
	if sess.isPlaying {
		dropped++
	}
	sess.mu.Unlock()
	sess.server.metrics.RecordPlaybackDropped(dropped)
}

func (sess *Session) push(event core.IEvent) {
	packet := core.NewEventPacket(event, core.EventRelayDestinationNextService, "Session")
	if err := sess.pipeline.Push(packet); err != nil {
		sess.logger.Error("pipeline push failed", "event", event.GetId(), "error", err.Error())
	}
}

// onTopPacket translates top-bound pipeline events into wire frames. It runs
// on the runner's output goroutine; send never blocks past session end.
func (sess *Session) onTopPacket(packet *core.EventPacket) {
	switch event := packet.Event.(type) {
	case *stt.STTProcessingEvent:
		sess.send(&protocol.ProcessingAudio{
			Header:  protocol.NewHeader(protocol.MsgProcessingAudio),
			Message: "Transcribing audio...",
		})

	case *stt.STTFinalOutputEvent:
		sess.server.metrics.RecordTranscription(true)
		sess.send(&protocol.TranscriptionResult{
			Header:          protocol.NewHeader(protocol.MsgTranscriptionResult),
			TranscribedText: event.Text,
		})

	case *stt.STTFailedEvent:
		sess.server.metrics.RecordTranscription(false)
		sess.sendError(event.Error)

	case *chat.ChatResponseCompletedEvent:
		sess.server.metrics.RecordChatCompletion(true)
		sess.send(&protocol.AIResponse{
			Header:  protocol.NewHeader(protocol.MsgAIResponse),
			Message: event.FullText,
		})

	case *chat.ChatFailedEvent:
		sess.server.metrics.RecordChatCompletion(false)
		sess.sendError(event.Error)

	case *tts.TTSGeneratingEvent:
		sess.send(&protocol.GeneratingTTS{
			Header:  protocol.NewHeader(protocol.MsgGeneratingTTS),
			Message: "Generating speech...",
		})

	case *tts.TTSFailedEvent:
		sess.server.metrics.RecordTTSChunk(false)
		sess.send(&protocol.TTSError{
			Header:  protocol.NewHeader(protocol.MsgTTSError),
			Message: fmt.Sprintf("TTS error: %s", event.Error),
		})

	case *playback.PlaybackChunkStartedEvent:
		sess.server.metrics.RecordTTSChunk(true)
		sess.send(&protocol.TTSAudio{
			Header:     protocol.NewHeader(protocol.MsgTTSAudio),
			AudioData:  base64.StdEncoding.EncodeToString(event.Audio),
			Text:       event.Text,
			ResponseID: event.ResponseID,
			ChunkIndex: event.ChunkIndex,
		})

	case *playback.PlaybackStatusEvent:
		sess.mu.Lock()
		sess.queueLength = event.QueueLength
		sess.isPlaying = event.IsPlaying
		sess.mu.Unlock()
		sess.send(&protocol.PlaybackStatus{
			Header:        protocol.NewHeader(protocol.MsgPlaybackStatus),
			QueueLength:   event.QueueLength,
			IsPlaying:     event.IsPlaying,
			ActiveChunkID: event.ActiveChunkID,
		})

	case *core.CriticalErrorEvent:
		sess.sendError(fmt.Sprintf("Server error: %s", event.Error))

	case *core.EndSessionEvent:
		sess.logger.Info("session end requested", "reason", event.Reason)

	case *core.WarningEvent:
		sess.logger.Warn("pipeline warning", "error", event.Error)

	case *core.ServiceRecoveredEvent:
		sess.logger.Info("service recovered after failover", "error", event.Error)
	}
}
