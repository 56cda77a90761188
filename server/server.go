package server

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"voicekit/core"
	"voicekit/factories"
	"voicekit/metrics"
	"voicekit/protocol"
	edgetts "voicekit/services/edge/tts"
	groqllm "voicekit/services/groq/llm"
	groqstt "voicekit/services/groq/stt"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 10 * time.Second

// Server is the HTTP front of the application: the REST voice/chat API,
// the Prometheus endpoint, and the WebSocket entry point that spawns a
// pipeline per connection.
type Server struct {
	config  factories.SettingsConfig
	metrics *metrics.Metrics
	logger  *core.Logger

	upgrader websocket.Upgrader

	sessions   map[string]*Session
	sessionsMu sync.RWMutex

	// Shared service clients behind the REST endpoints. WebSocket sessions
	// build their own pipeline instances instead.
	restSTT  *groqstt.GroqSTTService
	restChat *groqllm.GroqLLMService
	restTTS  *edgetts.EdgeTTS
}

func NewServer(config factories.SettingsConfig, m *metrics.Metrics, logger *core.Logger) *Server {
	if logger == nil {
		logger = core.GetLogger()
	}

	s := &Server{
		config:   config,
		metrics:  m,
		logger:   logger.With(map[string]any{"component": "server"}),
		sessions: make(map[string]*Session),
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}

	var sttCfg groqstt.Config
	if cfg := config.Session.STT.ServiceConfig.GroqConfig; cfg != nil {
		sttCfg = *cfg
	}
	s.restSTT = groqstt.NewGroqSTTService(sttCfg, logger)

	if cfg := config.Session.Chat.ServiceConfig.GroqConfig; cfg != nil {
		s.restChat = groqllm.NewGroqLLMService(*cfg, logger)
	}

	var ttsCfg edgetts.EdgeTTSConfig
	if cfg := config.Session.TTS.ServiceConfig.EdgeConfig; cfg != nil {
		ttsCfg = *cfg
	}
	s.restTTS = edgetts.NewEdgeTTS(ttsCfg, logger)

	return s
}

// checkOrigin allows any origin when AllowedOrigins is empty, matching the
// original deployment behind an allow-all CORS layer.
func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.config.Server.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.config.Server.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// Handler builds the route table. Exposed separately from Run so tests can
// mount it on an httptest server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/voice/transcribe", s.withMetrics("/api/voice/transcribe", s.handleTranscribe))
	mux.HandleFunc("/api/voice/synthesize", s.withMetrics("/api/voice/synthesize", s.handleSynthesize))
	mux.HandleFunc("/api/voice/conversation", s.withMetrics("/api/voice/conversation", s.handleConversation))
	mux.HandleFunc("/api/voice/voices", s.withMetrics("/api/voice/voices", s.handleVoices))
	mux.HandleFunc("/api/voice/models-info", s.withMetrics("/api/voice/models-info", s.handleModelsInfo))
	mux.HandleFunc("/api/voice/health", s.withMetrics("/api/voice/health", s.handleVoiceHealth))
	mux.HandleFunc("/api/chat/text", s.withMetrics("/api/chat/text", s.handleChatText))

	mux.HandleFunc("/health", s.withMetrics("/health", s.handleHealth))
	mux.HandleFunc("/ws/status", s.withMetrics("/ws/status", s.handleWSStatus))
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/ws/voice-chat", s.handleVoiceChat)

	return s.withCORS(mux)
}

// Run serves until ctx is cancelled, then shuts down gracefully and closes
// the remaining sessions.
func (s *Server) Run(ctx context.Context) error {
	s.initServices(ctx)

	server := &http.Server{
		Addr:    s.config.Server.Addr,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http shutdown failed", "error", err.Error())
		}
		s.closeSessions()
	}()

	s.logger.Infof("voicekit server listening on %s", s.config.Server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// initServices brings up the shared REST clients. Failures are logged, not
// fatal: the STT client falls back to mock mode and the chat endpoints
// report their error per request.
func (s *Server) initServices(ctx context.Context) {
	if err := s.restSTT.Initialize(ctx); err != nil {
		s.logger.Error("stt service init failed", "error", err.Error())
	}
	if s.restChat != nil {
		if err := s.restChat.Initialize(ctx); err != nil {
			s.logger.Error("chat service init failed", "error", err.Error())
		}
	}
	if err := s.restTTS.Initialize(ctx); err != nil {
		s.logger.Error("tts service init failed", "error", err.Error())
	}
}

func (s *Server) registerSession(sess *Session) {
	s.sessionsMu.Lock()
	s.sessions[sess.ID] = sess
	s.sessionsMu.Unlock()
}

func (s *Server) unregisterSession(sess *Session) {
	s.sessionsMu.Lock()
	delete(s.sessions, sess.ID)
	s.sessionsMu.Unlock()
}

func (s *Server) sessionCount() int {
	s.sessionsMu.RLock()
	defer s.sessionsMu.RUnlock()
	return len(s.sessions)
}

func (s *Server) closeSessions() {
	s.sessionsMu.RLock()
	open := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		open = append(open, sess)
	}
	s.sessionsMu.RUnlock()

	for _, sess := range open {
		sess.Close()
	}
}

// withCORS answers preflight requests and stamps the allow-all headers the
// browser client expects.
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := "*"
		if len(s.config.Server.AllowedOrigins) > 0 {
			origin = s.config.Server.AllowedOrigins[0]
			for _, allowed := range s.config.Server.AllowedOrigins {
				if strings.EqualFold(allowed, r.Header.Get("Origin")) {
					origin = allowed
					break
				}
			}
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withMetrics records the request duration under the endpoint label.
func (s *Server) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		handler(w, r)
		s.metrics.ObserveRequest(endpoint, time.Since(start).Seconds())
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	data, err := sonic.Marshal(body)
	if err != nil {
		http.Error(w, "encoding error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, protocol.ErrorResponse{Detail: detail})
}
