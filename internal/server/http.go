package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rdevaul/glados-voice-pwa/internal/agent"
	"github.com/rdevaul/glados-voice-pwa/internal/config"
	"github.com/rdevaul/glados-voice-pwa/internal/metrics"
	"github.com/rdevaul/glados-voice-pwa/internal/session"
	"github.com/rdevaul/glados-voice-pwa/internal/transcribe"
)

// defaultChatSession is the agent conversation used by the stateless
// HTTP chat endpoints.
const defaultChatSession = "voice"

// maxUploadBytes bounds multipart audio uploads.
const maxUploadBytes = 32 << 20

// transcribeFormats lists the audio containers accepted by /voice/transcribe.
var transcribeFormats = map[string]bool{
	"wav": true, "webm": true, "mp3": true, "m4a": true,
}

// chatAudioFormats lists the audio containers accepted by /voice/chat/audio.
var chatAudioFormats = map[string]bool{
	"wav": true, "webm": true, "mp3": true, "m4a": true,
	"mp4": true, "ogg": true, "oga": true,
}

// Transcriber converts a complete audio clip to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, format string) (string, error)
}

// Synthesizer renders text to a cached audio file and reports the cache
// location for serving.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (string, error)
	CacheDir() string
}

// Responder produces agent replies for user text.
type Responder interface {
	Response(ctx context.Context, userText, sessionID string) string
	PayloadsWithProgress(ctx context.Context, userText, sessionID string,
		progress agent.ProgressFunc, interval time.Duration) []agent.Payload
}

// Deps bundles the collaborators the server needs.
type Deps struct {
	Config *config.Config
	Store  *session.Store
	Agent  Responder
	STT    Transcriber
	TTS    Synthesizer

	// NewStreamTranscriber builds a fresh chunked transcriber for each
	// WebSocket connection.
	NewStreamTranscriber func() *transcribe.ChunkedTranscriber

	// Metrics may be nil when instrumentation is not wanted.
	Metrics *metrics.Metrics
}

// HTTPServer provides the HTTP API and WebSocket endpoint
type HTTPServer struct {
	server  *http.Server
	logger  *slog.Logger
	config  *config.Config
	store   *session.Store
	agent   Responder
	stt     Transcriber
	tts     Synthesizer
	newWST  func() *transcribe.ChunkedTranscriber
	metrics *metrics.Metrics

	startTime time.Time
}

// NewHTTPServer creates the HTTP API server with all routes configured
func NewHTTPServer(logger *slog.Logger, deps Deps) *HTTPServer {
	h := &HTTPServer{
		logger:    logger,
		config:    deps.Config,
		store:     deps.Store,
		agent:     deps.Agent,
		stt:       deps.STT,
		tts:       deps.TTS,
		newWST:    deps.NewStreamTranscriber,
		metrics:   deps.Metrics,
		startTime: time.Now(),
	}

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", deps.Config.HTTP.Address, deps.Config.HTTP.Port),
		Handler:      h.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // agent calls can be slow
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// Routes builds the chi router for the API
func (h *HTTPServer) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", h.withMetrics("/health", h.handleHealth))
	r.Post("/voice/transcribe", h.withMetrics("/voice/transcribe", h.handleTranscribe))
	r.Post("/voice/speak", h.withMetrics("/voice/speak", h.handleSpeak))
	r.Post("/voice/chat/text", h.withMetrics("/voice/chat/text", h.handleChatText))
	r.Post("/voice/chat/audio", h.withMetrics("/voice/chat/audio", h.handleChatAudio))
	r.Get("/voice/audio/{filename}", h.withMetrics("/voice/audio/{filename}", h.handleAudioFile))
	r.Post("/sessions", h.withMetrics("/sessions", h.handleCreateSession))
	r.Get("/sessions/{id}", h.withMetrics("/sessions/{id}", h.handleSessionState))
	r.Get("/stats", h.withMetrics("/stats", h.handleStats))
	r.Get("/ws", h.handleWebSocket)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	if h.metrics == nil {
		return handler
	}

	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: 200}
		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)
		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"components": map[string]interface{}{
			"sessions": map[string]interface{}{
				"active": h.store.ActiveCount(),
			},
		},
	}

	h.writeJSON(w, http.StatusOK, health)
}

// handleTranscribe implements POST /voice/transcribe: one-shot
// transcription of an uploaded audio file.
func (h *HTTPServer) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	data, format, err := readUpload(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !transcribeFormats[format] {
		http.Error(w, fmt.Sprintf("Unsupported audio format: %s", format), http.StatusBadRequest)
		return
	}

	text, err := h.stt.Transcribe(r.Context(), data, format)
	if err != nil {
		h.logger.Error("Transcription failed", slog.String("error", err.Error()))
		http.Error(w, "Transcription failed", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"text": text})
}

// speakRequest is the body of POST /voice/speak
type speakRequest struct {
	Text string `json:"text"`
}

// handleSpeak implements POST /voice/speak: text to a cached audio file.
func (h *HTTPServer) handleSpeak(w http.ResponseWriter, r *http.Request) {
	var req speakRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		http.Error(w, "No text provided", http.StatusBadRequest)
		return
	}

	filename, err := h.tts.Synthesize(r.Context(), req.Text)
	if err != nil {
		h.logger.Error("Speech synthesis failed", slog.String("error", err.Error()))
		http.Error(w, "Text-to-speech failed", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"audio_url": "/voice/audio/" + filename,
	})
}

// chatRequest is the body of POST /voice/chat/text
type chatRequest struct {
	Text      string `json:"text"`
	SessionID string `json:"session_id"`
}

// handleChatText implements POST /voice/chat/text
func (h *HTTPServer) handleChatText(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	h.processChat(w, r, req.Text, req.SessionID)
}

// handleChatAudio implements POST /voice/chat/audio: transcribe the
// uploaded clip first, then process the result as a chat turn.
func (h *HTTPServer) handleChatAudio(w http.ResponseWriter, r *http.Request) {
	data, format, err := readUpload(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !chatAudioFormats[format] {
		http.Error(w, fmt.Sprintf("Unsupported audio format: %s", format), http.StatusBadRequest)
		return
	}

	h.logger.Info("Received chat audio",
		slog.Int("bytes", len(data)),
		slog.String("format", format),
	)

	userText, err := h.stt.Transcribe(r.Context(), data, format)
	if err != nil {
		h.logger.Error("Transcription failed", slog.String("error", err.Error()))
		http.Error(w, "Transcription failed", http.StatusInternalServerError)
		return
	}

	h.processChat(w, r, userText, "")
}

// processChat runs one chat turn: agent reply plus best-effort synthesis.
func (h *HTTPServer) processChat(w http.ResponseWriter, r *http.Request, userText, sessionID string) {
	userText = strings.TrimSpace(userText)
	if userText == "" {
		http.Error(w, "No text provided", http.StatusBadRequest)
		return
	}
	if sessionID == "" {
		sessionID = defaultChatSession
	}

	h.logger.Info("Processing chat turn",
		slog.String("session_id", sessionID),
		slog.Int("text_length", len(userText)),
	)

	responseText := h.agent.Response(r.Context(), userText, sessionID)

	// Synthesis failures degrade the response to text-only rather than
	// failing the whole turn.
	audioURL := ""
	if filename, err := h.tts.Synthesize(r.Context(), responseText); err != nil {
		h.logger.Warn("Speech synthesis failed for chat response",
			slog.String("error", err.Error()),
		)
	} else {
		audioURL = "/voice/audio/" + filename
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_text": userText,
		"text":      responseText,
		"audio_url": audioURL,
	})
}

// handleAudioFile implements GET /voice/audio/{filename}, serving files
// from the synthesis cache only.
func (h *HTTPServer) handleAudioFile(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")

	// Base strips any traversal components from the requested name.
	safe := filepath.Base(filename)
	if safe != filename || safe == "." || safe == ".." {
		http.Error(w, "Invalid filename", http.StatusBadRequest)
		return
	}

	path := filepath.Join(h.tts.CacheDir(), safe)
	if _, err := os.Stat(path); err != nil {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	http.ServeFile(w, r, path)
}

// handleCreateSession implements POST /sessions
func (h *HTTPServer) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	id := h.store.Create()

	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"session_id": id,
	})
}

// handleSessionState implements GET /sessions/{id}, the reconnect snapshot
func (h *HTTPServer) handleSessionState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	snap, ok := h.store.State(id)
	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, snap)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"sessions": map[string]interface{}{
			"active_count": h.store.ActiveCount(),
		},
	}

	h.writeJSON(w, http.StatusOK, stats)
}

// writeJSON writes a JSON response with the given status code
func (h *HTTPServer) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", slog.String("error", err.Error()))
	}
}

// readUpload extracts the uploaded audio and its format from a multipart
// request. The format comes from the filename extension, defaulting to wav.
func readUpload(r *http.Request) ([]byte, string, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, "", fmt.Errorf("invalid multipart request: %w", err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", fmt.Errorf("missing file field: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read upload: %w", err)
	}

	filename := header.Filename
	if filename == "" {
		filename = "audio.wav"
	}
	format := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if format == "" {
		format = "wav"
	}

	return data, format, nil
}
