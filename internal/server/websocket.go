package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rdevaul/glados-voice-pwa/internal/agent"
	"github.com/rdevaul/glados-voice-pwa/internal/session"
	"github.com/rdevaul/glados-voice-pwa/internal/transcribe"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The PWA is served from a different origin during development.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsEnvelope is the JSON message format clients send over the socket.
// Raw audio may also arrive as binary frames, which skip the envelope.
type wsEnvelope struct {
	Type       string `json:"type"`
	SessionID  string `json:"session_id,omitempty"`
	Text       string `json:"text,omitempty"`
	Format     string `json:"format,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`

	// Data carries base64 audio for clients that cannot send binary frames.
	Data string `json:"data,omitempty"`
}

// wsConn tracks the state of one WebSocket connection.
type wsConn struct {
	srv    *HTTPServer
	conn   *websocket.Conn
	logger *slog.Logger

	// writeMu serializes writes; the progress heartbeat writes from its
	// own goroutine.
	writeMu sync.Mutex

	sessionID   string
	transcriber *transcribe.ChunkedTranscriber
}

// handleWebSocket upgrades the connection and runs the voice loop until
// the client disconnects.
func (h *HTTPServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &wsConn{
		srv:    h,
		conn:   conn,
		logger: h.logger.With(slog.String("remote", conn.RemoteAddr().String())),
	}

	if h.metrics != nil {
		h.metrics.WSConnectionOpened()
		defer h.metrics.WSConnectionClosed()
	}

	c.logger.Info("WebSocket connection opened")
	c.loop(r.Context())
	c.logger.Info("WebSocket connection closed",
		slog.String("session_id", c.sessionID),
	)

	conn.Close()
}

// loop reads frames until the connection drops. Binary frames carry raw
// audio; text frames carry JSON envelopes.
func (c *wsConn) loop(ctx context.Context) {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if c.srv.metrics != nil {
			c.srv.metrics.RecordWSMessageReceived()
		}

		switch msgType {
		case websocket.BinaryMessage:
			c.feedAudio(ctx, data)
		case websocket.TextMessage:
			var env wsEnvelope
			if err := json.Unmarshal(data, &env); err != nil {
				c.sendError("invalid message")
				continue
			}
			c.dispatch(ctx, env)
		}
	}
}

// dispatch handles one decoded client envelope.
func (c *wsConn) dispatch(ctx context.Context, env wsEnvelope) {
	switch env.Type {
	case "start":
		c.handleStart(env)
	case "audio":
		audio, err := base64.StdEncoding.DecodeString(env.Data)
		if err != nil {
			c.sendError("invalid audio data")
			return
		}
		c.feedAudio(ctx, audio)
	case "stop":
		c.handleStop(ctx)
	case "text":
		c.respond(ctx, env.Text)
	case "resume":
		c.handleResume(env.SessionID)
	case "ping":
		c.send(map[string]interface{}{"type": "pong"})
	default:
		c.sendError("unknown message type: " + env.Type)
	}
}

// handleStart begins a recording turn, adopting the client's session if it
// still exists and creating a fresh one otherwise.
func (c *wsConn) handleStart(env wsEnvelope) {
	store := c.srv.store

	id := env.SessionID
	if id != "" {
		if _, ok := store.Get(id); !ok {
			id = ""
		}
	}
	if id == "" {
		id = store.Create()
	}
	c.sessionID = id

	format := env.Format
	if format == "" {
		format = "webm"
	}
	sampleRate := env.SampleRate
	if sampleRate == 0 {
		sampleRate = 48000
	}

	if c.transcriber == nil {
		c.transcriber = c.srv.newWST()
	}
	c.transcriber.Reset()
	c.transcriber.SetFormat(format, sampleRate)

	store.Update(id, session.Patch{
		State:             statePtr(session.StateRecording),
		PartialTranscript: strPtr(""),
		PartialResponse:   strPtr(""),
		AudioFormat:       &format,
		SampleRate:        &sampleRate,
	})

	c.send(map[string]interface{}{
		"type":       "started",
		"session_id": id,
	})
}

// feedAudio pushes one audio chunk through the transcriber and forwards
// any partial transcript that surfaces.
func (c *wsConn) feedAudio(ctx context.Context, audio []byte) {
	if c.transcriber == nil {
		c.sendError("no active recording")
		return
	}
	if c.srv.metrics != nil {
		c.srv.metrics.RecordAudioBytes(len(audio))
	}

	partial, ok := c.transcriber.FeedAudio(ctx, audio)
	if !ok || partial == "" {
		return
	}

	c.srv.store.Update(c.sessionID, session.Patch{
		State:             statePtr(session.StateTranscribing),
		PartialTranscript: &partial,
	})

	c.send(map[string]interface{}{
		"type": "partial_transcript",
		"text": partial,
	})
}

// handleStop finalizes the transcript and runs the response flow.
func (c *wsConn) handleStop(ctx context.Context) {
	if c.transcriber == nil {
		c.sendError("no active recording")
		return
	}

	final := c.transcriber.Finalize(ctx)

	c.srv.store.Update(c.sessionID, session.Patch{
		PartialTranscript: strPtr(""),
	})

	c.send(map[string]interface{}{
		"type": "transcript",
		"text": final,
	})

	c.respond(ctx, final)
}

// respond runs one chat turn over the socket: progress heartbeats while
// the agent call is pending, then the reply sentence by sentence with
// synthesized audio per payload. Replies that cannot be delivered are
// queued on the session for the next reconnect.
func (c *wsConn) respond(ctx context.Context, userText string) {
	store := c.srv.store
	store.Update(c.sessionID, session.Patch{
		State:           statePtr(session.StateProcessing),
		PartialResponse: strPtr(""),
	})

	progress := func(message string, elapsed time.Duration) {
		c.send(map[string]interface{}{
			"type":    "status",
			"text":    message,
			"elapsed": elapsed.Seconds(),
		})
	}

	payloads := c.srv.agent.PayloadsWithProgress(ctx, userText, c.sessionID,
		progress, c.srv.config.Agent.GetProgressIntervalDuration())

	for i, p := range payloads {
		audioURL := ""
		if p.Text != "" {
			if filename, err := c.srv.tts.Synthesize(ctx, p.Text); err != nil {
				c.logger.Warn("Speech synthesis failed for response",
					slog.String("error", err.Error()),
				)
			} else {
				audioURL = "/voice/audio/" + filename
			}
		}

		if err := c.deliverPayload(p, audioURL); err != nil {
			c.queueRemaining(payloads[i:])
			return
		}
	}

	store.Update(c.sessionID, session.Patch{
		State:           statePtr(session.StateIdle),
		PartialResponse: strPtr(""),
	})
}

// deliverPayload streams one payload's text sentence by sentence, then the
// audio reference. The growing partial response is mirrored into the store
// so a reconnecting client can recover mid-reply progress.
func (c *wsConn) deliverPayload(p agent.Payload, audioURL string) error {
	delivered := ""
	for _, sentence := range agent.SplitSentences(p.Text) {
		if err := c.send(map[string]interface{}{
			"type": "response_chunk",
			"text": sentence,
		}); err != nil {
			return err
		}

		delivered += sentence + " "
		c.srv.store.Update(c.sessionID, session.Patch{
			PartialResponse: &delivered,
		})
	}

	done := map[string]interface{}{
		"type": "response_done",
		"text": p.Text,
	}
	if audioURL != "" {
		done["audio_url"] = audioURL
	}
	if p.MediaURL != "" {
		done["media_url"] = p.MediaURL
	}
	return c.send(done)
}

// queueRemaining stores undelivered payloads as pending messages.
func (c *wsConn) queueRemaining(payloads []agent.Payload) {
	for _, p := range payloads {
		msg := session.Message{
			"type": "response",
			"text": p.Text,
		}
		if p.MediaURL != "" {
			msg["media_url"] = p.MediaURL
		}
		c.srv.store.QueueMessage(c.sessionID, msg)
	}

	c.logger.Info("Queued undelivered response payloads",
		slog.String("session_id", c.sessionID),
		slog.Int("count", len(payloads)),
	)
}

// handleResume re-attaches the connection to an existing session and
// replays its snapshot plus any messages queued while disconnected.
func (c *wsConn) handleResume(id string) {
	store := c.srv.store

	snap, ok := store.State(id)
	if !ok {
		c.sendError("unknown session: " + id)
		return
	}
	c.sessionID = id

	sess, _ := store.Get(id)
	if c.transcriber == nil {
		c.transcriber = c.srv.newWST()
	}
	c.transcriber.Reset()
	c.transcriber.SetFormat(sess.AudioFormat, sess.SampleRate)

	pending := store.PendingMessages(id)
	if err := c.send(map[string]interface{}{
		"type":             "session_state",
		"session":          snap,
		"pending_messages": pending,
	}); err != nil {
		return
	}

	// Delivery succeeded, so the queued messages are consumed.
	store.ClearPendingMessages(id)
	store.Touch(id)

	if c.srv.metrics != nil {
		c.srv.metrics.RecordSessionRecovered()
	}

	c.logger.Info("Session resumed",
		slog.String("session_id", id),
		slog.Int("pending_messages", len(pending)),
	)
}

// send writes one JSON message to the client.
func (c *wsConn) send(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.WriteJSON(v); err != nil {
		return err
	}
	if c.srv.metrics != nil {
		c.srv.metrics.RecordWSMessageSent()
	}
	return nil
}

// sendError reports a client-visible error without closing the socket.
func (c *wsConn) sendError(msg string) {
	c.send(map[string]interface{}{
		"type":  "error",
		"error": msg,
	})
}

func statePtr(s session.State) *session.State {
	return &s
}

func strPtr(s string) *string {
	return &s
}
