package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State describes what a session is currently doing.
type State string

const (
	StateIdle         State = "idle"
	StateRecording    State = "recording"
	StateTranscribing State = "transcribing"
	StateProcessing   State = "processing"
)

const (
	defaultTTL             = time.Hour
	defaultCleanupInterval = 5 * time.Minute
)

// Message is a free-form JSON-able payload queued for later delivery to a
// disconnected client. Insertion order is delivery order.
type Message map[string]any

// Session holds one logical conversation's mutable state.
type Session struct {
	ID           string
	CreatedAt    time.Time
	LastActivity time.Time
	State        State

	PendingMessages []Message

	PartialTranscript string
	PartialResponse   string

	AudioBuffer []byte
	AudioFormat string
	SampleRate  int

	Metadata map[string]any
}

// Patch enumerates the session fields that may be updated. Nil fields are
// left unchanged; Metadata entries are merged into the existing bag.
type Patch struct {
	State             *State
	PartialTranscript *string
	PartialResponse   *string
	AudioBuffer       *[]byte
	AudioFormat       *string
	SampleRate        *int
	Metadata          map[string]any
}

// Snapshot is the read-only projection a reconnecting client needs.
type Snapshot struct {
	ID                  string `json:"session_id"`
	State               State  `json:"state"`
	PartialTranscript   string `json:"partial_transcript"`
	PartialResponse     string `json:"partial_response"`
	PendingMessageCount int    `json:"pending_message_count"`
}

// Store is an in-memory session map with TTL-based expiration. One mutex
// guards the whole map; all operations are short, so the coarse lock is
// not a bottleneck at expected scale.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session

	ttl             time.Duration
	cleanupInterval time.Duration
	logger          *slog.Logger
	metrics         Metrics

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Metrics receives store lifecycle events. A nil-safe no-op implementation
// is used when nothing is wired.
type Metrics interface {
	SessionCreated()
	SessionRemoved()
	SetActiveSessions(count int)
}

type noopMetrics struct{}

func (noopMetrics) SessionCreated()        {}
func (noopMetrics) SessionRemoved()        {}
func (noopMetrics) SetActiveSessions(int)  {}

// Config controls store expiry behavior.
type Config struct {
	TTL             time.Duration
	CleanupInterval time.Duration
}

// NewStore creates a session store and starts its periodic cleanup sweep.
// The sweep runs until Stop is called.
func NewStore(logger *slog.Logger, cfg Config, metrics Metrics) *Store {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = defaultCleanupInterval
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		sessions:        make(map[string]*Session),
		ttl:             cfg.TTL,
		cleanupInterval: cfg.CleanupInterval,
		logger:          logger,
		metrics:         metrics,
		ctx:             ctx,
		cancel:          cancel,
		done:            make(chan struct{}),
	}

	go s.cleanupLoop()

	return s
}

// Stop cancels the cleanup sweep and waits for it to finish.
func (s *Store) Stop() {
	s.cancel()
	<-s.done
}

// Create allocates a new session with default state and returns its id.
func (s *Store) Create() string {
	now := time.Now()
	sess := &Session{
		ID:           uuid.New().String(),
		CreatedAt:    now,
		LastActivity: now,
		State:        StateIdle,
		AudioFormat:  "webm",
		SampleRate:   48000,
		Metadata:     make(map[string]any),
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	count := len(s.sessions)
	s.mu.Unlock()

	s.metrics.SessionCreated()
	s.metrics.SetActiveSessions(count)
	s.logger.Info("Created session", slog.String("session_id", sess.ID))

	return sess.ID
}

// Get returns a copy of the session, or ok=false if it does not exist or
// has sat idle past the TTL. An expired session is deleted on the spot, so
// an absent session and an expired one are indistinguishable to callers.
func (s *Store) Get(id string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, false
	}

	if age := time.Since(sess.LastActivity); age > s.ttl {
		delete(s.sessions, id)
		s.metrics.SessionRemoved()
		s.metrics.SetActiveSessions(len(s.sessions))
		s.logger.Info("Session expired",
			slog.String("session_id", id),
			slog.Duration("age", age),
		)
		return Session{}, false
	}

	return copySession(sess), true
}

// Update merges the patch into the session and touches its activity time.
// Returns whether the session existed.
func (s *Store) Update(id string, patch Patch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return false
	}

	if patch.State != nil {
		sess.State = *patch.State
	}
	if patch.PartialTranscript != nil {
		sess.PartialTranscript = *patch.PartialTranscript
	}
	if patch.PartialResponse != nil {
		sess.PartialResponse = *patch.PartialResponse
	}
	if patch.AudioBuffer != nil {
		sess.AudioBuffer = append([]byte(nil), (*patch.AudioBuffer)...)
	}
	if patch.AudioFormat != nil {
		sess.AudioFormat = *patch.AudioFormat
	}
	if patch.SampleRate != nil {
		sess.SampleRate = *patch.SampleRate
	}
	for k, v := range patch.Metadata {
		sess.Metadata[k] = v
	}

	sess.LastActivity = time.Now()
	return true
}

// Touch updates the session's activity timestamp only.
func (s *Store) Touch(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return false
	}
	sess.LastActivity = time.Now()
	return true
}

// Delete removes a session. Returns whether it existed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	_, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	count := len(s.sessions)
	s.mu.Unlock()

	if ok {
		s.metrics.SessionRemoved()
		s.metrics.SetActiveSessions(count)
		s.logger.Info("Deleted session", slog.String("session_id", id))
	}
	return ok
}

// QueueMessage appends a message for delivery when the client reconnects,
// and touches activity. Returns whether the session existed.
func (s *Store) QueueMessage(id string, msg Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return false
	}

	sess.PendingMessages = append(sess.PendingMessages, msg)
	sess.LastActivity = time.Now()

	s.logger.Debug("Queued message",
		slog.String("session_id", id),
		slog.Any("type", msg["type"]),
		slog.Int("pending", len(sess.PendingMessages)),
	)
	return true
}

// PendingMessages returns a snapshot of the queued messages in append
// order without clearing them.
func (s *Store) PendingMessages(id string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	out := make([]Message, len(sess.PendingMessages))
	copy(out, sess.PendingMessages)
	return out
}

// ClearPendingMessages drops the queued messages. Call only after the
// delivery has been confirmed. Returns whether the session existed.
func (s *Store) ClearPendingMessages(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return false
	}
	sess.PendingMessages = nil
	return true
}

// CleanupStale removes every session idle longer than maxAge (the store
// TTL when maxAge <= 0) and returns how many were removed.
func (s *Store) CleanupStale(maxAge time.Duration) int {
	if maxAge <= 0 {
		maxAge = s.ttl
	}
	cutoff := time.Now().Add(-maxAge)

	s.mu.Lock()
	removed := 0
	for id, sess := range s.sessions {
		if sess.LastActivity.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	count := len(s.sessions)
	s.mu.Unlock()

	if removed > 0 {
		for i := 0; i < removed; i++ {
			s.metrics.SessionRemoved()
		}
		s.metrics.SetActiveSessions(count)
		s.logger.Info("Cleaned up stale sessions", slog.Int("removed", removed))
	}
	return removed
}

// ActiveCount returns the number of sessions currently held.
func (s *Store) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// State returns the reconnect projection for a session, or ok=false if it
// is absent or expired.
func (s *Store) State(id string) (Snapshot, bool) {
	sess, ok := s.Get(id)
	if !ok {
		return Snapshot{}, false
	}
	return Snapshot{
		ID:                  sess.ID,
		State:               sess.State,
		PartialTranscript:   sess.PartialTranscript,
		PartialResponse:     sess.PartialResponse,
		PendingMessageCount: len(sess.PendingMessages),
	}, true
}

// cleanupLoop periodically sweeps stale sessions until the store stops.
func (s *Store) cleanupLoop() {
	defer close(s.done)

	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	s.logger.Info("Session cleanup sweep started",
		slog.Duration("interval", s.cleanupInterval),
		slog.Duration("ttl", s.ttl),
	)

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Info("Session cleanup sweep stopping")
			return
		case <-ticker.C:
			removed := s.CleanupStale(0)
			if removed > 0 {
				s.logger.Debug("Session cleanup pass",
					slog.Int("removed", removed),
					slog.Int("active", s.ActiveCount()),
				)
			}
		}
	}
}

// copySession returns a deep copy so no caller retains a reference into
// the store's state outside the lock.
func copySession(sess *Session) Session {
	out := *sess

	out.PendingMessages = make([]Message, len(sess.PendingMessages))
	copy(out.PendingMessages, sess.PendingMessages)

	out.AudioBuffer = append([]byte(nil), sess.AudioBuffer...)

	out.Metadata = make(map[string]any, len(sess.Metadata))
	for k, v := range sess.Metadata {
		out.Metadata[k] = v
	}

	return out
}
