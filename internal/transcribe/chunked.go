package transcribe

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

const (
	defaultChunkDuration = 3 * time.Second
	defaultOverlap       = 500 * time.Millisecond

	// Rough bytes-per-millisecond estimates per container format. The
	// buffer is never decoded, only sliced by byte count, so these only
	// size the trigger thresholds.
	bytesPerMsOpus = 2 // ~16 kbps webm/opus
	bytesPerMsAAC  = 4 // ~32 kbps mp4/AAC
)

// Engine transcribes a slice of encoded audio to text. Implementations are
// expected to be safe for sequential reuse.
type Engine interface {
	Transcribe(ctx context.Context, audio []byte, format string) (string, error)
}

// Metrics receives the outcome of each transcription pass.
type Metrics interface {
	RecordTranscriptionPass(durationSeconds float64)
	RecordTranscriptionFailure(durationSeconds float64)
}

type noopMetrics struct{}

func (noopMetrics) RecordTranscriptionPass(float64)    {}
func (noopMetrics) RecordTranscriptionFailure(float64) {}

// ChunkedTranscriber accumulates audio bytes and runs a transcription pass
// each time a chunk's worth has been buffered. It is driven by a single
// session's call chain and needs no internal locking.
type ChunkedTranscriber struct {
	chunkDuration time.Duration
	overlap       time.Duration

	engine  Engine
	logger  *slog.Logger
	metrics Metrics

	buf        []byte
	format     string
	sampleRate int
	bytesPerMs int

	partials []string
}

// Config controls chunk sizing for a ChunkedTranscriber.
type Config struct {
	ChunkDuration time.Duration
	Overlap       time.Duration

	// Metrics may be nil when instrumentation is not wanted.
	Metrics Metrics
}

// NewChunkedTranscriber creates a transcriber that delegates each pass to
// the given engine. Zero config values fall back to 3s chunks with 500ms
// overlap.
func NewChunkedTranscriber(engine Engine, logger *slog.Logger, cfg Config) *ChunkedTranscriber {
	if cfg.ChunkDuration <= 0 {
		cfg.ChunkDuration = defaultChunkDuration
	}
	if cfg.Overlap <= 0 {
		cfg.Overlap = defaultOverlap
	}
	if cfg.Metrics == nil {
		cfg.Metrics = noopMetrics{}
	}
	return &ChunkedTranscriber{
		chunkDuration: cfg.ChunkDuration,
		overlap:       cfg.Overlap,
		engine:        engine,
		logger:        logger,
		metrics:       cfg.Metrics,
		format:        "webm",
		sampleRate:    48000,
		bytesPerMs:    bytesPerMsOpus,
	}
}

// SetFormat selects the bytes-per-millisecond estimate for incoming audio.
func (t *ChunkedTranscriber) SetFormat(format string, sampleRate int) {
	t.format = format
	t.sampleRate = sampleRate

	switch format {
	case "webm", "opus":
		t.bytesPerMs = bytesPerMsOpus
	case "mp4":
		t.bytesPerMs = bytesPerMsAAC
	case "wav":
		t.bytesPerMs = sampleRate * 2 / 1000 // 16-bit mono
	}
}

// FeedAudio appends a chunk to the buffer. Once a full chunk duration's
// worth of bytes has accumulated it runs a transcription pass and returns
// the partial text with ok=true. ok=false means not enough audio yet.
func (t *ChunkedTranscriber) FeedAudio(ctx context.Context, chunk []byte) (string, bool) {
	t.buf = append(t.buf, chunk...)

	if len(t.buf) < t.chunkBytes() {
		return "", false
	}

	return t.transcribeChunk(ctx, false), true
}

// Finalize transcribes any remaining buffered audio, merges all partial
// transcripts into one string, and resets the transcriber for reuse.
func (t *ChunkedTranscriber) Finalize(ctx context.Context) string {
	if len(t.buf) > 0 {
		t.transcribeChunk(ctx, true)
	}

	full := mergeTranscripts(t.partials)
	t.Reset()
	return full
}

// Reset clears all buffered audio and collected partials.
func (t *ChunkedTranscriber) Reset() {
	t.buf = nil
	t.partials = nil
}

// BufferedBytes reports how much audio is currently buffered.
func (t *ChunkedTranscriber) BufferedBytes() int {
	return len(t.buf)
}

func (t *ChunkedTranscriber) chunkBytes() int {
	return int(t.chunkDuration.Milliseconds()) * t.bytesPerMs
}

func (t *ChunkedTranscriber) overlapBytes() int {
	return int(t.overlap.Milliseconds()) * t.bytesPerMs
}

// transcribeChunk runs one pass over the buffered audio. On a final pass
// the whole buffer is consumed; otherwise one chunk is consumed and the
// trailing overlap window is kept as the seed for the next chunk. A failed
// pass returns "" and the consumed bytes are not restored.
func (t *ChunkedTranscriber) transcribeChunk(ctx context.Context, final bool) string {
	if len(t.buf) == 0 {
		return ""
	}

	var audio []byte
	if final {
		audio = t.buf
		t.buf = nil
	} else {
		n := t.chunkBytes()
		if n > len(t.buf) {
			n = len(t.buf)
		}
		audio = make([]byte, n)
		copy(audio, t.buf[:n])

		keepFrom := n - t.overlapBytes()
		if keepFrom < 0 {
			keepFrom = 0
		}
		t.buf = append([]byte(nil), t.buf[keepFrom:]...)
	}

	start := time.Now()
	text, err := t.engine.Transcribe(ctx, audio, t.format)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		t.metrics.RecordTranscriptionFailure(elapsed)
		if t.logger != nil {
			t.logger.Error("Transcription pass failed",
				slog.Int("audio_bytes", len(audio)),
				slog.String("format", t.format),
				slog.String("error", err.Error()),
			)
		}
		return ""
	}
	t.metrics.RecordTranscriptionPass(elapsed)

	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	t.partials = append(t.partials, text)
	return text
}

// mergeTranscripts joins partials with single spaces and collapses
// immediately-adjacent duplicate words (case-insensitive against the
// previous emitted word only). This is a heuristic for overlap-induced
// repetition, not an alignment pass; non-adjacent repeats are kept.
func mergeTranscripts(partials []string) string {
	if len(partials) == 0 {
		return ""
	}
	if len(partials) == 1 {
		return partials[0]
	}

	words := strings.Fields(strings.Join(partials, " "))
	cleaned := words[:0]
	for i, word := range words {
		if i == 0 || !strings.EqualFold(word, words[i-1]) {
			cleaned = append(cleaned, word)
		}
	}
	return strings.Join(cleaned, " ")
}
