package transcribe

import (
	"context"
	"sync"
)

// StreamingTranscriber exposes the chunked buffering logic as a lazy
// sequence of partial strings fed by a producer. Audio is queued without
// bound so a fast producer never blocks on a slow transcription pass; a
// nil sentinel marks end of audio and triggers finalization.
type StreamingTranscriber struct {
	inner *ChunkedTranscriber

	mu     sync.Mutex
	queue  [][]byte
	notify chan struct{}
	ended  bool
}

// NewStreamingTranscriber wraps a ChunkedTranscriber with a queue-fed
// partial stream.
func NewStreamingTranscriber(inner *ChunkedTranscriber) *StreamingTranscriber {
	return &StreamingTranscriber{
		inner:  inner,
		notify: make(chan struct{}, 1),
	}
}

// SetFormat forwards the audio format to the underlying transcriber.
func (s *StreamingTranscriber) SetFormat(format string, sampleRate int) {
	s.inner.SetFormat(format, sampleRate)
}

// Feed queues an audio chunk for transcription. Empty chunks are dropped;
// only End may enqueue the nil end-of-audio sentinel.
func (s *StreamingTranscriber) Feed(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, chunk)
	s.mu.Unlock()
	s.wake()
}

// End signals end of audio. The partial stream finalizes and stops after
// draining what is already queued.
func (s *StreamingTranscriber) End() {
	s.mu.Lock()
	if !s.ended {
		s.ended = true
		s.queue = append(s.queue, nil)
	}
	s.mu.Unlock()
	s.wake()
}

// Reset clears queued audio and the underlying transcriber state so the
// wrapper can serve a new recording span.
func (s *StreamingTranscriber) Reset() {
	s.mu.Lock()
	s.queue = nil
	s.ended = false
	s.mu.Unlock()
	s.inner.Reset()
}

// Partials consumes the queue and emits each partial transcript as it
// surfaces, then the merged final transcript, then closes. The channel is
// finite and non-restartable; call Reset before reusing the wrapper.
func (s *StreamingTranscriber) Partials(ctx context.Context) <-chan string {
	out := make(chan string)

	go func() {
		defer close(out)

		for {
			chunk, ok := s.pop()
			if !ok {
				select {
				case <-s.notify:
					continue
				case <-ctx.Done():
					return
				}
			}

			if chunk == nil {
				if final := s.inner.Finalize(ctx); final != "" {
					select {
					case out <- final:
					case <-ctx.Done():
					}
				}
				return
			}

			if partial, triggered := s.inner.FeedAudio(ctx, chunk); triggered && partial != "" {
				select {
				case out <- partial:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}

func (s *StreamingTranscriber) pop() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil, false
	}
	chunk := s.queue[0]
	s.queue = s.queue[1:]
	return chunk, true
}

func (s *StreamingTranscriber) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}
