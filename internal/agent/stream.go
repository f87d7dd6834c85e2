package agent

import (
	"context"
	"strings"
	"time"
	"unicode"
)

// Delay between streamed sentences, giving a downstream transport
// time-sliced chunks to forward instead of one blob.
const interSentenceDelay = 50 * time.Millisecond

const defaultProgressInterval = 10 * time.Second

// progressRotation cycles through these while a reply is still pending.
var progressRotation = []string{
	"Still working on it...",
	"This is taking a moment, hang on...",
	"Almost there...",
}

// ProgressFunc is called periodically while a reply is pending, with a
// rotating status message and the elapsed wait time.
type ProgressFunc func(message string, elapsed time.Duration)

// StreamSentences obtains a reply and emits it sentence by sentence on the
// returned channel, with a small fixed delay between items. The channel is
// finite and closes after the last sentence.
func (c *Client) StreamSentences(ctx context.Context, userText, sessionID string) <-chan string {
	out := make(chan string)

	go func() {
		defer close(out)

		text := c.Response(ctx, userText, sessionID)
		for _, sentence := range SplitSentences(text) {
			select {
			case out <- sentence:
			case <-ctx.Done():
				return
			}

			select {
			case <-time.After(interSentenceDelay):
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

// PayloadsWithProgress behaves like Payloads but invokes progress while
// the agent call is pending. The heartbeat stops before this function
// returns on every path; no callback fires after the result is available.
func (c *Client) PayloadsWithProgress(ctx context.Context, userText, sessionID string,
	progress ProgressFunc, interval time.Duration) []Payload {

	if progress == nil {
		return c.Payloads(ctx, userText, sessionID)
	}
	if interval <= 0 {
		interval = defaultProgressInterval
	}

	heartbeatCtx, cancel := context.WithCancel(ctx)
	heartbeatDone := make(chan struct{})

	go func() {
		defer close(heartbeatDone)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		start := time.Now()
		i := 0
		for {
			select {
			case <-heartbeatCtx.Done():
				return
			case <-ticker.C:
				progress(progressRotation[i%len(progressRotation)], time.Since(start))
				i++
			}
		}
	}()

	payloads := c.Payloads(ctx, userText, sessionID)

	cancel()
	<-heartbeatDone

	return payloads
}

// SplitSentences splits text on sentence-ending punctuation followed by
// whitespace, keeping the punctuation. Empty segments are dropped.
func SplitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i, r := range runes {
		current.WriteRune(r)
		if (r == '.' || r == '!' || r == '?') &&
			i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
			if s := strings.TrimSpace(current.String()); s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}

	return sentences
}
