// Package agent obtains conversational replies from the external agent CLI
// and exposes them as payload batches or as a sentence-by-sentence stream.
// Failures of the external process are never surfaced verbatim; callers
// always receive one of a small fixed set of user-safe fallback texts while
// the underlying detail goes to the log.
package agent
