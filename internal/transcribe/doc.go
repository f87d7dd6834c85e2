// Package transcribe buffers streamed audio and transcribes it in chunks so
// partial text is available before a recording ends. Chunk boundaries are
// estimated by byte count, with a trailing overlap window retained across
// passes to avoid cutting words; the merge step collapses the duplicate
// words that overlap produces.
package transcribe
