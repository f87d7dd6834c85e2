// Package server exposes the HTTP API and the WebSocket voice loop.
// The HTTP layer handles one-shot transcription, synthesis, and chat
// requests; the WebSocket layer drives the streaming conversation flow
// backed by the session store.
package server
