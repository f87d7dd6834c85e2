// Package session provides the in-memory store for voice conversation
// sessions. Sessions survive client disconnects so a reconnecting client
// can recover in-flight state and queued messages; idle sessions expire
// lazily on lookup and through a periodic background sweep.
package session
