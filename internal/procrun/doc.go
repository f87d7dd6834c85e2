// Package procrun executes external commands with per-attempt timeouts and
// automatic retry on failures that look transient, such as a dependency that
// is restarting. Benign warning noise on stderr is filtered out before a
// failure is classified.
package procrun
