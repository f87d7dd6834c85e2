package procrun

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// ErrTimeout is returned when a command exceeds its wall-clock timeout on
// the final attempt.
var ErrTimeout = errors.New("command timed out")

const (
	defaultMaxAttempts = 3
	defaultRetryDelay  = 2 * time.Second

	// Maximum stderr snippet length included in retry log records.
	stderrSnippetLen = 200
)

// benignStderrLines are substrings of stderr lines that are known warning
// noise and must not be mistaken for a real failure. Lines matching any of
// these are removed before transience classification.
var benignStderrLines = []string{
	"DeprecationWarning",
	"ExperimentalWarning",
	"FutureWarning",
	"UserWarning",
	"punycode",
	"NODE_TLS_REJECT_UNAUTHORIZED",
}

// transientStderrMarkers are substrings that mark a failure as likely to
// resolve itself on retry. Matched case-insensitively.
var transientStderrMarkers = []string{
	"econnrefused",
	"econnreset",
	"connection refused",
	"connection reset",
	"gateway",
	"temporarily unavailable",
	"service unavailable",
}

// Spec describes a single command invocation.
type Spec struct {
	Path    string
	Args    []string
	Stdin   []byte        // optional, re-supplied on every attempt
	Timeout time.Duration // per-attempt wall-clock limit; 0 means no limit
}

// Result holds the captured output of whichever attempt finally returned.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Runner executes commands with retry on transient failure.
type Runner struct {
	MaxAttempts int
	RetryDelay  time.Duration

	logger *slog.Logger
}

// NewRunner creates a runner with the given attempt budget. Zero values
// fall back to the defaults (3 attempts, 2s delay).
func NewRunner(logger *slog.Logger, maxAttempts int, retryDelay time.Duration) *Runner {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}
	return &Runner{
		MaxAttempts: maxAttempts,
		RetryDelay:  retryDelay,
		logger:      logger,
	}
}

// Run executes the command, retrying on transient failures until the
// attempt budget is exhausted. A non-zero exit is not an error: the Result
// carries the exit code and the caller decides what it means. The error
// return is reserved for a timeout (ErrTimeout), a missing binary
// (exec.ErrNotFound), and other start failures.
func (r *Runner) Run(ctx context.Context, spec Spec) (*Result, error) {
	var (
		result  *Result
		lastErr error
	)

	for attempt := 1; attempt <= r.MaxAttempts; attempt++ {
		result, lastErr = r.runOnce(ctx, spec)

		if lastErr != nil {
			// Missing binary never resolves by retrying.
			if errors.Is(lastErr, exec.ErrNotFound) || errors.Is(lastErr, os.ErrNotExist) {
				return nil, lastErr
			}
			if attempt == r.MaxAttempts {
				return nil, lastErr
			}
			r.logRetry(attempt, spec, fmt.Sprintf("error: %v", lastErr))
		} else {
			if result.ExitCode == 0 {
				return result, nil
			}
			if attempt == r.MaxAttempts || !isTransientFailure(result.Stderr) {
				return result, nil
			}
			r.logRetry(attempt, spec, stderrSnippet(result.Stderr))
		}

		select {
		case <-time.After(r.RetryDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return result, lastErr
}

// runOnce performs a single attempt under the per-attempt timeout.
func (r *Runner) runOnce(ctx context.Context, spec Spec) (*Result, error) {
	attemptCtx := ctx
	var cancel context.CancelFunc
	if spec.Timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(attemptCtx, spec.Path, spec.Args...)
	if spec.Stdin != nil {
		cmd.Stdin = bytes.NewReader(spec.Stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	if attemptCtx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("%w after %v: %s", ErrTimeout, spec.Timeout, spec.Path)
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &Result{
				Stdout:   stdout.Bytes(),
				Stderr:   stderr.Bytes(),
				ExitCode: exitErr.ExitCode(),
			}, nil
		}
		return nil, fmt.Errorf("failed to run %s: %w", spec.Path, err)
	}

	return &Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: 0,
	}, nil
}

// isTransientFailure classifies a non-zero exit by its stderr. Benign
// warning lines are stripped first; an empty remainder means the process
// died without saying why, which is treated as transient. Otherwise the
// remainder must carry a known connection/availability marker.
func isTransientFailure(stderr []byte) bool {
	meaningful := stripBenignLines(string(stderr))
	if strings.TrimSpace(meaningful) == "" {
		return true
	}

	lower := strings.ToLower(meaningful)
	for _, marker := range transientStderrMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// stripBenignLines removes stderr lines containing known warning noise.
func stripBenignLines(stderr string) string {
	lines := strings.Split(stderr, "\n")
	kept := lines[:0]
	for _, line := range lines {
		benign := false
		for _, marker := range benignStderrLines {
			if strings.Contains(line, marker) {
				benign = true
				break
			}
		}
		if !benign {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

func (r *Runner) logRetry(attempt int, spec Spec, cause string) {
	if r.logger == nil {
		return
	}
	r.logger.Warn("Retrying command after transient failure",
		slog.String("command", spec.Path),
		slog.Int("attempt", attempt),
		slog.Int("max_attempts", r.MaxAttempts),
		slog.Duration("retry_delay", r.RetryDelay),
		slog.String("cause", cause),
	)
}

func stderrSnippet(stderr []byte) string {
	s := strings.TrimSpace(string(stderr))
	if len(s) > stderrSnippetLen {
		s = s[:stderrSnippetLen]
	}
	return s
}
