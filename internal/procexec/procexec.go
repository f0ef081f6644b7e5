// Package procexec runs the external build stages (pip, aqt, cmake) as child
// processes. Every stage is synchronous and its exit status is checked;
// failures carry the stage name, the command line and the tail of the
// combined output.
package procexec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Command is one child process invocation.
type Command struct {
	// Stage names the step for logs and errors, e.g. "cmake configure".
	Stage string
	Name  string
	Args  []string
	Dir   string
	// Env is appended to the parent environment.
	Env []string
}

// String renders the command line with arguments containing spaces quoted.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	for _, p := range append([]string{c.Name}, c.Args...) {
		if p == "" || strings.ContainsAny(p, " \t\"") {
			p = fmt.Sprintf("%q", p)
		}
		parts = append(parts, p)
	}
	return strings.Join(parts, " ")
}

// Runner executes commands. Implementations must not return until the
// process has exited.
type Runner interface {
	Run(ctx context.Context, cmd Command) error
}

// StageError reports a stage that could not be spawned, was interrupted or
// exited non-zero. ExitCode is -1 unless the process exited on its own.
type StageError struct {
	Stage    string
	Command  string
	ExitCode int
	// Interrupted is set when the process was killed by a signal or its
	// context was cancelled.
	Interrupted bool
	Output      string
	Err         error
}

func (e *StageError) Error() string {
	switch {
	case e.Interrupted:
		return fmt.Sprintf("%s: %s was interrupted: %v", e.Stage, e.Command, e.Err)
	case e.ExitCode < 0:
		return fmt.Sprintf("%s: could not start %s: %v", e.Stage, e.Command, e.Err)
	}
	return fmt.Sprintf("%s: %s exited with status %d", e.Stage, e.Command, e.ExitCode)
}

func (e *StageError) Unwrap() error { return e.Err }

// DefaultTailBytes bounds the output kept for error reports.
const DefaultTailBytes = 16 * 1024

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	Logger *zap.Logger
	// Stream, when set, receives the live combined output.
	Stream io.Writer
	// TailBytes bounds StageError.Output. Zero means DefaultTailBytes.
	TailBytes int
}

// NewExecRunner returns a runner logging to logger.
func NewExecRunner(logger *zap.Logger) *ExecRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExecRunner{Logger: logger}
}

func (r *ExecRunner) Run(ctx context.Context, c Command) error {
	limit := r.TailBytes
	if limit <= 0 {
		limit = DefaultTailBytes
	}
	tail := &TailBuffer{Max: limit}
	var out io.Writer = tail
	if r.Stream != nil {
		out = io.MultiWriter(tail, r.Stream)
	}

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	cmd.Stdout = out
	cmd.Stderr = out

	log := r.Logger.With(zap.String("stage", c.Stage))
	log.Info("Running stage.", zap.String("command", c.String()), zap.String("dir", c.Dir))
	start := time.Now()

	err := cmd.Run()
	if err != nil {
		code := -1
		interrupted := ctx.Err() != nil
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// ExitCode is -1 for a process terminated by a signal.
			code = exitErr.ExitCode()
			interrupted = interrupted || code < 0
		}
		if ctx.Err() != nil && !errors.Is(err, ctx.Err()) {
			err = fmt.Errorf("%w (%w)", err, ctx.Err())
		}
		log.Error("Stage failed.",
			zap.Int("exit_code", code),
			zap.Bool("interrupted", interrupted),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return &StageError{Stage: c.Stage, Command: c.String(), ExitCode: code, Interrupted: interrupted, Output: tail.String(), Err: err}
	}
	log.Info("Stage complete.", zap.Duration("duration", time.Since(start)))
	return nil
}

// TailBuffer is an io.Writer keeping only the last Max bytes written.
type TailBuffer struct {
	Max int
	buf []byte
	cut bool
}

func (t *TailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.Max; t.Max > 0 && over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
		t.cut = true
	}
	return len(p), nil
}

// String returns the retained output. When earlier output was dropped the
// first partial line is removed too.
func (t *TailBuffer) String() string {
	s := string(t.buf)
	if t.cut {
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		}
	}
	return s
}

// LastLines returns at most n trailing lines of s.
func LastLines(s string, n int) string {
	s = strings.TrimRight(s, "\n")
	if n <= 0 || s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
