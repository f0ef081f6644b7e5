// Package proctest provides a procexec.Runner that records commands instead
// of spawning them.
package proctest

import (
	"context"
	"sync"

	"github.com/varalys/diego/internal/procexec"
)

// Recorder records every command. Handle, when set, runs in place of the
// process and may create files to simulate its side effects.
type Recorder struct {
	Handle func(ctx context.Context, cmd procexec.Command) error

	mu   sync.Mutex
	cmds []procexec.Command
}

func (r *Recorder) Run(ctx context.Context, cmd procexec.Command) error {
	r.mu.Lock()
	r.cmds = append(r.cmds, cmd)
	handle := r.Handle
	r.mu.Unlock()
	if handle == nil {
		return nil
	}
	return handle(ctx, cmd)
}

// Commands returns a copy of the recorded commands.
func (r *Recorder) Commands() []procexec.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]procexec.Command(nil), r.cmds...)
}

// Count is the number of recorded commands.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cmds)
}

// Stages lists the recorded stage names in order.
func (r *Recorder) Stages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.cmds))
	for i, c := range r.cmds {
		out[i] = c.Stage
	}
	return out
}

// Reset forgets recorded commands.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cmds = nil
}

// Fail returns a StageError shaped like a non-zero exit of cmd.
func Fail(cmd procexec.Command, code int, output string) error {
	return &procexec.StageError{Stage: cmd.Stage, Command: cmd.String(), ExitCode: code, Output: output}
}
