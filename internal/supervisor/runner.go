package supervisor

import (
	"context"
	"os/exec"
)

// Runner executes one control-plane CLI invocation and returns its
// combined output. Implementations must honor ctx cancellation; tests
// substitute canned transcripts.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// ExecRunner invokes real commands through os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	// #nosec G204
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if ctx.Err() != nil {
		// The process was killed by the deadline; the context error is the
		// one callers classify on.
		return string(out), ctx.Err()
	}
	return string(out), err
}
