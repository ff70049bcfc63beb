package supervisor

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a control-plane failure.
type Kind string

const (
	// Unavailable: the control-plane daemon or its CLI cannot be reached.
	Unavailable Kind = "unavailable"
	// Rejected: the plane answered but refused the request or flagged an
	// error in its output.
	Rejected Kind = "rejected"
	// Timeout: the command did not finish within its budget.
	Timeout Kind = "timeout"
)

// ControlPlaneError is the only error type gateway operations return.
type ControlPlaneError struct {
	Kind   Kind
	Op     string
	Output string
	Err    error
}

func (e *ControlPlaneError) Error() string {
	msg := fmt.Sprintf("control plane %s: %s", e.Op, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if s := firstLine(e.Output); s != "" {
		msg += " (" + s + ")"
	}
	return msg
}

func (e *ControlPlaneError) Unwrap() error { return e.Err }

func newError(kind Kind, op, output string, err error) *ControlPlaneError {
	return &ControlPlaneError{Kind: kind, Op: op, Output: output, Err: err}
}

func IsUnavailable(err error) bool { return hasKind(err, Unavailable) }
func IsRejected(err error) bool    { return hasKind(err, Rejected) }
func IsTimeout(err error) bool     { return hasKind(err, Timeout) }

func hasKind(err error, kind Kind) bool {
	var cpe *ControlPlaneError
	return errors.As(err, &cpe) && cpe.Kind == kind
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			return line
		}
	}
	return ""
}
