package reconcile

import (
	"errors"
	"fmt"
	"strings"
)

// VerificationError reports expected processes still absent after the
// bounded restart retries. It never aborts an enable: the reconciler
// lands in Enabled with a degraded warning instead.
type VerificationError struct {
	Missing []string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("processes not running: %s", strings.Join(e.Missing, ", "))
}

// RollbackError reports the one genuinely bad outcome: the apply failed
// and the automatic restore of the previous descriptor failed too. The
// backup file named in BackupPath is the last known-good descriptor and
// must not be lost; callers surface the path for manual recovery.
type RollbackError struct {
	Phase      string
	BackupPath string
	ApplyErr   error
	RestoreErr error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("%s failed (%v) and descriptor rollback failed (%v); last good descriptor kept at %s",
		e.Phase, e.ApplyErr, e.RestoreErr, e.BackupPath)
}

func (e *RollbackError) Unwrap() error { return e.ApplyErr }

// IsRollbackFailure reports whether err is an irrecoverable rollback
// failure, one of the two conditions that justify a non-zero exit.
func IsRollbackFailure(err error) bool {
	var re *RollbackError
	return errors.As(err, &re)
}
