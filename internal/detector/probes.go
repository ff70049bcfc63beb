package detector

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"time"
)

// BinaryDetector checks that a required binary resolves on the PATH.
// Absolute paths are checked directly.
type BinaryDetector struct{ Binary string }

func (d BinaryDetector) Alive() (bool, error) {
	if _, err := exec.LookPath(d.Binary); err != nil {
		return false, err
	}
	return true, nil
}

func (d BinaryDetector) Describe() string { return "binary:" + d.Binary }

// FileDetector checks that a file exists and is a regular file. Used for
// the descriptor: absent means the tool has never enabled on this host.
type FileDetector struct{ Path string }

func (d FileDetector) Alive() (bool, error) {
	fi, err := os.Stat(d.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return fi.Mode().IsRegular(), nil
}

func (d FileDetector) Describe() string { return "file:" + d.Path }

// StateDetector checks that the state file, when present, can be opened
// for reading. A missing file is healthy: loads fall back to defaults.
type StateDetector struct{ Path string }

func (d StateDetector) Alive() (bool, error) {
	f, err := os.Open(d.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	_ = f.Close()
	return true, nil
}

func (d StateDetector) Describe() string { return "state:" + d.Path }

// Reachability is the probe surface the control-plane gateway exposes.
type Reachability interface {
	Reachable(ctx context.Context) error
}

// ControlPlaneDetector checks that the control plane answers its CLI.
type ControlPlaneDetector struct {
	Gateway Reachability
	Timeout time.Duration
}

func (d ControlPlaneDetector) Alive() (bool, error) {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := d.Gateway.Reachable(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (d ControlPlaneDetector) Describe() string { return "control-plane" }
