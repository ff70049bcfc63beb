package supervisor

import (
	"errors"
	"fmt"
	"testing"
)

func TestControlPlaneErrorString(t *testing.T) {
	err := newError(Unavailable, "start group",
		"unix:///var/run/supervisor.sock refused connection\nsecond line",
		errors.New("exit status 4"))
	want := "control plane start group: unavailable: exit status 4 (unix:///var/run/supervisor.sock refused connection)"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
}

func TestControlPlaneErrorStringWithoutCause(t *testing.T) {
	err := newError(Rejected, "reread", "", nil)
	want := "control plane reread: rejected"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
}

func TestKindHelpers(t *testing.T) {
	unavailable := newError(Unavailable, "version", "", errors.New("boom"))
	rejected := newError(Rejected, "update", "", nil)
	timeout := newError(Timeout, "status", "", nil)

	if !IsUnavailable(unavailable) || IsUnavailable(rejected) || IsUnavailable(nil) {
		t.Error("IsUnavailable misclassified")
	}
	if !IsRejected(rejected) || IsRejected(timeout) {
		t.Error("IsRejected misclassified")
	}
	if !IsTimeout(timeout) || IsTimeout(unavailable) {
		t.Error("IsTimeout misclassified")
	}

	// Helpers must see through wrapping.
	wrapped := fmt.Errorf("enable: %w", unavailable)
	if !IsUnavailable(wrapped) {
		t.Error("expected IsUnavailable to unwrap")
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("exit status 4")
	err := newError(Unavailable, "start group", "", cause)
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to reach the cause")
	}
}

func TestFirstLine(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"\n\n", ""},
		{"one", "one"},
		{"\n  padded first  \nsecond", "padded first"},
	}
	for _, tc := range cases {
		if got := firstLine(tc.in); got != tc.want {
			t.Errorf("firstLine(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
