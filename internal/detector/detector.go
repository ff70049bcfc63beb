package detector

import "sort"

// Detector is one health probe for the health-check view. Implementations
// check a single precondition the reconciler depends on: a binary on the
// PATH, a reachable control plane, a file in place.
// It must be safe for concurrent use.
type Detector interface {
	// Alive returns true if the probed dependency is usable.
	Alive() (bool, error)
	// Describe returns a human-readable description of the probe.
	Describe() string
}

// Check is the outcome of running one detector.
type Check struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	OK          bool   `json:"ok"`
	Detail      string `json:"detail,omitempty"`
}

// Run executes every probe and collects results in name order, so the
// health table is stable across invocations. Probe failures land in
// the report, never in an error: health output is informational and a
// failing check must not abort the run.
func Run(probes map[string]Detector) []Check {
	names := make([]string, 0, len(probes))
	for name := range probes {
		names = append(names, name)
	}
	sort.Strings(names)

	checks := make([]Check, 0, len(probes))
	for _, name := range names {
		d := probes[name]
		c := Check{Name: name, Description: d.Describe()}
		ok, err := d.Alive()
		c.OK = ok
		if err != nil {
			c.OK = false
			c.Detail = err.Error()
		}
		checks = append(checks, c)
	}
	return checks
}
