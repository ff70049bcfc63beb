package plan

import (
	"strconv"
	"strings"
)

// Coercion records one field the validator had to normalize. Coercions are
// informational, never errors; callers may log them and nothing more.
type Coercion struct {
	Field  string
	Given  string
	Used   int
	Reason string
}

// Validator bounds-checks raw input against the machine limits it was
// built with. Normalize never fails: each field is resolved independently
// and the result is always a fully in-range Plan.
type Validator struct {
	// DetectedCores is the usable core count of this machine, normally
	// DetectCores(). Values outside [1, MaxUsableCores] are themselves
	// clamped before use.
	DetectedCores int
	// LastGood, when set, supplies per-field fallbacks for empty or
	// non-numeric input instead of the compiled-in defaults.
	LastGood *Plan
}

func NewValidator(detectedCores int, lastGood *Plan) Validator {
	return Validator{DetectedCores: detectedCores, LastGood: lastGood}
}

// Normalize resolves r into an in-range Plan plus the list of coercions it
// applied. Pure: no logging, no persistence, no reads beyond the receiver.
func (v Validator) Normalize(r Raw) (Plan, []Coercion) {
	maxCores := clamp(v.DetectedCores, 1, MaxUsableCores)
	def := Default(maxCores)

	var cs []Coercion
	p := Plan{
		CPUCores:       v.field(&cs, "cpu_cores", r.CPUCores, v.fallback(func(p Plan) int { return p.CPUCores }, def.CPUCores), 1, maxCores),
		CPULoadPercent: v.field(&cs, "cpu_load_percent", r.CPULoadPercent, v.fallback(func(p Plan) int { return p.CPULoadPercent }, def.CPULoadPercent), MinPercent, MaxPercent),
		MemoryPercent:  v.field(&cs, "memory_percent", r.MemoryPercent, v.fallback(func(p Plan) int { return p.MemoryPercent }, def.MemoryPercent), MinPercent, MaxPercent),
	}
	return p, cs
}

// fallback picks the last-good value for a field when one is available.
func (v Validator) fallback(get func(Plan) int, def int) int {
	if v.LastGood != nil {
		return get(*v.LastGood)
	}
	return def
}

func (v Validator) field(cs *[]Coercion, name, given string, fallback, lo, hi int) int {
	s := strings.TrimSpace(given)
	if s == "" {
		n := clamp(fallback, lo, hi)
		if n != fallback {
			*cs = append(*cs, Coercion{Field: name, Given: given, Used: n, Reason: "fallback out of range"})
		}
		return n
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		n = clamp(fallback, lo, hi)
		*cs = append(*cs, Coercion{Field: name, Given: given, Used: n, Reason: "not a number"})
		return n
	}
	switch {
	case n < lo:
		*cs = append(*cs, Coercion{Field: name, Given: given, Used: lo, Reason: "below minimum"})
		return lo
	case n > hi:
		*cs = append(*cs, Coercion{Field: name, Given: given, Used: hi, Reason: "above maximum"})
		return hi
	}
	return n
}
