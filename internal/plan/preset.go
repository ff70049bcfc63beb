package plan

import "strconv"

// Quick-setup preset names.
const (
	PresetLight   = "light"
	PresetDefault = "default"
	PresetHeavy   = "heavy"
)

// PresetNames lists the known presets in menu order.
func PresetNames() []string {
	return []string{PresetLight, PresetDefault, PresetHeavy}
}

// Preset returns the raw input for a named quick-setup preset. Presets
// are ordinary input: they still go through the validator, so a light
// preset on a 0-core detection or a mistyped name cannot produce an
// out-of-range plan. An empty name selects the default preset.
func Preset(name string, detectedCores int) (Raw, bool) {
	cores := strconv.Itoa(clamp(detectedCores, 1, MaxUsableCores))
	switch name {
	case PresetLight:
		return Raw{CPUCores: "1", CPULoadPercent: "10", MemoryPercent: "10"}, true
	case PresetDefault, "":
		return Raw{CPUCores: cores, CPULoadPercent: "15", MemoryPercent: "15"}, true
	case PresetHeavy:
		return Raw{CPUCores: cores, CPULoadPercent: "30", MemoryPercent: "30"}, true
	}
	return Raw{}, false
}
