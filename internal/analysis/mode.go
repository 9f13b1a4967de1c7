// Package analysis runs one video through the Gemini pipeline: resolve the
// media reference (inline or uploaded), wait for remote processing, generate
// the mode-specific report and normalise the untrusted response into a Result.
package analysis

import (
	"fmt"
	"strings"
)

// Mode selects how much the model is asked to produce. It is fixed for the
// lifetime of a job.
type Mode string

const (
	// ModeFast asks for summary, key takeaways and action items only.
	ModeFast Mode = "fast"
	// ModeDeep additionally asks for a mind map and timestamps.
	ModeDeep Mode = "deep"
)

// ParseMode converts user input ("fast", "DEEP", " deep ") into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeFast:
		return ModeFast, nil
	case ModeDeep:
		return ModeDeep, nil
	default:
		return "", fmt.Errorf("unknown analysis mode %q (want fast or deep)", s)
	}
}

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	return m == ModeFast || m == ModeDeep
}

// Label returns the Chinese display name.
func (m Mode) Label() string {
	switch m {
	case ModeDeep:
		return "深度分析"
	default:
		return "快速分析"
	}
}
