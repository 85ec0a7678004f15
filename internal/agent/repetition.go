package agent

import "strings"

// maxFingerprintLen caps how much of a trimmed assistant message the
// repetition detector compares - long outputs are truncated rather than
// hashed, so two responses that only diverge after 200 characters still
// count as a repeat.
const maxFingerprintLen = 200

// minFingerprintLen is the shortest trimmed content the detector considers;
// anything shorter is too generic ("ok", "done") to be meaningful evidence
// of the loop being stuck.
const minFingerprintLen = 10

// repetitionWindow bounds how many recent fingerprints are remembered.
const repetitionWindow = 3

// fingerprintOf computes the repetition detector's comparison key for an
// assistant message's content, or "" if content is too short to fingerprint.
func fingerprintOf(content string) string {
	trimmed := strings.TrimSpace(content)
	if len(trimmed) < minFingerprintLen {
		return ""
	}
	if len(trimmed) > maxFingerprintLen {
		return trimmed[:maxFingerprintLen]
	}
	return trimmed
}

// repetitionDetector tracks the last few step fingerprints and flags when
// the assistant appears to be repeating itself rather than progressing.
type repetitionDetector struct {
	recent []string
}

// observe records content's fingerprint (if any) and reports whether this
// step should be forced to a completed state because the same output has
// now been seen at least twice in the window.
func (d *repetitionDetector) observe(content string) bool {
	fp := fingerprintOf(content)
	if fp == "" {
		return false
	}

	count := 0
	for _, prev := range d.recent {
		if prev == fp {
			count++
		}
	}

	d.recent = append(d.recent, fp)
	if len(d.recent) > repetitionWindow {
		d.recent = d.recent[1:]
	}

	return count >= 2
}
