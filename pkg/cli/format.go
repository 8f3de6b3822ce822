package cli

import (
	"fmt"
	"time"
)

// FormatDuration formats a duration to a short human readable string
func FormatDuration(d time.Duration) string {
	ms := d.Milliseconds()
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	secs := float64(ms) / 1000
	if secs < 60 {
		return fmt.Sprintf("%.1fs", secs)
	}
	mins := int(secs / 60)
	secs = secs - float64(mins*60)
	return fmt.Sprintf("%dm%.1fs", mins, secs)
}

// FormatFrames formats an inclusive frame range, e.g. "10-250 (241)".
func FormatFrames(first, last int) string {
	return fmt.Sprintf("%d-%d (%d)", first, last, last-first+1)
}

// FormatVector formats a joint position or quaternion with fixed precision.
func FormatVector(v ...float64) string {
	s := "("
	for i, x := range v {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%+.3f", x)
	}
	return s + ")"
}
