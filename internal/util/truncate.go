package util

import "fmt"

const (
	// DefaultLogMaxLen is the default maximum length for truncated log output (1KB).
	DefaultLogMaxLen = 1024

	// BodyPreviewLen bounds third-party response bodies echoed from sandboxed fetch calls.
	BodyPreviewLen = 500
)

// TruncateLog truncates long strings for verbose logging.
func TruncateLog(s string, maxLen int) string {
	if maxLen < 0 {
		maxLen = 0
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + fmt.Sprintf("... [truncated, %d bytes total]", len(s))
}

// TruncateBytes is TruncateLog for byte slices using DefaultLogMaxLen.
func TruncateBytes(b []byte) string {
	return TruncateLog(string(b), DefaultLogMaxLen)
}

// MaskToken hides all but the tail of a credential so it can appear in logs.
func MaskToken(t string) string {
	if t == "" {
		return ""
	}
	if len(t) < 20 {
		return "***"
	}
	return "..." + t[len(t)-8:]
}
