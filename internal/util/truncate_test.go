package util

import (
	"strings"
	"testing"
)

func TestTruncateLog(t *testing.T) {
	tests := []struct {
		name  string
		input string
		max   int
		want  string
	}{
		{name: "short", input: "short log", max: DefaultLogMaxLen, want: "short log"},
		{name: "exact limit", input: "12345678901234567890", max: 20, want: "12345678901234567890"},
		{name: "long", input: "1234567890abcdefghij", max: 10, want: "1234567890... [truncated, 20 bytes total]"},
		{name: "empty", input: "", max: 10, want: ""},
		{name: "negative max", input: "abc", max: -1, want: "... [truncated, 3 bytes total]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TruncateLog(tt.input, tt.max); got != tt.want {
				t.Fatalf("TruncateLog() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTruncateBytes_LongBytes(t *testing.T) {
	input := []byte(strings.Repeat("x", DefaultLogMaxLen+10))
	result := TruncateBytes(input)
	if !strings.HasSuffix(result, "[truncated, 1034 bytes total]") {
		t.Fatalf("unexpected suffix: %q", result[len(result)-40:])
	}
}

func TestMaskToken(t *testing.T) {
	if got := MaskToken(""); got != "" {
		t.Fatalf("MaskToken(\"\") = %q", got)
	}
	if got := MaskToken("short"); got != "***" {
		t.Fatalf("MaskToken(short) = %q, want ***", got)
	}
	got := MaskToken("eyJhbGciOiJSUzI1NiIsImtpZCI6IjFD")
	if got != "...ZCI6IjFD" {
		t.Fatalf("MaskToken(long) = %q", got)
	}
	if strings.Contains(got, "eyJhbGci") {
		t.Fatalf("MaskToken leaked token prefix: %q", got)
	}
}
