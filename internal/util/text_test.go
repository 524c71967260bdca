package util

import "testing"

func TestSanitizePostgresText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "clean fragment", input: "let's ship the canary on friday", want: "let's ship the canary on friday"},
		{name: "nul from the recognizer", input: "latency\x00 budget", want: "latency budget"},
		{name: "broken utf8 byte", input: "caf" + string([]byte{0xc3}) + " meeting", want: "caf meeting"},
		{name: "multibyte kept", input: "Grüße aus München", want: "Grüße aus München"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizePostgresText(tt.input); got != tt.want {
				t.Fatalf("SanitizePostgresText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSanitizeJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "escaped nul", input: `{"text":"a\u0000b"}`, want: `{"text":"ab"}`},
		{name: "untouched", input: `{"kind":"chunk","words":12}`, want: `{"kind":"chunk","words":12}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(SanitizeJSON([]byte(tt.input))); got != tt.want {
				t.Fatalf("SanitizeJSON() = %s, want %s", got, tt.want)
			}
		})
	}
}
