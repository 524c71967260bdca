package util

import (
	"slices"
	"testing"
	"time"
)

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{name: "go duration", value: "90s", want: 90 * time.Second},
		{name: "plain seconds", value: "2.5", want: 2500 * time.Millisecond},
		{name: "invalid falls back", value: "soon", want: time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("KIWI_TEST_DURATION", tt.value)
			if got := GetEnvDuration("KIWI_TEST_DURATION", time.Minute); got != tt.want {
				t.Fatalf("GetEnvDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvIntAndList(t *testing.T) {
	t.Setenv("KIWI_TEST_INT", " 12 ")
	if got := GetEnvInt("KIWI_TEST_INT", 3); got != 12 {
		t.Errorf("GetEnvInt() = %d, want 12", got)
	}
	if got := GetEnvInt("KIWI_TEST_UNSET", 3); got != 3 {
		t.Errorf("GetEnvInt() unset = %d, want 3", got)
	}

	t.Setenv("KIWI_TEST_LIST", "arxiv, news,,wikipedia ")
	want := []string{"arxiv", "news", "wikipedia"}
	if got := GetEnvList("KIWI_TEST_LIST", nil); !slices.Equal(got, want) {
		t.Errorf("GetEnvList() = %v, want %v", got, want)
	}
}
