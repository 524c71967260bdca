package store

import (
	"errors"
	"fmt"
	"testing"
)

func TestChunkRange(t *testing.T) {
	tests := []struct {
		name      string
		total     int
		chunkSize int
		want      string
	}{
		{name: "even split", total: 4, chunkSize: 2, want: "[0,2)[2,4)"},
		{name: "remainder", total: 5, chunkSize: 2, want: "[0,2)[2,4)[4,5)"},
		{name: "zero chunk size is one window", total: 3, chunkSize: 0, want: "[0,3)"},
		{name: "empty", total: 0, chunkSize: 2, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ""
			err := ChunkRange(tt.total, tt.chunkSize, func(start, end int) error {
				got += fmt.Sprintf("[%d,%d)", start, end)
				return nil
			})
			if err != nil {
				t.Fatalf("ChunkRange() error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("ChunkRange() windows = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestChunkRangeStopsOnError(t *testing.T) {
	calls := 0
	err := ChunkRange(10, 3, func(start, end int) error {
		calls++
		return errors.New("boom")
	})
	if err == nil || calls != 1 {
		t.Fatalf("ChunkRange() error = %v after %d calls, want boom after 1", err, calls)
	}
}
