package ai

import (
	"reflect"
	"testing"
)

type topicsAnswer struct {
	Topics []string `json:"topics"`
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantStatus DecodeStatus
		wantTopics []string
	}{
		{
			name:       "strict json",
			input:      `{"topics":["MongoDB sharding","write concern"]}`,
			wantStatus: DecodeOK,
			wantTopics: []string{"MongoDB sharding", "write concern"},
		},
		{
			name:       "code fence",
			input:      "```json\n{\"topics\":[\"Kafka\"]}\n```",
			wantStatus: DecodeFallback,
			wantTopics: []string{"Kafka"},
		},
		{
			name:       "prose around object",
			input:      `Here is what I found: {"topics": ["Raft"]} Hope this helps!`,
			wantStatus: DecodeFallback,
			wantTopics: []string{"Raft"},
		},
		{
			name:       "malformed object",
			input:      `{topics: ['Paxos',]}`,
			wantStatus: DecodeFallback,
			wantTopics: []string{"Paxos"},
		},
		{
			name:       "empty",
			input:      "   ",
			wantStatus: DecodeFailed,
		},
		{
			name:       "no json at all",
			input:      "I could not find any topics in this text.",
			wantStatus: DecodeFailed,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got topicsAnswer
			res := Decode(tc.input, &got)
			if res.Status != tc.wantStatus {
				t.Fatalf("Decode() status = %v, want %v (err: %v)", res.Status, tc.wantStatus, res.Err)
			}
			if tc.wantStatus == DecodeFailed {
				if res.Err == nil {
					t.Error("Decode() failed without an error")
				}
				return
			}
			if !reflect.DeepEqual(got.Topics, tc.wantTopics) {
				t.Errorf("Decode() topics = %v, want %v", got.Topics, tc.wantTopics)
			}
		})
	}
}

func TestDecodePrefersArrayWhenItOpensFirst(t *testing.T) {
	var got []topicsAnswer
	res := Decode(`Result: [{"topics":["a"]},{"topics":["b"]}]`, &got)
	if !res.OK() {
		t.Fatalf("Decode() failed: %v", res.Err)
	}
	if len(got) != 2 {
		t.Fatalf("Decode() len = %d, want 2", len(got))
	}
}

func TestApplyOptions(t *testing.T) {
	got := ApplyOptions(
		GenerateOptions{Model: "base", Temperature: 0.3},
		WithModel("gpt-4o-mini"),
		WithJSONFormat(),
		WithTemperature(0.1),
	)
	if got.Model != "gpt-4o-mini" || !got.JSON || got.Temperature != 0.1 {
		t.Errorf("ApplyOptions() = %+v", got)
	}
}

func TestRepairInto(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantTopics []string
		wantErr    bool
	}{
		{name: "plain", input: `{"topics":["CRDT"]}`, wantTopics: []string{"CRDT"}},
		{name: "double encoded", input: `"{\"topics\":[\"gRPC\"]}"`, wantTopics: []string{"gRPC"}},
		{name: "doubled opening brace", input: `{ {"topics":["QUIC"]}`, wantTopics: []string{"QUIC"}},
		{name: "trailing comma", input: `{"topics":["eBPF",]}`, wantTopics: []string{"eBPF"}},
		{name: "wrong shape", input: `{"topics":"not a list"}`, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got topicsAnswer
			err := repairInto(tc.input, &got)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("repairInto() error = nil, want an error (got %v)", got.Topics)
				}
				return
			}
			if err != nil {
				t.Fatalf("repairInto() error = %v", err)
			}
			if !reflect.DeepEqual(got.Topics, tc.wantTopics) {
				t.Errorf("repairInto() topics = %v, want %v", got.Topics, tc.wantTopics)
			}
		})
	}
}
