package logger

import (
	"reflect"
	"testing"
)

type recordedCall struct {
	level   string
	message string
	keyvals []any
}

type recorder struct {
	calls []recordedCall
}

func (r *recorder) add(level, msg string, kv []any) {
	r.calls = append(r.calls, recordedCall{level: level, message: msg, keyvals: kv})
}

func (r *recorder) Log(m string, kv ...any)   { r.add("log", m, kv) }
func (r *recorder) Debug(m string, kv ...any) { r.add("debug", m, kv) }
func (r *recorder) Info(m string, kv ...any)  { r.add("info", m, kv) }
func (r *recorder) Warn(m string, kv ...any)  { r.add("warn", m, kv) }
func (r *recorder) Error(m string, kv ...any) { r.add("error", m, kv) }
func (r *recorder) Fatal(m string, kv ...any) { r.add("fatal", m, kv) }

func TestLogDispatchesToAllInstances(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	Init(a, b)
	t.Cleanup(func() { Init() })

	Info("hello", "k", 1)
	Log("plain", "k", 2)

	for _, r := range []*recorder{a, b} {
		if len(r.calls) != 2 {
			t.Fatalf("calls = %d, want 2", len(r.calls))
		}
		if r.calls[1].level != "log" || !reflect.DeepEqual(r.calls[1].keyvals, []any{"k", 2}) {
			t.Errorf("Log() forwarded %+v, want keyvals preserved", r.calls[1])
		}
	}
}

func TestComponentPrefixAndKeyvals(t *testing.T) {
	r := &recorder{}
	Init(r)
	t.Cleanup(func() { Init() })

	log := Component("Research").With("session", "s1")
	log.Warn("provider failed", "provider", "arxiv")

	if len(r.calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(r.calls))
	}
	got := r.calls[0]
	if got.message != "[Research] provider failed" {
		t.Errorf("message = %q, want %q", got.message, "[Research] provider failed")
	}
	want := []any{"session", "s1", "provider", "arxiv"}
	if !reflect.DeepEqual(got.keyvals, want) {
		t.Errorf("keyvals = %v, want %v", got.keyvals, want)
	}
}
