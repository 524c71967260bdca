package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/OFFIS-RIT/kiwi-live/pkg/events"

	"github.com/rabbitmq/amqp091-go"
)

type published struct {
	exchange string
	key      string
	msg      amqp091.Publishing
}

type fakePublisher struct {
	out []published
	err error
}

func (f *fakePublisher) Publish(exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.out = append(f.out, published{exchange: exchange, key: key, msg: msg})
	return nil
}

type fakeAcker struct {
	acks, nacks int
}

func (a *fakeAcker) Ack(tag uint64, multiple bool) error {
	a.acks++
	return nil
}

func (a *fakeAcker) Nack(tag uint64, multiple, requeue bool) error {
	a.nacks++
	return nil
}

func (a *fakeAcker) Reject(tag uint64, requeue bool) error {
	a.nacks++
	return nil
}

type fakeIngester struct {
	calls []FragmentMessage
	err   error
}

func (f *fakeIngester) Ingest(ctx context.Context, sessionID, text string, final bool) error {
	f.calls = append(f.calls, FragmentMessage{SessionID: sessionID, Text: text, Final: final})
	return f.err
}

func TestProcessFragmentMessage(t *testing.T) {
	tests := []struct {
		name          string
		body          string
		ingestErr     error
		wantMalformed bool
		wantErr       bool
		wantCalls     int
	}{
		{name: "valid", body: `{"session_id":"s1","text":"hello there"}`, wantCalls: 1},
		{name: "final without text", body: `{"session_id":"s1","final":true}`, wantCalls: 1},
		{name: "broken json", body: `{"session_id":`, wantMalformed: true, wantErr: true},
		{name: "missing session", body: `{"text":"orphan"}`, wantMalformed: true, wantErr: true},
		{name: "ingest failure", body: `{"session_id":"s1","text":"x"}`, ingestErr: errors.New("stopped"), wantErr: true, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ing := &fakeIngester{err: tt.ingestErr}
			err := ProcessFragmentMessage(context.Background(), ing, []byte(tt.body))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ProcessFragmentMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got := errors.Is(err, ErrMalformed); got != tt.wantMalformed {
				t.Errorf("errors.Is(err, ErrMalformed) = %v, want %v", got, tt.wantMalformed)
			}
			if len(ing.calls) != tt.wantCalls {
				t.Errorf("ingest calls = %d, want %d", len(ing.calls), tt.wantCalls)
			}
		})
	}
}

func TestHandleProcessingErrorRetries(t *testing.T) {
	pub := &fakePublisher{}
	ack := &fakeAcker{}
	msg := amqp091.Delivery{Acknowledger: ack, Body: []byte("{}"), Headers: amqp091.Table{"x-retries": int32(2)}}

	HandleProcessingError(pub, msg, "transcript_queue", false)

	if len(pub.out) != 1 || pub.out[0].key != "transcript_queue_retry" {
		t.Fatalf("published = %+v, want one message on the retry queue", pub.out)
	}
	if got := pub.out[0].msg.Headers["x-retries"]; got != int32(3) {
		t.Errorf("x-retries = %v, want 3", got)
	}
	if msg.Headers["x-retries"] != int32(2) {
		t.Error("original headers were modified")
	}
	if ack.acks != 1 {
		t.Errorf("acks = %d, want 1", ack.acks)
	}
}

func TestHandleProcessingErrorDeadLetters(t *testing.T) {
	tests := []struct {
		name      string
		retries   any
		permanent bool
	}{
		{name: "retries exhausted", retries: int32(10)},
		{name: "permanent failure", retries: int32(0), permanent: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &fakePublisher{}
			ack := &fakeAcker{}
			msg := amqp091.Delivery{Acknowledger: ack, Headers: amqp091.Table{"x-retries": tt.retries}}

			HandleProcessingError(pub, msg, "transcript_queue", tt.permanent)
			if len(pub.out) != 1 || pub.out[0].key != "transcript_queue_dlq" {
				t.Fatalf("published = %+v, want one message on the DLQ", pub.out)
			}
			if ack.acks != 1 {
				t.Errorf("acks = %d, want 1", ack.acks)
			}
		})
	}
}

func TestHandleProcessingErrorNacksWhenPublishFails(t *testing.T) {
	pub := &fakePublisher{err: errors.New("channel closed")}
	ack := &fakeAcker{}
	HandleProcessingError(pub, amqp091.Delivery{Acknowledger: ack}, "transcript_queue", false)
	if ack.nacks != 1 || ack.acks != 0 {
		t.Errorf("acks = %d, nacks = %d, want a single nack", ack.acks, ack.nacks)
	}
}

func TestEventPublisher(t *testing.T) {
	pub := &fakePublisher{}
	p := NewEventPublisher(pub, "session_events", events.KindInsight, events.KindSummary)

	ev := events.Event{
		Kind:      events.KindInsight,
		SessionID: "s1",
		Timestamp: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
		Payload:   events.InsightPayload{ID: "i1", Content: "A decision was made"},
	}
	p.Handle(ev)
	p.Handle(events.Event{Kind: events.KindChunk, SessionID: "s1"})

	if len(pub.out) != 1 {
		t.Fatalf("published = %d, want only the insight", len(pub.out))
	}
	got := pub.out[0]
	if got.exchange != "session_events" || got.key != "s1.realtime-insight" {
		t.Errorf("exchange/key = %s/%s", got.exchange, got.key)
	}
	var decoded struct {
		Kind      string `json:"kind"`
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(got.msg.Body, &decoded); err != nil || decoded.Kind != "realtime-insight" {
		t.Errorf("body = %s, %v", got.msg.Body, err)
	}
}
