package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/kiwi-live/pkg/logger"

	"github.com/go-playground/validator"
)

// ErrMalformed marks a message that can never be processed. It goes to the
// dead letter queue without retries.
var ErrMalformed = errors.New("malformed message")

var validate = validator.New()

// FragmentMessage is one transcript fragment on the transcript queue.
type FragmentMessage struct {
	SessionID string `json:"session_id" validate:"required,max=128"`
	Text      string `json:"text" validate:"max=20000"`
	// Final marks the end of the conversation.
	Final bool `json:"final"`
}

// Ingester accepts fragments for a session.
type Ingester interface {
	Ingest(ctx context.Context, sessionID, text string, final bool) error
}

func ParseFragmentMessage(body []byte) (FragmentMessage, error) {
	var msg FragmentMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return msg, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := validate.Struct(msg); err != nil {
		return msg, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return msg, nil
}

// ProcessFragmentMessage decodes body and hands the fragment to ingester.
func ProcessFragmentMessage(ctx context.Context, ingester Ingester, body []byte) error {
	msg, err := ParseFragmentMessage(body)
	if err != nil {
		return err
	}
	logger.Debug("[Queue] Fragment received", "session", msg.SessionID, "final", msg.Final, "chars", len(msg.Text))

	if err := ingester.Ingest(ctx, msg.SessionID, msg.Text, msg.Final); err != nil {
		return fmt.Errorf("failed to ingest fragment for %s: %w", msg.SessionID, err)
	}
	return nil
}
