package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// DecodeStatus tells a caller how much it can trust a decoded model answer.
type DecodeStatus int

const (
	// DecodeFailed means nothing usable was found in the answer.
	DecodeFailed DecodeStatus = iota
	// DecodeOK means the answer was valid JSON as-is.
	DecodeOK
	// DecodeFallback means the JSON was recovered from fenced, embedded or
	// malformed text.
	DecodeFallback
)

func (s DecodeStatus) String() string {
	switch s {
	case DecodeOK:
		return "ok"
	case DecodeFallback:
		return "fallback"
	default:
		return "failed"
	}
}

// DecodeResult is the tagged outcome of Decode.
type DecodeResult struct {
	Status DecodeStatus
	Err    error
}

func (r DecodeResult) OK() bool {
	return r.Status != DecodeFailed
}

var (
	codeFenceRe = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)\\s*```")
	objectRe    = regexp.MustCompile(`(?s)\{.*\}`)
	arrayRe     = regexp.MustCompile(`(?s)\[.*\]`)
)

// Decode parses a model answer into out in two stages. It first tries a
// strict json.Unmarshal of the trimmed answer. If that fails it strips code
// fences, pulls the outermost embedded object or array out of surrounding
// prose and finally repairs what is left.
//
// Example:
//
//	var out struct{ Topics []string `json:"topics"` }
//	res := ai.Decode("Sure! ```json\n{\"topics\":[\"x\"]}\n```", &out)
//	// res.Status == ai.DecodeFallback, out.Topics == ["x"]
func Decode(raw string, out any) DecodeResult {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DecodeResult{Status: DecodeFailed, Err: errEmptyAnswer}
	}

	if err := json.Unmarshal([]byte(raw), out); err == nil {
		return DecodeResult{Status: DecodeOK}
	}

	lastErr := errors.New("no JSON found in model answer")
	for _, candidate := range bestEffortCandidates(raw) {
		err := repairInto(candidate, out)
		if err == nil {
			return DecodeResult{Status: DecodeFallback}
		}
		lastErr = err
	}
	return DecodeResult{Status: DecodeFailed, Err: lastErr}
}

func bestEffortCandidates(raw string) []string {
	var candidates []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		for _, c := range candidates {
			if c == s {
				return
			}
		}
		candidates = append(candidates, s)
	}

	if m := codeFenceRe.FindStringSubmatch(raw); m != nil {
		add(m[1])
	}
	objIdx := strings.Index(raw, "{")
	arrIdx := strings.Index(raw, "[")
	// Prefer whichever container opens first so `[{...}]` stays an array.
	if arrIdx >= 0 && (objIdx < 0 || arrIdx < objIdx) {
		add(arrayRe.FindString(raw))
		add(objectRe.FindString(raw))
	} else {
		add(objectRe.FindString(raw))
		add(arrayRe.FindString(raw))
	}
	if objIdx >= 0 || arrIdx >= 0 {
		add(raw)
	}
	return candidates
}

var errEmptyAnswer = errors.New("empty model answer")

// repairInto decodes candidate into out, unwrapping a JSON string that
// itself holds JSON and running jsonrepair over anything still malformed.
func repairInto(candidate string, out any) error {
	candidate = strings.TrimSpace(candidate)
	if json.Unmarshal([]byte(candidate), out) == nil {
		return nil
	}

	var inner string
	if json.Unmarshal([]byte(candidate), &inner) == nil {
		inner = strings.TrimSpace(inner)
		if json.Unmarshal([]byte(inner), out) == nil {
			return nil
		}
		candidate = inner
	}

	// Models sometimes open an object twice: "{ {"a":1}".
	if rest, ok := strings.CutPrefix(candidate, "{"); ok && strings.HasPrefix(strings.TrimSpace(rest), "{") {
		candidate = strings.TrimSpace(rest)
	}

	repaired, err := jsonrepair.JSONRepair(candidate)
	if err != nil {
		return fmt.Errorf("json repair failed: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), out); err != nil {
		return fmt.Errorf("unmarshal after repair: %w", err)
	}
	return nil
}
