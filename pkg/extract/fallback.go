package extract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/OFFIS-RIT/kiwi-live/pkg/common"
)

var (
	quotedRe   = regexp.MustCompile(`"([^"\n]{2,80})"|“([^”\n]{2,80})”`)
	listItemRe = regexp.MustCompile(`(?m)^\s*(?:[-*•]|\d+[.)])\s+(.+?)\s*$`)
	sectionRe  = regexp.MustCompile(`(?i)^\s*(topics|questions|terms|entities|challenges)\s*:?\s*$`)
)

// jsonKeys are dropped when quoted phrases are harvested from broken JSON.
var jsonKeys = map[string]struct{}{
	"topics": {}, "questions": {}, "terms": {}, "entities": {}, "challenges": {},
	"name": {}, "topic": {}, "text": {},
}

// fallbackExtraction harvests topics from a non-JSON answer. List items are
// assigned to the section heading above them ("Questions:", "Terms:", ...);
// items outside any section and quoted phrases become topics.
func fallbackExtraction(raw string) common.TopicExtraction {
	var out common.TopicExtraction
	section := "topics"

	for _, line := range strings.Split(raw, "\n") {
		if m := sectionRe.FindStringSubmatch(line); m != nil {
			section = strings.ToLower(m[1])
			continue
		}
		m := listItemRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		item := strings.Trim(strings.TrimSpace(m[1]), `"'*`)
		switch section {
		case "questions":
			out.Questions = append(out.Questions, item)
		case "terms":
			out.Terms = append(out.Terms, item)
		case "entities":
			out.Entities = append(out.Entities, item)
		case "challenges":
			out.Challenges = append(out.Challenges, item)
		default:
			out.Topics = append(out.Topics, item)
		}
	}

	for _, m := range quotedRe.FindAllStringSubmatch(raw, -1) {
		phrase := m[1]
		if phrase == "" {
			phrase = m[2]
		}
		phrase = strings.TrimSpace(phrase)
		if _, key := jsonKeys[strings.ToLower(phrase)]; key {
			continue
		}
		out.Topics = append(out.Topics, phrase)
	}
	return out
}

// flexList accepts the shapes models produce for "a list of strings": a
// plain array, an array of objects carrying a name, a comma separated
// string or null.
type flexList []string

func (f *flexList) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" || trimmed == "" {
		*f = nil
		return nil
	}

	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*f = splitComma(single)
		return nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("expected list: %w", err)
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := flexItem(item); ok {
			out = append(out, s)
		}
	}
	*f = out
	return nil
}

func flexItem(item json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(item, &s); err == nil {
		return s, true
	}

	var obj map[string]any
	if err := json.Unmarshal(item, &obj); err == nil {
		for _, key := range []string{"name", "topic", "text", "term", "question", "entity", "title", "label"} {
			if v, ok := obj[key].(string); ok && v != "" {
				return v, true
			}
		}
		return "", false
	}

	var num json.Number
	if err := json.Unmarshal(item, &num); err == nil {
		return num.String(), true
	}
	return "", false
}

func splitComma(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
