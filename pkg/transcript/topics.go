package transcript

import "strings"

// Markers the transcriber emits in place of speech. They are matched
// case-sensitively because real topics like "Null safety" must survive.
var sentinelMarkers = []string{"BLANK_AUDIO", "NULL", "UNDEFINED"}

var placeholderTopics = map[string]struct{}{
	"null":      {},
	"undefined": {},
	"none":      {},
	"n/a":       {},
	"nan":       {},
	"unknown":   {},
}

// IsValidTopic rejects empty strings, transcriber sentinels, placeholder
// words and stringified objects.
func IsValidTopic(topic string) bool {
	t := strings.TrimSpace(topic)
	if len([]rune(t)) < 2 {
		return false
	}
	if _, ok := placeholderTopics[strings.ToLower(t)]; ok {
		return false
	}
	for _, m := range sentinelMarkers {
		if strings.Contains(t, m) {
			return false
		}
	}
	if strings.HasPrefix(t, "[object") || strings.HasPrefix(t, "{") ||
		strings.HasPrefix(t, "map[") || strings.HasPrefix(t, "[") {
		return false
	}
	return true
}

// FilterTopics trims, validates and de-duplicates topics case-insensitively,
// keeping the first spelling seen.
func FilterTopics(topics []string) []string {
	seen := make(map[string]struct{}, len(topics))
	out := make([]string, 0, len(topics))
	for _, topic := range topics {
		topic = strings.TrimSpace(topic)
		if !IsValidTopic(topic) {
			continue
		}
		key := strings.ToLower(topic)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, topic)
	}
	return out
}
