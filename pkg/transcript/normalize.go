// Package transcript cleans raw speech-to-text output before it enters the
// pipeline and validates the topics extracted from it.
package transcript

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	bracketNoiseRe = regexp.MustCompile(`\[[^\]]*\]`)
	parenNoiseRe   = regexp.MustCompile(`(?i)\((?:inaudible|crosstalk|silence|music|applause|laughter|laughs|noise|coughs?|background noise|speaking in foreign language)[^)]*\)`)
	starNoiseRe    = regexp.MustCompile(`\*[^*\n]{1,40}\*`)
	musicNoiseRe   = regexp.MustCompile(`[♪♫]+`)
	whitespaceRe   = regexp.MustCompile(`\s+`)
)

var fillers = map[string]struct{}{
	"um": {}, "uh": {}, "umm": {}, "uhh": {}, "hmm": {}, "hm": {}, "mm": {},
	"mhm": {}, "ah": {}, "er": {}, "erm": {}, "oh": {}, "ok": {}, "okay": {},
	"yeah": {}, "yes": {}, "no": {}, "so": {}, "like": {}, "right": {},
}

// Normalize strips noise markers, collapses repetition artifacts and
// whitespace. The result may be empty.
func Normalize(raw string) string {
	text := bracketNoiseRe.ReplaceAllString(raw, " ")
	text = parenNoiseRe.ReplaceAllString(text, " ")
	text = starNoiseRe.ReplaceAllString(text, " ")
	text = musicNoiseRe.ReplaceAllString(text, " ")
	text = whitespaceRe.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	text = collapseWordRuns(text)
	return collapseRepeatedSentences(text)
}

// collapseWordRuns reduces a word repeated more than twice in a row to one
// occurrence. "the the" is left alone, "go go go go" becomes "go".
func collapseWordRuns(text string) string {
	words := strings.Fields(text)
	out := make([]string, 0, len(words))

	for i := 0; i < len(words); {
		j := i + 1
		for j < len(words) && sameWord(words[i], words[j]) {
			j++
		}
		if j-i > 2 {
			out = append(out, words[j-1])
		} else {
			out = append(out, words[i:j]...)
		}
		i = j
	}
	return strings.Join(out, " ")
}

func sameWord(a, b string) bool {
	return strings.EqualFold(trimPunct(a), trimPunct(b)) && trimPunct(a) != ""
}

func trimPunct(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSymbol(r)
	})
}

// collapseRepeatedSentences drops sentences that repeat the one before them,
// a common artifact of the transcriber looping on silence.
func collapseRepeatedSentences(text string) string {
	sentences := SplitSentences(text)
	if len(sentences) < 2 {
		return text
	}

	out := make([]string, 0, len(sentences))
	for _, s := range sentences {
		if len(out) > 0 && strings.EqualFold(canonical(out[len(out)-1]), canonical(s)) {
			continue
		}
		out = append(out, s)
	}
	return strings.Join(out, " ")
}

func canonical(s string) string {
	return strings.Join(strings.Fields(trimPunct(strings.ToLower(s))), " ")
}

// IsInformative reports whether text carries anything beyond filler words
// and punctuation.
func IsInformative(text string) bool {
	for _, w := range strings.Fields(text) {
		w = strings.ToLower(trimPunct(w))
		if w == "" {
			continue
		}
		if _, filler := fillers[w]; !filler {
			return true
		}
	}
	return false
}

// WordCount counts whitespace separated words.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// LastWords returns the final n words of text joined by single spaces.
func LastWords(text string, n int) string {
	if n <= 0 {
		return ""
	}
	words := strings.Fields(text)
	if len(words) > n {
		words = words[len(words)-n:]
	}
	return strings.Join(words, " ")
}

// SplitSentences splits text on terminal punctuation. Decimal points such as
// "3.6" do not end a sentence and closing quotes or brackets stay with the
// sentence they close.
func SplitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	for i := 0; i < len(text); i++ {
		current.WriteByte(text[i])

		if text[i] != '.' && text[i] != '!' && text[i] != '?' {
			continue
		}
		if text[i] == '.' && i > 0 && unicode.IsDigit(rune(text[i-1])) &&
			i+1 < len(text) && text[i+1] != ' ' {
			continue
		}

		j := i + 1
		for j < len(text) && (text[j] == '.' || text[j] == '!' || text[j] == '?') {
			current.WriteByte(text[j])
			j++
		}
		for j < len(text) && (text[j] == '"' || text[j] == '\'' || text[j] == ')' ||
			text[j] == ']' || text[j] == '}') {
			current.WriteByte(text[j])
			j++
		}

		if sentence := strings.TrimSpace(current.String()); sentence != "" {
			sentences = append(sentences, sentence)
		}
		current.Reset()
		i = j - 1
	}

	if remaining := strings.TrimSpace(current.String()); remaining != "" {
		sentences = append(sentences, remaining)
	}
	return sentences
}
