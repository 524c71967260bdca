package research

import (
	"cmp"
	"net/url"
	"slices"
	"strings"

	"github.com/OFFIS-RIT/kiwi-live/pkg/common"
)

var infoKeywords = []struct {
	infoType string
	words    []string
}{
	{common.InfoNews, []string{
		"news", "latest", "today", "yesterday", "announced", "announcement", "breaking", "election",
		"market", "stock", "earnings", "launch", "released", "acquisition", "lawsuit", "regulation",
		"this week", "this year", "recent",
	}},
	{common.InfoAcademic, []string{
		"research", "study", "studies", "paper", "theory", "theorem", "hypothesis", "experiment",
		"peer review", "journal", "thesis", "algorithm", "model", "learning", "neural", "quantum",
		"statistics", "statistical", "proof", "empirical",
	}},
	{common.InfoTechnical, []string{
		"api", "database", "server", "code", "framework", "library", "deploy", "deployment",
		"kubernetes", "docker", "cloud", "latency", "throughput", "sharding", "replication",
		"cache", "query", "sql", "nosql", "protocol", "bug", "debug", "compile", "programming",
		"microservice", "architecture", "infrastructure", "config", "version",
	}},
}

// ClassifyInformationType decides which kind of source best answers a
// topic. The topic itself weighs twice as much as the surrounding context;
// ties and topics without any signal are general.
func ClassifyInformationType(topic, transcriptContext string) string {
	topic = " " + strings.ToLower(topic) + " "
	ctx := " " + strings.ToLower(transcriptContext) + " "

	best, bestScore := common.InfoGeneral, 0
	for _, group := range infoKeywords {
		score := 0
		for _, w := range group.words {
			if containsWord(topic, w) {
				score += 2
			}
			if containsWord(ctx, w) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = group.infoType, score
		}
	}
	return best
}

func containsWord(haystack, word string) bool {
	idx := 0
	for {
		i := strings.Index(haystack[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)
		if !isWordByte(haystack, start-1) && !isWordByte(haystack, end) {
			return true
		}
		idx = start + 1
	}
}

func isWordByte(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return false
	}
	c := s[i]
	return c >= 'a' && c <= 'z' || c >= '0' && c <= '9'
}

var typePriority = map[string][]string{
	common.InfoGeneral:   {common.InfoGeneral, common.InfoNews, common.InfoTechnical, common.InfoAcademic},
	common.InfoNews:      {common.InfoNews, common.InfoGeneral, common.InfoTechnical, common.InfoAcademic},
	common.InfoAcademic:  {common.InfoAcademic, common.InfoTechnical, common.InfoGeneral, common.InfoNews},
	common.InfoTechnical: {common.InfoTechnical, common.InfoAcademic, common.InfoGeneral, common.InfoNews},
}

func priorityOf(infoType, sourceType string) int {
	order, ok := typePriority[infoType]
	if !ok {
		order = typePriority[common.InfoGeneral]
	}
	if i := slices.Index(order, sourceType); i >= 0 {
		return i
	}
	return len(order)
}

// RankSources orders sources by how well their type suits infoType, then by
// relevance, then newest first. The input slice is sorted in place.
func RankSources(sources []common.SourceResult, infoType string) []common.SourceResult {
	slices.SortStableFunc(sources, func(a, b common.SourceResult) int {
		if c := cmp.Compare(priorityOf(infoType, a.Type), priorityOf(infoType, b.Type)); c != 0 {
			return c
		}
		if c := cmp.Compare(b.RelevanceScore, a.RelevanceScore); c != 0 {
			return c
		}
		return b.Timestamp.Compare(a.Timestamp)
	})
	return sources
}

// DedupeSources keeps one source per URL, the most relevant one. Sources
// without a URL are matched by title.
func DedupeSources(sources []common.SourceResult) []common.SourceResult {
	index := make(map[string]int, len(sources))
	out := make([]common.SourceResult, 0, len(sources))
	for _, s := range sources {
		key := normalizeURL(s.URL)
		if key == "" {
			key = "title:" + strings.ToLower(strings.TrimSpace(s.Title))
		}
		if key == "title:" {
			continue
		}
		if i, dup := index[key]; dup {
			if s.RelevanceScore > out[i].RelevanceScore {
				out[i] = s
			}
			continue
		}
		index[key] = len(out)
		out = append(out, s)
	}
	return out
}

func normalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.ToLower(raw)
	}

	q := u.Query()
	for key := range q {
		if strings.HasPrefix(key, "utm_") {
			q.Del(key)
		}
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	path := strings.TrimSuffix(u.EscapedPath(), "/")
	key := host + path
	if enc := q.Encode(); enc != "" {
		key += "?" + enc
	}
	return key
}
