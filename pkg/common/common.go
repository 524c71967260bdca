package common

import "time"

// Fragment is one piece of raw transcript text as it arrived from the
// speech-to-text collaborator. Fragments are consumed immediately by the
// chunk buffer and the realtime analyzer and never stored.
type Fragment struct {
	Text       string    `json:"text"`
	ReceivedAt time.Time `json:"received_at"`
}

// Chunk is a contiguous span of accumulated transcript text that became
// ready for topic extraction.
//
// A chunk is owned by the analysis queue until it was processed, after which
// only the derived results are kept.
type Chunk struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	WordCount int       `json:"word_count"`
	CreatedAt time.Time `json:"created_at"`
}

// TopicExtraction is the structured result of running topic extraction on a
// single chunk.
type TopicExtraction struct {
	Topics     []string `json:"topics"`
	Questions  []string `json:"questions"`
	Terms      []string `json:"terms"`
	Entities   []string `json:"entities"`
	Challenges []string `json:"challenges"`
}

// Empty reports whether nothing at all was extracted.
func (t TopicExtraction) Empty() bool {
	return len(t.Topics) == 0 && len(t.Questions) == 0 && len(t.Terms) == 0 &&
		len(t.Entities) == 0 && len(t.Challenges) == 0
}

// Information types a topic can be classified as. They drive which source
// types rank first for that topic.
const (
	InfoGeneral   = "general"
	InfoNews      = "news"
	InfoAcademic  = "academic"
	InfoTechnical = "technical"
)

// SourceResult is a single hit returned by a research provider.
type SourceResult struct {
	Source         string    `json:"source"`
	Title          string    `json:"title"`
	Summary        string    `json:"summary"`
	URL            string    `json:"url"`
	Type           string    `json:"type"`
	Timestamp      time.Time `json:"timestamp"`
	RelevanceScore float64   `json:"relevance_score"`
	// Credibility is filled in for the top sources only; zero means unscored.
	Credibility float64 `json:"credibility,omitempty"`
}

// ResearchSummary bundles the ranked sources for one topic with the
// narrative synthesized from them.
type ResearchSummary struct {
	Topic             string         `json:"topic"`
	InformationType   string         `json:"information_type"`
	Sources           []SourceResult `json:"sources"`
	Synthesis         string         `json:"synthesis"`
	FollowUpQuestions []string       `json:"follow_up_questions"`
	Timestamp         time.Time      `json:"timestamp"`
}

// Insight kinds produced by the realtime analyzer.
const (
	InsightContradiction = "contradiction"
	InsightJargon        = "jargon"
	InsightStrategic     = "strategic"
	InsightPerspective   = "perspective"
	InsightExample       = "example"
	InsightQuestion      = "question"
)

// Insight is a single observation surfaced to the user while the
// conversation is running.
type Insight struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Content    string    `json:"content"`
	Details    string    `json:"details,omitempty"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
	Context    string    `json:"context"`
}

// Slide is one entry of the generated slide deck.
type Slide struct {
	Title   string   `json:"title"`
	Bullets []string `json:"bullets"`
}

// ExecutiveSummary is the periodically refreshed meeting summary.
type ExecutiveSummary struct {
	Summary     string    `json:"summary"`
	Highlights  []string  `json:"highlights"`
	GeneratedAt time.Time `json:"generated_at"`
}
