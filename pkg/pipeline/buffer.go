package pipeline

import (
	"strings"
	"sync"
	"time"

	"github.com/OFFIS-RIT/kiwi-live/pkg/common"
	"github.com/OFFIS-RIT/kiwi-live/pkg/logger"
	"github.com/OFFIS-RIT/kiwi-live/pkg/metrics"
	"github.com/OFFIS-RIT/kiwi-live/pkg/schedule"
	"github.com/OFFIS-RIT/kiwi-live/pkg/transcript"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Reasons a chunk was released.
const (
	TriggerThreshold = "threshold"
	TriggerMaxWords  = "max_words"
	TriggerIdle      = "idle"
	TriggerFlush     = "flush"
)

// ChunkBuffer accumulates normalized fragments until enough words arrived,
// the hard cap was hit or the speaker went quiet for IdleTimeout.
type ChunkBuffer struct {
	minWords int
	maxWords int
	idle     time.Duration
	clock    schedule.Clock
	onReady  func(common.Chunk)
	log      logger.ComponentLogger

	mu      sync.Mutex
	parts   []string
	words   int
	timer   schedule.Timer
	gen     uint64
	stopped bool
}

// NewChunkBuffer creates a buffer that hands every released chunk to
// onReady. onReady runs without the buffer lock held, on the goroutine that
// caused the release.
func NewChunkBuffer(
	minWords, maxWords int,
	idle time.Duration,
	clock schedule.Clock,
	onReady func(common.Chunk),
) *ChunkBuffer {
	if clock == nil {
		clock = schedule.NewRealClock()
	}
	return &ChunkBuffer{
		minWords: minWords,
		maxWords: maxWords,
		idle:     idle,
		clock:    clock,
		onReady:  onReady,
		log:      logger.Component("ChunkBuffer"),
	}
}

// Add appends text and releases a chunk if the buffer became ready. Noise
// and filler-only fragments are ignored. It reports whether text was kept.
func (b *ChunkBuffer) Add(text string) bool {
	text = transcript.Normalize(text)
	if !transcript.IsInformative(text) {
		return false
	}

	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return false
	}
	b.parts = append(b.parts, text)
	b.words += transcript.WordCount(text)

	var (
		chunk   common.Chunk
		trigger string
	)
	switch {
	case b.words >= b.maxWords:
		trigger = TriggerMaxWords
	case b.words >= b.minWords:
		trigger = TriggerThreshold
	}
	if trigger != "" {
		chunk = b.takeLocked()
	} else {
		b.armLocked()
	}
	b.mu.Unlock()

	if trigger != "" {
		b.release(chunk, trigger)
	}
	return true
}

// armLocked replaces the idle timer. A timer that already fired but lost the
// race for the lock sees a newer generation and does nothing.
func (b *ChunkBuffer) armLocked() {
	if b.timer != nil {
		b.timer.Stop()
	}
	b.gen++
	gen := b.gen
	b.timer = b.clock.AfterFunc(b.idle, func() { b.fireIdle(gen) })
}

func (b *ChunkBuffer) fireIdle(gen uint64) {
	b.mu.Lock()
	if b.stopped || gen != b.gen || b.words == 0 {
		b.mu.Unlock()
		return
	}
	chunk := b.takeLocked()
	b.mu.Unlock()

	b.release(chunk, TriggerIdle)
}

// takeLocked turns the buffered text into a chunk and resets the buffer.
func (b *ChunkBuffer) takeLocked() common.Chunk {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.gen++

	id, _ := gonanoid.New()
	chunk := common.Chunk{
		ID:        id,
		Text:      strings.TrimSpace(strings.Join(b.parts, " ")),
		WordCount: b.words,
		CreatedAt: b.clock.Now(),
	}
	b.parts = nil
	b.words = 0
	return chunk
}

func (b *ChunkBuffer) release(chunk common.Chunk, trigger string) {
	metrics.ChunksEmitted.WithLabelValues(trigger).Inc()
	b.log.Debug("chunk ready", "id", chunk.ID, "words", chunk.WordCount, "trigger", trigger)
	if b.onReady != nil {
		b.onReady(chunk)
	}
}

// Flush releases whatever is buffered regardless of the thresholds. It
// reports false when the buffer was empty.
func (b *ChunkBuffer) Flush() (common.Chunk, bool) {
	b.mu.Lock()
	if b.words == 0 {
		b.mu.Unlock()
		return common.Chunk{}, false
	}
	chunk := b.takeLocked()
	b.mu.Unlock()

	b.release(chunk, TriggerFlush)
	return chunk, true
}

// Stop cancels the idle timer and drops further fragments. Buffered text is
// discarded; call Flush first to keep it.
func (b *ChunkBuffer) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped = true
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.gen++
	b.parts = nil
	b.words = 0
}

// Words returns the number of buffered words.
func (b *ChunkBuffer) Words() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.words
}

// Text returns the buffered text.
func (b *ChunkBuffer) Text() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Join(b.parts, " ")
}
