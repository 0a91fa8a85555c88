package session

import (
	"strings"
	"sync"
	"time"
)

// transcriptAggregator reassembles incremental transcript fragments into
// complete utterances and maintains the ordered conversation history.
//
// One in-flight accumulator exists per speaker. The concatenation of all
// deltas for an utterance, in delivery order, equals the final text unless
// the upstream provides an explicit final override.
type transcriptAggregator struct {
	mu       sync.Mutex
	inflight map[Speaker]*strings.Builder
	history  []TranscriptEntry
	now      func() time.Time

	onDelta    func(speaker Speaker, delta, running string)
	onComplete func(entry TranscriptEntry)
}

func newTranscriptAggregator(now func() time.Time) *transcriptAggregator {
	if now == nil {
		now = time.Now
	}
	return &transcriptAggregator{
		inflight: make(map[Speaker]*strings.Builder),
		now:      now,
	}
}

// AddDelta appends a fragment to the speaker's in-flight utterance and
// reports the running concatenation for progressive display.
func (a *transcriptAggregator) AddDelta(speaker Speaker, delta string) {
	if delta == "" {
		return
	}
	a.mu.Lock()
	b, ok := a.inflight[speaker]
	if !ok {
		b = &strings.Builder{}
		a.inflight[speaker] = b
	}
	b.WriteString(delta)
	running := b.String()
	onDelta := a.onDelta
	a.mu.Unlock()

	if onDelta != nil {
		onDelta(speaker, delta, running)
	}
}

// Finalize closes the speaker's in-flight utterance. An explicit final
// text is authoritative; otherwise the accumulated deltas are used. The
// closed utterance is appended to the history exactly once and the
// accumulator for that speaker is cleared.
func (a *transcriptAggregator) Finalize(speaker Speaker, final string) (TranscriptEntry, bool) {
	a.mu.Lock()
	text := final
	if b, ok := a.inflight[speaker]; ok {
		if text == "" {
			text = b.String()
		}
		delete(a.inflight, speaker)
	}
	if text == "" {
		a.mu.Unlock()
		return TranscriptEntry{}, false
	}
	entry := TranscriptEntry{
		Speaker:   speaker,
		Text:      text,
		IsFinal:   true,
		Timestamp: a.now(),
	}
	a.history = append(a.history, entry)
	onComplete := a.onComplete
	a.mu.Unlock()

	if onComplete != nil {
		onComplete(entry)
	}
	return entry, true
}

// Reset clears all in-flight accumulators. The history is never mutated
// retroactively.
func (a *transcriptAggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.inflight = make(map[Speaker]*strings.Builder)
}

// ClearHistory discards the conversation history. Called when a new
// session or scenario begins.
func (a *transcriptAggregator) ClearHistory() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = nil
}

// History returns a copy of the ordered conversation history.
func (a *transcriptAggregator) History() []TranscriptEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]TranscriptEntry, len(a.history))
	copy(out, a.history)
	return out
}
