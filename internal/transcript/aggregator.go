// Package transcript aggregates incremental transcription fragments into a
// turn-ordered conversation log.
//
// Live providers stream recognised user speech and the text form of model
// speech as many small fragments, interleaved and out of order relative to
// the conversation. The aggregator buffers both streams per turn and flushes
// them as complete items when the turn ends — user item first, then model
// item, so the log reads as question followed by answer regardless of the
// fragment arrival order. Fragments that amount to whitespace only never
// produce an item.
package transcript

import (
	"strings"
	"sync"
	"time"
)

// Role identifies the speaker of a transcript item.
type Role string

const (
	// RoleUser is the human side of the conversation.
	RoleUser Role = "user"

	// RoleModel is the AI side of the conversation.
	RoleModel Role = "model"
)

// Item is one completed transcript entry.
type Item struct {
	// Role is the speaker.
	Role Role

	// Text is the full text of the speaker's turn contribution.
	Text string

	// Timestamp is when the turn completed, not when the first fragment
	// arrived. Both items of a turn carry the same timestamp.
	Timestamp time.Time
}

// Observer is notified of each item as it is committed to the log.
// Observers are invoked while the aggregator lock is held and must not call
// back into the aggregator.
type Observer func(item Item)

// Option is a functional option for configuring an Aggregator.
type Option func(*Aggregator)

// WithObserver registers fn to be called for every committed item.
func WithObserver(fn Observer) Option {
	return func(a *Aggregator) { a.observer = fn }
}

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// Aggregator buffers per-turn fragments and maintains the append-only
// conversation log. Safe for concurrent use.
type Aggregator struct {
	mu           sync.Mutex
	pendingUser  strings.Builder
	pendingModel strings.Builder
	items        []Item
	observer     Observer
	now          func() time.Time
}

// New creates an empty Aggregator.
func New(opts ...Option) *Aggregator {
	a := &Aggregator{now: time.Now}
	for _, o := range opts {
		o(a)
	}
	return a
}

// AddUserFragment appends one recognised-speech fragment to the current turn.
func (a *Aggregator) AddUserFragment(text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pendingUser.WriteString(text)
}

// AddModelFragment appends one model-speech-text fragment to the current turn.
func (a *Aggregator) AddModelFragment(text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pendingModel.WriteString(text)
}

// CompleteTurn commits the buffered fragments to the log as at most two
// items, user before model, and resets the turn buffers. Buffers containing
// only whitespace are discarded silently. Completing a turn with empty
// buffers is a no-op.
func (a *Aggregator) CompleteTurn() {
	a.mu.Lock()
	defer a.mu.Unlock()

	ts := a.now()
	a.commitLocked(RoleUser, a.pendingUser.String(), ts)
	a.commitLocked(RoleModel, a.pendingModel.String(), ts)
	a.pendingUser.Reset()
	a.pendingModel.Reset()
}

// commitLocked appends one item to the log unless the text is blank.
// Callers hold a.mu.
func (a *Aggregator) commitLocked(role Role, text string, ts time.Time) {
	if strings.TrimSpace(text) == "" {
		return
	}
	item := Item{Role: role, Text: text, Timestamp: ts}
	a.items = append(a.items, item)
	if a.observer != nil {
		a.observer(item)
	}
}

// Items returns a copy of the committed log, in commit order.
func (a *Aggregator) Items() []Item {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Item, len(a.items))
	copy(out, a.items)
	return out
}

// Len reports the number of committed items.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.items)
}
