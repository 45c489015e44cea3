package reconcile

import (
	"time"
)

// DefaultTimelineSize caps the activity timeline.
const DefaultTimelineSize = 50

// EntryKind tags a timeline entry for display.
type EntryKind string

const (
	EntryBlocked  EntryKind = "blocked"
	EntryApproved EntryKind = "approved"
	EntryRejected EntryKind = "rejected"
	EntryVote     EntryKind = "vote"
	EntryDefault  EntryKind = "default"
)

// TimelineEntry is one line of the activity timeline.
type TimelineEntry struct {
	Seq        uint64
	Kind       EntryKind
	Title      string
	Detail     string
	OccurredAt time.Time
	Local      bool // raised by this console rather than pushed
}

// Timeline is a bounded ring of entries. The zero value is not usable; use
// NewTimeline.
type Timeline struct {
	buf  []TimelineEntry
	head int // index of the next write
	n    int
	seq  uint64
}

func NewTimeline(size int) *Timeline {
	if size <= 0 {
		size = DefaultTimelineSize
	}
	return &Timeline{buf: make([]TimelineEntry, size)}
}

// Add inserts e as the newest entry, evicting the oldest once full. The
// entry's Seq is assigned here.
func (t *Timeline) Add(e TimelineEntry) TimelineEntry {
	t.seq++
	e.Seq = t.seq
	t.buf[t.head] = e
	t.head = (t.head + 1) % len(t.buf)
	if t.n < len(t.buf) {
		t.n++
	}
	return e
}

// Entries returns a copy, newest first.
func (t *Timeline) Entries() []TimelineEntry {
	out := make([]TimelineEntry, t.n)
	for i := 0; i < t.n; i++ {
		idx := (t.head - 1 - i + len(t.buf)) % len(t.buf)
		out[i] = t.buf[idx]
	}
	return out
}

func (t *Timeline) Len() int { return t.n }

func (t *Timeline) Cap() int { return len(t.buf) }

func (t *Timeline) Reset() {
	clear(t.buf)
	t.head, t.n = 0, 0
}
