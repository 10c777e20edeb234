// Package events keeps a bounded in-memory feed of notable session
// happenings for the polling /events endpoint. Overflow drops the oldest
// records; consumers resume from the last sequence number they saw.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Identifiers for the record types the feed carries.
const (
	TournamentCreated = "tournament_created"
	PlayerJoined      = "player_joined"
	TournamentStarted = "tournament_started"
	GameStarted       = "game_started"
	ResultsSubmitted  = "results_submitted"
)

const defaultCapacity = 1024

// Record is one feed entry. Seq increases by one per published record and
// never resets for the life of the process.
type Record struct {
	ID           uuid.UUID      `json:"id"`
	Seq          uint64         `json:"seq"`
	Identifier   string         `json:"identifier"`
	TournamentID string         `json:"tournament_id"`
	At           time.Time      `json:"ts"`
	Fields       map[string]any `json:"fields,omitempty"`
}

// Feed is a fixed-capacity ring of records.
type Feed struct {
	mu   sync.RWMutex
	buf  []Record
	head int // index of the oldest record
	size int
	seq  uint64
}

// NewFeed creates a feed holding at most capacity records; capacity <= 0
// falls back to the default.
func NewFeed(capacity int) *Feed {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Feed{buf: make([]Record, capacity)}
}

// Publish appends a record, evicting the oldest when full, and returns the
// assigned sequence number.
func (f *Feed) Publish(identifier, tournamentID string, at time.Time, fields map[string]any) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.seq++
	rec := Record{
		ID:           uuid.New(),
		Seq:          f.seq,
		Identifier:   identifier,
		TournamentID: tournamentID,
		At:           at,
		Fields:       fields,
	}
	if f.size < len(f.buf) {
		f.buf[(f.head+f.size)%len(f.buf)] = rec
		f.size++
	} else {
		f.buf[f.head] = rec
		f.head = (f.head + 1) % len(f.buf)
	}
	return f.seq
}

// Since returns all retained records with Seq > seq, oldest first.
func (f *Feed) Since(seq uint64) []Record {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]Record, 0, f.size)
	for i := 0; i < f.size; i++ {
		rec := f.buf[(f.head+i)%len(f.buf)]
		if rec.Seq > seq {
			out = append(out, rec)
		}
	}
	return out
}

// LastSeq returns the most recently assigned sequence number.
func (f *Feed) LastSeq() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.seq
}
