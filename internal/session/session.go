// Package session owns the live session objects: creation, joining, start,
// move routing, endings with signed results, and garbage collection. All
// engine access is serialised per session by the session mutex.
package session

import (
	"errors"
	rand "math/rand/v2"
	"sync"
	"time"

	"github.com/tourneyhub/gamecore/internal/engine"
	"github.com/tourneyhub/gamecore/internal/result"
)

// Client-facing failures. The HTTP layer maps them to status codes with
// errors.Is.
var (
	ErrUnknownSession       = errors.New("unknown session")
	ErrUnknownTournament    = errors.New("unknown tournament")
	ErrUnknownPlayer        = errors.New("unknown player for this session")
	ErrSessionClosedToJoins = errors.New("session closed to joins")
	ErrSessionNotStarted    = errors.New("session not started")
	ErrSessionEnded         = errors.New("session ended")
	ErrTooManyPlayers       = errors.New("too many players for this game")
)

// Lifecycle is the session state machine. Transitions are monotonic.
type Lifecycle int

const (
	Created Lifecycle = iota
	Running
	Ending
	Ended
)

func (l Lifecycle) String() string {
	switch l {
	case Created:
		return "created"
	case Running:
		return "running"
	case Ending:
		return "ending"
	case Ended:
		return "ended"
	}
	return "unknown"
}

// Session is the central aggregate: one engine, its seats and its clockwork.
type Session struct {
	mu sync.Mutex

	ID           string
	TournamentID string
	Kind         engine.Kind
	Engine       engine.Engine

	players  []string // per seat; humans or synthetic Bot_k ids
	roles    []string
	botSeats []bool
	rng      *rand.Rand

	lifecycle  Lifecycle
	createdAt  time.Time
	startedAt  time.Time
	lastTickAt time.Time
	lastReadAt time.Time

	result     *result.Result
	diagnostic string // set when an invariant violation degraded the session
}

// seatOf returns the seat index for a player id, with mu held.
func (s *Session) seatOf(player string) int {
	for i, p := range s.players {
		if p == player {
			return i
		}
	}
	return -1
}

// Info is the compact session descriptor served by get_session_info.
type Info struct {
	SessionID string   `json:"session_id"`
	GameType  string   `json:"game_type"`
	Players   []string `json:"players"`
	Roles     []string `json:"roles"`
	Lifecycle string   `json:"lifecycle"`
}

// View is the full state projection served by the game_state endpoints.
type View struct {
	Info
	TournamentID string         `json:"tournament_id"`
	StartedAtMs  int64          `json:"started_at_ms,omitempty"`
	LastTickMs   int64          `json:"last_tick_ms,omitempty"`
	State        any            `json:"state"`
	Result       *result.Result `json:"result,omitempty"`
	Diagnostic   string         `json:"diagnostic,omitempty"`
}

// infoLocked builds an Info with mu held.
func (s *Session) infoLocked() Info {
	return Info{
		SessionID: s.ID,
		GameType:  string(s.Kind),
		Players:   append([]string(nil), s.players...),
		Roles:     append([]string(nil), s.roles...),
		Lifecycle: s.lifecycle.String(),
	}
}

// resultCopyLocked snapshots the result with mu held.
func (s *Session) resultCopyLocked() *result.Result {
	if s.result == nil {
		return nil
	}
	cp := *s.result
	cp.Podium = append([]string(nil), s.result.Podium...)
	cp.SignedPayload = append([]byte(nil), s.result.SignedPayload...)
	return &cp
}
