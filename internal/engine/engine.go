// Package engine defines the uniform contract every game variant implements.
//
// A session owns exactly one Engine. The registry serialises all calls with
// the session mutex, so implementations never need their own locking; they
// are plain state machines driven by ApplyMove and Tick.
package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Kind tags a game variant. Dispatch happens through the tag, never through
// structural inspection of the engine state.
type Kind string

const (
	KindArena       Kind = "arena"
	KindChess       Kind = "chess"
	KindConnectFour Kind = "connect_four"
	KindTicTacToe   Kind = "tic_tac_toe"
	KindTileMatch   Kind = "tile_match"
	KindArcade      Kind = "arcade"
)

// Kinds lists every supported variant in a stable order.
func Kinds() []Kind {
	return []Kind{KindArena, KindChess, KindConnectFour, KindTicTacToe, KindTileMatch, KindArcade}
}

// ParseKind converts an external game_type string into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	for _, known := range Kinds() {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown game kind %q", s)
}

// Typed move outcomes. Engines return these (possibly wrapped); the HTTP
// layer maps them to status codes with errors.Is.
var (
	ErrIllegalMove = errors.New("illegal move")
	ErrNotYourTurn = errors.New("not your turn")
	ErrGameOver    = errors.New("game over")
	ErrUnknownSeat = errors.New("unknown seat")
)

// Engine is the lifecycle contract shared by all variants.
type Engine interface {
	Kind() Kind

	// SeatCount is the number of seats the variant requires. The registry
	// pads missing humans with bots up to this count.
	SeatCount() int

	// Roles returns the per-seat role labels fixed at session creation
	// (chess colours, connect-four colours, or empty strings).
	Roles() []string

	// ApplyMove validates and applies a move for the given seat. The payload
	// shape is engine specific. now is the session's monotonic timestamp.
	ApplyMove(seat int, payload json.RawMessage, now time.Time) error

	// Tick advances time-based state. Turn-based engines use it only for
	// clock enforcement; it is a no-op for the rest.
	Tick(now time.Time)

	// Over reports whether the game reached a terminal state.
	Over() bool

	// TerminalReason names the terminal state (checkmate, timeout, draw,
	// last_survivor, countdown, ...) once Over is true.
	TerminalReason() string

	// Ranking returns seat indices best first. Only meaningful once Over;
	// before that it reflects the standings if the game were stopped now.
	Ranking() []int

	// View returns a JSON-marshalable projection of the full state.
	View(now time.Time) any
}

// RealTime is implemented by engines that need a periodic tick loop.
type RealTime interface {
	TickPeriod() time.Duration
}

// Startable is implemented by engines that anchor internal clocks to the
// moment the game starts. The registry calls Start exactly once.
type Startable interface {
	Start(now time.Time)
}

// BotSeatAware is implemented by real-time engines that drive their bot
// seats inside Tick and therefore need to know which seats those are.
type BotSeatAware interface {
	SetBotSeats(bots []bool)
}

// TurnBased is implemented by engines with a single seat to move.
type TurnBased interface {
	// CurrentSeat returns the seat whose turn it is.
	CurrentSeat() int
}

// BotMover synthesises a move payload for a bot seat. Implementations must
// produce a payload that passes the engine's own ApplyMove validation; bots
// never get a side door around the rules.
type BotMover interface {
	BotMove(seat int) (json.RawMessage, error)
}
