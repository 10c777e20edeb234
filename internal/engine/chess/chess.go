// Package chess implements the two-seat chess engine: full legality with en
// passant, castling and promotion, per-side clocks with timeout on tick, the
// standard draw rules and a bounded emoji side-channel.
package chess

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tourneyhub/gamecore/internal/engine"
)

// Config carries the tuning values the engine needs.
type Config struct {
	ClockSeconds int
	EmojiLogSize int
	BotDepth     int
}

const clockPollMs = 250

// MoveRecord is one accepted move in replayable form.
type MoveRecord struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

// EmojiEntry is one chat emoji; spectator entries are tagged.
type EmojiEntry struct {
	Player    string    `json:"player"`
	Emoji     string    `json:"emoji"`
	Spectator bool      `json:"spectator,omitempty"`
	At        time.Time `json:"at"`
}

// Engine holds one chess game. Seat 0 plays white, seat 1 plays black.
type Engine struct {
	cfg      Config
	pos      position
	halfmove int
	fullmove int

	clocks     [2]time.Duration
	lastMoveAt time.Time
	started    bool

	history  []MoveRecord
	captured [2][]string // pieces each seat has taken, as letters
	repeats  map[string]int
	emoji    []EmojiEntry

	over   bool
	reason string
	winner int // -1 until decided; stays -1 on draws
}

// MovePayload is the JSON body of a chess move.
type MovePayload struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

// View is the state projection returned to pollers.
type View struct {
	FEN      string       `json:"fen"`
	Turn     string       `json:"turn"`
	ClocksMs [2]int64     `json:"clocks_ms"`
	Check    bool         `json:"check"`
	Captured [2][]string  `json:"captured"`
	History  []MoveRecord `json:"history"`
	Emoji    []EmojiEntry `json:"emoji"`
	GameOver bool         `json:"game_over"`
	Winner   int          `json:"winner"`
	Reason   string       `json:"reason,omitempty"`
}

// New creates a game at the standard starting position.
func New(cfg Config) *Engine {
	if cfg.EmojiLogSize <= 0 {
		cfg.EmojiLogSize = 50
	}
	clock := time.Duration(cfg.ClockSeconds) * time.Second
	e := &Engine{
		cfg:      cfg,
		pos:      startPosition(),
		fullmove: 1,
		clocks:   [2]time.Duration{clock, clock},
		repeats:  make(map[string]int),
		winner:   -1,
	}
	return e
}

// NewFromFEN creates a game from an exported position.
func NewFromFEN(cfg Config, fen string) (*Engine, error) {
	e := New(cfg)
	pos, halfmove, fullmove, err := ParseFEN(fen)
	if err != nil {
		return nil, err
	}
	e.pos = pos
	e.halfmove = halfmove
	e.fullmove = fullmove
	return e, nil
}

func (e *Engine) Kind() engine.Kind      { return engine.KindChess }
func (e *Engine) SeatCount() int         { return 2 }
func (e *Engine) Roles() []string        { return []string{"white", "black"} }
func (e *Engine) Over() bool             { return e.over }
func (e *Engine) TerminalReason() string { return e.reason }

// TickPeriod keeps the clocks polled often enough for timely flag falls.
func (e *Engine) TickPeriod() time.Duration { return clockPollMs * time.Millisecond }

// CurrentSeat returns the seat on move, or -1 once the game is over.
func (e *Engine) CurrentSeat() int {
	if e.over {
		return -1
	}
	if e.pos.turn > 0 {
		return 0
	}
	return 1
}

// Start anchors the clocks; white's clock runs from here.
func (e *Engine) Start(now time.Time) {
	e.started = true
	e.lastMoveAt = now
	e.repeats[e.pos.key()] = 1
}

// ApplyMove validates and plays one move for seat, charging the mover's
// clock for the time since the previous move.
func (e *Engine) ApplyMove(seat int, payload json.RawMessage, now time.Time) error {
	if e.over {
		return engine.ErrGameOver
	}
	if seat != 0 && seat != 1 {
		return engine.ErrUnknownSeat
	}
	if seat != e.CurrentSeat() {
		return engine.ErrNotYourTurn
	}

	var mv MovePayload
	if err := json.Unmarshal(payload, &mv); err != nil {
		return fmt.Errorf("%w: %v", engine.ErrIllegalMove, err)
	}
	m, err := e.resolveMove(mv)
	if err != nil {
		return err
	}

	// The mover pays for think time; a move after the flag fell loses.
	if e.started {
		elapsed := now.Sub(e.lastMoveAt)
		if elapsed >= e.clocks[seat] {
			e.clocks[seat] = 0
			e.finish("timeout", 1-seat)
			return engine.ErrGameOver
		}
		e.clocks[seat] -= elapsed
	}
	e.lastMoveAt = now

	captured := e.pos.apply(m)
	if captured != emptySq {
		e.captured[seat] = append(e.captured[seat], string(pieceLetters[abs8(captured)]))
	}
	movedPawn := abs8(e.pos.board[m.To]) == wPawn || m.Promo != 0
	if movedPawn || captured != emptySq {
		e.halfmove = 0
	} else {
		e.halfmove++
	}
	if seat == 1 {
		e.fullmove++
	}
	e.repeats[e.pos.key()]++

	rec := MoveRecord{From: squareName(m.From), To: squareName(m.To)}
	if m.Promo != 0 {
		rec.Promotion = strings.ToLower(string(pieceLetters[m.Promo]))
	}
	e.history = append(e.history, rec)

	e.settle(seat)
	return nil
}

// resolveMove matches the payload against the legal move list.
func (e *Engine) resolveMove(mv MovePayload) (Move, error) {
	from, err := parseSquare(mv.From)
	if err != nil {
		return Move{}, fmt.Errorf("%w: %v", engine.ErrIllegalMove, err)
	}
	to, err := parseSquare(mv.To)
	if err != nil {
		return Move{}, fmt.Errorf("%w: %v", engine.ErrIllegalMove, err)
	}
	var promo int8
	if mv.Promotion != "" {
		pc, ok := letterPieces[strings.ToUpper(mv.Promotion)[0]]
		if !ok || pc == wPawn || pc == wKing || len(mv.Promotion) != 1 {
			return Move{}, fmt.Errorf("%w: bad promotion piece %q", engine.ErrIllegalMove, mv.Promotion)
		}
		promo = pc
	}

	needsPromo := false
	for _, m := range e.pos.legalMoves() {
		if m.From != from || m.To != to {
			continue
		}
		if m.Promo == 0 {
			return m, nil
		}
		needsPromo = true
		if m.Promo == promo {
			return m, nil
		}
	}
	if needsPromo {
		return Move{}, fmt.Errorf("%w: promotion piece required", engine.ErrIllegalMove)
	}
	return Move{}, fmt.Errorf("%w: %s%s", engine.ErrIllegalMove, mv.From, mv.To)
}

// settle checks every terminal rule after mover's move.
func (e *Engine) settle(mover int) {
	if len(e.pos.legalMoves()) == 0 {
		if e.pos.inCheck(e.pos.turn) {
			e.finish("checkmate", mover)
		} else {
			e.finish("stalemate", -1)
		}
		return
	}
	switch {
	case e.halfmove >= 100:
		e.finish("fifty_move_rule", -1)
	case e.repeats[e.pos.key()] >= 3:
		e.finish("threefold_repetition", -1)
	case e.pos.insufficientMaterial():
		e.finish("insufficient_material", -1)
	}
}

func (e *Engine) finish(reason string, winner int) {
	e.over = true
	e.reason = reason
	e.winner = winner
}

// Tick detects a flag fall on the side to move.
func (e *Engine) Tick(now time.Time) {
	if e.over || !e.started {
		return
	}
	seat := e.CurrentSeat()
	if now.Sub(e.lastMoveAt) >= e.clocks[seat] {
		e.clocks[seat] = 0
		e.finish("timeout", 1-seat)
	}
}

// SendEmoji appends to the bounded emoji log; non-participants are tagged
// as spectators by the caller.
func (e *Engine) SendEmoji(player, emoji string, spectator bool, now time.Time) {
	e.emoji = append(e.emoji, EmojiEntry{Player: player, Emoji: emoji, Spectator: spectator, At: now})
	if len(e.emoji) > e.cfg.EmojiLogSize {
		e.emoji = e.emoji[len(e.emoji)-e.cfg.EmojiLogSize:]
	}
}

// Ranking puts the winner first; draws fall back to seat order.
func (e *Engine) Ranking() []int {
	if e.winner == 1 {
		return []int{1, 0}
	}
	return []int{0, 1}
}

// remaining returns seat's clock with the in-flight think time deducted.
func (e *Engine) remaining(seat int, now time.Time) time.Duration {
	c := e.clocks[seat]
	if e.started && !e.over && seat == e.CurrentSeat() {
		c -= now.Sub(e.lastMoveAt)
	}
	if c < 0 {
		return 0
	}
	return c
}

func (e *Engine) View(now time.Time) any {
	turn := "white"
	if e.pos.turn < 0 {
		turn = "black"
	}
	v := View{
		FEN:      e.FEN(),
		Turn:     turn,
		ClocksMs: [2]int64{e.remaining(0, now).Milliseconds(), e.remaining(1, now).Milliseconds()},
		Check:    e.pos.inCheck(e.pos.turn),
		History:  append([]MoveRecord(nil), e.history...),
		Emoji:    append([]EmojiEntry(nil), e.emoji...),
		GameOver: e.over,
		Winner:   e.winner,
		Reason:   e.reason,
	}
	for i := range e.captured {
		v.Captured[i] = append([]string(nil), e.captured[i]...)
	}
	return v
}
