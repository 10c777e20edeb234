// Package tictactoe implements the 3x3 mark game.
package tictactoe

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tourneyhub/gamecore/internal/engine"
)

const cells = 9

// winLines are the 8 winning triples.
var winLines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8}, // rows
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8}, // columns
	{0, 4, 8}, {2, 4, 6}, // diagonals
}

const (
	empty = -1
	seatX = 0
	seatO = 1
)

// Engine holds the board for one game. Seat 0 plays X and moves first.
type Engine struct {
	board   [cells]int // seat index or empty
	current int
	history []int
	winner  int // seat index, or -1
	over    bool
	reason  string
}

// MovePayload is the JSON body of a tic-tac-toe move.
type MovePayload struct {
	Cell int `json:"cell"`
}

// View is the state projection returned to pollers.
type View struct {
	Board       [cells]int `json:"board"`
	CurrentSeat int        `json:"current_seat"`
	History     []int      `json:"history"`
	GameOver    bool       `json:"game_over"`
	Winner      int        `json:"winner"`
	Reason      string     `json:"reason,omitempty"`
}

// New creates a fresh game.
func New() *Engine {
	e := &Engine{current: seatX, winner: -1}
	for i := range e.board {
		e.board[i] = empty
	}
	return e
}

func (e *Engine) Kind() engine.Kind { return engine.KindTicTacToe }
func (e *Engine) SeatCount() int    { return 2 }
func (e *Engine) Roles() []string   { return []string{"x", "o"} }
func (e *Engine) Over() bool        { return e.over }
func (e *Engine) CurrentSeat() int  { return e.current }

func (e *Engine) TerminalReason() string { return e.reason }

// ApplyMove places the seat's mark. Cell indices run 0..8 row-major.
func (e *Engine) ApplyMove(seat int, payload json.RawMessage, now time.Time) error {
	if e.over {
		return engine.ErrGameOver
	}
	if seat != seatX && seat != seatO {
		return engine.ErrUnknownSeat
	}
	if seat != e.current {
		return engine.ErrNotYourTurn
	}

	var mv MovePayload
	if err := json.Unmarshal(payload, &mv); err != nil {
		return fmt.Errorf("%w: %v", engine.ErrIllegalMove, err)
	}
	if mv.Cell < 0 || mv.Cell >= cells {
		return fmt.Errorf("%w: cell %d out of range", engine.ErrIllegalMove, mv.Cell)
	}
	if e.board[mv.Cell] != empty {
		return fmt.Errorf("%w: cell %d occupied", engine.ErrIllegalMove, mv.Cell)
	}

	e.board[mv.Cell] = seat
	e.history = append(e.history, mv.Cell)
	e.settle()
	if !e.over {
		e.current = 1 - e.current
	}
	return nil
}

// Tick is a no-op; the game has no clock.
func (e *Engine) Tick(now time.Time) {}

func (e *Engine) settle() {
	if w, ok := lineWinner(e.board); ok {
		e.winner = w
		e.over = true
		e.reason = "win"
		return
	}
	if len(e.history) == cells {
		e.over = true
		e.reason = "draw"
	}
}

func lineWinner(b [cells]int) (int, bool) {
	for _, line := range winLines {
		if b[line[0]] != empty && b[line[0]] == b[line[1]] && b[line[1]] == b[line[2]] {
			return b[line[0]], true
		}
	}
	return -1, false
}

// Ranking returns winner first; draws keep seat order for determinism.
func (e *Engine) Ranking() []int {
	if e.winner == seatO {
		return []int{seatO, seatX}
	}
	return []int{seatX, seatO}
}

func (e *Engine) View(now time.Time) any {
	hist := make([]int, len(e.history))
	copy(hist, e.history)
	return View{
		Board:       e.board,
		CurrentSeat: e.current,
		History:     hist,
		GameOver:    e.over,
		Winner:      e.winner,
		Reason:      e.reason,
	}
}
