// Package connect4 implements the 6x7 gravity drop game.
package connect4

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tourneyhub/gamecore/internal/engine"
)

const (
	Rows = 6
	Cols = 7
)

const (
	empty      = -1
	seatRed    = 0
	seatYellow = 1
)

// Engine holds one game. Row 0 is the bottom; seat 0 plays red and starts.
type Engine struct {
	grid     [Rows][Cols]int
	current  int
	history  []int // columns in play order
	lastRow  int
	lastCol  int
	winner   int
	over     bool
	reason   string
	botDepth int
}

// MovePayload is the JSON body of a connect-four move.
type MovePayload struct {
	Column int `json:"column"`
}

// View is the state projection returned to pollers.
type View struct {
	Grid        [Rows][Cols]int `json:"grid"`
	CurrentSeat int             `json:"current_seat"`
	History     []int           `json:"history"`
	LastRow     int             `json:"last_row"`
	LastCol     int             `json:"last_col"`
	GameOver    bool            `json:"game_over"`
	Winner      int             `json:"winner"`
	Reason      string          `json:"reason,omitempty"`
}

// New creates a fresh game. botDepth bounds the bot's minimax search.
func New(botDepth int) *Engine {
	e := &Engine{current: seatRed, winner: -1, lastRow: -1, lastCol: -1, botDepth: botDepth}
	for r := 0; r < Rows; r++ {
		for c := 0; c < Cols; c++ {
			e.grid[r][c] = empty
		}
	}
	return e
}

func (e *Engine) Kind() engine.Kind      { return engine.KindConnectFour }
func (e *Engine) SeatCount() int         { return 2 }
func (e *Engine) Roles() []string        { return []string{"red", "yellow"} }
func (e *Engine) Over() bool             { return e.over }
func (e *Engine) CurrentSeat() int       { return e.current }
func (e *Engine) TerminalReason() string { return e.reason }

// ApplyMove drops a piece into the given column.
func (e *Engine) ApplyMove(seat int, payload json.RawMessage, now time.Time) error {
	if e.over {
		return engine.ErrGameOver
	}
	if seat != seatRed && seat != seatYellow {
		return engine.ErrUnknownSeat
	}
	if seat != e.current {
		return engine.ErrNotYourTurn
	}

	var mv MovePayload
	if err := json.Unmarshal(payload, &mv); err != nil {
		return fmt.Errorf("%w: %v", engine.ErrIllegalMove, err)
	}
	if mv.Column < 0 || mv.Column >= Cols {
		return fmt.Errorf("%w: column %d out of range", engine.ErrIllegalMove, mv.Column)
	}

	row := dropRow(&e.grid, mv.Column)
	if row < 0 {
		return fmt.Errorf("%w: column %d full", engine.ErrIllegalMove, mv.Column)
	}

	e.grid[row][mv.Column] = seat
	e.history = append(e.history, mv.Column)
	e.lastRow, e.lastCol = row, mv.Column

	if winsAt(&e.grid, row, mv.Column) {
		e.winner = seat
		e.over = true
		e.reason = "four_in_a_row"
		return nil
	}
	if len(e.history) == Rows*Cols {
		e.over = true
		e.reason = "draw"
		return nil
	}
	e.current = 1 - e.current
	return nil
}

// Tick is a no-op; the game has no clock.
func (e *Engine) Tick(now time.Time) {}

// Ranking returns winner first; draws keep seat order.
func (e *Engine) Ranking() []int {
	if e.winner == seatYellow {
		return []int{seatYellow, seatRed}
	}
	return []int{seatRed, seatYellow}
}

func (e *Engine) View(now time.Time) any {
	hist := make([]int, len(e.history))
	copy(hist, e.history)
	return View{
		Grid:        e.grid,
		CurrentSeat: e.current,
		History:     hist,
		LastRow:     e.lastRow,
		LastCol:     e.lastCol,
		GameOver:    e.over,
		Winner:      e.winner,
		Reason:      e.reason,
	}
}

// dropRow returns the lowest empty row in the column, or -1 when full.
func dropRow(g *[Rows][Cols]int, col int) int {
	for r := 0; r < Rows; r++ {
		if g[r][col] == empty {
			return r
		}
	}
	return -1
}

// winsAt reports whether the piece at (row, col) completes four in a row.
var directions = [4][2]int{{0, 1}, {1, 0}, {1, 1}, {1, -1}}

func winsAt(g *[Rows][Cols]int, row, col int) bool {
	seat := g[row][col]
	for _, d := range directions {
		count := 1
		for _, sign := range []int{1, -1} {
			r, c := row+sign*d[0], col+sign*d[1]
			for r >= 0 && r < Rows && c >= 0 && c < Cols && g[r][c] == seat {
				count++
				r += sign * d[0]
				c += sign * d[1]
			}
		}
		if count >= 4 {
			return true
		}
	}
	return false
}
