package tictactoe

import (
	"encoding/json"
	"fmt"

	"github.com/tourneyhub/gamecore/internal/engine"
)

// BotMove searches the full game tree. Tic-tac-toe is small enough that
// exhaustive minimax is instant, so the bot plays perfectly.
func (e *Engine) BotMove(seat int) (json.RawMessage, error) {
	if e.over {
		return nil, engine.ErrGameOver
	}
	if seat != e.current {
		return nil, engine.ErrNotYourTurn
	}

	bestCell := -1
	bestScore := -1000
	board := e.board
	for cell := 0; cell < cells; cell++ {
		if board[cell] != empty {
			continue
		}
		board[cell] = seat
		score := -negamax(board, 1-seat, seat)
		board[cell] = empty
		if score > bestScore {
			bestScore = score
			bestCell = cell
		}
	}
	if bestCell < 0 {
		return nil, fmt.Errorf("%w: board full", engine.ErrIllegalMove)
	}
	return json.Marshal(MovePayload{Cell: bestCell})
}

// negamax scores the position for the seat to move relative to perspective.
// Scores prefer faster wins so the bot finishes games instead of toying.
func negamax(b [cells]int, toMove, perspective int) int {
	if w, ok := lineWinner(b); ok {
		if w == toMove {
			return 10
		}
		return -10
	}
	full := true
	for _, c := range b {
		if c == empty {
			full = false
			break
		}
	}
	if full {
		return 0
	}

	best := -1000
	for cell := 0; cell < cells; cell++ {
		if b[cell] != empty {
			continue
		}
		b[cell] = toMove
		score := -negamax(b, 1-toMove, perspective)
		b[cell] = empty
		if score > best {
			best = score
		}
	}
	// Decay by one so shallower mates score higher.
	if best > 0 {
		return best - 1
	}
	if best < 0 {
		return best + 1
	}
	return best
}
