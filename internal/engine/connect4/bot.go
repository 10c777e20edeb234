package connect4

import (
	"encoding/json"
	"fmt"

	"github.com/tourneyhub/gamecore/internal/engine"
)

// Column probe order: centre first. Centre columns participate in more win
// lines, so searching them first improves both play and pruning.
var probeOrder = [Cols]int{3, 2, 4, 1, 5, 0, 6}

const winScore = 1 << 20

// BotMove picks a column by depth-limited minimax. Immediate wins are taken
// and immediate losses blocked before the search runs, so even at depth 1
// the bot never misses a forced line one ply deep.
func (e *Engine) BotMove(seat int) (json.RawMessage, error) {
	if e.over {
		return nil, engine.ErrGameOver
	}
	if seat != e.current {
		return nil, engine.ErrNotYourTurn
	}

	grid := e.grid

	// Take a win if one exists.
	if col, ok := winningColumn(&grid, seat); ok {
		return json.Marshal(MovePayload{Column: col})
	}
	// Block the opponent's win.
	if col, ok := winningColumn(&grid, 1-seat); ok {
		return json.Marshal(MovePayload{Column: col})
	}

	depth := e.botDepth
	if depth < 1 {
		depth = 1
	}

	bestCol := -1
	bestScore := -winScore * 2
	for _, col := range probeOrder {
		row := dropRow(&grid, col)
		if row < 0 {
			continue
		}
		grid[row][col] = seat
		score := -search(&grid, 1-seat, depth-1, -winScore*2, winScore*2)
		grid[row][col] = empty
		if score > bestScore {
			bestScore = score
			bestCol = col
		}
	}
	if bestCol < 0 {
		return nil, fmt.Errorf("%w: board full", engine.ErrIllegalMove)
	}
	return json.Marshal(MovePayload{Column: bestCol})
}

// winningColumn returns a column that wins immediately for seat.
func winningColumn(g *[Rows][Cols]int, seat int) (int, bool) {
	for _, col := range probeOrder {
		row := dropRow(g, col)
		if row < 0 {
			continue
		}
		g[row][col] = seat
		won := winsAt(g, row, col)
		g[row][col] = empty
		if won {
			return col, true
		}
	}
	return -1, false
}

// search is negamax with alpha-beta over the drop tree.
func search(g *[Rows][Cols]int, toMove, depth, alpha, beta int) int {
	if depth == 0 {
		return evaluate(g, toMove)
	}

	moved := false
	for _, col := range probeOrder {
		row := dropRow(g, col)
		if row < 0 {
			continue
		}
		moved = true
		g[row][col] = toMove
		var score int
		if winsAt(g, row, col) {
			// Prefer quicker wins.
			score = winScore + depth
		} else {
			score = -search(g, 1-toMove, depth-1, -beta, -alpha)
		}
		g[row][col] = empty

		if score > alpha {
			alpha = score
		}
		if alpha >= beta {
			return alpha
		}
	}
	if !moved {
		return 0 // full board, draw
	}
	return alpha
}

// evaluate scores a quiet position for toMove by counting open runs.
func evaluate(g *[Rows][Cols]int, toMove int) int {
	return sideScore(g, toMove) - sideScore(g, 1-toMove)
}

func sideScore(g *[Rows][Cols]int, seat int) int {
	score := 0
	for r := 0; r < Rows; r++ {
		for c := 0; c < Cols; c++ {
			for _, d := range directions {
				endR, endC := r+3*d[0], c+3*d[1]
				if endR < 0 || endR >= Rows || endC < 0 || endC >= Cols {
					continue
				}
				own, blocked := 0, false
				for i := 0; i < 4; i++ {
					cell := g[r+i*d[0]][c+i*d[1]]
					switch cell {
					case seat:
						own++
					case empty:
					default:
						blocked = true
					}
				}
				if blocked {
					continue
				}
				switch own {
				case 2:
					score += 4
				case 3:
					score += 32
				}
			}
		}
	}
	return score
}
