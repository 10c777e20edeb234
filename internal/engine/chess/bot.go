package chess

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/tourneyhub/gamecore/internal/engine"
)

// The bot is a shallow alpha-beta search over material plus a centre bonus.
// Depth comes from the bot tuning; 2 plays fast and still refuses hanging
// pieces.

const mateScore = 100000

var pieceValue = [7]int{0, 100, 320, 330, 500, 900, 0}

// BotMove picks a move for seat and returns it as a move payload.
func (e *Engine) BotMove(seat int) (json.RawMessage, error) {
	if e.over {
		return nil, engine.ErrGameOver
	}
	if seat != e.CurrentSeat() {
		return nil, engine.ErrNotYourTurn
	}
	depth := e.cfg.BotDepth
	if depth < 1 {
		depth = 2
	}

	moves := orderMoves(&e.pos, e.pos.legalMoves())
	if len(moves) == 0 {
		return nil, fmt.Errorf("%w: no legal moves", engine.ErrIllegalMove)
	}

	best := moves[0]
	bestScore := -mateScore * 2
	for _, m := range moves {
		cp := e.pos
		cp.apply(m)
		score := -negamax(&cp, depth-1, -mateScore*2, -bestScore)
		if score > bestScore {
			bestScore = score
			best = m
		}
	}

	mv := MovePayload{From: squareName(best.From), To: squareName(best.To)}
	if best.Promo != 0 {
		mv.Promotion = strings.ToLower(string(pieceLetters[best.Promo]))
	}
	return json.Marshal(mv)
}

func negamax(p *position, depth, alpha, beta int) int {
	moves := p.legalMoves()
	if len(moves) == 0 {
		if p.inCheck(p.turn) {
			// Deeper mates score worse so the bot takes the shortest one.
			return -(mateScore + depth)
		}
		return 0
	}
	if depth == 0 {
		return int(p.turn) * evaluate(p)
	}

	for _, m := range orderMoves(p, moves) {
		cp := *p
		cp.apply(m)
		score := -negamax(&cp, depth-1, -beta, -alpha)
		if score >= beta {
			return beta
		}
		if score > alpha {
			alpha = score
		}
	}
	return alpha
}

// orderMoves puts captures first, biggest victim first, to tighten pruning.
func orderMoves(p *position, moves []Move) []Move {
	sort.SliceStable(moves, func(i, j int) bool {
		return captureGain(p, moves[i]) > captureGain(p, moves[j])
	})
	return moves
}

func captureGain(p *position, m Move) int {
	victim := p.board[m.To]
	if victim == emptySq && m.To == p.ep && abs8(p.board[m.From]) == wPawn {
		return pieceValue[wPawn]
	}
	return pieceValue[abs8(victim)]
}

// evaluate scores the position for white: material plus a small bonus for
// central occupation.
func evaluate(p *position) int {
	score := 0
	for sq, pc := range p.board {
		if pc == emptySq {
			continue
		}
		v := pieceValue[abs8(pc)]
		r, f := rankOf(sq), fileOf(sq)
		if r >= 2 && r <= 5 && f >= 2 && f <= 5 {
			v += 10
			if r >= 3 && r <= 4 && f >= 3 && f <= 4 {
				v += 10
			}
		}
		if pc > 0 {
			score += v
		} else {
			score -= v
		}
	}
	return score
}
