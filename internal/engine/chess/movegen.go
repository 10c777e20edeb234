package chess

// Board geometry: square index = rank*8 + file, rank 0 is white's back rank.
// Pieces are signed: positive white, negative black.

const (
	emptySq int8 = 0
	wPawn   int8 = 1
	wKnight int8 = 2
	wBishop int8 = 3
	wRook   int8 = 4
	wQueen  int8 = 5
	wKing   int8 = 6
)

const (
	castleWK = iota
	castleWQ
	castleBK
	castleBQ
)

const noSquare = -1

// position is the minimal state move generation needs; the engine embeds one
// and legality tests work on copies.
type position struct {
	board  [64]int8
	turn   int8 // 1 white, -1 black
	castle [4]bool
	ep     int // en passant target square, valid for exactly one ply
}

// Move is a from/to pair plus the promotion piece (0 when not promoting).
type Move struct {
	From  int
	To    int
	Promo int8
}

func abs8(v int8) int8 {
	if v < 0 {
		return -v
	}
	return v
}

func rankOf(sq int) int { return sq / 8 }
func fileOf(sq int) int { return sq % 8 }

func square(rank, file int) int { return rank*8 + file }

func onBoard(rank, file int) bool {
	return rank >= 0 && rank < 8 && file >= 0 && file < 8
}

var (
	knightSteps = [8][2]int{{2, 1}, {2, -1}, {-2, 1}, {-2, -1}, {1, 2}, {1, -2}, {-1, 2}, {-1, -2}}
	kingSteps   = [8][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}, {1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
	rookRays    = [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	bishopRays  = [4][2]int{{1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
)

func (p *position) kingSquare(side int8) int {
	want := wKing * side
	for sq, pc := range p.board {
		if pc == want {
			return sq
		}
	}
	return noSquare
}

// attacked reports whether side attacks sq.
func (p *position) attacked(sq int, side int8) bool {
	r, f := rankOf(sq), fileOf(sq)

	// Pawns attack one rank toward the enemy.
	pr := r - int(side)
	for _, df := range [2]int{-1, 1} {
		if onBoard(pr, f+df) && p.board[square(pr, f+df)] == wPawn*side {
			return true
		}
	}
	for _, s := range knightSteps {
		if onBoard(r+s[0], f+s[1]) && p.board[square(r+s[0], f+s[1])] == wKnight*side {
			return true
		}
	}
	for _, s := range kingSteps {
		if onBoard(r+s[0], f+s[1]) && p.board[square(r+s[0], f+s[1])] == wKing*side {
			return true
		}
	}
	for _, ray := range rookRays {
		for d := 1; ; d++ {
			rr, ff := r+ray[0]*d, f+ray[1]*d
			if !onBoard(rr, ff) {
				break
			}
			pc := p.board[square(rr, ff)]
			if pc == emptySq {
				continue
			}
			if pc == wRook*side || pc == wQueen*side {
				return true
			}
			break
		}
	}
	for _, ray := range bishopRays {
		for d := 1; ; d++ {
			rr, ff := r+ray[0]*d, f+ray[1]*d
			if !onBoard(rr, ff) {
				break
			}
			pc := p.board[square(rr, ff)]
			if pc == emptySq {
				continue
			}
			if pc == wBishop*side || pc == wQueen*side {
				return true
			}
			break
		}
	}
	return false
}

func (p *position) inCheck(side int8) bool {
	k := p.kingSquare(side)
	return k != noSquare && p.attacked(k, -side)
}

// apply plays m on the position, handling en passant, castling rook hops,
// promotion and castling-right decay. It assumes m is pseudo-legal and
// returns the captured piece.
func (p *position) apply(m Move) int8 {
	pc := p.board[m.From]
	captured := p.board[m.To]
	side := p.turn

	// En passant capture removes the pawn behind the target square.
	if abs8(pc) == wPawn && m.To == p.ep && captured == emptySq {
		capSq := m.To - int(side)*8
		captured = p.board[capSq]
		p.board[capSq] = emptySq
	}

	p.board[m.To] = pc
	p.board[m.From] = emptySq

	// Castling: the king travels two files, bring the rook across.
	if abs8(pc) == wKing && fileOf(m.To)-fileOf(m.From) == 2 {
		r := rankOf(m.From)
		p.board[square(r, 5)] = p.board[square(r, 7)]
		p.board[square(r, 7)] = emptySq
	}
	if abs8(pc) == wKing && fileOf(m.From)-fileOf(m.To) == 2 {
		r := rankOf(m.From)
		p.board[square(r, 3)] = p.board[square(r, 0)]
		p.board[square(r, 0)] = emptySq
	}

	if m.Promo != 0 {
		p.board[m.To] = m.Promo * side
	}

	// Double pawn push opens the en passant window for one ply.
	p.ep = noSquare
	if abs8(pc) == wPawn && rankOf(m.To)-rankOf(m.From) == 2*int(side) {
		p.ep = m.From + int(side)*8
	}

	switch m.From {
	case square(0, 4):
		p.castle[castleWK], p.castle[castleWQ] = false, false
	case square(7, 4):
		p.castle[castleBK], p.castle[castleBQ] = false, false
	case square(0, 0):
		p.castle[castleWQ] = false
	case square(0, 7):
		p.castle[castleWK] = false
	case square(7, 0):
		p.castle[castleBQ] = false
	case square(7, 7):
		p.castle[castleBK] = false
	}
	switch m.To {
	case square(0, 0):
		p.castle[castleWQ] = false
	case square(0, 7):
		p.castle[castleWK] = false
	case square(7, 0):
		p.castle[castleBQ] = false
	case square(7, 7):
		p.castle[castleBK] = false
	}

	p.turn = -p.turn
	return captured
}

// legal reports whether m leaves the mover's king safe.
func (p *position) legal(m Move) bool {
	cp := *p
	side := cp.turn
	cp.apply(m)
	return !cp.inCheck(side)
}

// legalMoves generates all legal moves for the side to move.
func (p *position) legalMoves() []Move {
	var out []Move
	for _, m := range p.pseudoMoves() {
		if p.legal(m) {
			out = append(out, m)
		}
	}
	return out
}

func (p *position) pseudoMoves() []Move {
	side := p.turn
	moves := make([]Move, 0, 48)
	for sq, pc := range p.board {
		if pc == emptySq || (pc > 0) != (side > 0) {
			continue
		}
		switch abs8(pc) {
		case wPawn:
			moves = p.pawnMoves(moves, sq, side)
		case wKnight:
			moves = p.stepMoves(moves, sq, side, knightSteps[:])
		case wKing:
			moves = p.stepMoves(moves, sq, side, kingSteps[:])
			moves = p.castleMoves(moves, side)
		case wBishop:
			moves = p.rayMoves(moves, sq, side, bishopRays[:])
		case wRook:
			moves = p.rayMoves(moves, sq, side, rookRays[:])
		case wQueen:
			moves = p.rayMoves(moves, sq, side, rookRays[:])
			moves = p.rayMoves(moves, sq, side, bishopRays[:])
		}
	}
	return moves
}

func (p *position) pawnMoves(moves []Move, sq int, side int8) []Move {
	r, f := rankOf(sq), fileOf(sq)
	dir := int(side)
	startRank, promoRank := 1, 7
	if side < 0 {
		startRank, promoRank = 6, 0
	}

	push := func(to int) []Move {
		if rankOf(to) == promoRank {
			for _, pr := range [4]int8{wQueen, wRook, wBishop, wKnight} {
				moves = append(moves, Move{From: sq, To: to, Promo: pr})
			}
			return moves
		}
		return append(moves, Move{From: sq, To: to})
	}

	if onBoard(r+dir, f) && p.board[square(r+dir, f)] == emptySq {
		moves = push(square(r+dir, f))
		if r == startRank && p.board[square(r+2*dir, f)] == emptySq {
			moves = append(moves, Move{From: sq, To: square(r + 2*dir, f)})
		}
	}
	for _, df := range [2]int{-1, 1} {
		if !onBoard(r+dir, f+df) {
			continue
		}
		to := square(r+dir, f+df)
		target := p.board[to]
		enemy := target != emptySq && (target > 0) != (side > 0)
		if enemy || to == p.ep {
			moves = push(to)
		}
	}
	return moves
}

func (p *position) stepMoves(moves []Move, sq int, side int8, steps [][2]int) []Move {
	r, f := rankOf(sq), fileOf(sq)
	for _, s := range steps {
		rr, ff := r+s[0], f+s[1]
		if !onBoard(rr, ff) {
			continue
		}
		target := p.board[square(rr, ff)]
		if target == emptySq || (target > 0) != (side > 0) {
			moves = append(moves, Move{From: sq, To: square(rr, ff)})
		}
	}
	return moves
}

func (p *position) rayMoves(moves []Move, sq int, side int8, rays [][2]int) []Move {
	r, f := rankOf(sq), fileOf(sq)
	for _, ray := range rays {
		for d := 1; ; d++ {
			rr, ff := r+ray[0]*d, f+ray[1]*d
			if !onBoard(rr, ff) {
				break
			}
			target := p.board[square(rr, ff)]
			if target == emptySq {
				moves = append(moves, Move{From: sq, To: square(rr, ff)})
				continue
			}
			if (target > 0) != (side > 0) {
				moves = append(moves, Move{From: sq, To: square(rr, ff)})
			}
			break
		}
	}
	return moves
}

// castleMoves adds king-side and queen-side castling when the rights are
// intact, the path is clear and the king never crosses an attacked square.
func (p *position) castleMoves(moves []Move, side int8) []Move {
	rank := 0
	kIdx, qIdx := castleWK, castleWQ
	if side < 0 {
		rank = 7
		kIdx, qIdx = castleBK, castleBQ
	}
	kingSq := square(rank, 4)
	if p.board[kingSq] != wKing*side || p.attacked(kingSq, -side) {
		return moves
	}
	if p.castle[kIdx] &&
		p.board[square(rank, 5)] == emptySq && p.board[square(rank, 6)] == emptySq &&
		p.board[square(rank, 7)] == wRook*side &&
		!p.attacked(square(rank, 5), -side) && !p.attacked(square(rank, 6), -side) {
		moves = append(moves, Move{From: kingSq, To: square(rank, 6)})
	}
	if p.castle[qIdx] &&
		p.board[square(rank, 1)] == emptySq && p.board[square(rank, 2)] == emptySq &&
		p.board[square(rank, 3)] == emptySq &&
		p.board[square(rank, 0)] == wRook*side &&
		!p.attacked(square(rank, 3), -side) && !p.attacked(square(rank, 2), -side) {
		moves = append(moves, Move{From: kingSq, To: square(rank, 2)})
	}
	return moves
}

// insufficientMaterial reports positions where neither side can mate: bare
// kings, a lone minor piece, or same-coloured bishops only.
func (p *position) insufficientMaterial() bool {
	var minors, knights int
	var bishopShades [2]bool
	for sq, pc := range p.board {
		switch abs8(pc) {
		case emptySq, wKing:
		case wKnight:
			minors++
			knights++
		case wBishop:
			minors++
			bishopShades[(rankOf(sq)+fileOf(sq))%2] = true
		default:
			return false
		}
	}
	if minors <= 1 {
		return true
	}
	if knights > 0 {
		return false
	}
	// Any number of bishops all on the same shade cannot force mate.
	return !bishopShades[0] || !bishopShades[1]
}

func startPosition() position {
	p := position{turn: 1, ep: noSquare}
	p.castle = [4]bool{true, true, true, true}
	back := [8]int8{wRook, wKnight, wBishop, wQueen, wKing, wBishop, wKnight, wRook}
	for f := 0; f < 8; f++ {
		p.board[square(0, f)] = back[f]
		p.board[square(1, f)] = wPawn
		p.board[square(6, f)] = -wPawn
		p.board[square(7, f)] = -back[f]
	}
	return p
}
