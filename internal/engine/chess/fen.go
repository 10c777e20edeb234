package chess

import (
	"fmt"
	"strconv"
	"strings"
)

var pieceLetters = map[int8]byte{
	wPawn: 'P', wKnight: 'N', wBishop: 'B', wRook: 'R', wQueen: 'Q', wKing: 'K',
}

var letterPieces = map[byte]int8{
	'P': wPawn, 'N': wKnight, 'B': wBishop, 'R': wRook, 'Q': wQueen, 'K': wKing,
}

// squareName renders an index as algebraic notation ("e4").
func squareName(sq int) string {
	return string([]byte{byte('a' + fileOf(sq)), byte('1' + rankOf(sq))})
}

// parseSquare converts algebraic notation to a board index.
func parseSquare(s string) (int, error) {
	if len(s) != 2 || s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' {
		return 0, fmt.Errorf("bad square %q", s)
	}
	return square(int(s[1]-'1'), int(s[0]-'a')), nil
}

// key returns the first four FEN fields: enough to identify a position for
// repetition counting.
func (p *position) key() string {
	var b strings.Builder
	for rank := 7; rank >= 0; rank-- {
		run := 0
		for file := 0; file < 8; file++ {
			pc := p.board[square(rank, file)]
			if pc == emptySq {
				run++
				continue
			}
			if run > 0 {
				b.WriteByte(byte('0' + run))
				run = 0
			}
			letter := pieceLetters[abs8(pc)]
			if pc < 0 {
				letter += 'a' - 'A'
			}
			b.WriteByte(letter)
		}
		if run > 0 {
			b.WriteByte(byte('0' + run))
		}
		if rank > 0 {
			b.WriteByte('/')
		}
	}

	b.WriteByte(' ')
	if p.turn > 0 {
		b.WriteByte('w')
	} else {
		b.WriteByte('b')
	}

	b.WriteByte(' ')
	rights := ""
	for i, letter := range []string{"K", "Q", "k", "q"} {
		if p.castle[i] {
			rights += letter
		}
	}
	if rights == "" {
		rights = "-"
	}
	b.WriteString(rights)

	b.WriteByte(' ')
	if p.ep == noSquare {
		b.WriteByte('-')
	} else {
		b.WriteString(squareName(p.ep))
	}
	return b.String()
}

// FEN exports the full six-field position string.
func (e *Engine) FEN() string {
	return fmt.Sprintf("%s %d %d", e.pos.key(), e.halfmove, e.fullmove)
}

// ParseFEN reconstructs a position from a FEN string. The halfmove and
// fullmove fields are optional.
func ParseFEN(fen string) (position, int, int, error) {
	fields := strings.Fields(fen)
	if len(fields) < 4 {
		return position{}, 0, 0, fmt.Errorf("fen needs at least 4 fields, got %d", len(fields))
	}

	p := position{ep: noSquare}
	ranks := strings.Split(fields[0], "/")
	if len(ranks) != 8 {
		return position{}, 0, 0, fmt.Errorf("fen placement needs 8 ranks, got %d", len(ranks))
	}
	for i, row := range ranks {
		rank := 7 - i
		file := 0
		for j := 0; j < len(row); j++ {
			c := row[j]
			if c >= '1' && c <= '8' {
				file += int(c - '0')
				continue
			}
			upper := c
			sign := int8(1)
			if c >= 'a' && c <= 'z' {
				upper = c - ('a' - 'A')
				sign = -1
			}
			pc, ok := letterPieces[upper]
			if !ok || file > 7 {
				return position{}, 0, 0, fmt.Errorf("bad fen placement %q", fields[0])
			}
			p.board[square(rank, file)] = pc * sign
			file++
		}
		if file != 8 {
			return position{}, 0, 0, fmt.Errorf("rank %q does not span 8 files", row)
		}
	}

	switch fields[1] {
	case "w":
		p.turn = 1
	case "b":
		p.turn = -1
	default:
		return position{}, 0, 0, fmt.Errorf("bad side to move %q", fields[1])
	}

	if fields[2] != "-" {
		for j := 0; j < len(fields[2]); j++ {
			switch fields[2][j] {
			case 'K':
				p.castle[castleWK] = true
			case 'Q':
				p.castle[castleWQ] = true
			case 'k':
				p.castle[castleBK] = true
			case 'q':
				p.castle[castleBQ] = true
			default:
				return position{}, 0, 0, fmt.Errorf("bad castling rights %q", fields[2])
			}
		}
	}

	if fields[3] != "-" {
		sq, err := parseSquare(fields[3])
		if err != nil {
			return position{}, 0, 0, err
		}
		p.ep = sq
	}

	halfmove, fullmove := 0, 1
	if len(fields) >= 5 {
		v, err := strconv.Atoi(fields[4])
		if err != nil {
			return position{}, 0, 0, fmt.Errorf("bad halfmove clock %q", fields[4])
		}
		halfmove = v
	}
	if len(fields) >= 6 {
		v, err := strconv.Atoi(fields[5])
		if err != nil {
			return position{}, 0, 0, fmt.Errorf("bad fullmove number %q", fields[5])
		}
		fullmove = v
	}
	return p, halfmove, fullmove, nil
}
