package board

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dylhunn/dragontoothmg"
)

// StartFEN is the FEN string for the starting position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// ErrInvalidFEN is returned for position text that cannot be set up.
var ErrInvalidFEN = errors.New("invalid FEN")

// ParseFEN parses a FEN string and returns a Position.
// The half-move clock and full-move number are optional.
func ParseFEN(fen string) (*Position, error) {
	parts := strings.Fields(fen)
	if len(parts) < 4 || len(parts) > 6 {
		return nil, fmt.Errorf("%w: need 4 to 6 fields, got %d", ErrInvalidFEN, len(parts))
	}

	if err := checkPlacement(parts[0]); err != nil {
		return nil, err
	}

	if parts[1] != "w" && parts[1] != "b" {
		return nil, fmt.Errorf("%w: invalid side to move: %s", ErrInvalidFEN, parts[1])
	}

	if parts[2] != "-" {
		for _, c := range parts[2] {
			if !strings.ContainsRune("KQkq", c) {
				return nil, fmt.Errorf("%w: invalid castling rights: %s", ErrInvalidFEN, parts[2])
			}
		}
	}

	ep := NoSquare
	if parts[3] != "-" {
		sq, err := ParseSquare(parts[3])
		if err != nil || (parts[1] == "w" && sq.Rank() != 5) || (parts[1] == "b" && sq.Rank() != 2) {
			return nil, fmt.Errorf("%w: invalid en passant square: %s", ErrInvalidFEN, parts[3])
		}
		ep = sq
	}

	// Missing clocks default to "0 1"
	if len(parts) == 4 {
		parts = append(parts, "0")
	}
	if len(parts) == 5 {
		parts = append(parts, "1")
	}
	for i, name := range []string{"half-move clock", "full-move number"} {
		n, err := strconv.Atoi(parts[4+i])
		if err != nil || n < 0 || (i == 0 && n > 255) {
			return nil, fmt.Errorf("%w: invalid %s: %s", ErrInvalidFEN, name, parts[4+i])
		}
	}

	b, err := parseBoard(strings.Join(parts, " "))
	if err != nil {
		return nil, err
	}

	// The side that just moved cannot be left in check
	opp := b
	opp.Wtomove = !opp.Wtomove
	if opp.OurKingInCheck() {
		return nil, fmt.Errorf("%w: side not to move is in check", ErrInvalidFEN)
	}

	pos := &Position{b: b}
	if err := pos.checkCastling(parts[2]); err != nil {
		return nil, err
	}
	if err := pos.checkEnPassant(ep); err != nil {
		return nil, err
	}
	return pos, nil
}

// castlingHome lists, per castling letter, the king and rook home squares.
var castlingHome = map[rune]struct {
	color      Color
	king, rook Square
}{
	'K': {White, NewSquare(4, 0), NewSquare(7, 0)},
	'Q': {White, NewSquare(4, 0), NewSquare(0, 0)},
	'k': {Black, NewSquare(4, 7), NewSquare(7, 7)},
	'q': {Black, NewSquare(4, 7), NewSquare(0, 7)},
}

// checkCastling requires the king and rook of every castling right to
// stand on their home squares.
func (p *Position) checkCastling(rights string) error {
	if rights == "-" {
		return nil
	}
	for _, c := range rights {
		home := castlingHome[c]
		if p.PieceAt(home.king) != NewPiece(King, home.color) || p.PieceAt(home.rook) != NewPiece(Rook, home.color) {
			return fmt.Errorf("%w: castling right %c without king and rook at home", ErrInvalidFEN, c)
		}
	}
	return nil
}

// checkEnPassant requires an empty en passant square with the enemy pawn
// that just double-pushed standing in front of it.
func (p *Position) checkEnPassant(ep Square) error {
	if ep == NoSquare {
		return nil
	}
	pawn, behind := NewPiece(Pawn, Black), ep-8
	if p.SideToMove() == Black {
		pawn, behind = NewPiece(Pawn, White), ep+8
	}
	if p.PieceAt(ep) != NoPiece || p.PieceAt(behind) != pawn {
		return fmt.Errorf("%w: no double-pushed pawn for en passant square %s", ErrInvalidFEN, ep)
	}
	return nil
}

// parseBoard hands validated text to the move generator, which panics
// rather than failing on input it cannot read.
func parseBoard(fen string) (b dragontoothmg.Board, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrInvalidFEN, r)
		}
	}()
	return dragontoothmg.ParseFen(fen), nil
}

// checkPlacement validates the piece placement field: eight ranks of eight
// squares, one king per side, and no pawns on the first or last rank.
func checkPlacement(placement string) error {
	ranks := strings.Split(placement, "/")
	if len(ranks) != 8 {
		return fmt.Errorf("%w: need 8 ranks, got %d", ErrInvalidFEN, len(ranks))
	}

	kings := map[byte]int{}
	for i, rank := range ranks {
		squares := 0
		for j := 0; j < len(rank); j++ {
			c := rank[j]
			switch {
			case c >= '1' && c <= '8':
				squares += int(c - '0')
			case strings.IndexByte("PNBRQKpnbrqk", c) >= 0:
				if (c == 'P' || c == 'p') && (i == 0 || i == 7) {
					return fmt.Errorf("%w: pawn on rank %d", ErrInvalidFEN, 8-i)
				}
				if c == 'K' || c == 'k' {
					kings[c]++
				}
				squares++
			default:
				return fmt.Errorf("%w: invalid piece character %q", ErrInvalidFEN, c)
			}
		}
		if squares != 8 {
			return fmt.Errorf("%w: rank %d has %d squares", ErrInvalidFEN, 8-i, squares)
		}
	}

	if kings['K'] != 1 || kings['k'] != 1 {
		return fmt.Errorf("%w: each side must have exactly one king", ErrInvalidFEN)
	}
	return nil
}
