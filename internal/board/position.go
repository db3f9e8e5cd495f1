package board

import (
	"fmt"
	"math/bits"

	"github.com/dylhunn/dragontoothmg"
)

// Position represents a complete chess position plus the hashes of the
// positions played through to reach it from the point it was set up.
type Position struct {
	b dragontoothmg.Board

	// Hashes of earlier positions on the current line (repetition detection)
	history []uint64
}

// Undo restores a position to its state before a Make call.
// Returned by Make and applied with Restore, normally via defer.
type Undo struct {
	pos   *Position
	board dragontoothmg.Board
	plies int
}

// Restore undoes the move the Undo was created for.
func (u Undo) Restore() {
	u.pos.b = u.board
	u.pos.history = u.pos.history[:u.plies]
}

// NewPosition creates the starting position.
func NewPosition() *Position {
	pos, _ := ParseFEN(StartFEN)
	return pos
}

// Clone creates a deep copy of the position that shares no state with p.
func (p *Position) Clone() *Position {
	c := &Position{b: p.b}
	if len(p.history) > 0 {
		c.history = make([]uint64, len(p.history), len(p.history)+32)
		copy(c.history, p.history)
	}
	return c
}

// Equal reports whether two positions are identical, including history.
func (p *Position) Equal(o *Position) bool {
	if p.b != o.b || len(p.history) != len(o.history) {
		return false
	}
	for i := range p.history {
		if p.history[i] != o.history[i] {
			return false
		}
	}
	return true
}

// Make plays a legal move. The returned Undo must be restored before the
// position is used by anyone else:
//
//	undo := pos.Make(m)
//	defer undo.Restore()
func (p *Position) Make(m Move) Undo {
	undo := Undo{pos: p, board: p.b, plies: len(p.history)}
	p.history = append(p.history, p.b.Hash())
	p.b.Apply(dragontoothmg.Move(m))
	return undo
}

// LegalMoves returns all legal moves for the side to move, in generator order.
func (p *Position) LegalMoves() []Move {
	generated := p.b.GenerateLegalMoves()
	moves := make([]Move, len(generated))
	for i, m := range generated {
		moves[i] = Move(m)
	}
	return moves
}

// SideToMove returns the color to move.
func (p *Position) SideToMove() Color {
	if p.b.Wtomove {
		return White
	}
	return Black
}

// InCheck returns true if the side to move is in check.
func (p *Position) InCheck() bool {
	return p.b.OurKingInCheck()
}

// HalfMoveClock returns the number of plies since the last capture or pawn move.
func (p *Position) HalfMoveClock() int {
	return int(p.b.Halfmoveclock)
}

// Hash returns the Zobrist hash of the position.
func (p *Position) Hash() uint64 {
	return p.b.Hash()
}

// FEN returns the FEN text of the position.
func (p *Position) FEN() string {
	return p.b.ToFen()
}

// bitboards returns the piece bitboards of a color.
func (p *Position) bitboards(c Color) *dragontoothmg.Bitboards {
	if c == White {
		return &p.b.White
	}
	return &p.b.Black
}

// typeBoard returns the bitboard of one piece type within a color's set.
func typeBoard(bbs *dragontoothmg.Bitboards, pt PieceType) uint64 {
	switch pt {
	case Pawn:
		return bbs.Pawns
	case Knight:
		return bbs.Knights
	case Bishop:
		return bbs.Bishops
	case Rook:
		return bbs.Rooks
	case Queen:
		return bbs.Queens
	case King:
		return bbs.Kings
	}
	return 0
}

// PieceAt returns the piece at the given square, or NoPiece if empty.
func (p *Position) PieceAt(sq Square) Piece {
	if sq >= NoSquare {
		return NoPiece
	}
	bb := sq.bb()

	var c Color
	switch {
	case p.b.White.All&bb != 0:
		c = White
	case p.b.Black.All&bb != 0:
		c = Black
	default:
		return NoPiece
	}

	bbs := p.bitboards(c)
	for pt := Pawn; pt <= King; pt++ {
		if typeBoard(bbs, pt)&bb != 0 {
			return NewPiece(pt, c)
		}
	}
	return NoPiece
}

// Count returns how many pieces of the given type and color are on the board.
func (p *Position) Count(pt PieceType, c Color) int {
	return bits.OnesCount64(typeBoard(p.bitboards(c), pt))
}

// String returns a visual representation of the position.
func (p *Position) String() string {
	s := "\n"
	for rank := 7; rank >= 0; rank-- {
		s += fmt.Sprintf("%d  ", rank+1)
		for file := 0; file < 8; file++ {
			piece := p.PieceAt(NewSquare(file, rank))
			if piece == NoPiece {
				s += ". "
			} else {
				s += piece.String() + " "
			}
		}
		s += "\n"
	}
	s += "\n   a b c d e f g h\n\n"
	s += fmt.Sprintf("Side to move: %s\n", p.SideToMove())
	s += fmt.Sprintf("FEN: %s\n", p.FEN())
	s += fmt.Sprintf("Hash: %016x\n", p.Hash())
	return s
}

// Perft counts the leaf nodes of the legal move tree at the given depth.
// This is the standard way to verify move generation correctness.
func (p *Position) Perft(depth int) uint64 {
	if depth == 0 {
		return 1
	}

	moves := p.LegalMoves()
	if depth == 1 {
		return uint64(len(moves))
	}

	var nodes uint64
	for _, m := range moves {
		undo := p.Make(m)
		nodes += p.Perft(depth - 1)
		undo.Restore()
	}
	return nodes
}
