package board

import (
	"errors"
	"fmt"

	"github.com/dylhunn/dragontoothmg"
)

// ErrIllegalMove is returned when move text does not name a legal move.
var ErrIllegalMove = errors.New("illegal move")

// Move is an immutable encoded move: from square, to square and promotion
// piece, in the move generator's 16-bit layout.
type Move uint16

// NoMove represents the absence of a move (no legal move at the root).
const NoMove Move = 0

// MoveKind classifies a move relative to the position it is played from.
type MoveKind uint8

const (
	Quiet MoveKind = iota
	Capture
	EnPassant
	Promotion
	CapturePromotion
	Castle
)

// String returns the kind name.
func (k MoveKind) String() string {
	switch k {
	case Quiet:
		return "quiet"
	case Capture:
		return "capture"
	case EnPassant:
		return "en-passant"
	case Promotion:
		return "promotion"
	case CapturePromotion:
		return "capture-promotion"
	case Castle:
		return "castle"
	default:
		return "unknown"
	}
}

// From returns the origin square.
func (m Move) From() Square {
	dm := dragontoothmg.Move(m)
	return Square(dm.From())
}

// To returns the destination square.
func (m Move) To() Square {
	dm := dragontoothmg.Move(m)
	return Square(dm.To())
}

// Promotion returns the promotion piece type, or NoPieceType.
func (m Move) Promotion() PieceType {
	dm := dragontoothmg.Move(m)
	return fromDragon(dm.Promote())
}

// IsPromotion returns true if this is a promotion move.
func (m Move) IsPromotion() bool {
	return m.Promotion() != NoPieceType
}

// String returns the UCI format of the move (e.g., "e2e4", "e7e8q").
func (m Move) String() string {
	if m == NoMove {
		return "0000"
	}
	dm := dragontoothmg.Move(m)
	return dm.String()
}

// ParseMove resolves UCI move text against the legal moves of the position.
func (p *Position) ParseMove(s string) (Move, error) {
	for _, m := range p.LegalMoves() {
		if m.String() == s {
			return m, nil
		}
	}
	return NoMove, fmt.Errorf("%w: %s", ErrIllegalMove, s)
}

// Kind classifies the move in this position. Castling is reported as such
// even though it moves no material.
func (p *Position) Kind(m Move) MoveKind {
	mover := p.PieceAt(m.From())
	target := p.PieceAt(m.To())

	if m.IsPromotion() {
		if target != NoPiece {
			return CapturePromotion
		}
		return Promotion
	}

	switch mover.Type() {
	case King:
		if d := m.To().File() - m.From().File(); d == 2 || d == -2 {
			return Castle
		}
	case Pawn:
		if target == NoPiece && m.To().File() != m.From().File() {
			return EnPassant
		}
	}

	if target != NoPiece {
		return Capture
	}
	return Quiet
}

// CapturedPiece returns the piece removed by the move and the square it
// stood on. For en passant that is the pawn behind the destination square.
func (p *Position) CapturedPiece(m Move) (Piece, Square) {
	switch p.Kind(m) {
	case Capture, CapturePromotion:
		return p.PieceAt(m.To()), m.To()
	case EnPassant:
		sq := m.To() - 8
		if p.SideToMove() == Black {
			sq = m.To() + 8
		}
		return NewPiece(Pawn, p.SideToMove().Other()), sq
	}
	return NoPiece, NoSquare
}

// IsCapture returns true if the move removes an enemy piece.
func (p *Position) IsCapture(m Move) bool {
	victim, _ := p.CapturedPiece(m)
	return victim != NoPiece
}
