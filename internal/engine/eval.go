// Package engine implements the chess AI search engine.
package engine

import (
	"github.com/hailam/chessbot/internal/board"
)

// Evaluator scores positions by material only, always from White's point
// of view: positive favours White, there is no side-to-move term.
type Evaluator struct {
	values [6]int
}

// NewEvaluator creates an evaluator over the given per-type values.
func NewEvaluator(values [6]int) *Evaluator {
	return &Evaluator{values: values}
}

// Value returns the signed value of a piece: positive for White, negative
// for Black, zero for NoPiece.
func (e *Evaluator) Value(p board.Piece) int {
	pt := p.Type()
	if pt >= board.NoPieceType {
		return 0
	}
	if p.Color() == board.Black {
		return -e.values[pt]
	}
	return e.values[pt]
}

// Evaluate returns the full material score of the position.
func (e *Evaluator) Evaluate(pos *board.Position) int {
	score := 0
	for pt := board.Pawn; pt <= board.King; pt++ {
		score += (pos.Count(pt, board.White) - pos.Count(pt, board.Black)) * e.values[pt]
	}
	return score
}

// Delta returns how much Evaluate changes when m is played from pos,
// without playing it. Captures remove the victim (the pawn behind the
// destination for en passant); promotions swap the pawn for the new piece.
// Both terms apply to a capturing promotion.
func (e *Evaluator) Delta(pos *board.Position, m board.Move) int {
	delta := 0

	if victim, _ := pos.CapturedPiece(m); victim != board.NoPiece {
		delta -= e.Value(victim)
	}

	switch promo := m.Promotion(); promo {
	case board.Knight, board.Bishop, board.Rook, board.Queen:
		us := pos.SideToMove()
		delta -= e.Value(pos.PieceAt(m.From()))
		delta += e.Value(board.NewPiece(promo, us))
	}

	return delta
}
