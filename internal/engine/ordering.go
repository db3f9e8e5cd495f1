package engine

import (
	"github.com/hailam/chessbot/internal/board"
)

// MoveOrderer sorts moves so that alpha-beta sees strong captures first.
// It only affects how much is pruned, never the value found.
type MoveOrderer struct {
	table  [7][7]int
	scores [MaxDepth + 1][]int // scratch per ply depth, reused across nodes
}

// NewMoveOrderer creates a move orderer over an MVV-LVA table.
// Not safe for concurrent use: each worker owns one.
func NewMoveOrderer(table [7][7]int) *MoveOrderer {
	return &MoveOrderer{table: table}
}

// Score returns the ordering score of a move: MVV-LVA for captures,
// zero otherwise.
func (mo *MoveOrderer) Score(pos *board.Position, m board.Move) int {
	attacker := pos.PieceAt(m.From()).Type()
	victim, _ := pos.CapturedPiece(m)
	return mo.table[attacker][victim.Type()]
}

// Order sorts moves in place by descending score. The sort is stable, so
// equal scores (all quiet moves) keep their generation order.
func (mo *MoveOrderer) Order(pos *board.Position, moves []board.Move, depth int) {
	if depth < 0 || depth > MaxDepth {
		depth = 0
	}
	scores := mo.scores[depth][:0]
	for _, m := range moves {
		scores = append(scores, mo.Score(pos, m))
	}
	mo.scores[depth] = scores

	// Insertion sort: move lists are short and mostly zero-scored
	for i := 1; i < len(moves); i++ {
		m, s := moves[i], scores[i]
		j := i - 1
		for j >= 0 && scores[j] < s {
			moves[j+1], scores[j+1] = moves[j], scores[j]
			j--
		}
		moves[j+1], scores[j+1] = m, s
	}
}
