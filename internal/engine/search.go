package engine

import (
	"context"

	"github.com/hailam/chessbot/internal/board"
)

// stopCheckInterval is how many nodes pass between context polls.
const stopCheckInterval = 1024

// Searcher performs the fixed-depth alpha-beta search for one worker.
// It owns its position copy and move orderer; nothing in it is shared.
type Searcher struct {
	ctx     context.Context
	pos     *board.Position
	eval    *Evaluator
	orderer *MoveOrderer

	nodes uint64
	err   error
}

// NewSearcher creates a searcher over a private position.
func NewSearcher(ctx context.Context, pos *board.Position, eval *Evaluator, orderer *MoveOrderer) *Searcher {
	return &Searcher{
		ctx:     ctx,
		pos:     pos,
		eval:    eval,
		orderer: orderer,
	}
}

// Nodes returns the number of nodes searched.
func (s *Searcher) Nodes() uint64 {
	return s.nodes
}

// Err returns the context error that stopped the search, if any.
// Scores returned after a stop are meaningless.
func (s *Searcher) Err() error {
	return s.err
}

// Search returns the minimax value of the searcher's position to depth
// plies within the (alpha, beta) window. eval must be the material score
// of the position; it is carried down incrementally instead of rescanning
// the board at every leaf.
func (s *Searcher) Search(depth, alpha, beta int, maximizing bool, eval int) int {
	return s.search(depth, alpha, beta, maximizing, eval)
}

// SearchMove plays m, searches the reply to depth plies with a full
// window and takes m back. rootEval is the score before m.
func (s *Searcher) SearchMove(m board.Move, depth int, maximizing bool, rootEval int) int {
	return s.child(m, depth, -Infinity, Infinity, maximizing, rootEval+s.eval.Delta(s.pos, m))
}

func (s *Searcher) search(depth, alpha, beta int, maximizing bool, eval int) int {
	if s.stopped() {
		return 0
	}
	s.nodes++

	moves := s.pos.LegalMoves()

	// Terminal positions are scored by outcome alone. Mates found with
	// more depth left are closer to the root and score more extremely.
	if status := s.pos.Status(moves); status.IsOver() {
		if status.IsLoss() {
			if maximizing {
				return -(MateScore + depth)
			}
			return MateScore + depth
		}
		return 0
	}

	if depth == 0 {
		return eval
	}

	s.orderer.Order(s.pos, moves, depth)

	if maximizing {
		best := -Infinity
		for _, m := range moves {
			score := s.child(m, depth-1, alpha, beta, false, eval+s.eval.Delta(s.pos, m))
			best = max(best, score)
			alpha = max(alpha, score)
			if beta <= alpha {
				break // Beta cut-off
			}
		}
		return best
	}

	best := Infinity
	for _, m := range moves {
		score := s.child(m, depth-1, alpha, beta, true, eval+s.eval.Delta(s.pos, m))
		best = min(best, score)
		beta = min(beta, score)
		if beta <= alpha {
			break // Alpha cut-off
		}
	}
	return best
}

// child searches the position after m. The move is taken back on every
// return path.
func (s *Searcher) child(m board.Move, depth, alpha, beta int, maximizing bool, eval int) int {
	undo := s.pos.Make(m)
	defer undo.Restore()
	return s.search(depth, alpha, beta, maximizing, eval)
}

// stopped polls the context every stopCheckInterval nodes and latches.
func (s *Searcher) stopped() bool {
	if s.err != nil {
		return true
	}
	if s.nodes%stopCheckInterval == 0 {
		s.err = s.ctx.Err()
	}
	return s.err != nil
}
