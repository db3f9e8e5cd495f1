package engine

import (
	"sync"

	"lukechampine.com/frand"

	"github.com/hailam/chessbot/internal/board"
)

// Rand is the source used to break ties between equally good moves.
// *frand.RNG and *math/rand.Rand both satisfy it.
type Rand interface {
	Intn(n int) int
}

// frandSource draws from frand's goroutine-safe global generator.
type frandSource struct{}

func (frandSource) Intn(n int) int { return frand.Intn(n) }

// SearchResult pairs a root move with the score its subtree searched to.
type SearchResult struct {
	Move board.Move
	Eval int
}

// Selector turns the scored root moves into one move. Among the moves
// tied for the best score it prefers captures, then picks at random, so
// repeated searches of one position may answer differently.
type Selector struct {
	mu  sync.Mutex
	rng Rand
}

// NewSelector creates a selector; a nil source selects frand.
func NewSelector(rng Rand) *Selector {
	if rng == nil {
		rng = frandSource{}
	}
	return &Selector{rng: rng}
}

// Candidates returns the moves the final pick is drawn from and the best
// score in White's perspective. Scores are compared from the point of view
// of the side to move in pos: the highest for White, the lowest for Black.
// Ties are exact. If any tied move lands on an enemy piece in pos, only
// those moves remain.
func (s *Selector) Candidates(pos *board.Position, results []SearchResult) ([]board.Move, int) {
	if len(results) == 0 {
		return nil, 0
	}

	us := pos.SideToMove()
	sign := 1
	if us == board.Black {
		sign = -1
	}

	best := -Infinity
	for _, r := range results {
		best = max(best, sign*r.Eval)
	}

	var bestMoves, aggressive []board.Move
	for _, r := range results {
		if sign*r.Eval != best {
			continue
		}
		bestMoves = append(bestMoves, r.Move)
		if victim := pos.PieceAt(r.Move.To()); victim != board.NoPiece && victim.Color() != us {
			aggressive = append(aggressive, r.Move)
		}
	}

	if len(aggressive) > 0 {
		return aggressive, sign * best
	}
	return bestMoves, sign * best
}

// Select picks one candidate uniformly at random. It returns NoMove when
// there are no results.
func (s *Selector) Select(pos *board.Position, results []SearchResult) SearchResult {
	candidates, best := s.Candidates(pos, results)
	if len(candidates) == 0 {
		return SearchResult{Move: board.NoMove}
	}
	return SearchResult{Move: s.pick(candidates), Eval: best}
}

func (s *Selector) pick(candidates []board.Move) board.Move {
	if len(candidates) == 1 {
		return candidates[0]
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return candidates[s.rng.Intn(len(candidates))]
}
