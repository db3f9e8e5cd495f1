package engine

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hailam/chessbot/internal/board"
)

// Result is the outcome of one search.
type Result struct {
	Move       board.Move     // Chosen move, board.NoMove if the root has none
	Eval       int            // Score of Move, White's perspective
	Moves      []SearchResult // Every root move with its score, in generation order
	Candidates []board.Move   // Moves the random pick was drawn from
	Nodes      uint64
	Depth      int
	Threads    int // Workers actually used
	Elapsed    time.Duration
}

// Engine is the chess AI engine. It is safe for concurrent use; each
// search works on its own copies of the position.
type Engine struct {
	mu        sync.RWMutex
	cfg       Config
	evaluator *Evaluator
	selector  *Selector
	log       zerolog.Logger
}

// New creates an engine from a validated configuration.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		cfg:       cfg,
		evaluator: NewEvaluator(cfg.PieceValues),
		selector:  NewSelector(cfg.Rand),
		log:       cfg.Logger,
	}, nil
}

// Config returns the current configuration.
func (e *Engine) Config() Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

// SetDepth changes the search depth used by later searches.
func (e *Engine) SetDepth(depth int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	cfg := e.cfg
	cfg.Depth = depth
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.cfg = cfg
	return nil
}

// SetThreads changes the worker limit used by later searches.
func (e *Engine) SetThreads(threads int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	cfg := e.cfg
	cfg.Threads = threads
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.cfg = cfg
	return nil
}

// snapshot returns an engine view with a frozen config for one search.
func (e *Engine) snapshot() *Engine {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return &Engine{
		cfg:       e.cfg,
		evaluator: e.evaluator,
		selector:  e.selector,
		log:       e.log,
	}
}

// WithDepth returns an engine that searches to depth plies and otherwise
// shares e's configuration and random source. e is unchanged.
func (e *Engine) WithDepth(depth int) (*Engine, error) {
	s := e.snapshot()
	s.cfg.Depth = depth
	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Evaluate returns the static evaluation of a position.
func (e *Engine) Evaluate(pos *board.Position) int {
	return e.evaluator.Evaluate(pos)
}

// FindBestMove parses a FEN and searches it.
func (e *Engine) FindBestMove(ctx context.Context, fen string) (Result, error) {
	pos, err := board.ParseFEN(fen)
	if err != nil {
		return Result{Move: board.NoMove}, err
	}
	return e.Search(ctx, pos)
}

// BestMoveUCI returns only the chosen move in UCI notation, "0000" when
// the position has no legal move.
func (e *Engine) BestMoveUCI(ctx context.Context, fen string) (string, error) {
	res, err := e.FindBestMove(ctx, fen)
	if err != nil {
		return "", err
	}
	return res.Move.String(), nil
}

// Search scores every root move to the configured depth and selects one.
// pos is only read; workers search private clones of it.
func (e *Engine) Search(ctx context.Context, pos *board.Position) (Result, error) {
	s := e.snapshot()
	start := time.Now()

	res := Result{Move: board.NoMove, Depth: s.cfg.Depth}

	moves := pos.LegalMoves()
	if len(moves) == 0 {
		s.log.Debug().Str("fen", pos.FEN()).Msg("no-legal-moves")
		return res, nil
	}

	rootEval := s.evaluator.Evaluate(pos)
	evals, nodes, threads, err := s.searchRoot(ctx, pos, moves, rootEval)
	if err != nil {
		return Result{Move: board.NoMove}, fmt.Errorf("search %s: %w", pos.FEN(), err)
	}

	res.Moves = make([]SearchResult, len(moves))
	for i, m := range moves {
		res.Moves[i] = SearchResult{Move: m, Eval: evals[i]}
	}

	candidates, best := s.selector.Candidates(pos, res.Moves)
	res.Candidates = candidates
	res.Move = s.selector.pick(candidates)
	res.Eval = best
	res.Nodes = nodes
	res.Threads = threads
	res.Elapsed = time.Since(start)

	s.log.Debug().
		Str("move", res.Move.String()).
		Int("eval", res.Eval).
		Int("candidates", len(candidates)).
		Uint64("nodes", res.Nodes).
		Dur("elapsed", res.Elapsed).
		Msg("search-done")

	return res, nil
}

// MatePlies returns the number of plies to the mate a score announces,
// counted from the root of a search of the given depth, and false when
// the score is not a mate score.
func MatePlies(score, depth int) (int, bool) {
	abs := score
	if abs < 0 {
		abs = -abs
	}
	if abs < MateScore {
		return 0, false
	}
	return depth - (abs - MateScore), true
}

// ScoreToString converts a score to a human-readable string.
func ScoreToString(score, depth int) string {
	if plies, ok := MatePlies(score, depth); ok {
		moves := (plies + 1) / 2
		if score > 0 {
			return "White mates in " + strconv.Itoa(moves)
		}
		return "Black mates in " + strconv.Itoa(moves)
	}

	// Convert centipawns to pawns
	sign := ""
	if score < 0 {
		sign = "-"
		score = -score
	}
	return fmt.Sprintf("%s%d.%02d", sign, score/100, score%100)
}
