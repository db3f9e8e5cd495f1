package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hailam/chessbot/internal/board"
)

// ErrWorkerFailed wraps a panic raised inside a search worker.
var ErrWorkerFailed = errors.New("search worker failed")

// span is a half-open range [start, end) of root move indices.
type span struct {
	start, end int
}

// partition splits n root moves into k contiguous spans whose lengths
// differ by at most one. Every index belongs to exactly one span.
func partition(n, k int) []span {
	if k <= 0 || n <= 0 {
		return nil
	}
	k = min(k, n)
	spans := make([]span, k)
	size, extra := n/k, n%k
	start := 0
	for i := range spans {
		end := start + size
		if i < extra {
			end++
		}
		spans[i] = span{start, end}
		start = end
	}
	return spans
}

// rootWorker searches one span of root moves on its own copy of the root.
// It writes only evals[start:end] and nodes[id].
type rootWorker struct {
	id       int
	span     span
	searcher *Searcher
}

func (w *rootWorker) run(moves []board.Move, evals []int, depth int, maximizing bool, rootEval int) error {
	for i := w.span.start; i < w.span.end; i++ {
		evals[i] = w.searcher.SearchMove(moves[i], depth, maximizing, rootEval)
		if err := w.searcher.Err(); err != nil {
			return err
		}
	}
	return nil
}

// searchRoot scores every root move in parallel. The returned slice is
// indexed like moves and holds White-perspective scores.
func (e *Engine) searchRoot(ctx context.Context, pos *board.Position, moves []board.Move, rootEval int) ([]int, uint64, int, error) {
	evals := make([]int, len(moves))
	spans := partition(len(moves), e.cfg.Threads)
	nodes := make([]uint64, len(spans))

	// Replies are searched for the opponent: White's replies maximize
	maximizing := pos.SideToMove() == board.Black

	e.log.Debug().
		Int("threads", len(spans)).
		Int("moves", len(moves)).
		Int("depth", e.cfg.Depth).
		Int("root-eval", rootEval).
		Msg("dispatching-root-moves")

	g, gctx := errgroup.WithContext(ctx)
	for id, sp := range spans {
		id, sp := id, sp
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%w: worker %d: %v", ErrWorkerFailed, id, r)
				}
			}()

			w := &rootWorker{
				id:       id,
				span:     sp,
				searcher: NewSearcher(gctx, pos.Clone(), e.evaluator, NewMoveOrderer(e.cfg.MVVLVA)),
			}
			start := time.Now()
			err = w.run(moves, evals, e.cfg.Depth-1, maximizing, rootEval)
			nodes[id] = w.searcher.Nodes()

			e.log.Debug().
				Int("worker", id).
				Int("first", sp.start).
				Int("last", sp.end-1).
				Uint64("nodes", nodes[id]).
				Dur("elapsed", time.Since(start)).
				Msg("worker-done")
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return nil, 0, len(spans), err
	}

	var total uint64
	for _, n := range nodes {
		total += n
	}
	return evals, total, len(spans), nil
}
