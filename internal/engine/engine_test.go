package engine

import (
	"context"
	"errors"
	"math/rand"
	"slices"
	"testing"

	"github.com/rs/zerolog"

	"github.com/hailam/chessbot/internal/board"
)

const (
	kiwipeteFEN   = "r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1"
	position3FEN  = "8/2p5/3p4/KP5r/1R3p1k/8/4P1P1/8 w - - 0 1"
	promotionFEN  = "n1n4k/1P6/8/8/8/8/8/K7 w - - 0 1"
	blackPromoFEN = "k7/8/8/8/8/8/6p1/K4N1N b - - 0 1"
	enPassantFEN  = "rnbqkbnr/ppp1p1pp/8/3pPp2/8/8/PPPP1PPP/RNBQKBNR w KQkq f6 0 3"
	mateInOneFEN  = "k7/8/1K6/8/8/8/8/7R w - - 0 1"
	checkmateFEN  = "R6k/6pp/8/8/8/8/8/K7 b - - 0 1"
	stalemateFEN  = "k7/8/1Q6/8/8/8/8/K7 b - - 0 1"
	captureFEN    = "4k3/8/8/3p4/4P3/8/8/4K3 w - - 0 1"
)

var evalFENs = []string{
	board.StartFEN,
	kiwipeteFEN,
	position3FEN,
	promotionFEN,
	blackPromoFEN,
	enPassantFEN,
	"rnbqkbnr/pppp1ppp/8/8/3Pp3/8/PPP1PPPP/RNBQKBNR b KQkq d3 0 3",
}

func newTestEngine(t *testing.T, depth, threads int, seed int64) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Depth = depth
	cfg.Threads = threads
	cfg.Rand = rand.New(rand.NewSource(seed))
	cfg.Logger = zerolog.Nop()
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func mustParse(t *testing.T, fen string) *board.Position {
	t.Helper()
	pos, err := board.ParseFEN(fen)
	if err != nil {
		t.Fatalf("ParseFEN(%q): %v", fen, err)
	}
	return pos
}

func TestEvaluateStartPosition(t *testing.T) {
	ev := NewEvaluator(DefaultPieceValues)
	if got := ev.Evaluate(board.NewPosition()); got != 0 {
		t.Errorf("start position evaluates to %d, want 0", got)
	}

	pos := mustParse(t, "4k3/8/8/8/8/8/8/QR2K3 w - - 0 1")
	if got := ev.Evaluate(pos); got != 1400 {
		t.Errorf("queen and rook evaluate to %d, want 1400", got)
	}
}

func TestDeltaMatchesFullEvaluation(t *testing.T) {
	ev := NewEvaluator(DefaultPieceValues)
	kinds := make(map[board.MoveKind]int)

	for _, fen := range evalFENs {
		pos := mustParse(t, fen)
		before := ev.Evaluate(pos)

		for _, m := range pos.LegalMoves() {
			kinds[pos.Kind(m)]++
			delta := ev.Delta(pos, m)
			undo := pos.Make(m)
			after := ev.Evaluate(pos)
			undo.Restore()

			if after != before+delta {
				t.Errorf("%s %s: full eval %d, incremental %d+%d=%d",
					fen, m, after, before, delta, before+delta)
			}
		}
	}

	for _, k := range []board.MoveKind{board.Quiet, board.Capture, board.EnPassant,
		board.Promotion, board.CapturePromotion, board.Castle} {
		if kinds[k] == 0 {
			t.Errorf("no %s move exercised", k)
		}
	}
	t.Logf("move kinds covered: %v", kinds)
}

func TestDeltaTwoPlyWalk(t *testing.T) {
	ev := NewEvaluator(DefaultPieceValues)

	for _, fen := range evalFENs {
		pos := mustParse(t, fen)
		root := ev.Evaluate(pos)

		for _, m1 := range pos.LegalMoves() {
			e1 := root + ev.Delta(pos, m1)
			undo1 := pos.Make(m1)
			for _, m2 := range pos.LegalMoves() {
				e2 := e1 + ev.Delta(pos, m2)
				undo2 := pos.Make(m2)
				if full := ev.Evaluate(pos); full != e2 {
					t.Errorf("%s %s %s: full eval %d, incremental %d", fen, m1, m2, full, e2)
				}
				undo2.Restore()
			}
			undo1.Restore()
		}
	}
}

func TestOrderCapturesFirst(t *testing.T) {
	pos := mustParse(t, kiwipeteFEN)
	mo := NewMoveOrderer(DefaultMVVLVA)

	moves := pos.LegalMoves()
	quiet := slices.DeleteFunc(slices.Clone(moves), pos.IsCapture)
	mo.Order(pos, moves, 1)

	prev := Infinity
	for _, m := range moves {
		s := mo.Score(pos, m)
		if s > prev {
			t.Fatalf("move %s scored %d after a move scored %d", m, s, prev)
		}
		prev = s
	}

	// Quiet moves keep generation order at the tail
	tail := moves[len(moves)-len(quiet):]
	if !slices.Equal(tail, quiet) {
		t.Errorf("quiet moves reordered: got %v, want %v", tail, quiet)
	}

	// Pawn takes queen beats queen takes pawn
	if DefaultMVVLVA[board.Pawn][board.Queen] <= DefaultMVVLVA[board.Queen][board.Pawn] {
		t.Error("MVV-LVA table does not prefer the most valuable victim")
	}
}

func TestOrderEnPassantVictim(t *testing.T) {
	pos := mustParse(t, enPassantFEN)
	mo := NewMoveOrderer(DefaultMVVLVA)

	m, err := pos.ParseMove("e5f6")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := mo.Score(pos, m), DefaultMVVLVA[board.Pawn][board.Pawn]; got != want {
		t.Errorf("en passant scored %d, want %d", got, want)
	}
}

// minimax is an unpruned reference search with the same terminal rules.
func minimax(pos *board.Position, ev *Evaluator, depth int, maximizing bool, eval int) int {
	moves := pos.LegalMoves()
	if status := pos.Status(moves); status.IsOver() {
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

	best := Infinity
	if maximizing {
		best = -Infinity
	}
	for _, m := range moves {
		child := eval + ev.Delta(pos, m)
		undo := pos.Make(m)
		v := minimax(pos, ev, depth-1, !maximizing, child)
		undo.Restore()
		if maximizing {
			best = max(best, v)
		} else {
			best = min(best, v)
		}
	}
	return best
}

func TestAlphaBetaMatchesMinimax(t *testing.T) {
	ev := NewEvaluator(DefaultPieceValues)
	fens := append(slices.Clone(evalFENs), mateInOneFEN, checkmateFEN, stalemateFEN, captureFEN)

	for _, fen := range fens {
		for depth := 1; depth <= 3; depth++ {
			if fen == kiwipeteFEN && depth == 3 {
				continue
			}
			pos := mustParse(t, fen)
			maximizing := pos.SideToMove() == board.White
			eval := ev.Evaluate(pos)

			want := minimax(pos.Clone(), ev, depth, maximizing, eval)
			s := NewSearcher(context.Background(), pos, ev, NewMoveOrderer(DefaultMVVLVA))
			got := s.Search(depth, -Infinity, Infinity, maximizing, eval)

			if got != want {
				t.Errorf("%s depth %d: alpha-beta %d, minimax %d", fen, depth, got, want)
			}
		}
	}
}

func TestTerminalScores(t *testing.T) {
	ev := NewEvaluator(DefaultPieceValues)
	tests := []struct {
		name  string
		fen   string
		depth int
		want  int
	}{
		{"stalemate", stalemateFEN, 3, 0},
		{"bare kings", "8/8/4k3/8/8/3K4/8/8 w - - 0 1", 2, 0},
		{"king and knight", "8/8/4k3/8/8/3KN3/8/8 w - - 0 1", 2, 0},
		{"checkmated black", checkmateFEN, 4, MateScore + 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos := mustParse(t, tt.fen)
			maximizing := pos.SideToMove() == board.White
			s := NewSearcher(context.Background(), pos, ev, NewMoveOrderer(DefaultMVVLVA))
			if got := s.Search(tt.depth, -Infinity, Infinity, maximizing, ev.Evaluate(pos)); got != tt.want {
				t.Errorf("Search = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMateInOne(t *testing.T) {
	for depth := 1; depth <= 3; depth++ {
		e := newTestEngine(t, depth, 4, 1)
		res, err := e.FindBestMove(context.Background(), mateInOneFEN)
		if err != nil {
			t.Fatal(err)
		}
		if res.Move.String() != "h1h8" {
			t.Errorf("depth %d: got %s, want h1h8", depth, res.Move)
		}
		if res.Eval < MateScore {
			t.Errorf("depth %d: eval %d below MateScore", depth, res.Eval)
		}
		if plies, ok := MatePlies(res.Eval, depth); !ok || plies != 1 {
			t.Errorf("depth %d: MatePlies = %d, %v; want 1, true", depth, plies, ok)
		}
		t.Logf("depth %d: %s %s (%d nodes)", depth, res.Move, ScoreToString(res.Eval, depth), res.Nodes)
	}
}

func TestNoLegalMoves(t *testing.T) {
	e := newTestEngine(t, 3, 4, 1)

	for _, fen := range []string{checkmateFEN, stalemateFEN} {
		res, err := e.FindBestMove(context.Background(), fen)
		if err != nil {
			t.Fatalf("%s: %v", fen, err)
		}
		if res.Move != board.NoMove {
			t.Errorf("%s: got %s, want no move", fen, res.Move)
		}

		uci, err := e.BestMoveUCI(context.Background(), fen)
		if err != nil {
			t.Fatal(err)
		}
		if uci != "0000" {
			t.Errorf("%s: BestMoveUCI = %q, want 0000", fen, uci)
		}
	}
}

func TestInsufficientMaterialSearchesToZero(t *testing.T) {
	e := newTestEngine(t, 3, 2, 1)
	res, err := e.FindBestMove(context.Background(), "8/8/4k3/8/8/3KN3/8/8 w - - 0 1")
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range res.Moves {
		if r.Eval != 0 {
			t.Errorf("%s scored %d, want 0", r.Move, r.Eval)
		}
	}
}

func TestCandidatesIndependentOfThreads(t *testing.T) {
	tests := []struct {
		fen   string
		depth int
	}{
		{board.StartFEN, 3},
		{kiwipeteFEN, 2},
		{position3FEN, 4},
		{blackPromoFEN, 3},
	}

	for _, tt := range tests {
		var base Result
		for i, threads := range []int{1, 2, 3, 5, 32} {
			e := newTestEngine(t, tt.depth, threads, 7)
			res, err := e.FindBestMove(context.Background(), tt.fen)
			if err != nil {
				t.Fatal(err)
			}
			if i == 0 {
				base = res
				continue
			}
			if !slices.Equal(res.Moves, base.Moves) {
				t.Errorf("%s threads %d: root scores differ from single-threaded search", tt.fen, threads)
			}
			if !slices.Equal(res.Candidates, base.Candidates) {
				t.Errorf("%s threads %d: candidates %v, want %v", tt.fen, threads, res.Candidates, base.Candidates)
			}
			if res.Eval != base.Eval {
				t.Errorf("%s threads %d: eval %d, want %d", tt.fen, threads, res.Eval, base.Eval)
			}
			if want := min(threads, len(res.Moves)); res.Threads != want {
				t.Errorf("%s: used %d workers, want %d", tt.fen, res.Threads, want)
			}
		}
	}
}

func TestSearchRestoresPosition(t *testing.T) {
	e := newTestEngine(t, 3, 3, 1)
	for _, fen := range evalFENs {
		pos := mustParse(t, fen)
		before := pos.Clone()
		if _, err := e.Search(context.Background(), pos); err != nil {
			t.Fatal(err)
		}
		if !pos.Equal(before) {
			t.Errorf("%s: position changed by search", fen)
		}
	}
}

func TestSearchCancelled(t *testing.T) {
	e := newTestEngine(t, 6, 4, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := e.FindBestMove(ctx, kiwipeteFEN)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if res.Move != board.NoMove {
		t.Errorf("cancelled search returned %s", res.Move)
	}
}

func TestWorkerPanicFailsSearch(t *testing.T) {
	e := newTestEngine(t, 2, 2, 1)
	e.evaluator = nil // Delta on a capture dereferences it

	pos := mustParse(t, captureFEN)
	_, _, _, err := e.searchRoot(context.Background(), pos, pos.LegalMoves(), 0)
	if !errors.Is(err, ErrWorkerFailed) {
		t.Fatalf("err = %v, want ErrWorkerFailed", err)
	}
}

func TestInvalidFEN(t *testing.T) {
	e := newTestEngine(t, 2, 1, 1)
	for _, fen := range []string{
		"",
		"not a fen",
		"8/8/8/8/8/8/8/8 w - - 0 1",
		"4k3/8/8/8/8/8/8/4K3 w KQkq - 0 1",
		"4k3/8/8/4P3/8/8/8/4K3 w - d6 0 1",
	} {
		if _, err := e.FindBestMove(context.Background(), fen); !errors.Is(err, board.ErrInvalidFEN) {
			t.Errorf("FindBestMove(%q) err = %v, want ErrInvalidFEN", fen, err)
		}
	}
}

func TestSelectorPrefersCaptures(t *testing.T) {
	pos := mustParse(t, captureFEN)
	capture, _ := pos.ParseMove("e4d5")
	push, _ := pos.ParseMove("e4e5")
	kingMove, _ := pos.ParseMove("e1d2")

	results := []SearchResult{
		{Move: push, Eval: 0},
		{Move: kingMove, Eval: -50},
		{Move: capture, Eval: 0},
	}

	sel := NewSelector(rand.New(rand.NewSource(42)))
	for i := 0; i < 200; i++ {
		if got := sel.Select(pos, results); got.Move != capture || got.Eval != 0 {
			t.Fatalf("draw %d: got %s (%d), want e4d5 (0)", i, got.Move, got.Eval)
		}
	}
}

func TestSelectorBlackPerspective(t *testing.T) {
	pos := mustParse(t, "4k3/8/8/3p4/4P3/8/8/4K3 b - - 0 1")
	capture, _ := pos.ParseMove("d5e4")
	push, _ := pos.ParseMove("d5d4")
	kingMove, _ := pos.ParseMove("e8d7")

	results := []SearchResult{
		{Move: push, Eval: -20},
		{Move: capture, Eval: 10},
		{Move: kingMove, Eval: -20},
	}

	candidates, best := NewSelector(nil).Candidates(pos, results)
	if best != -20 {
		t.Errorf("best = %d, want -20", best)
	}
	if !slices.Equal(candidates, []board.Move{push, kingMove}) {
		t.Errorf("candidates = %v, want [d5d4 e8d7]", candidates)
	}
}

func TestSelectorTieBreakIsUniform(t *testing.T) {
	pos := board.NewPosition()
	moves := pos.LegalMoves()
	results := make([]SearchResult, len(moves))
	for i, m := range moves {
		results[i] = SearchResult{Move: m}
	}

	sel := NewSelector(rand.New(rand.NewSource(3)))
	seen := make(map[board.Move]int)
	for i := 0; i < 2000; i++ {
		seen[sel.Select(pos, results).Move]++
	}
	if len(seen) != len(moves) {
		t.Errorf("picked %d distinct moves out of %d tied", len(seen), len(moves))
	}
}

func TestSelectorEmpty(t *testing.T) {
	if got := NewSelector(nil).Select(board.NewPosition(), nil); got.Move != board.NoMove {
		t.Errorf("got %s, want no move", got.Move)
	}
}

func TestPartition(t *testing.T) {
	tests := []struct {
		n, k int
		want []span
	}{
		{10, 3, []span{{0, 4}, {4, 7}, {7, 10}}},
		{20, 32, nil}, // checked by length below
		{6, 2, []span{{0, 3}, {3, 6}}},
		{5, 1, []span{{0, 5}}},
		{0, 4, nil},
		{4, 0, nil},
	}

	for _, tt := range tests {
		got := partition(tt.n, tt.k)
		if tt.want != nil && !slices.Equal(got, tt.want) {
			t.Errorf("partition(%d, %d) = %v, want %v", tt.n, tt.k, got, tt.want)
		}

		// Every index covered once, lengths within one of each other
		next, shortest, longest := 0, tt.n, 0
		for _, sp := range got {
			if sp.start != next || sp.end <= sp.start {
				t.Fatalf("partition(%d, %d) = %v: bad span %v", tt.n, tt.k, got, sp)
			}
			next = sp.end
			shortest = min(shortest, sp.end-sp.start)
			longest = max(longest, sp.end-sp.start)
		}
		if len(got) > 0 && (next != tt.n || longest-shortest > 1) {
			t.Errorf("partition(%d, %d) = %v unbalanced or incomplete", tt.n, tt.k, got)
		}
		if tt.k > 0 && tt.n > 0 && len(got) != min(tt.n, tt.k) {
			t.Errorf("partition(%d, %d) made %d spans", tt.n, tt.k, len(got))
		}
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		ok     bool
	}{
		{"default", func(*Config) {}, true},
		{"depth one", func(c *Config) { c.Depth = 1 }, true},
		{"max depth", func(c *Config) { c.Depth = MaxDepth }, true},
		{"zero depth", func(c *Config) { c.Depth = 0 }, false},
		{"too deep", func(c *Config) { c.Depth = MaxDepth + 1 }, false},
		{"zero threads", func(c *Config) { c.Threads = 0 }, false},
		{"negative value", func(c *Config) { c.PieceValues[board.Pawn] = -1 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			_, err := New(cfg)
			if tt.ok && err != nil {
				t.Errorf("New: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("New err = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestSetDepthAndThreads(t *testing.T) {
	e := newTestEngine(t, 2, 2, 1)
	if err := e.SetDepth(5); err != nil {
		t.Fatal(err)
	}
	if err := e.SetThreads(8); err != nil {
		t.Fatal(err)
	}
	if err := e.SetDepth(0); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("SetDepth(0) err = %v", err)
	}
	cfg := e.Config()
	if cfg.Depth != 5 || cfg.Threads != 8 {
		t.Errorf("config depth %d threads %d, want 5 and 8", cfg.Depth, cfg.Threads)
	}
}

func TestScoreToString(t *testing.T) {
	tests := []struct {
		score, depth int
		want         string
	}{
		{0, 4, "0.00"},
		{150, 4, "1.50"},
		{-205, 4, "-2.05"},
		{MateScore + 3, 4, "White mates in 1"},
		{-(MateScore + 1), 4, "Black mates in 2"},
	}
	for _, tt := range tests {
		if got := ScoreToString(tt.score, tt.depth); got != tt.want {
			t.Errorf("ScoreToString(%d, %d) = %q, want %q", tt.score, tt.depth, got, tt.want)
		}
	}
}
