// Package match plays complete games between two players and reports them
// move by move.
package match

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/hailam/chessbot/internal/board"
	"github.com/hailam/chessbot/internal/engine"
	"github.com/hailam/chessbot/internal/storage"
)

// DefaultMaxPlies caps games that neither side can finish.
const DefaultMaxPlies = 600

// ErrNoMove is returned by a player asked to move in a finished position.
var ErrNoMove = errors.New("player has no move")

// Player chooses moves for one side.
type Player interface {
	Name() string
	// Move returns the move to play and the score it expects, White's
	// perspective. pos must not be modified.
	Move(ctx context.Context, pos *board.Position) (board.Move, int, error)
}

// EnginePlayer plays the engine's choice.
type EnginePlayer struct {
	Engine *engine.Engine
}

func (p EnginePlayer) Name() string { return "chessbot" }

func (p EnginePlayer) Move(ctx context.Context, pos *board.Position) (board.Move, int, error) {
	res, err := p.Engine.Search(ctx, pos)
	if err != nil {
		return board.NoMove, 0, err
	}
	if res.Move == board.NoMove {
		return board.NoMove, 0, ErrNoMove
	}
	return res.Move, res.Eval, nil
}

// FirstMovePlayer always plays the first legal move in generation order.
type FirstMovePlayer struct{}

func (FirstMovePlayer) Name() string { return "first-move" }

func (FirstMovePlayer) Move(_ context.Context, pos *board.Position) (board.Move, int, error) {
	moves := pos.LegalMoves()
	if len(moves) == 0 {
		return board.NoMove, 0, ErrNoMove
	}
	return moves[0], 0, nil
}

// Ply is one half-move of a game.
type Ply struct {
	Number   int // 1-based
	Color    board.Color
	Move     board.Move
	Expected int // Score the player expected when choosing the move
	Material int // Material balance after the move
	Next     board.Color
}

// Game is a played game.
type Game struct {
	StartFEN string
	FinalFEN string
	Plies    []Ply
	Status   board.Status
	Result   string // PGN result
	Duration time.Duration
}

// Record converts the game for the archive.
func (g *Game) Record(engineColor board.Color, cfg engine.Config) *storage.GameRecord {
	moves := make([]string, len(g.Plies))
	for i, p := range g.Plies {
		moves[i] = p.Move.String()
	}
	return &storage.GameRecord{
		StartFEN:    g.StartFEN,
		Moves:       moves,
		FinalFEN:    g.FinalFEN,
		Result:      g.Result,
		Reason:      g.Status.String(),
		EngineColor: engineColor.String(),
		Depth:       cfg.Depth,
		Threads:     cfg.Threads,
		Duration:    g.Duration,
	}
}

// Match plays games between a white and a black player.
type Match struct {
	White    Player
	Black    Player
	MaxPlies int // Zero selects DefaultMaxPlies
	Values   [6]int
	Logger   zerolog.Logger

	// OnPly is called after every move.
	OnPly func(Ply)
}

// Play plays one game from pos, which is left unchanged. A game that hits
// the ply cap ends with Status Ongoing and an unfinished result.
func (m *Match) Play(ctx context.Context, pos *board.Position) (*Game, error) {
	pos = pos.Clone()
	eval := engine.NewEvaluator(m.Values)
	maxPlies := m.MaxPlies
	if maxPlies <= 0 {
		maxPlies = DefaultMaxPlies
	}

	start := time.Now()
	game := &Game{StartFEN: pos.FEN()}

	m.Logger.Info().
		Str("white", m.White.Name()).
		Str("black", m.Black.Name()).
		Str("fen", game.StartFEN).
		Msg("game-started")

	for len(game.Plies) < maxPlies {
		if game.Status = pos.Status(nil); game.Status.IsOver() {
			break
		}

		us := pos.SideToMove()
		player := m.White
		if us == board.Black {
			player = m.Black
		}

		mv, expected, err := player.Move(ctx, pos)
		if err != nil {
			return game, fmt.Errorf("ply %d (%s): %w", len(game.Plies)+1, player.Name(), err)
		}
		pos.Make(mv)

		ply := Ply{
			Number:   len(game.Plies) + 1,
			Color:    us,
			Move:     mv,
			Expected: expected,
			Material: eval.Evaluate(pos),
			Next:     pos.SideToMove(),
		}
		game.Plies = append(game.Plies, ply)

		m.Logger.Debug().
			Int("ply", ply.Number).
			Str("player", player.Name()).
			Str("move", mv.String()).
			Int("material", ply.Material).
			Msg("move-played")
		if m.OnPly != nil {
			m.OnPly(ply)
		}
	}

	game.Status = pos.Status(nil)
	game.FinalFEN = pos.FEN()
	game.Duration = time.Since(start)
	game.Result = result(game.Status, pos.SideToMove())

	m.Logger.Info().
		Str("result", game.Result).
		Str("reason", game.Status.String()).
		Int("plies", len(game.Plies)).
		Dur("elapsed", game.Duration).
		Msg("game-over")

	return game, nil
}

// result maps a final status to PGN notation; toMove is the side to move
// in the final position.
func result(status board.Status, toMove board.Color) string {
	switch {
	case status.IsLoss() && toMove == board.White:
		return storage.ResultBlackWins
	case status.IsLoss():
		return storage.ResultWhiteWins
	case status.IsDraw():
		return storage.ResultDraw
	}
	return storage.ResultUnfinished
}

// Winner describes a PGN result in words.
func Winner(result string) string {
	switch result {
	case storage.ResultWhiteWins:
		return "White wins."
	case storage.ResultBlackWins:
		return "Black wins."
	case storage.ResultDraw:
		return "Draw."
	}
	return "Unfinished."
}
