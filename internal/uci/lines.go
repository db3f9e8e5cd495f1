package uci

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/hailam/chessbot/internal/board"
	"github.com/hailam/chessbot/internal/engine"
)

// ServeLines runs the line protocol: every input line is a FEN and is
// answered with exactly one line holding the chosen move in UCI notation.
// "0000" answers positions without a legal move and positions that could
// not be searched. The loop ends at "quit" or end of input.
func ServeLines(ctx context.Context, eng *engine.Engine, in io.Reader, out io.Writer, logger zerolog.Logger) error {
	scanner := bufio.NewScanner(in)

	for scanner.Scan() {
		fen := strings.TrimSpace(scanner.Text())
		if fen == "quit" {
			return nil
		}
		if fen == "" {
			continue
		}

		move, err := eng.BestMoveUCI(ctx, fen)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Error().Err(err).Str("fen", fen).Msg("line-search-failed")
			move = board.NoMove.String()
		}

		if _, err := fmt.Fprintln(out, move); err != nil {
			return err
		}
	}

	return scanner.Err()
}
