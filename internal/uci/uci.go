// Package uci implements the text front ends of the engine: the Universal
// Chess Interface and a plain "one FEN in, one move out" line protocol.
package uci

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hailam/chessbot/internal/board"
	"github.com/hailam/chessbot/internal/engine"
)

// UCI implements the Universal Chess Interface protocol.
type UCI struct {
	engine   *engine.Engine
	position *board.Position
	log      zerolog.Logger

	outMu sync.Mutex
	out   io.Writer

	// Search state
	searching  bool
	cancel     context.CancelFunc
	searchDone chan struct{}

	// OnOption is called after an option changed the engine configuration.
	OnOption func(engine.Config)
}

// New creates a new UCI protocol handler writing replies to out.
func New(eng *engine.Engine, out io.Writer, logger zerolog.Logger) *UCI {
	return &UCI{
		engine:   eng,
		position: board.NewPosition(),
		log:      logger,
		out:      out,
	}
}

// println writes one protocol line.
func (u *UCI) println(format string, args ...any) {
	u.outMu.Lock()
	defer u.outMu.Unlock()
	fmt.Fprintf(u.out, format+"\n", args...)
}

// Run reads commands from in until "quit" or end of input. A search still
// running at end of input is allowed to finish; "quit" cancels it.
func (u *UCI) Run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		cmd := parts[0]
		args := parts[1:]

		switch cmd {
		case "uci":
			u.handleUCI()
		case "isready":
			u.println("readyok")
		case "ucinewgame":
			u.handleNewGame()
		case "position":
			u.handlePosition(args)
		case "go":
			u.handleGo(ctx, args)
		case "stop":
			u.handleStop()
		case "quit":
			u.handleStop()
			return nil
		case "setoption":
			u.handleSetOption(args)
		// Debug commands
		case "d":
			u.println("%s", u.position.String())
		case "perft":
			u.handlePerft(args)
		default:
			u.log.Warn().Str("command", cmd).Msg("unknown-command")
		}
	}

	u.wait()
	return scanner.Err()
}

// handleUCI responds to the "uci" command.
func (u *UCI) handleUCI() {
	cfg := u.engine.Config()
	u.println("id name chessbot")
	u.println("id author chessbot authors")
	u.println("")
	u.println("option name Threads type spin default %d min 1 max 512", cfg.Threads)
	u.println("option name Depth type spin default %d min 1 max %d", cfg.Depth, engine.MaxDepth)
	u.println("uciok")
}

// handleNewGame resets the position for a new game.
func (u *UCI) handleNewGame() {
	u.handleStop()
	u.position = board.NewPosition()
}

// handlePosition parses and sets up a position.
// Formats:
//   - position startpos
//   - position startpos moves e2e4 e7e5
//   - position fen <fen>
//   - position fen <fen> moves e2e4
func (u *UCI) handlePosition(args []string) {
	if len(args) == 0 {
		return
	}

	// Find "moves" keyword
	moveStart := len(args)
	for i, arg := range args {
		if arg == "moves" {
			moveStart = i
			break
		}
	}

	var pos *board.Position
	switch args[0] {
	case "startpos":
		pos = board.NewPosition()
	case "fen":
		var err error
		pos, err = board.ParseFEN(strings.Join(args[1:moveStart], " "))
		if err != nil {
			u.log.Error().Err(err).Msg("invalid-position")
			return
		}
	default:
		u.log.Warn().Str("keyword", args[0]).Msg("invalid-position")
		return
	}

	if moveStart < len(args) {
		for _, text := range args[moveStart+1:] {
			m, err := pos.ParseMove(text)
			if err != nil {
				u.log.Error().Err(err).Str("move", text).Msg("invalid-position-move")
				return
			}
			pos.Make(m)
		}
	}

	u.handleStop()
	u.position = pos
}

// GoOptions holds parsed "go" command options.
type GoOptions struct {
	Depth int
}

// parseGoOptions parses "go" command arguments. Clock options are
// accepted and ignored: searches always run to a fixed depth.
func parseGoOptions(args []string) GoOptions {
	opts := GoOptions{}

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "depth":
			if i+1 < len(args) {
				opts.Depth, _ = strconv.Atoi(args[i+1])
				i++
			}
		case "wtime", "btime", "winc", "binc", "movestogo", "movetime", "nodes":
			i++
		}
	}

	return opts
}

// handleGo starts a search of the current position in the background.
func (u *UCI) handleGo(ctx context.Context, args []string) {
	u.handleStop()

	opts := parseGoOptions(args)
	eng := u.engine
	if opts.Depth > 0 {
		var err error
		if eng, err = u.engine.WithDepth(opts.Depth); err != nil {
			u.log.Error().Err(err).Msg("invalid-go-depth")
			eng = u.engine
		}
	}

	searchCtx, cancel := context.WithCancel(ctx)
	u.searching = true
	u.cancel = cancel
	u.searchDone = make(chan struct{})

	pos := u.position.Clone()

	go func() {
		defer close(u.searchDone)
		defer cancel()

		res, err := eng.Search(searchCtx, pos)
		if err != nil {
			// Cancelled or failed: fall back to the first legal move so the
			// GUI always gets a reply
			u.log.Warn().Err(err).Msg("search-aborted")
			moves := pos.LegalMoves()
			if len(moves) == 0 {
				u.println("bestmove 0000")
				return
			}
			u.println("bestmove %s", moves[0])
			return
		}

		u.sendInfo(pos, res)
		u.println("bestmove %s", res.Move)
	}()
}

// sendInfo outputs the search summary in UCI format.
func (u *UCI) sendInfo(pos *board.Position, res engine.Result) {
	if res.Move == board.NoMove {
		return
	}

	parts := []string{fmt.Sprintf("depth %d", res.Depth)}

	// Score from the side to move's point of view
	score := res.Eval
	if pos.SideToMove() == board.Black {
		score = -score
	}
	if plies, ok := engine.MatePlies(score, res.Depth); ok {
		mateIn := (plies + 1) / 2
		if score < 0 {
			mateIn = -mateIn
		}
		parts = append(parts, fmt.Sprintf("score mate %d", mateIn))
	} else {
		parts = append(parts, fmt.Sprintf("score cp %d", score))
	}

	parts = append(parts, fmt.Sprintf("nodes %d", res.Nodes))
	parts = append(parts, fmt.Sprintf("time %d", res.Elapsed.Milliseconds()))

	// NPS
	if res.Elapsed > 0 {
		nps := uint64(float64(res.Nodes) / res.Elapsed.Seconds())
		parts = append(parts, fmt.Sprintf("nps %d", nps))
	}

	parts = append(parts, "pv "+res.Move.String())

	u.println("info %s", strings.Join(parts, " "))
}

// handleStop cancels the current search and waits for its bestmove.
func (u *UCI) handleStop() {
	if u.searching {
		u.cancel()
		u.wait()
	}
}

// wait blocks until the current search, if any, has replied.
func (u *UCI) wait() {
	if u.searching {
		<-u.searchDone
		u.searching = false
	}
}

// handleSetOption processes "setoption" commands.
func (u *UCI) handleSetOption(args []string) {
	// Format: setoption name <name> value <value>
	var name, value string
	readingName := false
	readingValue := false

	for _, arg := range args {
		switch arg {
		case "name":
			readingName = true
			readingValue = false
		case "value":
			readingName = false
			readingValue = true
		default:
			if readingName {
				if name != "" {
					name += " "
				}
				name += arg
			} else if readingValue {
				if value != "" {
					value += " "
				}
				value += arg
			}
		}
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		u.log.Error().Str("option", name).Str("value", value).Msg("invalid-option-value")
		return
	}

	switch strings.ToLower(name) {
	case "threads":
		err = u.engine.SetThreads(n)
	case "depth":
		err = u.engine.SetDepth(n)
	default:
		u.log.Warn().Str("option", name).Msg("unknown-option")
		return
	}
	if err != nil {
		u.log.Error().Err(err).Str("option", name).Msg("invalid-option-value")
		return
	}

	u.log.Info().Str("option", name).Int("value", n).Msg("option-set")
	if u.OnOption != nil {
		u.OnOption(u.engine.Config())
	}
}

// handlePerft runs a perft test.
func (u *UCI) handlePerft(args []string) {
	depth := 5
	if len(args) > 0 {
		depth, _ = strconv.Atoi(args[0])
	}

	start := time.Now()
	nodes := u.position.Perft(depth)
	elapsed := time.Since(start)

	u.println("Nodes: %d", nodes)
	u.println("Time: %v", elapsed)
	if elapsed > 0 {
		nps := float64(nodes) / elapsed.Seconds()
		u.println("NPS: %.0f", nps)
	}
}
