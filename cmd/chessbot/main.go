// Command chessbot answers chess positions with a move. It speaks a plain
// "FEN per line" protocol or UCI, and can play self-play games against a
// first-legal-move opponent.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/pprof"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hailam/chessbot/internal/board"
	"github.com/hailam/chessbot/internal/engine"
	"github.com/hailam/chessbot/internal/match"
	"github.com/hailam/chessbot/internal/storage"
	"github.com/hailam/chessbot/internal/uci"
)

var (
	mode        = flag.String("mode", "fen", "protocol: fen (one FEN per line), uci, selfplay or stats")
	depth       = flag.Int("depth", engine.DefaultDepth, "search depth in plies")
	threads     = flag.Int("threads", engine.DefaultThreads, "maximum search goroutines")
	logLevel    = flag.String("log-level", "info", "log level: trace, debug, info, warn, error")
	cpuprofile  = flag.String("cpuprofile", "", "write cpu profile to file")
	noStore     = flag.Bool("no-store", false, "do not open the settings and game database")
	games       = flag.Int("games", 1, "self-play: number of games")
	engineColor = flag.String("engine-color", "white", "self-play: side the engine plays")
	maxPlies    = flag.Int("max-plies", match.DefaultMaxPlies, "self-play: ply cap per game")
	startFEN    = flag.String("fen", board.StartFEN, "self-play: starting position")
)

func main() {
	flag.Parse()

	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		With().Timestamp().Logger()
	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid-log-level")
	}
	zerolog.SetGlobalLevel(level)

	// Start CPU profiling if requested (via flag or environment variable)
	profilePath := *cpuprofile
	if profilePath == "" {
		profilePath = os.Getenv("CPUPROFILE")
	}
	if profilePath != "" {
		f, err := os.Create(profilePath)
		if err != nil {
			log.Fatal().Err(err).Msg("could-not-create-cpu-profile")
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal().Err(err).Msg("could-not-start-cpu-profile")
		}
		defer pprof.StopCPUProfile()
		log.Info().Str("path", profilePath).Msg("cpu-profiling")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("exiting")
		pprof.StopCPUProfile()
		os.Exit(1)
	}
}

func run(ctx context.Context, in io.Reader, out io.Writer) error {
	var store *storage.Storage
	if !*noStore {
		var err error
		if store, err = storage.NewStorage(log.Logger); err != nil {
			log.Warn().Err(err).Msg("storage-unavailable")
			store = nil
		} else {
			defer store.Close()
		}
	}

	cfg, err := loadConfig(store)
	if err != nil {
		return err
	}
	eng, err := engine.New(cfg)
	if err != nil {
		return err
	}
	log.Debug().Int("depth", cfg.Depth).Int("threads", cfg.Threads).Str("mode", *mode).Msg("engine-ready")

	switch *mode {
	case "fen":
		return uci.ServeLines(ctx, eng, in, out, log.Logger)
	case "uci":
		protocol := uci.New(eng, out, log.Logger)
		if store != nil {
			protocol.OnOption = func(c engine.Config) {
				if err := store.SaveSettings(&storage.Settings{Depth: c.Depth, Threads: c.Threads}); err != nil {
					log.Warn().Err(err).Msg("settings-not-saved")
				}
			}
		}
		return protocol.Run(ctx, in)
	case "selfplay":
		return selfPlay(ctx, eng, store, out)
	case "stats":
		if store == nil {
			return errors.New("stats need the game database")
		}
		return printStats(store, out)
	}
	return fmt.Errorf("unknown mode %q", *mode)
}

// loadConfig layers the engine configuration: defaults, then saved
// settings, then environment, then flags given on the command line.
func loadConfig(store *storage.Storage) (engine.Config, error) {
	cfg := engine.DefaultConfig()
	cfg.Logger = log.Logger

	if store != nil {
		settings, err := store.LoadSettings()
		switch {
		case err == nil:
			cfg.Depth, cfg.Threads = settings.Depth, settings.Threads
		case !errors.Is(err, storage.ErrNotFound):
			log.Warn().Err(err).Msg("settings-not-loaded")
		}
	}

	for name, dst := range map[string]*int{"CHESSBOT_DEPTH": &cfg.Depth, "CHESSBOT_THREADS": &cfg.Threads} {
		if v := os.Getenv(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return cfg, fmt.Errorf("%s: %w", name, err)
			}
			*dst = n
		}
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "depth":
			cfg.Depth = *depth
		case "threads":
			cfg.Threads = *threads
		}
	})

	return cfg, cfg.Validate()
}

// selfPlay plays the engine against the first-legal-move player and
// prints every move as it is played.
func selfPlay(ctx context.Context, eng *engine.Engine, store *storage.Storage, out io.Writer) error {
	pos, err := board.ParseFEN(*startFEN)
	if err != nil {
		return err
	}

	var color board.Color
	switch strings.ToLower(*engineColor) {
	case "white", "w":
		color = board.White
	case "black", "b":
		color = board.Black
	default:
		return fmt.Errorf("unknown engine color %q", *engineColor)
	}

	m := &match.Match{
		White:    match.EnginePlayer{Engine: eng},
		Black:    match.FirstMovePlayer{},
		MaxPlies: *maxPlies,
		Values:   eng.Config().PieceValues,
		Logger:   log.Logger,
		OnPly: func(p match.Ply) {
			line := fmt.Sprintf("%s plays: %s    evaluation: %d    side to move: %s",
				p.Color, p.Move, p.Material, p.Next)
			if p.Color == color {
				line += fmt.Sprintf(" best_eval: %d", p.Expected)
			}
			fmt.Fprintln(out, line)
		},
	}
	if color == board.Black {
		m.White, m.Black = m.Black, m.White
	}

	for i := 0; i < *games; i++ {
		game, err := m.Play(ctx, pos)
		if err != nil {
			return err
		}

		turns := (len(game.Plies) + 1) / 2
		fmt.Fprintf(out, "Game over in %d. Took %d seconds. Result: %s\n",
			turns, int(game.Duration.Seconds()), match.Winner(game.Result))

		if store != nil {
			if err := store.RecordGame(game.Record(color, eng.Config())); err != nil {
				log.Warn().Err(err).Msg("game-not-archived")
			}
		}
	}
	return nil
}

func printStats(store *storage.Storage, out io.Writer) error {
	stats, err := store.LoadStats()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Games: %d  White wins: %d  Black wins: %d  Draws: %d  Unfinished: %d\n",
		stats.GamesPlayed, stats.WhiteWins, stats.BlackWins, stats.Draws, stats.Unfinished)
	fmt.Fprintf(out, "Engine score: %.1f%%  Plies: %d  Time: %v\n",
		stats.EngineScore(), stats.TotalPlies, stats.TotalTime)
	for rule, n := range stats.DrawsByRule {
		fmt.Fprintf(out, "  %s: %d\n", rule, n)
	}

	recent, err := store.ListGames(5)
	if err != nil {
		return err
	}
	for _, g := range recent {
		fmt.Fprintf(out, "%s  %-7s  %3d plies  %s\n",
			g.PlayedAt.Format(time.DateTime), g.Result, len(g.Moves), g.Reason)
	}
	return nil
}
