// Package storage archives self-play games, their aggregate statistics and
// the engine settings in a BadgerDB database.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
)

// Storage keys
const (
	keySettings   = "settings"
	keyStats      = "stats"
	keyGamePrefix = "game/"
)

// Game results in PGN notation.
const (
	ResultWhiteWins  = "1-0"
	ResultBlackWins  = "0-1"
	ResultDraw       = "1/2-1/2"
	ResultUnfinished = "*"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Settings stores the engine settings last chosen by the user.
type Settings struct {
	Depth   int       `json:"depth"`
	Threads int       `json:"threads"`
	SavedAt time.Time `json:"saved_at"`
}

// GameRecord is one archived self-play game.
type GameRecord struct {
	ID          string        `json:"id"`
	StartFEN    string        `json:"start_fen"`
	Moves       []string      `json:"moves"` // UCI notation
	FinalFEN    string        `json:"final_fen"`
	Result      string        `json:"result"`
	Reason      string        `json:"reason"`
	EngineColor string        `json:"engine_color"`
	Depth       int           `json:"depth"`
	Threads     int           `json:"threads"`
	Duration    time.Duration `json:"duration"`
	PlayedAt    time.Time     `json:"played_at"`
}

// GameStats aggregates every recorded game.
type GameStats struct {
	GamesPlayed  int            `json:"games_played"`
	WhiteWins    int            `json:"white_wins"`
	BlackWins    int            `json:"black_wins"`
	Draws        int            `json:"draws"`
	Unfinished   int            `json:"unfinished"`
	EngineWins   int            `json:"engine_wins"`
	EngineLosses int            `json:"engine_losses"`
	DrawsByRule  map[string]int `json:"draws_by_rule"`
	TotalPlies   int            `json:"total_plies"`
	TotalTime    time.Duration  `json:"total_time"`
}

// NewGameStats returns empty game statistics
func NewGameStats() *GameStats {
	return &GameStats{
		DrawsByRule: make(map[string]int),
	}
}

// EngineScore returns the engine's score as a percentage (0-100), counting
// draws as half a point. Unfinished games are left out.
func (s *GameStats) EngineScore() float64 {
	finished := s.GamesPlayed - s.Unfinished
	if finished == 0 {
		return 0
	}
	return (float64(s.EngineWins) + float64(s.Draws)/2) / float64(finished) * 100
}

// Storage wraps BadgerDB for persistent storage
type Storage struct {
	db  *badger.DB
	log zerolog.Logger
}

// DatabaseDir returns the database directory, creating it if needed.
// CHESSBOT_DB names it directly; otherwise it is chessbot/db under
// XDG_DATA_HOME or the user's configuration directory.
func DatabaseDir() (string, error) {
	if dir := os.Getenv("CHESSBOT_DB"); dir != "" {
		return dir, os.MkdirAll(dir, 0o755)
	}

	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		var err error
		if base, err = os.UserConfigDir(); err != nil {
			return "", fmt.Errorf("locate database: %w", err)
		}
	}
	dir := filepath.Join(base, "chessbot", "db")
	return dir, os.MkdirAll(dir, 0o755)
}

// NewStorage opens the database in DatabaseDir.
func NewStorage(logger zerolog.Logger) (*Storage, error) {
	dbDir, err := DatabaseDir()
	if err != nil {
		return nil, err
	}
	return Open(badger.DefaultOptions(dbDir), logger)
}

// OpenInMemory opens a database that lives only as long as the process.
func OpenInMemory(logger zerolog.Logger) (*Storage, error) {
	return Open(badger.DefaultOptions("").WithInMemory(true), logger)
}

// Open opens a database with explicit badger options. Badger's own log
// lines are routed through logger at debug level and above.
func Open(opts badger.Options, logger zerolog.Logger) (*Storage, error) {
	opts = opts.WithLogger(badgerLogger{logger.With().Str("component", "badger").Logger()})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	logger.Debug().Str("dir", opts.Dir).Bool("in-memory", opts.InMemory).Msg("storage-opened")
	return &Storage{db: db, log: logger}, nil
}

// Close closes the database
func (s *Storage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// putJSON stores v under key inside txn.
func putJSON(txn *badger.Txn, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set([]byte(key), data)
}

// getJSON loads key into v; it reports false when the key is absent.
func getJSON(txn *badger.Txn, key string, v any) (bool, error) {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

// SaveSettings saves the engine settings
func (s *Storage) SaveSettings(settings *Settings) error {
	settings.SavedAt = time.Now()
	return s.db.Update(func(txn *badger.Txn) error {
		return putJSON(txn, keySettings, settings)
	})
}

// LoadSettings loads the engine settings; ErrNotFound means none were saved.
func (s *Storage) LoadSettings() (*Settings, error) {
	settings := &Settings{}
	var found bool
	err := s.db.View(func(txn *badger.Txn) (err error) {
		found, err = getJSON(txn, keySettings, settings)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	return settings, nil
}

// LoadStats loads game statistics, returns empty stats if not found
func (s *Storage) LoadStats() (*GameStats, error) {
	stats := NewGameStats()
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := getJSON(txn, keyStats, stats)
		return err
	})
	if stats.DrawsByRule == nil {
		stats.DrawsByRule = make(map[string]int)
	}
	return stats, err
}

// gameKey orders games by the time they were played.
func gameKey(id string) string {
	return keyGamePrefix + id
}

// RecordGame archives a finished game and updates the statistics in one
// transaction. An empty ID is filled in from PlayedAt.
func (s *Storage) RecordGame(rec *GameRecord) error {
	if rec.PlayedAt.IsZero() {
		rec.PlayedAt = time.Now()
	}
	if rec.ID == "" {
		rec.ID = fmt.Sprintf("%020d", rec.PlayedAt.UnixNano())
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		stats := NewGameStats()
		if _, err := getJSON(txn, keyStats, stats); err != nil {
			return err
		}
		if stats.DrawsByRule == nil {
			stats.DrawsByRule = make(map[string]int)
		}
		stats.add(rec)

		if err := putJSON(txn, gameKey(rec.ID), rec); err != nil {
			return err
		}
		return putJSON(txn, keyStats, stats)
	})
	if err != nil {
		return fmt.Errorf("record game %s: %w", rec.ID, err)
	}

	s.log.Debug().Str("id", rec.ID).Str("result", rec.Result).Int("plies", len(rec.Moves)).Msg("game-recorded")
	return nil
}

// add folds one game into the statistics.
func (s *GameStats) add(rec *GameRecord) {
	s.GamesPlayed++
	s.TotalPlies += len(rec.Moves)
	s.TotalTime += rec.Duration

	var winner string
	switch rec.Result {
	case ResultWhiteWins:
		s.WhiteWins++
		winner = "white"
	case ResultBlackWins:
		s.BlackWins++
		winner = "black"
	case ResultDraw:
		s.Draws++
		s.DrawsByRule[rec.Reason]++
		return
	default:
		s.Unfinished++
		return
	}

	if strings.EqualFold(rec.EngineColor, winner) {
		s.EngineWins++
	} else {
		s.EngineLosses++
	}
}

// Game loads one archived game by ID.
func (s *Storage) Game(id string) (*GameRecord, error) {
	rec := &GameRecord{}
	var found bool
	err := s.db.View(func(txn *badger.Txn) (err error) {
		found, err = getJSON(txn, gameKey(id), rec)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("game %s: %w", id, ErrNotFound)
	}
	return rec, nil
}

// ListGames returns up to limit archived games, most recent first.
// A limit of zero or less returns every game.
func (s *Storage) ListGames(limit int) ([]*GameRecord, error) {
	var games []*GameRecord

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(keyGamePrefix)
		// Reverse iteration starts from the largest key below the prefix bound
		for it.Seek(append([]byte(keyGamePrefix), 0xff)); it.ValidForPrefix(prefix); it.Next() {
			rec := &GameRecord{}
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, rec)
			}); err != nil {
				return err
			}
			games = append(games, rec)
			if limit > 0 && len(games) >= limit {
				break
			}
		}
		return nil
	})

	return games, err
}

// badgerLogger adapts zerolog to badger.Logger.
type badgerLogger struct {
	zerolog.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.Error().Msgf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.Warn().Msgf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.Debug().Msgf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.Trace().Msgf(strings.TrimSpace(format), args...)
}
