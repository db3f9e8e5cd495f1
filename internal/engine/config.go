package engine

import (
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Search constants
const (
	Infinity  = math.MaxInt32
	MateScore = math.MaxInt32 / 2 // leaves room for MateScore+depth in both directions
	MaxDepth  = 64
)

// Defaults match the fixed settings the engine has always shipped with.
const (
	DefaultDepth   = 8
	DefaultThreads = 32
)

// ErrInvalidConfig is returned by New for unusable settings.
var ErrInvalidConfig = errors.New("invalid engine config")

// DefaultPieceValues are centipawn values indexed by board.PieceType.
// The king is never captured, so it carries no material.
var DefaultPieceValues = [6]int{100, 320, 330, 500, 900, 0}

// DefaultMVVLVA scores captures as MVVLVA[attacker][victim], indexed by
// board.PieceType with board.NoPieceType as the last row and column.
// Higher score = search first
var DefaultMVVLVA = [7][7]int{
	//         P   N   B   R   Q   K  -  (victim)
	/* P */ {15, 25, 35, 45, 55, 0, 0},
	/* N */ {14, 24, 34, 44, 54, 0, 0},
	/* B */ {13, 23, 33, 43, 53, 0, 0},
	/* R */ {12, 22, 32, 42, 52, 0, 0},
	/* Q */ {11, 21, 31, 41, 51, 0, 0},
	/* K */ {10, 20, 30, 40, 50, 0, 0},
	/* - */ {0, 0, 0, 0, 0, 0, 0},
}

// Config holds everything the search needs that used to be compiled in.
type Config struct {
	Depth       int       // Plies searched from the root, root move included
	Threads     int       // Maximum number of root-move workers per search
	PieceValues [6]int    // Material per piece type
	MVVLVA      [7][7]int // Capture ordering table
	Rand        Rand      // Tie-break source; nil selects frand
	Logger      zerolog.Logger
}

// DefaultConfig returns the standard engine configuration.
func DefaultConfig() Config {
	return Config{
		Depth:       DefaultDepth,
		Threads:     DefaultThreads,
		PieceValues: DefaultPieceValues,
		MVVLVA:      DefaultMVVLVA,
		Logger:      log.Logger,
	}
}

// Validate checks the limits the search relies on.
func (c Config) Validate() error {
	if c.Depth < 1 || c.Depth > MaxDepth {
		return fmt.Errorf("%w: depth %d outside 1..%d", ErrInvalidConfig, c.Depth, MaxDepth)
	}
	if c.Threads < 1 {
		return fmt.Errorf("%w: threads must be at least 1, got %d", ErrInvalidConfig, c.Threads)
	}
	for pt, v := range c.PieceValues {
		if v < 0 || v > MateScore/64 {
			return fmt.Errorf("%w: piece value %d for type %d", ErrInvalidConfig, v, pt)
		}
	}
	return nil
}
