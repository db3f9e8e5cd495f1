package board

import "math/bits"

// Status classifies a position for terminal scoring.
type Status uint8

const (
	Ongoing Status = iota
	Checkmate
	Stalemate
	InsufficientMaterial
	FiftyMoveRule
	Repetition
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case Ongoing:
		return "ongoing"
	case Checkmate:
		return "checkmate"
	case Stalemate:
		return "stalemate"
	case InsufficientMaterial:
		return "insufficient material"
	case FiftyMoveRule:
		return "fifty-move rule"
	case Repetition:
		return "threefold repetition"
	default:
		return "unknown"
	}
}

// IsOver returns true for any terminal status.
func (s Status) IsOver() bool {
	return s != Ongoing
}

// IsLoss returns true if the side to move has lost.
func (s Status) IsLoss() bool {
	return s == Checkmate
}

// IsDraw returns true for every terminal status that is not a loss.
func (s Status) IsDraw() bool {
	return s.IsOver() && !s.IsLoss()
}

// Status classifies the position. moves must be the legal moves of the
// position, so callers that already generated them avoid doing it twice;
// pass nil to have them generated.
func (p *Position) Status(moves []Move) Status {
	if moves == nil {
		moves = p.LegalMoves()
	}

	if p.HalfMoveClock() >= 100 {
		if len(moves) == 0 && p.InCheck() {
			return Checkmate
		}
		return FiftyMoveRule
	}
	if p.IsInsufficientMaterial() {
		return InsufficientMaterial
	}
	if p.IsRepetition() {
		return Repetition
	}
	if len(moves) == 0 {
		if p.InCheck() {
			return Checkmate
		}
		return Stalemate
	}
	return Ongoing
}

// IsInsufficientMaterial returns true if neither side can checkmate:
// bare kings, a single minor piece, or one bishop each on the same color.
func (p *Position) IsInsufficientMaterial() bool {
	all := p.b.White.All | p.b.Black.All
	switch bits.OnesCount64(all) {
	case 2:
		return true
	case 3:
		minors := p.b.White.Knights | p.b.White.Bishops | p.b.Black.Knights | p.b.Black.Bishops
		return minors != 0
	case 4:
		wb, bb := p.b.White.Bishops, p.b.Black.Bishops
		if bits.OnesCount64(wb) != 1 || bits.OnesCount64(bb) != 1 {
			return false
		}
		w := Square(bits.TrailingZeros64(wb))
		b := Square(bits.TrailingZeros64(bb))
		return w.isLight() == b.isLight()
	}
	return false
}

// IsRepetition returns true if the position occurred twice before on the
// current line within the reach of the half-move clock.
func (p *Position) IsRepetition() bool {
	hash := p.Hash()
	seen := 0
	reach := p.HalfMoveClock()
	for i := len(p.history) - 2; i >= 0 && len(p.history)-i <= reach; i -= 2 {
		if p.history[i] == hash {
			seen++
			if seen >= 2 {
				return true
			}
		}
	}
	return false
}
