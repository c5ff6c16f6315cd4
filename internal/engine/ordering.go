package engine

import "github.com/komadai/shogi-engine/internal/shogi"

// Move ordering priority bands. Every quiet move falls through to its
// history score, which lives well below GoodCaptureBase, so captures and
// promotions always sort ahead of quiet moves regardless of history noise.
const (
	ttMoveScore     = 10_000_000
	goodCaptureBase = 1_000_000
	promotionBase   = 900_000
	killerScore1    = 800_000
	killerScore2    = 700_000
)

// MoveOrderer holds per-worker move-ordering state: killer moves and the
// history heuristic are local to a worker (they reflect that worker's own
// search line); no ordering state is shared between Lazy-SMP helpers.
type MoveOrderer struct {
	killers [MaxPly][2]shogi.Move

	// history is indexed by [from][to] for board moves.
	history [shogi.NumSquares][shogi.NumSquares]int

	// dropHistory is indexed by [pieceType][to]; board-move history and
	// drop history are necessarily separate since a drop has no origin
	// square to index by.
	dropHistory [shogi.NumHandTypes][shogi.NumSquares]int
}

func NewMoveOrderer() *MoveOrderer { return &MoveOrderer{} }

// Clear resets killers for a new search and ages history scores, matching
// the teacher's "halve rather than zero" aging so ordering quality carries
// over between iterative-deepening iterations.
func (mo *MoveOrderer) Clear() {
	for i := range mo.killers {
		mo.killers[i][0] = shogi.NoMove
		mo.killers[i][1] = shogi.NoMove
	}
	for i := range mo.history {
		for j := range mo.history[i] {
			mo.history[i][j] /= 2
		}
	}
	for i := range mo.dropHistory {
		for j := range mo.dropHistory[i] {
			mo.dropHistory[i][j] /= 2
		}
	}
}

// ScoreMoves assigns an ordering score to every move in moves, biggest
// first. The TT move, if present, always sorts to the front.
func (mo *MoveOrderer) ScoreMoves(pos *shogi.Position, moves *shogi.MoveList, ply int, ttMove shogi.Move) []int {
	scores := make([]int, moves.Len())
	for i := 0; i < moves.Len(); i++ {
		scores[i] = mo.scoreMove(pos, moves.Get(i), ply, ttMove)
	}
	return scores
}

func (mo *MoveOrderer) scoreMove(pos *shogi.Position, m shogi.Move, ply int, ttMove shogi.Move) int {
	if m == ttMove {
		return ttMoveScore
	}
	if pos.IsCapture(m) {
		attacker := pos.Board[m.From()]
		victim := pos.Board[m.To()]
		score := goodCaptureBase + victim.Value()*16 - attacker.Value()
		if m.Promote() {
			score += 64
		}
		return score
	}
	if m.Promote() {
		return promotionBase
	}
	if m == mo.killers[ply][0] {
		return killerScore1
	}
	if m == mo.killers[ply][1] {
		return killerScore2
	}
	if m.IsDrop() {
		return mo.dropHistory[m.DropPiece()][m.To()]
	}
	return mo.history[m.From()][m.To()]
}

// PickMove selects the highest-scoring move at or after index and swaps it
// into place, giving a lazily-sorted move stream without paying for a full
// sort when a cutoff ends the loop early.
func PickMove(moves *shogi.MoveList, scores []int, index int) {
	best := index
	for j := index + 1; j < moves.Len(); j++ {
		if scores[j] > scores[best] {
			best = j
		}
	}
	if best != index {
		moves.Swap(index, best)
		scores[index], scores[best] = scores[best], scores[index]
	}
}

// UpdateKillers records m as a killer at ply, for the quiet move-ordering
// boost on a later sibling node at the same ply.
func (mo *MoveOrderer) UpdateKillers(m shogi.Move, ply int) {
	if ply >= MaxPly || mo.killers[ply][0] == m {
		return
	}
	mo.killers[ply][1] = mo.killers[ply][0]
	mo.killers[ply][0] = m
}

// UpdateHistory applies a depth-squared bonus (or penalty) to m's quiet
// history score, rescaling the whole table if the bonus would overflow the
// chosen ceiling.
func (mo *MoveOrderer) UpdateHistory(m shogi.Move, depth int, good bool) {
	bonus := depth * depth
	if !good {
		bonus = -bonus
	}
	if m.IsDrop() {
		applyHistoryBonus(&mo.dropHistory[m.DropPiece()][m.To()], bonus, func() { mo.scaleDropHistory() })
		return
	}
	applyHistoryBonus(&mo.history[m.From()][m.To()], bonus, func() { mo.scaleHistory() })
}

const historyCeiling = 400_000

func applyHistoryBonus(slot *int, bonus int, scaleAll func()) {
	*slot += bonus
	if *slot > historyCeiling {
		scaleAll()
	} else if *slot < -historyCeiling {
		*slot = -historyCeiling
	}
}

func (mo *MoveOrderer) scaleHistory() {
	for i := range mo.history {
		for j := range mo.history[i] {
			mo.history[i][j] /= 2
		}
	}
}

func (mo *MoveOrderer) scaleDropHistory() {
	for i := range mo.dropHistory {
		for j := range mo.dropHistory[i] {
			mo.dropHistory[i][j] /= 2
		}
	}
}

// GetHistoryScore returns m's current quiet-move history score, used by
// history pruning to skip searching moves history marks as persistently bad.
func (mo *MoveOrderer) GetHistoryScore(m shogi.Move) int {
	if m.IsDrop() {
		return mo.dropHistory[m.DropPiece()][m.To()]
	}
	return mo.history[m.From()][m.To()]
}
