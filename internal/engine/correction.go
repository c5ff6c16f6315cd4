package engine

import "github.com/komadai/shogi-engine/internal/shogi"

// CorrectionHistory nudges the static evaluation toward what search
// actually found at a position's hash, the same "learn the eval's bias from
// the tree, not from retraining the network" trick the teacher ports from
// Stockfish's correction history. Indexed by a 16-bit slice of the zobrist
// hash, so it is shared cheaply even though only a fraction of positions
// ever collide into the same slot.
type CorrectionHistory struct {
	table [1 << 16]int16
}

func NewCorrectionHistory() *CorrectionHistory { return &CorrectionHistory{} }

// Get returns the centipawn adjustment to add to a raw static evaluation.
func (ch *CorrectionHistory) Get(pos *shogi.Position) int {
	return int(ch.table[pos.Hash&0xFFFF])
}

// Update applies a gravity step toward the observed (searchScore -
// staticEval) error, scaled by depth since deeper searches are more
// trustworthy signal about the eval's bias at this position.
func (ch *CorrectionHistory) Update(pos *shogi.Position, searchScore, staticEval, depth int) {
	if depth < 1 {
		return
	}
	diff := searchScore - staticEval
	bonus := diff * depth / 8
	if bonus > 256 {
		bonus = 256
	} else if bonus < -256 {
		bonus = -256
	}

	idx := pos.Hash & 0xFFFF
	old := int(ch.table[idx])
	newVal := old + (bonus-old)/16
	if newVal > 16000 {
		newVal = 16000
	} else if newVal < -16000 {
		newVal = -16000
	}
	ch.table[idx] = int16(newVal)
}

// Clear zeroes every correction slot, called on a new game.
func (ch *CorrectionHistory) Clear() {
	for i := range ch.table {
		ch.table[i] = 0
	}
}

// Snapshot copies the table out for persistence (e.g. internal/store).
func (ch *CorrectionHistory) Snapshot() []int16 {
	out := make([]int16, len(ch.table))
	copy(out, ch.table[:])
	return out
}

// Restore replaces the table's contents from a previously saved snapshot.
// A table of the wrong length is ignored rather than partially applied,
// since it cannot have come from this build's CorrectionHistory layout.
func (ch *CorrectionHistory) Restore(table []int16) {
	if len(table) != len(ch.table) {
		return
	}
	copy(ch.table[:], table)
}
