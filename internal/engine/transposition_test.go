package engine

import (
	"testing"

	"github.com/komadai/shogi-engine/internal/shogi"
)

func TestTranspositionStoreProbeRoundTrip(t *testing.T) {
	tt := NewTranspositionTable(1)
	hash := uint64(0x0123456789ABCDEF)
	m := shogi.NewBoardMove(shogi.Square(10), shogi.Square(20), false)

	tt.Store(hash, m, 123, -45, 7, BoundExact, StoreFlags{PV: true})

	probed, ok := tt.Probe(hash)
	if !ok {
		t.Fatal("expected a hit for a freshly stored entry")
	}
	if probed.Move != m {
		t.Errorf("move = %v, want %v", probed.Move, m)
	}
	if probed.Score != 123 {
		t.Errorf("score = %d, want 123", probed.Score)
	}
	if probed.Eval != -45 {
		t.Errorf("eval = %d, want -45", probed.Eval)
	}
	if probed.Depth != 7 {
		t.Errorf("depth = %d, want 7", probed.Depth)
	}
	if probed.Bound != BoundExact {
		t.Errorf("bound = %v, want BoundExact", probed.Bound)
	}
	if !probed.PV {
		t.Error("expected PV flag to round-trip true")
	}
}

// TestTranspositionAuxiliaryFlagsRoundTrip exercises the singular/null-move/
// tt-move-tried/mate-threat bits alongside the rest of the payload, each
// independently togglable.
func TestTranspositionAuxiliaryFlagsRoundTrip(t *testing.T) {
	tt := NewTranspositionTable(1)
	m := shogi.NewBoardMove(shogi.Square(3), shogi.Square(4), true)

	cases := []struct {
		name  string
		flags StoreFlags
	}{
		{"singular", StoreFlags{Singular: true}},
		{"nullMove", StoreFlags{NullMove: true}},
		{"ttMoveTried", StoreFlags{TTMoveTried: true}},
		{"mateThreat", StoreFlags{MateThreat: true}},
		{"allFlags", StoreFlags{Singular: true, NullMove: true, PV: true, TTMoveTried: true, MateThreat: true}},
	}

	for i, tc := range cases {
		hash := uint64(0x1000 + i)
		tt.Store(hash, m, 1, 1, 1, BoundExact, tc.flags)
		probed, ok := tt.Probe(hash)
		if !ok {
			t.Fatalf("%s: expected a hit", tc.name)
		}
		if probed.Singular != tc.flags.Singular {
			t.Errorf("%s: Singular = %v, want %v", tc.name, probed.Singular, tc.flags.Singular)
		}
		if probed.NullMove != tc.flags.NullMove {
			t.Errorf("%s: NullMove = %v, want %v", tc.name, probed.NullMove, tc.flags.NullMove)
		}
		if probed.PV != tc.flags.PV {
			t.Errorf("%s: PV = %v, want %v", tc.name, probed.PV, tc.flags.PV)
		}
		if probed.TTMoveTried != tc.flags.TTMoveTried {
			t.Errorf("%s: TTMoveTried = %v, want %v", tc.name, probed.TTMoveTried, tc.flags.TTMoveTried)
		}
		if probed.MateThreat != tc.flags.MateThreat {
			t.Errorf("%s: MateThreat = %v, want %v", tc.name, probed.MateThreat, tc.flags.MateThreat)
		}
	}
}

// TestScore14BitSignExtensionRoundTrip is Testable Property #4: every value
// in [-8192, 8191] must round-trip exactly through the 14-bit sign-extended
// score/eval field.
func TestScore14BitSignExtensionRoundTrip(t *testing.T) {
	tt := NewTranspositionTable(1)
	m := shogi.NewBoardMove(shogi.Square(0), shogi.Square(1), false)

	samples := []int16{-8192, -8191, -4096, -1, 0, 1, 4095, 8190, 8191}
	for i, v := range samples {
		hash := uint64(0x2000 + i)
		tt.Store(hash, m, v, -v, 1, BoundExact, StoreFlags{})
		probed, ok := tt.Probe(hash)
		if !ok {
			t.Fatalf("value %d: expected a hit", v)
		}
		if probed.Score != v {
			t.Errorf("score round-trip: stored %d, got %d", v, probed.Score)
		}
		if probed.Eval != -v {
			t.Errorf("eval round-trip: stored %d, got %d", -v, probed.Eval)
		}
	}
}

func TestScore14BitClampsOutOfRangeValues(t *testing.T) {
	tt := NewTranspositionTable(1)
	m := shogi.NewBoardMove(shogi.Square(0), shogi.Square(1), false)

	tt.Store(1, m, clampScore(30000), clampScore(-30000), 1, BoundExact, StoreFlags{})
	probed, ok := tt.Probe(1)
	if !ok {
		t.Fatal("expected a hit")
	}
	if probed.Score != maxTTValue {
		t.Errorf("score = %d, want clamp to %d", probed.Score, maxTTValue)
	}
	if probed.Eval != minTTValue {
		t.Errorf("eval = %d, want clamp to %d", probed.Eval, minTTValue)
	}
}

func TestTranspositionProbeMiss(t *testing.T) {
	tt := NewTranspositionTable(1)
	if _, ok := tt.Probe(0xDEADBEEF); ok {
		t.Fatal("expected a miss on an empty table")
	}
}

func TestTranspositionClear(t *testing.T) {
	tt := NewTranspositionTable(1)
	hash := uint64(42)
	tt.Store(hash, shogi.NoMove, 1, 1, 1, BoundLower, StoreFlags{})
	if _, ok := tt.Probe(hash); !ok {
		t.Fatal("expected entry before clear")
	}
	tt.Clear()
	if _, ok := tt.Probe(hash); ok {
		t.Fatal("expected no entry after clear")
	}
	if full := tt.HashFull(); full != 0 {
		t.Errorf("HashFull() after Clear() = %d, want 0", full)
	}
}

func TestAdjustScoreToAndFromTT(t *testing.T) {
	tests := []struct {
		score, ply int
	}{
		{MateValue, 3},
		{-MateValue, 5},
		{100, 10}, // non-mate score is left untouched
	}
	for _, tc := range tests {
		toTT := AdjustScoreToTT(tc.score, tc.ply)
		back := AdjustScoreFromTT(toTT, tc.ply)
		if back != tc.score {
			t.Errorf("AdjustScoreFromTT(AdjustScoreToTT(%d, %d)) = %d, want %d", tc.score, tc.ply, back, tc.score)
		}
	}
}
