package engine

import (
	"context"
	"testing"

	"github.com/komadai/shogi-engine/internal/shogi"
)

func TestEngineSearchReturnsLegalMove(t *testing.T) {
	eng := NewEngine(1)
	pos := shogi.NewGame()
	limits := SearchLimits{TimeControl: TimeControl{Kind: FixedNodes, NodeLimit: 2000}}
	tm := NewTimeManagerFor(pos, limits)

	result := eng.Search(context.Background(), pos, tm, 4, nil)

	if result.BestMove.IsNull() {
		t.Fatal("expected a non-null best move from the starting position")
	}
	legal := pos.GenerateLegalMoves()
	if !legal.Contains(result.BestMove) {
		t.Errorf("best move %v is not among the legal moves from the starting position", result.BestMove)
	}
}

func TestEngineClassifyPhaseStartposIsOpening(t *testing.T) {
	pos := shogi.NewGame()
	if got := ClassifyPhase(pos); got != Opening {
		t.Errorf("ClassifyPhase(startpos) = %v, want Opening", got)
	}
}

func TestEngineHashFullAndClearHash(t *testing.T) {
	eng := NewEngine(1)
	pos := shogi.NewGame()
	limits := SearchLimits{TimeControl: TimeControl{Kind: FixedNodes, NodeLimit: 2000}}
	tm := NewTimeManagerFor(pos, limits)
	eng.Search(context.Background(), pos, tm, 4, nil)

	eng.ClearHash()
	if full := eng.HashFull(); full != 0 {
		t.Errorf("HashFull() after ClearHash() = %d, want 0", full)
	}
}

// TestPersistDirRoundTripsCorrectionHistory exercises SPEC_FULL.md's
// "setoption name PersistDir" wiring: a correction-history snapshot saved by
// one engine instance against a weights key is visible to a second instance
// opened against the same directory and key.
func TestPersistDirRoundTripsCorrectionHistory(t *testing.T) {
	dir := t.TempDir()

	eng1 := NewEngine(1)
	if err := eng1.SetPersistDir(dir); err != nil {
		t.Fatalf("SetPersistDir: %v", err)
	}
	eng1.corr.Update(shogi.NewGame(), 120, 40, 6)
	if err := eng1.SaveCorrectionSnapshot(); err != nil {
		t.Fatalf("SaveCorrectionSnapshot: %v", err)
	}
	if err := eng1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	eng2 := NewEngine(1)
	if err := eng2.SetPersistDir(dir); err != nil {
		t.Fatalf("SetPersistDir (second engine): %v", err)
	}
	defer eng2.Close()

	want := eng1.corr.Get(shogi.NewGame())
	got := eng2.corr.Get(shogi.NewGame())
	if got != want {
		t.Errorf("restored correction adjustment = %d, want %d", got, want)
	}
}

func TestMaxSearchDepthDefaultsToCeiling(t *testing.T) {
	if got := MaxSearchDepth(SearchLimits{}); got != MaxPly-1 {
		t.Errorf("MaxSearchDepth(unset) = %d, want %d", got, MaxPly-1)
	}
	if got := MaxSearchDepth(SearchLimits{Depth: 5}); got != 5 {
		t.Errorf("MaxSearchDepth(5) = %d, want 5", got)
	}
}
