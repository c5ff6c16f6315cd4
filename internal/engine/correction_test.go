package engine

import (
	"testing"

	"github.com/komadai/shogi-engine/internal/shogi"
)

func TestCorrectionHistoryStartsAtZero(t *testing.T) {
	ch := NewCorrectionHistory()
	pos := shogi.NewGame()
	if got := ch.Get(pos); got != 0 {
		t.Errorf("Get() on a fresh table = %d, want 0", got)
	}
}

func TestCorrectionHistoryUpdateMovesTowardObservedDiff(t *testing.T) {
	ch := NewCorrectionHistory()
	pos := shogi.NewGame()

	ch.Update(pos, 200, 0, 8) // search found +200, static eval said 0
	got := ch.Get(pos)
	if got <= 0 {
		t.Fatalf("expected a positive correction after search scored higher than static eval, got %d", got)
	}
}

func TestCorrectionHistoryIgnoresShallowDepth(t *testing.T) {
	ch := NewCorrectionHistory()
	pos := shogi.NewGame()

	ch.Update(pos, 500, 0, 0)
	if got := ch.Get(pos); got != 0 {
		t.Errorf("depth-0 update should be a no-op, got correction %d", got)
	}
}

func TestCorrectionHistoryClear(t *testing.T) {
	ch := NewCorrectionHistory()
	pos := shogi.NewGame()
	ch.Update(pos, 300, 0, 10)
	if ch.Get(pos) == 0 {
		t.Fatal("expected a nonzero correction before Clear")
	}
	ch.Clear()
	if got := ch.Get(pos); got != 0 {
		t.Errorf("Get() after Clear = %d, want 0", got)
	}
}
