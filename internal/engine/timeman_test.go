package engine

import (
	"testing"
	"time"

	"github.com/komadai/shogi-engine/internal/shogi"
)

func TestNewTimeManagerFixedTime(t *testing.T) {
	limits := SearchLimits{
		TimeControl: TimeControl{Kind: FixedTime, MsPerMove: 500 * time.Millisecond},
	}
	tm := NewTimeManager(limits, shogi.Black, 1, MiddleGame)
	if tm.IsPondering() {
		t.Fatal("a FixedTime manager must not start in ponder mode")
	}
	if tm.ShouldStop(0) {
		t.Fatal("should not report stop immediately after creation")
	}
}

// TestAllZeroTimeControlFallsBackToByoyomi is spec.md §8's safety-fallback
// boundary case: a completely unspecified TimeControl must not fall through
// the Fischer branch's floor clamps to a near-instant 10ms/50ms budget.
func TestAllZeroTimeControlFallsBackToByoyomi(t *testing.T) {
	soft, hard := calculateTimeAllocation(TimeControl{}, shogi.Black, 1, 0, MiddleGame, DefaultTimeParameters())

	wantSoft := defaultByoyomiFallback - DefaultTimeParameters().Overhead
	if soft != wantSoft {
		t.Errorf("soft = %v, want %v (byoyomi fallback of %v)", soft, wantSoft, defaultByoyomiFallback)
	}
	wantHard := wantSoft
	if hard != wantHard {
		t.Errorf("hard = %v, want %v", hard, wantHard)
	}

	limits := SearchLimits{}
	tm := NewTimeManager(limits, shogi.Black, 1, MiddleGame)
	if time.Duration(tm.softLimit.Load()) != wantSoft {
		t.Errorf("TimeManager soft limit = %v, want %v", time.Duration(tm.softLimit.Load()), wantSoft)
	}
	if time.Duration(tm.hardLimit.Load()) != wantHard {
		t.Errorf("TimeManager hard limit = %v, want %v", time.Duration(tm.hardLimit.Load()), wantHard)
	}
}

func TestPonderTimeManagerStartsPonderingAndStopsOnHit(t *testing.T) {
	pending := SearchLimits{
		TimeControl: TimeControl{Kind: Fischer, BlackTime: 10 * time.Second, WhiteTime: 10 * time.Second, Increment: time.Second},
	}
	tm := NewPonderTimeManager(pending, shogi.Black, 1, MiddleGame)
	if !tm.IsPondering() {
		t.Fatal("expected IsPondering() true immediately after NewPonderTimeManager")
	}

	tm.PonderHit(nil, 0)
	if tm.IsPondering() {
		t.Fatal("expected IsPondering() false after PonderHit")
	}
}

func TestShouldStopHonorsNodeLimit(t *testing.T) {
	limits := SearchLimits{
		TimeControl: TimeControl{Kind: FixedNodes, NodeLimit: 1000},
		Nodes:       1000,
	}
	tm := NewTimeManager(limits, shogi.Black, 1, MiddleGame)
	if tm.ShouldStop(500) {
		t.Fatal("should not stop before the node limit is reached")
	}
	if !tm.ShouldStop(1000) {
		t.Fatal("should stop once the node limit is reached")
	}
}

func TestForceStop(t *testing.T) {
	tm := NewTimeManager(SearchLimits{TimeControl: TimeControl{Kind: Infinite}}, shogi.Black, 1, Opening)
	if tm.ShouldStop(0) {
		t.Fatal("an infinite search should not stop on its own")
	}
	tm.ForceStop()
	if !tm.ShouldStop(0) {
		t.Fatal("ShouldStop should report true immediately after ForceStop")
	}
}
