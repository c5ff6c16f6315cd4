package engine

import (
	"testing"

	"github.com/komadai/shogi-engine/internal/shogi"
)

func TestPickMoveSelectsHighestRemainingScore(t *testing.T) {
	var moves shogi.MoveList
	moves.Add(shogi.NewBoardMove(shogi.Square(0), shogi.Square(1), false))
	moves.Add(shogi.NewBoardMove(shogi.Square(2), shogi.Square(3), false))
	moves.Add(shogi.NewBoardMove(shogi.Square(4), shogi.Square(5), false))

	scores := []int{10, 50, 30}
	PickMove(&moves, scores, 0)

	if scores[0] != 50 {
		t.Fatalf("scores[0] = %d, want 50 (best of the remaining range)", scores[0])
	}
	if moves.Get(0) != shogi.NewBoardMove(shogi.Square(2), shogi.Square(3), false) {
		t.Fatal("PickMove did not swap the highest-scoring move into place")
	}
}

func TestPickMoveNoSwapWhenAlreadyBest(t *testing.T) {
	var moves shogi.MoveList
	moves.Add(shogi.NewBoardMove(shogi.Square(0), shogi.Square(1), false))
	moves.Add(shogi.NewBoardMove(shogi.Square(2), shogi.Square(3), false))

	scores := []int{100, 5}
	PickMove(&moves, scores, 0)

	if moves.Get(0) != shogi.NewBoardMove(shogi.Square(0), shogi.Square(1), false) {
		t.Fatal("move order should be unchanged when index 0 already holds the best score")
	}
}

func TestUpdateKillersInsertsMostRecentFirst(t *testing.T) {
	mo := NewMoveOrderer()
	m1 := shogi.NewBoardMove(shogi.Square(0), shogi.Square(1), false)
	m2 := shogi.NewBoardMove(shogi.Square(2), shogi.Square(3), false)

	mo.UpdateKillers(m1, 0)
	mo.UpdateKillers(m2, 0)

	if mo.killers[0][0] != m2 {
		t.Errorf("killers[0][0] = %v, want %v (most recent)", mo.killers[0][0], m2)
	}
	if mo.killers[0][1] != m1 {
		t.Errorf("killers[0][1] = %v, want %v (bumped)", mo.killers[0][1], m1)
	}
}

func TestUpdateHistoryGoodMoveIncreasesScore(t *testing.T) {
	mo := NewMoveOrderer()
	m := shogi.NewBoardMove(shogi.Square(10), shogi.Square(20), false)

	before := mo.GetHistoryScore(m)
	mo.UpdateHistory(m, 4, true)
	after := mo.GetHistoryScore(m)

	if after <= before {
		t.Fatalf("history score did not increase: before=%d after=%d", before, after)
	}
}

func TestClearAgesHistoryAndResetsKillers(t *testing.T) {
	mo := NewMoveOrderer()
	m := shogi.NewBoardMove(shogi.Square(10), shogi.Square(20), false)
	mo.UpdateHistory(m, 4, true)
	mo.UpdateKillers(m, 0)

	before := mo.GetHistoryScore(m)
	mo.Clear()

	if got, want := mo.GetHistoryScore(m), before/2; got != want {
		t.Errorf("Clear should halve history scores: got %d, want %d", got, want)
	}
	if mo.killers[0][0] != shogi.NoMove {
		t.Error("Clear should reset killer slots")
	}
}
