package nnue

import (
	"testing"

	"github.com/komadai/shogi-engine/internal/shogi"
)

// TestIncrementalMatchesFullRecompute verifies the core NNUE invariant: the
// accumulator maintained move-by-move via Push/Update/Pop must agree with a
// full recomputation from scratch at every node along the line, the same
// check that catches a wrong feature-delta in UpdateIncremental.
func TestIncrementalMatchesFullRecompute(t *testing.T) {
	net := NewNetwork()
	net.InitRandom(1)

	eval := NewEvaluatorFromNetwork(net)
	pos := shogi.NewGame()
	eval.Refresh(pos)

	moves := pos.GenerateLegalMoves()
	if moves.Len() == 0 {
		t.Fatal("starting position has no legal moves")
	}

	for i := 0; i < moves.Len() && i < 10; i++ {
		m := moves.Get(i)
		captured := pos.Board[m.To()]

		eval.Push()
		undo := pos.MakeMove(m)
		eval.Update(pos, m, captured)

		incremental := eval.Evaluate(pos)

		fresh := NewEvaluatorFromNetwork(net)
		fresh.Refresh(pos)
		full := fresh.Evaluate(pos)

		if incremental != full {
			t.Errorf("move %v: incremental eval = %d, full recompute = %d", m, incremental, full)
		}

		pos.UnmakeMove(m, undo)
		eval.Pop()
	}
}

// TestKingMoveOnlyRebuildsMoverPerspective is spec.md §4.A's king-move rule:
// when perspective C's own king moves, C is rebuilt from scratch but the
// other perspective is updated incrementally, not also rebuilt.
func TestKingMoveOnlyRebuildsMoverPerspective(t *testing.T) {
	pos, err := shogi.ParseSFEN("9/4k4/9/9/9/9/9/4K4/9 b - 1")
	if err != nil {
		t.Fatalf("ParseSFEN: %v", err)
	}

	net := NewNetwork()
	net.InitRandom(3)

	acc := &Accumulator{}
	acc.ComputeFull(pos, net)
	whiteBefore := acc.White

	kingFrom, err := shogi.ParseSquare("5h")
	if err != nil {
		t.Fatalf("ParseSquare: %v", err)
	}
	kingTo, err := shogi.ParseSquare("5g")
	if err != nil {
		t.Fatalf("ParseSquare: %v", err)
	}
	m := shogi.NewBoardMove(kingFrom, kingTo, false)
	captured := pos.Board[kingTo]

	undo := pos.MakeMove(m)
	defer pos.UnmakeMove(m, undo)

	_, _, blackFull, _, _, whiteFull := GetChangedFeatures(pos, m, captured)
	if !blackFull {
		t.Error("blackFull = false, want true: Black's own king moved")
	}
	if whiteFull {
		t.Error("whiteFull = true, want false: White's king did not move")
	}

	acc.UpdateIncremental(pos, m, captured, net)

	if acc.White != whiteBefore {
		t.Error("White perspective changed on a Black king move with no pieces near White's king; the incremental path should have produced a no-op delta")
	}

	fresh := &Accumulator{}
	fresh.ComputeFull(pos, net)
	if acc.Black != fresh.Black {
		t.Error("Black perspective after incremental king-move update does not match a full recompute")
	}
	if acc.White != fresh.White {
		t.Error("White perspective after incremental king-move update does not match a full recompute")
	}
}

func TestEvaluateIsDeterministic(t *testing.T) {
	net := NewNetwork()
	net.InitRandom(7)
	pos := shogi.NewGame()

	e1 := NewEvaluatorFromNetwork(net)
	e1.Refresh(pos)

	e2 := NewEvaluatorFromNetwork(net)
	e2.Refresh(pos)

	if e1.Evaluate(pos) != e2.Evaluate(pos) {
		t.Fatal("two evaluators over the same network and position should agree")
	}
}
