package engine

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/komadai/shogi-engine/internal/nnue"
	"github.com/komadai/shogi-engine/internal/shogi"
)

// runHelpers fans out numHelpers Lazy-SMP workers alongside the caller's own
// main search, each with an independent position copy, move orderer and
// NNUE accumulator stack but sharing tt, net and stopFlag with the main
// worker. Helpers search at staggered starting depths so early iterations
// are not fully duplicated across the whole pool, then race the main
// worker: whichever result carries the deepest completed iteration wins.
// All helpers are cancelled (via stopFlag) the moment the main worker
// returns, so a caller never waits on stragglers past the main result.
func runHelpers(ctx context.Context, root *shogi.Position, tt *TranspositionTable, net *nnue.Network, tm *TimeManager, stopFlag *atomic.Bool, numHelpers int, maxDepth int) (*errgroup.Group, []*Result) {
	g, gctx := errgroup.WithContext(ctx)
	results := make([]*Result, numHelpers)

	for i := 0; i < numHelpers; i++ {
		i := i
		posCopy := *root
		posCopy.History = append([]uint64(nil), root.History...)
		posCopy.MoverHistory = append([]shogi.Color(nil), root.MoverHistory...)
		posCopy.CheckHistory = append([]bool(nil), root.CheckHistory...)

		helperID := i + 1
		startDepth := helperStartDepth(helperID)

		g.Go(func() error {
			s := NewSearcher(helperID, tt, net, stopFlag)
			s.Reset(&posCopy, tm)
			fallback := s.rootFallbackMove()
			start := time.Now()
			var last Result
			score := 0
			for depth := startDepth; depth <= maxDepth; depth++ {
				select {
				case <-gctx.Done():
					results[i] = &last
					return nil
				default:
				}
				if stopFlag.Load() || (tm != nil && tm.ShouldStop(s.Nodes())) {
					break
				}
				step := s.iterateOneDepth(depth, score, fallback, start, nil)
				if step.completed {
					last = step.result
					score = step.score
				}
				if step.stopLoop {
					break
				}
			}
			results[i] = &last
			return nil
		})
	}
	return g, results
}

// helperStartDepth staggers helper workers so the shallowest iterations,
// which are cheap and nearly identical across workers, are not repeated by
// every helper: later-indexed helpers skip straight to a deeper starting
// iteration.
func helperStartDepth(helperID int) int {
	switch {
	case helperID >= 6:
		return 4
	case helperID >= 3:
		return 3
	default:
		return 2
	}
}

// bestOf picks the Lazy-SMP winner among the main worker's result and every
// helper's last completed iteration: deepest completed depth wins; on equal
// depth the result already chosen (the main worker's first) is kept.
func bestOf(main Result, helpers []*Result) Result {
	best := main
	for _, h := range helpers {
		if h == nil || h.BestMove == shogi.NoMove {
			continue
		}
		if h.Depth > best.Depth {
			best = *h
		}
	}
	return best
}
