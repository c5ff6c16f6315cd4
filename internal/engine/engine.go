package engine

import (
	"context"
	"fmt"
	"log"
	"runtime"
	"sync/atomic"

	"github.com/komadai/shogi-engine/internal/nnue"
	"github.com/komadai/shogi-engine/internal/shogi"
	"github.com/komadai/shogi-engine/internal/store"
)

// NumHelpers is the number of Lazy-SMP helper workers spawned alongside the
// main search worker, one per CPU core beyond the one the main worker and
// the USI I/O loop already occupy.
var NumHelpers = func() int {
	n := runtime.GOMAXPROCS(0) - 1
	if n < 0 {
		n = 0
	}
	return n
}()

// Engine owns every resource a search needs that outlives a single `go`
// command: the shared transposition table, the loaded (read-only) NNUE
// network, and the stop flag the USI orchestrator's "stop"/"quit" commands
// set. A fresh main Searcher and helper pool are built per search, since
// their position copies and accumulator stacks are cheap compared to the
// TT and the network weights they share.
type Engine struct {
	tt       *TranspositionTable
	net      *nnue.Network
	corr     *CorrectionHistory
	stopFlag atomic.Bool

	persist    *store.Store
	weightsKey string

	OnInfo func(Info)
}

// NewEngine allocates an engine with a ttSizeMB-megabyte transposition
// table. Weights must be loaded separately via LoadWeights before the first
// search; until then the network carries small deterministic random
// weights, usable for tests but not for real play.
func NewEngine(ttSizeMB int) *Engine {
	net := nnue.NewNetwork()
	net.InitRandom(0x53484F4749)
	return &Engine{
		tt:         NewTranspositionTable(ttSizeMB),
		net:        net,
		corr:       NewCorrectionHistory(),
		weightsKey: "default",
	}
}

// LoadWeights loads a trained network from filename, replacing whatever
// network the engine currently evaluates with. Per the error-handling
// taxonomy, a failed load leaves the previous (possibly random) weights in
// place; the caller decides whether that is fatal for the current command.
// When a persistence backend is enabled (SetPersistDir), the correction
// history is re-seeded from any snapshot saved for this weights file, since
// a correction table learned against one network's bias doesn't transfer to
// another.
func (e *Engine) LoadWeights(filename string) error {
	net := nnue.NewNetwork()
	if err := net.LoadWeights(filename); err != nil {
		return fmt.Errorf("%w: %v", ErrWeightsLoad, err)
	}
	e.net = net
	e.weightsKey = filename
	e.corr.Clear()
	if e.persist != nil {
		if table, ok, err := e.persist.GetCorrectionSnapshot(e.weightsKey); err == nil && ok {
			e.corr.Restore(table)
		}
	}
	return nil
}

// SetPersistDir enables persistent correction-history storage backed by a
// BadgerDB at dir (internal/store), wired through "setoption name PersistDir
// value <dir>". A snapshot already saved for the currently loaded weights is
// restored immediately. Passing an empty dir disables persistence and closes
// any backend previously opened.
func (e *Engine) SetPersistDir(dir string) error {
	if e.persist != nil {
		_ = e.SaveCorrectionSnapshot()
		_ = e.persist.Close()
		e.persist = nil
	}
	if dir == "" {
		return nil
	}
	st, err := store.Open(dir)
	if err != nil {
		return err
	}
	e.persist = st
	if table, ok, err := st.GetCorrectionSnapshot(e.weightsKey); err == nil && ok {
		e.corr.Restore(table)
	}
	return nil
}

// SaveCorrectionSnapshot persists the engine's current correction-history
// table under its active weights key; a no-op when no persistence backend
// is enabled.
func (e *Engine) SaveCorrectionSnapshot() error {
	if e.persist == nil {
		return nil
	}
	return e.persist.PutCorrectionSnapshot(e.weightsKey, e.corr.Snapshot())
}

// Close releases the engine's persistence backend, if any, saving a final
// correction-history snapshot first.
func (e *Engine) Close() error {
	if e.persist == nil {
		return nil
	}
	_ = e.SaveCorrectionSnapshot()
	err := e.persist.Close()
	e.persist = nil
	return err
}

// ResizeHash replaces the transposition table with a freshly sized one as
// soon as it is called; the resize is not deferred to the next `isready`.
func (e *Engine) ResizeHash(sizeMB int) {
	e.tt = NewTranspositionTable(sizeMB)
}

// ClearHash zeroes every transposition table entry without resizing.
func (e *Engine) ClearHash() { e.tt.Clear() }

// HashFull reports the transposition table's current per-mille occupancy.
func (e *Engine) HashFull() int { return e.tt.HashFull() }

// ClassifyPhase buckets pos for time-allocation purposes by total non-king
// material remaining on the board and in hand.
func ClassifyPhase(pos *shogi.Position) GamePhase {
	material := 0
	for _, p := range pos.Board {
		if !p.IsEmpty() && p.Type != shogi.King {
			material++
		}
	}
	for c := shogi.Black; c <= shogi.White; c++ {
		for _, n := range pos.Hand[c] {
			material += n
		}
	}
	switch {
	case material > 28:
		return Opening
	case material > 14:
		return MiddleGame
	default:
		return EndGame
	}
}

// NewTimeManagerFor builds the TimeManager a "go" command needs for pos
// under limits, inferring the game phase from the position itself.
func NewTimeManagerFor(pos *shogi.Position, limits SearchLimits) *TimeManager {
	return NewTimeManager(limits, pos.SideToMove, pos.Ply, ClassifyPhase(pos))
}

// MaxSearchDepth resolves a SearchLimits.Depth of 0 (unspecified) to the
// engine's hard ply ceiling.
func MaxSearchDepth(limits SearchLimits) int {
	if limits.Depth <= 0 || limits.Depth > MaxPly-1 {
		return MaxPly - 1
	}
	return limits.Depth
}

// Stop requests the current search to halt at its next node boundary.
func (e *Engine) Stop() { e.stopFlag.Store(true) }

// Search runs one full iterative-deepening search from pos under limits,
// reporting progress through onInfo (falling back to e.OnInfo if onInfo is
// nil) and returning the emergency-move fallback if no iteration ever
// completes. tm is owned by the caller so a "go ponder"/"ponderhit"
// sequence can reuse the same TimeManager across the call.
func (e *Engine) Search(ctx context.Context, pos *shogi.Position, tm *TimeManager, maxDepth int, onInfo func(Info)) Result {
	if onInfo == nil {
		onInfo = e.OnInfo
	}

	e.stopFlag.Store(false)
	e.tt.NewSearch()

	main := NewSearcher(0, e.tt, e.net, &e.stopFlag)
	main.SeedCorrection(e.corr.Snapshot())
	main.Reset(pos, tm)

	if maxDepth <= 0 || maxDepth > MaxPly-1 {
		maxDepth = MaxPly - 1
	}

	var g interface{ Wait() error }
	var helperResults []*Result
	if NumHelpers > 0 {
		grp, results := runHelpers(ctx, pos, e.tt, e.net, tm, &e.stopFlag, NumHelpers, maxDepth)
		g, helperResults = grp, results
	}

	mainResult := main.Iterate(maxDepth, onInfo)

	e.stopFlag.Store(true)
	if g != nil {
		if err := g.Wait(); err != nil {
			log.Printf("engine: helper search error: %v", err)
		}
	}

	e.corr.Restore(main.CorrectionSnapshot())
	if e.persist != nil {
		if err := e.SaveCorrectionSnapshot(); err != nil {
			log.Printf("engine: save correction snapshot: %v", err)
		}
	}

	result := bestOf(mainResult, helperResults)
	if result.BestMove == shogi.NoMove {
		if legal := pos.GenerateLegalMoves(); legal.Len() > 0 {
			result.BestMove = legal.Get(0)
		}
	}
	return result
}
