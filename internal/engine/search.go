package engine

import (
	"sync/atomic"
	"time"

	"github.com/komadai/shogi-engine/internal/nnue"
	"github.com/komadai/shogi-engine/internal/shogi"
)

// pvTable is a triangular principal-variation buffer: pv.moves[ply] holds
// the best line found so far rooted at ply, copied up from ply+1 whenever a
// child search raises alpha.
type pvTable struct {
	moves  [MaxPly][MaxPly]shogi.Move
	length [MaxPly]int
}

// Info is one iterative-deepening snapshot, delivered through a
// caller-supplied callback so reporting never sits on the search's critical
// path (the callback itself must not block).
type Info struct {
	Depth    int
	SelDepth int
	Score    int
	Nodes    uint64
	Elapsed  time.Duration
	PV       []shogi.Move
	HashFull int
}

// StopReason classifies why a search iteration stopped, surfaced on the
// final Result for USI "info string" diagnostics and for deciding whether a
// reported bestmove reflects a completed or a truncated iteration.
type StopReason int

const (
	StopCompleted StopReason = iota
	StopTime
	StopNodes
	StopSignal
	StopMate
)

// Result is the outcome of a full iterative-deepening run.
type Result struct {
	BestMove   shogi.Move
	PonderMove shogi.Move
	PV         []shogi.Move
	Depth      int
	SelDepth   int
	Score      int
	Nodes      uint64
	Reason     StopReason
	Elapsed    time.Duration
}

// Searcher drives iterative-deepening alpha-beta search over one position.
// Everything it owns is exclusive to one goroutine: its own position copy,
// move orderer, correction history and NNUE accumulator stack. It shares
// only the transposition table and (by reference) the time manager with its
// sibling workers.
type Searcher struct {
	id int

	pos       *shogi.Position
	orderer   *MoveOrderer
	eval      *nnue.Evaluator
	corr      *CorrectionHistory
	evalCache *EvalCache
	tt        *TranspositionTable

	stopFlag *atomic.Bool
	tm       *TimeManager

	nodes    uint64
	selDepth int
	pv       pvTable

	evalStack [MaxPly]int
}

// NewSearcher builds a worker bound to a shared transposition table, a
// shared stop flag and a shared NNUE network (each Searcher gets its own
// accumulator stack, correction history and 1MB raw-eval cache over that
// network, mirroring the teacher's per-worker PawnTable sizing).
func NewSearcher(id int, tt *TranspositionTable, net *nnue.Network, stopFlag *atomic.Bool) *Searcher {
	return &Searcher{
		id:        id,
		evalCache: NewEvalCache(1),
		orderer:   NewMoveOrderer(),
		eval:      nnue.NewEvaluatorFromNetwork(net),
		corr:      NewCorrectionHistory(),
		tt:        tt,
		stopFlag:  stopFlag,
	}
}

// SeedCorrection replaces this searcher's correction-history table,
// e.g. with a snapshot restored from internal/store at engine start-up.
func (s *Searcher) SeedCorrection(table []int16) { s.corr.Restore(table) }

// CorrectionSnapshot copies this searcher's correction-history table out
// for persistence; call only once the searcher's goroutine has stopped.
func (s *Searcher) CorrectionSnapshot() []int16 { return s.corr.Snapshot() }

// Reset prepares the searcher for a new root position. pos becomes the
// searcher's own copy; the caller must not mutate it concurrently.
func (s *Searcher) Reset(pos *shogi.Position, tm *TimeManager) {
	s.pos = pos
	s.tm = tm
	s.nodes = 0
	s.selDepth = 0
	s.orderer.Clear()
	s.eval.Reset()
}

func (s *Searcher) Nodes() uint64 { return s.nodes }

func (s *Searcher) stopped() bool {
	return s.stopFlag.Load() || (s.tm != nil && s.nodes&1023 == 0 && s.tm.ShouldStop(s.nodes))
}

// Iterate runs iterative deepening from depth 1 to maxDepth (or until the
// time manager or stop flag fires), calling report after every completed
// iteration. The emergency-move fallback guarantees a legal bestmove
// whenever the root position has one, even if no iteration completed.
func (s *Searcher) Iterate(maxDepth int, report func(Info)) Result {
	start := time.Now()
	if maxDepth <= 0 || maxDepth > MaxPly-1 {
		maxDepth = MaxPly - 1
	}

	fallback := s.rootFallbackMove()

	best := Result{BestMove: fallback, Reason: StopCompleted}
	score := 0

	for depth := 1; depth <= maxDepth; depth++ {
		step := s.iterateOneDepth(depth, score, fallback, start, report)
		if step.completed {
			best = step.result
			score = step.score
		} else {
			best.Reason = step.result.Reason
		}
		if step.stopLoop {
			break
		}
	}

	return best
}

// rootFallbackMove returns the first legal move at the root, used as the
// emergency bestmove whenever no iteration completes.
func (s *Searcher) rootFallbackMove() shogi.Move {
	legalAtRoot := s.pos.GenerateLegalMoves()
	if legalAtRoot.Len() > 0 {
		return legalAtRoot.Get(0)
	}
	return shogi.NoMove
}

// depthStep is the outcome of searching a single depth: either it completed
// (result/score populated, safe to use as the next depth's aspiration seed)
// or it was cut short, in which case only the stop reason is meaningful.
type depthStep struct {
	result    Result
	score     int
	completed bool
	stopLoop  bool
}

// iterateOneDepth runs the root search for a single depth, sharing the exact
// stop conditions and bookkeeping Iterate used to apply inline. Both Iterate
// (looping depth 1..maxDepth) and the Lazy-SMP helpers in worker.go (looping
// their own staggered startDepth..maxDepth) call this once per depth, so a
// helper resuming at depth 5 actually searches depth 5 once rather than
// restarting iterative deepening from depth 1 on every outer-loop step.
func (s *Searcher) iterateOneDepth(depth, prevScore int, fallback shogi.Move, start time.Time, report func(Info)) depthStep {
	if s.stopFlag.Load() {
		return depthStep{stopLoop: true, result: Result{Reason: StopSignal}}
	}
	if s.tm != nil && s.tm.ShouldStop(s.nodes) {
		return depthStep{stopLoop: true, result: Result{Reason: StopTime}}
	}

	s.selDepth = 0
	score := s.negamaxRoot(depth, -Infinity, Infinity, prevScore)
	if s.stopped() && depth > 1 {
		return depthStep{stopLoop: true, result: Result{Reason: StopTime}}
	}

	res := Result{BestMove: fallback, Reason: StopCompleted}
	if s.pv.length[0] > 0 {
		res.BestMove = s.pv.moves[0][0]
		res.PV = append([]shogi.Move(nil), s.pv.moves[0][:s.pv.length[0]]...)
	}
	res.Score = score
	res.Depth = depth
	res.SelDepth = s.selDepth
	res.Nodes = s.nodes
	res.Elapsed = time.Since(start)
	if len(res.PV) > 1 {
		res.PonderMove = res.PV[1]
	}

	if report != nil {
		report(Info{
			Depth:    depth,
			SelDepth: s.selDepth,
			Score:    score,
			Nodes:    s.nodes,
			Elapsed:  res.Elapsed,
			PV:       res.PV,
			HashFull: s.tt.HashFull(),
		})
	}

	stopLoop := abs(score) >= MateInMaxPly
	if stopLoop {
		res.Reason = StopMate
	}
	return depthStep{result: res, score: score, completed: true, stopLoop: stopLoop}
}

// negamaxRoot runs the root search. At depth 2 or less it searches the
// given window directly; deeper, it starts from an aspiration window of
// ±25 around the previous iteration's score and, on a fail-low or
// fail-high, widens the failing side and doubles the step before
// searching again.
func (s *Searcher) negamaxRoot(depth, alpha, beta, prevScore int) int {
	if depth <= 2 {
		return s.negamax(depth, 0, alpha, beta, shogi.NoMove, shogi.NoMove)
	}

	window := 25
	a, b := prevScore-window, prevScore+window
	for {
		score := s.negamax(depth, 0, a, b, shogi.NoMove, shogi.NoMove)
		if s.stopped() {
			return score
		}
		if score <= a {
			a -= window
			window *= 2
			continue
		}
		if score >= b {
			b += window
			window *= 2
			continue
		}
		return score
	}
}

// negamax implements alpha-beta over the negamax formulation: depth
// remaining, ply from the root, the active window, the move that led to
// this node (for countermove-style ordering hooks) and a move excluded from
// consideration (singular-extension verification search).
func (s *Searcher) negamax(depth, ply, alpha, beta int, prevMove, excludedMove shogi.Move) int {
	if ply >= MaxPly-1 {
		return s.eval.Evaluate(s.pos)
	}
	if s.nodes&1023 == 0 && s.stopped() {
		return 0
	}
	s.nodes++
	if ply > s.selDepth {
		s.selDepth = ply
	}
	s.pv.length[ply] = ply

	if ply > 0 {
		if rep := s.pos.IsRepetitionDetailed(); rep.Kind != shogi.RepetitionNone {
			if rep.Kind == shogi.RepetitionPerpetualCheckLoss {
				if rep.Loser == s.pos.SideToMove {
					return -MateScore + ply
				}
				return MateScore - ply
			}
			return 0
		}
	}

	pvNode := beta-alpha > 1

	var ttMove shogi.Move
	ttPV := false
	entry, found := s.tt.Probe(s.pos.Hash)
	if found {
		ttMove = entry.Move
		ttPV = entry.PV
		if ttMove != shogi.NoMove && !s.pos.PseudoLegal(ttMove) {
			ttMove = shogi.NoMove
		}
		if excludedMove == shogi.NoMove && int(entry.Depth) >= depth {
			score := AdjustScoreFromTT(int(entry.Score), ply)
			switch entry.Bound {
			case BoundExact:
				if ply == 0 && ttMove != shogi.NoMove {
					s.pv.moves[0][0] = ttMove
					s.pv.length[0] = 1
				}
				return score
			case BoundLower:
				if score > alpha {
					alpha = score
				}
			case BoundUpper:
				if score < beta {
					beta = score
				}
			}
			if alpha >= beta {
				return score
			}
		}
	}

	if depth <= 0 {
		return s.quiescence(ply, alpha, beta)
	}

	inCheck := s.pos.InCheck(s.pos.SideToMove)
	extension := 0
	if inCheck {
		extension = 1
	}

	var staticEval int
	if !inCheck {
		raw, ok := s.evalCache.Probe(s.pos.Hash)
		if !ok {
			raw = s.eval.Evaluate(s.pos)
			s.evalCache.Store(s.pos.Hash, raw)
		}
		staticEval = raw + s.corr.Get(s.pos)
	}
	s.evalStack[ply] = staticEval

	// Null-move pruning: skip a move entirely and see if the opponent still
	// can't beat beta, a cheap signal that this position is already won
	// without searching any real reply. Disabled near the root, in check,
	// and when the side to move has no piece that could make a null move
	// meaningful (bare king endings where zugzwang is likely).
	if !pvNode && !inCheck && depth >= 3 && ply > 0 && excludedMove == shogi.NoMove && hasNonPawnMaterial(s.pos) {
		R := 3 + depth/4
		undo := s.pos.MakeMove(shogi.PassMove)
		nullScore := -s.negamax(depth-1-R, ply+1, -beta, -beta+1, shogi.NoMove, shogi.NoMove)
		s.pos.UnmakeMove(shogi.PassMove, undo)
		if nullScore >= beta {
			s.tt.Store(s.pos.Hash, shogi.NoMove, clampScore(AdjustScoreToTT(nullScore, ply)), clampScore(staticEval), uint8(clampDepth(depth)), BoundLower, StoreFlags{
				NullMove:    true,
				PV:          ttPV,
				TTMoveTried: ttMove != shogi.NoMove,
				MateThreat:  abs(nullScore) >= MateInMaxPly,
			})
			return nullScore
		}
	}

	// Singular extension: if the TT move is so far ahead of every
	// alternative that a reduced-depth search excluding it still fails low
	// against a tightened beta, it is probably forced; extend it a ply
	// instead of trusting ordinary depth to find what makes it special.
	singular := 0
	if depth >= 6 && ttMove != shogi.NoMove && excludedMove == shogi.NoMove && found &&
		int(entry.Depth) >= depth-3 && (entry.Bound == BoundLower || entry.Bound == BoundExact) {
		ttValue := AdjustScoreFromTT(int(entry.Score), ply)
		singularBeta := ttValue - depth
		singularDepth := (depth - 1) / 2
		singularScore := s.negamax(singularDepth, ply, singularBeta-1, singularBeta, prevMove, ttMove)
		if singularScore < singularBeta {
			singular = 1
		}
	}

	moves := s.pos.GenerateLegalMoves()
	if moves.Len() == 0 {
		if inCheck {
			return -MateScore + ply
		}
		return 0
	}

	scores := s.orderer.ScoreMoves(s.pos, &moves, ply, ttMove)

	bestScore := -Infinity
	bestMove := shogi.NoMove
	bound := BoundUpper
	searched := 0

	for i := 0; i < moves.Len(); i++ {
		PickMove(&moves, scores, i)
		move := moves.Get(i)
		if move == excludedMove {
			continue
		}

		isCapture := s.pos.IsCapture(move)
		isPromo := move.Promote()

		if depth <= 5 && !inCheck && searched > 0 && !isCapture && !isPromo && move != ttMove {
			futilityMargin := 100 + 90*depth
			if staticEval+futilityMargin <= alpha {
				continue
			}
		}

		newDepth := depth - 1 + extension
		if move == ttMove && singular != 0 {
			newDepth++
		}

		s.eval.Push()
		captured := s.pos.Board[move.To()]
		undo := s.pos.MakeMove(move)
		s.eval.Update(s.pos, move, captured)
		searched++

		var score int
		reduction := 0
		if searched > 3 && depth >= 3 && !inCheck && !isCapture && !isPromo {
			reduction = 1
			if searched > 8 {
				reduction = 2
			}
		}

		if searched == 1 {
			score = -s.negamax(newDepth, ply+1, -beta, -alpha, move, shogi.NoMove)
		} else {
			searchDepth := newDepth - reduction
			if searchDepth < 1 {
				searchDepth = 1
			}
			score = -s.negamax(searchDepth, ply+1, -alpha-1, -alpha, move, shogi.NoMove)
			if score > alpha && (reduction > 0 || (pvNode && score < beta)) {
				score = -s.negamax(newDepth, ply+1, -beta, -alpha, move, shogi.NoMove)
			}
		}

		s.pos.UnmakeMove(move, undo)
		s.eval.Pop()

		if s.stopFlag.Load() {
			return 0
		}

		if score > bestScore {
			bestScore = score
			bestMove = move
			if score > alpha {
				alpha = score
				bound = BoundExact
				s.pv.moves[ply][ply] = move
				copy(s.pv.moves[ply][ply+1:s.pv.length[ply+1]], s.pv.moves[ply+1][ply+1:s.pv.length[ply+1]])
				s.pv.length[ply] = s.pv.length[ply+1]
			}
		}

		if score >= beta {
			s.tt.Store(s.pos.Hash, move, clampScore(AdjustScoreToTT(score, ply)), clampScore(staticEval), uint8(clampDepth(depth)), BoundLower, StoreFlags{
				Singular:    singular != 0,
				PV:          ttPV,
				TTMoveTried: ttMove != shogi.NoMove,
				MateThreat:  abs(score) >= MateInMaxPly,
			})
			if !isCapture {
				s.orderer.UpdateKillers(move, ply)
				s.orderer.UpdateHistory(move, depth, true)
			}
			return score
		}
	}

	if bound == BoundExact && !inCheck && depth >= 2 {
		s.corr.Update(s.pos, bestScore, staticEval, depth)
	}
	s.tt.Store(s.pos.Hash, bestMove, clampScore(AdjustScoreToTT(bestScore, ply)), clampScore(staticEval), uint8(clampDepth(depth)), bound, StoreFlags{
		Singular:    singular != 0,
		PV:          bound == BoundExact,
		TTMoveTried: ttMove != shogi.NoMove,
		MateThreat:  abs(bestScore) >= MateInMaxPly,
	})
	return bestScore
}

// quiescence extends search through captures (and, when in check, every
// evasion) to avoid misjudging a position mid-exchange. qPly bounds its own
// recursion separately from the main search's ply, since a long capture
// sequence should not be able to overrun MaxPly.
func (s *Searcher) quiescence(ply, alpha, beta int) int {
	return s.quiescenceAt(ply, 0, alpha, beta)
}

const maxQuiescencePly = 32

func (s *Searcher) quiescenceAt(ply, qPly, alpha, beta int) int {
	if ply >= MaxPly || qPly > maxQuiescencePly {
		return s.eval.Evaluate(s.pos)
	}
	if s.stopFlag.Load() {
		return 0
	}
	s.nodes++
	if ply > s.selDepth {
		s.selDepth = ply
	}

	inCheck := s.pos.InCheck(s.pos.SideToMove)
	var bestValue int
	var standPat int
	if inCheck {
		bestValue = -MateScore + ply
	} else {
		var ok bool
		standPat, ok = s.evalCache.Probe(s.pos.Hash)
		if !ok {
			standPat = s.eval.Evaluate(s.pos)
			s.evalCache.Store(s.pos.Hash, standPat)
		}
		bestValue = standPat
		if standPat >= beta {
			return standPat
		}
		if standPat > alpha {
			alpha = standPat
		}
	}

	var moves shogi.MoveList
	if inCheck {
		moves = s.pos.GenerateLegalMoves()
	} else {
		moves = s.pos.GenerateCaptures()
	}
	scores := s.orderer.ScoreMoves(s.pos, &moves, ply, shogi.NoMove)

	for i := 0; i < moves.Len(); i++ {
		PickMove(&moves, scores, i)
		move := moves.Get(i)

		if !inCheck {
			victim := s.pos.Board[move.To()]
			if standPat+victim.Value()+150 < alpha && !move.Promote() {
				continue
			}
		}

		s.eval.Push()
		captured := s.pos.Board[move.To()]
		undo := s.pos.MakeMove(move)
		s.eval.Update(s.pos, move, captured)

		score := -s.quiescenceAt(ply+1, qPly+1, -beta, -alpha)

		s.pos.UnmakeMove(move, undo)
		s.eval.Pop()

		if score > bestValue {
			bestValue = score
			if score > alpha {
				alpha = score
				if score >= beta {
					break
				}
			}
		}
	}

	if inCheck && bestValue == -MateScore+ply && moves.Len() == 0 {
		return -MateScore + ply
	}
	return bestValue
}

// hasNonPawnMaterial reports whether the side to move holds any piece
// besides pawns and the king, the usual null-move-pruning safety gate
// against zugzwang-prone bare-king-and-pawns endings.
func hasNonPawnMaterial(pos *shogi.Position) bool {
	c := pos.SideToMove
	for sq := shogi.Square(0); sq < shogi.NumSquares; sq++ {
		p := pos.Board[sq]
		if p.IsEmpty() || p.Color != c {
			continue
		}
		if p.Type != shogi.Pawn && p.Type != shogi.King {
			return true
		}
	}
	for pt := shogi.PieceType(0); pt < shogi.NumHandTypes; pt++ {
		if pt == shogi.Pawn {
			continue
		}
		if pos.Hand[c][pt.HandIndex()] > 0 {
			return true
		}
	}
	return false
}

// clampScore bounds v to the TT's 14-bit signed score/eval field. Scores
// near or past mate magnitude are necessarily lossy through this field;
// that's the accepted clamp, not a bug.
func clampScore(v int) int16 {
	if v > maxTTValue {
		v = maxTTValue
	}
	if v < minTTValue {
		v = minTTValue
	}
	return int16(v)
}

func clampDepth(d int) int {
	if d < 0 {
		return 0
	}
	if d > int(dataDepthMask) {
		return int(dataDepthMask)
	}
	return d
}
