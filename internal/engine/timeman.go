package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/komadai/shogi-engine/internal/shogi"
)

// GamePhase coarsely buckets a position for time-allocation purposes.
type GamePhase int

const (
	Opening GamePhase = iota
	MiddleGame
	EndGame
)

// TimeControlKind tags which fields of TimeControl are meaningful. Go has
// no sum types, so the active variant is carried alongside every field
// that variant needs; unused fields for the active Kind are simply zero.
type TimeControlKind int

const (
	Fischer TimeControlKind = iota
	Byoyomi
	FixedTime
	FixedNodes
	Infinite
	Ponder
)

// TimeControl is the immutable time-control configuration a search starts
// with (and, after a ponder hit, the one it switches to).
type TimeControl struct {
	Kind TimeControlKind

	// Fischer
	WhiteTime, BlackTime time.Duration
	Increment            time.Duration

	// Byoyomi
	MainTime  time.Duration
	ByoyomiMS time.Duration
	Periods   int

	// FixedTime
	MsPerMove time.Duration

	// FixedNodes
	NodeLimit uint64
}

// TimeParameters are the tunable constants governing soft/hard limit
// derivation and the critical-time thresholds; a zero value is invalid,
// use DefaultTimeParameters.
type TimeParameters struct {
	Overhead        time.Duration
	PVBaseThreshold time.Duration
	PVDepthSlope    time.Duration
	CriticalFischer time.Duration
	CriticalByoyomi time.Duration
}

func DefaultTimeParameters() TimeParameters {
	return TimeParameters{
		Overhead:        30 * time.Millisecond,
		PVBaseThreshold: 80 * time.Millisecond,
		PVDepthSlope:    5 * time.Millisecond,
		CriticalFischer: 300 * time.Millisecond,
		CriticalByoyomi: 100 * time.Millisecond,
	}
}

// SearchLimits bundles a TimeControl with the other USI "go" parameters
// that interact with time allocation.
type SearchLimits struct {
	TimeControl TimeControl
	MovesToGo   int // 0 = unspecified (sudden death)
	Depth       int // 0 = unspecified
	Nodes       uint64
	Params      *TimeParameters // nil = DefaultTimeParameters()
}

func (l SearchLimits) params() TimeParameters {
	if l.Params != nil {
		return *l.Params
	}
	return DefaultTimeParameters()
}

// TimeStateKind tags which field of TimeState the GUI supplied, mirroring
// the "go" command's own ambiguity between main-time and byoyomi reporting.
type TimeStateKind int

const (
	StateNonByoyomi TimeStateKind = iota
	StateMain
	StateByoyomi
)

// TimeState is what update_after_move needs from the GUI's post-move time
// report to drive the byoyomi state machine; NonByoyomi is used for every
// other time control.
type TimeState struct {
	Kind         TimeStateKind
	MainTimeLeft time.Duration
}

// ByoyomiInfo snapshots the runtime byoyomi state for USI info output.
type ByoyomiInfo struct {
	InByoyomi       bool
	PeriodsLeft     int
	CurrentPeriodMS time.Duration
}

// TimeInfo snapshots everything a "go"-driven search loop or USI info
// line needs to report about time usage.
type TimeInfo struct {
	Elapsed      time.Duration
	SoftLimit    time.Duration
	HardLimit    time.Duration
	NodesSearched uint64
	TimePressure float64
	Byoyomi      *ByoyomiInfo // nil unless the active control is Byoyomi
}

// infiniteDuration stands in for "no limit"; used instead of a sentinel
// like math.MaxInt64 directly so hard-limit comparisons never overflow
// when added to elapsed time.
const infiniteDuration = time.Duration(1<<62 - 1)

// defaultByoyomiFallback is the safety-net time budget used when a "go"
// command's TimeControl is entirely unspecified (the all-zero value).
const defaultByoyomiFallback = 1000 * time.Millisecond

// calculateTimeAllocation derives soft/hard search-time budgets from a
// time control. The Fischer branch keeps the teacher's moves-to-go
// heuristic (sudden-death estimate tightening as the game progresses,
// with an early-move reduction); the remaining branches are grounded
// directly on the byoyomi/fixed-time/fixed-nodes semantics the original
// time manager's should_stop/update_after_move implement.
func calculateTimeAllocation(tc TimeControl, side shogi.Color, ply int, movesToGo int, phase GamePhase, params TimeParameters) (soft, hard time.Duration) {
	if tc == (TimeControl{}) {
		// A completely unspecified "go" (no time fields, Kind defaulting to
		// its zero value Fischer) carries no usable clock information.
		// Rather than let the Fischer branch's floor clamps silently hand
		// back a near-instant 10ms/50ms budget, fall back to a fixed
		// byoyomi period so the engine still searches for a reasonable,
		// predictable slice of time.
		tc = TimeControl{Kind: Byoyomi, ByoyomiMS: defaultByoyomiFallback}
	}

	switch tc.Kind {
	case FixedTime:
		budget := tc.MsPerMove - params.Overhead
		if budget < 10*time.Millisecond {
			budget = 10 * time.Millisecond
		}
		return budget, budget

	case FixedNodes, Infinite, Ponder:
		return infiniteDuration, infiniteDuration

	case Byoyomi:
		// While main time remains, the soft limit is a slice of main time
		// plus most of one byoyomi period and the hard limit adds one more
		// period on top. With no main time left, soft and hard are both
		// the byoyomi period minus the move overhead, so the move lands
		// inside the current period.
		if tc.MainTime > 0 {
			mtg := movesToGo
			if mtg == 0 {
				mtg = fischerMovesToGo(ply, phase)
			}
			soft = tc.MainTime/time.Duration(mtg) + tc.ByoyomiMS*9/10
			hard = soft + tc.ByoyomiMS
			return soft, hard
		}
		budget := tc.ByoyomiMS - params.Overhead
		if budget < 10*time.Millisecond {
			budget = 10 * time.Millisecond
		}
		return budget, budget

	default: // Fischer
		timeLeft := tc.BlackTime
		if side == shogi.Black {
			timeLeft = tc.BlackTime
		} else {
			timeLeft = tc.WhiteTime
		}
		mtg := movesToGo
		if mtg == 0 {
			mtg = fischerMovesToGo(ply, phase)
		}

		base := timeLeft/time.Duration(mtg) + tc.Increment*9/10
		soft = base
		if ply < 8 {
			soft = base * 85 / 100
		}

		maxFromSoft := soft * 5
		maxFromRemaining := timeLeft * 8 / 10
		hard = maxFromSoft
		if maxFromRemaining < maxFromSoft {
			hard = maxFromRemaining
		}
		if safety := timeLeft * 95 / 100; hard > safety {
			hard = safety
		}

		if soft < 10*time.Millisecond {
			soft = 10 * time.Millisecond
		}
		if hard < 50*time.Millisecond {
			hard = 50 * time.Millisecond
		}
		return soft, hard
	}
}

// fischerMovesToGo estimates remaining moves for sudden-death time
// controls: more expected early, fewer as the game (and byoyomi's main
// time) winds down. EndGame tightens the estimate further since tactical
// sharpness there is usually worth more seconds per move.
func fischerMovesToGo(ply int, phase GamePhase) int {
	mtg := 50 - ply/4
	if phase == EndGame {
		mtg -= 5
	}
	if mtg < 10 {
		mtg = 10
	}
	if mtg > 50 {
		mtg = 50
	}
	return mtg
}

type byoyomiState struct {
	periodsLeft     int
	currentPeriod   time.Duration
	inByoyomi       bool
}

// TimeManager coordinates time-related decisions for one search, shared
// read-mostly by every Lazy-SMP worker via should_stop. Limits, node
// counts and flags are atomics; the active time control (RWMutex), the
// start instant, the byoyomi state and the pending ponder limits are
// mutex-guarded and only change on rare events (ponder hit, a GUI time
// report), so those locks are held only briefly.
// Lock ordering when both are needed: activeTimeControl (RWMutex) before
// byoyomiState (Mutex), matching the original's documented order.
type TimeManager struct {
	sideToMove Color
	startPly   int
	params     TimeParameters
	phase      GamePhase

	activeTimeControl sync.RWMutex
	timeControl       TimeControl

	startTimeMu sync.Mutex
	startTime   time.Time

	softLimit atomic.Int64 // nanoseconds
	hardLimit atomic.Int64

	nodesSearched atomic.Uint64
	stopFlag      atomic.Bool

	lastPVChange atomic.Int64 // nanoseconds since start
	pvThreshold  atomic.Int64

	byoyomiMu sync.Mutex
	byoyomi   byoyomiState

	pendingMu     sync.Mutex
	pendingLimits *SearchLimits

	isPonder atomic.Bool
}

// Color is a local alias so this file only depends on shogi for the side
// indicator, not the whole board package, keeping time management usable
// from a lightweight USI front end that hasn't built a Position yet.
type Color = shogi.Color

func newByoyomiState(tc TimeControl) byoyomiState {
	if tc.Kind != Byoyomi {
		return byoyomiState{}
	}
	return byoyomiState{
		periodsLeft:   tc.Periods,
		currentPeriod: tc.ByoyomiMS,
		inByoyomi:     tc.MainTime == 0,
	}
}

// NewTimeManager creates a time manager for a normal (non-ponder) search.
func NewTimeManager(limits SearchLimits, side shogi.Color, ply int, phase GamePhase) *TimeManager {
	params := limits.params()
	soft, hard := calculateTimeAllocation(limits.TimeControl, side, ply, limits.MovesToGo, phase, params)

	tm := &TimeManager{
		sideToMove:  side,
		startPly:    ply,
		params:      params,
		phase:       phase,
		timeControl: limits.TimeControl,
		byoyomi:     newByoyomiState(limits.TimeControl),
	}
	tm.startTime = time.Now()
	tm.softLimit.Store(int64(soft))
	tm.hardLimit.Store(int64(hard))
	tm.pvThreshold.Store(int64(params.PVBaseThreshold))
	tm.isPonder.Store(limits.TimeControl.Kind == Ponder)
	return tm
}

// NewPonderTimeManager creates a time manager in ponder mode, remembering
// pendingLimits as the real time control to switch to on PonderHit.
func NewPonderTimeManager(pendingLimits SearchLimits, side shogi.Color, ply int, phase GamePhase) *TimeManager {
	ponderLimits := SearchLimits{
		TimeControl: TimeControl{Kind: Ponder},
		MovesToGo:   pendingLimits.MovesToGo,
		Depth:       pendingLimits.Depth,
		Nodes:       pendingLimits.Nodes,
		Params:      pendingLimits.Params,
	}
	tm := NewTimeManager(ponderLimits, side, ply, phase)

	tm.pendingMu.Lock()
	pl := pendingLimits
	tm.pendingLimits = &pl
	tm.pendingMu.Unlock()

	if pendingLimits.TimeControl.Kind == Byoyomi {
		tm.byoyomiMu.Lock()
		tm.byoyomi = newByoyomiState(pendingLimits.TimeControl)
		tm.byoyomiMu.Unlock()
	}
	return tm
}

func (tm *TimeManager) IsPondering() bool { return tm.isPonder.Load() }

func (tm *TimeManager) activeControl() TimeControl {
	tm.activeTimeControl.RLock()
	defer tm.activeTimeControl.RUnlock()
	return tm.timeControl
}

// ShouldStop is the hot-path check every search worker calls between
// nodes; force-stop and ponder short-circuit before anything else is
// examined, then node/time/stability/emergency checks run in increasing
// cost order.
func (tm *TimeManager) ShouldStop(currentNodes uint64) bool {
	if tm.stopFlag.Load() {
		return true
	}
	if tm.IsPondering() {
		return false
	}

	for {
		prev := tm.nodesSearched.Load()
		if currentNodes <= prev {
			break
		}
		if tm.nodesSearched.CompareAndSwap(prev, currentNodes) {
			break
		}
	}

	tc := tm.activeControl()
	if tc.Kind == FixedNodes && currentNodes >= tc.NodeLimit {
		return true
	}

	elapsed := tm.Elapsed()
	hard := time.Duration(tm.hardLimit.Load())
	if elapsed >= hard {
		return true
	}

	soft := time.Duration(tm.softLimit.Load())
	if elapsed >= soft && tm.isPVStable() {
		return true
	}

	return tm.isTimeCritical()
}

// OnPVChange resets the stability clock whenever the best move changes,
// widening the stability threshold at greater depths since a PV flip
// late in a deep search is more likely to matter.
func (tm *TimeManager) OnPVChange(depth int) {
	tm.lastPVChange.Store(int64(tm.Elapsed()))
	threshold := tm.params.PVBaseThreshold + time.Duration(depth)*tm.params.PVDepthSlope
	tm.pvThreshold.Store(int64(threshold))
}

// ForceStop requests immediate termination, e.g. on a USI "stop" command.
func (tm *TimeManager) ForceStop() { tm.stopFlag.Store(true) }

func (tm *TimeManager) Elapsed() time.Duration {
	tm.startTimeMu.Lock()
	defer tm.startTimeMu.Unlock()
	return time.Since(tm.startTime)
}

// UpdateAfterMove feeds the GUI's post-move time report into the byoyomi
// state machine; every other time control is updated by the GUI itself
// via the next "go" command, so this is a no-op for them.
func (tm *TimeManager) UpdateAfterMove(timeSpent time.Duration, state TimeState) {
	tc := tm.activeControl()
	if tc.Kind != Byoyomi {
		return
	}
	switch state.Kind {
	case StateMain, StateByoyomi:
		tm.handleByoyomiUpdate(timeSpent, &state.MainTimeLeft, tc.ByoyomiMS)
	default:
		// NonByoyomi reported against a Byoyomi control: nothing to do,
		// the caller gave us no information to act on.
	}
}

// handleByoyomiUpdate runs the main-time-to-byoyomi transition (recursing
// at most one level deep to fold an overspend on the transition move into
// the byoyomi period-consumption branch) and the multi-period consumption
// loop for a move already fully inside byoyomi.
func (tm *TimeManager) handleByoyomiUpdate(timeSpent time.Duration, mainLeft *time.Duration, byoyomiMS time.Duration) {
	tm.byoyomiMu.Lock()

	if !tm.byoyomi.inByoyomi {
		if mainLeft != nil && (*mainLeft == 0 || timeSpent >= *mainLeft) {
			tm.byoyomi.inByoyomi = true
			if timeSpent > *mainLeft {
				overspent := timeSpent - *mainLeft
				tm.byoyomiMu.Unlock()
				tm.handleByoyomiUpdate(overspent, nil, byoyomiMS)
				return
			}
		}
		tm.byoyomiMu.Unlock()
		return
	}

	remaining := timeSpent
	current := tm.byoyomi.currentPeriod
	for remaining >= current && tm.byoyomi.periodsLeft > 0 {
		remaining -= current
		tm.byoyomi.periodsLeft--
		current = byoyomiMS
	}

	if tm.byoyomi.periodsLeft == 0 {
		tm.byoyomi.currentPeriod = 0
		tm.byoyomiMu.Unlock()
		tm.stopFlag.Store(true)
		return
	}
	tm.byoyomi.currentPeriod = current - remaining
	tm.byoyomiMu.Unlock()
}

// GetTimeInfo snapshots the manager's state for USI "info" output.
func (tm *TimeManager) GetTimeInfo() TimeInfo {
	elapsed := tm.Elapsed()
	hard := time.Duration(tm.hardLimit.Load())

	pressure := 0.0
	if hard != infiniteDuration && hard > 0 {
		pressure = float64(elapsed) / float64(hard)
		if pressure > 1.0 {
			pressure = 1.0
		}
	}

	var byoyomiInfo *ByoyomiInfo
	tm.activeTimeControl.RLock()
	tc := tm.timeControl
	if tc.Kind == Byoyomi {
		tm.byoyomiMu.Lock()
		byoyomiInfo = &ByoyomiInfo{
			InByoyomi:       tm.byoyomi.inByoyomi,
			PeriodsLeft:     tm.byoyomi.periodsLeft,
			CurrentPeriodMS: tm.byoyomi.currentPeriod,
		}
		tm.byoyomiMu.Unlock()
	}
	tm.activeTimeControl.RUnlock()

	return TimeInfo{
		Elapsed:       elapsed,
		SoftLimit:     time.Duration(tm.softLimit.Load()),
		HardLimit:     hard,
		NodesSearched: tm.nodesSearched.Load(),
		TimePressure:  pressure,
		Byoyomi:       byoyomiInfo,
	}
}

// PonderHit converts a pondering search into a real one: the actual time
// control (from newLimits if supplied, else the one remembered at
// NewPonderTimeManager time) replaces the placeholder Ponder control, the
// soft/hard limits are recomputed and reduced by time already spent
// pondering, and the search clock restarts so elapsed time doesn't
// double-count the ponder period.
func (tm *TimeManager) PonderHit(newLimits *SearchLimits, timeAlreadySpent time.Duration) {
	if !tm.IsPondering() {
		return
	}

	var actual TimeControl
	var movesToGo int
	var params TimeParameters

	if newLimits != nil {
		actual = newLimits.TimeControl
		movesToGo = newLimits.MovesToGo
		params = newLimits.params()
	} else {
		tm.pendingMu.Lock()
		pending := tm.pendingLimits
		tm.pendingMu.Unlock()
		if pending == nil {
			tm.softLimit.Store(int64(100 * time.Millisecond))
			tm.hardLimit.Store(int64(200 * time.Millisecond))
			tm.isPonder.Store(false)
			return
		}
		actual = pending.TimeControl
		movesToGo = pending.MovesToGo
		params = pending.params()
	}

	soft, hard := calculateTimeAllocation(actual, tm.sideToMove, tm.startPly, movesToGo, tm.phase, params)

	adjustedSoft := soft - timeAlreadySpent
	if adjustedSoft < 100*time.Millisecond {
		adjustedSoft = 100 * time.Millisecond
	}
	adjustedHard := hard - timeAlreadySpent
	if adjustedHard < 200*time.Millisecond {
		adjustedHard = 200 * time.Millisecond
	}
	if adjustedSoft >= adjustedHard {
		adjustedSoft = adjustedHard / 2
	}

	tm.softLimit.Store(int64(adjustedSoft))
	tm.hardLimit.Store(int64(adjustedHard))

	tm.activeTimeControl.Lock()
	tm.timeControl = actual
	tm.activeTimeControl.Unlock()

	if actual.Kind == Byoyomi {
		tm.byoyomiMu.Lock()
		tm.byoyomi = newByoyomiState(actual)
		tm.byoyomiMu.Unlock()
	}

	tm.startTimeMu.Lock()
	tm.startTime = time.Now()
	tm.startTimeMu.Unlock()

	tm.isPonder.Store(false)
}

// GetByoyomiState reports the runtime byoyomi state, if the active
// control is Byoyomi.
func (tm *TimeManager) GetByoyomiState() (ByoyomiInfo, bool) {
	tc := tm.activeControl()
	if tc.Kind != Byoyomi {
		return ByoyomiInfo{}, false
	}
	tm.byoyomiMu.Lock()
	defer tm.byoyomiMu.Unlock()
	return ByoyomiInfo{
		InByoyomi:       tm.byoyomi.inByoyomi,
		PeriodsLeft:     tm.byoyomi.periodsLeft,
		CurrentPeriodMS: tm.byoyomi.currentPeriod,
	}, true
}

func (tm *TimeManager) isPVStable() bool {
	now := int64(tm.Elapsed())
	lastChange := tm.lastPVChange.Load()
	threshold := tm.pvThreshold.Load()
	return now-lastChange > threshold
}

func (tm *TimeManager) isTimeCritical() bool {
	tc := tm.activeControl()
	switch tc.Kind {
	case Fischer:
		remain := tc.WhiteTime
		if tm.sideToMove == shogi.Black {
			remain = tc.BlackTime
		}
		return remain < tm.params.CriticalFischer && tc.Increment == 0
	case Byoyomi:
		tm.byoyomiMu.Lock()
		defer tm.byoyomiMu.Unlock()
		return tm.byoyomi.inByoyomi && tm.byoyomi.currentPeriod < tm.params.CriticalByoyomi
	case FixedTime:
		elapsed := tm.Elapsed()
		hard := time.Duration(tm.hardLimit.Load())
		return elapsed > hard*11/10
	default:
		return false
	}
}
