// Package usi implements the USI (Universal Shogi Interface) line protocol:
// the stdin/stdout command loop a GUI drives an engine process through.
package usi

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"runtime/pprof"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/komadai/shogi-engine/internal/engine"
	"github.com/komadai/shogi-engine/internal/shogi"
)

// USI drives one engine process's stdin/stdout conversation.
type USI struct {
	eng      *engine.Engine
	position *shogi.Position

	evalFile string

	mu         sync.Mutex
	searching  bool
	searchDone chan struct{}
	cancel     context.CancelFunc
	tm         *engine.TimeManager

	profileFile *os.File

	out *bufio.Writer
}

// New creates a USI protocol handler around an already-constructed engine.
func New(eng *engine.Engine) *USI {
	return &USI{
		eng:      eng,
		position: shogi.NewGame(),
		out:      bufio.NewWriter(os.Stdout),
	}
}

// Run reads commands from stdin until "quit" or EOF, blocking the caller.
func (u *USI) Run() {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		cmd, args := fields[0], fields[1:]

		switch cmd {
		case "usi":
			u.handleUSI()
		case "isready":
			u.handleIsReady()
		case "usinewgame":
			u.handleNewGame()
		case "position":
			u.handlePosition(args)
		case "go":
			u.handleGo(args)
		case "stop":
			u.handleStop()
		case "ponderhit":
			u.handlePonderHit()
		case "gameover":
			u.handleGameOver(args)
		case "setoption":
			u.handleSetOption(args)
		case "quit":
			u.handleQuit()
			return
		default:
			u.infoString(fmt.Sprintf("unrecognized command %q", cmd))
		}
	}
}

func (u *USI) println(s string) {
	fmt.Fprintln(u.out, s)
	u.out.Flush()
}

func (u *USI) infoString(s string) { u.println("info string " + s) }

func (u *USI) handleUSI() {
	u.println("id name Komadai")
	u.println("id author Komadai Contributors")
	u.println("option name USI_Hash type spin default 64 min 1 max 8192")
	u.println("option name Threads type spin default 1 min 1 max 256")
	u.println("option name USI_Ponder type check default true")
	u.println("option name EngineType type combo default nnue var nnue")
	u.println("option name EvalFile type string default <empty>")
	u.println("option name ClearHash type button")
	u.println("option name OverheadMs type spin default 30 min 0 max 5000")
	u.println("option name MinThinkMs type spin default 0 min 0 max 5000")
	u.println("option name ByoyomiEarlyFinishRatio type spin default 90 min 1 max 100")
	u.println("option name PVStabilityBase type spin default 80 min 0 max 2000")
	u.println("option name PVStabilitySlope type spin default 5 min 0 max 200")
	u.println("option name SlowMover type spin default 100 min 10 max 1000")
	u.println("option name MaxTimeRatioPct type spin default 90 min 1 max 100")
	u.println("option name MateEarlyStop type check default true")
	u.println("option name PersistDir type string default <empty>")
	u.println("usiok")
}

func (u *USI) handleIsReady() {
	shogi.Init()
	u.println("readyok")
}

func (u *USI) handleNewGame() {
	u.eng.ClearHash()
	u.position = shogi.NewGame()
}

// handlePosition parses:
//
//	position startpos [moves m...]
//	position sfen <sfen fields...> [moves m...]
func (u *USI) handlePosition(args []string) {
	if len(args) == 0 {
		return
	}

	var pos *shogi.Position
	var moveStart int

	switch args[0] {
	case "startpos":
		pos = shogi.NewGame()
		moveStart = 1
	case "sfen":
		end := len(args)
		for i := 1; i < len(args); i++ {
			if args[i] == "moves" {
				end = i
				break
			}
		}
		if end <= 1 {
			u.infoString("malformed position sfen command")
			return
		}
		p, err := shogi.ParseSFEN(strings.Join(args[1:end], " "))
		if err != nil {
			u.infoString("invalid sfen: " + err.Error())
			return
		}
		pos = p
		moveStart = end
	default:
		u.infoString("malformed position command")
		return
	}

	for moveStart < len(args) && args[moveStart] != "moves" {
		moveStart++
	}
	if moveStart < len(args) {
		moveStart++ // skip "moves" itself
	}

	for ; moveStart < len(args); moveStart++ {
		m, err := shogi.ParseMove(args[moveStart])
		if err != nil {
			u.infoString("invalid move in position command: " + args[moveStart])
			return
		}
		legal := pos.GenerateLegalMoves()
		if !legal.Contains(m) {
			u.infoString("illegal move in position command: " + args[moveStart])
			return
		}
		pos.MakeMove(m)
	}

	u.mu.Lock()
	u.position = pos
	u.mu.Unlock()
}

// goOptions holds the parsed "go" command arguments before they are folded
// into an engine.SearchLimits.
type goOptions struct {
	depth               int
	nodes               uint64
	moveTime            time.Duration
	infinite, ponder    bool
	btime, wtime        time.Duration
	binc, winc          time.Duration
	byoyomi             time.Duration
	movesToGo           int
}

func parseGoOptions(args []string) goOptions {
	var o goOptions
	for i := 0; i < len(args); i++ {
		next := func() string {
			if i+1 < len(args) {
				i++
				return args[i]
			}
			return "0"
		}
		switch args[i] {
		case "depth":
			o.depth, _ = strconv.Atoi(next())
		case "nodes":
			n, _ := strconv.ParseUint(next(), 10, 64)
			o.nodes = n
		case "movetime":
			ms, _ := strconv.Atoi(next())
			o.moveTime = time.Duration(ms) * time.Millisecond
		case "infinite":
			o.infinite = true
		case "ponder":
			o.ponder = true
		case "btime":
			ms, _ := strconv.Atoi(next())
			o.btime = time.Duration(ms) * time.Millisecond
		case "wtime":
			ms, _ := strconv.Atoi(next())
			o.wtime = time.Duration(ms) * time.Millisecond
		case "binc":
			ms, _ := strconv.Atoi(next())
			o.binc = time.Duration(ms) * time.Millisecond
		case "winc":
			ms, _ := strconv.Atoi(next())
			o.winc = time.Duration(ms) * time.Millisecond
		case "byoyomi":
			ms, _ := strconv.Atoi(next())
			o.byoyomi = time.Duration(ms) * time.Millisecond
		case "movestogo":
			o.movesToGo, _ = strconv.Atoi(next())
		}
	}
	return o
}

// limitsFor converts parsed "go" options plus the side to move into a
// SearchLimits, picking the TimeControl variant the GUI actually supplied.
func limitsFor(o goOptions, side shogi.Color) engine.SearchLimits {
	limits := engine.SearchLimits{Depth: o.depth, Nodes: o.nodes, MovesToGo: o.movesToGo}

	switch {
	case o.infinite:
		limits.TimeControl = engine.TimeControl{Kind: engine.Infinite}
	case o.nodes > 0 && o.moveTime == 0 && o.btime == 0 && o.wtime == 0 && o.byoyomi == 0:
		limits.TimeControl = engine.TimeControl{Kind: engine.FixedNodes, NodeLimit: o.nodes}
	case o.moveTime > 0:
		limits.TimeControl = engine.TimeControl{Kind: engine.FixedTime, MsPerMove: o.moveTime}
	case o.byoyomi > 0:
		main, inc := o.btime, o.binc
		if side == shogi.White {
			main, inc = o.wtime, o.winc
		}
		_ = inc
		limits.TimeControl = engine.TimeControl{Kind: engine.Byoyomi, MainTime: main, ByoyomiMS: o.byoyomi, Periods: 1}
	case o.btime > 0 || o.wtime > 0:
		limits.TimeControl = engine.TimeControl{
			Kind:       engine.Fischer,
			WhiteTime:  o.wtime,
			BlackTime:  o.btime,
			Increment:  pick(side, o.winc, o.binc),
		}
	default:
		limits.TimeControl = engine.TimeControl{Kind: engine.Infinite}
	}
	return limits
}

func pick(side shogi.Color, whiteVal, blackVal time.Duration) time.Duration {
	if side == shogi.White {
		return whiteVal
	}
	return blackVal
}

func (u *USI) handleGo(args []string) {
	o := parseGoOptions(args)

	u.mu.Lock()
	if u.searching {
		u.mu.Unlock()
		u.infoString("go received while already searching, ignored")
		return
	}
	pos := u.position
	u.mu.Unlock()

	limits := limitsFor(o, pos.SideToMove)

	var tm *engine.TimeManager
	if o.ponder {
		tm = engine.NewPonderTimeManager(limits, pos.SideToMove, pos.Ply, engine.ClassifyPhase(pos))
	} else {
		tm = engine.NewTimeManagerFor(pos, limits)
	}
	maxDepth := engine.MaxSearchDepth(limits)

	ctx, cancel := context.WithCancel(context.Background())

	u.mu.Lock()
	u.searching = true
	u.searchDone = make(chan struct{})
	u.cancel = cancel
	u.tm = tm
	u.mu.Unlock()

	posCopy := *pos
	posCopy.History = append([]uint64(nil), pos.History...)
	posCopy.MoverHistory = append([]shogi.Color(nil), pos.MoverHistory...)
	posCopy.CheckHistory = append([]bool(nil), pos.CheckHistory...)

	go func() {
		defer close(u.searchDone)

		result := u.eng.Search(ctx, &posCopy, tm, maxDepth, u.sendInfo)

		u.mu.Lock()
		u.searching = false
		u.mu.Unlock()

		if tm.IsPondering() {
			// A stop arriving during ponder means the GUI abandoned this
			// line without ever calling ponderhit; USI says no bestmove
			// is emitted for the ponder phase itself in that case either.
			return
		}

		u.emitBestMove(pos, result)
	}()
}

func (u *USI) emitBestMove(rootPos *shogi.Position, result engine.Result) {
	if result.BestMove == shogi.NoMove {
		legal := rootPos.GenerateLegalMoves()
		if legal.Len() == 0 {
			u.println("bestmove resign")
			return
		}
		result.BestMove = legal.Get(0)
	} else if !rootPos.PseudoLegal(result.BestMove) {
		u.infoString("search returned an illegal move, falling back")
		legal := rootPos.GenerateLegalMoves()
		if legal.Len() == 0 {
			u.println("bestmove resign")
			return
		}
		result.BestMove = legal.Get(0)
	}

	if result.PonderMove != shogi.NoMove {
		u.println(fmt.Sprintf("bestmove %s ponder %s", result.BestMove, result.PonderMove))
	} else {
		u.println("bestmove " + result.BestMove.String())
	}
}

func (u *USI) sendInfo(info engine.Info) {
	var b strings.Builder
	fmt.Fprintf(&b, "info depth %d", info.Depth)
	if info.SelDepth > 0 {
		fmt.Fprintf(&b, " seldepth %d", info.SelDepth)
	}
	switch {
	case info.Score > engine.MateScore-1024:
		fmt.Fprintf(&b, " score mate %d", (engine.MateScore-info.Score+1)/2)
	case info.Score < -engine.MateScore+1024:
		fmt.Fprintf(&b, " score mate %d", -(engine.MateScore+info.Score+1)/2)
	default:
		fmt.Fprintf(&b, " score cp %d", info.Score)
	}
	fmt.Fprintf(&b, " nodes %d time %d", info.Nodes, info.Elapsed.Milliseconds())
	if info.Elapsed > 0 {
		nps := uint64(float64(info.Nodes) / info.Elapsed.Seconds())
		fmt.Fprintf(&b, " nps %d", nps)
	}
	if info.HashFull > 0 {
		fmt.Fprintf(&b, " hashfull %d", info.HashFull)
	}
	if len(info.PV) > 0 {
		b.WriteString(" pv")
		for _, m := range info.PV {
			fmt.Fprintf(&b, " %s", m)
		}
	}
	u.println(b.String())
}

func (u *USI) handleStop() {
	u.mu.Lock()
	searching, done, cancel := u.searching, u.searchDone, u.cancel
	u.mu.Unlock()
	if !searching {
		return
	}
	u.eng.Stop()
	if cancel != nil {
		cancel()
	}
	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		// Join timeout: abandon the wait, carry on accepting commands.
		u.infoString("worker join timed out, abandoning")
	}
}

// handlePonderHit confirms the pondered move was actually played: the time
// manager switches from its open-ended ponder allocation to the real limits
// the matching "go ponder" carried, and the in-flight search (already
// blocked inside Search, sharing this same *TimeManager by reference) picks
// up the new soft/hard limits at its next ShouldStop check. Exactly one
// bestmove follows, emitted by the Search goroutine already running.
func (u *USI) handlePonderHit() {
	u.mu.Lock()
	tm := u.tm
	u.mu.Unlock()
	if tm == nil || !tm.IsPondering() {
		return
	}
	tm.PonderHit(nil, 0)
}

func (u *USI) handleGameOver(args []string) {
	u.mu.Lock()
	u.searching = false
	u.mu.Unlock()
	if len(args) == 0 {
		return
	}
	u.infoString("game over: " + args[0])
}

func (u *USI) handleQuit() {
	u.handleStop()
	if u.profileFile != nil {
		pprof.StopCPUProfile()
		u.profileFile.Close()
	}
	if err := u.eng.Close(); err != nil {
		u.infoString("failed to close engine: " + err.Error())
	}
}

func (u *USI) handleSetOption(args []string) {
	name, value := splitNameValue(args)
	switch strings.ToLower(name) {
	case "usi_hash":
		if mb, err := strconv.Atoi(value); err == nil && mb > 0 {
			u.eng.ResizeHash(mb)
		}
	case "clearhash":
		u.eng.ClearHash()
	case "evalfile":
		u.evalFile = value
		if value != "" {
			if err := u.eng.LoadWeights(value); err != nil {
				u.infoString("failed to load weights: " + err.Error())
			}
		}
	case "persistdir":
		if err := u.eng.SetPersistDir(value); err != nil {
			u.infoString("failed to open persist dir: " + err.Error())
		}
	case "cpuprofile":
		if u.profileFile != nil {
			pprof.StopCPUProfile()
			u.profileFile.Close()
			u.profileFile = nil
		}
		if value != "" && value != "stop" {
			f, err := os.Create(value)
			if err != nil {
				u.infoString("failed to create profile: " + err.Error())
				return
			}
			if err := pprof.StartCPUProfile(f); err != nil {
				f.Close()
				u.infoString("failed to start profile: " + err.Error())
				return
			}
			u.profileFile = f
		}
	}
}

func splitNameValue(args []string) (name, value string) {
	readingName, readingValue := false, false
	for _, a := range args {
		switch a {
		case "name":
			readingName, readingValue = true, false
		case "value":
			readingName, readingValue = false, true
		default:
			if readingName {
				if name != "" {
					name += " "
				}
				name += a
			} else if readingValue {
				if value != "" {
					value += " "
				}
				value += a
			}
		}
	}
	return name, value
}
