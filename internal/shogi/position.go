package shogi

// Position is the mutable board state: a mailbox array of 81 squares, each
// side's hand (captured pieces available to drop), side to move, ply count
// and incrementally maintained Zobrist hash. History/MoverHistory/
// CheckHistory are linear stacks indexed by ply since game start (not a
// DAG/transposition graph), matching how a single search line actually
// visits positions.
type Position struct {
	Board      [NumSquares]Piece
	Hand       [2][NumHandTypes]int
	SideToMove Color
	Ply        int
	Hash       uint64

	History      []uint64
	MoverHistory []Color
	CheckHistory []bool
}

// NewGame returns the standard Shogi starting position. Panics only if the
// embedded startpos SFEN constant is malformed, which would be a bug in
// this package, not a caller error.
func NewGame() *Position {
	pos, err := ParseSFEN(StartposSFEN)
	if err != nil {
		panic("shogi: startpos sfen failed to parse: " + err.Error())
	}
	return pos
}

// UndoInfo carries the information MakeMove's caller must hand back to
// UnmakeMove to reverse a move; it is opaque to everything outside this
// package.
type UndoInfo struct {
	captured Piece
	prevHash uint64
}

func inBounds(file, rank int) bool { return file >= 0 && file <= 8 && rank >= 0 && rank <= 8 }

// promotionZone reports whether rank lies in c's promotion zone (the
// opponent's three-rank camp).
func promotionZone(c Color, rank int) bool {
	if c == Black {
		return rank <= 2
	}
	return rank >= 6
}

func lastRank(c Color) int {
	if c == Black {
		return 0
	}
	return 8
}

func inLastTwoRanks(c Color, rank int) bool {
	if c == Black {
		return rank <= 1
	}
	return rank >= 7
}

// computeHash recomputes the Zobrist hash from scratch; used only when
// building a Position from an external representation (ParseSFEN). Every
// other mutation maintains Hash incrementally via MakeMove/UnmakeMove.
func (pos *Position) computeHash() uint64 {
	var h uint64
	for sq := Square(0); sq < NumSquares; sq++ {
		p := pos.Board[sq]
		if !p.IsEmpty() {
			h ^= zobristPiece(p, sq)
		}
	}
	for c := 0; c < 2; c++ {
		for pt := 0; pt < NumHandTypes; pt++ {
			h ^= zobristHandKey(Color(c), PieceType(pt), pos.Hand[c][pt])
		}
	}
	if pos.SideToMove == White {
		h ^= zobristSide
	}
	return h
}

// KingSquare returns c's king square, or NoSquare if c has no king on the
// board (a position that should never reach search, surfaced by callers as
// ErrKingNotFound).
func (pos *Position) KingSquare(c Color) Square {
	for sq := Square(0); sq < NumSquares; sq++ {
		p := pos.Board[sq]
		if p.Type == King && p.Color == c {
			return sq
		}
	}
	return NoSquare
}

// InCheck reports whether c's king is currently attacked.
func (pos *Position) InCheck(c Color) bool {
	k := pos.KingSquare(c)
	if k == NoSquare {
		return false
	}
	return pos.isAttacked(k, c.Opponent())
}

// isAttacked reports whether any piece of color by attacks sq.
func (pos *Position) isAttacked(sq Square, by Color) bool {
	for from := Square(0); from < NumSquares; from++ {
		p := pos.Board[from]
		if p.IsEmpty() || p.Color != by {
			continue
		}
		for _, d := range pieceSteps(p) {
			file, rank := from.File()+d.df, from.Rank()+d.dr
			if inBounds(file, rank) && NewSquare(file, rank) == sq {
				return true
			}
		}
		for _, d := range pieceRays(p) {
			file, rank := from.File(), from.Rank()
			for {
				file += d.df
				rank += d.dr
				if !inBounds(file, rank) {
					break
				}
				cur := NewSquare(file, rank)
				if cur == sq {
					return true
				}
				if !pos.Board[cur].IsEmpty() {
					break
				}
			}
		}
	}
	return false
}

func (pos *Position) hasUnpromotedPawn(c Color, file int) bool {
	for rank := 0; rank < 9; rank++ {
		p := pos.Board[NewSquare(file, rank)]
		if p.Type == Pawn && p.Color == c && !p.Promoted {
			return true
		}
	}
	return false
}

// MakeMove applies m (which must be a legal board or drop move for the
// side to move) and returns the information needed to reverse it. Null and
// pass moves toggle side to move without touching the board.
func (pos *Position) MakeMove(m Move) UndoInfo {
	mover := pos.SideToMove
	undo := UndoInfo{prevHash: pos.Hash, captured: NoPiece}

	switch {
	case m.IsDrop():
		pt := m.DropPiece()
		to := m.To()
		oldCount := pos.Hand[mover][pt.HandIndex()]
		newCount := oldCount - 1
		pos.Hash ^= zobristHandKey(mover, pt, oldCount)
		pos.Hash ^= zobristHandKey(mover, pt, newCount)
		pos.Hand[mover][pt.HandIndex()] = newCount
		p := Piece{Type: pt, Color: mover}
		pos.Board[to] = p
		pos.Hash ^= zobristPiece(p, to)

	case m.IsBoardMove():
		from, to := m.From(), m.To()
		p := pos.Board[from]
		captured := pos.Board[to]
		undo.captured = captured
		pos.Hash ^= zobristPiece(p, from)
		if !captured.IsEmpty() {
			pos.Hash ^= zobristPiece(captured, to)
			capType := captured.Type
			oldCount := pos.Hand[mover][capType.HandIndex()]
			newCount := oldCount + 1
			pos.Hash ^= zobristHandKey(mover, capType, oldCount)
			pos.Hash ^= zobristHandKey(mover, capType, newCount)
			pos.Hand[mover][capType.HandIndex()] = newCount
		}
		moved := p
		if m.Promote() {
			moved = p.Promote()
		}
		pos.Board[from] = NoPiece
		pos.Board[to] = moved
		pos.Hash ^= zobristPiece(moved, to)
	}

	pos.Hash ^= zobristSide
	pos.SideToMove = mover.Opponent()
	pos.Ply++
	pos.History = append(pos.History, pos.Hash)
	pos.MoverHistory = append(pos.MoverHistory, mover)
	pos.CheckHistory = append(pos.CheckHistory, pos.InCheck(pos.SideToMove))
	return undo
}

// UnmakeMove reverses the most recent MakeMove(m); it must be called with
// the UndoInfo MakeMove returned and the calls must nest (strict LIFO).
func (pos *Position) UnmakeMove(m Move, undo UndoInfo) {
	pos.History = pos.History[:len(pos.History)-1]
	pos.MoverHistory = pos.MoverHistory[:len(pos.MoverHistory)-1]
	pos.CheckHistory = pos.CheckHistory[:len(pos.CheckHistory)-1]
	pos.Hash = undo.prevHash
	pos.Ply--
	mover := pos.SideToMove.Opponent()
	pos.SideToMove = mover

	switch {
	case m.IsDrop():
		pt := m.DropPiece()
		to := m.To()
		pos.Board[to] = NoPiece
		pos.Hand[mover][pt.HandIndex()]++

	case m.IsBoardMove():
		from, to := m.From(), m.To()
		moved := pos.Board[to]
		if m.Promote() {
			moved = moved.Demote()
		}
		pos.Board[from] = moved
		pos.Board[to] = undo.captured
		if !undo.captured.IsEmpty() {
			pos.Hand[mover][undo.captured.Type.HandIndex()]--
		}
	}
}

func (pos *Position) addBoardMoveWithPromotion(list *MoveList, from, to Square, p Piece) {
	eligible := p.Type.CanPromote() && !p.Promoted &&
		(promotionZone(p.Color, from.Rank()) || promotionZone(p.Color, to.Rank()))
	mustPromote := false
	switch p.Type {
	case Pawn, Lance:
		mustPromote = to.Rank() == lastRank(p.Color)
	case Knight:
		mustPromote = inLastTwoRanks(p.Color, to.Rank())
	}
	if eligible {
		if !mustPromote {
			list.Add(NewBoardMove(from, to, false))
		}
		list.Add(NewBoardMove(from, to, true))
		return
	}
	list.Add(NewBoardMove(from, to, false))
}

func (pos *Position) addStepMoves(list *MoveList, from Square, p Piece) {
	for _, d := range pieceSteps(p) {
		file, rank := from.File()+d.df, from.Rank()+d.dr
		if !inBounds(file, rank) {
			continue
		}
		to := NewSquare(file, rank)
		target := pos.Board[to]
		if !target.IsEmpty() && target.Color == p.Color {
			continue
		}
		pos.addBoardMoveWithPromotion(list, from, to, p)
	}
}

func (pos *Position) addSlideMoves(list *MoveList, from Square, p Piece) {
	for _, d := range pieceRays(p) {
		file, rank := from.File(), from.Rank()
		for {
			file += d.df
			rank += d.dr
			if !inBounds(file, rank) {
				break
			}
			to := NewSquare(file, rank)
			target := pos.Board[to]
			if !target.IsEmpty() && target.Color == p.Color {
				break
			}
			pos.addBoardMoveWithPromotion(list, from, to, p)
			if !target.IsEmpty() {
				break
			}
		}
	}
}

func (pos *Position) generatePseudoLegalBoardMoves(list *MoveList) {
	c := pos.SideToMove
	for sq := Square(0); sq < NumSquares; sq++ {
		p := pos.Board[sq]
		if p.IsEmpty() || p.Color != c {
			continue
		}
		pos.addStepMoves(list, sq, p)
		pos.addSlideMoves(list, sq, p)
	}
}

func (pos *Position) dropSquareLegal(c Color, pt PieceType, to Square) bool {
	rank := to.Rank()
	switch pt {
	case Pawn:
		if rank == lastRank(c) {
			return false
		}
		if pos.hasUnpromotedPawn(c, to.File()) {
			return false
		}
		if pos.isUchifuzume(c, to) {
			return false
		}
	case Lance:
		if rank == lastRank(c) {
			return false
		}
	case Knight:
		if inLastTwoRanks(c, rank) {
			return false
		}
	}
	return true
}

// isUchifuzume reports whether dropping a pawn of color c on to would give
// the opponent checkmate, which is illegal (pawn-drop checkmate). It
// mutates the board directly rather than going through MakeMove since the
// scratch position is discarded immediately and never recorded in History.
func (pos *Position) isUchifuzume(c Color, to Square) bool {
	pos.Board[to] = Piece{Type: Pawn, Color: c}
	opp := c.Opponent()
	inCheck := pos.InCheck(opp)
	mate := false
	if inCheck {
		saved := pos.SideToMove
		pos.SideToMove = opp
		replies := pos.GenerateLegalMoves()
		mate = replies.Len() == 0
		pos.SideToMove = saved
	}
	pos.Board[to] = NoPiece
	return inCheck && mate
}

func (pos *Position) generatePseudoLegalDrops(list *MoveList) {
	c := pos.SideToMove
	for pt := PieceType(0); pt < NumHandTypes; pt++ {
		if pos.Hand[c][pt.HandIndex()] <= 0 {
			continue
		}
		for to := Square(0); to < NumSquares; to++ {
			if !pos.Board[to].IsEmpty() {
				continue
			}
			if pos.dropSquareLegal(c, pt, to) {
				list.Add(NewDrop(pt, to))
			}
		}
	}
}

// GenerateLegalMoves returns every fully legal move for the side to move:
// pseudo-legal board moves and drops, filtered to reject any that leave the
// mover's own king in check.
func (pos *Position) GenerateLegalMoves() MoveList {
	var pseudo MoveList
	pos.generatePseudoLegalBoardMoves(&pseudo)
	pos.generatePseudoLegalDrops(&pseudo)

	var legal MoveList
	for _, m := range pseudo.Slice() {
		mover := pos.SideToMove
		undo := pos.MakeMove(m)
		if !pos.InCheck(mover) {
			legal.Add(m)
		}
		pos.UnmakeMove(m, undo)
	}
	return legal
}

// IsCapture reports whether m, if played from the current position, takes
// an enemy piece. Drops are never captures.
func (pos *Position) IsCapture(m Move) bool {
	if !m.IsBoardMove() {
		return false
	}
	return !pos.Board[m.To()].IsEmpty()
}

// PseudoLegal reports whether m is at least plausible against the current
// board: the moving side owns a piece at m's origin (or holds m's dropped
// piece type in hand) and the destination is consistent with m's kind. It
// does not check for self-check, so a TT move that fails this is definitely
// stale; one that passes still needs full legality verification by the
// caller generating from this exact position.
func (pos *Position) PseudoLegal(m Move) bool {
	switch {
	case m.IsNull(), m.IsPass():
		return false
	case m.IsDrop():
		to := m.To()
		if !pos.Board[to].IsEmpty() {
			return false
		}
		pt := m.DropPiece()
		if pt < 0 || int(pt) >= NumHandTypes {
			return false
		}
		if pos.Hand[pos.SideToMove][pt.HandIndex()] <= 0 {
			return false
		}
		return pos.dropSquareLegal(pos.SideToMove, pt, to)
	default:
		from, to := m.From(), m.To()
		p := pos.Board[from]
		if p.IsEmpty() || p.Color != pos.SideToMove {
			return false
		}
		target := pos.Board[to]
		if !target.IsEmpty() && target.Color == p.Color {
			return false
		}
		if m.Promote() && !p.Type.CanPromote() {
			return false
		}
		return true
	}
}

// GenerateCaptures returns every pseudo-legal board move that takes an
// enemy piece, filtered for legality exactly as GenerateLegalMoves does.
// Used by quiescence search, where only captures (and, separately, check
// evasions) are worth searching; drops never capture so they are excluded
// entirely rather than generated and filtered.
func (pos *Position) GenerateCaptures() MoveList {
	var pseudo MoveList
	pos.generatePseudoLegalBoardMoves(&pseudo)

	var captures MoveList
	for _, m := range pseudo.Slice() {
		if pos.Board[m.To()].IsEmpty() {
			continue
		}
		mover := pos.SideToMove
		undo := pos.MakeMove(m)
		if !pos.InCheck(mover) {
			captures.Add(m)
		}
		pos.UnmakeMove(m, undo)
	}
	return captures
}

// IsRepetition reports plain fourfold repetition: the current position
// (board, hands and side to move, as captured by Hash) has occurred at
// least four times including the present occurrence.
func (pos *Position) IsRepetition() bool {
	count := 0
	for _, h := range pos.History {
		if h == pos.Hash {
			count++
		}
	}
	return count >= 4
}

// RepetitionKind classifies a detected repetition.
type RepetitionKind int

const (
	RepetitionNone RepetitionKind = iota
	RepetitionDraw
	RepetitionPerpetualCheckLoss
)

// RepetitionResult is the outcome of IsRepetitionDetailed. Loser is only
// meaningful when Kind is RepetitionPerpetualCheckLoss.
type RepetitionResult struct {
	Kind  RepetitionKind
	Loser Color
}

// IsRepetitionDetailed classifies a fourfold repetition as an ordinary draw
// or, when one side delivered check on every one of its moves throughout
// the repeated cycle, as a loss for that side (perpetual check is illegal
// in Shogi; the checking side may not force a draw by repeating check).
func (pos *Position) IsRepetitionDetailed() RepetitionResult {
	var occurrences []int
	for i, h := range pos.History {
		if h == pos.Hash {
			occurrences = append(occurrences, i)
		}
	}
	if len(occurrences) < 4 {
		return RepetitionResult{Kind: RepetitionNone}
	}
	cycleStart := occurrences[len(occurrences)-4]
	cycleEnd := len(pos.History) - 1

	blackChecksAlways, blackMoved := true, false
	whiteChecksAlways, whiteMoved := true, false
	// History[0] is the root position, so the move that produced History[j]
	// is MoverHistory[j-1]/CheckHistory[j-1].
	for i := cycleStart; i < cycleEnd; i++ {
		switch pos.MoverHistory[i] {
		case Black:
			blackMoved = true
			if !pos.CheckHistory[i] {
				blackChecksAlways = false
			}
		case White:
			whiteMoved = true
			if !pos.CheckHistory[i] {
				whiteChecksAlways = false
			}
		}
	}

	blackPerpetual := blackMoved && blackChecksAlways
	whitePerpetual := whiteMoved && whiteChecksAlways
	switch {
	case blackPerpetual && !whitePerpetual:
		return RepetitionResult{Kind: RepetitionPerpetualCheckLoss, Loser: Black}
	case whitePerpetual && !blackPerpetual:
		return RepetitionResult{Kind: RepetitionPerpetualCheckLoss, Loser: White}
	default:
		return RepetitionResult{Kind: RepetitionDraw}
	}
}
