package nnue

import "github.com/komadai/shogi-engine/internal/shogi"

// pieceKindIndex maps a non-King (type, promoted) pair to a 0..12 slot.
// Gold has a single slot since it never promotes.
func pieceKindIndex(pt shogi.PieceType, promoted bool) int {
	switch pt {
	case shogi.Pawn:
		if promoted {
			return 1
		}
		return 0
	case shogi.Lance:
		if promoted {
			return 3
		}
		return 2
	case shogi.Knight:
		if promoted {
			return 5
		}
		return 4
	case shogi.Silver:
		if promoted {
			return 7
		}
		return 6
	case shogi.Gold:
		return 8
	case shogi.Bishop:
		if promoted {
			return 10
		}
		return 9
	case shogi.Rook:
		if promoted {
			return 12
		}
		return 11
	default:
		return -1 // King: not a feature
	}
}

// handSlotOffset/handSlotCount lay out the thermometer encoding for hand
// piece counts: handSlotOffset[pt] is the first slot index for pt, and a
// held count of c contributes slots [offset, offset+c).
var handSlotOffset = [shogi.NumHandTypes]int{
	shogi.Pawn:   0,
	shogi.Lance:  18,
	shogi.Knight: 22,
	shogi.Silver: 26,
	shogi.Gold:   30,
	shogi.Bishop: 34,
	shogi.Rook:   36,
}

var handSlotCount = [shogi.NumHandTypes]int{
	shogi.Pawn:   18,
	shogi.Lance:  4,
	shogi.Knight: 4,
	shogi.Silver: 4,
	shogi.Gold:   4,
	shogi.Bishop: 2,
	shogi.Rook:   2,
}

// colorKind folds a board-piece kind and its absolute color into the
// 0..25 range that, combined with the king-square flip below, yields the
// us/them split a HalfKP table needs.
func colorKind(kind int, c shogi.Color) int {
	if c == shogi.White {
		return kind + NumBoardKinds
	}
	return kind
}

// flip reinterprets kingSquare/pieceSquare/pieceColor in perspective's
// reference frame: for White's perspective the board is mirrored 180
// degrees and every color label is swapped, so a single absolute-frame
// feature table serves both perspectives symmetrically.
func flip(perspective shogi.Color, sq shogi.Square, c shogi.Color) (shogi.Square, shogi.Color) {
	if perspective == shogi.White {
		return sq.Flip(), c.Opponent()
	}
	return sq, c
}

// HalfKPIndex computes the feature index for a non-King board piece from
// perspective's point of view.
func HalfKPIndex(perspective shogi.Color, kingSquare shogi.Square, p shogi.Piece, pieceSquare shogi.Square) int {
	kind := pieceKindIndex(p.Type, p.Promoted)
	if kind < 0 {
		return -1
	}
	ks, _ := flip(perspective, kingSquare, shogi.Black)
	sq, pc := flip(perspective, pieceSquare, p.Color)
	return int(ks)*FeaturesPerKing + colorKind(kind, pc)*shogi.NumSquares + int(sq)
}

// HalfKPHandIndex computes the feature index for the copyIndex-th
// (0-based) held piece of type pt and color owner, from perspective.
func HalfKPHandIndex(perspective shogi.Color, kingSquare shogi.Square, pt shogi.PieceType, owner shogi.Color, copyIndex int) int {
	ks, pc := flip(perspective, kingSquare, owner)
	colorOffset := 0
	if pc == shogi.White {
		colorOffset = NumHandSlots
	}
	slot := handSlotOffset[pt.HandIndex()] + copyIndex
	return int(ks)*FeaturesPerKing + BoardFeatureSpan + colorOffset + slot
}

// GetActiveFeaturesFor returns every active feature index for a single
// perspective. Used both for a from-scratch ComputeFull and to rebuild just
// one side's table after a king move, which only disturbs that side's
// king-relative indices.
func GetActiveFeaturesFor(pos *shogi.Position, perspective shogi.Color) []int {
	features := make([]int, 0, 64)
	king := pos.KingSquare(perspective)

	for sq := shogi.Square(0); sq < shogi.NumSquares; sq++ {
		p := pos.Board[sq]
		if p.IsEmpty() || p.Type == shogi.King {
			continue
		}
		if idx := HalfKPIndex(perspective, king, p, sq); idx >= 0 {
			features = append(features, idx)
		}
	}

	for _, owner := range [2]shogi.Color{shogi.Black, shogi.White} {
		for pt := shogi.PieceType(0); pt < shogi.NumHandTypes; pt++ {
			n := pos.Hand[owner][pt.HandIndex()]
			for c := 0; c < n; c++ {
				features = append(features, HalfKPHandIndex(perspective, king, pt, owner, c))
			}
		}
	}
	return features
}

// GetActiveFeatures returns every active feature index from both
// perspectives for a freshly examined position; used for ComputeFull.
func GetActiveFeatures(pos *shogi.Position) (black, white []int) {
	return GetActiveFeaturesFor(pos, shogi.Black), GetActiveFeaturesFor(pos, shogi.White)
}

// GetChangedFeatures returns the feature indices to add/remove from each
// perspective's accumulator for a move already applied to pos (MakeMove
// must have run first). blackFull/whiteFull signal that a perspective's
// king-relative table must be rebuilt from scratch rather than patched:
// when perspective C's own king moves every one of C's indices shifts, but
// the other perspective's king-relative frame is untouched and still takes
// the incremental add/rem path. A pass or other non-placing move yields no
// changes and both full flags false.
func GetChangedFeatures(pos *shogi.Position, m shogi.Move, captured shogi.Piece) (blackAdd, blackRem []int, blackFull bool, whiteAdd, whiteRem []int, whiteFull bool) {
	blackKing := pos.KingSquare(shogi.Black)
	whiteKing := pos.KingSquare(shogi.White)

	add := func(sq shogi.Square, p shogi.Piece) {
		if idx := HalfKPIndex(shogi.Black, blackKing, p, sq); idx >= 0 {
			blackAdd = append(blackAdd, idx)
		}
		if idx := HalfKPIndex(shogi.White, whiteKing, p, sq); idx >= 0 {
			whiteAdd = append(whiteAdd, idx)
		}
	}
	rem := func(sq shogi.Square, p shogi.Piece) {
		if idx := HalfKPIndex(shogi.Black, blackKing, p, sq); idx >= 0 {
			blackRem = append(blackRem, idx)
		}
		if idx := HalfKPIndex(shogi.White, whiteKing, p, sq); idx >= 0 {
			whiteRem = append(whiteRem, idx)
		}
	}
	handChange := func(owner shogi.Color, pt shogi.PieceType, oldCount, newCount int) {
		switch {
		case newCount > oldCount:
			idx := newCount - 1
			blackAdd = append(blackAdd, HalfKPHandIndex(shogi.Black, blackKing, pt, owner, idx))
			whiteAdd = append(whiteAdd, HalfKPHandIndex(shogi.White, whiteKing, pt, owner, idx))
		case newCount < oldCount:
			idx := oldCount - 1
			blackRem = append(blackRem, HalfKPHandIndex(shogi.Black, blackKing, pt, owner, idx))
			whiteRem = append(whiteRem, HalfKPHandIndex(shogi.White, whiteKing, pt, owner, idx))
		}
	}

	switch {
	case m.IsDrop():
		pt := m.DropPiece()
		to := m.To()
		dropped := pos.Board[to]
		mover := dropped.Color
		add(to, dropped)
		newCount := pos.Hand[mover][pt.HandIndex()]
		handChange(mover, pt, newCount+1, newCount)

	case m.IsBoardMove():
		from, to := m.From(), m.To()
		after := pos.Board[to]
		if after.Type == shogi.King {
			mover := after.Color
			blackFull = mover == shogi.Black
			whiteFull = mover == shogi.White
			// The king itself is never a feature, but a capture still
			// changes the captured side's hand count for both perspectives;
			// the full-refresh side's table discards these deltas below
			// since ComputeFull rebuilds it from the post-move position.
			if !captured.IsEmpty() && captured.Type != shogi.King {
				rem(to, captured)
				newCount := pos.Hand[mover][captured.Type.HandIndex()]
				handChange(mover, captured.Type, newCount-1, newCount)
			}
			return blackAdd, blackRem, blackFull, whiteAdd, whiteRem, whiteFull
		}
		before := after
		if m.Promote() {
			before = after.Demote()
		}
		rem(from, before)
		add(to, after)
		if !captured.IsEmpty() && captured.Type != shogi.King {
			rem(to, captured)
			mover := after.Color
			newCount := pos.Hand[mover][captured.Type.HandIndex()]
			handChange(mover, captured.Type, newCount-1, newCount)
		}

	default:
	}
	return blackAdd, blackRem, blackFull, whiteAdd, whiteRem, whiteFull
}
