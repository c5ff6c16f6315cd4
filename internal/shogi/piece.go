package shogi

import "fmt"

// Color is one of the two players.
type Color int8

const (
	Black Color = iota // moves first, occupies ranks g-i on the initial setup
	White
	NoColor Color = -1
)

// Opponent returns the other color.
func (c Color) Opponent() Color {
	if c == Black {
		return White
	}
	return Black
}

func (c Color) String() string {
	if c == Black {
		return "b"
	}
	return "w"
}

// PieceType enumerates the eight unpromoted Shogi pieces. Promotion is
// carried as a separate bool on Piece rather than as distinct enum values,
// per the data model: King and Gold never promote.
type PieceType int8

const (
	Pawn PieceType = iota
	Lance
	Knight
	Silver
	Gold
	Bishop
	Rook
	King
	NoPieceType PieceType = -1
)

// NumPieceTypes is the count of base (unpromoted) piece types, including King.
const NumPieceTypes = 8

// NumHandTypes is the number of piece types that can occupy a hand (every
// type except King).
const NumHandTypes = 7

// CanPromote reports whether pt is ever a legal promotion target, i.e.
// whether it is not King and not Gold.
func (pt PieceType) CanPromote() bool {
	return pt != King && pt != Gold
}

var pieceTypeLetters = [NumPieceTypes]string{"P", "L", "N", "S", "G", "B", "R", "K"}
var promotedLetters = [NumPieceTypes]string{"+P", "+L", "+N", "+S", "", "+B", "+R", ""}

func (pt PieceType) String() string {
	if pt < 0 || int(pt) >= NumPieceTypes {
		return "?"
	}
	return pieceTypeLetters[pt]
}

// Piece is a (type, color, promoted) triple. The zero value is not a valid
// piece; use NoPiece for "empty square".
type Piece struct {
	Type     PieceType
	Color    Color
	Promoted bool
}

// NoPiece denotes an empty square.
var NoPiece = Piece{Type: NoPieceType, Color: NoColor}

// IsEmpty reports whether the piece represents an empty square.
func (p Piece) IsEmpty() bool { return p.Type == NoPieceType }

func (p Piece) String() string {
	if p.IsEmpty() {
		return " * "
	}
	letter := pieceTypeLetters[p.Type]
	if p.Promoted {
		letter = promotedLetters[p.Type]
	}
	if p.Color == White {
		return "v" + letter
	}
	return "^" + letter
}

// USILetter returns the single-character USI hand/board piece letter
// (uppercase for Black, lowercase for White), with a leading '+' for
// promoted pieces, matching SFEN board notation.
func (p Piece) USILetter() string {
	letter := pieceTypeLetters[p.Type]
	if p.Color == White {
		letter = toLower(letter)
	}
	if p.Promoted {
		return "+" + letter
	}
	return letter
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c - 'A' + 'a'
		}
	}
	return string(b)
}

// Promote returns the promoted form of p. Panics if pt cannot promote; callers
// must check CanPromote first (a move generator invariant, not a user input).
func (p Piece) Promote() Piece {
	if !p.Type.CanPromote() {
		panic(fmt.Sprintf("shogi: %v cannot promote", p.Type))
	}
	np := p
	np.Promoted = true
	return np
}

// Demote returns the unpromoted form of p (used when a captured piece
// returns to the capturing side's hand).
func (p Piece) Demote() Piece {
	np := p
	np.Promoted = false
	return np
}

// HandIndex returns p.Type's index into a Hand array, valid for every type
// except King.
func (pt PieceType) HandIndex() int { return int(pt) }

// PieceValue gives a static material value in centipawns, Pawn-relative,
// used by the classical fallback evaluator and by move-ordering's capture
// gain estimate. Promoted pieces are valued via promotedPieceValue.
var pieceValue = [NumPieceTypes]int{
	Pawn:   90,
	Lance:  315,
	Knight: 405,
	Silver: 540,
	Gold:   600,
	Bishop: 855,
	Rook:   990,
	King:   15000,
}

var promotedPieceValue = [NumPieceTypes]int{
	Pawn:   615, // Tokin
	Lance:  585,
	Knight: 600,
	Silver: 630,
	Bishop: 945, // Horse
	Rook:   1125,
}

// Value returns p's static material value.
func (p Piece) Value() int {
	if p.Promoted {
		return promotedPieceValue[p.Type]
	}
	return pieceValue[p.Type]
}
