// Package shogi implements the 81-square board model, move encoding,
// position bookkeeping and move generation that the search, evaluator and
// transposition table build on.
package shogi

import "fmt"

// Square is a board location in [0,80], derived from (file, rank) with
// file, rank both in [0,8]. Square = rank*9 + file.
type Square int8

const NumSquares = 81

// NoSquare represents "not on the board" (e.g. a drop move has no from-square).
const NoSquare Square = -1

// NewSquare builds a Square from zero-based file and rank.
func NewSquare(file, rank int) Square {
	return Square(rank*9 + file)
}

// File returns the zero-based file, 0..8.
func (s Square) File() int { return int(s) % 9 }

// Rank returns the zero-based rank, 0..8.
func (s Square) Rank() int { return int(s) / 9 }

// IsValid reports whether s is a real board square.
func (s Square) IsValid() bool { return s >= 0 && int(s) < NumSquares }

// Flip returns the square reached by a 180 degree rotation, used to convert
// a square between the two players' perspectives.
func (s Square) Flip() Square { return Square(NumSquares-1) - s }

// String renders the square in USI notation: a digit 1-9 for the file
// followed by a letter a-i for the rank.
func (s Square) String() string {
	if !s.IsValid() {
		return "--"
	}
	return fmt.Sprintf("%d%c", s.File()+1, 'a'+rune(s.Rank()))
}

// ParseSquare parses a USI square literal such as "7g".
func ParseSquare(s string) (Square, error) {
	if len(s) != 2 {
		return NoSquare, fmt.Errorf("shogi: invalid square %q", s)
	}
	file := int(s[0] - '1')
	rank := int(s[1] - 'a')
	if file < 0 || file > 8 || rank < 0 || rank > 8 {
		return NoSquare, fmt.Errorf("shogi: invalid square %q", s)
	}
	return NewSquare(file, rank), nil
}
