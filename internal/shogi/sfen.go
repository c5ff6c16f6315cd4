package shogi

import (
	"fmt"
	"strconv"
	"strings"
)

// StartposSFEN is the standard Shogi starting position.
const StartposSFEN = "lnsgkgsnl/1r5b1/ppppppppp/9/9/9/PPPPPPPPP/1B5R1/LNSGKGSNL b - 1"

// SFEN formats and parses canonical Shogi Forsyth-Edwards notation:
// board/side/hand/move-number, space-separated, ranks top-to-bottom
// separated by '/', promoted pieces prefixed with '+', hand pieces encoded
// with counts, "-" for an empty hand.

// ParseSFEN builds a Position from an SFEN string.
func ParseSFEN(s string) (*Position, error) {
	fields := strings.Fields(s)
	if len(fields) != 4 {
		return nil, fmt.Errorf("shogi: sfen must have 4 fields, got %d: %q", len(fields), s)
	}
	Init()
	pos := &Position{}
	for i := range pos.Board {
		pos.Board[i] = NoPiece
	}
	if err := parseSFENBoard(pos, fields[0]); err != nil {
		return nil, err
	}
	switch fields[1] {
	case "b":
		pos.SideToMove = Black
	case "w":
		pos.SideToMove = White
	default:
		return nil, fmt.Errorf("shogi: invalid side %q", fields[1])
	}
	if err := parseSFENHand(pos, fields[2]); err != nil {
		return nil, err
	}
	moveNum, err := strconv.Atoi(fields[3])
	if err != nil {
		return nil, fmt.Errorf("shogi: invalid move number %q: %w", fields[3], err)
	}
	pos.Ply = moveNum - 1
	if pos.Ply < 0 {
		pos.Ply = 0
	}
	pos.Hash = pos.computeHash()
	pos.History = append(pos.History, pos.Hash)
	return pos, nil
}

func parseSFENBoard(pos *Position, field string) error {
	rows := strings.Split(field, "/")
	if len(rows) != 9 {
		return fmt.Errorf("shogi: sfen board must have 9 ranks, got %d", len(rows))
	}
	for rank, row := range rows {
		file := 0
		promoted := false
		for _, ch := range row {
			switch {
			case ch == '+':
				promoted = true
			case ch >= '1' && ch <= '9':
				file += int(ch - '0')
				promoted = false
			default:
				pt, color, err := pieceLetterToType(byte(ch))
				if err != nil {
					return err
				}
				if file > 8 {
					return fmt.Errorf("shogi: sfen rank %d overflows board width", rank)
				}
				p := Piece{Type: pt, Color: color, Promoted: promoted}
				// SFEN lists each rank from file 9 down to file 1.
				pos.Board[NewSquare(8-file, rank)] = p
				file++
				promoted = false
			}
		}
		if file != 9 {
			return fmt.Errorf("shogi: sfen rank %d has width %d, want 9", rank, file)
		}
	}
	return nil
}

func pieceLetterToType(ch byte) (PieceType, Color, error) {
	color := Black
	lower := ch
	if ch >= 'a' && ch <= 'z' {
		color = White
	} else {
		lower = ch - 'A' + 'a'
	}
	var pt PieceType
	switch lower {
	case 'p':
		pt = Pawn
	case 'l':
		pt = Lance
	case 'n':
		pt = Knight
	case 's':
		pt = Silver
	case 'g':
		pt = Gold
	case 'b':
		pt = Bishop
	case 'r':
		pt = Rook
	case 'k':
		pt = King
	default:
		return NoPieceType, NoColor, fmt.Errorf("shogi: invalid piece letter %q", ch)
	}
	return pt, color, nil
}

func parseSFENHand(pos *Position, field string) error {
	if field == "-" {
		return nil
	}
	count := 0
	for i := 0; i < len(field); i++ {
		ch := field[i]
		if ch >= '0' && ch <= '9' {
			count = count*10 + int(ch-'0')
			continue
		}
		pt, color, err := pieceLetterToType(ch)
		if err != nil {
			return err
		}
		if pt == King {
			return fmt.Errorf("shogi: king cannot be held in hand")
		}
		if count == 0 {
			count = 1
		}
		pos.Hand[color][pt.HandIndex()] = count
		count = 0
	}
	return nil
}

// String formats pos as an SFEN string.
func (pos *Position) String() string {
	var sb strings.Builder
	for rank := 0; rank < 9; rank++ {
		empties := 0
		for file := 0; file < 9; file++ {
			p := pos.Board[NewSquare(8-file, rank)]
			if p.IsEmpty() {
				empties++
				continue
			}
			if empties > 0 {
				sb.WriteString(strconv.Itoa(empties))
				empties = 0
			}
			sb.WriteString(p.USILetter())
		}
		if empties > 0 {
			sb.WriteString(strconv.Itoa(empties))
		}
		if rank != 8 {
			sb.WriteByte('/')
		}
	}
	sb.WriteByte(' ')
	sb.WriteString(pos.SideToMove.String())
	sb.WriteByte(' ')
	sb.WriteString(formatHand(pos.Hand))
	sb.WriteByte(' ')
	sb.WriteString(strconv.Itoa(pos.Ply + 1))
	return sb.String()
}

// handOrder is the canonical SFEN hand-piece ordering: Rook, Bishop, Gold,
// Silver, Knight, Lance, Pawn, Black pieces before White.
var handOrder = []PieceType{Rook, Bishop, Gold, Silver, Knight, Lance, Pawn}

func formatHand(hand [2][NumHandTypes]int) string {
	var sb strings.Builder
	for _, c := range [2]Color{Black, White} {
		for _, pt := range handOrder {
			n := hand[c][pt.HandIndex()]
			if n == 0 {
				continue
			}
			if n > 1 {
				sb.WriteString(strconv.Itoa(n))
			}
			letter := pt.String()
			if c == White {
				letter = strings.ToLower(letter)
			}
			sb.WriteString(letter)
		}
	}
	if sb.Len() == 0 {
		return "-"
	}
	return sb.String()
}
