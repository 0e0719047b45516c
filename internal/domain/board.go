package domain

import (
	"strings"
)

const (
	BoardFiles   = 8
	BoardRanks   = 8
	BoardSquares = BoardFiles * BoardRanks
)

// PieceLabel is one classifier output class. The numeric value is the model's
// output index, so the declaration order must not change.
type PieceLabel uint8

const (
	BlackBishop PieceLabel = iota
	BlackKing
	BlackKnight
	BlackPawn
	BlackQueen
	BlackRook
	Empty
	WhiteBishop
	WhiteKing
	WhiteKnight
	WhitePawn
	WhiteQueen
	WhiteRook
)

const NumLabels = int(WhiteRook) + 1

var labelNames = [NumLabels]string{
	"bB", "bK", "bN", "bP", "bQ", "bR", "empty", "wB", "wK", "wN", "wP", "wQ", "wR",
}

var labelLetters = [NumLabels]byte{
	'b', 'k', 'n', 'p', 'q', 'r', 0, 'B', 'K', 'N', 'P', 'Q', 'R',
}

// Labels returns the label set in model output order.
func Labels() []PieceLabel {
	out := make([]PieceLabel, NumLabels)
	for i := range out {
		out[i] = PieceLabel(i)
	}
	return out
}

func (l PieceLabel) Valid() bool { return int(l) < NumLabels }

func (l PieceLabel) String() string {
	if !l.Valid() {
		return "?"
	}
	return labelNames[l]
}

// Letter returns the FEN letter for the label, or 0 for Empty.
func (l PieceLabel) Letter() byte {
	if !l.Valid() {
		return 0
	}
	return labelLetters[l]
}

func (l PieceLabel) IsWhite() bool { return l >= WhiteBishop && l <= WhiteRook }
func (l PieceLabel) IsBlack() bool { return l <= BlackRook }

func ParseLabel(s string) (PieceLabel, bool) {
	s = strings.TrimSpace(s)
	for i, name := range labelNames {
		if name == s {
			return PieceLabel(i), true
		}
	}
	return Empty, false
}

// LabelForLetter maps a FEN piece letter back to its label.
func LabelForLetter(c byte) (PieceLabel, bool) {
	for i, letter := range labelLetters {
		if letter != 0 && letter == c {
			return PieceLabel(i), true
		}
	}
	return Empty, false
}

// Grid is a row-major board as rendered: index 0 is the top-left square of the
// image. Length is not enforced here; encoders reject anything but 64.
type Grid []PieceLabel

func NewEmptyGrid() Grid {
	g := make(Grid, BoardSquares)
	for i := range g {
		g[i] = Empty
	}
	return g
}

func (g Grid) At(row, col int) PieceLabel {
	idx := row*BoardFiles + col
	if row < 0 || col < 0 || col >= BoardFiles || idx >= len(g) {
		return Empty
	}
	return g[idx]
}

func (g Grid) Set(row, col int, l PieceLabel) {
	idx := row*BoardFiles + col
	if row < 0 || col < 0 || col >= BoardFiles || idx >= len(g) {
		return
	}
	g[idx] = l
}

func (g Grid) Clone() Grid {
	return append(Grid(nil), g...)
}

// Rotate180 converts between white-at-bottom and black-at-bottom renderings.
func (g Grid) Rotate180() Grid {
	out := make(Grid, len(g))
	for i, l := range g {
		out[len(g)-1-i] = l
	}
	return out
}

func (g Grid) Count(l PieceLabel) int {
	n := 0
	for _, v := range g {
		if v == l {
			n++
		}
	}
	return n
}

func (g Grid) String() string {
	var sb strings.Builder
	for row := 0; row*BoardFiles < len(g); row++ {
		for col := 0; col < BoardFiles; col++ {
			idx := row*BoardFiles + col
			if idx >= len(g) {
				break
			}
			name := "."
			if g[idx] != Empty {
				name = g[idx].String()
			}
			if col > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(padLabel(name))
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func padLabel(s string) string {
	if len(s) >= 2 {
		return s
	}
	return s + " "
}

// StandardGrid is the initial position rendered with white at the bottom.
func StandardGrid() Grid {
	back := []PieceLabel{BlackRook, BlackKnight, BlackBishop, BlackQueen, BlackKing, BlackBishop, BlackKnight, BlackRook}
	g := NewEmptyGrid()
	for col := 0; col < BoardFiles; col++ {
		g.Set(0, col, back[col])
		g.Set(1, col, BlackPawn)
		g.Set(6, col, WhitePawn)
		g.Set(7, col, back[col]+(WhiteBishop-BlackBishop))
	}
	return g
}
