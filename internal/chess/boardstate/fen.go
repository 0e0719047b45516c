package boardstate

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/park285/boardsight/internal/domain"
)

var ErrGridSize = errors.New("board grid must have 64 squares")

// BoardField renders the piece-placement field of a FEN string.
func BoardField(grid domain.Grid) (string, error) {
	if len(grid) != domain.BoardSquares {
		return "", fmt.Errorf("%w: got %d", ErrGridSize, len(grid))
	}
	var sb strings.Builder
	sb.Grow(72)
	for row := 0; row < domain.BoardRanks; row++ {
		if row > 0 {
			sb.WriteByte('/')
		}
		empty := 0
		for col := 0; col < domain.BoardFiles; col++ {
			label := grid.At(row, col)
			letter := label.Letter()
			if letter == 0 {
				empty++
				continue
			}
			if empty > 0 {
				sb.WriteString(strconv.Itoa(empty))
				empty = 0
			}
			sb.WriteByte(letter)
		}
		if empty > 0 {
			sb.WriteString(strconv.Itoa(empty))
		}
	}
	return sb.String(), nil
}

// ParseBoardField is the inverse of BoardField.
func ParseBoardField(field string) (domain.Grid, error) {
	rows := strings.Split(strings.TrimSpace(field), "/")
	if len(rows) != domain.BoardRanks {
		return nil, fmt.Errorf("board field has %d ranks", len(rows))
	}
	grid := domain.NewEmptyGrid()
	for row, text := range rows {
		col := 0
		for i := 0; i < len(text); i++ {
			c := text[i]
			if c >= '1' && c <= '8' {
				col += int(c - '0')
				continue
			}
			label, ok := domain.LabelForLetter(c)
			if !ok {
				return nil, fmt.Errorf("rank %d: unknown piece %q", row+1, c)
			}
			if col >= domain.BoardFiles {
				return nil, fmt.Errorf("rank %d overflows", row+1)
			}
			grid.Set(row, col, label)
			col++
		}
		if col != domain.BoardFiles {
			return nil, fmt.Errorf("rank %d has %d files", row+1, col)
		}
	}
	return grid, nil
}

// Encode builds a full FEN from a grid and the remembered context. The
// returned context carries the castling rights used in the FEN; nothing else
// changes. Castling is always inferred from placement, so the starting
// position yields KQkq and a moved king or rook revokes its rights.
func Encode(grid domain.Grid, pc PositionContext) (string, PositionContext, error) {
	board, err := BoardField(grid)
	if err != nil {
		return "", pc, err
	}
	if pc.EnPassant == "" {
		pc.EnPassant = NoSquare
	}
	if pc.FullmoveNumber < 1 {
		pc.FullmoveNumber = 1
	}
	pc.Castling = InferCastling(grid)
	if err := pc.Validate(); err != nil {
		return "", pc, err
	}

	fen := strings.Join([]string{
		board,
		string(pc.Turn),
		pc.Castling,
		pc.EnPassant,
		strconv.Itoa(pc.HalfmoveClock),
		strconv.Itoa(pc.FullmoveNumber),
	}, " ")
	return fen, pc, nil
}

// BoardOf returns the placement field of a FEN.
func BoardOf(fen string) string {
	fen = strings.TrimSpace(fen)
	if i := strings.IndexByte(fen, ' '); i >= 0 {
		return fen[:i]
	}
	return fen
}
