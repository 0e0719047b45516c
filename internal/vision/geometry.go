package vision

import (
	"fmt"
	"image"
	"strings"

	"github.com/park285/boardsight/internal/domain"
)

// Region is the on-screen rectangle a board was captured from.
type Region struct {
	X, Y, W, H int
}

func (r Region) Empty() bool { return r.W <= 0 || r.H <= 0 }

// SquareCenter maps an algebraic square to the pixel at its centre. When
// flipped is set the board is rendered with black at the bottom.
func SquareCenter(r Region, square string, flipped bool) (image.Point, error) {
	square = strings.ToLower(strings.TrimSpace(square))
	if len(square) != 2 || square[0] < 'a' || square[0] > 'h' || square[1] < '1' || square[1] > '8' {
		return image.Point{}, fmt.Errorf("invalid square %q", square)
	}
	if r.Empty() {
		return image.Point{}, fmt.Errorf("empty region")
	}
	file := int(square[0] - 'a')
	row := domain.BoardRanks - 1 - int(square[1]-'1')
	if flipped {
		file = domain.BoardFiles - 1 - file
		row = domain.BoardRanks - 1 - row
	}
	cellW := r.W / domain.BoardFiles
	cellH := r.H / domain.BoardRanks
	return image.Point{
		X: r.X + file*cellW + cellW/2,
		Y: r.Y + row*cellH + cellH/2,
	}, nil
}

// MoveSquares splits a UCI move into its from/to squares.
func MoveSquares(move string) (string, string, error) {
	move = strings.ToLower(strings.TrimSpace(move))
	if len(move) < 4 {
		return "", "", fmt.Errorf("invalid move %q", move)
	}
	return move[:2], move[2:4], nil
}
