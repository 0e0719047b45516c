package boardstate

import (
	"strings"

	"github.com/park285/boardsight/internal/domain"
)

// Home squares in grid coordinates with white rendered at the bottom.
var castlingChecks = []struct {
	right   byte
	king    domain.PieceLabel
	kingRow int
	rook    domain.PieceLabel
	rookCol int
}{
	{'K', domain.WhiteKing, 7, domain.WhiteRook, 7},
	{'Q', domain.WhiteKing, 7, domain.WhiteRook, 0},
	{'k', domain.BlackKing, 0, domain.BlackRook, 7},
	{'q', domain.BlackKing, 0, domain.BlackRook, 0},
}

const kingHomeCol = 4

// InferCastling derives castling rights from piece placement alone. A king or
// rook away from its home square drops the matching right; a piece that left
// and came back is indistinguishable from one that never moved.
func InferCastling(grid domain.Grid) string {
	if len(grid) != domain.BoardSquares {
		return "-"
	}
	var sb strings.Builder
	for _, c := range castlingChecks {
		if grid.At(c.kingRow, kingHomeCol) != c.king {
			continue
		}
		if grid.At(c.kingRow, c.rookCol) != c.rook {
			continue
		}
		sb.WriteByte(c.right)
	}
	if sb.Len() == 0 {
		return "-"
	}
	return sb.String()
}
