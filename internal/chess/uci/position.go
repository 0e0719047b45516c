package uci

import (
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

var (
	ErrInvalidPosition = errors.New("invalid position")
	ErrIllegalMove     = errors.New("illegal move")
)

// ValidateFEN checks a position the way an engine would before accepting it:
// six fields, a parseable board, one king per side and no pawns on the back
// ranks.
func ValidateFEN(fen string) error {
	fields := strings.Fields(fen)
	if len(fields) != 6 {
		return fmt.Errorf("%w: expected 6 fields, got %d", ErrInvalidPosition, len(fields))
	}
	game, err := gameFromFEN(fen)
	if err != nil {
		return err
	}
	board := game.Position().Board()
	var whiteKings, blackKings int
	for sq := 0; sq < 64; sq++ {
		square := nchess.Square(sq)
		piece := board.Piece(square)
		if piece == nchess.NoPiece {
			continue
		}
		switch piece.Type() {
		case nchess.King:
			if piece.Color() == nchess.White {
				whiteKings++
			} else {
				blackKings++
			}
		case nchess.Pawn:
			if r := square.Rank(); r == nchess.Rank1 || r == nchess.Rank8 {
				return fmt.Errorf("%w: pawn on %s", ErrInvalidPosition, square)
			}
		}
	}
	if whiteKings != 1 || blackKings != 1 {
		return fmt.Errorf("%w: %d white and %d black kings", ErrInvalidPosition, whiteKings, blackKings)
	}
	return nil
}

// PositionAfter applies UCI moves to fen and returns the resulting FEN. Each
// move must be legal in the position it is played from.
func PositionAfter(fen string, moves ...string) (string, error) {
	game, err := gameFromFEN(fen)
	if err != nil {
		return "", err
	}
	notation := nchess.UCINotation{}
	for _, mv := range moves {
		text := strings.ToLower(strings.TrimSpace(mv))
		move, err := notation.Decode(game.Position(), text)
		if err != nil {
			return "", fmt.Errorf("%w: decode %s: %v", ErrIllegalMove, mv, err)
		}
		if err := game.Move(move, nil); err != nil {
			return "", fmt.Errorf("%w: apply %s: %v", ErrIllegalMove, mv, err)
		}
	}
	return game.Position().String(), nil
}

// IsIrreversible reports whether move resets the halfmove clock: a pawn move
// or any capture.
func IsIrreversible(fen, move string) (bool, error) {
	game, err := gameFromFEN(fen)
	if err != nil {
		return false, err
	}
	pos := game.Position()
	mv, err := nchess.UCINotation{}.Decode(pos, strings.ToLower(strings.TrimSpace(move)))
	if err != nil {
		return false, fmt.Errorf("%w: decode %s: %v", ErrIllegalMove, move, err)
	}
	if mv.HasTag(nchess.Capture) || mv.HasTag(nchess.EnPassant) {
		return true, nil
	}
	return pos.Board().Piece(mv.S1()).Type() == nchess.Pawn, nil
}

func gameFromFEN(fen string) (*nchess.Game, error) {
	opt, err := nchess.FEN(strings.TrimSpace(fen))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPosition, err)
	}
	return nchess.NewGame(opt), nil
}
