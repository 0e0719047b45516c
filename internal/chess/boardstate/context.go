package boardstate

import (
	"fmt"
	"strings"
)

type Side string

const (
	White Side = "w"
	Black Side = "b"
)

func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "w", "white":
		return White, nil
	case "b", "black":
		return Black, nil
	default:
		return "", fmt.Errorf("unknown side %q", s)
	}
}

func (s Side) Opponent() Side {
	if s == White {
		return Black
	}
	return White
}

// PositionContext is the part of a position that a single image cannot show.
type PositionContext struct {
	Turn           Side
	Castling       string
	EnPassant      string
	HalfmoveClock  int
	FullmoveNumber int
}

func NewPositionContext() PositionContext {
	return PositionContext{
		Turn:           White,
		Castling:       "KQkq",
		EnPassant:      NoSquare,
		HalfmoveClock:  0,
		FullmoveNumber: 1,
	}
}

const NoSquare = "-"

func (c PositionContext) Validate() error {
	if c.Turn != White && c.Turn != Black {
		return fmt.Errorf("invalid side to move %q", c.Turn)
	}
	if !validCastling(c.Castling) {
		return fmt.Errorf("invalid castling rights %q", c.Castling)
	}
	if !validEnPassant(c.EnPassant) {
		return fmt.Errorf("invalid en passant square %q", c.EnPassant)
	}
	if c.HalfmoveClock < 0 {
		return fmt.Errorf("halfmove clock must be >= 0: %d", c.HalfmoveClock)
	}
	if c.FullmoveNumber < 1 {
		return fmt.Errorf("fullmove number must be >= 1: %d", c.FullmoveNumber)
	}
	return nil
}

// ParseEnPassant accepts "-", "" or a rank 3/6 square.
func ParseEnPassant(square string) (string, error) {
	square = strings.ToLower(strings.TrimSpace(square))
	if square == "" {
		square = NoSquare
	}
	if !validEnPassant(square) {
		return "", fmt.Errorf("invalid en passant square %q", square)
	}
	return square, nil
}

// WithEnPassant sets an externally known en passant target.
func (c PositionContext) WithEnPassant(square string) (PositionContext, error) {
	sq, err := ParseEnPassant(square)
	if err != nil {
		return c, err
	}
	c.EnPassant = sq
	return c, nil
}

// Advance records one completed cycle: our move plus the opponent's reply.
// The opponent's half of the clock is not observable, so only our move
// affects the halfmove clock.
func (c PositionContext) Advance(irreversible bool) PositionContext {
	c.FullmoveNumber++
	if irreversible {
		c.HalfmoveClock = 0
	} else {
		c.HalfmoveClock++
	}
	c.EnPassant = NoSquare
	return c
}

func validCastling(s string) bool {
	if s == "-" {
		return true
	}
	if s == "" || len(s) > 4 {
		return false
	}
	order := "KQkq"
	last := -1
	for i := 0; i < len(s); i++ {
		idx := strings.IndexByte(order, s[i])
		if idx <= last {
			return false
		}
		last = idx
	}
	return true
}

func validEnPassant(s string) bool {
	if s == NoSquare {
		return true
	}
	if len(s) != 2 {
		return false
	}
	return s[0] >= 'a' && s[0] <= 'h' && (s[1] == '3' || s[1] == '6')
}
