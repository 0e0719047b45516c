package uci

import (
	"errors"
	"strings"
	"testing"
)

const startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

func TestValidateFEN(t *testing.T) {
	valid := []string{
		startFEN,
		"4k3/8/8/8/8/8/8/4K3 b - - 10 40",
	}
	for _, fen := range valid {
		if err := ValidateFEN(fen); err != nil {
			t.Fatalf("ValidateFEN(%q): %v", fen, err)
		}
	}
	invalid := []string{
		"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQ1BNR w kq - 0 1",
		"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq -",
		"4k3/8/8/8/8/8/8/4KK2 w - - 0 1",
		"4k2P/8/8/8/8/8/8/4K3 w - - 0 1",
		"p3k3/8/8/8/8/8/8/4K3 w - - 0 1",
	}
	for _, fen := range invalid {
		if err := ValidateFEN(fen); !errors.Is(err, ErrInvalidPosition) {
			t.Fatalf("ValidateFEN(%q) = %v, want ErrInvalidPosition", fen, err)
		}
	}
}

func TestPositionAfter(t *testing.T) {
	got, err := PositionAfter(startFEN, "e2e4")
	if err != nil {
		t.Fatalf("PositionAfter: %v", err)
	}
	want := "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq "
	if !strings.HasPrefix(got, want) || !strings.HasSuffix(got, " 0 1") {
		t.Fatalf("got %q\nwant %q", got, want)
	}
	if _, err := PositionAfter(startFEN, "e2e5"); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("expected ErrIllegalMove, got %v", err)
	}
}

func TestIsIrreversible(t *testing.T) {
	cases := []struct {
		fen  string
		move string
		want bool
	}{
		{startFEN, "e2e4", true},
		{startFEN, "g1f3", false},
		{"4k3/8/8/3p4/4N3/8/8/4K3 w - - 0 1", "e4d6", false},
		{"4k3/8/8/3p4/4N3/8/8/4K3 w - - 0 1", "e4c5", false},
		{"4k3/8/8/3p4/8/2N5/8/4K3 w - - 0 1", "c3d5", true},
	}
	for _, tc := range cases {
		got, err := IsIrreversible(tc.fen, tc.move)
		if err != nil {
			t.Fatalf("IsIrreversible(%s): %v", tc.move, err)
		}
		if got != tc.want {
			t.Fatalf("IsIrreversible(%s) = %v, want %v", tc.move, got, tc.want)
		}
	}
}
