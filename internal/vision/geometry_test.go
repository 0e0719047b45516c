package vision

import (
	"image"
	"testing"
)

func TestSquareCenter(t *testing.T) {
	r := Region{X: 100, Y: 50, W: 800, H: 800}
	cases := []struct {
		square  string
		flipped bool
		want    image.Point
	}{
		{"a8", false, image.Pt(150, 100)},
		{"h1", false, image.Pt(850, 800)},
		{"e2", false, image.Pt(550, 700)},
		{"a8", true, image.Pt(850, 800)},
		{"h1", true, image.Pt(150, 100)},
	}
	for _, tc := range cases {
		got, err := SquareCenter(r, tc.square, tc.flipped)
		if err != nil {
			t.Fatalf("SquareCenter(%s): %v", tc.square, err)
		}
		if got != tc.want {
			t.Fatalf("SquareCenter(%s, flipped=%v) = %v, want %v", tc.square, tc.flipped, got, tc.want)
		}
	}
	if _, err := SquareCenter(r, "i9", false); err == nil {
		t.Fatalf("expected error for bad square")
	}
	if _, err := SquareCenter(Region{}, "a1", false); err == nil {
		t.Fatalf("expected error for empty region")
	}
}

func TestMoveSquares(t *testing.T) {
	from, to, err := MoveSquares("e7e8q")
	if err != nil || from != "e7" || to != "e8" {
		t.Fatalf("MoveSquares = %s %s %v", from, to, err)
	}
	if _, _, err := MoveSquares("e7"); err == nil {
		t.Fatalf("expected error")
	}
}
