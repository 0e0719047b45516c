package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	"image/png"
	"os"
	"path/filepath"

	"github.com/park285/boardsight/internal/domain"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Options decorates a rendered grid.
type Options struct {
	// LowConfidence marks grid indexes the classifier was unsure about.
	LowConfidence []int
	// From and To highlight a move; -1 disables.
	From, To int
	Caption  string
	// Flipped labels the board from black's side.
	Flipped bool
}

// GridRenderer draws a recognised label grid as a PNG, for checking what the
// classifier saw against the original capture.
type GridRenderer struct {
	squareSize int
}

func NewGridRenderer(squareSize int) *GridRenderer {
	if squareSize <= 0 {
		squareSize = 48
	}
	return &GridRenderer{squareSize: squareSize}
}

const (
	margin        = 20
	captionHeight = 22
)

var (
	lightSquare        = color.RGBA{233, 207, 163, 255}
	darkSquare         = color.RGBA{187, 136, 96, 255}
	backgroundColor    = color.RGBA{28, 31, 46, 255}
	lowConfidenceColor = color.NRGBA{R: 230, G: 40, B: 40, A: 110}
	moveHighlightColor = color.NRGBA{R: 255, G: 228, B: 120, A: 140}
	coordinateColor    = color.NRGBA{R: 8, G: 214, B: 120, A: 255}
	captionColor       = color.NRGBA{R: 236, G: 239, B: 255, A: 255}
)

func (r *GridRenderer) Render(ctx context.Context, grid domain.Grid, opts Options) (*image.RGBA, error) {
	if len(grid) != domain.BoardSquares {
		return nil, fmt.Errorf("grid has %d squares", len(grid))
	}
	sq := r.squareSize
	boardSize := sq * domain.BoardFiles
	img := image.NewRGBA(image.Rect(0, 0, boardSize+2*margin, boardSize+2*margin+captionHeight))
	imagedraw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, imagedraw.Src)
	origin := image.Point{X: margin, Y: margin + captionHeight}

	for idx, label := range grid {
		row, col := idx/domain.BoardFiles, idx%domain.BoardFiles
		rect := squareRect(row, col, sq, origin)
		clr := lightSquare
		if (row+col)%2 == 1 {
			clr = darkSquare
		}
		imagedraw.Draw(img, rect, image.NewUniform(clr), image.Point{}, imagedraw.Src)
		if idx == opts.From || idx == opts.To {
			imagedraw.Draw(img, rect, image.NewUniform(moveHighlightColor), image.Point{}, imagedraw.Over)
		}
		if label == domain.Empty {
			continue
		}
		piece, err := renderPieceImage(label, sq)
		if err != nil {
			return nil, err
		}
		imagedraw.Draw(img, rect, piece, image.Point{}, imagedraw.Over)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	for _, idx := range opts.LowConfidence {
		if idx < 0 || idx >= domain.BoardSquares {
			continue
		}
		rect := squareRect(idx/domain.BoardFiles, idx%domain.BoardFiles, sq, origin)
		imagedraw.Draw(img, rect, image.NewUniform(lowConfidenceColor), image.Point{}, imagedraw.Over)
	}

	drawer := &font.Drawer{Dst: img, Face: basicfont.Face7x13}
	drawCoordinates(drawer, sq, origin, opts.Flipped)
	if opts.Caption != "" {
		drawer.Src = image.NewUniform(captionColor)
		drawer.Dot = fixed.P(margin, margin+captionHeight/2)
		drawer.DrawString(opts.Caption)
	}
	return img, nil
}

func (r *GridRenderer) RenderPNG(ctx context.Context, grid domain.Grid, opts Options) ([]byte, error) {
	img, err := r.Render(ctx, grid, opts)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// WritePNG renders into dir/name, creating dir when needed.
func (r *GridRenderer) WritePNG(ctx context.Context, dir, name string, grid domain.Grid, opts Options) (string, error) {
	b, err := r.RenderPNG(ctx, grid, opts)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create debug dir: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

func drawCoordinates(drawer *font.Drawer, sq int, origin image.Point, flipped bool) {
	drawer.Src = image.NewUniform(coordinateColor)
	ascent := drawer.Face.Metrics().Ascent.Ceil()
	files := "abcdefgh"
	ranks := "87654321"
	if flipped {
		files = "hgfedcba"
		ranks = "12345678"
	}
	for i := 0; i < domain.BoardFiles; i++ {
		center := origin.Y + i*sq + sq/2
		drawCenteredText(drawer, ranks[i:i+1], origin.X-margin/2, center+ascent/2)
		fileCenter := origin.X + i*sq + sq/2
		drawCenteredText(drawer, files[i:i+1], fileCenter, origin.Y+domain.BoardRanks*sq+ascent+2)
	}
}

func drawCenteredText(drawer *font.Drawer, text string, centerX, baseline int) {
	if text == "" {
		return
	}
	width := drawer.MeasureString(text).Round()
	drawer.Dot = fixed.P(centerX-width/2, baseline)
	drawer.DrawString(text)
}

func squareRect(row, col, sq int, origin image.Point) image.Rectangle {
	x := origin.X + col*sq
	y := origin.Y + row*sq
	return image.Rect(x, y, x+sq, y+sq)
}
