package vision

import (
	"errors"
	"fmt"
	"image"

	"github.com/park285/boardsight/internal/domain"
	"golang.org/x/image/draw"
)

const (
	DefaultSquareSize = 64
	DefaultChannels   = 3
)

var ErrImageTooSmall = errors.New("image smaller than 8x8 pixels")

// SquareBatch holds the 64 model inputs in row-major order. Each entry is an
// HWC float tensor scaled to [0,1].
type SquareBatch struct {
	Size     int
	Channels int
	Data     [][]float32
}

func (b SquareBatch) At(row, col int) []float32 {
	idx := row*domain.BoardFiles + col
	if idx < 0 || idx >= len(b.Data) {
		return nil
	}
	return b.Data[idx]
}

func (b SquareBatch) Len() int { return len(b.Data) }

type Extractor struct {
	squareSize int
	normalize  int
	scaler     draw.Interpolator
}

type ExtractorOption func(*Extractor)

// WithNormalize resizes the whole board to n×n before slicing.
func WithNormalize(n int) ExtractorOption {
	return func(e *Extractor) {
		if n > 0 {
			e.normalize = n
		}
	}
}

func WithInterpolator(i draw.Interpolator) ExtractorOption {
	return func(e *Extractor) {
		if i != nil {
			e.scaler = i
		}
	}
}

func NewExtractor(squareSize int, opts ...ExtractorOption) *Extractor {
	if squareSize <= 0 {
		squareSize = DefaultSquareSize
	}
	e := &Extractor{squareSize: squareSize, scaler: draw.ApproxBiLinear}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Extractor) SquareSize() int { return e.squareSize }

// Resized returns an extractor with the same options producing size×size
// squares. e itself is returned when it already matches.
func (e *Extractor) Resized(size int) *Extractor {
	if size <= 0 || size == e.squareSize {
		return e
	}
	c := *e
	c.squareSize = size
	return &c
}

// Extract cuts img into an 8×8 grid. Cell size is the integer division of each
// axis by 8; leftover pixels on the right and bottom edges are dropped.
func (e *Extractor) Extract(img image.Image) (SquareBatch, error) {
	if img == nil {
		return SquareBatch{}, fmt.Errorf("nil image")
	}
	src := img
	if e.normalize > 0 {
		b := img.Bounds()
		if b.Dx() != e.normalize || b.Dy() != e.normalize {
			dst := image.NewRGBA(image.Rect(0, 0, e.normalize, e.normalize))
			draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
			src = dst
		}
	}

	bounds := src.Bounds()
	cellW := bounds.Dx() / domain.BoardFiles
	cellH := bounds.Dy() / domain.BoardRanks
	if cellW == 0 || cellH == 0 {
		return SquareBatch{}, fmt.Errorf("%w: %dx%d", ErrImageTooSmall, bounds.Dx(), bounds.Dy())
	}

	batch := SquareBatch{
		Size:     e.squareSize,
		Channels: DefaultChannels,
		Data:     make([][]float32, 0, domain.BoardSquares),
	}
	cell := image.NewRGBA(image.Rect(0, 0, e.squareSize, e.squareSize))
	for row := 0; row < domain.BoardRanks; row++ {
		for col := 0; col < domain.BoardFiles; col++ {
			sr := image.Rect(
				bounds.Min.X+col*cellW,
				bounds.Min.Y+row*cellH,
				bounds.Min.X+(col+1)*cellW,
				bounds.Min.Y+(row+1)*cellH,
			)
			e.scaler.Scale(cell, cell.Bounds(), src, sr, draw.Src, nil)
			batch.Data = append(batch.Data, toTensor(cell))
		}
	}
	return batch, nil
}

func toTensor(img *image.RGBA) []float32 {
	b := img.Bounds()
	out := make([]float32, 0, b.Dx()*b.Dy()*DefaultChannels)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			off := img.PixOffset(x, y)
			out = append(out,
				float32(img.Pix[off])/255,
				float32(img.Pix[off+1])/255,
				float32(img.Pix[off+2])/255,
			)
		}
	}
	return out
}
