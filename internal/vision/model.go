package vision

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"runtime"
	"sync"
)

// Model maps N input tensors to N probability vectors in a single call.
type Model interface {
	Predict(ctx context.Context, batch [][]float32) ([][]float32, error)
	InputSize() int
	Channels() int
	Outputs() int
}

type Activation uint8

const (
	ActivationLinear Activation = iota
	ActivationReLU
	ActivationSoftmax
)

type Layer struct {
	In         int
	Out        int
	Activation Activation
	// Weights is row-major Out×In.
	Weights []float32
	Bias    []float32
}

func (l Layer) validate() error {
	if l.In <= 0 || l.Out <= 0 {
		return fmt.Errorf("layer dims must be positive: %dx%d", l.In, l.Out)
	}
	if len(l.Weights) != l.In*l.Out {
		return fmt.Errorf("layer weights: got %d want %d", len(l.Weights), l.In*l.Out)
	}
	if len(l.Bias) != l.Out {
		return fmt.Errorf("layer bias: got %d want %d", len(l.Bias), l.Out)
	}
	if l.Activation > ActivationSoftmax {
		return fmt.Errorf("unknown activation %d", l.Activation)
	}
	return nil
}

// DenseModel is a fully connected network over flattened square tensors.
type DenseModel struct {
	inputSize int
	channels  int
	layers    []Layer
	workers   int
}

var modelMagic = [4]byte{'B', 'S', 'N', 'N'}

const modelVersion uint16 = 1

func NewDenseModel(inputSize, channels int, layers ...Layer) (*DenseModel, error) {
	if inputSize <= 0 || channels <= 0 {
		return nil, fmt.Errorf("invalid input shape %dx%dx%d", inputSize, inputSize, channels)
	}
	if len(layers) == 0 {
		return nil, errors.New("model has no layers")
	}
	want := inputSize * inputSize * channels
	for i, l := range layers {
		if err := l.validate(); err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		if l.In != want {
			return nil, fmt.Errorf("layer %d expects %d inputs, previous produces %d", i, l.In, want)
		}
		want = l.Out
	}
	return &DenseModel{
		inputSize: inputSize,
		channels:  channels,
		layers:    layers,
		workers:   runtime.GOMAXPROCS(0),
	}, nil
}

func (m *DenseModel) InputSize() int { return m.inputSize }
func (m *DenseModel) Channels() int  { return m.channels }
func (m *DenseModel) Outputs() int   { return m.layers[len(m.layers)-1].Out }

// Predict evaluates the whole batch, fanning samples out over a fixed number
// of goroutines. Output order always matches input order.
func (m *DenseModel) Predict(ctx context.Context, batch [][]float32) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	want := m.inputSize * m.inputSize * m.channels
	for i, in := range batch {
		if len(in) != want {
			return nil, fmt.Errorf("sample %d has %d values, want %d", i, len(in), want)
		}
	}
	out := make([][]float32, len(batch))
	next := make(chan int)
	var wg sync.WaitGroup
	workers := m.workers
	if workers > len(batch) {
		workers = len(batch)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range next {
				out[i] = m.forward(batch[i])
			}
		}()
	}

	var err error
feed:
	for i := range batch {
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break feed
		case next <- i:
		}
	}
	close(next)
	wg.Wait()
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (m *DenseModel) forward(in []float32) []float32 {
	x := in
	for _, l := range m.layers {
		y := make([]float32, l.Out)
		for o := 0; o < l.Out; o++ {
			sum := l.Bias[o]
			row := l.Weights[o*l.In : (o+1)*l.In]
			for i, v := range row {
				sum += v * x[i]
			}
			y[o] = sum
		}
		switch l.Activation {
		case ActivationReLU:
			for i, v := range y {
				if v < 0 {
					y[i] = 0
				}
			}
		case ActivationSoftmax:
			softmax(y)
		}
		x = y
	}
	return x
}

func softmax(v []float32) {
	maxV := float32(math.Inf(-1))
	for _, x := range v {
		if x > maxV {
			maxV = x
		}
	}
	var sum float64
	for i, x := range v {
		e := math.Exp(float64(x - maxV))
		v[i] = float32(e)
		sum += e
	}
	if sum == 0 {
		return
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / sum)
	}
}

type modelHeader struct {
	Magic     [4]byte
	Version   uint16
	InputSize uint16
	Channels  uint16
	Layers    uint16
}

type layerHeader struct {
	In         uint32
	Out        uint32
	Activation uint8
}

// ReadDenseModel decodes the little-endian BSNN format written by WriteTo.
func ReadDenseModel(r io.Reader) (*DenseModel, error) {
	br := bufio.NewReader(r)
	var hdr modelHeader
	if err := binary.Read(br, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if hdr.Magic != modelMagic {
		return nil, fmt.Errorf("bad magic %q", hdr.Magic[:])
	}
	if hdr.Version != modelVersion {
		return nil, fmt.Errorf("unsupported model version %d", hdr.Version)
	}
	layers := make([]Layer, 0, hdr.Layers)
	for i := 0; i < int(hdr.Layers); i++ {
		var lh layerHeader
		if err := binary.Read(br, binary.LittleEndian, &lh); err != nil {
			return nil, fmt.Errorf("layer %d header: %w", i, err)
		}
		const maxParams = 1 << 28
		if uint64(lh.In)*uint64(lh.Out) > maxParams {
			return nil, fmt.Errorf("layer %d too large: %dx%d", i, lh.In, lh.Out)
		}
		l := Layer{
			In:         int(lh.In),
			Out:        int(lh.Out),
			Activation: Activation(lh.Activation),
			Weights:    make([]float32, int(lh.In)*int(lh.Out)),
			Bias:       make([]float32, lh.Out),
		}
		if err := binary.Read(br, binary.LittleEndian, l.Weights); err != nil {
			return nil, fmt.Errorf("layer %d weights: %w", i, err)
		}
		if err := binary.Read(br, binary.LittleEndian, l.Bias); err != nil {
			return nil, fmt.Errorf("layer %d bias: %w", i, err)
		}
		layers = append(layers, l)
	}
	return NewDenseModel(int(hdr.InputSize), int(hdr.Channels), layers...)
}

func LoadDenseModel(path string) (*DenseModel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadDenseModel(f)
}

func (m *DenseModel) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	hdr := modelHeader{
		Magic:     modelMagic,
		Version:   modelVersion,
		InputSize: uint16(m.inputSize),
		Channels:  uint16(m.channels),
		Layers:    uint16(len(m.layers)),
	}
	if err := binary.Write(cw, binary.LittleEndian, hdr); err != nil {
		return cw.n, err
	}
	for _, l := range m.layers {
		lh := layerHeader{In: uint32(l.In), Out: uint32(l.Out), Activation: uint8(l.Activation)}
		if err := binary.Write(cw, binary.LittleEndian, lh); err != nil {
			return cw.n, err
		}
		if err := binary.Write(cw, binary.LittleEndian, l.Weights); err != nil {
			return cw.n, err
		}
		if err := binary.Write(cw, binary.LittleEndian, l.Bias); err != nil {
			return cw.n, err
		}
	}
	return cw.n, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
