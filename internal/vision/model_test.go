package vision

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// identityModel routes input i straight to output i and softmaxes it.
func identityModel(t *testing.T, inputSize, channels, outputs int) *DenseModel {
	t.Helper()
	in := inputSize * inputSize * channels
	w := make([]float32, in*outputs)
	for o := 0; o < outputs && o < in; o++ {
		w[o*in+o] = 10
	}
	m, err := NewDenseModel(inputSize, channels, Layer{
		In: in, Out: outputs, Activation: ActivationSoftmax,
		Weights: w, Bias: make([]float32, outputs),
	})
	if err != nil {
		t.Fatalf("NewDenseModel: %v", err)
	}
	return m
}

func oneHot(n, hot int) []float32 {
	v := make([]float32, n)
	v[hot] = 1
	return v
}

func TestDenseModelPreservesOrder(t *testing.T) {
	m := identityModel(t, 4, 1, 13)
	m.workers = 3
	batch := make([][]float32, 64)
	for i := range batch {
		batch[i] = oneHot(16, i%13)
	}
	out, err := m.Predict(context.Background(), batch)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	for i, p := range out {
		best := 0
		for k := range p {
			if p[k] > p[best] {
				best = k
			}
		}
		if best != i%13 {
			t.Fatalf("sample %d: argmax %d want %d", i, best, i%13)
		}
	}
}

func TestDenseModelRejectsWrongShape(t *testing.T) {
	m := identityModel(t, 2, 1, 13)
	if _, err := m.Predict(context.Background(), [][]float32{make([]float32, 3)}); err == nil {
		t.Fatalf("expected shape error")
	}
}

func TestDenseModelCancelled(t *testing.T) {
	m := identityModel(t, 2, 1, 13)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	batch := make([][]float32, 64)
	for i := range batch {
		batch[i] = make([]float32, 4)
	}
	if _, err := m.Predict(ctx, batch); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestDenseModelRoundTrip(t *testing.T) {
	m := identityModel(t, 2, 3, 13)
	var buf bytes.Buffer
	n, err := m.WriteTo(&buf)
	if err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if n != int64(buf.Len()) {
		t.Fatalf("WriteTo reported %d bytes, wrote %d", n, buf.Len())
	}
	back, err := ReadDenseModel(&buf)
	if err != nil {
		t.Fatalf("ReadDenseModel: %v", err)
	}
	if back.InputSize() != 2 || back.Channels() != 3 || back.Outputs() != 13 {
		t.Fatalf("shape mismatch after round trip")
	}
	if diff := cmp.Diff(m.layers, back.layers); diff != "" {
		t.Fatalf("layers differ (-want +got):\n%s", diff)
	}
}

func TestReadDenseModelBadMagic(t *testing.T) {
	if _, err := ReadDenseModel(bytes.NewReader([]byte("NOPE\x01\x00\x02\x00\x01\x00\x01\x00"))); err == nil {
		t.Fatalf("expected magic error")
	}
}
