package vision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/park285/boardsight/internal/domain"
	"go.uber.org/zap"
)

var (
	ErrModelLoad = errors.New("classifier model load failed")
	ErrNotReady  = errors.New("classifier not ready")
)

type ClassificationResult struct {
	Grid       domain.Grid
	Confidence []float64
}

// LowConfidence returns the indexes of squares scored below threshold (0-100).
func (r ClassificationResult) LowConfidence(threshold float64) []int {
	var out []int
	for i, c := range r.Confidence {
		if c < threshold {
			out = append(out, i)
		}
	}
	return out
}

type Classifier struct {
	model  Model
	labels []domain.PieceLabel
	logger *zap.Logger
}

func NewClassifier(model Model, logger *zap.Logger) (*Classifier, error) {
	if model == nil {
		return nil, fmt.Errorf("%w: nil model", ErrModelLoad)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	labels := domain.Labels()
	if model.Outputs() != len(labels) {
		return nil, fmt.Errorf("%w: model has %d outputs, label set has %d", ErrModelLoad, model.Outputs(), len(labels))
	}
	return &Classifier{model: model, labels: labels, logger: logger}, nil
}

// LoadClassifier reads a model artifact from disk. Any failure is fatal for
// the caller; there is no fallback model.
func LoadClassifier(path string, logger *zap.Logger) (*Classifier, error) {
	start := time.Now()
	model, err := LoadDenseModel(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrModelLoad, path, err)
	}
	c, err := NewClassifier(model, logger)
	if err != nil {
		return nil, err
	}
	c.logger.Info("classifier_loaded",
		zap.String("path", path),
		zap.Int("input_size", model.InputSize()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return c, nil
}

func (c *Classifier) InputSize() int { return c.model.InputSize() }

// Classify runs one batched inference over every square in the batch.
func (c *Classifier) Classify(ctx context.Context, batch SquareBatch) (*ClassificationResult, error) {
	if batch.Size != c.model.InputSize() || batch.Channels != c.model.Channels() {
		return nil, fmt.Errorf("batch shape %dx%dx%d does not match model %dx%dx%d",
			batch.Size, batch.Size, batch.Channels,
			c.model.InputSize(), c.model.InputSize(), c.model.Channels())
	}
	probs, err := c.model.Predict(ctx, batch.Data)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	if len(probs) != len(batch.Data) {
		return nil, fmt.Errorf("model returned %d predictions for %d squares", len(probs), len(batch.Data))
	}

	res := &ClassificationResult{
		Grid:       make(domain.Grid, len(probs)),
		Confidence: make([]float64, len(probs)),
	}
	for i, p := range probs {
		if len(p) != len(c.labels) {
			return nil, fmt.Errorf("prediction %d has %d classes", i, len(p))
		}
		best := 0
		for k := 1; k < len(p); k++ {
			if p[k] > p[best] {
				best = k
			}
		}
		res.Grid[i] = c.labels[best]
		res.Confidence[i] = float64(p[best]) * 100
	}
	return res, nil
}
