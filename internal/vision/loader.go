package vision

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Loader loads a classifier off the caller's goroutine and reports readiness.
type Loader struct {
	load   func() (*Classifier, error)
	logger *zap.Logger

	once sync.Once
	done chan struct{}

	mu  sync.RWMutex
	c   *Classifier
	err error
}

func NewLoader(load func() (*Classifier, error), logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{load: load, logger: logger, done: make(chan struct{})}
}

// NewModelLoader loads the model file at path.
func NewModelLoader(path string, logger *zap.Logger) *Loader {
	return NewLoader(func() (*Classifier, error) { return LoadClassifier(path, logger) }, logger)
}

// Start begins loading in the background. Calling it more than once is a no-op.
func (l *Loader) Start() {
	l.once.Do(func() {
		go func() {
			c, err := l.load()
			l.mu.Lock()
			l.c, l.err = c, err
			l.mu.Unlock()
			if err != nil {
				l.logger.Error("classifier_load_failed", zap.Error(err))
			}
			close(l.done)
		}()
	})
}

func (l *Loader) Ready() bool {
	select {
	case <-l.done:
		l.mu.RLock()
		defer l.mu.RUnlock()
		return l.err == nil
	default:
		return false
	}
}

// Classifier returns ErrNotReady while loading is in progress, and the load
// error once loading has failed.
func (l *Loader) Classifier() (*Classifier, error) {
	select {
	case <-l.done:
	default:
		return nil, ErrNotReady
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.c, l.err
}

// Wait blocks until loading finishes or ctx is done.
func (l *Loader) Wait(ctx context.Context) (*Classifier, error) {
	l.Start()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.done:
	}
	return l.Classifier()
}
