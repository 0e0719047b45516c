package vision

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/park285/boardsight/internal/domain"
)

func TestLoaderNotReadyUntilLoaded(t *testing.T) {
	release := make(chan struct{})
	l := NewLoader(func() (*Classifier, error) {
		<-release
		return NewClassifier(&scriptedModel{outputs: domain.NumLabels}, nil)
	}, nil)
	l.Start()
	if l.Ready() {
		t.Fatalf("loader ready before load finished")
	}
	if _, err := l.Classifier(); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := l.Wait(ctx)
	if err != nil || c == nil {
		t.Fatalf("Wait: %v", err)
	}
	if !l.Ready() {
		t.Fatalf("expected ready")
	}
}

func TestLoaderReportsFailure(t *testing.T) {
	boom := errors.New("boom")
	l := NewLoader(func() (*Classifier, error) { return nil, boom }, nil)
	_, err := l.Wait(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected load error, got %v", err)
	}
	if l.Ready() {
		t.Fatalf("failed loader must not be ready")
	}
}

func TestLoaderWaitHonoursContext(t *testing.T) {
	l := NewLoader(func() (*Classifier, error) { select {} }, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := l.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
}
