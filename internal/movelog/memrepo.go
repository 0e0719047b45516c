package movelog

import (
	"context"
	"sort"
	"sync"

	"github.com/park285/boardsight/internal/domain"
)

// memrepo is used when no database is configured.
type memrepo struct {
	mu      sync.RWMutex
	byCycle map[string]struct{}
	byGame  map[string][]domain.CycleRecord
}

func NewMemoryRepository() Repository {
	return &memrepo{
		byCycle: make(map[string]struct{}),
		byGame:  make(map[string][]domain.CycleRecord),
	}
}

func (m *memrepo) RecordCycle(_ context.Context, rec domain.CycleRecord) error {
	if _, err := cycleArgs(rec); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byCycle[rec.CycleID]; ok {
		return ErrDuplicateCycle
	}
	m.byCycle[rec.CycleID] = struct{}{}
	m.byGame[rec.GameID] = append(m.byGame[rec.GameID], rec)
	return nil
}

func (m *memrepo) RecentCycles(_ context.Context, gameID string, limit int) ([]domain.CycleRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	recs := append([]domain.CycleRecord(nil), m.byGame[gameID]...)
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].CreatedAt.After(recs[j].CreatedAt) })
	if len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

func (m *memrepo) GameMoves(_ context.Context, gameID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var moves []string
	for _, rec := range m.byGame[gameID] {
		if rec.HasMove() {
			moves = append(moves, rec.Move)
		}
	}
	return moves, nil
}
