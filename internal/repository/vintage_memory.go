package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"FinDS/internal/domain/models"
	"FinDS/internal/domain/repository"
)

type obsKey struct {
	date, realtimeStart string
}

type memorySeries struct {
	rows      map[obsKey]models.Observation
	updatedAt time.Time
}

// MemoryVintageStore is the VintageStore used when ClickHouse is disabled.
type MemoryVintageStore struct {
	mu     sync.RWMutex
	series map[string]*memorySeries
}

func NewMemoryVintageStore() *MemoryVintageStore {
	return &MemoryVintageStore{series: make(map[string]*memorySeries)}
}

var _ repository.VintageStore = (*MemoryVintageStore)(nil)

func (s *MemoryVintageStore) Init(context.Context) error { return nil }

func (s *MemoryVintageStore) Put(_ context.Context, seriesID string, obs []models.Observation) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ms, ok := s.series[seriesID]
	if !ok {
		ms = &memorySeries{rows: make(map[obsKey]models.Observation)}
		s.series[seriesID] = ms
	}
	n := 0
	for _, o := range obs {
		if o.Date == "" {
			continue
		}
		ms.rows[obsKey{o.Date, o.RealtimeStart}] = o
		n++
	}
	ms.updatedAt = time.Now().UTC()
	return n, nil
}

// Get returns rows ordered by (date, realtime_start).
func (s *MemoryVintageStore) Get(_ context.Context, seriesID string) ([]models.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ms, ok := s.series[seriesID]
	if !ok || len(ms.rows) == 0 {
		return nil, fmt.Errorf("%w: %s", repository.ErrSeriesNotFound, seriesID)
	}
	out := make([]models.Observation, 0, len(ms.rows))
	for _, o := range ms.rows {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].RealtimeStart < out[j].RealtimeStart
	})
	return out, nil
}

func (s *MemoryVintageStore) List(context.Context) ([]models.SeriesInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.SeriesInfo, 0, len(s.series))
	for id, ms := range s.series {
		out = append(out, models.SeriesInfo{SeriesID: id, Observations: len(ms.rows), UpdatedAt: ms.updatedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SeriesID < out[j].SeriesID })
	return out, nil
}

func (s *MemoryVintageStore) Delete(_ context.Context, seriesID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.series, seriesID)
	return nil
}

func (s *MemoryVintageStore) Health(context.Context) error { return nil }
