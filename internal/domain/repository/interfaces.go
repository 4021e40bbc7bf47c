package repository

import (
	"context"
	"errors"
	"time"

	"FinDS/internal/domain/models"
)

var ErrSeriesNotFound = errors.New("series not found")

// VintageStore keeps raw ALFRED observations per series. Put merges rows by
// (date, realtime_start); a later Put of the same key replaces the value.
type VintageStore interface {
	Init(ctx context.Context) error
	Put(ctx context.Context, seriesID string, obs []models.Observation) (int, error)
	Get(ctx context.Context, seriesID string) ([]models.Observation, error)
	List(ctx context.Context) ([]models.SeriesInfo, error)
	Delete(ctx context.Context, seriesID string) error
	Health(ctx context.Context) error
}

// EventPublisher sends domain events, such as job completions, to a topic.
type EventPublisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

// Metrics records service level measurements.
type Metrics interface {
	ObserveRecipe(recipe string, d time.Duration, err error)
	CacheLookup(kind string, hit bool)
	JobFinished(jobType, status string, d time.Duration)
	Ingested(source string, n int)
}

// EventRelay carries encoded job events between processes that share a job
// store. Subscribe blocks until ctx is done.
type EventRelay interface {
	Publish(ctx context.Context, payload []byte) error
	Subscribe(ctx context.Context, deliver func(payload []byte)) error
}
