package repository

import (
	"context"

	"FinDS/internal/domain/repository"
	"FinDS/pkg/logger"
)

// LogPublisher stands in for Kafka when it is disabled: events are logged
// at debug level and dropped.
type LogPublisher struct {
	logger *logger.Logger
}

func NewLogPublisher(lgr *logger.Logger) *LogPublisher {
	if lgr == nil {
		lgr = logger.Nop()
	}
	return &LogPublisher{logger: lgr}
}

var _ repository.EventPublisher = (*LogPublisher)(nil)

func (p *LogPublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.logger.Debug("event", logger.String("topic", topic), logger.Any("payload", payload))
	return nil
}
