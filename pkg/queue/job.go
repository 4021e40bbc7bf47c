package queue

import "context"

// Job defines a queue job handler.
type Job interface {
	// Name identifies the job in logs.
	Name() string

	// Type is the message type the job consumes.
	Type() string

	// Handle processes one message payload. Returning an error schedules a
	// retry until QueueConfig.RetryLimit is reached.
	Handle(ctx context.Context, payload interface{}) error
}

// JobFunc adapts a function to Job.
type JobFunc struct {
	JobName string
	JobType string
	Fn      func(ctx context.Context, payload interface{}) error
}

func (j JobFunc) Name() string { return j.JobName }
func (j JobFunc) Type() string { return j.JobType }

func (j JobFunc) Handle(ctx context.Context, payload interface{}) error {
	return j.Fn(ctx, payload)
}
