package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"FinDS/internal/domain/models"
	domrepo "FinDS/internal/domain/repository"
	"FinDS/internal/services/alfred"
	"FinDS/internal/services/factors"
	"FinDS/pkg/cache"
	applogger "FinDS/pkg/logger"
	"FinDS/pkg/queue"
)

const JobTypeFactorsEM = "factors_em"

var ErrJobNotFound = errors.New("job not found")

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Done reports whether the status is final.
func (s JobStatus) Done() bool { return s == JobCompleted || s == JobFailed }

// Job is the stored state of a background factor-EM run.
type Job struct {
	ID         string             `json:"id"`
	Type       string             `json:"type"`
	Status     JobStatus          `json:"status"`
	Progress   *factors.Iteration `json:"progress,omitempty"`
	Result     *FactorsEMResult   `json:"result,omitempty"`
	Error      string             `json:"error,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
	StartedAt  *time.Time         `json:"started_at,omitempty"`
	FinishedAt *time.Time         `json:"finished_at,omitempty"`
}

// Event reports the stored state of j as a progress event.
func (j *Job) Event() JobEvent {
	return JobEvent{JobID: j.ID, Status: j.Status, Iteration: j.Progress, Error: j.Error, Time: time.Now().UTC()}
}

// JobEvent is streamed to progress subscribers.
type JobEvent struct {
	JobID     string             `json:"job_id"`
	Status    JobStatus          `json:"status"`
	Iteration *factors.Iteration `json:"iteration,omitempty"`
	Error     string             `json:"error,omitempty"`
	Time      time.Time          `json:"time"`
}

// CompletedEvent is published when a job finishes successfully.
type CompletedEvent struct {
	Event      string    `json:"event"`
	JobID      string    `json:"job_id"`
	Iterations int       `json:"iterations"`
	Factors    int       `json:"factors"`
	Converged  bool      `json:"converged"`
	Rows       int       `json:"rows"`
	Columns    int       `json:"columns"`
	Duration   float64   `json:"duration_seconds"`
	FinishedAt time.Time `json:"finished_at"`
}

type factorsEMPayload struct {
	JobID   string                      `json:"job_id"`
	Request *models.FactorsEMJobRequest `json:"request"`
}

// JobService runs factor-EM imputations in the background. Job state lives
// in a shared cache so any instance can answer status queries.
type JobService struct {
	queue    queue.Queue
	store    cache.Service
	hub      *Hub
	datasets *DatasetService
	events   domrepo.EventPublisher
	topic    string
	ttl      time.Duration
	metrics  domrepo.Metrics
	log      *applogger.Logger
	now      func() time.Time
}

// JobServiceConfig holds the job service settings.
type JobServiceConfig struct {
	EventsTopic string
	ResultTTL   time.Duration
}

// NewJobService creates the service and registers its job on q. datasets and
// events may be nil.
func NewJobService(q queue.Queue, store cache.Service, hub *Hub, datasets *DatasetService, events domrepo.EventPublisher, cfg JobServiceConfig, m domrepo.Metrics, lgr *applogger.Logger) *JobService {
	if m == nil {
		m = nopMetrics{}
	}
	if lgr == nil {
		lgr = applogger.Nop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	s := &JobService{
		queue:    q,
		store:    store,
		hub:      hub,
		datasets: datasets,
		events:   events,
		topic:    cfg.EventsTopic,
		ttl:      cfg.ResultTTL,
		metrics:  m,
		log:      lgr,
		now:      time.Now,
	}
	q.RegisterJob(queue.JobFunc{JobName: "factors-em", JobType: JobTypeFactorsEM, Fn: s.handleFactorsEM})
	return s
}

func jobKey(id string) string { return cache.GenerateKey("jobs", id) }

func (s *JobService) save(ctx context.Context, job *Job) error {
	if err := s.store.Set(ctx, jobKey(job.ID), job, s.ttl); err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

// Get returns a job's current state.
func (s *JobService) Get(ctx context.Context, id string) (*Job, error) {
	var job Job
	if err := s.store.Get(ctx, jobKey(id), &job); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}
	return &job, nil
}

// Subscribe streams events of one job. See Hub.Subscribe.
func (s *JobService) Subscribe(id string) (<-chan JobEvent, func()) {
	return s.hub.Subscribe(id)
}

// Watch subscribes to a job and then reads its stored state, so an event
// published after the read is never missed. The caller must call cancel.
func (s *JobService) Watch(ctx context.Context, id string) (*Job, <-chan JobEvent, func(), error) {
	events, cancel := s.hub.Subscribe(id)
	job, err := s.Get(ctx, id)
	if err != nil {
		cancel()
		return nil, nil, nil, err
	}
	return job, events, cancel, nil
}

// SubmitFactorsEM queues a factor-EM run and returns the queued job.
func (s *JobService) SubmitFactorsEM(ctx context.Context, req *models.FactorsEMJobRequest) (*Job, error) {
	if !req.FredMD {
		if err := req.Panel.Validate(); err != nil {
			return nil, &RecipeError{Recipe: JobTypeFactorsEM, Err: err}
		}
	} else if s.datasets == nil {
		return nil, &RecipeError{Recipe: JobTypeFactorsEM, Err: errors.New("fredmd datasets are not configured")}
	}

	job := &Job{
		ID:        uuid.NewString(),
		Type:      JobTypeFactorsEM,
		Status:    JobQueued,
		CreatedAt: s.now().UTC(),
	}
	if err := s.save(ctx, job); err != nil {
		return nil, err
	}
	if err := s.queue.Enqueue(ctx, JobTypeFactorsEM, factorsEMPayload{JobID: job.ID, Request: req}); err != nil {
		job.Status = JobFailed
		job.Error = err.Error()
		_ = s.save(ctx, job)
		return nil, fmt.Errorf("enqueue job: %w", err)
	}
	s.log.Info("job queued", applogger.String("job_id", job.ID), applogger.String("type", job.Type))
	return job, nil
}

func (s *JobService) handleFactorsEM(ctx context.Context, payload interface{}) error {
	p, err := queue.ParsePayload[factorsEMPayload](payload)
	if err != nil {
		return err
	}
	if p.Request == nil {
		return fmt.Errorf("job %s has no request", p.JobID)
	}

	job, err := s.Get(ctx, p.JobID)
	if errors.Is(err, ErrJobNotFound) {
		// expired or never saved; run it anyway so the result is stored
		job = &Job{ID: p.JobID, Type: JobTypeFactorsEM, CreatedAt: s.now().UTC()}
	} else if err != nil {
		return err
	}

	started := s.now().UTC()
	job.Status = JobRunning
	job.StartedAt = &started
	job.Error = ""
	if err := s.save(ctx, job); err != nil {
		return err
	}
	s.hub.Publish(JobEvent{JobID: job.ID, Status: JobRunning, Time: started})

	res, err := s.runFactorsEM(ctx, job, p.Request)
	finished := s.now().UTC()
	job.FinishedAt = &finished
	elapsed := finished.Sub(started)

	if err != nil {
		job.Status = JobFailed
		job.Error = err.Error()
		_ = s.save(context.WithoutCancel(ctx), job)
		s.hub.Publish(JobEvent{JobID: job.ID, Status: JobFailed, Error: job.Error, Time: finished})
		s.metrics.JobFinished(JobTypeFactorsEM, string(JobFailed), elapsed)
		s.log.Error("job failed", applogger.String("job_id", job.ID), applogger.Error(err))

		var recipeErr *RecipeError
		if errors.As(err, &recipeErr) || errors.Is(err, alfred.ErrNotFound) {
			// retries cannot fix bad input or a missing vintage
			return nil
		}
		return err
	}

	job.Status = JobCompleted
	job.Result = res
	if err := s.save(ctx, job); err != nil {
		return err
	}
	s.hub.Publish(JobEvent{JobID: job.ID, Status: JobCompleted, Time: finished})
	s.metrics.JobFinished(JobTypeFactorsEM, string(JobCompleted), elapsed)
	s.log.Info("job completed",
		applogger.String("job_id", job.ID),
		applogger.Int("iterations", res.Iterations),
		applogger.Int("factors", res.Factors),
		applogger.Duration("latency_ms", elapsed))

	s.publishCompleted(ctx, job, res, elapsed)
	return nil
}

func (s *JobService) runFactorsEM(ctx context.Context, job *Job, req *models.FactorsEMJobRequest) (*FactorsEMResult, error) {
	panel := req.Panel
	if req.FredMD {
		if s.datasets == nil {
			return nil, &RecipeError{Recipe: JobTypeFactorsEM, Err: errors.New("fredmd datasets are not configured")}
		}
		p, err := s.datasets.FactorPanel(ctx, req.Kind, req.Vintage)
		if err != nil {
			return nil, err
		}
		panel = p
	}
	x, err := panel.Matrix()
	if err != nil {
		return nil, &RecipeError{Recipe: JobTypeFactorsEM, Err: err}
	}

	opts := factorsOptions(req.Kmax, req.P, req.MaxIter, req.Tol)
	opts.Progress = func(it factors.Iteration) {
		job.Progress = &it
		if err := s.save(ctx, job); err != nil {
			s.log.Warn("save job progress", applogger.String("job_id", job.ID), applogger.Error(err))
		}
		s.hub.Publish(JobEvent{JobID: job.ID, Status: JobRunning, Iteration: &it, Time: s.now().UTC()})
	}

	start := time.Now()
	res, err := runFactorsEM(x, panel, opts)
	s.metrics.ObserveRecipe(JobTypeFactorsEM, time.Since(start), err)
	if err != nil {
		return nil, &RecipeError{Recipe: JobTypeFactorsEM, Err: err}
	}
	return res, nil
}

func (s *JobService) publishCompleted(ctx context.Context, job *Job, res *FactorsEMResult, elapsed time.Duration) {
	if s.events == nil || s.topic == "" {
		return
	}
	rows, cols := res.Panel.Dims()
	ev := CompletedEvent{
		Event:      "factors_em.completed",
		JobID:      job.ID,
		Iterations: res.Iterations,
		Factors:    res.Factors,
		Converged:  res.Converged,
		Rows:       rows,
		Columns:    cols,
		Duration:   elapsed.Seconds(),
		FinishedAt: *job.FinishedAt,
	}
	if err := s.events.PublishMessage(ctx, s.topic, ev); err != nil {
		s.log.Warn("publish job event", applogger.String("job_id", job.ID), applogger.Error(err))
	}
}
