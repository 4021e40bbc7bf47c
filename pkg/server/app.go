package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	xhttp "FinDS/pkg/http"
	pkgkafka "FinDS/pkg/kafka"
	applogger "FinDS/pkg/logger"
	"FinDS/pkg/queue"
)

// App encapsulates the entire application lifecycle.
type App struct {
	log      *applogger.Logger
	http     *xhttp.Server
	queue    queue.Queue
	consumer *pkgkafka.Consumer
	closers  []namedCloser
	bg       []namedRunner
	stopWait time.Duration
}

type namedRunner struct {
	name string
	fn   func(ctx context.Context) error
}

type namedCloser struct {
	name string
	fn   func() error
}

// Option configures App.
type Option func(*App)

// WithQueue runs q for the lifetime of the app.
func WithQueue(q queue.Queue) Option {
	return func(a *App) { a.queue = q }
}

// WithConsumer runs a Kafka consumer for the lifetime of the app.
func WithConsumer(c *pkgkafka.Consumer) Option {
	return func(a *App) { a.consumer = c }
}

// WithCloser registers fn to run after every component has stopped.
// Closers run in registration order.
func WithCloser(name string, fn func() error) Option {
	return func(a *App) { a.closers = append(a.closers, namedCloser{name: name, fn: fn}) }
}

// WithBackground runs fn alongside the HTTP server until shutdown. An error
// from fn stops the app.
func WithBackground(name string, fn func(ctx context.Context) error) Option {
	return func(a *App) { a.bg = append(a.bg, namedRunner{name: name, fn: fn}) }
}

// WithStopTimeout bounds how long queue and consumer get to drain.
func WithStopTimeout(d time.Duration) Option {
	return func(a *App) { a.stopWait = d }
}

// New creates a new App instance with all dependencies.
func New(lgr *applogger.Logger, srv *xhttp.Server, opts ...Option) *App {
	if lgr == nil {
		lgr = applogger.Nop()
	}
	a := &App{log: lgr, http: srv, stopWait: 30 * time.Second}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts the application and blocks until ctx is cancelled, SIGINT or
// SIGTERM arrives, or the HTTP server fails.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.queue != nil {
		if err := a.queue.Start(); err != nil {
			return fmt.Errorf("start queue: %w", err)
		}
	}
	if a.consumer != nil {
		if err := a.consumer.Start(); err != nil {
			a.stopWorkers()
			return fmt.Errorf("start kafka consumer: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(a.http.Start)
	for _, r := range a.bg {
		r := r
		g.Go(func() error {
			if err := r.fn(gctx); err != nil {
				return fmt.Errorf("%s: %w", r.name, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("shutting down")
		return a.http.Stop(context.Background())
	})

	err := g.Wait()
	a.stopWorkers()
	a.close()
	a.log.Info("shutdown complete")
	return err
}

// stopWorkers drains the consumer before the queue so ingested rows are
// stored before job workers exit.
func (a *App) stopWorkers() {
	ctx, cancel := context.WithTimeout(context.Background(), a.stopWait)
	defer cancel()

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	if a.queue != nil {
		if err := a.queue.Stop(ctx); err != nil {
			a.log.Warn("queue stop error", applogger.Error(err))
		}
	}
}

func (a *App) close() {
	// Flush aggregated error logs while the producer is still open.
	a.log.RemoveCollector()
	for _, c := range a.closers {
		if err := c.fn(); err != nil {
			a.log.Warn("close error", applogger.String("component", c.name), applogger.Error(err))
		}
	}
}
