// Package scheduler runs the poll loops that feed the dispatcher.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"feedwatch/internal/metrics"
	"feedwatch/internal/model"
	"feedwatch/internal/source"
)

// Sources lists the source identifiers that currently have subscribers.
type Sources interface {
	ListSources(ctx context.Context, kind model.SourceKind) ([]string, error)
}

// Dispatcher receives the items listed in one iteration.
type Dispatcher interface {
	Dispatch(ctx context.Context, items []model.Item) error
}

// Clock abstracts waiting so tests can drive the loop.
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// DefaultIdleBackoff is the pause taken instead of a shorter interval when
// an iteration polled nothing successfully.
const DefaultIdleBackoff = time.Second

// Loop polls every subscribed source of one kind, then waits Interval.
type Loop struct {
	name        string
	sources     Sources
	source      source.Source
	dispatcher  Dispatcher
	log         *slog.Logger
	interval    time.Duration
	idle        time.Duration
	clock       Clock
	concurrent  bool
	concurrency int
}

// Option configures a Loop.
type Option func(*Loop)

// WithInterval sets the pause between iterations. Zero means back-to-back.
func WithInterval(d time.Duration) Option {
	return func(l *Loop) { l.interval = d }
}

// WithIdleBackoff sets the minimum pause after an iteration in which no
// source was polled successfully.
func WithIdleBackoff(d time.Duration) Option {
	return func(l *Loop) { l.idle = d }
}

// WithClock overrides the clock used for the pause between iterations.
func WithClock(c Clock) Option {
	return func(l *Loop) { l.clock = c }
}

// WithConcurrency polls up to n sources at once. Values below 2 keep
// polling sequential.
func WithConcurrency(n int) Option {
	return func(l *Loop) {
		l.concurrent = n > 1
		l.concurrency = n
	}
}

// New creates a Loop for src. The loop name defaults to the source kind.
func New(sources Sources, src source.Source, dispatcher Dispatcher, log *slog.Logger, opts ...Option) *Loop {
	l := &Loop{
		name:       string(src.Kind()),
		sources:    sources,
		source:     src,
		dispatcher: dispatcher,
		interval:   time.Minute,
		idle:       DefaultIdleBackoff,
		clock:      realClock{},
	}
	for _, opt := range opts {
		opt(l)
	}
	l.log = log.With("loop", l.name)
	return l
}

// Name returns the loop name used in logs and metrics.
func (l *Loop) Name() string { return l.name }

// Run polls until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	l.log.Info("poll loop started", "interval", l.interval, "concurrent", l.concurrent)
	for {
		polled, err := l.runOnce(ctx)
		if err != nil && ctx.Err() == nil {
			l.log.Error("poll iteration", "error", err)
		}
		wait := l.interval
		if (err != nil || polled == 0) && wait < l.idle {
			wait = l.idle
		}
		select {
		case <-ctx.Done():
			l.log.Info("poll loop stopped")
			return
		case <-l.clock.After(wait):
		}
	}
}

// RunOnce polls each subscribed source once and dispatches what it lists.
// A failing source is logged and skipped; the returned error reports a
// failure to enumerate the sources.
func (l *Loop) RunOnce(ctx context.Context) error {
	_, err := l.runOnce(ctx)
	return err
}

// runOnce returns the number of sources that were listed and dispatched.
func (l *Loop) runOnce(ctx context.Context) (int, error) {
	start := time.Now()
	ids, err := l.sources.ListSources(ctx, l.source.Kind())
	if err != nil {
		metrics.RecordPoll(l.name, "error", time.Since(start))
		return 0, fmt.Errorf("list sources: %w", err)
	}

	var failed atomic.Int64
	if l.concurrent {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(l.concurrency)
		for _, id := range ids {
			g.Go(func() error {
				if !l.poll(gctx, id) {
					failed.Add(1)
				}
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for _, id := range ids {
			if ctx.Err() != nil {
				break
			}
			if !l.poll(ctx, id) {
				failed.Add(1)
			}
		}
	}

	status := "ok"
	if failed.Load() > 0 {
		status = "partial"
	}
	metrics.RecordPoll(l.name, status, time.Since(start))
	l.log.Debug("poll iteration done", "sources", len(ids), "failed", failed.Load(), "duration", time.Since(start))
	return len(ids) - int(failed.Load()), ctx.Err()
}

// poll reports whether the source was listed and dispatched.
func (l *Loop) poll(ctx context.Context, sourceID string) bool {
	items, err := l.source.List(ctx, sourceID)
	if err != nil {
		l.log.Warn("list source", "source_id", sourceID, "error", err)
		return false
	}
	if err := l.dispatcher.Dispatch(ctx, items); err != nil {
		l.log.Error("dispatch", "source_id", sourceID, "error", err)
		return false
	}
	return true
}
