package followerwatch

import (
	"context"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Watch checks the follower count right away and then on every tick of the
// Watcher's schedule until ctx is cancelled. A tick that arrives while a
// cycle is still running is skipped. Failures inside a cycle are logged and
// never stop the loop.
//
// Watch returns nil once ctx is done and the cycle in flight, if any, has
// finished. It only returns an error if the schedule cannot be parsed.
func (w *Watcher) Watch(ctx context.Context) error {
	sched, err := w.cronSchedule()
	if err != nil {
		return err
	}
	w.seedLastCount(ctx)

	logger := cronLogger{w.log}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger)))
	job := cron.FuncJob(func() { w.tick(ctx) })
	c.Schedule(sched, job)

	w.log.Infow("watching follower count",
		"account", w.Account,
		"source", w.source.Name(),
		"target", w.Target,
		"milestones", w.Milestones,
		"poll_interval", w.Interval,
		"schedule", w.schedule)

	c.Start()
	// Run once immediately instead of waiting for the first tick, through
	// the same Recover wrapper as the scheduled runs.
	first := make(chan struct{})
	go func() {
		defer close(first)
		cron.NewChain(cron.Recover(logger)).Then(job).Run()
	}()

	<-ctx.Done()
	<-c.Stop().Done()
	<-first
	w.log.Infow("stopped watching", "account", w.Account)
	return nil
}

// seedLastCount makes Status report the stored count before the first cycle
// has finished.
func (w *Watcher) seedLastCount(ctx context.Context) {
	n, err := w.load(ctx)
	if err != nil {
		w.log.Warnw("unable to load previous follower count",
			"account", w.Account,
			"err", err)
		return
	}
	w.mu.Lock()
	w.lastCount = n
	w.mu.Unlock()
}

func (w *Watcher) cronSchedule() (cron.Schedule, error) {
	if w.schedule == "" {
		return cron.Every(w.Interval), nil
	}
	sched, err := cron.ParseStandard(w.schedule)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid schedule %q", w.schedule)
	}
	return sched, nil
}

func (w *Watcher) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	_, err := w.Check(ctx)
	if errors.Cause(err) == ErrCycleInProgress {
		w.log.Warnw("skipping tick, previous check still running",
			"account", w.Account)
	}
}

// cronLogger sends the cron scheduler's logging to zap.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "err", err)...)
}
