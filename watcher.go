package followerwatch

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ErrCycleInProgress is returned by Check when another cycle has not finished
// yet. The caller's cycle is skipped, not queued.
var ErrCycleInProgress = errors.New("a check cycle is already in progress")

// CountSource reports the current follower count of the watched account.
// A non-nil error means the fetch failed and the count must not be used.
type CountSource interface {
	FetchCount(ctx context.Context) (int, error)
	Name() string
}

// Notifier delivers one plain-text message to its configured destination.
type Notifier interface {
	Send(ctx context.Context, message string) error
}

// NotifierFunc adapts an ordinary function to the Notifier interface.
type NotifierFunc func(ctx context.Context, message string) error

// Send calls f(ctx, message).
func (f NotifierFunc) Send(ctx context.Context, message string) error {
	return f(ctx, message)
}

// FailurePolicy decides what a cycle does when the count cannot be fetched.
type FailurePolicy int

const (
	// FailureSkip ends the cycle without evaluating or saving anything.
	FailureSkip FailurePolicy = iota
	// FailureZero treats the count as 0, evaluates and saves it. Saving 0
	// over a real count means the next successful fetch is reported as
	// growth from zero.
	FailureZero
)

// ParseFailurePolicy maps "skip" and "zero" to a FailurePolicy.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch s {
	case "", "skip":
		return FailureSkip, nil
	case "zero":
		return FailureZero, nil
	default:
		return FailureSkip, errors.Errorf("unknown fetch failure policy %q (use skip or zero)", s)
	}
}

func (p FailurePolicy) String() string {
	if p == FailureZero {
		return "zero"
	}
	return "skip"
}

// CycleReport describes what a single cycle saw and did.
type CycleReport struct {
	Started  time.Time `json:"started"`
	Previous int       `json:"previous"`
	Current  int       `json:"current"`
	Events   []Event   `json:"events,omitempty"`
	Sent     int       `json:"sent"`

	// FetchErr, LoadErr, SendErr and SaveErr hold the failures of the
	// corresponding step. None of them stop the cycle except FetchErr
	// under FailureSkip.
	FetchErr error `json:"-"`
	LoadErr  error `json:"-"`
	SendErr  error `json:"-"`
	SaveErr  error `json:"-"`

	// Saved is true when the current count was persisted.
	Saved bool `json:"saved"`
}

// Err combines every failure the cycle ran into.
func (r CycleReport) Err() error {
	return multierr.Combine(r.FetchErr, r.LoadErr, r.SendErr, r.SaveErr)
}

// Status is a point-in-time view of a Watcher, served by the status API.
type Status struct {
	Account       string        `json:"account"`
	Source        string        `json:"source"`
	Target        int           `json:"target"`
	Milestones    []int         `json:"milestones"`
	Interval      string        `json:"interval"`
	Running       bool          `json:"running"`
	Cycles        int64         `json:"cycles"`
	SkippedCycles int64         `json:"skipped_cycles"`
	LastCount     int           `json:"last_count"`
	LastCheck     time.Time     `json:"last_check,omitempty"`
	LastError     string        `json:"last_error,omitempty"`
	LastReport    *CycleReport  `json:"last_report,omitempty"`
	FailurePolicy string        `json:"on_fetch_failure"`
	FetchTimeout  time.Duration `json:"fetch_timeout"`
}

// Watcher runs the fetch, compare and notify cycle for one account.
type Watcher struct {
	// Account is the account being watched, used in messages and logs.
	Account string

	// Platform names the social network in messages.
	Platform string

	// Target is the follower count that earns a one-time congratulation.
	Target int

	// Milestones are further counts that each earn their own message.
	Milestones []int

	// Interval is how often the count is checked. It is ignored when a cron
	// schedule has been set with WithSchedule.
	Interval time.Duration

	source   CountSource
	notifier Notifier
	store    StateStore

	schedule      string
	failurePolicy FailurePolicy
	fetchTimeout  time.Duration
	notifyTimeout time.Duration
	storeTimeout  time.Duration
	messages      *Messages
	log           *zap.SugaredLogger

	running atomic.Bool
	cycles  atomic.Int64
	skipped atomic.Int64

	mu         sync.RWMutex
	lastReport *CycleReport
	lastCount  int
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger the Watcher uses. Without it nothing is logged.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(w *Watcher) {
		w.log = logger
	}
}

// WithMilestones replaces DefaultMilestones.
func WithMilestones(milestones []int) Option {
	return func(w *Watcher) {
		w.Milestones = NormalizeMilestones(milestones)
	}
}

// WithPlatform sets the network name used in messages.
func WithPlatform(platform string) Option {
	return func(w *Watcher) {
		w.Platform = platform
	}
}

// WithFailurePolicy sets what happens when a fetch fails.
func WithFailurePolicy(p FailurePolicy) Option {
	return func(w *Watcher) {
		w.failurePolicy = p
	}
}

// WithTimeouts bounds each fetch and each notification.
func WithTimeouts(fetch, notify time.Duration) Option {
	return func(w *Watcher) {
		if fetch > 0 {
			w.fetchTimeout = fetch
		}
		if notify > 0 {
			w.notifyTimeout = notify
		}
	}
}

// WithSchedule makes Watch tick on a cron expression instead of Interval.
func WithSchedule(spec string) Option {
	return func(w *Watcher) {
		w.schedule = spec
	}
}

// WithMessages renders notifications with m instead of the built-in wording.
func WithMessages(m *Messages) Option {
	return func(w *Watcher) {
		w.messages = m
	}
}

// NewWatcher returns a Watcher for account that checks source every interval,
// tells notifier about growth, target and milestones, and remembers the last
// count in store.
func NewWatcher(
	account string,
	target int,
	interval time.Duration,
	source CountSource,
	notifier Notifier,
	store StateStore,
	options ...Option) (*Watcher, error) {

	if account == "" {
		return nil, errors.New("account must be specified")
	}
	if target < 1 {
		return nil, errors.New("target followers must be at least 1")
	}
	if source == nil || notifier == nil || store == nil {
		return nil, errors.New("count source, notifier and state store are required")
	}
	w := &Watcher{
		Account:       account,
		Platform:      "TikTok",
		Target:        target,
		Milestones:    NormalizeMilestones(DefaultMilestones),
		Interval:      interval,
		source:        source,
		notifier:      notifier,
		store:         store,
		fetchTimeout:  20 * time.Second,
		notifyTimeout: 10 * time.Second,
		storeTimeout:  10 * time.Second,
		log:           zap.NewNop().Sugar(),
	}
	for _, o := range options {
		o(w)
	}
	if w.schedule == "" && w.Interval < time.Second {
		return nil, errors.New("minimum interval is one second")
	}
	return w, nil
}

// Check runs one cycle: fetch the current count, load the previous one,
// send a message for every event between them and save the current count.
//
// Only one cycle runs at a time. If one is already running Check returns
// ErrCycleInProgress straight away. Any other failure is recorded in the
// report; the returned error is the fetch failure, if there was one.
func (w *Watcher) Check(ctx context.Context) (CycleReport, error) {
	if !w.running.CompareAndSwap(false, true) {
		w.skipped.Inc()
		return CycleReport{}, ErrCycleInProgress
	}
	defer w.running.Store(false)

	report := w.cycle(ctx)
	w.cycles.Inc()
	w.mu.Lock()
	w.lastReport = &report
	if report.Saved {
		w.lastCount = report.Current
	}
	w.mu.Unlock()
	return report, report.FetchErr
}

func (w *Watcher) cycle(ctx context.Context) CycleReport {
	report := CycleReport{Started: time.Now()}

	current, err := w.fetch(ctx)
	if err != nil {
		report.FetchErr = err
		w.log.Errorw("error fetching follower count",
			"account", w.Account,
			"source", w.source.Name(),
			"err", err)
		if w.failurePolicy == FailureSkip {
			return report
		}
		current = 0
	}
	report.Current = current

	previous, err := w.load(ctx)
	if err != nil {
		report.LoadErr = err
		w.log.Warnw("unable to load previous follower count, assuming 0",
			"account", w.Account,
			"err", err)
		previous = 0
	}
	report.Previous = previous

	if current != previous {
		w.log.Infow("follower count changed",
			"account", w.Account,
			"current", current,
			"previous", previous,
			"delta", current-previous)
	} else {
		w.log.Debugw("follower count unchanged",
			"account", w.Account,
			"current", current)
	}

	report.Events = Evaluate(previous, current, w.Target, w.Milestones)
	for _, ev := range report.Events {
		if err := w.send(ctx, ev); err != nil {
			report.SendErr = multierr.Append(report.SendErr, err)
			w.log.Warnw("unable to send notification",
				"account", w.Account,
				"event", ev.Kind,
				"err", err)
			continue
		}
		report.Sent++
	}

	if err := w.save(ctx, current); err != nil {
		report.SaveErr = err
		w.log.Errorw("error saving follower count",
			"account", w.Account,
			"current", current,
			"err", err)
		return report
	}
	report.Saved = true
	return report
}

func (w *Watcher) fetch(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, w.fetchTimeout)
	defer cancel()
	count, err := w.source.FetchCount(ctx)
	if err != nil {
		return 0, errors.Wrapf(err, "%s source", w.source.Name())
	}
	if count < 0 {
		return 0, errors.Errorf("%s source returned negative count %d", w.source.Name(), count)
	}
	return count, nil
}

// load and save run even once ctx is cancelled, each bounded by the store
// timeout. A message that has gone out is always followed by saving the
// count it was sent for; otherwise the next cycle would send it again.
func (w *Watcher) load(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.storeTimeout)
	defer cancel()
	return w.store.Load(ctx)
}

func (w *Watcher) save(ctx context.Context, count int) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.storeTimeout)
	defer cancel()
	return w.store.Save(ctx, count)
}

func (w *Watcher) send(ctx context.Context, ev Event) error {
	ctx, cancel := context.WithTimeout(ctx, w.notifyTimeout)
	defer cancel()
	msg := ev.Message(w.Account, w.Platform)
	if w.messages != nil {
		var err error
		if msg, err = w.messages.Render(ev, w.Account, w.Platform); err != nil {
			return err
		}
	}
	if err := w.notifier.Send(ctx, msg); err != nil {
		return errors.Wrapf(err, "%s notification", ev.Kind)
	}
	w.log.Infow("sent notification",
		"account", w.Account,
		"event", ev.Kind,
		"previous", ev.Previous,
		"current", ev.Current)
	return nil
}

// Status returns a snapshot of the Watcher's configuration and last cycle.
func (w *Watcher) Status() Status {
	st := Status{
		Account:       w.Account,
		Source:        w.source.Name(),
		Target:        w.Target,
		Milestones:    append([]int(nil), w.Milestones...),
		Interval:      w.Interval.String(),
		Running:       w.running.Load(),
		Cycles:        w.cycles.Load(),
		SkippedCycles: w.skipped.Load(),
		FailurePolicy: w.failurePolicy.String(),
		FetchTimeout:  w.fetchTimeout,
	}
	if w.schedule != "" {
		st.Interval = w.schedule
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	st.LastCount = w.lastCount
	if r := w.lastReport; r != nil {
		report := *r
		st.LastReport = &report
		st.LastCheck = r.Started
		if err := r.Err(); err != nil {
			st.LastError = err.Error()
		}
	}
	return st
}
