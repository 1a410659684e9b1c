// Package loader materializes the transitive closure of asset references in
// bounded steps.
//
// A Loader is a resumable breadth-first traversal. Each call to Step does a
// bounded amount of work and returns; the caller (a frame loop, a worker)
// keeps calling it until it reports completion. Visited keys are never
// revisited, so the walk terminates on cyclic graphs. A key that fails to
// load is recorded and skipped; it never aborts the traversal.
package loader

import (
	"context"
	"slices"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/mvaleed/bigfile/internal/bigfile"
)

// Source is the part of the object store the loader drives.
type Source interface {
	IsKeyValid(key bigfile.Key) bool
	Load(key bigfile.Key) (bool, error)
	Unload(key bigfile.Key) error
	References(key bigfile.Key) []bigfile.Key
	TypeOf(key bigfile.Key) (bigfile.TypeCode, bool)
}

// Failure records a key that could not be loaded.
type Failure struct {
	Key bigfile.Key
	Err error
}

type options struct {
	log       *zap.Logger
	timeSlice time.Duration
	now       func() time.Time
	onStep    func(step int, progress float64)
}

type Option func(*options)

func WithLogger(log *zap.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithTimeSlice bounds the wall time of one Step. Work left over when the
// slice runs out stays queued for the next Step.
func WithTimeSlice(d time.Duration) Option {
	return func(o *options) { o.timeSlice = d }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithStepHook is called by Run after every step with the 1-based step
// number and the progress at that point.
func WithStepHook(fn func(step int, progress float64)) Option {
	return func(o *options) { o.onStep = fn }
}

type Loader struct {
	src Source
	log *zap.Logger

	timeSlice time.Duration
	now       func() time.Time
	onStep    func(step int, progress float64)

	frontier []bigfile.Key // FIFO; head is frontier[0]
	work     []bigfile.Key // Dequeued but not yet visited
	queued   map[bigfile.Key]struct{}
	visited  map[bigfile.Key]struct{}
	byType   map[bigfile.TypeCode][]bigfile.Key
	loaded   int
	skipped  int
	failures []Failure
}

// New seeds a traversal from roots. Nothing is loaded until Step.
func New(src Source, roots []bigfile.Key, opts ...Option) *Loader {
	o := options{log: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	l := &Loader{
		src:       src,
		log:       o.log,
		timeSlice: o.timeSlice,
		now:       o.now,
		onStep:    o.onStep,
		queued:    make(map[bigfile.Key]struct{}),
		visited:   make(map[bigfile.Key]struct{}),
		byType:    make(map[bigfile.TypeCode][]bigfile.Key),
	}
	for _, k := range roots {
		l.enqueue(k)
	}
	return l
}

func (l *Loader) enqueue(key bigfile.Key) {
	if _, ok := l.visited[key]; ok {
		return
	}
	if _, ok := l.queued[key]; ok {
		return
	}
	l.queued[key] = struct{}{}
	l.frontier = append(l.frontier, key)
}

// Step visits at most budget keys and reports whether the traversal is
// complete. Budgets below one are treated as one.
func (l *Loader) Step(budget int) bool {
	budget = max(budget, 1)

	n := min(budget-len(l.work), len(l.frontier))
	if n > 0 {
		l.work = append(l.work, l.frontier[:n]...)
		l.frontier = l.frontier[n:]
		if len(l.frontier) == 0 {
			l.frontier = nil
		}
	}

	var deadline time.Time
	if l.timeSlice > 0 {
		deadline = l.now().Add(l.timeSlice)
	}

	done := 0
	for done < len(l.work) && done < budget {
		l.visit(l.work[done])
		done++
		if !deadline.IsZero() && !l.now().Before(deadline) {
			break
		}
	}
	// Keys not reached in this step stay ahead of the frontier.
	l.work = slices.Clone(l.work[done:])

	return l.IsComplete()
}

func (l *Loader) visit(key bigfile.Key) {
	delete(l.queued, key)
	if _, ok := l.visited[key]; ok {
		return
	}
	l.visited[key] = struct{}{}

	if !l.src.IsKeyValid(key) {
		l.skipped++
		return
	}

	if _, err := l.src.Load(key); err != nil {
		l.failures = append(l.failures, Failure{Key: key, Err: err})
		l.log.Warn("failed to load asset", zap.Stringer("key", key), zap.Error(err))
		return
	}

	l.loaded++
	if t, ok := l.src.TypeOf(key); ok {
		l.byType[t] = append(l.byType[t], key)
	}
	for _, ref := range l.src.References(key) {
		l.enqueue(ref)
	}
}

// IsComplete reports whether no key is pending.
func (l *Loader) IsComplete() bool {
	return len(l.frontier) == 0 && len(l.work) == 0
}

// Run steps until the traversal completes or ctx is done.
func (l *Loader) Run(ctx context.Context, budget int) error {
	for step := 1; ; step++ {
		done := l.Step(budget)
		if l.onStep != nil {
			l.onStep(step, l.Progress())
		}
		if done {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// LoadedOfType lists the keys of type t loaded by this traversal, in visit
// order.
func (l *Loader) LoadedOfType(t bigfile.TypeCode) []bigfile.Key {
	return slices.Clone(l.byType[t])
}

// Types lists the type codes with at least one loaded key.
func (l *Loader) Types() []bigfile.TypeCode {
	types := make([]bigfile.TypeCode, 0, len(l.byType))
	for t := range l.byType {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// Visited is the number of keys taken off the queue, including invalid and
// failed ones.
func (l *Loader) Visited() int { return len(l.visited) }

func (l *Loader) Loaded() int { return l.loaded }

// Skipped counts visited keys that were not valid (absent or stubs).
func (l *Loader) Skipped() int { return l.skipped }

func (l *Loader) Pending() int { return len(l.frontier) + len(l.work) }

func (l *Loader) Failures() []Failure { return slices.Clone(l.failures) }

// Progress is loaded / (loaded + pending), or 1 when both are zero.
func (l *Loader) Progress() float64 {
	total := l.loaded + l.Pending()
	if total == 0 {
		return 1
	}
	return float64(l.loaded) / float64(total)
}

// UnloadAll unloads every visited key. The traversal history is kept.
func (l *Loader) UnloadAll() error {
	keys := make([]bigfile.Key, 0, len(l.visited))
	for k := range l.visited {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var errs error
	for _, k := range keys {
		if !l.src.IsKeyValid(k) {
			continue
		}
		errs = multierr.Append(errs, l.src.Unload(k))
	}
	return errs
}
