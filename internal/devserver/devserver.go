// Package devserver owns the watch side of the development loop: one
// debounced subscription per source category, each mapping a changed file
// to a rebuild, plus an output watcher that notifies the preview channel.
package devserver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/conneroisu/devsite/internal/build"
	"github.com/conneroisu/devsite/internal/config"
	"github.com/conneroisu/devsite/internal/logging"
	"github.com/conneroisu/devsite/internal/watcher"
)

// Category names a watched source area.
type Category string

const (
	CategoryStyles   Category = "styles"
	CategoryScripts  Category = "scripts"
	CategoryPages    Category = "pages"
	CategoryPartials Category = "partials"
)

// Categories lists every category in subscription order.
var Categories = []Category{CategoryStyles, CategoryScripts, CategoryPages, CategoryPartials}

// ParseCategory converts a configured category name.
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown watch category %q", s)
}

// State is the build state of one category.
type State int32

const (
	StateIdle State = iota
	StateBuilding
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBuilding:
		return "building"
	default:
		return "unknown"
	}
}

// Builder performs the rebuilds triggered by source changes.
type Builder interface {
	BuildStyles(ctx context.Context) error
	CopyScript(ctx context.Context, srcFile string) (string, error)
	BuildPage(ctx context.Context, srcFile string) (string, error)
	BuildHTML(ctx context.Context) (*build.SiteReport, error)
	RunStep(ctx context.Context, step build.Step) error
}

// Notifier is told which output files changed.
type Notifier interface {
	Reload(paths []string)
}

// Subscription binds a category to its watch root and filters.
type Subscription struct {
	Category    Category
	Root        string
	Recursive   bool
	Filters     []watcher.FileFilter
	AlsoTrigger []build.Step
}

// Options configures a DevServer.
type Options struct {
	Layout   config.Layout
	Builder  Builder
	Notifier Notifier
	Logger   logging.Logger
	Recorder build.Recorder
	Debounce time.Duration
	// AlsoTrigger replaces DefaultAlsoTrigger when non-nil.
	AlsoTrigger map[Category][]build.Step
}

// DefaultAlsoTrigger recompiles stylesheets after script and page changes.
func DefaultAlsoTrigger() map[Category][]build.Step {
	return map[Category][]build.Step{
		CategoryScripts: {build.StepStyles},
		CategoryPages:   {build.StepStyles},
	}
}

// ParseAlsoTrigger converts the watch.also_trigger configuration.
func ParseAlsoTrigger(m map[string][]string) (map[Category][]build.Step, error) {
	out := make(map[Category][]build.Step, len(m))
	for name, steps := range m {
		category, err := ParseCategory(name)
		if err != nil {
			return nil, err
		}
		parsed, err := build.ParseSteps(steps)
		if err != nil {
			return nil, fmt.Errorf("watch.also_trigger.%s: %w", name, err)
		}
		out[category] = parsed
	}
	return out, nil
}

// DevServer runs the watch subscriptions. It is started once and shut
// down explicitly.
type DevServer struct {
	layout   config.Layout
	builder  Builder
	notifier Notifier
	logger   logging.Logger
	recorder build.Recorder
	debounce time.Duration
	subs     []Subscription
	states   map[Category]*atomic.Int32

	mu       sync.Mutex
	started  bool
	watchers []*watcher.FileWatcher
	stopOnce sync.Once
}

// New creates a DevServer. Builder is required; the notifier is optional.
func New(opts Options) (*DevServer, error) {
	if opts.Builder == nil {
		return nil, errors.New("devserver: builder is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	recorder := opts.Recorder
	if recorder == nil {
		recorder = build.NoopRecorder{}
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = 100 * time.Millisecond
	}
	also := opts.AlsoTrigger
	if also == nil {
		also = DefaultAlsoTrigger()
	}

	d := &DevServer{
		layout:   opts.Layout,
		builder:  opts.Builder,
		notifier: opts.Notifier,
		logger:   logger.WithComponent("watch"),
		recorder: recorder,
		debounce: debounce,
		states:   make(map[Category]*atomic.Int32, len(Categories)),
	}
	for _, c := range Categories {
		d.states[c] = &atomic.Int32{}
	}
	d.subs = subscriptions(opts.Layout, also)
	return d, nil
}

func subscriptions(l config.Layout, also map[Category][]build.Step) []Subscription {
	return []Subscription{
		{
			Category:    CategoryStyles,
			Root:        l.Styles(),
			Recursive:   true,
			Filters:     []watcher.FileFilter{watcher.NoHiddenFilter, watcher.ExtFilter(".scss", ".sass")},
			AlsoTrigger: also[CategoryStyles],
		},
		{
			Category:    CategoryScripts,
			Root:        l.Scripts(),
			Recursive:   true,
			Filters:     []watcher.FileFilter{watcher.NoHiddenFilter, watcher.ExtFilter(".js")},
			AlsoTrigger: also[CategoryScripts],
		},
		{
			Category:    CategoryPages,
			Root:        l.Pages(),
			Filters:     []watcher.FileFilter{watcher.NoHiddenFilter, watcher.ExtFilter(".html"), watcher.DirectChildFilter(l.Pages())},
			AlsoTrigger: also[CategoryPages],
		},
		{
			Category:    CategoryPartials,
			Root:        l.Partials(),
			Recursive:   true,
			Filters:     []watcher.FileFilter{watcher.NoHiddenFilter},
			AlsoTrigger: also[CategoryPartials],
		},
	}
}

// Subscriptions returns the configured subscriptions.
func (d *DevServer) Subscriptions() []Subscription {
	out := make([]Subscription, len(d.subs))
	copy(out, d.subs)
	return out
}

// Start registers every subscription and the output watcher. Missing
// source roots are skipped with a warning.
func (d *DevServer) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return errors.New("devserver: already started")
	}
	d.started = true

	for _, sub := range d.subs {
		if _, err := os.Stat(sub.Root); err != nil {
			d.logger.Warn(ctx, err, "Watch root unavailable, skipping", "category", sub.Category, "root", sub.Root)
			continue
		}
		fw, err := d.watch(ctx, sub.Root, sub.Recursive, sub.Filters, d.sourceHandler(ctx, sub.Category))
		if err != nil {
			d.stopLocked()
			return fmt.Errorf("watch %s: %w", sub.Category, err)
		}
		d.logger.Info(ctx, "Watching", "category", sub.Category, "root", sub.Root)
		d.watchers = append(d.watchers, fw)
	}

	if d.notifier != nil {
		if err := os.MkdirAll(d.layout.OutputRoot, 0o755); err != nil {
			d.stopLocked()
			return err
		}
		fw, err := d.watch(ctx, d.layout.OutputRoot, true, []watcher.FileFilter{watcher.NoHiddenFilter}, d.outputHandler)
		if err != nil {
			d.stopLocked()
			return fmt.Errorf("watch output: %w", err)
		}
		d.watchers = append(d.watchers, fw)
	}

	return nil
}

func (d *DevServer) watch(ctx context.Context, root string, recursive bool, filters []watcher.FileFilter, handler watcher.ChangeHandler) (*watcher.FileWatcher, error) {
	fw, err := watcher.NewFileWatcher(d.debounce, watcher.WithLogger(d.logger))
	if err != nil {
		return nil, err
	}
	if recursive {
		err = fw.AddRecursive(root)
	} else {
		err = fw.AddPath(root)
	}
	if err != nil {
		_ = fw.Stop()
		return nil, err
	}
	for _, f := range filters {
		fw.AddFilter(f)
	}
	fw.AddHandler(handler)
	if err := fw.Start(ctx); err != nil {
		_ = fw.Stop()
		return nil, err
	}
	return fw, nil
}

// sourceHandler dispatches the created or modified files of a batch.
// Styles and partials rebuild everything regardless of the path, so they
// dispatch once per batch; scripts and pages dispatch once per file.
// Failures are logged by Dispatch and never returned to the watcher.
func (d *DevServer) sourceHandler(ctx context.Context, category Category) watcher.ChangeHandler {
	return func(events []watcher.ChangeEvent) error {
		for _, path := range d.dispatchPaths(ctx, category, events) {
			_ = d.Dispatch(ctx, category, path)
		}
		return nil
	}
}

// dispatchPaths returns the paths of a batch that need a Dispatch.
func (d *DevServer) dispatchPaths(ctx context.Context, category Category, events []watcher.ChangeEvent) []string {
	var paths []string
	for _, ev := range events {
		if !ev.Type.IsWrite() {
			d.logger.Debug(ctx, "Ignoring change", "category", category, "source", ev.Path, "event", ev.Type.String())
			continue
		}
		paths = append(paths, ev.Path)
	}
	if len(paths) > 1 && wholeTree(category) {
		d.logger.Debug(ctx, "Coalescing changes", "category", category, "files", len(paths))
		return paths[:1]
	}
	return paths
}

// wholeTree reports whether the category's primary action ignores the
// changed path.
func wholeTree(category Category) bool {
	return category == CategoryStyles || category == CategoryPartials
}

func (d *DevServer) outputHandler(events []watcher.ChangeEvent) error {
	paths := make([]string, 0, len(events))
	for _, ev := range events {
		paths = append(paths, ev.Path)
	}
	if len(paths) > 0 {
		d.notifier.Reload(paths)
	}
	return nil
}

// Dispatch runs the category's primary action for path, then its
// also-trigger steps when the primary action succeeded.
func (d *DevServer) Dispatch(ctx context.Context, category Category, path string) error {
	state, ok := d.states[category]
	if !ok {
		return fmt.Errorf("unknown watch category %q", category)
	}
	state.Add(1)
	defer state.Add(-1)

	buildID := uuid.NewString()
	ctx = build.WithBuildID(ctx, buildID)
	logger := d.logger.With("build_id", buildID, "category", string(category), "source", path)
	start := time.Now()

	if err := d.primary(ctx, logger, category, path); err != nil {
		logger.Error(ctx, err, "Rebuild failed")
		d.recorder.ObserveDispatch(string(category), time.Since(start), false)
		return err
	}

	var errs []error
	for _, step := range d.alsoTrigger(category) {
		if err := d.builder.RunStep(ctx, step); err != nil {
			logger.Error(ctx, err, "Triggered step failed", "step", string(step))
			errs = append(errs, fmt.Errorf("%s: %w", step, err))
		}
	}

	err := errors.Join(errs...)
	d.recorder.ObserveDispatch(string(category), time.Since(start), err == nil)
	logger.Debug(ctx, "Rebuild finished", "duration_ms", time.Since(start).Milliseconds())
	return err
}

func (d *DevServer) primary(ctx context.Context, logger logging.Logger, category Category, path string) error {
	switch category {
	case CategoryStyles:
		logger.Info(ctx, "Stylesheet changed, recompiling")
		return d.builder.BuildStyles(ctx)
	case CategoryScripts:
		_, err := d.builder.CopyScript(ctx, path)
		return err
	case CategoryPages:
		out, err := d.builder.BuildPage(ctx, path)
		if err == nil {
			logger.Info(ctx, "Page rebuilt", "output", out)
		}
		return err
	case CategoryPartials:
		logger.Info(ctx, "Partial changed, rebuilding all pages")
		_, err := d.builder.BuildHTML(ctx)
		return err
	}
	return fmt.Errorf("unknown watch category %q", category)
}

func (d *DevServer) alsoTrigger(category Category) []build.Step {
	for _, sub := range d.subs {
		if sub.Category == category {
			return sub.AlsoTrigger
		}
	}
	return nil
}

// State reports whether a category is currently rebuilding.
func (d *DevServer) State(category Category) State {
	state, ok := d.states[category]
	if !ok || state.Load() == 0 {
		return StateIdle
	}
	return StateBuilding
}

// States reports every category's state by name.
func (d *DevServer) States() map[string]string {
	out := make(map[string]string, len(d.states))
	for c := range d.states {
		out[string(c)] = d.State(c).String()
	}
	return out
}

// WatchRoots returns the directories registered by the running watchers.
func (d *DevServer) WatchRoots() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var roots []string
	for _, fw := range d.watchers {
		roots = append(roots, fw.WatchList()...)
	}
	sort.Strings(roots)
	return roots
}

// Shutdown stops every watcher and closes the notifier when it supports
// it. It is safe to call more than once.
func (d *DevServer) Shutdown(ctx context.Context) error {
	var err error
	d.stopOnce.Do(func() {
		d.mu.Lock()
		err = d.stopLocked()
		d.mu.Unlock()

		if closer, ok := d.notifier.(interface{ Shutdown(context.Context) error }); ok {
			err = errors.Join(err, closer.Shutdown(ctx))
		}
		d.logger.Info(ctx, "Watchers stopped")
	})
	return err
}

func (d *DevServer) stopLocked() error {
	var errs []error
	for _, fw := range d.watchers {
		errs = append(errs, fw.Stop())
	}
	d.watchers = nil
	return errors.Join(errs...)
}
