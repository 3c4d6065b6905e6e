package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/conneroisu/devsite/internal/config"
	siteerrors "github.com/conneroisu/devsite/internal/errors"
	"github.com/conneroisu/devsite/internal/logging"
	"github.com/conneroisu/devsite/internal/partials"
)

// Step names one stage of the build.
type Step string

const (
	StepStyles       Step = "styles"
	StepDependencies Step = "dependencies"
	StepHTML         Step = "html"
	StepAssets       Step = "assets"
)

// StartupSteps is the order Run executes steps in.
var StartupSteps = []Step{StepStyles, StepDependencies, StepHTML, StepAssets}

// ParseStep converts a configured step name.
func ParseStep(s string) (Step, error) {
	for _, step := range StartupSteps {
		if string(step) == s {
			return step, nil
		}
	}
	return "", fmt.Errorf("unknown build step %q", s)
}

// ParseSteps converts a list of configured step names.
func ParseSteps(names []string) ([]Step, error) {
	steps := make([]Step, 0, len(names))
	for _, name := range names {
		step, err := ParseStep(name)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, nil
}

// StepResult records the outcome of one step.
type StepResult struct {
	Step     Step
	Duration time.Duration
	Err      error
}

// Summary is the outcome of a Run.
type Summary struct {
	BuildID   string
	StartedAt time.Time
	Duration  time.Duration
	Steps     []StepResult
	Site      *SiteReport
	Deps      *MirrorStats
	Assets    *MirrorStats
}

// Failed reports whether any step returned an error.
func (s *Summary) Failed() bool {
	for _, r := range s.Steps {
		if r.Err != nil {
			return true
		}
	}
	return false
}

// Pipeline wires the build steps for one project layout.
type Pipeline struct {
	cfg      *config.Config
	layout   config.Layout
	logger   logging.Logger
	recorder Recorder

	styles StyleCompiler
	site   *SiteBuilder
	assets *AssetMirror
	deps   *DependencyMirror

	mu   sync.RWMutex
	last *Summary
}

// NewPipeline builds a pipeline from configuration.
func NewPipeline(cfg *config.Config, logger logging.Logger, recorder Recorder) (*Pipeline, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	if recorder == nil {
		recorder = NoopRecorder{}
	}

	styles, err := NewStyleCompiler(cfg, logger)
	if err != nil {
		return nil, err
	}

	resolver := partials.NewResolver(logger, partials.WithMarkdown(cfg.HTML.MarkdownPartials))
	assets := NewAssetMirror(logger, recorder)

	return &Pipeline{
		cfg:      cfg,
		layout:   cfg.Layout(),
		logger:   logger.WithComponent("pipeline"),
		recorder: recorder,
		styles:   styles,
		site:     NewSiteBuilder(resolver, logger, recorder),
		assets:   assets,
		deps:     NewDependencyMirror(assets, logger, cfg.Deps.Concurrency),
	}, nil
}

// WithStyleCompiler replaces the configured stylesheet compiler.
func (p *Pipeline) WithStyleCompiler(c StyleCompiler) *Pipeline {
	p.styles = c
	return p
}

// Layout returns the project layout the pipeline builds.
func (p *Pipeline) Layout() config.Layout {
	return p.layout
}

// LastSummary returns the most recent Run summary, or nil.
func (p *Pipeline) LastSummary() *Summary {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last
}

// Run performs the startup build: stylesheets, dependencies, HTML pages
// and assets, in that order. A failing stylesheet, dependency or HTML
// step aborts the run. Asset failures are logged and recorded in the
// summary. Pages with unresolvable markers never fail the run.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{
		BuildID:   uuid.NewString(),
		StartedAt: time.Now(),
	}
	ctx = WithBuildID(ctx, summary.BuildID)
	logger := p.logger.With("build_id", summary.BuildID)

	defer func() {
		summary.Duration = time.Since(summary.StartedAt)
		p.mu.Lock()
		p.last = summary
		p.mu.Unlock()
	}()

	for _, step := range StartupSteps {
		err := p.timed(ctx, logger, step, summary)
		if err == nil {
			continue
		}
		if step == StepAssets {
			logger.Warn(ctx, err, "Asset mirroring finished with errors")
			continue
		}
		return summary, fmt.Errorf("%s step: %w", step, err)
	}

	logger.Info(ctx, "Build complete",
		"pages", summary.Site.Written,
		"duration_ms", time.Since(summary.StartedAt).Milliseconds(),
	)
	return summary, nil
}

func (p *Pipeline) timed(ctx context.Context, logger logging.Logger, step Step, summary *Summary) error {
	op := logging.StartOperation(logger, string(step))

	var err error
	switch step {
	case StepStyles:
		err = p.styles.Compile(ctx)
	case StepDependencies:
		summary.Deps, err = p.BuildDependencies(ctx)
	case StepHTML:
		summary.Site, err = p.BuildHTML(ctx)
	case StepAssets:
		summary.Assets, err = p.MirrorAssets(ctx)
	}

	var d time.Duration
	if err != nil {
		d = op.EndWithError(ctx, err)
	} else {
		d = op.End(ctx)
	}
	p.recorder.ObserveStepDuration(step, d, err == nil)
	summary.Steps = append(summary.Steps, StepResult{Step: step, Duration: d, Err: err})
	return err
}

// RunStep runs a single step outside of Run, as the watch handlers do.
func (p *Pipeline) RunStep(ctx context.Context, step Step) error {
	start := time.Now()
	var err error
	switch step {
	case StepStyles:
		err = p.BuildStyles(ctx)
	case StepDependencies:
		_, err = p.BuildDependencies(ctx)
	case StepHTML:
		_, err = p.BuildHTML(ctx)
	case StepAssets:
		_, err = p.MirrorAssets(ctx)
	default:
		return fmt.Errorf("unknown build step %q", step)
	}
	p.recorder.ObserveStepDuration(step, time.Since(start), err == nil)
	return err
}

// BuildStyles runs the configured stylesheet compiler.
func (p *Pipeline) BuildStyles(ctx context.Context) error {
	if err := p.styles.Compile(ctx); err != nil {
		return err
	}
	p.logger.Info(ctx, "Styles compiled", "engine", p.styles.Name(), "output", p.layout.CSSOut())
	return nil
}

// BuildDependencies mirrors the manifest dependencies into the libs directory.
func (p *Pipeline) BuildDependencies(ctx context.Context) (*MirrorStats, error) {
	return p.deps.Mirror(ctx, p.cfg.Deps.Manifest, p.cfg.Deps.ModulesDir, p.layout.LibsOut())
}

// BuildHTML rebuilds every page.
func (p *Pipeline) BuildHTML(ctx context.Context) (*SiteReport, error) {
	return p.site.BuildAll(ctx, p.layout.Pages(), p.layout.HTMLOut())
}

// BuildPage rebuilds one page and fails on any unresolvable marker.
func (p *Pipeline) BuildPage(ctx context.Context, srcFile string) (string, error) {
	return p.site.BuildPage(ctx, srcFile, p.layout.HTMLOut())
}

// MirrorAssets copies the asset tree minus the excluded directories.
func (p *Pipeline) MirrorAssets(ctx context.Context) (*MirrorStats, error) {
	stats, err := p.assets.Mirror(ctx, p.layout.Assets(), p.layout.AssetsOut(), p.cfg.Assets.Exclude)
	if stats != nil {
		p.logger.Info(ctx, "Assets mirrored", "files", stats.Files, "skipped_dirs", stats.Skipped)
	}
	return stats, err
}

// CopyScript copies one script into the output scripts directory. The
// output name is the source base name.
func (p *Pipeline) CopyScript(ctx context.Context, srcFile string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	info, err := os.Stat(srcFile)
	if err != nil {
		return "", siteerrors.NewIOError(siteerrors.CodeReadFailed, srcFile, err)
	}

	dest := filepath.Join(p.layout.ScriptsOut(), filepath.Base(srcFile))
	if _, err := copyFile(srcFile, dest, info.Mode().Perm()); err != nil {
		return "", siteerrors.NewIOError(siteerrors.CodeCopyFailed, srcFile, err)
	}
	p.recorder.AddFilesCopied(1)

	p.logger.Info(ctx, "Copied script", "source", srcFile, "output", dest)
	return dest, nil
}

type buildIDKey struct{}

// WithBuildID attaches a build id to ctx.
func WithBuildID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, buildIDKey{}, id)
}

// BuildID returns the build id attached to ctx, if any.
func BuildID(ctx context.Context) string {
	id, _ := ctx.Value(buildIDKey{}).(string)
	return id
}
