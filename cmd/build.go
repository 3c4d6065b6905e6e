package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/conneroisu/devsite/internal/build"
	"github.com/conneroisu/devsite/internal/config"
	"github.com/conneroisu/devsite/internal/logging"
)

var buildCmd = &cobra.Command{
	Use:     "build",
	Aliases: []string{"b"},
	Short:   "Build the site once without serving",
	Long: `Run the build pipeline once: compile stylesheets, mirror dependencies,
assemble every page from its partials and mirror the asset tree.

Examples:
  devsite build                       # Full build into dist/
  devsite build --step html           # Rebuild pages only
  devsite build --step html,assets    # Pages and assets
  devsite build --output json         # Machine-readable summary`,
	RunE: runBuild,
}

var (
	buildFlags *StandardFlags
	buildSteps []string
)

func init() {
	rootCmd.AddCommand(buildCmd)

	buildFlags = AddStandardFlags(buildCmd, "layout", "output")
	buildCmd.Flags().StringSliceVar(&buildSteps, "step", nil, "Run only these steps (styles, dependencies, html, assets)")
}

func runBuild(cmd *cobra.Command, args []string) error {
	if err := buildFlags.ValidateFlags(); err != nil {
		return err
	}
	steps, err := build.ParseSteps(buildSteps)
	if err != nil {
		return err
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	proj, err := newProject(cfg, logger)
	if err != nil {
		return err
	}
	pipeline := proj.pipeline

	ctx := cmd.Context()
	var summary *build.Summary
	if len(steps) == 0 {
		summary, err = pipeline.Run(ctx)
	} else {
		summary, err = runSteps(cmd, pipeline, steps)
	}

	if !buildFlags.Quiet && summary != nil {
		if writeErr := writeSummary(cmd.OutOrStdout(), summary, buildFlags.OutputFormat); writeErr != nil {
			return writeErr
		}
	}
	return err
}

// runSteps runs the selected steps in the order given and stops at the
// first failure.
func runSteps(cmd *cobra.Command, pipeline *build.Pipeline, steps []build.Step) (*build.Summary, error) {
	summary := &build.Summary{StartedAt: time.Now()}
	defer func() { summary.Duration = time.Since(summary.StartedAt) }()

	for _, step := range steps {
		start := time.Now()
		err := pipeline.RunStep(cmd.Context(), step)
		summary.Steps = append(summary.Steps, build.StepResult{Step: step, Duration: time.Since(start), Err: err})
		if err != nil {
			return summary, fmt.Errorf("%s step: %w", step, err)
		}
	}
	return summary, nil
}

// project bundles the pipeline with its metrics. registry is nil when
// metrics are disabled.
type project struct {
	pipeline *build.Pipeline
	registry *prometheus.Registry
	recorder build.Recorder
}

// newProject builds the pipeline with a Prometheus recorder when metrics
// are enabled.
func newProject(cfg *config.Config, logger logging.Logger) (*project, error) {
	p := &project{recorder: build.NoopRecorder{}}
	if cfg.Metrics.Enabled {
		p.registry = prometheus.NewRegistry()
		p.recorder = build.NewPrometheusRecorder(p.registry)
	}

	pipeline, err := build.NewPipeline(cfg, logger, p.recorder)
	if err != nil {
		return nil, err
	}
	p.pipeline = pipeline
	return p, nil
}

type stepJSON struct {
	Step       string `json:"step"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

type summaryJSON struct {
	BuildID    string     `json:"build_id,omitempty"`
	DurationMS int64      `json:"duration_ms"`
	Steps      []stepJSON `json:"steps"`
	Pages      int        `json:"pages_written"`
	Failed     int        `json:"pages_failed"`
	Unresolved int        `json:"unresolved_includes"`
	Assets     int        `json:"assets_copied"`
	Libraries  int        `json:"library_files_copied"`
}

// writeSummary prints the step table or its JSON form.
func writeSummary(w io.Writer, s *build.Summary, format string) error {
	out := summaryJSON{
		BuildID:    s.BuildID,
		DurationMS: s.Duration.Milliseconds(),
		Steps:      make([]stepJSON, 0, len(s.Steps)),
	}
	for _, r := range s.Steps {
		row := stepJSON{Step: string(r.Step), DurationMS: r.Duration.Milliseconds()}
		if r.Err != nil {
			row.Error = r.Err.Error()
		}
		out.Steps = append(out.Steps, row)
	}
	if s.Site != nil {
		out.Pages, out.Failed, out.Unresolved = s.Site.Written, s.Site.Failed, s.Site.UnresolvedCount()
	}
	if s.Assets != nil {
		out.Assets = s.Assets.Files
	}
	if s.Deps != nil {
		out.Libraries = s.Deps.Files
	}

	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	title := cases.Title(language.English)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STEP\tDURATION\tRESULT")
	for _, r := range out.Steps {
		result := "ok"
		if r.Error != "" {
			result = r.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", title.String(r.Step), time.Duration(r.DurationMS)*time.Millisecond, result)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if s.Site != nil {
		fmt.Fprintf(w, "\n%d page(s) written, %d failed, %d unresolved include(s)\n", out.Pages, out.Failed, out.Unresolved)
	}
	if s.Assets != nil || s.Deps != nil {
		fmt.Fprintf(w, "%d asset file(s), %d library file(s) copied\n", out.Assets, out.Libraries)
	}
	fmt.Fprintf(w, "Finished in %s\n", s.Duration.Round(time.Millisecond))
	return nil
}
