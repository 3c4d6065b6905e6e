package build

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/conneroisu/devsite/internal/config"
	siteerrors "github.com/conneroisu/devsite/internal/errors"
	"github.com/conneroisu/devsite/internal/logging"
	"github.com/conneroisu/devsite/internal/validation"
)

// StyleCompiler produces the output stylesheets.
type StyleCompiler interface {
	Compile(ctx context.Context) error
	Name() string
}

// allowedStyleCommands lists the executables a command engine may run.
var allowedStyleCommands = map[string]bool{
	"sass":        true,
	"npx":         true,
	"npm":         true,
	"pnpm":        true,
	"yarn":        true,
	"tailwindcss": true,
	"postcss":     true,
	"esbuild":     true,
}

// NewStyleCompiler returns the compiler selected by cfg.Styles.Engine.
func NewStyleCompiler(cfg *config.Config, logger logging.Logger) (StyleCompiler, error) {
	layout := cfg.Layout()
	switch cfg.Styles.Engine {
	case config.StylesEngineCommand, "":
		return NewCommandCompiler(cfg.Styles.Command, layout.CSSOut(), logger)
	case config.StylesEngineEsbuild:
		return NewEsbuildCompiler(cfg.Styles.EntryPoints, layout.CSSOut(), logger), nil
	case config.StylesEngineNone:
		return NoopCompiler{}, nil
	default:
		return nil, siteerrors.NewConfigError("UNKNOWN_ENGINE", fmt.Sprintf("unknown styles engine %q", cfg.Styles.Engine))
	}
}

// CommandCompiler runs an external stylesheet tool such as sass.
type CommandCompiler struct {
	command string
	args    []string
	outDir  string
	logger  logging.Logger
}

// NewCommandCompiler validates line and returns a compiler that runs it.
// outDir is created before every run.
func NewCommandCompiler(line, outDir string, logger logging.Logger) (*CommandCompiler, error) {
	command, args, err := validation.ValidateCommandLine(line, allowedStyleCommands)
	if err != nil {
		return nil, siteerrors.NewBuildError(siteerrors.CodeCommandRejected, "styles command rejected", err)
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &CommandCompiler{
		command: command,
		args:    args,
		outDir:  outDir,
		logger:  logger.WithComponent("styles"),
	}, nil
}

// Name implements StyleCompiler.
func (c *CommandCompiler) Name() string { return "command" }

// Compile implements StyleCompiler.
func (c *CommandCompiler) Compile(ctx context.Context) error {
	if err := os.MkdirAll(c.outDir, 0o755); err != nil {
		return siteerrors.NewIOError(siteerrors.CodeMkdirFailed, c.outDir, err)
	}

	cmd := exec.CommandContext(ctx, c.command, c.args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return siteerrors.NewBuildError(siteerrors.CodeStylesFailed,
			fmt.Sprintf("%s failed: %s", c.command, strings.TrimSpace(string(output))), err)
	}

	c.logger.Debug(ctx, "Styles command finished", "command", c.command, "output", strings.TrimSpace(string(output)))
	return nil
}

// fileLoaders are emitted as separate files next to the bundle.
var fileLoaders = map[string]api.Loader{
	".png":   api.LoaderFile,
	".jpg":   api.LoaderFile,
	".jpeg":  api.LoaderFile,
	".svg":   api.LoaderFile,
	".gif":   api.LoaderFile,
	".woff":  api.LoaderFile,
	".woff2": api.LoaderFile,
	".ttf":   api.LoaderFile,
	".eot":   api.LoaderFile,
	".html":  api.LoaderFile,
}

// EsbuildCompiler bundles plain CSS entry points in-process.
type EsbuildCompiler struct {
	entryPoints []string
	outDir      string
	logger      logging.Logger
}

// NewEsbuildCompiler creates an in-process CSS bundler.
func NewEsbuildCompiler(entryPoints []string, outDir string, logger logging.Logger) *EsbuildCompiler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &EsbuildCompiler{
		entryPoints: entryPoints,
		outDir:      outDir,
		logger:      logger.WithComponent("styles"),
	}
}

// Name implements StyleCompiler.
func (c *EsbuildCompiler) Name() string { return "esbuild" }

// Compile implements StyleCompiler.
func (c *EsbuildCompiler) Compile(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	result := api.Build(api.BuildOptions{
		EntryPoints: c.entryPoints,
		Outdir:      c.outDir,
		Bundle:      true,
		Write:       true,
		LogLevel:    api.LogLevelSilent,
		Loader:      fileLoaders,
	})

	for _, w := range result.Warnings {
		c.logger.Warn(ctx, nil, "esbuild warning", "text", w.Text)
	}
	if len(result.Errors) > 0 {
		msgs := api.FormatMessages(result.Errors, api.FormatMessagesOptions{Kind: api.ErrorMessage})
		return siteerrors.NewBuildError(siteerrors.CodeStylesFailed, strings.Join(msgs, "\n"), nil)
	}

	c.logger.Debug(ctx, "Stylesheets bundled", "outputs", len(result.OutputFiles))
	return nil
}

// NoopCompiler leaves stylesheets alone.
type NoopCompiler struct{}

// Name implements StyleCompiler.
func (NoopCompiler) Name() string { return "none" }

// Compile implements StyleCompiler.
func (NoopCompiler) Compile(context.Context) error { return nil }
