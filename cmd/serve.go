package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/conneroisu/devsite/internal/config"
	"github.com/conneroisu/devsite/internal/devserver"
	"github.com/conneroisu/devsite/internal/logging"
	"github.com/conneroisu/devsite/internal/server"
	"github.com/conneroisu/devsite/internal/version"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s", "dev"},
	Short:   "Build, serve and watch the site with live reload",
	Long: `Run the full build, start the preview server on the output directory and
watch the sources. Pages reload in the browser as soon as their output
changes; stylesheet-only changes are swapped in place.

Examples:
  devsite serve                   # Serve on localhost:3000
  devsite serve --port 8080       # Different port
  devsite serve --open            # Open the browser once listening`,
	RunE: runServe,
}

var serveFlags *StandardFlags

func init() {
	rootCmd.AddCommand(serveCmd)
	serveFlags = AddStandardFlags(serveCmd, "server", "layout")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if err := ValidateDirExists(cfg.Source.Dir); err != nil {
		return fmt.Errorf("%w (run 'devsite init' to scaffold a project)", err)
	}
	cfg.Server.Open = serveFlags.ShouldOpenBrowser(cfg.Server.Open)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	proj, err := newProject(cfg, logger)
	if err != nil {
		return err
	}
	if _, err := proj.pipeline.Run(ctx); err != nil {
		return fmt.Errorf("startup build failed: %w", err)
	}

	var dev *devserver.DevServer
	opts := server.Options{
		Server:    cfg.Server,
		OutputDir: cfg.Output.Dir,
		Version:   version.GetShortVersion(),
		Logger:    logger,
		Status:    proj.pipeline,
		Watch:     statesFunc(func() map[string]string { return dev.States() }),
	}
	if proj.registry != nil {
		opts.Gatherer = proj.registry
	}
	srv := server.New(opts)

	dev, err = newDevServer(cfg, proj, srv, logger)
	if err != nil {
		return err
	}
	if err := dev.Start(ctx); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := dev.Shutdown(shutdownCtx); err != nil {
			logger.Warn(shutdownCtx, err, "Shutdown finished with errors")
		}
	}()

	fmt.Fprintf(cmd.OutOrStdout(), "Serving %s at %s/\n", cfg.Output.Dir, srv.URL())
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// newDevServer wires the watch subscriptions to the pipeline. notifier
// may be nil.
func newDevServer(cfg *config.Config, proj *project, notifier devserver.Notifier, logger logging.Logger) (*devserver.DevServer, error) {
	also, err := devserver.ParseAlsoTrigger(cfg.Watch.AlsoTrigger)
	if err != nil {
		return nil, err
	}
	return devserver.New(devserver.Options{
		Layout:      cfg.Layout(),
		Builder:     proj.pipeline,
		Notifier:    notifier,
		Logger:      logger,
		Recorder:    proj.recorder,
		Debounce:    cfg.Watch.Debounce,
		AlsoTrigger: also,
	})
}

// statesFunc adapts a function to server.CategoryStates.
type statesFunc func() map[string]string

func (f statesFunc) States() map[string]string { return f() }
