package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Aliases: []string{"w"},
	Short:   "Build the site and rebuild on source changes",
	Long: `Run the full build, then watch the sources and rebuild what changed
without starting the preview server. Useful when another server already
serves the output directory.

Watched categories:
  styles    src/assets/scss/**/*.scss|sass   recompile stylesheets
  scripts   src/assets/js/**/*.js            copy the changed script
  pages     src/html/*.html                  rebuild the changed page
  partials  src/html/partials/**             rebuild every page`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	AddStandardFlags(watchCmd, "layout")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if err := ValidateDirExists(cfg.Source.Dir); err != nil {
		return fmt.Errorf("%w (run 'devsite init' to scaffold a project)", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	proj, err := newProject(cfg, logger)
	if err != nil {
		return err
	}
	if _, err := proj.pipeline.Run(ctx); err != nil {
		return fmt.Errorf("startup build failed: %w", err)
	}

	dev, err := newDevServer(cfg, proj, nil, logger)
	if err != nil {
		return err
	}
	if err := dev.Start(ctx); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Watching %s (press Ctrl+C to stop)\n", cfg.Source.Dir)
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return dev.Shutdown(shutdownCtx)
}
