// Package cmd provides the command-line interface for devsite with layered
// configuration.
//
// Configuration System:
//
//	Settings are read from several sources, highest precedence first:
//	1. Command-line flags (--config, --port, etc.)
//	2. DEVSITE_CONFIG_FILE environment variable, naming the config file
//	3. Individual environment variables (DEVSITE_SERVER_PORT, etc.),
//	   optionally loaded from a .env file in the working directory
//	4. The configuration file (.devsite.yml)
//	5. Built-in defaults
//
// Environment Variables:
//
//	DEVSITE_CONFIG_FILE: Path to custom configuration file
//	DEVSITE_SERVER_PORT: Override server port
//	DEVSITE_OUTPUT_DIR:  Override output directory
//	And any other key following the DEVSITE_<SECTION>_<OPTION> pattern
package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/devsite/internal/config"
	"github.com/conneroisu/devsite/internal/logging"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "devsite",
	Short: "Build and preview static HTML sites with partials and live reload",
	Long: `devsite assembles a static site from HTML pages and partials, compiles
stylesheets, mirrors assets and front-end dependencies, and serves the result
with live reload while watching the sources for changes.

Quick Start:
  devsite init                    Scaffold src/ and .devsite.yml
  devsite serve                   Build, serve and watch
  devsite build                   One-shot build into dist/
  devsite watch                   Build and watch without a server

Command Aliases:
  init (i), serve (s, dev), build (b), watch (w)`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .devsite.yml, can also use DEVSITE_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// initConfig wires viper to the config file, the .env overlay and the
// DEVSITE_ environment.
func initConfig() {
	// Existing environment variables win over .env entries.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "Ignoring .env:", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("DEVSITE_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".devsite")
	}

	viper.SetEnvPrefix("DEVSITE")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// A missing file falls back to defaults; a broken one is reported by
	// loadConfig.
	_ = viper.ReadInConfig()
}

// loadConfig reads and validates the configuration and installs the
// configured logger as the slog default.
func loadConfig() (*config.Config, *logging.SiteLogger, error) {
	var notFound viper.ConfigFileNotFoundError
	if err := viper.ReadInConfig(); err != nil && !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
		return nil, nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	if used := viper.ConfigFileUsed(); used != "" {
		logger.Debug(rootCmd.Context(), "Using config file", "file", used)
	}
	return cfg, logger, nil
}

func newLogger(cfg config.LogConfig) (*logging.SiteLogger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: cfg.Format,
		Output: os.Stderr,
	})
	slog.SetDefault(logger.Slog())
	return logger, nil
}
