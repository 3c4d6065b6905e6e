// Package config provides configuration management for devsite using Viper
// for loading from files, environment variables, and command-line flags.
//
// The configuration system supports a YAML file (.devsite.yml), environment
// variable overrides with the DEVSITE_ prefix, defaults and validation. It
// covers the source and output roots, the preview server, the stylesheet
// engine, dependency mirroring, watch behaviour and logging.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the full devsite configuration.
type Config struct {
	Source  SourceConfig  `mapstructure:"source" yaml:"source"`
	Output  OutputConfig  `mapstructure:"output" yaml:"output"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Styles  StylesConfig  `mapstructure:"styles" yaml:"styles"`
	Deps    DepsConfig    `mapstructure:"deps" yaml:"deps"`
	HTML    HTMLConfig    `mapstructure:"html" yaml:"html"`
	Assets  AssetsConfig  `mapstructure:"assets" yaml:"assets"`
	Watch   WatchConfig   `mapstructure:"watch" yaml:"watch"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

type SourceConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

type OutputConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

type ServerConfig struct {
	Host           string   `mapstructure:"host" yaml:"host"`
	Port           int      `mapstructure:"port" yaml:"port"`
	Open           bool     `mapstructure:"open" yaml:"open"`
	StartPath      string   `mapstructure:"start_path" yaml:"start_path"`
	LiveReload     bool     `mapstructure:"live_reload" yaml:"live_reload"`
	CSSInjection   bool     `mapstructure:"css_injection" yaml:"css_injection"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// StylesConfig selects how stylesheets are compiled.
type StylesConfig struct {
	// Engine is one of "command", "esbuild" or "none".
	Engine      string   `mapstructure:"engine" yaml:"engine"`
	Command     string   `mapstructure:"command" yaml:"command"`
	EntryPoints []string `mapstructure:"entry_points" yaml:"entry_points"`
}

type DepsConfig struct {
	Manifest    string `mapstructure:"manifest" yaml:"manifest"`
	ModulesDir  string `mapstructure:"modules_dir" yaml:"modules_dir"`
	Concurrency int    `mapstructure:"concurrency" yaml:"concurrency"`
}

type HTMLConfig struct {
	MarkdownPartials bool `mapstructure:"markdown_partials" yaml:"markdown_partials"`
}

type AssetsConfig struct {
	Exclude []string `mapstructure:"exclude" yaml:"exclude"`
}

type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`
	// AlsoTrigger maps a watch category to the build steps that run after
	// its primary action succeeds.
	AlsoTrigger map[string][]string `mapstructure:"also_trigger" yaml:"also_trigger"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// Engines accepted by styles.engine.
const (
	StylesEngineCommand = "command"
	StylesEngineEsbuild = "esbuild"
	StylesEngineNone    = "none"
)

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Source: SourceConfig{Dir: "src"},
		Output: OutputConfig{Dir: "dist"},
		Server: ServerConfig{
			Host:         "localhost",
			Port:         3000,
			StartPath:    "html/index.html",
			LiveReload:   true,
			CSSInjection: true,
		},
		Styles: StylesConfig{
			Engine:      StylesEngineCommand,
			Command:     "sass --no-source-map src/assets/scss/styles.scss dist/assets/css/styles.css",
			EntryPoints: []string{"src/assets/scss/styles.scss"},
		},
		Deps: DepsConfig{
			Manifest:    "package.json",
			ModulesDir:  "node_modules",
			Concurrency: 4,
		},
		Assets: AssetsConfig{Exclude: []string{"css", "scss"}},
		Watch: WatchConfig{
			Debounce: 100 * time.Millisecond,
			AlsoTrigger: map[string][]string{
				"scripts": {"styles"},
				"pages":   {"styles"},
			},
		},
		Log:     LogConfig{Level: "info", Format: "text"},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// SetDefaults registers the scalar and slice defaults with viper.
// watch.also_trigger is handled in LoadFrom.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("source.dir", d.Source.Dir)
	v.SetDefault("output.dir", d.Output.Dir)
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.open", d.Server.Open)
	v.SetDefault("server.start_path", d.Server.StartPath)
	v.SetDefault("server.live_reload", d.Server.LiveReload)
	v.SetDefault("server.css_injection", d.Server.CSSInjection)
	v.SetDefault("styles.engine", d.Styles.Engine)
	v.SetDefault("styles.command", d.Styles.Command)
	v.SetDefault("styles.entry_points", d.Styles.EntryPoints)
	v.SetDefault("deps.manifest", d.Deps.Manifest)
	v.SetDefault("deps.modules_dir", d.Deps.ModulesDir)
	v.SetDefault("deps.concurrency", d.Deps.Concurrency)
	v.SetDefault("html.markdown_partials", d.HTML.MarkdownPartials)
	v.SetDefault("assets.exclude", d.Assets.Exclude)
	v.SetDefault("watch.debounce", d.Watch.Debounce)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
}

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads the configuration from v, applies defaults and validates.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	// Slices set through env vars arrive as a single space separated string.
	if v.IsSet("assets.exclude") && len(cfg.Assets.Exclude) == 0 {
		cfg.Assets.Exclude = v.GetStringSlice("assets.exclude")
	}
	if v.IsSet("styles.entry_points") && len(cfg.Styles.EntryPoints) == 0 {
		cfg.Styles.EntryPoints = v.GetStringSlice("styles.entry_points")
	}
	// A configured also_trigger map replaces the default couplings wholesale.
	if !v.IsSet("watch.also_trigger") {
		cfg.Watch.AlsoTrigger = Default().Watch.AlsoTrigger
	}
	if cfg.Watch.AlsoTrigger == nil {
		cfg.Watch.AlsoTrigger = map[string][]string{}
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Layout returns the fixed directory layout rooted at the configured
// source and output directories.
func (c *Config) Layout() Layout {
	return NewLayout(c.Source.Dir, c.Output.Dir)
}

// Address returns host:port for the preview server.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
