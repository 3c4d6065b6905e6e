package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

// Watch categories and build step names accepted under watch.also_trigger.
var (
	KnownCategories = []string{"styles", "scripts", "pages", "partials"}
	KnownSteps      = []string{"styles", "dependencies", "html", "assets"}
)

// ValidationError describes one invalid configuration value.
type ValidationError struct {
	Field       string
	Value       interface{}
	Message     string
	Suggestions []string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// ValidationResult holds every issue found in one validation pass.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// HasErrors returns true if there are any validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// String returns a formatted string of all validation issues
func (vr *ValidationResult) String() string {
	var builder strings.Builder

	for _, err := range vr.Errors {
		builder.WriteString(fmt.Sprintf("error: %s: %s\n", err.Field, err.Message))
		for _, suggestion := range err.Suggestions {
			builder.WriteString(fmt.Sprintf("  hint: %s\n", suggestion))
		}
	}
	for _, warning := range vr.Warnings {
		builder.WriteString(fmt.Sprintf("warning: %s: %s\n", warning.Field, warning.Message))
	}

	return builder.String()
}

func (vr *ValidationResult) addError(field string, value interface{}, msg string, suggestions ...string) {
	vr.Errors = append(vr.Errors, ValidationError{
		Field:       field,
		Value:       value,
		Message:     msg,
		Suggestions: suggestions,
	})
}

func (vr *ValidationResult) addWarning(field string, value interface{}, msg string) {
	vr.Warnings = append(vr.Warnings, ValidationError{Field: field, Value: value, Message: msg})
}

// Validate returns the first validation error, or nil.
func Validate(cfg *Config) error {
	result := ValidateWithDetails(cfg)
	if result.HasErrors() {
		first := result.Errors[0]
		return &first
	}
	return nil
}

// ValidateWithDetails checks every section and reports all issues.
func ValidateWithDetails(cfg *Config) *ValidationResult {
	result := &ValidationResult{}

	validateRoot("source.dir", cfg.Source.Dir, result)
	validateRoot("output.dir", cfg.Output.Dir, result)
	if filepath.Clean(cfg.Source.Dir) == filepath.Clean(cfg.Output.Dir) {
		result.addError("output.dir", cfg.Output.Dir, "output directory must differ from source directory")
	}

	validateServer(&cfg.Server, result)
	validateStyles(&cfg.Styles, result)

	if cfg.Deps.Concurrency < 1 {
		result.addError("deps.concurrency", cfg.Deps.Concurrency, "must be at least 1")
	}
	if cfg.Watch.Debounce < 0 {
		result.addError("watch.debounce", cfg.Watch.Debounce, "must not be negative")
	}
	for category, steps := range cfg.Watch.AlsoTrigger {
		if !slices.Contains(KnownCategories, category) {
			result.addError("watch.also_trigger", category, "unknown watch category",
				"known categories: "+strings.Join(KnownCategories, ", "))
			continue
		}
		for _, step := range steps {
			if !slices.Contains(KnownSteps, step) {
				result.addError("watch.also_trigger."+category, step, "unknown build step",
					"known steps: "+strings.Join(KnownSteps, ", "))
			}
		}
	}

	switch cfg.Log.Format {
	case "text", "json":
	default:
		result.addError("log.format", cfg.Log.Format, "must be text or json")
	}

	return result
}

// validateRoot rejects empty, absolute-escaping or traversing roots.
func validateRoot(field, path string, result *ValidationResult) {
	if path == "" {
		result.addError(field, path, "empty path")
		return
	}

	cleanPath := filepath.Clean(path)
	if strings.HasPrefix(cleanPath, "..") {
		result.addError(field, path, "path contains traversal")
		return
	}
	if filepath.IsAbs(cleanPath) {
		result.addWarning(field, path, "absolute path; project will not be relocatable")
	}
}

func validateServer(cfg *ServerConfig, result *ValidationResult) {
	if cfg.Port < 0 || cfg.Port > 65535 {
		result.addError("server.port", cfg.Port, fmt.Sprintf("port %d is not in valid range 0-65535", cfg.Port))
	}

	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\", " "}
	for _, char := range dangerousChars {
		if strings.Contains(cfg.Host, char) {
			result.addError("server.host", cfg.Host, "host contains dangerous character: "+char)
			break
		}
	}

	if strings.HasPrefix(cfg.StartPath, "/") || strings.Contains(cfg.StartPath, "..") {
		result.addError("server.start_path", cfg.StartPath, "start path must be relative to the output directory",
			"example: html/index.html")
	}
}

func validateStyles(cfg *StylesConfig, result *ValidationResult) {
	switch cfg.Engine {
	case StylesEngineCommand:
		if strings.TrimSpace(cfg.Command) == "" {
			result.addError("styles.command", cfg.Command, "command engine requires a command")
		}
	case StylesEngineEsbuild:
		if len(cfg.EntryPoints) == 0 {
			result.addError("styles.entry_points", cfg.EntryPoints, "esbuild engine requires at least one entry point")
		}
	case StylesEngineNone:
	default:
		result.addError("styles.engine", cfg.Engine, "unknown stylesheet engine",
			"use one of: command, esbuild, none")
	}
}
