package cmd

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Output formats accepted by --output.
var outputFormats = []string{"table", "json"}

// StandardFlags provides consistent flag definitions across commands
type StandardFlags struct {
	// Server flags
	Port           int
	Host           string
	DisableBrowser bool

	// Layout flags
	SourceDir string
	OutputDir string

	// Output flags
	OutputFormat string
	Quiet        bool
}

// AddStandardFlags adds the named flag groups to a command and binds them
// to their configuration keys.
func AddStandardFlags(cmd *cobra.Command, flagTypes ...string) *StandardFlags {
	flags := &StandardFlags{}

	for _, flagType := range flagTypes {
		switch flagType {
		case "server":
			addServerFlags(cmd, flags)
		case "layout":
			addLayoutFlags(cmd, flags)
		case "output":
			addOutputFlags(cmd, flags)
		}
	}

	return flags
}

func addServerFlags(cmd *cobra.Command, flags *StandardFlags) {
	cmd.Flags().IntVarP(&flags.Port, "port", "p", 3000, "Port to serve on")
	cmd.Flags().StringVar(&flags.Host, "host", "localhost", "Host to bind to")
	cmd.Flags().BoolVar(&flags.DisableBrowser, "no-open", false, "Don't open the browser even if server.open is set")
	cmd.Flags().Bool("open", false, "Open the browser once the server is listening")

	AddFlagValidation(cmd, "port", ValidatePort)
	SetViperBindings(cmd, map[string]string{
		"port": "server.port",
		"host": "server.host",
		"open": "server.open",
	})
}

func addLayoutFlags(cmd *cobra.Command, flags *StandardFlags) {
	cmd.Flags().StringVar(&flags.SourceDir, "src", "src", "Source root")
	cmd.Flags().StringVar(&flags.OutputDir, "out", "dist", "Output root")

	SetViperBindings(cmd, map[string]string{
		"src": "source.dir",
		"out": "output.dir",
	})
}

func addOutputFlags(cmd *cobra.Command, flags *StandardFlags) {
	cmd.Flags().StringVarP(&flags.OutputFormat, "output", "o", "table", "Output format (table|json)")
	cmd.Flags().BoolVarP(&flags.Quiet, "quiet", "q", false, "Suppress the summary")
}

// ShouldOpenBrowser reports whether the browser may be opened.
func (f *StandardFlags) ShouldOpenBrowser(configured bool) bool {
	return configured && !f.DisableBrowser
}

// ValidateFlags validates flag combinations and values
func (f *StandardFlags) ValidateFlags() error {
	if f.OutputFormat != "" && !slices.Contains(outputFormats, f.OutputFormat) {
		return fmt.Errorf("invalid output format %s, must be one of: %s",
			f.OutputFormat, strings.Join(outputFormats, ", "))
	}
	return nil
}

// SetViperBindings binds flags to viper configuration keys when the
// command runs, so commands sharing a key do not steal each other's flag.
// Only flags set on the command line override the file and environment.
func SetViperBindings(cmd *cobra.Command, bindings map[string]string) {
	prev := cmd.PreRunE
	cmd.PreRunE = func(c *cobra.Command, args []string) error {
		for flagName, configKey := range bindings {
			if flag := c.Flags().Lookup(flagName); flag != nil {
				if err := viper.BindPFlag(configKey, flag); err != nil {
					return err
				}
			}
		}
		if prev != nil {
			return prev(c, args)
		}
		return nil
	}
}

// AddFlagValidation adds validation for a specific flag
func AddFlagValidation(cmd *cobra.Command, flagName string, validator func(string) error) {
	flag := cmd.Flags().Lookup(flagName)
	if flag == nil {
		return
	}

	originalSet := flag.Value.Set
	flag.Value = &validatingValue{
		Value:       flag.Value,
		validator:   validator,
		originalSet: originalSet,
	}
}

type validatingValue struct {
	pflag.Value
	validator   func(string) error
	originalSet func(string) error
}

func (v *validatingValue) Set(val string) error {
	if v.validator != nil {
		if err := v.validator(val); err != nil {
			return err
		}
	}
	return v.originalSet(val)
}

// ValidatePort accepts 0 (any free port) through 65535.
func ValidatePort(portStr string) error {
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid port number: %s", portStr)
	}

	if port < 0 || port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got %d", port)
	}

	return nil
}

// ValidateDirExists rejects paths that are missing or not directories.
func ValidateDirExists(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("directory does not exist: %s", path)
	}
	if !info.IsDir() {
		return fmt.Errorf("not a directory: %s", path)
	}
	return nil
}
