package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/devsite/internal/config"
)

var initCmd = &cobra.Command{
	Use:     "init [dir]",
	Aliases: []string{"i"},
	Short:   "Scaffold a new site and its configuration",
	Long: `Create the source layout, a starter page with partials and a
.devsite.yml holding the default configuration. Existing files are left
untouched unless --force is given. If no directory is provided, the
current directory is used.

Layout:
  src/html/                 pages (direct children are built)
  src/html/partials/        fragments pulled in with <!-- include name -->
  src/assets/scss/          stylesheets compiled into dist/assets/css
  src/assets/js/            scripts copied into dist/assets/js
  src/assets/               everything else is mirrored into dist/assets

Examples:
  devsite init                 # Scaffold in the current directory
  devsite init my-site         # Scaffold in ./my-site
  devsite init --minimal       # Directories and config only`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

var (
	initMinimal bool
	initForce   bool
)

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().BoolVar(&initMinimal, "minimal", false, "Create directories and config only")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing files")
}

// ConfigFileName is the configuration file written by init.
const ConfigFileName = ".devsite.yml"

var starterFiles = map[string]string{
	"src/html/index.html": `<!DOCTYPE html>
<html lang="en">
<head>
  <!-- include head.html -->
</head>
<body>
  <!-- include "nav.html" -->
  <main>
    <h1>Hello from devsite</h1>
    <p>Edit <code>src/html/index.html</code> and watch this page reload.</p>
  </main>
  <!-- include footer.html -->
  <script src="../assets/js/main.js"></script>
</body>
</html>
`,
	"src/html/partials/head.html": `<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>devsite</title>
<link rel="stylesheet" href="../assets/css/styles.css">
`,
	"src/html/partials/nav.html": `<nav><a href="index.html">Home</a></nav>
`,
	"src/html/partials/footer.html": `<footer><small>Built with devsite</small></footer>
`,
	"src/assets/scss/styles.scss": `$accent: #2b6cb0;

body {
  font-family: system-ui, sans-serif;
  margin: 0 auto;
  max-width: 48rem;
}

nav a {
  color: $accent;
}
`,
	"src/assets/js/main.js": `document.documentElement.classList.add("js");
`,
	"package.json": `{
  "private": true,
  "dependencies": {}
}
`,
}

var starterDirs = []string{
	"src/html/partials",
	"src/assets/scss",
	"src/assets/js",
	"src/assets/img",
}

func runInit(cmd *cobra.Command, args []string) error {
	projectDir := "."
	if len(args) == 1 {
		projectDir = args[0]
	}
	if err := os.MkdirAll(projectDir, 0o755); err != nil {
		return fmt.Errorf("failed to create project directory: %w", err)
	}

	out := cmd.OutOrStdout()
	for _, dir := range starterDirs {
		if err := os.MkdirAll(filepath.Join(projectDir, filepath.FromSlash(dir)), 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	cfgData, err := marshalConfig(config.Default())
	if err != nil {
		return err
	}
	files := map[string][]byte{ConfigFileName: cfgData}
	if !initMinimal {
		for name, content := range starterFiles {
			files[name] = []byte(content)
		}
	}

	for _, name := range sortedKeys(files) {
		path := filepath.Join(projectDir, filepath.FromSlash(name))
		created, err := writeFileIfAbsent(path, files[name], initForce)
		if err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
		if created {
			fmt.Fprintf(out, "  created  %s\n", name)
		} else {
			fmt.Fprintf(out, "  skipped  %s (exists)\n", name)
		}
	}

	fmt.Fprintf(out, "\nProject ready in %s. Run 'devsite serve' to start.\n", projectDir)
	return nil
}

// marshalConfig renders cfg as the YAML written to .devsite.yml.
func marshalConfig(cfg *config.Config) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode configuration: %w", err)
	}
	header := []byte("# devsite configuration. Every key can be overridden with DEVSITE_<SECTION>_<KEY>.\n")
	return append(header, data...), nil
}

// writeFileIfAbsent writes data unless path exists and force is false. It
// reports whether the file was written.
func writeFileIfAbsent(path string, data []byte, force bool) (bool, error) {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return false, err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, err
	}
	return true, os.WriteFile(path, data, 0o644)
}
