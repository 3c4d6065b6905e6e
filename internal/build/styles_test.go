package build

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/devsite/internal/config"
	siteerrors "github.com/conneroisu/devsite/internal/errors"
)

func TestNewStyleCompiler(t *testing.T) {
	tests := []struct {
		name     string
		engine   string
		command  string
		wantName string
		wantErr  bool
	}{
		{"default command", config.StylesEngineCommand, "sass --no-source-map in.scss out.css", "command", false},
		{"esbuild", config.StylesEngineEsbuild, "", "esbuild", false},
		{"none", config.StylesEngineNone, "", "none", false},
		{"unknown", "less", "", "", true},
		{"disallowed command", config.StylesEngineCommand, "rm -rf dist", "", true},
		{"injection", config.StylesEngineCommand, "sass in.scss;curl", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Styles.Engine = tt.engine
			cfg.Styles.Command = tt.command

			c, err := NewStyleCompiler(cfg, nil)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, c.Name())
		})
	}
}

func TestCommandCompilerRejected(t *testing.T) {
	_, err := NewCommandCompiler("bash -c true", t.TempDir(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, &siteerrors.SiteError{Type: siteerrors.ErrorTypeBuild, Code: siteerrors.CodeCommandRejected})
}

func TestCommandCompilerRunsCommand(t *testing.T) {
	for _, name := range []string{"true", "false"} {
		if _, err := exec.LookPath(name); err != nil {
			t.Skipf("%s not available: %v", name, err)
		}
		allowedStyleCommands[name] = true
	}
	t.Cleanup(func() {
		delete(allowedStyleCommands, "true")
		delete(allowedStyleCommands, "false")
	})

	outDir := filepath.Join(t.TempDir(), "assets", "css")
	ok, err := NewCommandCompiler("true", outDir, nil)
	require.NoError(t, err)
	require.NoError(t, ok.Compile(context.Background()))
	assert.DirExists(t, outDir)

	failing, err := NewCommandCompiler("false", outDir, nil)
	require.NoError(t, err)
	err = failing.Compile(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, &siteerrors.SiteError{Type: siteerrors.ErrorTypeBuild, Code: siteerrors.CodeStylesFailed})
}

func TestNoopCompiler(t *testing.T) {
	assert.NoError(t, NoopCompiler{}.Compile(context.Background()))
}

func TestEsbuildCompilerBundlesCSS(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"styles/base.css": "body { color: red; }\n",
		"styles/site.css": "@import \"./base.css\";\n.nav { margin: 0; }\n",
	})
	out := filepath.Join(root, "dist", "css")

	c := NewEsbuildCompiler([]string{filepath.Join(root, "styles", "site.css")}, out, nil)
	require.NoError(t, c.Compile(context.Background()))

	data, err := os.ReadFile(filepath.Join(out, "site.css"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "color: red")
	assert.Contains(t, string(data), ".nav")
}

func TestEsbuildCompilerReportsErrors(t *testing.T) {
	c := NewEsbuildCompiler([]string{filepath.Join(t.TempDir(), "missing.css")}, t.TempDir(), nil)
	err := c.Compile(context.Background())
	require.Error(t, err)
	assert.True(t, siteerrors.IsBuildError(err))
}
