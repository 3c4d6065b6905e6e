package build

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/devsite/internal/config"
)

type fakeStyles struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeStyles) Name() string { return "fake" }

func (f *fakeStyles) Compile(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

func (f *fakeStyles) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// newTestProject lays out a minimal project and returns its config.
func newTestProject(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"src/html/index.html":          `<head><!-- include "head.html" --></head>`,
		"src/html/partials/head.html":  "<title>T</title>",
		"src/assets/js/app.js":         "console.log(1)",
		"src/assets/img/logo.svg":      "<svg/>",
		"src/assets/scss/styles.scss":  "body{}",
		"package.json":                 `{"dependencies":{"lib":"1.0.0"}}`,
		"node_modules/lib/dist/lib.js": "lib",
	})

	cfg := config.Default()
	cfg.Source.Dir = filepath.Join(root, "src")
	cfg.Output.Dir = filepath.Join(root, "dist")
	cfg.Styles.Engine = config.StylesEngineNone
	cfg.Deps.Manifest = filepath.Join(root, "package.json")
	cfg.Deps.ModulesDir = filepath.Join(root, "node_modules")
	return cfg
}

func TestPipelineRun(t *testing.T) {
	cfg := newTestProject(t)
	styles := &fakeStyles{}

	p, err := NewPipeline(cfg, nil, nil)
	require.NoError(t, err)
	p.WithStyleCompiler(styles)

	summary, err := p.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, summary)

	assert.NotEmpty(t, summary.BuildID)
	assert.False(t, summary.Failed())
	assert.Equal(t, 1, styles.Calls())

	var order []Step
	for _, s := range summary.Steps {
		order = append(order, s.Step)
	}
	assert.Equal(t, StartupSteps, order)

	layout := cfg.Layout()
	assert.Equal(t, "<head><title>T</title></head>", readFile(t, filepath.Join(layout.HTMLOut(), "index.html")))
	assert.Equal(t, "lib", readFile(t, filepath.Join(layout.LibsOut(), "lib", "lib.js")))
	assert.Equal(t, "<svg/>", readFile(t, filepath.Join(layout.AssetsOut(), "img", "logo.svg")))
	assert.NoDirExists(t, filepath.Join(layout.AssetsOut(), "scss"))
	assert.Same(t, summary, p.LastSummary())
}

func TestPipelineRunStylesFailureAborts(t *testing.T) {
	cfg := newTestProject(t)

	p, err := NewPipeline(cfg, nil, nil)
	require.NoError(t, err)
	p.WithStyleCompiler(&fakeStyles{err: errors.New("sass exploded")})

	summary, err := p.Run(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "styles step")
	assert.True(t, summary.Failed())
	assert.Len(t, summary.Steps, 1)
	assert.NoFileExists(t, filepath.Join(cfg.Layout().HTMLOut(), "index.html"))
}

func TestPipelineRunDependencyFailureAborts(t *testing.T) {
	cfg := newTestProject(t)
	cfg.Deps.ModulesDir = filepath.Join(t.TempDir(), "empty")

	p, err := NewPipeline(cfg, nil, nil)
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "dependencies step")
}

func TestPipelineRunStepAndCopyScript(t *testing.T) {
	cfg := newTestProject(t)
	styles := &fakeStyles{}

	p, err := NewPipeline(cfg, nil, nil)
	require.NoError(t, err)
	p.WithStyleCompiler(styles)

	require.NoError(t, p.RunStep(context.Background(), StepStyles))
	assert.Equal(t, 1, styles.Calls())
	assert.Error(t, p.RunStep(context.Background(), Step("lint")))

	layout := cfg.Layout()
	out, err := p.CopyScript(context.Background(), filepath.Join(layout.Scripts(), "app.js"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(layout.ScriptsOut(), "app.js"), out)
	assert.Equal(t, "console.log(1)", readFile(t, out))

	_, err = p.CopyScript(context.Background(), filepath.Join(layout.Scripts(), "missing.js"))
	assert.Error(t, err)
}

func TestParseSteps(t *testing.T) {
	steps, err := ParseSteps([]string{"styles", "html"})
	require.NoError(t, err)
	assert.Equal(t, []Step{StepStyles, StepHTML}, steps)

	_, err = ParseSteps([]string{"styles", "deploy"})
	assert.Error(t, err)
}

func TestBuildIDContext(t *testing.T) {
	assert.Empty(t, BuildID(context.Background()))
	assert.Equal(t, "abc", BuildID(WithBuildID(context.Background(), "abc")))
}
