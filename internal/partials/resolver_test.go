package partials

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	siteerrors "github.com/conneroisu/devsite/internal/errors"
	"github.com/conneroisu/devsite/internal/logging"
)

// writePartials creates baseDir/partials with the given files.
func writePartials(t *testing.T, files map[string]string) string {
	t.Helper()
	baseDir := t.TempDir()
	dir := filepath.Join(baseDir, "partials")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return baseDir
}

func TestFindMarkers(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{"none", "<html><body>plain</body></html>", nil},
		{"unquoted", "<!-- include nav.html -->", []string{"nav.html"}},
		{"quoted", `<!-- include "nav.html" -->`, []string{"nav.html"}},
		{"tight spacing", `<!--include "head.html"-->`, []string{"head.html"}},
		{"no space after keyword", `<!--include"head.html"-->`, nil},
		{"tight comment", `<!--include  head.html-->`, []string{"head.html"}},
		{"extra spaces", `<!--   include    footer.html    -->`, []string{"footer.html"}},
		{"multiple", "<!-- include a.html --><p/><!-- include b.html -->", []string{"a.html", "b.html"}},
		{"ordinary comment", "<!-- just a note -->", nil},
		{"nested dir", `<!-- include "layout/head.html" -->`, []string{"layout/head.html"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			markers := FindMarkers(tt.content)
			var names []string
			for _, m := range markers {
				names = append(names, m.Name)
				assert.Equal(t, tt.content[m.Start:m.End], m.Text)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestResolveHeadScenario(t *testing.T) {
	baseDir := writePartials(t, map[string]string{"head.html": "<title>T</title>"})
	r := NewResolver(logging.Discard())

	res, err := r.Resolve(context.Background(), `<head><!-- include "head.html" --></head>`, baseDir, ContinueOnError)
	require.NoError(t, err)

	assert.Equal(t, "<head><title>T</title></head>", res.Content)
	assert.Equal(t, 1, res.Resolved)
	assert.Empty(t, res.Failures)
}

func TestResolveNoMarkers(t *testing.T) {
	r := NewResolver(nil)
	content := "<html><!-- comment --><body>hi</body></html>"

	for _, policy := range []ErrorPolicy{ContinueOnError, FailFast} {
		res, err := r.Resolve(context.Background(), content, t.TempDir(), policy)
		require.NoError(t, err)
		assert.Equal(t, content, res.Content)
		assert.Zero(t, res.Resolved)
	}
}

func TestResolveQuotedAndUnquotedMatch(t *testing.T) {
	baseDir := writePartials(t, map[string]string{"nav.html": "<nav>N</nav>"})
	r := NewResolver(logging.Discard())
	ctx := context.Background()

	quoted, err := r.Resolve(ctx, `<!-- include "nav.html" -->`, baseDir, FailFast)
	require.NoError(t, err)
	unquoted, err := r.Resolve(ctx, `<!-- include nav.html -->`, baseDir, FailFast)
	require.NoError(t, err)

	assert.Equal(t, "<nav>N</nav>", quoted.Content)
	assert.Equal(t, quoted.Content, unquoted.Content)
}

func TestResolveDuplicateMarkers(t *testing.T) {
	baseDir := writePartials(t, map[string]string{"hr.html": "<hr>"})
	r := NewResolver(logging.Discard())

	content := "<!-- include hr.html -->a<!-- include hr.html -->b<!-- include hr.html -->"
	res, err := r.Resolve(context.Background(), content, baseDir, ContinueOnError)
	require.NoError(t, err)

	assert.Equal(t, "<hr>a<hr>b<hr>", res.Content)
	assert.Equal(t, 3, res.Resolved)
	assert.Empty(t, FindMarkers(res.Content))
}

func TestResolveSinglePass(t *testing.T) {
	baseDir := writePartials(t, map[string]string{
		"outer.html": "<div><!-- include inner.html --></div>",
		"inner.html": "INNER",
	})
	r := NewResolver(logging.Discard())

	res, err := r.Resolve(context.Background(), "<!-- include outer.html -->", baseDir, FailFast)
	require.NoError(t, err)

	assert.Equal(t, "<div><!-- include inner.html --></div>", res.Content)
	assert.NotContains(t, res.Content, "INNER")
}

func TestResolveMissingPartialContinue(t *testing.T) {
	baseDir := writePartials(t, map[string]string{"head.html": "<title>T</title>"})

	var buf bytes.Buffer
	logger := logging.NewLogger(&logging.LoggerConfig{Level: logging.LevelInfo, Output: &buf})
	r := NewResolver(logger)

	content := `<!-- include head.html --><!-- include "missing.html" -->`
	res, err := r.ResolveDocument(context.Background(), "src/html/index.html", content, baseDir, ContinueOnError)
	require.NoError(t, err)

	assert.Equal(t, `<title>T</title><!-- include "missing.html" -->`, res.Content)
	assert.Equal(t, 1, res.Resolved)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "missing.html", res.Failures[0].Marker.Name)
	assert.True(t, siteerrors.IsMissingPartial(res.Failures[0].Err))

	logged := buf.String()
	assert.Equal(t, 1, strings.Count(logged, "Failed to include partial"))
	assert.Contains(t, logged, "reference=missing.html")
	assert.Contains(t, logged, "src/html/index.html")
}

func TestResolveMissingPartialFailFast(t *testing.T) {
	baseDir := writePartials(t, map[string]string{"head.html": "<title>T</title>"})
	r := NewResolver(logging.Discard())

	res, err := r.ResolveDocument(context.Background(), "index.html",
		`<!-- include head.html --><!-- include missing.html -->`, baseDir, FailFast)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, siteerrors.IsMissingPartial(err))

	var se *siteerrors.SiteError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "missing.html", se.Reference)
	assert.Equal(t, "index.html", se.FilePath)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestResolveRejectsEscapingReference(t *testing.T) {
	baseDir := writePartials(t, nil)
	require.NoError(t, os.WriteFile(filepath.Join(baseDir, "secret.html"), []byte("secret"), 0o644))
	r := NewResolver(logging.Discard())

	for _, ref := range []string{"../secret.html", `"../secret.html"`, "/etc/passwd", ".."} {
		t.Run(ref, func(t *testing.T) {
			_, err := r.Resolve(context.Background(), "<!-- include "+ref+" -->", baseDir, FailFast)
			require.Error(t, err)
			assert.True(t, siteerrors.IsMissingPartial(err))
			assert.ErrorIs(t, err, siteerrors.ErrOutsidePartials)
		})
	}
}

func TestResolveEmptyReference(t *testing.T) {
	r := NewResolver(logging.Discard())
	content := `<!-- include "" -->`

	res, err := r.Resolve(context.Background(), content, t.TempDir(), ContinueOnError)
	require.NoError(t, err)
	assert.Equal(t, content, res.Content)
	assert.Len(t, res.Failures, 1)
}

func TestResolveMarkdownPartials(t *testing.T) {
	baseDir := writePartials(t, map[string]string{"intro.md": "# Hello\n"})
	content := "<!-- include intro.md -->"

	raw, err := NewResolver(nil).Resolve(context.Background(), content, baseDir, FailFast)
	require.NoError(t, err)
	assert.Equal(t, "# Hello\n", raw.Content)

	rendered, err := NewResolver(nil, WithMarkdown(true)).Resolve(context.Background(), content, baseDir, FailFast)
	require.NoError(t, err)
	assert.Equal(t, "<h1>Hello</h1>\n", rendered.Content)
}

func TestResolveCancelledContext(t *testing.T) {
	baseDir := writePartials(t, map[string]string{"a.html": "A"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewResolver(nil).Resolve(ctx, "<!-- include a.html -->", baseDir, ContinueOnError)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestErrorPolicyString(t *testing.T) {
	assert.Equal(t, "continue", ContinueOnError.String())
	assert.Equal(t, "fail-fast", FailFast.String())
	assert.Equal(t, "ErrorPolicy(7)", ErrorPolicy(7).String())
}
