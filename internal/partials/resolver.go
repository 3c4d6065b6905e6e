// Package partials expands HTML include markers of the form
// <!-- include name --> into the contents of files stored under a
// page directory's partials/ subdirectory.
//
// Substitution is a single pass over the markers found in the original
// content. Text pulled in from a partial is never scanned again, so a
// partial that itself contains a marker is emitted verbatim.
package partials

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/conneroisu/devsite/internal/config"
	siteerrors "github.com/conneroisu/devsite/internal/errors"
	"github.com/conneroisu/devsite/internal/logging"
)

// ErrorPolicy selects how Resolve reacts to a marker that cannot be resolved.
type ErrorPolicy int

const (
	// ContinueOnError logs the failure, leaves the marker in place and
	// moves on to the next marker.
	ContinueOnError ErrorPolicy = iota
	// FailFast aborts on the first failure and returns it.
	FailFast
)

func (p ErrorPolicy) String() string {
	switch p {
	case ContinueOnError:
		return "continue"
	case FailFast:
		return "fail-fast"
	default:
		return fmt.Sprintf("ErrorPolicy(%d)", int(p))
	}
}

var includePattern = regexp.MustCompile(`<!--\s*include\s+(.*?)\s*-->`)

// Marker is one include directive located in a document.
type Marker struct {
	// Text is the exact matched text, e.g. `<!-- include "nav.html" -->`.
	Text string
	// Name is the reference with every double quote removed.
	Name  string
	Start int
	End   int
}

// FindMarkers returns the non-overlapping include markers in content,
// in document order.
func FindMarkers(content string) []Marker {
	matches := includePattern.FindAllStringSubmatchIndex(content, -1)
	markers := make([]Marker, 0, len(matches))
	for _, m := range matches {
		markers = append(markers, Marker{
			Text:  content[m[0]:m[1]],
			Name:  strings.ReplaceAll(content[m[2]:m[3]], `"`, ""),
			Start: m[0],
			End:   m[1],
		})
	}
	return markers
}

// Failure pairs a marker with the reason it was left unresolved.
type Failure struct {
	Marker Marker
	Err    error
}

// Result is the outcome of one resolve pass.
type Result struct {
	Content  string
	Resolved int
	Failures []Failure
}

// Resolver substitutes partial content for include markers.
type Resolver struct {
	logger   logging.Logger
	markdown goldmark.Markdown
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithMarkdown renders partials with a .md extension to HTML before
// substitution.
func WithMarkdown(enabled bool) Option {
	return func(r *Resolver) {
		if enabled {
			r.markdown = goldmark.New()
		} else {
			r.markdown = nil
		}
	}
}

// NewResolver creates a resolver that reports failures through logger.
func NewResolver(logger logging.Logger, opts ...Option) *Resolver {
	if logger == nil {
		logger = logging.Discard()
	}
	r := &Resolver{logger: logger.WithComponent("partials")}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve expands the markers in content against baseDir/partials.
func (r *Resolver) Resolve(ctx context.Context, content, baseDir string, policy ErrorPolicy) (*Result, error) {
	return r.ResolveDocument(ctx, "", content, baseDir, policy)
}

// ResolveDocument is Resolve with the path of the document being
// processed, which is attached to logged and returned failures.
//
// With ContinueOnError the returned error is only ever a context error.
func (r *Resolver) ResolveDocument(ctx context.Context, source, content, baseDir string, policy ErrorPolicy) (*Result, error) {
	markers := FindMarkers(content)
	if len(markers) == 0 {
		return &Result{Content: content}, nil
	}

	partialsDir := filepath.Join(baseDir, config.PartialsDirName)
	cache := make(map[string]string, len(markers))
	result := &Result{}

	var out strings.Builder
	out.Grow(len(content))
	last := 0

	for _, m := range markers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		out.WriteString(content[last:m.Start])
		last = m.End

		text, ok := cache[m.Name]
		if !ok {
			var err *siteerrors.SiteError
			text, err = r.load(partialsDir, m.Name)
			if err != nil {
				if source != "" {
					err.WithFile(source)
				}
				if policy == FailFast {
					return nil, err
				}
				r.logger.Error(ctx, err, "Failed to include partial",
					"reference", m.Name,
					"source", source,
				)
				result.Failures = append(result.Failures, Failure{Marker: m, Err: err})
				out.WriteString(m.Text)
				continue
			}
			cache[m.Name] = text
		}

		out.WriteString(text)
		result.Resolved++
	}
	out.WriteString(content[last:])

	result.Content = out.String()
	return result, nil
}

func (r *Resolver) load(partialsDir, name string) (string, *siteerrors.SiteError) {
	path, err := partialPath(partialsDir, name)
	if err != nil {
		return "", siteerrors.NewMissingPartialError(name, path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", siteerrors.NewMissingPartialError(name, path, err)
	}

	if r.markdown != nil && strings.EqualFold(filepath.Ext(name), ".md") {
		var buf bytes.Buffer
		if err := r.markdown.Convert(data, &buf); err != nil {
			return "", siteerrors.NewMissingPartialError(name, path, err)
		}
		return buf.String(), nil
	}

	return string(data), nil
}

// partialPath joins name onto dir, refusing names that leave dir.
func partialPath(dir, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return dir, fmt.Errorf("empty partial reference")
	}
	if filepath.IsAbs(name) {
		return name, siteerrors.ErrOutsidePartials
	}

	path := filepath.Join(dir, name)
	rel, err := filepath.Rel(dir, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path, siteerrors.ErrOutsidePartials
	}
	return path, nil
}
