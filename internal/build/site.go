// Package build turns the source tree into the output tree: HTML pages with
// their partials expanded, compiled stylesheets, copied scripts, mirrored
// assets and third-party libraries.
package build

import (
	"context"
	"os"
	"path/filepath"
	"time"

	siteerrors "github.com/conneroisu/devsite/internal/errors"
	"github.com/conneroisu/devsite/internal/logging"
	"github.com/conneroisu/devsite/internal/partials"
)

const pageExt = ".html"

// PageResult describes one page of a batch build.
type PageResult struct {
	Source   string
	Output   string
	Resolved int
	// Unresolved markers were left verbatim in the written page.
	Unresolved []partials.Failure
	// Err is set when the page could not be read or written.
	Err error
}

// SiteReport summarises a batch build.
type SiteReport struct {
	Pages    []PageResult
	Written  int
	Failed   int
	Duration time.Duration
}

// UnresolvedCount returns the number of markers left in place across all pages.
func (r *SiteReport) UnresolvedCount() int {
	n := 0
	for _, p := range r.Pages {
		n += len(p.Unresolved)
	}
	return n
}

// Err joins the read and write failures of the batch.
func (r *SiteReport) Err() error {
	ec := siteerrors.NewErrorCollector()
	for _, p := range r.Pages {
		ec.Add(p.Source, p.Err)
	}
	return ec.Err()
}

// SiteBuilder assembles pages by expanding their include markers.
type SiteBuilder struct {
	resolver *partials.Resolver
	logger   logging.Logger
	recorder Recorder
}

// NewSiteBuilder creates a site builder. A nil recorder disables metrics.
func NewSiteBuilder(resolver *partials.Resolver, logger logging.Logger, recorder Recorder) *SiteBuilder {
	if logger == nil {
		logger = logging.Discard()
	}
	if resolver == nil {
		resolver = partials.NewResolver(logger)
	}
	if recorder == nil {
		recorder = NoopRecorder{}
	}
	return &SiteBuilder{
		resolver: resolver,
		logger:   logger.WithComponent("html"),
		recorder: recorder,
	}
}

// BuildAll processes every .html file directly inside srcDir and writes the
// results to outDir. Unresolvable markers are logged and left in place, and
// a page that cannot be read or written does not stop the batch. Only an
// unreadable srcDir or a cancelled context fails the call.
func (b *SiteBuilder) BuildAll(ctx context.Context, srcDir, outDir string) (*SiteReport, error) {
	start := time.Now()

	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return nil, siteerrors.NewIOError(siteerrors.CodeReadFailed, srcDir, err)
	}

	report := &SiteReport{}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != pageExt {
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}

		page := b.buildOne(ctx, filepath.Join(srcDir, entry.Name()), outDir)
		if page.Err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			report.Failed++
			siteerrors.Report(ctx, b.logger, page.Err, "Failed to build page", "source", page.Source)
		} else {
			report.Written++
		}
		report.Pages = append(report.Pages, page)
	}

	report.Duration = time.Since(start)
	b.recorder.AddPages(report.Written, report.Failed, report.UnresolvedCount())
	b.logger.Info(ctx, "Processed HTML files",
		"written", report.Written,
		"failed", report.Failed,
		"unresolved", report.UnresolvedCount(),
		"duration_ms", report.Duration.Milliseconds(),
	)

	return report, nil
}

func (b *SiteBuilder) buildOne(ctx context.Context, srcFile, outDir string) PageResult {
	page := PageResult{
		Source: srcFile,
		Output: filepath.Join(outDir, filepath.Base(srcFile)),
	}

	data, err := os.ReadFile(srcFile)
	if err != nil {
		page.Err = siteerrors.NewIOError(siteerrors.CodeReadFailed, srcFile, err)
		return page
	}

	res, err := b.resolver.ResolveDocument(ctx, srcFile, string(data), filepath.Dir(srcFile), partials.ContinueOnError)
	if err != nil {
		page.Err = err
		return page
	}
	page.Resolved = res.Resolved
	page.Unresolved = res.Failures

	page.Err = writePage(page.Output, res.Content)
	return page
}

// BuildPage rebuilds a single page. Any unresolvable marker aborts the
// build and nothing is written. It returns the path of the written page.
func (b *SiteBuilder) BuildPage(ctx context.Context, srcFile, outDir string) (string, error) {
	data, err := os.ReadFile(srcFile)
	if err != nil {
		return "", siteerrors.NewIOError(siteerrors.CodeReadFailed, srcFile, err)
	}

	res, err := b.resolver.ResolveDocument(ctx, srcFile, string(data), filepath.Dir(srcFile), partials.FailFast)
	if err != nil {
		return "", err
	}

	out := filepath.Join(outDir, filepath.Base(srcFile))
	if err := writePage(out, res.Content); err != nil {
		return "", err
	}

	b.logger.Info(ctx, "Updated page", "source", srcFile, "output", out, "resolved", res.Resolved)
	return out, nil
}

func writePage(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return siteerrors.NewIOError(siteerrors.CodeMkdirFailed, filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return siteerrors.NewIOError(siteerrors.CodeWriteFailed, path, err)
	}
	return nil
}
