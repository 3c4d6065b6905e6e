package server

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/a-h/templ"

	"github.com/conneroisu/devsite/internal/build"
)

// StatusSource reports the state shown on the status page.
type StatusSource interface {
	LastSummary() *build.Summary
}

// CategoryStates reports the watch state per category. It is optional.
type CategoryStates interface {
	States() map[string]string
}

type statusView struct {
	Version   string
	Uptime    time.Duration
	Clients   int
	Summary   *build.Summary
	Watch     map[string]string
	Generated time.Time
}

// statusPage renders the status view as a standalone HTML document.
func statusPage(v statusView) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &printer{w: w}
		p.printf(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><title>devsite status</title>`)
		p.printf(`<style>body{font-family:system-ui,sans-serif;margin:2rem}table{border-collapse:collapse}td,th{padding:.25rem .75rem;border-bottom:1px solid #ddd;text-align:left}.failed{color:#b00}</style>`)
		p.printf(`</head><body><h1>devsite</h1>`)
		p.printf(`<p>Version %s, up %s, %d connected client(s)</p>`,
			templ.EscapeString(v.Version), v.Uptime.Round(time.Second), v.Clients)

		if s := v.Summary; s == nil {
			p.printf(`<p>No build has run yet.</p>`)
		} else {
			p.printf(`<h2>Last build</h2><p>%s at %s in %s</p>`,
				templ.EscapeString(s.BuildID), s.StartedAt.Format(time.RFC3339), s.Duration.Round(time.Millisecond))
			p.printf(`<table><tr><th>Step</th><th>Duration</th><th>Result</th></tr>`)
			for _, step := range s.Steps {
				result, class := "ok", ""
				if step.Err != nil {
					result, class = step.Err.Error(), ` class="failed"`
				}
				p.printf(`<tr%s><td>%s</td><td>%s</td><td>%s</td></tr>`,
					class, templ.EscapeString(string(step.Step)), step.Duration.Round(time.Millisecond), templ.EscapeString(result))
			}
			p.printf(`</table>`)
			if s.Site != nil {
				p.printf(`<p>%d page(s) written, %d failed, %d unresolved include(s)</p>`,
					s.Site.Written, s.Site.Failed, s.Site.UnresolvedCount())
			}
		}

		if len(v.Watch) > 0 {
			names := make([]string, 0, len(v.Watch))
			for name := range v.Watch {
				names = append(names, name)
			}
			sort.Strings(names)
			p.printf(`<h2>Watchers</h2><table><tr><th>Category</th><th>State</th></tr>`)
			for _, name := range names {
				p.printf(`<tr><td>%s</td><td>%s</td></tr>`, templ.EscapeString(name), templ.EscapeString(v.Watch[name]))
			}
			p.printf(`</table>`)
		}

		p.printf(`<p><small>Generated %s</small></p></body></html>`, v.Generated.Format(time.RFC3339))
		return p.err
	})
}

// printer keeps the first write error.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...interface{}) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}
