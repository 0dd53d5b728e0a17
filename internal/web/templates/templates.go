// Package templates renders the HTML views as templ components.
package templates

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/VehicleTaxonomy/internal/core"
)

// ErrorAlert renders an error fragment for htmx requests.
func ErrorAlert(message, action, code string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w,
			`<div class="alert alert-error" role="alert"><p>%s</p><p class="action">%s</p><small>Code: %s</small></div>`,
			templ.EscapeString(message), templ.EscapeString(action), templ.EscapeString(code))
		return err
	})
}

// ImportsPage lists running imports and the most recent finished runs.
func ImportsPage(active []core.ImportStatus, runs []core.ImportRun) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &printer{w: w}
		p.raw(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><title>Taxonomy imports</title></head><body>`)
		p.raw(`<h1>Taxonomy imports</h1>`)

		p.raw(`<h2>Running</h2>`)
		if len(active) == 0 {
			p.raw(`<p class="empty">No imports are running.</p>`)
		} else {
			p.raw(`<table id="active"><thead><tr><th>Job</th><th>Mode</th><th>Status</th><th>Started</th><th>Rows read</th></tr></thead><tbody>`)
			for _, a := range active {
				p.raw(`<tr>`)
				p.cell(a.ID)
				p.cell(a.Mode)
				p.cell(string(a.Status))
				p.cell(formatTime(a.StartedAt))
				p.cell(strconv.FormatInt(a.RowsRead, 10))
				p.raw(`</tr>`)
			}
			p.raw(`</tbody></table>`)
		}

		p.raw(`<h2>History</h2>`)
		if len(runs) == 0 {
			p.raw(`<p class="empty">No imports have run yet.</p>`)
		} else {
			p.raw(`<table id="history"><thead><tr><th>Started</th><th>Mode</th><th>Status</th><th>Success</th><th>Skipped</th><th>Invalid</th><th>Duration</th><th>Error</th></tr></thead><tbody>`)
			for _, run := range runs {
				p.raw(`<tr>`)
				p.cell(formatTime(run.StartedAt))
				p.cell(run.Mode)
				p.cell(string(run.Status))
				if run.Result != nil {
					p.cell(strconv.Itoa(run.Result.NumSuccess))
					p.cell(strconv.Itoa(run.Result.NumSkipped))
					p.cell(strconv.Itoa(run.Result.NumInvalid))
				} else {
					p.cell("")
					p.cell("")
					p.cell("")
				}
				p.cell(run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond).String())
				p.cell(run.Error)
				p.raw(`</tr>`)
			}
			p.raw(`</tbody></table>`)
		}

		p.raw(`</body></html>`)
		return p.err
	})
}

// printer writes markup and keeps the first write error.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) raw(s string) {
	if p.err != nil {
		return
	}
	_, p.err = io.WriteString(p.w, s)
}

func (p *printer) cell(text string) {
	p.raw(`<td>` + templ.EscapeString(text) + `</td>`)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}
