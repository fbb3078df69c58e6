// Package views renders the playground's HTML pages.
package views

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/a-h/templ"

	appI18n "github.com/pavelanni/athena-playground/internal/i18n"
	"github.com/pavelanni/athena-playground/internal/model"
)

// PartitionInfo is one row of the partition table.
type PartitionInfo struct {
	Mode        model.DataMode
	Evaluations int
	ExportURL   string
}

// StatusData is everything the status page shows.
type StatusData struct {
	AthenaURL  string
	Health     *model.HealthStatus // nil when no Athena URL is configured
	Partitions []PartitionInfo
}

// StatusPage renders the server status: module health and data partitions.
func StatusPage(data StatusData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		t := func(id string) string { return templ.EscapeString(appI18n.T(ctx, id)) }
		p := &printer{w: w}

		p.printf("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>%s</title></head><body>\n", t("AppTitle"))
		p.printf("<h1>%s</h1>\n<h2>%s</h2>\n", t("AppTitle"), t("StatusHeading"))

		p.printf("<p>%s: ", t("AthenaURL"))
		if data.AthenaURL == "" {
			p.printf("<em>%s</em></p>\n", t("NotConfigured"))
		} else {
			p.printf("<code>%s</code></p>\n", templ.EscapeString(data.AthenaURL))
		}

		if data.Health != nil {
			if data.Health.Status == model.HealthFetchFailed {
				p.printf("<p class=\"error\">%s</p>\n", t("NotReachable"))
			} else {
				p.printf("<p>%s</p>\n<ul>\n", templ.EscapeString(appI18n.Tp(ctx, "ModulesAvailable", len(data.Health.Modules))))
				names := make([]string, 0, len(data.Health.Modules))
				for name := range data.Health.Modules {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					m := data.Health.Modules[name]
					state := t("Unhealthy")
					if m.Healthy {
						state = t("Healthy")
					}
					p.printf("<li><code>%s</code> (%s): %s</li>\n",
						templ.EscapeString(name), templ.EscapeString(m.Type), state)
				}
				p.printf("</ul>\n")
			}
		}

		p.printf("<h2>%s</h2>\n", t("Partitions"))
		if len(data.Partitions) == 0 {
			p.printf("<p>%s</p>\n", t("NoPartitions"))
		} else {
			p.printf("<ul>\n")
			for _, part := range data.Partitions {
				p.printf("<li><code>%s</code>, %s, <a href=\"%s\">%s</a></li>\n",
					templ.EscapeString(string(part.Mode)),
					templ.EscapeString(appI18n.Tp(ctx, "Evaluations", part.Evaluations)),
					templ.EscapeString(part.ExportURL),
					t("Export"))
			}
			p.printf("</ul>\n")
		}
		p.printf("</body></html>\n")
		return p.err
	})
}

// printer keeps the first write error.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}
