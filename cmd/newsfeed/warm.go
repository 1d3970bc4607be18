package main

import (
	"fmt"
	"io"
	"time"

	"github.com/Sternrassler/newsfeed-client/pkg/pagination"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newWarmCmd(a *app) *cobra.Command {
	var from, to, concurrency int

	cmd := &cobra.Command{
		Use:   "warm",
		Short: "Prefetch a range of pages into the cache",
		Long:  "Prefetch pages --from..--to. With --to 0 the page count is taken from the first page.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			bcfg := a.cfg.Batch()
			if cmd.Flags().Changed("concurrency") {
				bcfg.MaxConcurrency = concurrency
			}
			bf := pagination.NewBatchFetcher(a.client, bcfg)

			var (
				report *pagination.WarmReport
				err    error
			)
			if to == 0 && from == 1 {
				report, err = bf.WarmAll(cmd.Context())
			} else {
				report, err = bf.Warm(cmd.Context(), from, to)
			}
			if report != nil {
				renderReport(cmd.OutOrStdout(), report)
			}
			if err != nil {
				return err
			}
			if len(report.Failed) > 0 {
				return fmt.Errorf("%d of %d pages failed", len(report.Failed), report.Fetched+report.Cached+len(report.Failed))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&from, "from", 1, "first page")
	cmd.Flags().IntVar(&to, "to", 0, "last page (0: all pages, requires --from 1)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "pages fetched in parallel")
	return cmd
}

func renderReport(w io.Writer, r *pagination.WarmReport) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Fetched", "Cached", "Failed", "Articles", "Duration"})
	t.AppendRow(table.Row{r.Fetched, r.Cached, len(r.Failed), r.Articles, r.Duration.Round(time.Millisecond)})
	t.Render()

	if len(r.Failed) == 0 {
		return
	}
	ft := table.NewWriter()
	ft.SetOutputMirror(w)
	ft.SetStyle(table.StyleLight)
	ft.AppendHeader(table.Row{"Page", "Error"})
	for _, f := range r.Failed {
		ft.AppendRow(table.Row{f.Page, f.Err.Error()})
	}
	ft.Render()
}
