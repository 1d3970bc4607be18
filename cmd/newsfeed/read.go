package main

import (
	"fmt"
	"io"

	"github.com/Sternrassler/newsfeed-client/pkg/article"
	"github.com/Sternrassler/newsfeed-client/pkg/pagination"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

func newReadCmd(a *app) *cobra.Command {
	var (
		pages      int
		retry      bool
		titleWidth int
	)

	cmd := &cobra.Command{
		Use:   "read",
		Short: "Load pages in order and print their articles",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if pages < 1 {
				return fmt.Errorf("--pages must be >= 1 (got %d)", pages)
			}

			d := pagination.NewDriver(a.client, pagination.DefaultDriverConfig())
			defer d.Dispose()

			var loadErr error
			for i := 0; i < pages; i++ {
				started, err := d.LoadNext(cmd.Context())
				if err != nil && retry {
					a.logger.Warn().Err(err).Msg("Page load failed, retrying once")
					started, err = d.Retry(cmd.Context())
				}
				if err != nil {
					loadErr = err
					break
				}
				if !started {
					break
				}
			}

			snap := d.Snapshot()
			renderArticles(cmd.OutOrStdout(), snap.Articles, titleWidth)
			fmt.Fprintf(cmd.OutOrStdout(), "pages loaded: %d of %d\n", snap.CurrentPage-1, snap.TotalPages)

			if loadErr != nil {
				return fmt.Errorf("page %d: %w", snap.CurrentPage, loadErr)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&pages, "pages", 1, "number of pages to load")
	cmd.Flags().BoolVar(&retry, "retry", false, "retry a failed page once before giving up")
	cmd.Flags().IntVar(&titleWidth, "title-width", 60, "truncate titles to this many characters")
	return cmd
}

func renderArticles(w io.Writer, articles []article.Article, titleWidth int) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Title"})
	for _, a := range articles {
		t.AppendRow(table.Row{a.ID, text.Trim(a.Title, titleWidth)})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d articles", len(articles))})
	t.Render()
}
