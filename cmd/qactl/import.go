package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"shaneshark.com/portfolio/internal/app"
	"shaneshark.com/portfolio/internal/ingest"
	"shaneshark.com/portfolio/internal/qa"
)

func (c *cli) importCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "import <file|url>",
		Short: "Bulk-load QA entries from a JSON bundle",
		Long: `Bulk-load QA entries from a JSON bundle, either {"entries": [...]} or a bare
array of {"question", "answer", "tag", "isHot"} objects. Invalid entries are
reported and skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := app.OpenStore(cmd.Context(), c.cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			importer := ingest.NewImporter(qa.NewService(st, c.cfg.Hot.MaxItems), timeout)
			report, err := importer.Import(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, f := range report.Failures {
				fmt.Fprintf(out, "skipped #%d %q: %s\n", f.Index, f.Question, f.Reason)
			}
			fmt.Fprintf(out, "imported %d of %d entries\n", report.Stored, report.Total)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "timeout for fetching a remote bundle")
	return cmd
}
