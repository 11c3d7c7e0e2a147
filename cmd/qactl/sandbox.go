package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"shaneshark.com/portfolio/internal/sandbox"
)

func (c *cli) sandboxCmd() *cobra.Command {
	sb := &cobra.Command{
		Use:   "sandbox",
		Short: "Run code on the remote runner and browse the local history",
	}
	sb.AddCommand(c.sandboxRunCmd(), c.sandboxHistoryCmd(), sandboxLanguagesCmd())
	return sb
}

func (c *cli) sandboxRunCmd() *cobra.Command {
	var (
		lang    string
		stdin   string
		version string
	)
	cmd := &cobra.Command{
		Use:   "run <file|->",
		Short: "Run a source file, '-' reads the code from stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := readSource(cmd, args[0])
			if err != nil {
				return err
			}

			req := sandbox.ExecutionRequest{Code: code, Type: lang, Stdin: stdin, Version: version}
			if err := sandbox.Validate(&req); err != nil {
				return err
			}
			language, _ := sandbox.LookupLanguage(req.Type)

			runner := sandbox.NewRunner(c.cfg.Sandbox.Endpoint, c.cfg.Sandbox.Timeout)
			resp := runner.Run(cmd.Context(), req)

			historyPath := c.cfg.Sandbox.HistoryFile
			item := sandbox.NewHistoryItem(language, code, resp, time.Now())
			if err := sandbox.LoadHistory(historyPath).Add(item); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: history not saved: %v\n", err)
			}
			state := sandbox.PersistedState{LangID: req.Type, Code: code, Stdin: stdin, EditorTheme: sandbox.ThemeLight}
			if prev, ok := sandbox.LoadState(sandbox.StatePath(historyPath)); ok {
				state.EditorTheme = prev.EditorTheme
			}
			if err := sandbox.SaveState(sandbox.StatePath(historyPath), state); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: state not saved: %v\n", err)
			}

			fmt.Fprint(cmd.OutOrStdout(), item.Output)
			if !strings.HasSuffix(item.Output, "\n") {
				fmt.Fprintln(cmd.OutOrStdout())
			}
			if !resp.Succeeded() {
				return fmt.Errorf("run failed (runner code %d, exit code %d)", resp.Code, resp.Data.Code)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%s %s finished in %vms\n", language.Name, req.Version, resp.Data.Time)
			return nil
		},
	}
	cmd.Flags().StringVarP(&lang, "lang", "l", "", "language id (java, python, cpp, c, go, nodejs)")
	cmd.Flags().StringVar(&stdin, "stdin", "", "text passed to the program's standard input")
	cmd.Flags().StringVar(&version, "version", "", "runtime version (default from the catalogue)")
	_ = cmd.MarkFlagRequired("lang")
	return cmd
}

func readSource(cmd *cobra.Command, path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), sandbox.MaxCodeBytes+1))
		return string(data), err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (c *cli) sandboxHistoryCmd() *cobra.Command {
	var clear bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the local run history, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h := sandbox.LoadHistory(c.cfg.Sandbox.HistoryFile)
			if clear {
				return h.Clear()
			}

			items := h.Items()
			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no runs yet")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "WHEN\tLANGUAGE\tSTATUS\tOUTPUT")
			for _, it := range items {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
					humanize.Time(time.UnixMilli(it.Timestamp)), it.Language, it.Status, firstLine(it.Output))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&clear, "clear", false, "delete the history")
	return cmd
}

func sandboxLanguagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "languages",
		Short: "List the runtimes the runner offers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tVERSION")
			for _, l := range sandbox.Languages() {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", l.ID, l.Name, l.Version)
			}
			return tw.Flush()
		},
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	if len(line) > 60 {
		line = line[:57] + "..."
	}
	return line
}
