package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"shaneshark.com/portfolio/internal/sse"
	"shaneshark.com/portfolio/internal/store"
)

var errEnough = errors.New("enough messages")

func (c *cli) hotCmd() *cobra.Command {
	hot := &cobra.Command{
		Use:   "hot",
		Short: "Inspect the hot recommendation channel",
	}

	var (
		server string
		count  int
		delay  time.Duration
	)
	watch := &cobra.Command{
		Use:   "watch",
		Short: "Stream hot recommendations and print each one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if server == "" {
				server = fmt.Sprintf("http://localhost:%d%s", c.cfg.Server.Port, c.cfg.Server.ContextPath)
			}
			client := &sse.Client{
				URL:            strings.TrimRight(server, "/") + "/qa/hot/sse",
				ReconnectDelay: delay,
			}

			out := cmd.OutOrStdout()
			seen := 0
			err := client.Stream(cmd.Context(), func(m sse.Message) error {
				if m.Err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "server error: %v\n", m.Err)
					return nil
				}
				var info store.QaInfo
				if err := json.Unmarshal(m.Data, &info); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "unreadable message %s: %v\n", m.ID, err)
					return nil
				}
				fmt.Fprintf(out, "[%s] %s (id %s, %d views)\n", info.Tag, info.Question, info.ID, info.ViewCount)

				seen++
				if count > 0 && seen >= count {
					return errEnough
				}
				return nil
			})
			if errors.Is(err, errEnough) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	watch.Flags().StringVar(&server, "server", "", "API base URL including the context path (default from config)")
	watch.Flags().IntVar(&count, "count", 0, "stop after this many recommendations (0 streams until interrupted)")
	watch.Flags().DurationVar(&delay, "reconnect", sse.DefaultReconnectDelay, "wait between reconnects")

	hot.AddCommand(watch)
	return hot
}
