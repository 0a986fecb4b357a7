package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aludratest/aludra/internal/observability"
)

type hostReport struct {
	endpoint string
	session  string
	titles   []string
}

func newCheckCmd() *cobra.Command {
	var sessions int
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Opens a session on every configured endpoint and lists its windows",
		Long: `Check starts the configured driver on the endpoint pool, optionally behind
the authenticating proxy pool, and reports the windows every session sees.
It verifies the host setup before a test run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			logger := observability.ForComponent(observability.GetLogger(), "check")
			ctx := cmd.Context()

			rt, err := newStack(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := rt.shutdown(context.WithoutCancel(ctx)); err != nil {
					logger.Error("Shutdown failed.", zap.Error(err))
				}
			}()

			if sessions <= 0 {
				sessions = len(cfg.Driver().Endpoints)
			}

			reports := make([]hostReport, sessions)
			g, gctx := errgroup.WithContext(ctx)
			for i := range reports {
				g.Go(func() error {
					s, err := rt.manager.Open(gctx, nil)
					if err != nil {
						return err
					}
					defer s.Close(context.WithoutCancel(gctx))

					windows, err := s.Driver().Windows(gctx)
					if err != nil {
						return fmt.Errorf("session on %s cannot list windows: %w", s.Endpoint(), err)
					}
					r := hostReport{endpoint: s.Endpoint(), session: s.ID()}
					for _, w := range windows {
						r.titles = append(r.titles, w.Title)
					}
					reports[i] = r
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			sort.Slice(reports, func(a, b int) bool { return reports[a].endpoint < reports[b].endpoint })
			out := cmd.OutOrStdout()
			for _, r := range reports {
				fmt.Fprintf(out, "%s\t%s\t%d window(s)\t%s\n", r.endpoint, r.session, len(r.titles), strings.Join(r.titles, " | "))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&sessions, "sessions", "n", 0, "sessions to open concurrently (default one per endpoint)")
	return cmd
}
