package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aludratest/aludra/internal/driver/htmldom"
	"github.com/aludratest/aludra/internal/element"
	"github.com/aludratest/aludra/internal/fault"
	"github.com/aludratest/aludra/internal/locator"
	"github.com/aludratest/aludra/internal/observability"
	"github.com/aludratest/aludra/internal/uimap"
	"github.com/aludratest/aludra/internal/wait"
)

type probeCheck struct {
	name string
	run  func(e *wait.Engine, ctx context.Context, req wait.Request) error
}

var probeChecks = []probeCheck{
	{"present", func(e *wait.Engine, ctx context.Context, req wait.Request) error {
		_, err := e.Present(ctx, req)
		return err
	}},
	{"visible", (*wait.Engine).Visible},
	{"enabled", (*wait.Engine).Enabled},
	{"foreground", (*wait.Engine).InForeground},
}

func newProbeCmd() *cobra.Command {
	var (
		mapFile string
		page    string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "probe [names...]",
		Short: "Runs the element waits of a UI map against a static HTML page",
		Long: `Probe loads an HTML page into the in-memory driver and runs the present,
visible, enabled and foreground waits for each named UI map element. Useful to
check a UI map against a saved page before a test run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			logger := observability.GetLogger()

			m, err := uimap.LoadFile(mapFile)
			if err != nil {
				return err
			}
			names := args
			if len(names) == 0 {
				names = m.Names()
			}

			drv := htmldom.New(logger)
			defer drv.Close(context.Background())
			if err := drv.LoadFile(page); err != nil {
				return fault.NewTechnical(err, "Cannot load page %s", page)
			}

			resolver := locator.NewResolver(cfg.Locator(), locator.NewCache())
			finder := element.NewFinder(drv, resolver, cfg.Wait(), logger)
			engine := wait.New(finder, logger)

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			failed, total := 0, 0
			for _, name := range names {
				loc, err := m.Get(name)
				if err != nil {
					return err
				}
				req := wait.Request{Locator: loc, Timeout: timeout}
				for _, check := range probeChecks {
					total++
					err := check.run(engine, ctx, req)
					switch {
					case err == nil:
						fmt.Fprintf(out, "%s\t%s\tok\n", name, check.name)
					case fault.IsAutomation(err):
						failed++
						fmt.Fprintf(out, "%s\t%s\tfailed: %v\n", name, check.name, err)
					default:
						return err
					}
				}
			}

			logger.Info("Probe finished.", zap.String("page", page), zap.Int("checks", total), zap.Int("failed", failed))
			if failed > 0 {
				return fmt.Errorf("%d of %d checks failed", failed, total)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&mapFile, "uimap", "m", "", "UI map XML file")
	cmd.Flags().StringVarP(&page, "page", "p", "", "HTML page to probe")
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", time.Second, "timeout per wait")
	_ = cmd.MarkFlagRequired("uimap")
	_ = cmd.MarkFlagRequired("page")
	return cmd
}
