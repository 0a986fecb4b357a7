package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aludratest/aludra/internal/observability"
	"github.com/aludratest/aludra/internal/proxy"
)

func newProxyCmd() *cobra.Command {
	var size int
	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Runs the authenticating proxy pool until interrupted",
		Long: `Proxy starts the local passthrough proxies from the proxy configuration
section and prints their addresses, so browsers started outside this process
can use them. It stops on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			pc := cfg.Proxy()
			if size > 0 {
				pc.Size = size
			}
			if err := pc.Validate(); err != nil {
				return err
			}

			ctx := cmd.Context()
			p := proxy.New(pc, len(cfg.Driver().Endpoints), observability.GetLogger())
			if err := p.Start(ctx); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, addr := range p.Addrs() {
				fmt.Fprintln(out, addr)
			}

			<-ctx.Done()
			return p.Close(context.WithoutCancel(ctx))
		},
	}
	cmd.Flags().IntVarP(&size, "size", "n", 0, "number of proxies (overrides proxy.size)")
	return cmd
}
