package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/aludratest/aludra/internal/locator"
	"github.com/aludratest/aludra/internal/uimap"
)

func newResolveCmd() *cobra.Command {
	var mapFile string
	cmd := &cobra.Command{
		Use:   "resolve [names...]",
		Short: "Prints the native queries a UI map's locators resolve to",
		Long: `Resolve maps every named locator of a UI map to the native driver queries
it would be looked up with, using the configured id prefix and suffix.
Alternatives print one line per option. Without names every element is printed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			m, err := uimap.LoadFile(mapFile)
			if err != nil {
				return err
			}
			names := args
			if len(names) == 0 {
				names = m.Names()
			}

			resolver := locator.NewResolver(cfg.Locator(), locator.NewCache())
			out := cmd.OutOrStdout()
			for _, name := range names {
				loc, err := m.Get(name)
				if err != nil {
					return err
				}
				candidates, err := resolver.Candidates(loc)
				if err != nil {
					return err
				}
				for _, c := range candidates {
					option := "-"
					if c.Option >= 0 {
						option = strconv.Itoa(c.Option)
					}
					fmt.Fprintf(out, "%s\t%s\t%s\n", name, option, c.Query)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&mapFile, "uimap", "m", "", "UI map XML file")
	_ = cmd.MarkFlagRequired("uimap")
	return cmd
}
