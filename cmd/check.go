package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/groupmsg/internal/application/usecases"
)

func newCheckCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check that the messaging driver is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.load()
			if err != nil {
				return err
			}
			ch, err := newDriver(cfg, logger)
			if err != nil {
				return err
			}
			if err := (usecases.CheckChannel{Channel: ch}).Execute(cmd.Context()); err != nil {
				return fmt.Errorf("driver at %s: %w", cfg.DriverURL, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "driver at %s is ready\n", cfg.DriverURL)
			return nil
		},
	}
}
