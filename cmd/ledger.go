package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/groupmsg/internal/db"
	"github.com/example/groupmsg/internal/migrate"
	"github.com/example/groupmsg/internal/phone"
)

func newLedgerCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the delivery ledger",
	}
	cmd.AddCommand(newLedgerListCmd(g))
	cmd.AddCommand(newLedgerMigrateCmd(g))
	return cmd
}

func newLedgerListCmd(g *globalFlags) *cobra.Command {
	var number string
	c := &cobra.Command{
		Use:   "list",
		Short: "List recorded delivery outcomes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.load()
			if err != nil {
				return err
			}
			key := ""
			if number != "" {
				canon, err := phone.Normalize(number, cfg.DefaultRegion)
				if err != nil {
					return err
				}
				key = canon.E164
			}

			l, release, err := openLedger(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer release()
			entries, err := l.List(cmd.Context(), key)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tRUN\tPHONE\tNAME\tOUTCOME\tREASON\tATTEMPTS")
			for _, a := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
					a.Timestamp.Local().Format(time.DateTime), shortID(a.RunID), a.ContactKey, a.Name, a.Outcome, a.Reason, a.AttemptNo)
			}
			return tw.Flush()
		},
	}
	c.Flags().StringVar(&number, "phone", "", "only entries for this number")
	return c
}

func newLedgerMigrateCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the Postgres ledger schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := g.load()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is not set")
			}
			d, err := db.Open(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer d.Close()
			applied, err := migrate.Up(cmd.Context(), d)
			if err != nil {
				return err
			}
			for _, v := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", v)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ledger schema is up to date")
			return nil
		},
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
