package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/example/groupmsg/internal/phone"
	"github.com/example/groupmsg/internal/report"
)

func newExtractCmd(g *globalFlags) *cobra.Command {
	var (
		src    sourceFlags
		asJSON bool
	)
	c := &cobra.Command{
		Use:   "extract",
		Short: "Extract and validate contacts from a screenshot or text file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.load()
			if err != nil {
				return err
			}
			ex, err := newExtractor(cfg, logger, src.regionFlags).Execute(cmd.Context(), src.source())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return report.WriteJSON(out, ex)
			}

			fmt.Fprintf(out, "Found %d candidates, %d valid contacts\n\n", ex.Found, len(ex.Contacts))
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tNAME\tPHONE\tREGION\tTYPE\tLINE")
			for i, c := range ex.Contacts {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d\n", i+1, c.Name, phone.FormatInternational(c.PhoneE164), c.CountryCode, phone.NumberType(c.PhoneE164), c.SourceLine)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if len(ex.Rejected) > 0 {
				fmt.Fprintf(out, "\nRejected:\n")
				for _, r := range ex.Rejected {
					fmt.Fprintf(out, "  %s %q %q: %s %s\n", r.Raw.Span, r.Raw.Name, r.Raw.PhoneRaw, r.Reason, r.Detail)
				}
			}
			if len(ex.Orphans) > 0 {
				fmt.Fprintf(out, "\nPhone lines without a name:\n")
				for _, o := range ex.Orphans {
					fmt.Fprintf(out, "  line %d: %s\n", o.Line, o.Text)
				}
			}
			return nil
		},
	}
	src.register(c)
	c.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return c
}
