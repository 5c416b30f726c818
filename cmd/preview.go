package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/example/groupmsg/internal/application/usecases"
)

func newPreviewCmd(g *globalFlags) *cobra.Command {
	var (
		src   sourceFlags
		tmpl  templateFlags
		limit int
	)
	c := &cobra.Command{
		Use:   "preview",
		Short: "Check a template and show the first rendered messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.load()
			if err != nil {
				return err
			}
			template, err := tmpl.load()
			if err != nil {
				return err
			}
			ex, err := newExtractor(cfg, logger, src.regionFlags).Execute(cmd.Context(), src.source())
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("limit") {
				limit = cfg.PreviewLimit
			}
			p := usecases.PreviewMessages{Renderer: newRenderer(cfg), Limit: limit}.Execute(template, ex.Contacts)
			printPreview(cmd.OutOrStdout(), p)
			return nil
		},
	}
	src.register(c)
	tmpl.register(c)
	c.Flags().IntVar(&limit, "limit", 3, "number of messages to show")
	return c
}

func printPreview(out io.Writer, p usecases.Preview) {
	fmt.Fprintf(out, "Template: %d characters, %d words, %d lines, placeholders %v\n",
		p.Stats.Characters, p.Stats.Words, p.Stats.Lines, p.Stats.Placeholders)
	for _, i := range p.Issues {
		fmt.Fprintf(out, "  %s: %s\n", i.Severity, i.Message)
	}
	fmt.Fprintf(out, "\nShowing %d of %d messages:\n", len(p.Messages), p.Total)
	for i, m := range p.Messages {
		fmt.Fprintf(out, "\n--- %d. %s (%s)\n%s\n", i+1, m.Contact.Name, m.Contact.PhoneE164, m.Body)
		if !m.Complete() {
			fmt.Fprintf(out, "    unresolved: %v\n", m.Missing)
		}
	}
}
