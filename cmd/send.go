package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/groupmsg/internal/application/usecases"
	"github.com/example/groupmsg/internal/config"
	"github.com/example/groupmsg/internal/domain/delivery"
	"github.com/example/groupmsg/internal/ledger"
	"github.com/example/groupmsg/internal/report"
)

type sendFlags struct {
	dryRun      bool
	yes         bool
	html        bool
	metricsFile string
}

func (f *sendFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "render and report without contacting anyone")
	cmd.Flags().BoolVar(&f.html, "html", false, "also write an HTML copy of the run report")
	cmd.Flags().StringVar(&f.metricsFile, "metrics-file", "", "write Prometheus metrics for the run to this file")
}

// campaign wires a SendCampaign from configuration. The returned func
// releases the ledger.
func (f *sendFlags) campaign(ctx context.Context, cfg config.Config, logger *slog.Logger, rf regionFlags) (usecases.SendCampaign, func(), error) {
	var (
		l       delivery.Ledger
		release = func() {}
	)
	if f.dryRun {
		l = ledger.NewMemory()
	} else {
		var err error
		if l, release, err = openLedger(ctx, cfg, logger); err != nil {
			return usecases.SendCampaign{}, nil, err
		}
	}
	ch, err := newDriver(cfg, logger)
	if err != nil {
		release()
		return usecases.SendCampaign{}, nil, err
	}
	o, err := newOrchestrator(cfg, ch, l, f.dryRun, logger)
	if err != nil {
		release()
		return usecases.SendCampaign{}, nil, err
	}
	return usecases.SendCampaign{
		Extract:      newExtractor(cfg, logger, rf),
		Orchestrator: o,
		Report:       report.Options{Dir: cfg.ReportDir, HTML: f.html, MetricsFile: f.metricsFile},
		Logger:       logger,
	}, release, nil
}

func newSendCmd(g *globalFlags) *cobra.Command {
	var (
		src       sourceFlags
		tmpl      templateFlags
		flags     sendFlags
		noPreview bool
	)
	c := &cobra.Command{
		Use:   "send",
		Short: "Send a personalized message to every contact in a screenshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.load()
			if err != nil {
				return err
			}
			template, err := tmpl.load()
			if err != nil {
				return err
			}
			u, release, err := flags.campaign(cmd.Context(), cfg, logger, src.regionFlags)
			if err != nil {
				return err
			}
			defer release()

			out := cmd.OutOrStdout()
			if !noPreview || !flags.yes {
				u.Confirm = func(ex usecases.Extraction) (bool, error) {
					if !noPreview {
						p := usecases.PreviewMessages{Renderer: newRenderer(cfg), Limit: cfg.PreviewLimit}.Execute(template, ex.Contacts)
						printPreview(out, p)
					}
					if flags.yes || flags.dryRun {
						return true, nil
					}
					return confirm(cmd.InOrStdin(), out, fmt.Sprintf("\nSend to %d contacts?", len(ex.Contacts)))
				}
			}

			res, err := u.Execute(cmd.Context(), src.source(), template)
			printSummary(out, res)
			return err
		},
	}
	src.register(c)
	tmpl.register(c)
	flags.register(c)
	c.Flags().BoolVarP(&flags.yes, "yes", "y", false, "do not ask for confirmation")
	c.Flags().BoolVar(&noPreview, "no-preview", false, "skip the message preview")
	return c
}

func confirm(in io.Reader, out io.Writer, prompt string) (bool, error) {
	fmt.Fprintf(out, "%s [y/N] ", prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

func printSummary(out io.Writer, res usecases.CampaignResult) {
	rep := res.Report
	if rep.RunID == "" {
		return
	}
	label := "Run"
	if rep.DryRun {
		label = "Dry run"
	}
	fmt.Fprintf(out, "\n%s %s: %d sent, %d failed, %d skipped of %d contacts\n", label, rep.RunID, rep.Sent, rep.Failed, rep.Skipped, rep.Valid)
	if rep.Aborted {
		fmt.Fprintf(out, "Stopped early: %s\n", rep.AbortReason)
	}
	if res.Files.Markdown != "" {
		fmt.Fprintf(out, "Report: %s\n", res.Files.Markdown)
	}
}
