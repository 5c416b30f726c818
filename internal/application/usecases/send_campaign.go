package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/example/groupmsg/internal/domain/delivery"
	"github.com/example/groupmsg/internal/internaltypes"
	"github.com/example/groupmsg/internal/orchestrator"
	"github.com/example/groupmsg/internal/render"
	"github.com/example/groupmsg/internal/report"
)

type SendCampaign struct {
	Extract      ExtractContacts
	Orchestrator *orchestrator.Orchestrator
	Report       report.Options
	// Confirm, when set, is asked before any message is sent. Returning
	// false ends the run without contacting anyone.
	Confirm func(Extraction) (bool, error)
	Logger  *slog.Logger
}

type CampaignResult struct {
	Extraction Extraction
	Report     delivery.RunReport
	Files      report.Files
}

// Execute extracts contacts from src and delivers template to them. The run
// report is written even when the run aborts.
func (u SendCampaign) Execute(ctx context.Context, src Source, template string) (CampaignResult, error) {
	if u.Orchestrator == nil {
		return CampaignResult{}, fmt.Errorf("orchestrator is nil")
	}
	if render.HasErrors(render.Lint(template)) {
		return CampaignResult{}, internaltypes.ErrNoTemplate
	}

	ex, err := u.Extract.Execute(ctx, src)
	if err != nil {
		return CampaignResult{}, fmt.Errorf("extract contacts: %w", err)
	}
	res := CampaignResult{Extraction: ex}
	if u.Confirm != nil {
		ok, err := u.Confirm(ex)
		if err != nil {
			return res, err
		}
		if !ok {
			return res, fmt.Errorf("%w: not confirmed", internaltypes.ErrAborted)
		}
	}

	rep, runErr := u.Orchestrator.Run(ctx, orchestrator.Input{
		Template: template,
		Contacts: ex.Contacts,
		Found:    ex.Found,
		Rejected: ex.Rejected,
		Orphans:  ex.Orphans,
	})
	res.Report = rep

	if u.Report.Dir != "" {
		files, err := report.Write(rep, u.Report)
		if err != nil {
			return res, errors.Join(runErr, err)
		}
		res.Files = files
		u.logger().Info("report written", "path", files.Markdown)
	}
	return res, runErr
}

func (u SendCampaign) logger() *slog.Logger {
	if u.Logger == nil {
		return slog.Default()
	}
	return u.Logger
}
