package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/groupmsg/internal/application/usecases"
	"github.com/example/groupmsg/internal/config"
	"github.com/example/groupmsg/internal/db"
	"github.com/example/groupmsg/internal/domain/delivery"
	"github.com/example/groupmsg/internal/driver"
	"github.com/example/groupmsg/internal/ledger"
	"github.com/example/groupmsg/internal/migrate"
	"github.com/example/groupmsg/internal/ocr/tesseract"
	"github.com/example/groupmsg/internal/orchestrator"
	"github.com/example/groupmsg/internal/phone"
	"github.com/example/groupmsg/internal/render"
	"github.com/example/groupmsg/internal/session"
	"github.com/example/groupmsg/internal/validator"
)

// regionFlags holds the default region for numbers written without a
// country code and an optional region allow-list.
type regionFlags struct {
	region string
	only   []string
}

func (r *regionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&r.region, "region", "", "default region for numbers without a country code (overrides DEFAULT_REGION)")
	cmd.Flags().StringSliceVar(&r.only, "only-region", nil, "reject contacts outside these region codes (e.g. US,GB)")
}

func (r regionFlags) apply(cfg config.Config) config.Config {
	if r.region != "" {
		cfg.DefaultRegion = strings.ToUpper(strings.TrimSpace(r.region))
	}
	return cfg
}

// sourceFlags selects where contact text is read from.
type sourceFlags struct {
	image string
	text  string
	regionFlags
}

func (s *sourceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&s.image, "image", "", "screenshot to OCR (.png .jpg .jpeg .tiff .bmp)")
	cmd.Flags().StringVar(&s.text, "text", "", "text file with already-extracted chat text")
	cmd.MarkFlagsMutuallyExclusive("image", "text")
	cmd.MarkFlagsOneRequired("image", "text")
	s.regionFlags.register(cmd)
}

func (s *sourceFlags) source() usecases.Source {
	return usecases.Source{ImagePath: s.image, TextPath: s.text}
}

// templateFlags reads the message template from a file or the command line.
type templateFlags struct {
	file    string
	message string
}

func (t *templateFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&t.file, "template", "", "message template file")
	cmd.Flags().StringVar(&t.message, "message", "", "message template text")
	cmd.MarkFlagsMutuallyExclusive("template", "message")
	cmd.MarkFlagsOneRequired("template", "message")
}

func (t *templateFlags) load() (string, error) {
	if t.message != "" {
		return t.message, nil
	}
	b, err := os.ReadFile(t.file)
	if err != nil {
		return "", fmt.Errorf("read template: %w", err)
	}
	return strings.TrimRight(string(b), "\n"), nil
}

func newExtractor(cfg config.Config, logger *slog.Logger, rf regionFlags) usecases.ExtractContacts {
	v := validator.New(rf.apply(cfg).DefaultRegion)
	v.Regions = upper(rf.only)
	v.Logger = logger
	return usecases.ExtractContacts{
		OCR:       tesseract.New(tesseract.ParseLanguages(cfg.OCRLanguages), cfg.OCRPSM),
		Validator: v,
		Logger:    logger,
	}
}

func newRenderer(cfg config.Config) render.Renderer {
	return render.Renderer{Lookup: phone.NumberingPlanLookup{Language: cfg.MetadataLanguage}}
}

func newDriver(cfg config.Config, logger *slog.Logger) (*driver.Client, error) {
	opts := []driver.Option{driver.WithLogger(logger)}
	hashKey, blockKey, err := cfg.SessionKeys()
	if err != nil {
		logger.Warn("session persistence disabled", "reason", err)
	} else {
		opts = append(opts, driver.WithSessionStore(session.NewStore(cfg.SessionFile, hashKey, blockKey, logger)))
	}
	return driver.New(cfg.DriverURL, cfg.DriverTimeout(), opts...)
}

// openLedger returns the Postgres ledger when DATABASE_URL is set and the
// JSONL file ledger otherwise. The returned func releases it.
func openLedger(ctx context.Context, cfg config.Config, logger *slog.Logger) (delivery.Ledger, func(), error) {
	if cfg.DatabaseURL != "" {
		d, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open database: %w", err)
		}
		if _, err := migrate.Up(ctx, d); err != nil {
			d.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		return ledger.NewPostgres(d), d.Close, nil
	}
	l, err := ledger.OpenFile(cfg.LedgerPath, logger)
	if err != nil {
		return nil, nil, err
	}
	return l, func() {
		if err := l.Close(); err != nil {
			logger.Warn("close ledger", "error", err)
		}
	}, nil
}

func newOrchestrator(cfg config.Config, ch delivery.Channel, l delivery.Ledger, dryRun bool, logger *slog.Logger) (*orchestrator.Orchestrator, error) {
	kind, err := orchestrator.ParseBackoffKind(cfg.Backoff)
	if err != nil {
		return nil, err
	}
	return &orchestrator.Orchestrator{
		Channel:  ch,
		Ledger:   l,
		Renderer: newRenderer(cfg),
		Config: orchestrator.Config{
			MinDelay:         cfg.MinDelay(),
			MaxDelay:         cfg.MaxDelay(),
			MaxRetries:       cfg.MaxRetries,
			Backoff:          orchestrator.Backoff{Kind: kind, Base: cfg.BackoffBase(), Max: cfg.BackoffMax()},
			DryRun:           dryRun,
			Target:           delivery.TargetKind(cfg.SendTarget),
			NotFoundFallback: cfg.NotFoundFallback,
		},
		Logger: logger,
	}, nil
}

func upper(ss []string) []string {
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		out = append(out, strings.ToUpper(strings.TrimSpace(s)))
	}
	return out
}
