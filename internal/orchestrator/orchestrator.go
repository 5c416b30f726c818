// Package orchestrator drives a delivery run: duplicate check, pacing,
// retries and the ledger write for every contact, one at a time.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/groupmsg/internal/domain/contact"
	"github.com/example/groupmsg/internal/domain/delivery"
	"github.com/example/groupmsg/internal/internaltypes"
	"github.com/example/groupmsg/internal/render"
)

type Config struct {
	MinDelay   time.Duration
	MaxDelay   time.Duration
	MaxRetries int
	Backoff    Backoff
	DryRun     bool

	Target           delivery.TargetKind
	NotFoundFallback bool
}

// Input is everything a run needs besides its collaborators. The extraction
// fields only flow into the report.
type Input struct {
	Template string
	Contacts []contact.Contact

	Found    int
	Rejected []contact.RejectedCandidate
	Orphans  []contact.OrphanLine
}

type Orchestrator struct {
	Channel  delivery.Channel
	Ledger   delivery.Ledger
	Renderer render.Renderer
	Config   Config

	Sleep    func(ctx context.Context, d time.Duration) error
	Rand     *rand.Rand
	Now      func() time.Time
	NewRunID func() string
	Logger   *slog.Logger
}

// run holds per-run state.
type run struct {
	*Orchestrator
	id      string
	session *delivery.Session
	calls   int
	log     *slog.Logger
}

// Run processes in.Contacts in order. It returns a report even when it
// fails; the error wraps internaltypes.ErrAborted or ErrLedger and the report
// is marked Aborted.
func (o *Orchestrator) Run(ctx context.Context, in Input) (delivery.RunReport, error) {
	o.defaults()
	r := &run{Orchestrator: o, id: o.NewRunID()}
	r.log = o.Logger.With("run_id", r.id)

	rep := delivery.RunReport{
		RunID:              r.id,
		DryRun:             o.Config.DryRun,
		StartedAt:          o.Now(),
		Found:              in.Found,
		Valid:              len(in.Contacts),
		Rejected:           len(in.Rejected),
		RejectedCandidates: in.Rejected,
		Orphans:            in.Orphans,
		Template:           in.Template,
	}
	if rep.Found < rep.Valid+rep.Rejected {
		rep.Found = rep.Valid + rep.Rejected
	}
	if strings.TrimSpace(in.Template) == "" {
		return r.abort(rep, internaltypes.ErrNoTemplate)
	}

	defer r.closeSession(ctx)

	r.log.Info("run started", "contacts", len(in.Contacts), "dry_run", o.Config.DryRun, "channel", o.Channel.Name())
	for _, c := range in.Contacts {
		if err := ctx.Err(); err != nil {
			return r.abort(rep, err)
		}

		msg := o.Renderer.Render(in.Template, c)
		rep.Messages = append(rep.Messages, msg)
		if !msg.Complete() {
			r.log.Warn("unresolved placeholders", "phone", c.PhoneE164, "missing", msg.Missing)
		}

		if o.Config.DryRun {
			rep.Attempts = append(rep.Attempts, r.attempt(c, 0, delivery.OutcomeWouldSend, ""))
			continue
		}

		sent, err := o.Ledger.HasSent(ctx, c.PhoneE164)
		if err != nil {
			return r.abort(rep, fmt.Errorf("%w: %w", internaltypes.ErrLedger, err))
		}

		var a delivery.Attempt
		if sent {
			a = r.attempt(c, 0, delivery.OutcomeSkippedDuplicate, "")
		} else {
			a, err = r.deliver(ctx, c, msg.Body)
			if err != nil {
				return r.abort(rep, err)
			}
		}

		// the report counts what happened on the channel even if the ledger
		// write below fails
		rep.Attempts = append(rep.Attempts, a)
		tally(&rep, a.Outcome)
		r.log.Info("contact done", "phone", c.PhoneE164, "name", c.Name, "outcome", a.Outcome, "reason", a.Reason, "attempts", a.AttemptNo)
		if err := o.Ledger.Append(ctx, a); err != nil {
			r.log.Error("attempt not recorded", "phone", c.PhoneE164, "outcome", a.Outcome, "error", err)
			return r.abort(rep, fmt.Errorf("%w: %w", internaltypes.ErrLedger, err))
		}
	}

	rep.FinishedAt = o.Now()
	r.log.Info("run finished", "sent", rep.Sent, "failed", rep.Failed, "skipped", rep.Skipped, "duration", rep.Duration())
	return rep, nil
}

func tally(rep *delivery.RunReport, o delivery.Outcome) {
	switch o {
	case delivery.OutcomeSent:
		rep.Sent++
	case delivery.OutcomeSkippedDuplicate:
		rep.Skipped++
	default:
		rep.Failed++
	}
}

// deliver makes up to MaxRetries channel calls for c. An error means the
// contact has no terminal outcome and the run must stop.
func (r *run) deliver(ctx context.Context, c contact.Contact, body string) (delivery.Attempt, error) {
	cfg := r.Config
	target := delivery.Target{Kind: cfg.Target, Value: c.PhoneE164}
	if cfg.Target == delivery.TargetName {
		target.Value = c.Name
	}

	var last delivery.SendResult
	retryTransient := 0
	for n := 1; n <= cfg.MaxRetries; n++ {
		if r.calls > 0 {
			d := r.pace()
			r.log.Info("pacing", "delay", d)
			if err := r.Sleep(ctx, d); err != nil {
				return delivery.Attempt{}, fmt.Errorf("%w: %w", internaltypes.ErrAborted, err)
			}
		}
		if last.Status == delivery.StatusTransient && n > 1 {
			retryTransient++
			if err := r.Sleep(ctx, cfg.Backoff.Delay(retryTransient)); err != nil {
				return delivery.Attempt{}, fmt.Errorf("%w: %w", internaltypes.ErrAborted, err)
			}
		}
		if err := r.openSession(ctx); err != nil {
			return delivery.Attempt{}, err
		}

		res, err := r.Channel.LocateAndSend(ctx, *r.session, target, body)
		r.calls++
		if err != nil {
			if ctx.Err() != nil {
				return delivery.Attempt{}, fmt.Errorf("%w: %w", internaltypes.ErrAborted, ctx.Err())
			}
			res = delivery.SendResult{Status: delivery.StatusTransient, Detail: err.Error()}
		}
		last = res

		switch res.Status {
		case delivery.StatusOK:
			return r.attempt(c, n, delivery.OutcomeSent, ""), nil
		case delivery.StatusNotFound:
			if target.Kind == delivery.TargetName && cfg.NotFoundFallback {
				r.log.Info("not found by name, retrying by phone", "phone", c.PhoneE164)
				target = delivery.Target{Kind: delivery.TargetPhone, Value: c.PhoneE164}
				continue
			}
			r.log.Warn("recipient not found", "phone", c.PhoneE164, "target", target.Kind)
			a := r.attempt(c, n, delivery.OutcomeChannelError, delivery.ReasonNotFound)
			a.ErrorDetail = res.Detail
			return a, nil
		default:
			r.log.Warn("transient channel error", "phone", c.PhoneE164, "attempt", n, "max_attempts", cfg.MaxRetries, "detail", res.Detail)
		}
	}

	reason := delivery.ReasonRetriesExhausted
	if last.Status == delivery.StatusNotFound {
		reason = delivery.ReasonNotFound
	}
	a := r.attempt(c, cfg.MaxRetries, delivery.OutcomeChannelError, reason)
	a.ErrorDetail = last.Detail
	return a, nil
}

func (r *run) attempt(c contact.Contact, n int, outcome delivery.Outcome, reason delivery.FailureReason) delivery.Attempt {
	return delivery.Attempt{
		RunID:      r.id,
		ContactKey: c.PhoneE164,
		Name:       c.Name,
		AttemptNo:  n,
		Outcome:    outcome,
		Reason:     reason,
		Timestamp:  r.Now().UTC(),
	}
}

func (r *run) pace() time.Duration {
	lo, hi := r.Config.MinDelay, r.Config.MaxDelay
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(r.Rand.Int64N(int64(hi-lo)+1))
}

func (r *run) openSession(ctx context.Context) error {
	if r.session != nil {
		return nil
	}
	s, err := r.Channel.OpenSession(ctx)
	if err != nil {
		return fmt.Errorf("%w: open %s session: %w", internaltypes.ErrAborted, r.Channel.Name(), err)
	}
	r.session = &s
	return nil
}

func (r *run) closeSession(ctx context.Context) {
	if r.session == nil {
		return
	}
	if err := r.Channel.CloseSession(context.WithoutCancel(ctx), *r.session); err != nil {
		r.log.Warn("close session failed", "error", err)
	}
	r.session = nil
}

func (r *run) abort(rep delivery.RunReport, err error) (delivery.RunReport, error) {
	if !errors.Is(err, internaltypes.ErrAborted) && !errors.Is(err, internaltypes.ErrLedger) {
		err = fmt.Errorf("%w: %w", internaltypes.ErrAborted, err)
	}
	rep.Aborted = true
	rep.AbortReason = err.Error()
	rep.FinishedAt = r.Now()
	r.log.Error("run aborted", "error", err, "sent", rep.Sent, "failed", rep.Failed, "skipped", rep.Skipped)
	return rep, err
}

func (o *Orchestrator) defaults() {
	if o.Sleep == nil {
		o.Sleep = SleepContext
	}
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15))
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewRunID == nil {
		o.NewRunID = uuid.NewString
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Config.MaxRetries < 1 {
		o.Config.MaxRetries = 1
	}
	if o.Config.Target == "" {
		o.Config.Target = delivery.TargetPhone
	}
}
