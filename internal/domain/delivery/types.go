package delivery

import (
	"time"

	"github.com/example/groupmsg/internal/domain/contact"
)

type Outcome string

const (
	OutcomeSent             Outcome = "SENT"
	OutcomeChannelError     Outcome = "CHANNEL_ERROR"
	OutcomeSkippedDuplicate Outcome = "SKIPPED_DUPLICATE"
	// OutcomeWouldSend only appears in dry-run reports and is never written to a ledger.
	OutcomeWouldSend Outcome = "WOULD_SEND"
)

type FailureReason string

const (
	ReasonNotFound         FailureReason = "NOT_FOUND"
	ReasonRetriesExhausted FailureReason = "RETRIES_EXHAUSTED"
)

// Attempt is one terminal delivery record. Ledgers only ever append them.
type Attempt struct {
	RunID       string        `json:"run_id"`
	ContactKey  string        `json:"contact_key"`
	Name        string        `json:"name"`
	AttemptNo   int           `json:"attempt_no"`
	Outcome     Outcome       `json:"outcome"`
	Reason      FailureReason `json:"reason,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
	ErrorDetail string        `json:"error_detail,omitempty"`
}

// RenderedMessage is a template filled for one contact. Missing lists the
// placeholders left literal in Body.
type RenderedMessage struct {
	Contact contact.Contact `json:"contact"`
	Body    string          `json:"body"`
	Missing []string        `json:"missing_placeholders,omitempty"`
}

func (m RenderedMessage) Complete() bool { return len(m.Missing) == 0 }

// RunReport summarizes one run. It is assembled once by the orchestrator.
type RunReport struct {
	RunID      string
	DryRun     bool
	StartedAt  time.Time
	FinishedAt time.Time

	Found    int
	Valid    int
	Rejected int
	Sent     int
	Failed   int
	Skipped  int

	Attempts           []Attempt
	Messages           []RenderedMessage
	RejectedCandidates []contact.RejectedCandidate
	Orphans            []contact.OrphanLine
	Template           string

	// Aborted is set when the run stopped before every contact reached a terminal state.
	Aborted     bool
	AbortReason string
}

// Pending lists the contacts that have no attempt in the report.
func (r RunReport) Pending(contacts []contact.Contact) []contact.Contact {
	done := make(map[string]bool, len(r.Attempts))
	for _, a := range r.Attempts {
		done[a.ContactKey] = true
	}
	var out []contact.Contact
	for _, c := range contacts {
		if !done[c.PhoneE164] {
			out = append(out, c)
		}
	}
	return out
}

// Duration is the wall time of the run.
func (r RunReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
