package delivery

import "context"

// Session is an opaque handle issued by a Channel. Only the channel that
// produced it interprets State.
type Session struct {
	ID    string
	State []byte
}

type TargetKind string

const (
	TargetPhone TargetKind = "phone"
	TargetName  TargetKind = "name"
)

// Target identifies the recipient for LocateAndSend.
type Target struct {
	Kind  TargetKind
	Value string
}

type SendStatus int

const (
	StatusOK SendStatus = iota
	StatusNotFound
	StatusTransient
)

func (s SendStatus) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNotFound:
		return "not_found"
	case StatusTransient:
		return "transient_error"
	default:
		return "unknown"
	}
}

type SendResult struct {
	Status SendStatus
	Detail string
}

// Channel is the capability surface of the external messaging automation.
// A non-nil error from LocateAndSend is an unclassified failure.
type Channel interface {
	Name() string
	OpenSession(ctx context.Context) (Session, error)
	LocateAndSend(ctx context.Context, s Session, target Target, body string) (SendResult, error)
	CloseSession(ctx context.Context, s Session) error
}

// Ledger is the append-only record of terminal outcomes and the source of
// truth for duplicate suppression.
type Ledger interface {
	Append(ctx context.Context, a Attempt) error
	HasSent(ctx context.Context, phoneE164 string) (bool, error)
	// List returns entries in append order; an empty key returns every entry.
	List(ctx context.Context, phoneE164 string) ([]Attempt, error)
}
