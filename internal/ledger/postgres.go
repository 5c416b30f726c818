package ledger

import (
	"context"
	"time"

	"github.com/example/groupmsg/internal/db"
	"github.com/example/groupmsg/internal/domain/delivery"
)

// Postgres records attempts in the delivery_attempts table created by
// the migrate package.
type Postgres struct{ db *db.DB }

func NewPostgres(d *db.DB) *Postgres { return &Postgres{db: d} }

func (p *Postgres) Append(ctx context.Context, a delivery.Attempt) error {
	ts := a.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	err := p.db.Exec(ctx, `
INSERT INTO delivery_attempts(run_id, phone_e164, name, attempt_no, outcome, reason, error_detail, attempted_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		a.RunID, a.ContactKey, a.Name, a.AttemptNo, string(a.Outcome), string(a.Reason), a.ErrorDetail, ts)
	return db.WrapNotFound(err)
}

func (p *Postgres) HasSent(ctx context.Context, phoneE164 string) (bool, error) {
	return db.Exists(ctx, p.db,
		`SELECT EXISTS(SELECT 1 FROM delivery_attempts WHERE phone_e164=$1 AND outcome='SENT')`, phoneE164)
}

func (p *Postgres) List(ctx context.Context, phoneE164 string) ([]delivery.Attempt, error) {
	rows, err := p.db.Query(ctx, `
SELECT run_id, phone_e164, name, attempt_no, outcome, reason, error_detail, attempted_at
FROM delivery_attempts
WHERE $1 = '' OR phone_e164 = $1
ORDER BY id ASC`, phoneE164)
	if err != nil {
		return nil, db.WrapNotFound(err)
	}
	return db.Collect(rows, scanAttempt)
}

func scanAttempt(row db.Row) (delivery.Attempt, error) {
	var a delivery.Attempt
	var outcome, reason string
	if err := row.Scan(&a.RunID, &a.ContactKey, &a.Name, &a.AttemptNo, &outcome, &reason, &a.ErrorDetail, &a.Timestamp); err != nil {
		return a, err
	}
	a.Outcome = delivery.Outcome(outcome)
	a.Reason = delivery.FailureReason(reason)
	return a, nil
}
