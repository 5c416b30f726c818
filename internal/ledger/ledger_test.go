package ledger

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/groupmsg/internal/domain/delivery"
)

func attempt(key string, outcome delivery.Outcome) delivery.Attempt {
	return delivery.Attempt{
		RunID:      "run-1",
		ContactKey: key,
		Name:       "Someone",
		AttemptNo:  1,
		Outcome:    outcome,
		Timestamp:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

// exercise runs the behavior every backend must share.
func exercise(t *testing.T, l delivery.Ledger) {
	t.Helper()
	ctx := context.Background()

	sent, err := l.HasSent(ctx, "+16502530000")
	require.NoError(t, err)
	assert.False(t, sent)

	failed := attempt("+16502530000", delivery.OutcomeChannelError)
	failed.Reason = delivery.ReasonRetriesExhausted
	require.NoError(t, l.Append(ctx, failed))
	sent, err = l.HasSent(ctx, "+16502530000")
	require.NoError(t, err)
	assert.False(t, sent, "a failure is not a send")

	require.NoError(t, l.Append(ctx, attempt("+16502530000", delivery.OutcomeSent)))
	require.NoError(t, l.Append(ctx, attempt("+442070313000", delivery.OutcomeSkippedDuplicate)))

	sent, err = l.HasSent(ctx, "+16502530000")
	require.NoError(t, err)
	assert.True(t, sent)
	sent, err = l.HasSent(ctx, "+442070313000")
	require.NoError(t, err)
	assert.False(t, sent)

	all, err := l.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, delivery.OutcomeChannelError, all[0].Outcome)
	assert.Equal(t, delivery.ReasonRetriesExhausted, all[0].Reason)
	assert.Equal(t, delivery.OutcomeSent, all[1].Outcome)

	one, err := l.List(ctx, "+442070313000")
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, delivery.OutcomeSkippedDuplicate, one[0].Outcome)
}

func TestMemory(t *testing.T) {
	exercise(t, NewMemory())
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	l, err := OpenFile(path, nil)
	require.NoError(t, err)
	exercise(t, l)
	require.NoError(t, l.Close())

	reopened, err := OpenFile(path, nil)
	require.NoError(t, err)
	defer reopened.Close()

	sent, err := reopened.HasSent(context.Background(), "+16502530000")
	require.NoError(t, err)
	assert.True(t, sent, "sends survive a restart")
	all, err := reopened.List(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestFile_TruncatedTailDropped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	l, err := OpenFile(path, nil)
	require.NoError(t, err)
	require.NoError(t, l.Append(context.Background(), attempt("+16502530000", delivery.OutcomeSent)))
	require.NoError(t, l.Close())

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"run_id":"run-2","contact_key":"+4420`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	l, err = OpenFile(path, nil)
	require.NoError(t, err)
	require.NoError(t, l.Append(context.Background(), attempt("+442070313000", delivery.OutcomeSent)))
	require.NoError(t, l.Close())

	l, err = OpenFile(path, nil)
	require.NoError(t, err)
	defer l.Close()
	all, err := l.List(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "+442070313000", all[1].ContactKey)
}

func TestFile_CorruptMiddleLineFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	content := "not json\n" + `{"run_id":"r","contact_key":"+16502530000","outcome":"SENT"}` + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := OpenFile(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
}

func TestFile_SecondWriterRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	l, err := OpenFile(path, nil)
	require.NoError(t, err)
	defer l.Close()

	_, err = OpenFile(path, nil)
	require.Error(t, err)
}

func TestPostgres(t *testing.T) {
	url := os.Getenv("LEDGER_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("LEDGER_TEST_DATABASE_URL not set")
	}
	exercisePostgres(t, url)
}
