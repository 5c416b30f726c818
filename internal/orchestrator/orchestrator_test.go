package orchestrator

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/groupmsg/internal/domain/contact"
	"github.com/example/groupmsg/internal/domain/delivery"
	"github.com/example/groupmsg/internal/internaltypes"
	"github.com/example/groupmsg/internal/ledger"
)

type call struct {
	Target delivery.Target
	Body   string
}

type fakeChannel struct {
	results map[string][]delivery.SendResult // by target value, consumed in order
	calls   []call
	opened  int
	closed  int
	openErr error
}

func (f *fakeChannel) Name() string { return "fake" }

func (f *fakeChannel) OpenSession(context.Context) (delivery.Session, error) {
	if f.openErr != nil {
		return delivery.Session{}, f.openErr
	}
	f.opened++
	return delivery.Session{ID: "s1"}, nil
}

func (f *fakeChannel) LocateAndSend(_ context.Context, _ delivery.Session, t delivery.Target, body string) (delivery.SendResult, error) {
	f.calls = append(f.calls, call{t, body})
	rs := f.results[t.Value]
	if len(rs) == 0 {
		return delivery.SendResult{Status: delivery.StatusOK}, nil
	}
	r := rs[0]
	if len(rs) > 1 {
		f.results[t.Value] = rs[1:]
	}
	return r, nil
}

func (f *fakeChannel) CloseSession(context.Context, delivery.Session) error {
	f.closed++
	return nil
}

type sleeps struct{ d []time.Duration }

func (s *sleeps) sleep(_ context.Context, d time.Duration) error {
	s.d = append(s.d, d)
	return nil
}

type failingLedger struct {
	*ledger.Memory
	failAfter int
	appends   int
}

func (f *failingLedger) Append(ctx context.Context, a delivery.Attempt) error {
	if f.appends >= f.failAfter {
		return errors.New("disk full")
	}
	f.appends++
	return f.Memory.Append(ctx, a)
}

var (
	alice = contact.Contact{Name: "Alice Smith", PhoneE164: "+16502530000", CountryCode: "US"}
	bob   = contact.Contact{Name: "Bob Jones", PhoneE164: "+16502530001", CountryCode: "US"}
	carol = contact.Contact{Name: "Carol", PhoneE164: "+442070313000", CountryCode: "GB"}
)

func newTestOrchestrator(ch delivery.Channel, l delivery.Ledger, s *sleeps) *Orchestrator {
	return &Orchestrator{
		Channel: ch,
		Ledger:  l,
		Config: Config{
			MinDelay:   10 * time.Second,
			MaxDelay:   30 * time.Second,
			MaxRetries: 3,
			Backoff:    Backoff{Kind: BackoffExponential, Base: 5 * time.Second, Max: 60 * time.Second},
			Target:     delivery.TargetPhone,
		},
		Sleep:    s.sleep,
		Rand:     rand.New(rand.NewPCG(1, 2)),
		NewRunID: func() string { return "run-test" },
	}
}

func input(cs ...contact.Contact) Input {
	return Input{Template: "Hi {first_name}, see you soon!", Contacts: cs}
}

func TestRun_AllSent(t *testing.T) {
	ch := &fakeChannel{}
	s := &sleeps{}
	l := ledger.NewMemory()
	o := newTestOrchestrator(ch, l, s)

	rep, err := o.Run(context.Background(), input(alice, bob, carol))
	require.NoError(t, err)

	assert.Equal(t, 3, rep.Sent)
	assert.Equal(t, 0, rep.Failed)
	assert.False(t, rep.Aborted)
	require.Len(t, ch.calls, 3)
	assert.Equal(t, "Hi Alice, see you soon!", ch.calls[0].Body)
	assert.Equal(t, "+442070313000", ch.calls[2].Target.Value)
	assert.Equal(t, 1, ch.opened)
	assert.Equal(t, 1, ch.closed)

	require.Len(t, s.d, 2, "one pacing delay between consecutive sends")
	for _, d := range s.d {
		assert.GreaterOrEqual(t, d, 10*time.Second)
		assert.LessOrEqual(t, d, 30*time.Second)
	}

	entries, err := l.List(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for _, e := range entries {
		assert.Equal(t, delivery.OutcomeSent, e.Outcome)
		assert.Equal(t, "run-test", e.RunID)
		assert.Equal(t, 1, e.AttemptNo)
	}
}

func TestRun_SkipsAlreadySent(t *testing.T) {
	ch := &fakeChannel{}
	l := ledger.NewMemory()
	require.NoError(t, l.Append(context.Background(), delivery.Attempt{ContactKey: alice.PhoneE164, Outcome: delivery.OutcomeSent}))
	o := newTestOrchestrator(ch, l, &sleeps{})

	rep, err := o.Run(context.Background(), input(alice))
	require.NoError(t, err)
	assert.Empty(t, ch.calls)
	assert.Equal(t, 0, ch.opened, "no session for a run with nothing to send")
	assert.Equal(t, 1, rep.Skipped)
	require.Len(t, rep.Attempts, 1)
	assert.Equal(t, delivery.OutcomeSkippedDuplicate, rep.Attempts[0].Outcome)

	entries, _ := l.List(context.Background(), alice.PhoneE164)
	assert.Len(t, entries, 2)
}

func TestRun_SecondRunSendsNothing(t *testing.T) {
	l := ledger.NewMemory()
	_, err := newTestOrchestrator(&fakeChannel{}, l, &sleeps{}).Run(context.Background(), input(alice, bob))
	require.NoError(t, err)

	ch := &fakeChannel{}
	rep, err := newTestOrchestrator(ch, l, &sleeps{}).Run(context.Background(), input(alice, bob))
	require.NoError(t, err)
	assert.Empty(t, ch.calls)
	assert.Equal(t, 2, rep.Skipped)
}

func TestRun_TransientExhaustsRetries(t *testing.T) {
	transient := delivery.SendResult{Status: delivery.StatusTransient, Detail: "timeout"}
	ch := &fakeChannel{results: map[string][]delivery.SendResult{alice.PhoneE164: {transient}}}
	s := &sleeps{}
	l := ledger.NewMemory()
	o := newTestOrchestrator(ch, l, s)

	rep, err := o.Run(context.Background(), input(alice))
	require.NoError(t, err)
	assert.Len(t, ch.calls, 3)
	assert.Equal(t, 1, rep.Failed)

	require.Len(t, rep.Attempts, 1)
	a := rep.Attempts[0]
	assert.Equal(t, delivery.OutcomeChannelError, a.Outcome)
	assert.Equal(t, delivery.ReasonRetriesExhausted, a.Reason)
	assert.Equal(t, 3, a.AttemptNo)
	assert.Equal(t, "timeout", a.ErrorDetail)

	// pacing, backoff(1), pacing, backoff(2)
	require.Len(t, s.d, 4)
	assert.Equal(t, 5*time.Second, s.d[1])
	assert.Equal(t, 10*time.Second, s.d[3])
}

func TestRun_TransientThenSuccess(t *testing.T) {
	ch := &fakeChannel{results: map[string][]delivery.SendResult{
		alice.PhoneE164: {{Status: delivery.StatusTransient}, {Status: delivery.StatusOK}},
	}}
	rep, err := newTestOrchestrator(ch, ledger.NewMemory(), &sleeps{}).Run(context.Background(), input(alice))
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Sent)
	assert.Equal(t, 2, rep.Attempts[0].AttemptNo)
}

func TestRun_ChannelErrorIsTransient(t *testing.T) {
	ch := &erroringChannel{fakeChannel: &fakeChannel{}}
	rep, err := newTestOrchestrator(ch, ledger.NewMemory(), &sleeps{}).Run(context.Background(), input(alice))
	require.NoError(t, err)
	assert.Equal(t, 3, ch.n)
	assert.Equal(t, delivery.ReasonRetriesExhausted, rep.Attempts[0].Reason)
	assert.Equal(t, "connection reset", rep.Attempts[0].ErrorDetail)
}

type erroringChannel struct {
	*fakeChannel
	n int
}

func (e *erroringChannel) LocateAndSend(context.Context, delivery.Session, delivery.Target, string) (delivery.SendResult, error) {
	e.n++
	return delivery.SendResult{}, errors.New("connection reset")
}

func TestRun_NotFoundIsNotRetried(t *testing.T) {
	ch := &fakeChannel{results: map[string][]delivery.SendResult{
		alice.PhoneE164: {{Status: delivery.StatusNotFound, Detail: "no such contact"}},
	}}
	rep, err := newTestOrchestrator(ch, ledger.NewMemory(), &sleeps{}).Run(context.Background(), input(alice, bob))
	require.NoError(t, err)
	assert.Len(t, ch.calls, 2)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 1, rep.Sent)
	assert.Equal(t, delivery.ReasonNotFound, rep.Attempts[0].Reason)
}

func TestRun_NameTargetFallsBackToPhone(t *testing.T) {
	ch := &fakeChannel{results: map[string][]delivery.SendResult{
		alice.Name: {{Status: delivery.StatusNotFound}},
	}}
	o := newTestOrchestrator(ch, ledger.NewMemory(), &sleeps{})
	o.Config.Target = delivery.TargetName
	o.Config.NotFoundFallback = true

	rep, err := o.Run(context.Background(), input(alice))
	require.NoError(t, err)
	require.Len(t, ch.calls, 2)
	assert.Equal(t, delivery.Target{Kind: delivery.TargetName, Value: "Alice Smith"}, ch.calls[0].Target)
	assert.Equal(t, delivery.Target{Kind: delivery.TargetPhone, Value: alice.PhoneE164}, ch.calls[1].Target)
	assert.Equal(t, 1, rep.Sent)
	assert.Equal(t, 2, rep.Attempts[0].AttemptNo)
}

func TestRun_DryRunTouchesNothing(t *testing.T) {
	ch := &fakeChannel{}
	l := ledger.NewMemory()
	s := &sleeps{}
	o := newTestOrchestrator(ch, l, s)
	o.Config.DryRun = true

	rep, err := o.Run(context.Background(), input(alice, bob))
	require.NoError(t, err)
	assert.Empty(t, ch.calls)
	assert.Equal(t, 0, ch.opened)
	assert.Empty(t, s.d)
	entries, _ := l.List(context.Background(), "")
	assert.Empty(t, entries)

	require.Len(t, rep.Attempts, 2)
	assert.Equal(t, delivery.OutcomeWouldSend, rep.Attempts[0].Outcome)
	require.Len(t, rep.Messages, 2)
	assert.Equal(t, "Hi Bob, see you soon!", rep.Messages[1].Body)
	assert.True(t, rep.DryRun)
}

func TestRun_LedgerFailureAborts(t *testing.T) {
	ch := &fakeChannel{}
	l := &failingLedger{Memory: ledger.NewMemory(), failAfter: 1}
	rep, err := newTestOrchestrator(ch, l, &sleeps{}).Run(context.Background(), input(alice, bob, carol))

	require.Error(t, err)
	assert.ErrorIs(t, err, internaltypes.ErrLedger)
	assert.True(t, rep.Aborted)
	assert.Len(t, ch.calls, 2, "carol is never attempted")
	require.Len(t, rep.Attempts, 2)
	assert.Equal(t, 2, rep.Sent, "bob was delivered even though his entry was not recorded")
	assert.Equal(t, []contact.Contact{carol}, rep.Pending([]contact.Contact{alice, bob, carol}))
	assert.Equal(t, 1, ch.closed)

	entries, _ := l.List(context.Background(), "")
	assert.Len(t, entries, 1)
}

func TestRun_LedgerFailureCountsDeliveredMessage(t *testing.T) {
	ch := &fakeChannel{}
	l := &failingLedger{Memory: ledger.NewMemory()}
	rep, err := newTestOrchestrator(ch, l, &sleeps{}).Run(context.Background(), input(alice))

	assert.ErrorIs(t, err, internaltypes.ErrLedger)
	require.Len(t, rep.Attempts, 1)
	assert.Equal(t, delivery.OutcomeSent, rep.Attempts[0].Outcome)
	assert.Equal(t, 1, rep.Sent)
	assert.Equal(t, 0, rep.Failed)
	assert.Len(t, ch.calls, 1)
}

func TestRun_CancelledBetweenContacts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := &fakeChannel{}
	o := newTestOrchestrator(ch, ledger.NewMemory(), &sleeps{})
	o.Sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	rep, err := o.Run(ctx, input(alice, bob))
	require.Error(t, err)
	assert.ErrorIs(t, err, internaltypes.ErrAborted)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, rep.Sent)
	assert.Len(t, rep.Attempts, 1)
}

func TestRun_SessionOpenFailure(t *testing.T) {
	ch := &fakeChannel{openErr: errors.New("driver down")}
	l := ledger.NewMemory()
	rep, err := newTestOrchestrator(ch, l, &sleeps{}).Run(context.Background(), input(alice))
	require.Error(t, err)
	assert.ErrorIs(t, err, internaltypes.ErrAborted)
	assert.True(t, rep.Aborted)
	entries, _ := l.List(context.Background(), "")
	assert.Empty(t, entries)
}

func TestRun_EmptyTemplate(t *testing.T) {
	ch := &fakeChannel{}
	_, err := newTestOrchestrator(ch, ledger.NewMemory(), &sleeps{}).Run(context.Background(), Input{Template: "  ", Contacts: []contact.Contact{alice}})
	assert.ErrorIs(t, err, internaltypes.ErrNoTemplate)
	assert.Empty(t, ch.calls)
}

func TestBackoff_Delay(t *testing.T) {
	exp := Backoff{Kind: BackoffExponential, Base: 5 * time.Second, Max: 30 * time.Second}
	tests := []struct {
		n    int
		want time.Duration
	}{
		{0, 0},
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{3, 20 * time.Second},
		{4, 30 * time.Second},
		{40, 30 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, exp.Delay(tt.n), "retry %d", tt.n)
	}

	fixed := Backoff{Kind: BackoffFixed, Base: 7 * time.Second}
	assert.Equal(t, 7*time.Second, fixed.Delay(5))
}

func TestParseBackoffKind(t *testing.T) {
	k, err := ParseBackoffKind("")
	require.NoError(t, err)
	assert.Equal(t, BackoffExponential, k)
	_, err = ParseBackoffKind("linear")
	assert.Error(t, err)
}
