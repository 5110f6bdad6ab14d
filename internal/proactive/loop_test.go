package proactive

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeNotifier struct {
	fail  bool
	calls []string
}

func (f *fakeNotifier) Notify(ctx context.Context, msg *PendingMessage) error {
	f.calls = append(f.calls, msg.UserID)
	if f.fail {
		return errForTest("no active channel")
	}
	return nil
}

type errForTest string

func (e errForTest) Error() string { return string(e) }

type fakeGenerator struct {
	text string
	err  error
}

func (f *fakeGenerator) Generate(ctx context.Context, contextSummary string) (string, error) {
	return f.text, f.err
}

func TestDeliverDueClearsPendingOnSuccess(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.SetPending(context.Background(), &PendingMessage{
		UserID: "u1", Text: "hey, still working on that?", DeliverAt: now.Add(-time.Minute),
	}))

	notifier := &fakeNotifier{}
	loop := New(store, notifier, &fakeGenerator{err: ErrNoFollowup}, nil, WithNow(func() time.Time { return now }))

	loop.deliverDue(context.Background())

	require.Equal(t, []string{"u1"}, notifier.calls)
	msg, err := store.PendingFor(context.Background(), "u1")
	require.NoError(t, err)
	require.Nil(t, msg)
}

func TestDeliverDueReschedulesOnFailure(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.SetPending(context.Background(), &PendingMessage{
		UserID: "u1", Text: "hey, still working on that?", DeliverAt: now.Add(-time.Minute),
	}))

	notifier := &fakeNotifier{fail: true}
	loop := New(store, notifier, &fakeGenerator{err: ErrNoFollowup}, nil, WithNow(func() time.Time { return now }))

	loop.deliverDue(context.Background())

	msg, err := store.PendingFor(context.Background(), "u1")
	require.NoError(t, err)
	require.NotNil(t, msg)
	require.Equal(t, 1, msg.Attempts)
	require.Equal(t, now.Add(RetryDelay), msg.DeliverAt)
}

func TestDeliverDueIgnoresNotYetDue(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.SetPending(context.Background(), &PendingMessage{
		UserID: "u1", Text: "later", DeliverAt: now.Add(time.Hour),
	}))

	notifier := &fakeNotifier{}
	loop := New(store, notifier, &fakeGenerator{err: ErrNoFollowup}, nil, WithNow(func() time.Time { return now }))
	loop.deliverDue(context.Background())

	require.Empty(t, notifier.calls)
}

func TestGenerateSkipsUsersNotIdleLongEnough(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	store.TouchActivity("u1", now.Add(-10*time.Minute))

	gen := &fakeGenerator{text: "want me to pick this back up?"}
	loop := New(store, &fakeNotifier{}, gen, nil, WithNow(func() time.Time { return now }))
	loop.generateForIdleUsers(context.Background())

	msg, err := store.PendingFor(context.Background(), "u1")
	require.NoError(t, err)
	require.Nil(t, msg, "user active 10 minutes ago has not crossed the idle threshold")
}

func TestGenerateQueuesCandidateForIdleUser(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	store.TouchActivity("u1", now.Add(-2*time.Hour))

	gen := &fakeGenerator{text: "want me to pick this back up?"}
	loop := New(store, &fakeNotifier{}, gen, nil, WithNow(func() time.Time { return now }))
	loop.generateForIdleUsers(context.Background())

	msg, err := store.PendingFor(context.Background(), "u1")
	require.NoError(t, err)
	require.NotNil(t, msg)
	require.Equal(t, "want me to pick this back up?", msg.Text)

	state, err := store.UserState(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, 1, state.GeneratedToday)
	require.Equal(t, now, state.LastGeneratedAt)
}

func TestGenerateRespectsRefusal(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	store.TouchActivity("u1", now.Add(-2*time.Hour))

	gen := &fakeGenerator{err: ErrNoFollowup}
	loop := New(store, &fakeNotifier{}, gen, nil, WithNow(func() time.Time { return now }))
	loop.generateForIdleUsers(context.Background())

	msg, err := store.PendingFor(context.Background(), "u1")
	require.NoError(t, err)
	require.Nil(t, msg)

	state, err := store.UserState(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, now, state.LastGeneratedAt, "cooldown still applies after a refusal")
}

func TestGenerateRespectsCooldownRegardlessOfOutcome(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	store.TouchActivity("u1", now.Add(-2*time.Hour))
	require.NoError(t, store.SaveUserState(context.Background(), UserState{
		UserID: "u1", LastGeneratedAt: now.Add(-30 * time.Minute),
	}))

	gen := &fakeGenerator{text: "still there?"}
	loop := New(store, &fakeNotifier{}, gen, nil, WithNow(func() time.Time { return now }))
	loop.generateForIdleUsers(context.Background())

	msg, err := store.PendingFor(context.Background(), "u1")
	require.NoError(t, err)
	require.Nil(t, msg, "generation attempted 30 minutes ago is still within the 60-minute cooldown")
}

func TestGenerateRespectsDailyMax(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	store.TouchActivity("u1", now.Add(-2*time.Hour))
	require.NoError(t, store.SaveUserState(context.Background(), UserState{
		UserID:          "u1",
		DayWindowStart:  now.Add(-time.Hour),
		GeneratedToday:  2,
		LastGeneratedAt: now.Add(-2 * time.Hour),
	}))

	gen := &fakeGenerator{text: "still there?"}
	loop := New(store, &fakeNotifier{}, gen, nil, WithNow(func() time.Time { return now }), WithLimits(Limits{DailyMax: 2}))
	loop.generateForIdleUsers(context.Background())

	msg, err := store.PendingFor(context.Background(), "u1")
	require.NoError(t, err)
	require.Nil(t, msg)
}

func TestGenerateSkippedOutsideActiveHours(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2026, 7, 31, 3, 0, 0, 0, time.UTC) // 3am
	store.TouchActivity("u1", now.Add(-2*time.Hour))

	hours := ActiveHours{Enabled: true, Start: "09:00", End: "21:00", Timezone: "utc"}
	gen := &fakeGenerator{text: "still there?"}
	loop := New(store, &fakeNotifier{}, gen, nil, WithNow(func() time.Time { return now }), WithActiveHours(hours))
	loop.generateForIdleUsers(context.Background())

	msg, err := store.PendingFor(context.Background(), "u1")
	require.NoError(t, err)
	require.Nil(t, msg)
}

func TestValidateCandidateRejectsRefusalAndLengthBounds(t *testing.T) {
	_, err := validateCandidate(NoFollowupToken)
	require.ErrorIs(t, err, ErrNoFollowup)

	_, err = validateCandidate("too short")
	require.ErrorIs(t, err, ErrNoFollowup)

	long := make([]byte, MaxMessageChars+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err = validateCandidate(string(long))
	require.ErrorIs(t, err, ErrNoFollowup)

	text, err := validateCandidate("  hey, want me to keep going on the migration?  ")
	require.NoError(t, err)
	require.Equal(t, "hey, want me to keep going on the migration?", text)
}
