package proactive

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultPollInterval is how often the loop checks for due deliveries and
// generation candidates when no WithPollInterval option overrides it.
const DefaultPollInterval = 60 * time.Second

// Notifier delivers a pending message to its user over whatever channel
// they were last reached on. An error is treated as "no active channel
// right now" and the message is retried later rather than dropped.
type Notifier interface {
	Notify(ctx context.Context, msg *PendingMessage) error
}

// ContextSummarizer builds the recent-session summary a Generator reasons
// over for a given user.
type ContextSummarizer interface {
	Summarize(ctx context.Context, userID string) (string, error)
}

// Loop is the background deliver/generate poller described for the
// runtime's proactive messaging: one tick considers every pending message
// for redelivery, then every idle user for a new candidate.
type Loop struct {
	store       Store
	notify      Notifier
	generate    Generator
	summarize   ContextSummarizer
	activeHours ActiveHours
	limits      Limits
	interval    time.Duration
	now         func() time.Time
	logger      *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Loop at construction.
type Option func(*Loop)

func WithPollInterval(d time.Duration) Option { return func(l *Loop) { l.interval = d } }
func WithActiveHours(a ActiveHours) Option     { return func(l *Loop) { l.activeHours = a } }
func WithLimits(limits Limits) Option          { return func(l *Loop) { l.limits = limits } }
func WithNow(now func() time.Time) Option      { return func(l *Loop) { l.now = now } }
func WithLogger(logger *slog.Logger) Option    { return func(l *Loop) { l.logger = logger } }

// New constructs a Loop. notify and generate are required; summarize may
// be nil, in which case the generate step is given an empty context
// summary.
func New(store Store, notify Notifier, generate Generator, summarize ContextSummarizer, opts ...Option) *Loop {
	l := &Loop{
		store:       store,
		notify:      notify,
		generate:    generate,
		summarize:   summarize,
		activeHours: DefaultActiveHours(),
		interval:    DefaultPollInterval,
		now:         time.Now,
		logger:      slog.Default().With("component", "proactive"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start begins the poll loop in a background goroutine.
func (l *Loop) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	l.mu.Lock()
	l.cancel = cancel
	l.done = make(chan struct{})
	done := l.done
	l.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(l.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.Tick(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for the in-flight tick to finish.
func (l *Loop) Stop() {
	l.mu.Lock()
	cancel := l.cancel
	done := l.done
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Tick runs one deliver pass followed by one generate pass. Exported so
// tests and manual triggers can run a cycle without waiting on the ticker.
func (l *Loop) Tick(ctx context.Context) {
	l.deliverDue(ctx)
	l.generateForIdleUsers(ctx)
}

func (l *Loop) deliverDue(ctx context.Context) {
	now := l.now()
	due, err := l.store.DuePending(ctx, now)
	if err != nil {
		l.logger.Error("list due pending messages", "error", err)
		return
	}
	for _, msg := range due {
		if err := l.notify.Notify(ctx, msg); err != nil {
			l.logger.Warn("delivery failed, retrying later", "user_id", msg.UserID, "error", err)
			msg.Attempts++
			msg.DeliverAt = now.Add(RetryDelay)
			if err := l.store.SetPending(ctx, msg); err != nil {
				l.logger.Error("reschedule failed delivery", "user_id", msg.UserID, "error", err)
			}
			continue
		}
		if err := l.store.ClearPending(ctx, msg.UserID); err != nil {
			l.logger.Error("clear delivered message", "user_id", msg.UserID, "error", err)
		}
	}
}

func (l *Loop) generateForIdleUsers(ctx context.Context) {
	now := l.now()
	idle, err := l.store.IdleUsers(ctx, now.Add(-IdleThreshold))
	if err != nil {
		l.logger.Error("list idle users", "error", err)
		return
	}

	active, err := l.activeHours.IsActiveAt(now)
	if err != nil {
		l.logger.Warn("active hours check failed, skipping generation", "error", err)
		return
	}
	if !active {
		return
	}

	for _, userID := range idle {
		l.maybeGenerate(ctx, userID, now)
	}
}

func (l *Loop) maybeGenerate(ctx context.Context, userID string, now time.Time) {
	state, err := l.store.UserState(ctx, userID)
	if err != nil {
		l.logger.Error("load user state", "user_id", userID, "error", err)
		return
	}

	if now.Sub(state.LastGeneratedAt) < GenerationCooldown {
		return
	}

	if state.DayWindowStart.IsZero() || now.Sub(state.DayWindowStart) >= 24*time.Hour {
		state.DayWindowStart = now
		state.GeneratedToday = 0
	}
	if l.limits.DailyMax > 0 && state.GeneratedToday >= l.limits.DailyMax {
		return
	}
	if l.limits.MinGap > 0 && now.Sub(state.LastGeneratedAt) < l.limits.MinGap {
		return
	}

	summary := ""
	if l.summarize != nil {
		summary, err = l.summarize.Summarize(ctx, userID)
		if err != nil {
			l.logger.Warn("summarize context failed, generating without it", "user_id", userID, "error", err)
			summary = ""
		}
	}

	state.LastGeneratedAt = now
	candidate, genErr := l.generate.Generate(ctx, summary)

	if genErr != nil {
		if err := l.store.SaveUserState(ctx, state); err != nil {
			l.logger.Error("save user state after refusal", "user_id", userID, "error", err)
		}
		return
	}

	state.GeneratedToday++
	if err := l.store.SaveUserState(ctx, state); err != nil {
		l.logger.Error("save user state after generation", "user_id", userID, "error", err)
	}

	msg := &PendingMessage{
		UserID:    userID,
		Text:      candidate,
		DeliverAt: now,
		CreatedAt: now,
	}
	if err := l.store.SetPending(ctx, msg); err != nil {
		l.logger.Error("queue generated message", "user_id", userID, "error", err)
	}
}
