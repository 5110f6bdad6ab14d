// Package proactive implements the timer-driven proactive message loop: a
// background poller that redelivers a pending message once its delivery
// time has passed, and otherwise considers generating a new one once the
// user has gone idle long enough and the daily/gap/active-hours limits
// allow it.
package proactive

import "time"

// PendingMessage is a candidate or scheduled proactive message awaiting
// delivery to a user over whichever channel they were last reached on.
type PendingMessage struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Channel   string    `json:"channel,omitempty"`
	ChannelID string    `json:"channel_id,omitempty"`
	Text      string    `json:"text"`
	DeliverAt time.Time `json:"deliver_at"`
	CreatedAt time.Time `json:"created_at"`
	Attempts  int       `json:"attempts,omitempty"`
}

// Limits bounds how often a new message may be generated for a user.
type Limits struct {
	// DailyMax caps how many messages may be generated in a rolling 24h
	// window. Zero means unlimited.
	DailyMax int

	// MinGap is the minimum time between two generated messages,
	// independent of the daily cap.
	MinGap time.Duration
}

// UserState tracks the bookkeeping the generate step needs per user:
// when they were last seen active, and the generation history the
// Limits and cooldown are evaluated against.
type UserState struct {
	UserID          string    `json:"user_id"`
	LastActiveAt    time.Time `json:"last_active_at"`
	LastGeneratedAt time.Time `json:"last_generated_at"`
	GeneratedToday  int       `json:"generated_today"`
	DayWindowStart  time.Time `json:"day_window_start"`
}

const (
	// IdleThreshold is how long a user must have been inactive before the
	// generate step will consider producing a new message for them.
	IdleThreshold = time.Hour

	// GenerationCooldown is the minimum time between generation attempts
	// for a user, applied regardless of whether the attempt produced a
	// message or a refusal.
	GenerationCooldown = time.Hour

	// RetryDelay is how long a failed delivery waits before its next
	// attempt.
	RetryDelay = 5 * time.Minute

	// NoFollowupToken is what the generator returns to refuse producing a
	// message this cycle.
	NoFollowupToken = "NO_FOLLOWUP"

	// MinMessageChars and MaxMessageChars bound an accepted candidate.
	MinMessageChars = 10
	MaxMessageChars = 500
)
