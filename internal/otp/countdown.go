package otp

import (
	"fmt"
	"time"
)

// DefaultTTL matches the backend's OTP lifetime.
const DefaultTTL = 300 * time.Second

// Countdown tracks a server-supplied expiry locally. It only ever disables
// actions; a server rejection wins even while time remains.
type Countdown struct {
	Total     time.Duration `json:"total"`
	StartedAt time.Time     `json:"started_at"`
}

func Start(total time.Duration, now time.Time) Countdown {
	if total <= 0 {
		total = DefaultTTL
	}
	return Countdown{Total: total, StartedAt: now}
}

// FromSeconds builds a countdown from an expires_in payload.
func FromSeconds(seconds int, now time.Time) Countdown {
	return Start(time.Duration(seconds)*time.Second, now)
}

func (c Countdown) ExpiresAt() time.Time { return c.StartedAt.Add(c.Total) }

// Remaining is rounded up to the second and never negative.
func (c Countdown) Remaining(now time.Time) time.Duration {
	left := c.ExpiresAt().Sub(now)
	if left <= 0 {
		return 0
	}
	return left.Truncate(time.Second) + roundUp(left)
}

func roundUp(d time.Duration) time.Duration {
	if d%time.Second == 0 {
		return 0
	}
	return time.Second
}

func (c Countdown) Expired(now time.Time) bool {
	return c.IsZero() || !now.Before(c.ExpiresAt())
}

func (c Countdown) IsZero() bool { return c.StartedAt.IsZero() }

func (c Countdown) CanVerify(now time.Time) bool { return !c.Expired(now) }

// Display renders the remaining time as m:ss.
func (c Countdown) Display(now time.Time) string {
	left := int(c.Remaining(now) / time.Second)
	return fmt.Sprintf("%d:%02d", left/60, left%60)
}

// Tick is one frame of the countdown stream.
type Tick struct {
	Remaining int    `json:"remaining"`
	Display   string `json:"display"`
	Expired   bool   `json:"expired"`
}

func (c Countdown) Tick(now time.Time) Tick {
	return Tick{
		Remaining: int(c.Remaining(now) / time.Second),
		Display:   c.Display(now),
		Expired:   c.Expired(now),
	}
}
