package outbox

import (
	"math/rand/v2"
	"time"
)

// Message is an outbox row awaiting delivery.
type Message struct {
	ID            int64
	Topic         string
	Payload       map[string]any
	DedupKey      *string
	Status        Status
	Attempts      int
	NextAttemptAt time.Time
	LastError     *string
	CreatedAt     time.Time
	SentAt        *time.Time
}

type Status string

const (
	StatusNew    Status = "NEW"
	StatusSent   Status = "SENT"
	StatusFailed Status = "FAILED"
)

// BackoffPolicy computes when a failed message becomes due again.
type BackoffPolicy struct {
	Base time.Duration
	Max  time.Duration
	// Jitter in [0, 1) shortens each delay by up to that fraction.
	Jitter float64
}

// DefaultBackoffPolicy returns the default outbox backoff.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		Base: 5 * time.Second,
		Max:  10 * time.Minute,
	}
}

// Delay returns min(base * 2^(attempts-1), max) for attempts >= 1, optionally jittered.
// The result never exceeds Max.
func (p BackoffPolicy) Delay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := p.Base
	for i := 1; i < attempts && d < p.Max; i++ {
		if d > p.Max/2 {
			d = p.Max
			break
		}
		d *= 2
	}
	if d > p.Max {
		d = p.Max
	}
	if p.Jitter > 0 && p.Jitter < 1 {
		d -= time.Duration(rand.Float64() * p.Jitter * float64(d))
	}
	return d
}

// NextAttemptAt returns the instant a message with the given attempt count becomes due.
func (p BackoffPolicy) NextAttemptAt(now time.Time, attempts int) time.Time {
	return now.Add(p.Delay(attempts))
}
