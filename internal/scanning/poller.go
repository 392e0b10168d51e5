package scanning

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/zombor/invoice-ocr/internal/invoice"
)

// PollState is the status a long-running provider operation reports
type PollState int

const (
	PollRunning PollState = iota
	PollSucceeded
	PollFailed
)

func (s PollState) String() string {
	switch s {
	case PollRunning:
		return "running"
	case PollSucceeded:
		return "succeeded"
	case PollFailed:
		return "failed"
	}
	return fmt.Sprintf("PollState(%d)", int(s))
}

const (
	DefaultPollAttempts = 10
	DefaultPollDelay    = time.Second
)

// Poller repeatedly checks an operation until it reaches a terminal state
// or MaxAttempts checks have been made.
type Poller struct {
	Provider    string
	MaxAttempts int
	Delay       time.Duration

	// Sleep waits between attempts; it returns early with the context error
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewPoller creates a Poller, using defaults for non-positive values
func NewPoller(provider string, maxAttempts int, delay time.Duration) *Poller {
	if maxAttempts <= 0 {
		maxAttempts = DefaultPollAttempts
	}
	if delay <= 0 {
		delay = DefaultPollDelay
	}
	return &Poller{
		Provider:    provider,
		MaxAttempts: maxAttempts,
		Delay:       delay,
		Sleep:       sleepContext,
	}
}

// Run calls check until it reports PollSucceeded or PollFailed. A check
// error ends polling immediately. Running out of attempts yields a Timeout
// AdapterError. The number of checks made is always returned.
func (p *Poller) Run(ctx context.Context, check func(ctx context.Context) (PollState, error)) (int, error) {
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	attempts := 0
	for attempts < p.MaxAttempts {
		if attempts > 0 {
			if err := sleep(ctx, p.Delay); err != nil {
				return attempts, transportError(p.Provider, "waiting for operation", err)
			}
		}

		attempts++
		state, err := check(ctx)
		if err != nil {
			return attempts, err
		}
		slog.Debug("Polled operation", "provider", p.Provider, "attempt", attempts, "state", state)

		switch state {
		case PollSucceeded:
			return attempts, nil
		case PollFailed:
			return attempts, rejected(p.Provider, "operation failed")
		}
	}

	return attempts, &AdapterError{
		Kind:     invoice.Timeout,
		Provider: p.Provider,
		Message:  fmt.Sprintf("operation did not finish after %d attempts", attempts),
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
