package timectrl

import (
	"context"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
)

// DelayFunc blocks for the simulated duration d or until ctx is done,
// whichever comes first. It is the single hook through which transfer and
// migration delays are modelled.
type DelayFunc func(ctx context.Context, d time.Duration) error

// Mode describes how simulated transfer time maps onto wall-clock time.
type Mode int

const (
	// Instant skips every simulated delay. This is the default.
	Instant Mode = iota
	// RealTime waits for the full simulated duration.
	RealTime
	// Accelerated waits for the simulated duration multiplied by a scale
	// factor below one.
	Accelerated
)

func (m Mode) String() string {
	switch m {
	case Instant:
		return "instant"
	case RealTime:
		return "realtime"
	case Accelerated:
		return "accelerated"
	default:
		return "unknown"
	}
}

// ParseMode maps a mode name to a Mode, defaulting to Instant.
func ParseMode(s string) Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "realtime", "real-time", "real":
		return RealTime
	case "accelerated", "scaled":
		return Accelerated
	default:
		return Instant
	}
}

// NoDelay returns immediately unless ctx is already done.
func NoDelay(ctx context.Context, _ time.Duration) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}

// Sleep returns a DelayFunc that waits on timers from clk. Passing a
// clock.Mock lets tests drive delays by advancing the mock.
func Sleep(clk clock.Clock) DelayFunc {
	if clk == nil {
		clk = clock.New()
	}
	return func(ctx context.Context, d time.Duration) error {
		if ctx == nil {
			ctx = context.Background()
		}
		if d <= 0 {
			return ctx.Err()
		}
		timer := clk.Timer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		}
	}
}

// Scaled multiplies every delay by factor before handing it to inner. A
// non-positive factor disables the delay.
func Scaled(factor float64, inner DelayFunc) DelayFunc {
	if factor <= 0 || inner == nil {
		return NoDelay
	}
	return func(ctx context.Context, d time.Duration) error {
		return inner(ctx, time.Duration(float64(d)*factor))
	}
}

// New builds the DelayFunc for a mode. scale only applies to Accelerated.
func New(mode Mode, clk clock.Clock, scale float64) DelayFunc {
	switch mode {
	case RealTime:
		return Sleep(clk)
	case Accelerated:
		return Scaled(scale, Sleep(clk))
	default:
		return NoDelay
	}
}

// TransferDuration is the simulated time to move amount units across one
// hop: amount/bandwidth seconds plus the link latency.
func TransferDuration(amount, bandwidth, latencyMs int) time.Duration {
	d := time.Duration(latencyMs) * time.Millisecond
	if bandwidth > 0 && amount > 0 {
		d += time.Duration(amount) * time.Second / time.Duration(bandwidth)
	}
	return d
}
