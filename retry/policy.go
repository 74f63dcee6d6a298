package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/dailyyoga/contractflow/apierr"
	"github.com/dailyyoga/contractflow/logger"
	"github.com/jonboulle/clockwork"
)

// Classifier reports whether a failure may be retried.
type Classifier func(err error) bool

// OnRetryFunc is called before each backoff wait with the attempt that just
// failed (1-based), the attempt limit, the wait about to happen and the error.
type OnRetryFunc func(attempt, maxAttempts int, delay time.Duration, err error)

// RefreshFunc renews credentials after a 401.
type RefreshFunc func(ctx context.Context) error

// Sleeper waits between attempts. *schedule.Registry satisfies it.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// Policy controls how an operation is retried
type Policy struct {
	// Name identifies the operation in logs
	Name string `mapstructure:"name" env:"NAME"`
	// MaxAttempts is the total number of invocations, the first one included
	// default: 3
	MaxAttempts int `mapstructure:"max_attempts" env:"MAX_ATTEMPTS"`
	// InitialDelay is the wait after the first failed attempt
	// default: 1 * time.Second
	InitialDelay time.Duration `mapstructure:"initial_delay" env:"INITIAL_DELAY"`
	// MaxDelay caps every un-jittered wait
	// default: 10 * time.Second
	MaxDelay time.Duration `mapstructure:"max_delay" env:"MAX_DELAY"`
	// Multiplier grows the wait between consecutive attempts
	// default: 2
	Multiplier float64 `mapstructure:"multiplier" env:"MULTIPLIER"`
	// JitterFraction spreads each wait uniformly over delay ± delay*JitterFraction.
	// Zero disables jitter.
	JitterFraction float64 `mapstructure:"jitter_fraction" env:"JITTER_FRACTION"`

	// Classify decides which failures are retried
	// default: apierr.IsRetryable
	Classify Classifier `mapstructure:"-"`
	// OnRetry is an optional hook for user-visible retry feedback
	OnRetry OnRetryFunc `mapstructure:"-"`
	// Refresh, when set, is called once on the first 401 and the operation is
	// retried immediately without consuming an attempt
	Refresh RefreshFunc `mapstructure:"-"`
	// Sleeper performs backoff waits
	// default: the real clock
	Sleeper Sleeper `mapstructure:"-"`
	// Rand returns a uniform value in [0, 1) for jitter
	// default: math/rand/v2.Float64
	Rand func() float64 `mapstructure:"-"`
	// Logger receives retry and refresh events
	Logger logger.Logger `mapstructure:"-"`
}

// DefaultPolicy returns the default retry policy
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		InitialDelay:   time.Second,
		MaxDelay:       10 * time.Second,
		Multiplier:     2,
		JitterFraction: 0.1,
		Classify:       apierr.IsRetryable,
		Sleeper:        ClockSleeper(clockwork.NewRealClock()),
		Rand:           rand.Float64,
	}
}

// MergeDefaults returns a copy of the policy with zero values replaced by
// defaults. JitterFraction is kept as given.
func (p Policy) MergeDefaults() Policy {
	def := DefaultPolicy()
	if p.MaxAttempts == 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.InitialDelay == 0 {
		p.InitialDelay = def.InitialDelay
	}
	if p.MaxDelay == 0 {
		p.MaxDelay = max(def.MaxDelay, p.InitialDelay)
	}
	if p.Multiplier == 0 {
		p.Multiplier = def.Multiplier
	}
	if p.Classify == nil {
		p.Classify = def.Classify
	}
	if p.Sleeper == nil {
		p.Sleeper = def.Sleeper
	}
	if p.Rand == nil {
		p.Rand = def.Rand
	}
	p.Logger = logger.OrNop(p.Logger)
	return p
}

// Validate validates the policy
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return ErrInvalidMaxAttempts(p.MaxAttempts)
	}
	if p.InitialDelay < 0 {
		return ErrInvalidDelay("initial", p.InitialDelay)
	}
	if p.MaxDelay < p.InitialDelay {
		return ErrInvalidDelay("max", p.MaxDelay)
	}
	if p.Multiplier <= 1 {
		return ErrInvalidMultiplier(p.Multiplier)
	}
	if p.JitterFraction < 0 || p.JitterFraction >= 1 {
		return ErrInvalidJitter(p.JitterFraction)
	}
	return nil
}

// Delay returns the un-jittered wait after the given failed attempt (1-based):
// min(MaxDelay, InitialDelay * Multiplier^(attempt-1)). No wait follows the
// final attempt, so attempts past MaxAttempts-1 report the last real wait.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt > p.MaxAttempts-1 {
		attempt = p.MaxAttempts - 1
	}
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// Delays returns the un-jittered delay for every attempt up to MaxAttempts.
// For 1s initial, multiplier 2, 10s cap and 5 attempts that is
// [1s 2s 4s 8s 8s].
func (p Policy) Delays() []time.Duration {
	out := make([]time.Duration, 0, p.MaxAttempts)
	for n := 1; n <= p.MaxAttempts; n++ {
		out = append(out, p.Delay(n))
	}
	return out
}

// jittered returns Delay(attempt) moved uniformly within ±JitterFraction.
func (p Policy) jittered(attempt int) time.Duration {
	d := p.Delay(attempt)
	if p.JitterFraction == 0 || d == 0 {
		return d
	}
	spread := float64(d) * p.JitterFraction
	return time.Duration(float64(d) - spread + 2*spread*p.Rand())
}

// ClockSleeper returns a Sleeper that waits on c.
func ClockSleeper(c clockwork.Clock) Sleeper {
	return clockSleeper{c}
}

type clockSleeper struct {
	clock clockwork.Clock
}

func (s clockSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := s.clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.Chan():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
