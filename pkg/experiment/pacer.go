package experiment

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrInvalidRate = errors.New("turns per second must be positive")

// Pacer adapts a frame-driven host loop to turns. Each frame reports the
// time since the previous one; a turn runs once at least 1/turnsPerSecond has
// accumulated. At most one turn runs per frame and the remainder carries over.
type Pacer struct {
	env      Stepper
	interval time.Duration
	elapsed  time.Duration
	frames   int
}

func NewPacer(env Stepper, turnsPerSecond float64) (*Pacer, error) {
	if turnsPerSecond <= 0 {
		return nil, ErrInvalidRate
	}
	interval := time.Duration(float64(time.Second) / turnsPerSecond)
	if interval <= 0 {
		return nil, fmt.Errorf("%w: %g exceeds one turn per nanosecond", ErrInvalidRate, turnsPerSecond)
	}
	return &Pacer{env: env, interval: interval}, nil
}

func (p *Pacer) Interval() time.Duration { return p.interval }

// Frames returns the number of frames seen so far.
func (p *Pacer) Frames() int { return p.frames }

// Frame accounts for delta and runs a turn if one is due. It reports whether
// a turn ran.
func (p *Pacer) Frame(ctx context.Context, delta time.Duration) (bool, error) {
	p.frames++
	p.elapsed += delta
	if p.elapsed < p.interval {
		return false, nil
	}
	p.elapsed %= p.interval
	if _, err := p.env.Step(ctx); err != nil {
		return true, err
	}
	return true, nil
}

// Run feeds wall-clock frames of length frame to the pacer until turns turns
// have run (0 means no limit) or ctx is done.
func (p *Pacer) Run(ctx context.Context, frame time.Duration, turns int) error {
	ticker := time.NewTicker(frame)
	defer ticker.Stop()

	last := time.Now()
	ran := 0
	for turns == 0 || ran < turns {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			stepped, err := p.Frame(ctx, now.Sub(last))
			last = now
			if err != nil {
				return err
			}
			if stepped {
				ran++
			}
		}
	}
	return nil
}
