// Package screen decides which view the kiosk should show.
//
// Activity transitions drive the default (active → player, inactive → clock).
// A user gesture wins immediately and opens a cooldown window; transitions
// arriving inside the window are held back and the latest one is applied when
// the window closes.
package screen

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/genricoloni/hificlock/internal/domain"
	"go.uber.org/zap"
)

// DefaultCooldown is how long a manual choice suppresses automatic decisions
const DefaultCooldown = 10 * time.Second

// ChangeFunc is notified after the target screen changes. It must not block.
type ChangeFunc func(domain.ScreenDecision)

// Coordinator is the single source of truth for the target screen
type Coordinator struct {
	logger   *zap.Logger
	cooldown time.Duration
	now      func() time.Time

	mu            sync.Mutex
	overrideUntil time.Time
	suppressed    *domain.Transition
	onChange      []ChangeFunc

	current atomic.Pointer[domain.ScreenDecision]
}

// NewCoordinator creates a coordinator whose initial target follows the
// restored activity state
func NewCoordinator(logger *zap.Logger, cooldown time.Duration, initial domain.ActivityState) *Coordinator {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}

	c := &Coordinator{
		logger:   logger,
		cooldown: cooldown,
		now:      time.Now,
	}
	c.current.Store(&domain.ScreenDecision{
		Target:    targetFor(initial.Active),
		DecidedAt: c.now(),
	})
	return c
}

// OnChange registers fn to be called after every change of target
func (c *Coordinator) OnChange(fn ChangeFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = append(c.onChange, fn)
}

// Current returns the latest decision. It never blocks.
func (c *Coordinator) Current() domain.ScreenDecision {
	return *c.current.Load()
}

// Decide folds an optional activity edge and an optional gesture into a new
// decision. A gesture takes precedence when both are supplied.
func (c *Coordinator) Decide(event *domain.Transition, gesture *domain.Gesture) domain.ScreenDecision {
	c.mu.Lock()
	now := c.now()
	prev := *c.current.Load()
	next := prev

	if gesture != nil {
		if target, ok := gesture.Target(); ok {
			next = domain.ScreenDecision{Target: target, DecidedAt: now, Manual: true}
			c.overrideUntil = now.Add(c.cooldown)
			c.suppressed = nil
			if event != nil {
				// Arrived together with the gesture: treat as inside the window
				ev := *event
				c.suppressed = &ev
			}
		}
	} else if event != nil {
		if now.Before(c.overrideUntil) {
			ev := *event
			c.suppressed = &ev
			c.logger.Debug("Activity transition suppressed by cooldown",
				zap.Bool("active", event.Active),
				zap.Time("until", c.overrideUntil))
		} else {
			next = domain.ScreenDecision{Target: targetFor(event.Active), DecidedAt: now}
		}
	}

	listeners := c.commit(prev, next)
	c.mu.Unlock()

	c.notify(listeners, prev, next)
	return next
}

// Expire applies the latest suppressed transition once the cooldown window
// has elapsed. It is a no-op while the window is still open.
func (c *Coordinator) Expire() domain.ScreenDecision {
	c.mu.Lock()
	now := c.now()
	prev := *c.current.Load()
	next := prev

	if !c.overrideUntil.IsZero() && !now.Before(c.overrideUntil) {
		c.overrideUntil = time.Time{}
		if c.suppressed != nil {
			next = domain.ScreenDecision{Target: targetFor(c.suppressed.Active), DecidedAt: now}
			c.suppressed = nil
		}
	}

	listeners := c.commit(prev, next)
	c.mu.Unlock()

	c.notify(listeners, prev, next)
	return next
}

// commit stores next and returns the listeners to notify. Caller holds mu.
func (c *Coordinator) commit(prev, next domain.ScreenDecision) []ChangeFunc {
	if next == prev {
		return nil
	}
	snapshot := next
	c.current.Store(&snapshot)
	if next.Target == prev.Target {
		return nil
	}
	return append([]ChangeFunc(nil), c.onChange...)
}

func (c *Coordinator) notify(listeners []ChangeFunc, prev, next domain.ScreenDecision) {
	if len(listeners) == 0 {
		return
	}
	c.logger.Info("Screen changed",
		zap.String("from", string(prev.Target)),
		zap.String("to", string(next.Target)),
		zap.Bool("manual", next.Manual))
	for _, fn := range listeners {
		fn(next)
	}
}

// deadline returns the end of the open cooldown window, if any
func (c *Coordinator) deadline() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.overrideUntil, !c.overrideUntil.IsZero()
}

// Run consumes activity transitions until ctx is cancelled and closes
// cooldown windows on time. Gestures are delivered through Decide directly.
func (c *Coordinator) Run(ctx context.Context, transitions <-chan domain.Transition, gestures <-chan struct{}) {
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	rearm := func() {
		timer.Stop()
		if until, ok := c.deadline(); ok {
			timer.Reset(max(until.Sub(c.now()), 0))
		}
	}

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Screen coordinator stopped")
			return

		case tr, ok := <-transitions:
			if !ok {
				c.logger.Info("Activity transitions channel closed")
				return
			}
			c.Decide(&tr, nil)
			rearm()

		case <-gestures:
			rearm()

		case <-timer.C:
			c.Expire()
			rearm()
		}
	}
}

func targetFor(active bool) domain.Screen {
	if active {
		return domain.ScreenPlayer
	}
	return domain.ScreenClock
}
