package itemsync

import (
	"context"
	"time"

	"github.com/gravitas-games/economy/internal/network"
)

// DefaultTickInterval is how often a Loop runs Session.Tick.
const DefaultTickInterval = 5 * time.Second

// Loop owns a Session on a single goroutine. Inbound messages, player
// commands and ticks are queued and each runs to completion before the
// next starts.
type Loop struct {
	session *Session
	work    chan func(*Session)
	tick    time.Duration
}

// NewLoop wraps a session. A non-positive tick uses DefaultTickInterval.
func NewLoop(s *Session, tick time.Duration) *Loop {
	if tick <= 0 {
		tick = DefaultTickInterval
	}
	return &Loop{
		session: s,
		work:    make(chan func(*Session), 256),
		tick:    tick,
	}
}

// Run processes queued work and ticks until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-l.work:
			fn(l.session)
		case <-ticker.C:
			l.session.Tick(l.session.now())
		}
	}
}

// Post queues fn without waiting for it.
func (l *Loop) Post(ctx context.Context, fn func(*Session)) error {
	select {
	case l.work <- fn:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do queues fn and waits for its result.
func (l *Loop) Do(ctx context.Context, fn func(*Session) error) error {
	done := make(chan error, 1)
	if err := l.Post(ctx, func(s *Session) { done <- fn(s) }); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Deliver decodes a message from the authority and queues its handling.
func (l *Loop) Deliver(ctx context.Context, data []byte) error {
	env, err := network.Decode(data)
	if err != nil {
		return err
	}
	return l.Post(ctx, func(s *Session) {
		if err := s.Handle(env); err != nil {
			s.logger.Debug("server message not applied", "type", env.Type, "error", err)
		}
	})
}
