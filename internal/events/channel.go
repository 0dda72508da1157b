package events

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrClosed     = errors.New("events: bus closed")
	ErrBufferFull = errors.New("events: bus buffer full")
)

// Channel is an in-process transport: Publish enqueues, Consume delivers to
// a single handler. A failed event is handed back to the handler up to
// MaxAttempts times, then dropped so the events behind it keep moving.
type Channel struct {
	// RetryPause is the wait before a failed event is handed back.
	RetryPause time.Duration
	// MaxAttempts bounds deliveries of one event; values below 1 mean 1.
	MaxAttempts int
	// OnDrop, when set, is called with an event that exhausted its attempts
	// and the last handler error.
	OnDrop func(e LedgerEvent, err error)

	ch        chan LedgerEvent
	closeOnce sync.Once
	done      chan struct{}
}

func NewChannel(buffer int) *Channel {
	return &Channel{
		RetryPause:  100 * time.Millisecond,
		MaxAttempts: 10,
		ch:          make(chan LedgerEvent, buffer),
		done:        make(chan struct{}),
	}
}

// Publish enqueues e without waiting. A full buffer fails with ErrBufferFull
// so callers on the request path are never held up by a slow consumer.
func (c *Channel) Publish(ctx context.Context, e LedgerEvent) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case c.ch <- e:
		return nil
	default:
		return ErrBufferFull
	}
}

func (c *Channel) Consume(ctx context.Context, h Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return nil
		case e := <-c.ch:
			if err := c.deliver(ctx, e, h); err != nil {
				return err
			}
		}
	}
}

// deliver hands e to h until it succeeds or runs out of attempts. Only a
// context error is returned.
func (c *Channel) deliver(ctx context.Context, e LedgerEvent, h Handler) error {
	attempts := max(c.MaxAttempts, 1)
	var err error
	for attempt := 1; ; attempt++ {
		if err = h(ctx, e); err == nil {
			return nil
		}
		if attempt >= attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.RetryPause):
		}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if c.OnDrop != nil {
		c.OnDrop(e, err)
	}
	return nil
}

func (c *Channel) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

var (
	_ Publisher = (*Channel)(nil)
	_ Consumer  = (*Channel)(nil)
)
