package sandbox

import (
	"errors"
	"sync"
)

// ListenerID identifies a registered listener.
type ListenerID uint64

// Listener receives one inbound message.
type Listener[T any] func(msg T) error

type listenerEntry[T any] struct {
	id ListenerID
	fn Listener[T]
}

// MessageChannel owns the inbound queue and listener list of one execution
// context. Messages dispatched while no listener is registered are queued;
// the first listener to attach receives the whole queue in arrival order.
// With at least one listener, messages are forwarded live. Removing the last
// listener makes later messages queue again.
type MessageChannel[T any] struct {
	mu        sync.Mutex
	queue     []T
	listeners []listenerEntry[T]
	nextID    ListenerID
	flushing  bool
}

// NewMessageChannel creates an empty channel.
func NewMessageChannel[T any]() *MessageChannel[T] {
	return &MessageChannel[T]{}
}

// Dispatch delivers msg to every listener, or queues it when there are none.
// Listener errors are joined and returned.
func (c *MessageChannel[T]) Dispatch(msg T) error {
	c.mu.Lock()
	if len(c.listeners) == 0 || c.flushing {
		c.queue = append(c.queue, msg)
		c.mu.Unlock()
		return nil
	}
	listeners := c.snapshotLocked()
	c.mu.Unlock()

	return deliver(listeners, msg)
}

// AddListener registers fn. When fn is the first listener, queued messages
// are flushed to it before AddListener returns.
func (c *MessageChannel[T]) AddListener(fn Listener[T]) (ListenerID, error) {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.listeners = append(c.listeners, listenerEntry[T]{id: id, fn: fn})
	if len(c.listeners) != 1 || c.flushing || len(c.queue) == 0 {
		c.mu.Unlock()
		return id, nil
	}
	c.flushing = true
	c.mu.Unlock()

	return id, c.flush()
}

// RemoveListener unregisters id. It reports whether id was registered.
func (c *MessageChannel[T]) RemoveListener(id ListenerID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, l := range c.listeners {
		if l.id == id {
			c.listeners = append(c.listeners[:i:i], c.listeners[i+1:]...)
			return true
		}
	}
	return false
}

// Queued returns the number of messages waiting for a listener.
func (c *MessageChannel[T]) Queued() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Listeners returns the number of registered listeners.
func (c *MessageChannel[T]) Listeners() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.listeners)
}

// flush drains the queue one message at a time so that messages dispatched
// during the flush stay behind the ones already queued.
func (c *MessageChannel[T]) flush() error {
	var errs []error
	for {
		c.mu.Lock()
		if len(c.queue) == 0 || len(c.listeners) == 0 {
			c.flushing = false
			if len(c.queue) == 0 {
				c.queue = nil
			}
			c.mu.Unlock()
			return errors.Join(errs...)
		}
		msg := c.queue[0]
		c.queue = c.queue[1:]
		listeners := c.snapshotLocked()
		c.mu.Unlock()

		if err := deliver(listeners, msg); err != nil {
			errs = append(errs, err)
		}
	}
}

func (c *MessageChannel[T]) snapshotLocked() []listenerEntry[T] {
	return append([]listenerEntry[T](nil), c.listeners...)
}

func deliver[T any](listeners []listenerEntry[T], msg T) error {
	var errs []error
	for _, l := range listeners {
		if err := l.fn(msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
