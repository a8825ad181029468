package events

import "sync"

// ChanObserver buffers events into a channel for consumers that prefer to
// range over events instead of implementing Observer.
//
// Notify never blocks the publisher. Events are queued and moved into the
// channel by a pump goroutine. Progress events are dropped while size events
// are already queued; terminal events are always kept.
type ChanObserver struct {
	ch   chan Event
	size int

	mu     sync.Mutex
	queue  []Event
	closed bool

	wake    chan struct{}
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// NewChanObserver creates an observer backed by a channel of the given size
// and starts its pump
func NewChanObserver(size int) *ChanObserver {
	if size < 1 {
		size = 1
	}
	c := &ChanObserver{
		ch:      make(chan Event, size),
		size:    size,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go c.pump()
	return c
}

// Events returns the receive side of the channel. It is closed by Close.
func (c *ChanObserver) Events() <-chan Event {
	return c.ch
}

// Notify implements Observer
func (c *ChanObserver) Notify(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if !e.Kind.IsTerminal() && len(c.queue) >= c.size {
		return
	}
	c.queue = append(c.queue, e)
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Close stops the pump and closes the channel; later notifications are
// ignored and queued events are discarded
func (c *ChanObserver) Close() {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.queue = nil
		c.mu.Unlock()
		close(c.done)
	})
	<-c.stopped
}

func (c *ChanObserver) pump() {
	defer close(c.stopped)
	defer close(c.ch)
	for {
		c.mu.Lock()
		batch := c.queue
		c.queue = nil
		c.mu.Unlock()

		for _, e := range batch {
			select {
			case c.ch <- e:
			case <-c.done:
				return
			}
		}

		select {
		case <-c.wake:
		case <-c.done:
			return
		}
	}
}

// SubscribeChan attaches a ChanObserver to the bus. The returned function
// detaches it and closes the channel.
func (b *Bus) SubscribeChan(size int) (<-chan Event, func()) {
	c := NewChanObserver(size)
	unsubscribe := b.Subscribe(c)
	return c.Events(), func() {
		unsubscribe()
		c.Close()
	}
}
