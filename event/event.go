// Package event distributes stream and session events to subscribers.
package event

import (
	"context"
	"errors"
	"sync"

	"github.com/lithammer/shortuuid/v4"
)

var (
	ErrClosed     = errors.New("pubsub is closed")
	ErrQueueFull  = errors.New("publisher queue full")
	queueCapacity = 1024
)

type Event interface {
	Clone() Event
}

type CancelFunc func()

type EventSource interface {
	Events() (<-chan Event, CancelFunc, error)
}

// PubSub fans out published events to all subscribers. Slow subscribers miss
// events instead of blocking the publisher.
type PubSub struct {
	publisher       chan Event
	publisherClosed bool
	publisherLock   sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc

	subscriber     map[string]chan Event
	subscriberLock sync.Mutex
}

func NewPubSub() *PubSub {
	w := &PubSub{
		publisher:  make(chan Event, queueCapacity),
		subscriber: make(map[string]chan Event),
	}

	w.ctx, w.cancel = context.WithCancel(context.Background())

	go w.broadcast()

	return w
}

func (w *PubSub) Publish(e Event) error {
	event := e.Clone()

	w.publisherLock.Lock()
	defer w.publisherLock.Unlock()

	if w.publisherClosed {
		return ErrClosed
	}

	select {
	case w.publisher <- event:
	default:
		return ErrQueueFull
	}

	return nil
}

// Close stops the distribution and closes all subscriber channels.
func (w *PubSub) Close() {
	w.cancel()

	w.publisherLock.Lock()
	if !w.publisherClosed {
		close(w.publisher)
		w.publisherClosed = true
	}
	w.publisherLock.Unlock()

	w.subscriberLock.Lock()
	for _, c := range w.subscriber {
		close(c)
	}
	w.subscriber = make(map[string]chan Event)
	w.subscriberLock.Unlock()
}

// Subscribe returns a channel with all events published from now on. The channel
// is closed by the CancelFunc or when the PubSub is closed.
func (w *PubSub) Subscribe() (<-chan Event, CancelFunc) {
	l := make(chan Event, queueCapacity)

	id := ""

	w.subscriberLock.Lock()
	for {
		id = shortuuid.New()
		if _, ok := w.subscriber[id]; !ok {
			w.subscriber[id] = l
			break
		}
	}
	w.subscriberLock.Unlock()

	unsubscribe := func() {
		w.subscriberLock.Lock()
		defer w.subscriberLock.Unlock()

		if c, ok := w.subscriber[id]; ok {
			delete(w.subscriber, id)
			close(c)
		}
	}

	return l, unsubscribe
}

func (w *PubSub) broadcast() {
	for {
		select {
		case <-w.ctx.Done():
			return
		case e, ok := <-w.publisher:
			if !ok {
				return
			}

			w.subscriberLock.Lock()
			for _, c := range w.subscriber {
				select {
				case c <- e.Clone():
				default:
				}
			}
			w.subscriberLock.Unlock()
		}
	}
}
