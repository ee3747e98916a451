package realtime

import (
	"context"
	"sync"
)

// Broker fans out change signals for store topics. A signal carries no
// payload: subscribers re-read the store to build a full snapshot.
type Broker interface {
	Publish(ctx context.Context, topic string) error
	// Subscribe returns once the subscription is live, so no change
	// committed after it returns can be missed.
	Subscribe(ctx context.Context, topic string) (*Subscription, error)
	Close() error
}

// Subscription delivers coalesced change signals on C until closed.
// C is closed when the subscription ends.
type Subscription struct {
	C <-chan struct{}

	once    sync.Once
	closeFn func()
}

// Close ends the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(s.closeFn)
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
		// a signal is already pending; the reader will see the latest state
	}
}

// LocalBroker is an in-process Broker for single instance deployments
type LocalBroker struct {
	mu   sync.RWMutex
	subs map[string]map[chan struct{}]struct{}
}

// NewLocalBroker creates an empty in-process broker
func NewLocalBroker() *LocalBroker {
	return &LocalBroker{subs: make(map[string]map[chan struct{}]struct{})}
}

// Publish signals every current subscriber of topic without blocking
func (b *LocalBroker) Publish(ctx context.Context, topic string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subs[topic] {
		signal(ch)
	}
	return nil
}

// Subscribe registers a subscription on topic. Signals that arrive while
// one is pending are coalesced.
func (b *LocalBroker) Subscribe(ctx context.Context, topic string) (*Subscription, error) {
	ch := make(chan struct{}, 1)

	b.mu.Lock()
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[chan struct{}]struct{})
	}
	b.subs[topic][ch] = struct{}{}
	b.mu.Unlock()

	return &Subscription{
		C: ch,
		closeFn: func() {
			b.mu.Lock()
			delete(b.subs[topic], ch)
			if len(b.subs[topic]) == 0 {
				delete(b.subs, topic)
			}
			b.mu.Unlock()
			close(ch)
		},
	}, nil
}

// Subscribers returns the number of live subscriptions on topic
func (b *LocalBroker) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

// Close is a no-op; subscriptions end through their own Close
func (b *LocalBroker) Close() error {
	return nil
}
