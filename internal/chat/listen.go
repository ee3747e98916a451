package chat

import (
	"context"
	"sync"

	"expertvakil/server/internal/metrics"
)

// watch subscribes to topic and calls onUpdate with a fresh snapshot once
// right away and again after every change signal. The subscription is live
// before watch returns. Unsubscribing cancels the loop; a snapshot already
// being delivered may still complete.
func watch[T any](
	ctx context.Context,
	c *Core,
	topic, kind string,
	fetch func(context.Context) (T, error),
	onUpdate func(T),
	onError func(error),
) func() {
	if onError == nil {
		onError = func(error) {}
	}

	sub, err := c.broker.Subscribe(ctx, topic)
	if err != nil {
		c.log.Warnw("listener subscribe failed", "topic", topic, "error", err)
		onError(err)
		return func() {}
	}

	lctx, cancel := context.WithCancel(ctx)
	metrics.Listeners.WithLabelValues(kind).Inc()

	snapshot := func() {
		v, err := fetch(lctx)
		if lctx.Err() != nil {
			return
		}
		if err != nil {
			onError(err)
			return
		}
		onUpdate(v)
	}

	go func() {
		snapshot()
		for {
			select {
			case <-lctx.Done():
				return
			case _, ok := <-sub.C:
				if !ok {
					return
				}
				snapshot()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			sub.Close()
			metrics.Listeners.WithLabelValues(kind).Dec()
		})
	}
}
