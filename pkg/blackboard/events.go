package blackboard

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Subscription represents an active Pub/Sub subscription to finding events.
// Caller must call Close() when done to clean up resources.
// Subscriptions deliver full finding objects via the Events() channel.
type Subscription struct {
	events <-chan *Finding
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of finding events.
// The channel is closed when the subscription is closed or the context is
// cancelled.
func (s *Subscription) Events() <-chan *Finding {
	return s.events
}

// Errors returns the channel of subscription errors. Errors include JSON
// unmarshaling failures; the subscription continues after errors and the
// offending message is skipped.
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription and cleans up resources. Implements
// io.Closer. Safe to call multiple times.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// SubscribeFindingEvents subscribes to finding events for one investigation
// over Redis Pub/Sub. This is the cross-process observation path; in-process
// consumers can use Store.Subscribe instead.
//
// Events are delivered on a buffered channel (size 10). Redis Pub/Sub is
// at-most-once: a subscriber that falls behind may miss events, which is
// why the monitor also keeps a pull-refresh path.
func SubscribeFindingEvents(ctx context.Context, rdb *redis.Client, investigationID string) (*Subscription, error) {
	if investigationID == "" {
		return nil, fmt.Errorf("investigation ID cannot be empty")
	}

	pubsub := rdb.Subscribe(ctx, FindingEventsChannel(investigationID))

	eventsChan := make(chan *Finding, 10)
	errorsChan := make(chan error, 10)

	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()

		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var finding Finding
				if err := json.Unmarshal([]byte(msg.Payload), &finding); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal finding event: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- &finding:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}
