// Package streams gives the node's internal pub/sub wiring (§5: "Logical
// streams are the unit of composition; each subscription runs on a
// scheduler chosen at subscription time") a single, typed building block
// on top of go-ethereum's event.Feed, used the same way across the
// ordering gate, simulator, YAC state machine and synchronizer.
package streams

import "github.com/ethereum/go-ethereum/event"

// Feed is a typed one-to-many event stream: any number of subscribers
// each receive every value sent, on a channel of their own choosing.
type Feed[T any] struct {
	feed event.Feed
}

// Subscribe registers ch as a destination for future Send calls. The
// returned Subscription's Unsubscribe must be called to stop delivery;
// Err() reports the subscription's terminal error, if any.
func (f *Feed[T]) Subscribe(ch chan<- T) event.Subscription {
	return f.feed.Subscribe(ch)
}

// Send delivers value to every current subscriber, blocking until each
// has received it (or been unsubscribed). It returns the number of
// subscribers the value was sent to.
func (f *Feed[T]) Send(value T) int {
	return f.feed.Send(value)
}
