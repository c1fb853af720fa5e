/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package room

import (
	"context"
	"sync"
	"time"
)

// Broker fans out "room X reached sequence N" notifications inside one
// process. Delivery is best effort: a subscriber that is not keeping up
// misses notifications and relies on its poller instead.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan uint64]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[chan uint64]struct{})}
}

// Subscribe returns a channel of sequence numbers for roomID and a function
// that ends the subscription and closes the channel.
func (b *Broker) Subscribe(roomID string) (<-chan uint64, func()) {
	ch := make(chan uint64, 4)

	b.mu.Lock()
	if b.subs[roomID] == nil {
		b.subs[roomID] = make(map[chan uint64]struct{})
	}
	b.subs[roomID][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()

			delete(b.subs[roomID], ch)
			if len(b.subs[roomID]) == 0 {
				delete(b.subs, roomID)
			}
			close(ch)
		})
	}

	return ch, cancel
}

// Publish notifies subscribers of roomID without blocking.
func (b *Broker) Publish(roomID string, seq uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs[roomID] {
		select {
		case ch <- seq:
		default:
		}
	}
}

// FetchFunc reads the current document of a room.
type FetchFunc func(ctx context.Context) (Document, error)

// Watch delivers each new version of a document once, in sequence order. It
// fetches when push announces a newer sequence and on every poll tick, so a
// dropped push is recovered by the next tick. Either channel may be nil. The
// returned channel is closed when ctx is done.
func Watch(ctx context.Context, fetch FetchFunc, push <-chan uint64, poll <-chan time.Time) <-chan Document {
	out := make(chan Document, 1)

	go func() {
		defer close(out)

		var last uint64
		emit := func() bool {
			d, err := fetch(ctx)
			if err != nil || d.Seq <= last {
				return true
			}
			last = d.Seq

			select {
			case out <- d:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !emit() {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case seq, ok := <-push:
				if !ok {
					push = nil
					continue
				}
				if seq <= last {
					continue
				}
				if !emit() {
					return
				}
			case <-poll:
				if !emit() {
					return
				}
			}
		}
	}()

	return out
}
