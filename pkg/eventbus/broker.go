package eventbus

import (
	"context"
	"sync"

	"github.com/fableworks/fableflow/pkg/events"
)

const subscriberBuffer = 64

// Broker routes events to per-workflow subscribers. The SSE transport
// subscribes before a run segment starts and forwards everything it
// receives verbatim.
type Broker struct {
	mu   sync.RWMutex
	subs map[string][]chan events.Event
}

func NewBroker() *Broker {
	return &Broker{
		subs: make(map[string][]chan events.Event),
	}
}

// Subscribe registers a consumer for one workflow's events. The returned
// cancel function must be called when the consumer is done.
func (b *Broker) Subscribe(workflowID string) (<-chan events.Event, func()) {
	ch := make(chan events.Event, subscriberBuffer)

	b.mu.Lock()
	b.subs[workflowID] = append(b.subs[workflowID], ch)
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		subs := b.subs[workflowID]
		for i, sub := range subs {
			if sub == ch {
				b.subs[workflowID] = append(subs[:i], subs[i+1:]...)
				close(ch)

				break
			}
		}

		if len(b.subs[workflowID]) == 0 {
			delete(b.subs, workflowID)
		}
	}

	return ch, cancel
}

// Publish delivers the event to every subscriber of its workflow. A slow
// subscriber with a full buffer misses the event rather than blocking the
// orchestrator loop.
func (b *Broker) Publish(_ context.Context, event events.Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs[event.GetWorkflowID()] {
		select {
		case ch <- event:
		default:
		}
	}

	return nil
}
