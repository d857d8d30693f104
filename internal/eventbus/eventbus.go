// Package eventbus wraps store.Store with a broadcast wake-up primitive so
// SSE producers can sleep between polls instead of busy-waiting on the
// database. Durability and ordering live entirely in Store; this package
// only ever tells a waiter "something happened, go re-query".
package eventbus

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	wgochannel "github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/opencode-ai/opencode/internal/logging"
	"github.com/opencode-ai/opencode/pkg/types"
)

// wakeTopic is the single internal watermill topic used purely as a
// broadcast doorbell; message payloads are empty and carry no data.
const wakeTopic = "wake"

// Store is the subset of *store.Store the bus depends on.
type Store interface {
	InsertEvent(sessionID, turnID, stepID, typ string, payload map[string]any) (*types.Event, error)
	EventsSince(sinceID int64, limit int) ([]*types.Event, error)
	SessionEventsSince(sessionID string, sinceID int64, limit int) ([]*types.Event, error)
	SessionEventsSinceSeq(sessionID string, sinceSeq int64, limit int) ([]*types.Event, error)
	LatestEventID() (int64, error)
}

// Bus is an append-only, per-session-sequenced event stream on top of Store
// with an in-process broadcast wake-up.
type Bus struct {
	store Store
	pub   message.Publisher
	sub   message.Subscriber
}

// New wires a Bus over store. The watermill gochannel pub/sub backs the
// wake-up signal only — it never carries event payloads.
func New(store Store) *Bus {
	pubSub := wgochannel.NewGoChannel(
		wgochannel.Config{
			OutputChannelBuffer: 64,
			// Every subscriber must see every wake-up, not just one.
			Persistent: false,
		},
		watermill.NopLogger{},
	)
	return &Bus{store: store, pub: pubSub, sub: pubSub}
}

// Publish appends an event to Store and wakes every waiter.
func (b *Bus) Publish(sessionID, turnID, stepID, typ string, payload map[string]any) (*types.Event, error) {
	ev, err := b.store.InsertEvent(sessionID, turnID, stepID, typ, payload)
	if err != nil {
		return nil, err
	}
	// Best-effort: a publish failure here only delays a waiter's next poll
	// until its own wait timeout elapses; it never loses the event itself.
	if pubErr := b.pub.Publish(wakeTopic, message.NewMessage(watermill.NewUUID(), nil)); pubErr != nil {
		logging.Warn().Err(pubErr).Msg("eventbus: wake-up publish failed")
	}
	return ev, nil
}

// WaitForNew blocks up to timeout for a wake-up signal. Returns true if
// signalled, false on timeout. Callers must re-query Store regardless of the
// return value, since a signal may have coalesced multiple publishes.
func (b *Bus) WaitForNew(ctx context.Context, timeout time.Duration) bool {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sub, err := b.sub.Subscribe(waitCtx, wakeTopic)
	if err != nil {
		logging.Warn().Err(err).Msg("eventbus: subscribe failed, falling back to poll interval")
		select {
		case <-time.After(timeout):
		case <-ctx.Done():
		}
		return false
	}

	select {
	case msg, ok := <-sub:
		if ok {
			msg.Ack()
			return true
		}
		return false
	case <-waitCtx.Done():
		return false
	}
}

// EventsSince is a direct Store passthrough.
func (b *Bus) EventsSince(sinceID int64, limit int) ([]*types.Event, error) {
	return b.store.EventsSince(sinceID, limit)
}

// SessionEventsSince is a direct Store passthrough.
func (b *Bus) SessionEventsSince(sessionID string, sinceID int64, limit int) ([]*types.Event, error) {
	return b.store.SessionEventsSince(sessionID, sinceID, limit)
}

// SessionEventsSinceSeq is a direct Store passthrough.
func (b *Bus) SessionEventsSinceSeq(sessionID string, sinceSeq int64, limit int) ([]*types.Event, error) {
	return b.store.SessionEventsSinceSeq(sessionID, sinceSeq, limit)
}

// LatestEventID is a direct Store passthrough, used for the SSE `connected` frame.
func (b *Bus) LatestEventID() (int64, error) {
	return b.store.LatestEventID()
}

// Close releases the underlying pub/sub resources.
func (b *Bus) Close() error {
	if closer, ok := b.pub.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
