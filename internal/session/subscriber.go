package session

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/selvakumar-suyambulingam/react-native-node-js-user-status/internal/config"
	"github.com/selvakumar-suyambulingam/react-native-node-js-user-status/internal/presence"
	"github.com/selvakumar-suyambulingam/react-native-node-js-user-status/internal/protocol"
	"github.com/selvakumar-suyambulingam/react-native-node-js-user-status/internal/store"
)

// Subscriber consumes flip events from the routing-mode channels and delivers
// presence_update messages to the local sessions watching the flipped user.
// No retry and no buffering beyond the transport's own send path; a dropped
// delivery is repaired by the client's next snapshot poll.
type Subscriber struct {
	store    *store.Store
	hub      *Hub
	log      *zap.Logger
	channels []string

	ready     chan struct{}
	readyOnce sync.Once

	mu            sync.Mutex
	loggedReasons map[string]struct{}
}

func NewSubscriber(st *store.Store, hub *Hub, cfg config.Config, log *zap.Logger) *Subscriber {
	return &Subscriber{
		store:         st,
		hub:           hub,
		log:           log.Named("fanout"),
		channels:      presence.Channels(cfg),
		ready:         make(chan struct{}),
		loggedReasons: make(map[string]struct{}),
	}
}

// Ready is closed once the channel subscriptions are active.
func (f *Subscriber) Ready() <-chan struct{} {
	return f.ready
}

// Run subscribes and dispatches until ctx is cancelled.
func (f *Subscriber) Run(ctx context.Context) error {
	sub := f.store.Subscribe(ctx, f.channels...)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe flip channels: %w", err)
	}
	f.readyOnce.Do(func() { close(f.ready) })
	f.log.Info("flip subscriber running", zap.Strings("channels", f.channels))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			f.deliver([]byte(msg.Payload))
		}
	}
}

func (f *Subscriber) deliver(payload []byte) {
	flip, err := protocol.ParseFlip(payload)
	if err != nil {
		f.logParseFailure(err)
		return
	}
	sessions := f.hub.SessionsWatching(flip.User)
	if len(sessions) == 0 {
		return
	}
	update := protocol.PresenceUpdate{
		Type:        protocol.TypePresenceUpdate,
		User:        flip.User,
		Online:      flip.Online,
		TimestampMs: flip.TimestampMs,
	}
	for _, s := range sessions {
		s.send(update)
	}
}

// logParseFailure logs each distinct failure reason once; a malformed
// publisher would otherwise flood the log at the full flip rate.
func (f *Subscriber) logParseFailure(err error) {
	reason := err.Error()
	if i := strings.IndexByte(reason, ':'); i >= 0 {
		reason = reason[:i]
	}
	f.mu.Lock()
	_, dup := f.loggedReasons[reason]
	f.loggedReasons[reason] = struct{}{}
	f.mu.Unlock()
	if !dup {
		f.log.Warn("dropping malformed flip payload", zap.Error(err))
	}
}
