package presence

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/selvakumar-suyambulingam/react-native-node-js-user-status/internal/config"
	"github.com/selvakumar-suyambulingam/react-native-node-js-user-status/internal/protocol"
	"github.com/selvakumar-suyambulingam/react-native-node-js-user-status/internal/store"
)

// Publisher pushes online/offline flips onto the pub/sub channels. Delivery
// is best-effort: the subscriber side is never an authoritative source of
// truth, observers reconcile by snapshot.
//
// Two routing modes:
//
//   - targeted (default): the user's watcher set names the interested
//     servers; one publish per interested server to presence:server:{id}.
//     An empty watcher set skips the publish entirely.
//   - sharded: one publish to presence:flip:{hash(user) % shards}; every
//     server subscribes to every shard.
type Publisher struct {
	store      *store.Store
	watchers   *WatcherIndex
	log        *zap.Logger
	mode       string
	shardCount int
	now        func() time.Time
}

func NewPublisher(s *store.Store, w *WatcherIndex, cfg config.Config, log *zap.Logger) *Publisher {
	return &Publisher{
		store:      s,
		watchers:   w,
		log:        log.Named("flips"),
		mode:       cfg.RoutingMode,
		shardCount: cfg.ShardCount,
		now:        time.Now,
	}
}

// PublishFlip announces an online/offline transition for user. Errors are
// logged and swallowed; a lost flip is repaired by the observers' next
// snapshot poll.
func (p *Publisher) PublishFlip(ctx context.Context, user string, online bool) {
	payload, err := json.Marshal(protocol.Flip{
		User:        user,
		Online:      online,
		TimestampMs: p.now().UnixMilli(),
	})
	if err != nil {
		p.log.Error("marshal flip", zap.String("user", user), zap.Error(err))
		return
	}

	switch p.mode {
	case config.RoutingSharded:
		ch := ShardChannel(shardOf(user, p.shardCount))
		if err := p.store.Publish(ctx, ch, payload); err != nil {
			p.log.Warn("publish flip", zap.String("channel", ch), zap.Error(err))
		}
	default:
		servers, err := p.watchers.Watchers(ctx, user)
		if err != nil {
			p.log.Warn("read watcher set", zap.String("user", user), zap.Error(err))
			return
		}
		for _, sid := range servers {
			ch := ServerChannel(sid)
			if err := p.store.Publish(ctx, ch, payload); err != nil {
				p.log.Warn("publish flip", zap.String("channel", ch), zap.Error(err))
			}
		}
	}
}

// Channels returns the channel names a server must subscribe to in the
// configured mode.
func Channels(cfg config.Config) []string {
	if cfg.RoutingMode == config.RoutingSharded {
		channels := make([]string, cfg.ShardCount)
		for i := range channels {
			channels[i] = ShardChannel(i)
		}
		return channels
	}
	return []string{ServerChannel(cfg.ServerID)}
}
