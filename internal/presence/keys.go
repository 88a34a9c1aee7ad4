// Package presence implements the shared-store side of the fabric: the
// TTL-based online-truth registry, activity buckets, batched snapshots, the
// watcher index, and flip publishing.
package presence

import (
	"fmt"
	"hash/fnv"
)

func presenceKey(user string) string {
	return "presence:user:" + user
}

func lastSeenKey(user string) string {
	return "presence:lastseen:" + user
}

func lastActiveKey(user string) string {
	return "presence:lastactive:" + user
}

func watchersKey(user string) string {
	return "presence:watchers:" + user
}

// ShardChannel is the broadcast channel for one shard in sharded mode.
func ShardChannel(shard int) string {
	return fmt.Sprintf("presence:flip:%d", shard)
}

// ServerChannel is the per-server channel in targeted mode.
func ServerChannel(serverID string) string {
	return "presence:server:" + serverID
}

func shardOf(user string, shardCount int) int {
	h := fnv.New32a()
	h.Write([]byte(user))
	return int(h.Sum32() % uint32(shardCount))
}
