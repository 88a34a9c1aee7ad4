package presence

import "time"

// Activity buckets, most recent first. A currently-online user is always
// online_now regardless of the last-active timestamp.
const (
	BucketOnlineNow  = "online_now"
	BucketActive10s  = "active_10s"
	BucketActive1m   = "active_1m"
	BucketActive5m   = "active_5m"
	BucketActive15m  = "active_15m"
	BucketActive1h   = "active_1h"
	BucketActiveDay  = "active_today"
	BucketInactive   = "inactive"
)

// ActivityBucket classifies how recently a user was active.
func ActivityBucket(online bool, lastActiveMs *int64, now time.Time) string {
	if online {
		return BucketOnlineNow
	}
	if lastActiveMs == nil {
		return BucketInactive
	}
	age := now.Sub(time.UnixMilli(*lastActiveMs))
	switch {
	case age < 10*time.Second:
		return BucketActive10s
	case age < time.Minute:
		return BucketActive1m
	case age < 5*time.Minute:
		return BucketActive5m
	case age < 15*time.Minute:
		return BucketActive15m
	case age < time.Hour:
		return BucketActive1h
	case age < 24*time.Hour:
		return BucketActiveDay
	default:
		return BucketInactive
	}
}
