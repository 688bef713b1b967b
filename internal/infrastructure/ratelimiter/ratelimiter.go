package ratelimiter

import "time"

type Limiter interface {
	// Allow reports whether the caller identified by key may proceed; on
	// refusal it returns how long to wait before retrying.
	Allow(key string) (bool, time.Duration)
}
