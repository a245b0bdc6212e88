// Package cache defines the payload cache used by the data refresh cycle.
package cache

import "time"

type Interface interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, val []byte, ttl time.Duration) error
	Del(keys ...string) error
}
