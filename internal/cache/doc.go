// Package cache stores synthesized audio keyed by normalized text, speed and
// language. It has a bounded in-memory LRU tier with TTL expiry and an
// optional zstd-compressed disk tier.
package cache
