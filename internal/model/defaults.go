package model

import "time"

// Shared defaults used by the client library, the relay and the CLI.
const (
	DefaultRedisHost   = "redis"
	DefaultRedisPort   = 6379
	DefaultLogLevel    = "NOTSET"
	DefaultDialTimeout = 2 * time.Second
	DefaultQueueSize   = 10_000
)

// Queue names are part of the wire contract with the collection agent.
const (
	MetricsQueue = "chouette:metrics:raw"
	LogsQueue    = "chouette:logs:wrapped"

	// KeysSuffix names the sorted set of record keys scored by timestamp.
	KeysSuffix = ".keys"
	// ValuesSuffix names the hash of serialized records.
	ValuesSuffix = ".values"
)

// KeysName returns the sorted-set name for a queue.
func KeysName(queue string) string { return queue + KeysSuffix }

// ValuesName returns the hash name for a queue.
func ValuesName(queue string) string { return queue + ValuesSuffix }
