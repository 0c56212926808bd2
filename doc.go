// Package chouette enqueues metrics and log records into the Redis queues
// drained by the Chouette-IoT collection agent.
//
// Submissions never block on Redis. Each call returns a Handle that
// resolves to the stored record key, or to "absent" when the record could
// not be stored. Callers may wait on it or ignore it:
//
//	c := chouette.New()
//	defer c.Close()
//
//	h, err := c.Gauge("queue.depth", 12, chouette.WithTags(map[string]string{"queue": "orders"}))
//	if err != nil {
//		// malformed input, e.g. an empty metric name
//	}
//	key, ok := h.Wait()
//
// When Redis cannot be reached at construction time the client runs in
// degraded mode: every call still returns a Handle, already resolved as
// absent. Construct a new client to try again.
//
// Durations are measured with Timed, and log records are shipped by
// plugging NewLogHandler (log/slog) or NewZapCore (zap) into the host
// application's logger.
package chouette
