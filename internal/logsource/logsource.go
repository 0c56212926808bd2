// Package logsource provides the relay's line inputs.
package logsource

import "github.com/tinytelemetry/chouette/internal/model"

// LogSource is a unified interface for relay line inputs (TCP, stdin).
type LogSource interface {
	Lines() <-chan model.IngestEnvelope // read-only channel of lines
	Stop()                              // graceful shutdown
	Name() string                       // "tcp", "stdin"
}
