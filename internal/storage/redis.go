// Package storage writes normalized records into the Redis queues drained
// by the collection agent.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tinytelemetry/chouette/internal/logging"
	"github.com/tinytelemetry/chouette/internal/model"
)

// maxPayloadLog bounds the record body attached to failure warnings.
const maxPayloadLog = 256

// RedisStorage stores records as a (sorted set, hash) pair per queue.
// It is safe for concurrent use; the underlying client is pooled.
type RedisStorage struct {
	client       redis.UniversalClient
	logger       *zap.Logger
	metricsQueue string
	logsQueue    string
}

var _ model.RecordStore = (*RedisStorage)(nil)

// NewRedisStorage wraps an existing go-redis client.
func NewRedisStorage(client redis.UniversalClient, logger *zap.Logger) *RedisStorage {
	return &RedisStorage{
		client:       client,
		logger:       logging.OrDefault(logger),
		metricsQueue: model.MetricsQueue,
		logsQueue:    model.LogsQueue,
	}
}

// Ping checks that the server answers.
func (s *RedisStorage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the connection pool.
func (s *RedisStorage) Close() error {
	return s.client.Close()
}

// StoreMetric queues a metric scored by its own timestamp.
func (s *RedisStorage) StoreMetric(ctx context.Context, record *model.MetricRecord) (string, bool) {
	if record == nil {
		return "", false
	}
	return s.store(ctx, record, s.metricsQueue, record.Timestamp)
}

// StoreLog queues a log record scored by its date.
func (s *RedisStorage) StoreLog(ctx context.Context, record *model.LogRecord) (string, bool) {
	if record == nil {
		return "", false
	}
	score, err := DateScore(record.Date)
	if err != nil {
		s.logger.Warn("Could not store a record: unparsable date",
			zap.String("queue", s.logsQueue),
			zap.String("date", record.Date),
			zap.Error(err),
		)
		return "", false
	}
	return s.store(ctx, record, s.logsQueue, score)
}

// store inserts the key into the index and the body into the value hash
// inside one MULTI/EXEC, so consumers see both or neither.
func (s *RedisStorage) store(ctx context.Context, record any, queue string, score float64) (string, bool) {
	key := uuid.NewString()

	body, err := json.Marshal(record)
	if err != nil {
		s.logger.Warn("Could not store a record",
			zap.String("key", key),
			zap.String("queue", queue),
			zap.Error(fmt.Errorf("encode: %w", err)),
		)
		return "", false
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, model.KeysName(queue), redis.Z{Score: score, Member: key})
		pipe.HSet(ctx, model.ValuesName(queue), key, body)
		return nil
	})
	if err != nil {
		s.logger.Warn("Could not store a record",
			zap.String("key", key),
			zap.String("payload", logging.Truncate(string(body), maxPayloadLog)),
			zap.String("queue", queue),
			zap.Error(err),
		)
		return "", false
	}

	if ce := s.logger.Check(zap.DebugLevel, "Successfully stored a record"); ce != nil {
		ce.Write(zap.String("key", key), zap.String("queue", queue))
	}
	return key, true
}

// DateScore converts a log date into fractional unix seconds.
func DateScore(date string) (float64, error) {
	t, err := time.Parse(time.RFC3339Nano, date)
	if err != nil {
		return 0, err
	}
	return float64(t.UnixNano()) / float64(time.Second), nil
}
