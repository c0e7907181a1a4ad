package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// batchLoop drains one Redis list into batches of T and hands each batch to flush.
// Flush owns error handling for its batch, normally by requeueing what it could not store.
type batchLoop[T any] struct {
	rdb     *redis.Client
	queue   string
	log     zerolog.Logger
	size    int
	timeout time.Duration
	flush   func(ctx context.Context, batch []*T)
}

func newBatchLoop[T any](rdb *redis.Client, queue string, log zerolog.Logger, flush func(context.Context, []*T)) *batchLoop[T] {
	return &batchLoop[T]{
		rdb:     rdb,
		queue:   queue,
		log:     log,
		size:    BatchSize,
		timeout: BatchTimeout,
		flush:   flush,
	}
}

func (b *batchLoop[T]) run(ctx context.Context) {
	buffer := make([]*T, 0, b.size)
	lastFlush := time.Now()

	for {
		// 1. Flush on size or age
		if len(buffer) > 0 && (len(buffer) >= b.size || time.Since(lastFlush) >= b.timeout) {
			b.flush(ctx, buffer)
			buffer = make([]*T, 0, b.size)
			lastFlush = time.Now()
		}

		// 2. Graceful shutdown
		select {
		case <-ctx.Done():
			b.shutdown(buffer)
			return
		default:
		}

		// 3. BLPop blocks for PollTimeout and returns immediately if data exists.
		result, err := b.rdb.BLPop(ctx, PollTimeout, b.queue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			b.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			select {
			case <-ctx.Done():
			case <-time.After(3 * time.Second):
			}
			continue
		}

		if len(result) < 2 {
			continue
		}

		item := new(T)
		if err := json.Unmarshal([]byte(result[1]), item); err != nil {
			// Malformed JSON can never succeed. Log and discard.
			b.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed JSON")
			continue
		}
		buffer = append(buffer, item)
	}
}

// requeue pushes items back onto the queue in one pipeline.
func (b *batchLoop[T]) requeue(ctx context.Context, items []*T) {
	if len(items) == 0 {
		return
	}
	pipe := b.rdb.Pipeline()
	for _, it := range items {
		data, err := json.Marshal(it)
		if err != nil {
			continue
		}
		pipe.RPush(ctx, b.queue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		b.log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: Failed to requeue items to Redis. Data loss occurred.")
		return
	}
	b.log.Info().Int("count", len(items)).Msg("Requeued failed items back to Redis")

	// Back off while the database is down.
	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
	}
}

func (b *batchLoop[T]) shutdown(buffer []*T) {
	b.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	// Give it 5 seconds to flush to DB
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		b.flush(shutdownCtx, buffer)
	}
}
