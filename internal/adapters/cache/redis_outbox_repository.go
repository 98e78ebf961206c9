package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"auth-session-service/internal/ports"
)

const (
	outboxPendingKey   = "auth:outbox:pending"
	outboxDeadKey      = "auth:outbox:dead"
	outboxRecordPrefix = "auth:outbox:rec:"
)

// RedisOutboxRepository stores outbox records as hashes with a pending
// sorted set scored by next-eligible time. Claiming bumps a record's score
// to the claim deadline, so a crashed worker's claims become visible again
// once the deadline passes.
type RedisOutboxRepository struct {
	client *redis.Client
}

func NewRedisOutboxRepository(client *redis.Client) *RedisOutboxRepository {
	return &RedisOutboxRepository{client: client}
}

func outboxRecordKey(outboxID uuid.UUID) string { return outboxRecordPrefix + outboxID.String() }

func (r *RedisOutboxRepository) Enqueue(ctx context.Context, event ports.OutboxEvent) error {
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		r.enqueuePipelined(ctx, p, event)
		return nil
	})
	return err
}

// enqueuePipelined lets the credential store enqueue inside its own
// transaction pipeline, keeping record creation and event enqueue atomic.
func (r *RedisOutboxRepository) enqueuePipelined(ctx context.Context, p redis.Pipeliner, event ports.OutboxEvent) {
	p.HSet(ctx, outboxRecordKey(event.EventID),
		"event_type", event.EventType,
		"partition_key", event.PartitionKey,
		"payload", event.Payload,
		"retry_count", 0,
		"created_at", event.OccurredAt.UnixNano(),
	)
	p.ZAdd(ctx, outboxPendingKey, redis.Z{
		Score:  float64(event.OccurredAt.UnixNano()),
		Member: event.EventID.String(),
	})
}

func (r *RedisOutboxRepository) ClaimUnpublished(ctx context.Context, limit int, claimToken string, claimUntil time.Time) ([]ports.OutboxRecord, error) {
	now := time.Now().UTC()
	var claimed []string

	transition := func(tx *redis.Tx) error {
		ids, err := tx.ZRangeByScore(ctx, outboxPendingKey, &redis.ZRangeBy{
			Min:   "-inf",
			Max:   strconv.FormatInt(now.UnixNano(), 10),
			Count: int64(limit),
		}).Result()
		if err != nil {
			return err
		}
		claimed = ids
		if len(ids) == 0 {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			for _, id := range ids {
				rid, parseErr := uuid.Parse(id)
				if parseErr != nil {
					continue
				}
				p.HSet(ctx, outboxRecordKey(rid),
					"claim_token", claimToken,
					"claim_until", claimUntil.UnixNano(),
				)
				p.ZAdd(ctx, outboxPendingKey, redis.Z{
					Score:  float64(claimUntil.UnixNano()),
					Member: id,
				})
			}
			return nil
		})
		return err
	}

	for attempt := 0; attempt < casRetries; attempt++ {
		err := r.client.Watch(ctx, transition, outboxPendingKey)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return r.loadRecords(ctx, claimed)
	}
	return nil, fmt.Errorf("claim outbox batch: %w", redis.TxFailedErr)
}

func (r *RedisOutboxRepository) MarkPublished(ctx context.Context, outboxID uuid.UUID, claimToken string, at time.Time) error {
	owned, err := r.ownsClaim(ctx, outboxID, claimToken)
	if err != nil || !owned {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRem(ctx, outboxPendingKey, outboxID.String())
		p.HSet(ctx, outboxRecordKey(outboxID), "published_at", at.UnixNano())
		p.HDel(ctx, outboxRecordKey(outboxID), "claim_token", "claim_until")
		return nil
	})
	return err
}

func (r *RedisOutboxRepository) MarkFailed(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error {
	owned, err := r.ownsClaim(ctx, outboxID, claimToken)
	if err != nil || !owned {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		key := outboxRecordKey(outboxID)
		p.HIncrBy(ctx, key, "retry_count", 1)
		p.HSet(ctx, key, "last_error", errMsg, "last_error_at", at.UnixNano())
		p.HDel(ctx, key, "claim_token", "claim_until")
		// Back on the pending set immediately; the worker's retry ceiling
		// decides when the record stops cycling.
		p.ZAdd(ctx, outboxPendingKey, redis.Z{
			Score:  float64(at.UnixNano()),
			Member: outboxID.String(),
		})
		return nil
	})
	return err
}

func (r *RedisOutboxRepository) MarkDeadLettered(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error {
	owned, err := r.ownsClaim(ctx, outboxID, claimToken)
	if err != nil || !owned {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		key := outboxRecordKey(outboxID)
		p.ZRem(ctx, outboxPendingKey, outboxID.String())
		p.HSet(ctx, key, "dead_lettered_at", at.UnixNano(), "last_error", errMsg, "last_error_at", at.UnixNano())
		p.HDel(ctx, key, "claim_token", "claim_until")
		p.ZAdd(ctx, outboxDeadKey, redis.Z{
			Score:  float64(at.UnixNano()),
			Member: outboxID.String(),
		})
		return nil
	})
	return err
}

// ownsClaim reports whether the record still carries our claim token. A
// mismatch means the claim deadline passed and another worker took over;
// the stale holder must drop the record without touching it.
func (r *RedisOutboxRepository) ownsClaim(ctx context.Context, outboxID uuid.UUID, claimToken string) (bool, error) {
	stored, err := r.client.HGet(ctx, outboxRecordKey(outboxID), "claim_token").Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return stored == claimToken, nil
}

func (r *RedisOutboxRepository) loadRecords(ctx context.Context, ids []string) ([]ports.OutboxRecord, error) {
	records := make([]ports.OutboxRecord, 0, len(ids))
	for _, id := range ids {
		rid, err := uuid.Parse(id)
		if err != nil {
			continue
		}
		data, err := r.client.HGetAll(ctx, outboxRecordKey(rid)).Result()
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			continue
		}
		rec := ports.OutboxRecord{
			OutboxID:     rid,
			EventType:    data["event_type"],
			PartitionKey: data["partition_key"],
			Payload:      []byte(data["payload"]),
		}
		if raw := data["retry_count"]; raw != "" {
			if n, convErr := strconv.Atoi(raw); convErr == nil {
				rec.RetryCount = n
			}
		}
		if raw := data["last_error"]; raw != "" {
			msg := raw
			rec.LastError = &msg
		}
		if raw := data["claim_token"]; raw != "" {
			token := raw
			rec.ClaimToken = &token
		}
		if created, convErr := decodeTime(data["created_at"]); convErr == nil && created != nil {
			rec.CreatedAt = *created
		}
		rec.PublishedAt, _ = decodeTime(data["published_at"])
		rec.LastErrorAt, _ = decodeTime(data["last_error_at"])
		rec.ClaimUntil, _ = decodeTime(data["claim_until"])
		rec.DeadLetteredAt, _ = decodeTime(data["dead_lettered_at"])
		records = append(records, rec)
	}
	return records, nil
}
