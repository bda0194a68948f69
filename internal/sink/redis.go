package sink

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// CVT item names stored per packet.
const (
	ItemBuffer       = "BUFFER"
	ItemReceivedTime = "RECEIVED_TIMESECONDS"
	ItemReceivedAt   = "RECEIVED_TIMEFORMATTED"
	ItemCount        = "RECEIVED_COUNT"
)

// CVTClient is the part of *redis.Client the current-value table needs.
type CVTClient interface {
	MSet(ctx context.Context, values ...interface{}) *redis.StatusCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
	Close() error
}

// NewRedisClient connects to addr and pings it.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return client, nil
}

// CVT keeps the latest value of every received packet in Redis.
type CVT struct {
	client CVTClient
}

// NewCVT stores into client.
func NewCVT(client CVTClient) *CVT {
	return &CVT{client: client}
}

// Key returns the Redis key for one item of a packet.
func Key(target, packet, item string) string {
	return fmt.Sprintf("%s__%s__%s", token(target), token(packet), item)
}

// Publish stores rec if it was read from an interface. Written packets are
// ignored.
func (c *CVT) Publish(ctx context.Context, rec Record) error {
	if rec.Direction != DirectionRead {
		return nil
	}

	values := []interface{}{
		Key(rec.Target, rec.Packet, ItemBuffer), rec.Hex,
		Key(rec.Target, rec.Packet, ItemReceivedTime), fmt.Sprintf("%d.%06d", rec.Timestamp.Unix(), rec.Timestamp.Nanosecond()/1000),
		Key(rec.Target, rec.Packet, ItemReceivedAt), rec.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	if err := c.client.MSet(ctx, values...).Err(); err != nil {
		return fmt.Errorf("failed to update CVT: %w", err)
	}
	if err := c.client.Incr(ctx, Key(rec.Target, rec.Packet, ItemCount)).Err(); err != nil {
		return fmt.Errorf("failed to update CVT count: %w", err)
	}
	return nil
}

// Latest is the current value of one packet.
type Latest struct {
	Data       []byte
	ReceivedAt time.Time
	Count      int64
}

// ErrNoValue is returned when a packet has never been received.
var ErrNoValue = errors.New("sink: no current value")

// Latest reads the current value of target/packet.
func (c *CVT) Latest(ctx context.Context, target, packet string) (*Latest, error) {
	vals, err := c.client.MGet(ctx,
		Key(target, packet, ItemBuffer),
		Key(target, packet, ItemReceivedAt),
		Key(target, packet, ItemCount),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read CVT: %w", err)
	}
	if len(vals) != 3 || vals[0] == nil {
		return nil, fmt.Errorf("%w: %s %s", ErrNoValue, target, packet)
	}

	out := &Latest{}
	if s, ok := vals[0].(string); ok {
		if out.Data, err = hex.DecodeString(s); err != nil {
			return nil, fmt.Errorf("corrupt CVT buffer: %w", err)
		}
	}
	if s, ok := vals[1].(string); ok {
		out.ReceivedAt, _ = time.Parse(time.RFC3339Nano, s)
	}
	if s, ok := vals[2].(string); ok {
		out.Count, _ = strconv.ParseInt(s, 10, 64)
	}
	return out, nil
}

// Close closes the Redis client.
func (c *CVT) Close() error {
	return c.client.Close()
}
