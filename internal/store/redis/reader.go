package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"marketsim/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

// ErrNotFound is returned when a key has expired or was never written.
var ErrNotFound = errors.New("redis: not found")

// ReaderConfig configures the Redis reader.
type ReaderConfig struct {
	Addr     string
	Password string
	DB       int
}

// Reader follows a simulation from Redis: latest state, point streams and
// the live tick channel.
type Reader struct {
	client *goredis.Client
}

// NewReader creates a new Redis Reader and pings the server.
func NewReader(cfg ReaderConfig) (*Reader, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis-reader] connected to %s", cfg.Addr)
	return &Reader{client: client}, nil
}

// Latest returns the most recent update stored for ticker.
func (r *Reader) Latest(ctx context.Context, ticker string) (model.InstrumentUpdate, error) {
	var iu model.InstrumentUpdate
	data, err := r.client.Get(ctx, LatestKey(ticker)).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return iu, fmt.Errorf("%w: %s", ErrNotFound, LatestKey(ticker))
		}
		return iu, fmt.Errorf("redis GET %s: %w", LatestKey(ticker), err)
	}
	if err := json.Unmarshal(data, &iu); err != nil {
		return iu, fmt.Errorf("unmarshal latest %s: %w", ticker, err)
	}
	return iu, nil
}

// RecentPoints returns up to count of the newest stream points for ticker,
// oldest first.
func (r *Reader) RecentPoints(ctx context.Context, ticker string, count int64) ([]model.PricePoint, error) {
	msgs, err := r.client.XRevRangeN(ctx, StreamKey(ticker), "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("redis XREVRANGE %s: %w", StreamKey(ticker), err)
	}
	points := make([]model.PricePoint, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		p, err := pointFromValues(msgs[i].Values)
		if err != nil {
			log.Printf("[redis-reader] skipping stream entry %s: %v", msgs[i].ID, err)
			continue
		}
		points = append(points, p)
	}
	return points, nil
}

// SubscribeTicks forwards every update published on TickChannel to out,
// dropping when out is full. Blocks until ctx is cancelled.
func (r *Reader) SubscribeTicks(ctx context.Context, out chan<- model.Update) error {
	pubsub := r.client.Subscribe(ctx, TickChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var u model.Update
			if err := json.Unmarshal([]byte(msg.Payload), &u); err != nil {
				continue
			}
			select {
			case out <- u:
			default:
			}
		}
	}
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.client.Close()
}

func pointFromValues(v map[string]interface{}) (model.PricePoint, error) {
	str := func(k string) (string, error) {
		s, ok := v[k].(string)
		if !ok {
			return "", fmt.Errorf("field %q missing", k)
		}
		return s, nil
	}
	var p model.PricePoint
	ts, err := str("ts")
	if err != nil {
		return p, err
	}
	sec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return p, fmt.Errorf("ts: %w", err)
	}
	price, err := str("price")
	if err != nil {
		return p, err
	}
	if p.Price, err = strconv.ParseFloat(price, 64); err != nil {
		return p, fmt.Errorf("price: %w", err)
	}
	vol, err := str("volume")
	if err != nil {
		return p, err
	}
	if p.Volume, err = strconv.ParseInt(vol, 10, 64); err != nil {
		return p, fmt.Errorf("volume: %w", err)
	}
	p.Timestamp = time.Unix(sec, 0).UTC()
	return p, nil
}
