package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"marketsim/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	// Stream trimming: ~2 simulated months of 5-minute points + buffer
	pointStreamMaxLen = 10000
	defaultLatestTTL  = 30 * time.Minute

	// TickChannel carries every published update.
	TickChannel = "pub:sim:tick"
	// StateKey holds the latest clock state of the run.
	StateKey = "sim:state"
)

// LatestKey is where the latest per-instrument update is stored.
func LatestKey(ticker string) string { return "sim:latest:" + ticker }

// StreamKey is the per-instrument stream of generated points.
func StreamKey(ticker string) string { return "sim:points:" + ticker }

// InstrumentChannel carries the per-instrument part of every generated update.
func InstrumentChannel(ticker string) string { return "pub:sim:" + ticker }

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Writer publishes simulation updates to Redis: latest state per
// instrument (SET with TTL), a capped point stream (XADD) and pub/sub
// fan-out (PUBLISH).
type Writer struct {
	client *goredis.Client

	// OnWrite is called with the pipeline latency after each update.
	OnWrite func(took time.Duration)
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// New creates a new Redis Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
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

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Writer{client: client}, nil
}

// Run reads updates and writes each to Redis.
// Blocks until ctx is cancelled or updates is closed.
func (w *Writer) Run(ctx context.Context, updates <-chan model.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			if err := w.WriteUpdate(ctx, u); err != nil {
				log.Printf("[redis] pipeline error for seq=%d: %v", u.Seq, err)
			}
		}
	}
}

// WriteUpdate writes one update in a single pipeline.
func (w *Writer) WriteUpdate(ctx context.Context, u model.Update) error {
	start := time.Now()
	pipe := w.client.Pipeline()

	for _, c := range updateCommands(u) {
		switch c.op {
		case opSet:
			pipe.Set(ctx, c.key, c.payload, c.ttl)
		case opXAdd:
			pipe.XAdd(ctx, &goredis.XAddArgs{
				Stream: c.key,
				MaxLen: pointStreamMaxLen,
				Approx: true,
				Values: c.values,
			})
		case opPublish:
			pipe.Publish(ctx, c.key, c.payload)
		}
	}

	_, err := pipe.Exec(ctx)
	if w.OnWrite != nil {
		w.OnWrite(time.Since(start))
	}
	return err
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}

type opKind int

const (
	opSet opKind = iota
	opXAdd
	opPublish
)

// command is one pipelined Redis operation, kept as data so the mapping
// from update to keys can be inspected without a server.
type command struct {
	op      opKind
	key     string
	payload string
	ttl     time.Duration
	values  map[string]interface{}
}

// simState is the JSON stored under StateKey.
type simState struct {
	Seq         int64     `json:"seq"`
	RunID       string    `json:"run_id"`
	CurrentDate time.Time `json:"current_date"`
	Generated   bool      `json:"generated"`
}

func updateCommands(u model.Update) []command {
	state, _ := json.Marshal(simState{Seq: u.Seq, RunID: u.RunID, CurrentDate: u.CurrentDate, Generated: u.Generated})
	cmds := []command{
		{op: opSet, key: StateKey, payload: string(state)},
		{op: opPublish, key: TickChannel, payload: string(u.JSON())},
	}
	for _, iu := range u.Instruments {
		data, err := json.Marshal(iu)
		if err != nil {
			continue
		}
		payload := string(data)
		cmds = append(cmds,
			command{op: opSet, key: LatestKey(iu.Ticker), payload: payload, ttl: defaultLatestTTL},
			command{op: opPublish, key: InstrumentChannel(iu.Ticker), payload: payload},
		)
		if iu.Point != nil {
			cmds = append(cmds, command{op: opXAdd, key: StreamKey(iu.Ticker), values: map[string]interface{}{
				"ts":     strconv.FormatInt(iu.Point.Timestamp.Unix(), 10),
				"price":  strconv.FormatFloat(iu.Point.Price, 'f', 2, 64),
				"volume": strconv.FormatInt(iu.Point.Volume, 10),
				"seq":    strconv.FormatInt(u.Seq, 10),
			}})
		}
	}
	return cmds
}
