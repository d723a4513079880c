package worker

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/streamd/internal/platform/natsconn"
)

const (
	StreamName      = "WATCHLIST"
	SubjectChanged  = "watchlist.changed"
	durableConsumer = "stats_watchlist"
)

// WatchlistEvent is published whenever a user's watch list changes.
type WatchlistEvent struct {
	EventID   string `json:"event_id"`
	UserID    string `json:"user_id"`
	AnimeID   string `json:"anime_id"`
	Action    string `json:"action"`
	CreatedAt string `json:"created_at"`
}

// Invalidator drops a user's cached statistics on every replica.
type Invalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

type fetcher interface {
	Fetch(batch int, opts ...nats.PullOpt) ([]*nats.Msg, error)
}

// WatchlistConsumer invalidates cached statistics as watch lists change.
type WatchlistConsumer struct {
	Invalidator Invalidator
	Log         *zap.Logger
	BatchSize   int
	MaxWait     time.Duration
}

// NewWatchlistConsumer reads batch settings from WORKER_BATCH_SIZE and
// WORKER_BATCH_INTERVAL_MS.
func NewWatchlistConsumer(inv Invalidator, log *zap.Logger) *WatchlistConsumer {
	return &WatchlistConsumer{
		Invalidator: inv,
		Log:         log,
		BatchSize:   envInt("WORKER_BATCH_SIZE", 100),
		MaxWait:     time.Duration(envInt("WORKER_BATCH_INTERVAL_MS", 2000)) * time.Millisecond,
	}
}

// Start binds the durable pull consumer and processes batches until ctx is done.
func (c *WatchlistConsumer) Start(ctx context.Context, nc *nats.Conn) error {
	js, err := nc.JetStream()
	if err != nil {
		return err
	}
	if err := natsconn.EnsureStream(js, &nats.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{SubjectChanged},
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
	}); err != nil {
		return err
	}
	sub, err := js.PullSubscribe(SubjectChanged, durableConsumer)
	if err != nil {
		return err
	}
	go c.loop(ctx, sub)
	return nil
}

func (c *WatchlistConsumer) loop(ctx context.Context, sub fetcher) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := sub.Fetch(c.BatchSize, nats.MaxWait(c.MaxWait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) {
				continue
			}
			c.Log.Warn("watchlist_consumer: fetch error", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		for _, m := range msgs {
			if c.handle(ctx, m.Data) {
				if err := m.Ack(); err != nil {
					c.Log.Warn("watchlist_consumer: ack error", zap.Error(err))
				}
				continue
			}
			if err := m.Nak(); err != nil {
				c.Log.Warn("watchlist_consumer: nak error", zap.Error(err))
			}
		}
	}
}

// handle processes one payload and reports whether it should be acked.
// Undecodable payloads are acked so they do not redeliver forever.
func (c *WatchlistConsumer) handle(ctx context.Context, data []byte) bool {
	var ev WatchlistEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		c.Log.Warn("watchlist_consumer: invalid json, dropping", zap.Error(err))
		return true
	}
	userID := strings.TrimSpace(ev.UserID)
	if userID == "" {
		c.Log.Warn("watchlist_consumer: event without user_id, dropping", zap.String("event_id", ev.EventID))
		return true
	}
	if err := c.Invalidator.Invalidate(ctx, userID); err != nil {
		c.Log.Error("watchlist_consumer: invalidate failed",
			zap.String("event_id", ev.EventID),
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return false
	}
	c.Log.Debug("watchlist_consumer: stats invalidated",
		zap.String("user_id", userID),
		zap.String("anime_id", ev.AnimeID),
		zap.String("action", ev.Action),
	)
	return true
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
