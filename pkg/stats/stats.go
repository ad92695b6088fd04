// Package stats publishes live engine snapshots to Redis so external
// dashboards can watch a run without touching the control API.
package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/callstorm/callstorm/pkg/originator"
)

const enginesSet = "callstorm:engines"

// Snapshot is the published wire form: the engine status plus identity and
// a publish timestamp.
type Snapshot struct {
	EngineID    string            `json:"engine_id"`
	PublishedAt time.Time         `json:"published_at"`
	Status      originator.Status `json:"status"`
}

// Publisher writes engine snapshots under callstorm:engine:<id> and tracks
// live engines in a set, so readers can MGET everything in two round trips.
type Publisher struct {
	client   *redis.Client
	engineID string
	log      *slog.Logger
}

func NewPublisher(client *redis.Client, engineID string, log *slog.Logger) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{client: client, engineID: engineID, log: log}
}

func (p *Publisher) key() string {
	return fmt.Sprintf("callstorm:engine:%s", p.engineID)
}

// Publish writes one snapshot. Failures are logged, not returned; a dead
// stats backend must never stall the engine.
func (p *Publisher) Publish(ctx context.Context, st originator.Status) {
	snap := Snapshot{
		EngineID:    p.engineID,
		PublishedAt: time.Now().UTC(),
		Status:      st,
	}
	data, err := json.Marshal(snap)
	if err != nil {
		p.log.Error("failed to marshal snapshot", "error", err)
		return
	}
	key := p.key()
	if err := p.client.Set(ctx, key, data, 0).Err(); err != nil {
		p.log.Warn("failed to SET snapshot", "key", key, "error", err)
		return
	}
	if err := p.client.SAdd(ctx, enginesSet, key).Err(); err != nil {
		p.log.Warn("failed to SADD engine key", "key", key, "error", err)
	}
}

// Get reads this engine's last published snapshot.
func (p *Publisher) Get(ctx context.Context) (Snapshot, bool) {
	data, err := p.client.Get(ctx, p.key()).Result()
	if err != nil {
		if err != redis.Nil {
			p.log.Warn("failed to GET snapshot", "key", p.key(), "error", err)
		}
		return Snapshot{}, false
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		p.log.Warn("failed to unmarshal snapshot", "key", p.key(), "error", err)
		return Snapshot{}, false
	}
	return snap, true
}

// GetAll reads the last snapshot of every engine that has ever published.
func GetAll(ctx context.Context, client *redis.Client, log *slog.Logger) []Snapshot {
	if log == nil {
		log = slog.Default()
	}
	keys, err := client.SMembers(ctx, enginesSet).Result()
	if err != nil {
		log.Warn("failed to SMEMBERS engines set", "error", err)
		return nil
	}
	if len(keys) == 0 {
		return []Snapshot{}
	}
	values, err := client.MGet(ctx, keys...).Result()
	if err != nil {
		log.Warn("failed to MGET engine keys", "error", err)
		return nil
	}
	var snaps []Snapshot
	for i, val := range values {
		if val == nil {
			continue
		}
		str, ok := val.(string)
		if !ok {
			continue
		}
		var snap Snapshot
		if err := json.Unmarshal([]byte(str), &snap); err != nil {
			log.Warn("failed to unmarshal snapshot", "key", keys[i], "error", err)
			continue
		}
		snaps = append(snaps, snap)
	}
	return snaps
}

// Clear removes this engine's snapshot and its set membership.
func (p *Publisher) Clear(ctx context.Context) {
	key := p.key()
	if err := p.client.Del(ctx, key).Err(); err != nil {
		p.log.Warn("failed to DEL snapshot", "key", key, "error", err)
	}
	if err := p.client.SRem(ctx, enginesSet, key).Err(); err != nil {
		p.log.Warn("failed to SREM engine key", "key", key, "error", err)
	}
}

// Run publishes the engine status every interval until ctx is cancelled,
// then clears the snapshot on the way out.
func (p *Publisher) Run(ctx context.Context, interval time.Duration, status func() originator.Status) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			cleanup, cancel := context.WithTimeout(context.Background(), time.Second)
			p.Clear(cleanup)
			cancel()
			return
		case <-ticker.C:
			p.Publish(ctx, status())
		}
	}
}
