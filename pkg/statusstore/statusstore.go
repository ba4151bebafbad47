// Package statusstore publishes discovery snapshots to Redis so that other
// processes (dashboards, sibling hubs, the status CLI) can read the hub's view
// of its backends without probing them again.
//
// Each snapshot is stored as JSON at "<namespace>:snapshot" with a TTL and
// announced on the "<namespace>:events" channel.
package statusstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/vikashloomba/mcp-hub-gateway/pkg/catalog"
	"github.com/vikashloomba/mcp-hub-gateway/pkg/discovery"
)

// ErrNoSnapshot is returned by Latest when nothing has been published or the
// last record expired.
var ErrNoSnapshot = errors.New("statusstore: no snapshot published")

// BackendRecord is the stored view of one backend.
type BackendRecord struct {
	ID                string              `json:"id"`
	Name              string              `json:"name"`
	RoutePrefix       string              `json:"route_prefix"`
	Healthy           bool                `json:"healthy"`
	Error             string              `json:"error,omitempty"`
	ErrorKind         discovery.ErrorKind `json:"error_kind,omitempty"`
	LastCheckedAt     time.Time           `json:"last_checked_at"`
	ObservedToolCount int                 `json:"observed_tool_count"`
	Tools             []string            `json:"tools"`
}

// Record is the stored form of a snapshot.
type Record struct {
	TakenAt  time.Time       `json:"taken_at"`
	Summary  catalog.Summary `json:"summary"`
	Backends []BackendRecord `json:"backends"`
}

// Event is the message announced on the events channel.
type Event struct {
	TakenAt       time.Time `json:"taken_at"`
	TotalServers  int       `json:"total_servers"`
	OnlineServers int       `json:"online_servers"`
}

// NewRecord converts a snapshot into its stored form. Tool schemas are not
// stored; only tool names are.
func NewRecord(snap *discovery.Snapshot) Record {
	rec := Record{
		TakenAt:  snap.TakenAt(),
		Summary:  catalog.Summarize(snap),
		Backends: make([]BackendRecord, 0, snap.Len()),
	}
	snap.ForEach(func(e discovery.Entry) bool {
		names := make([]string, 0, len(e.Status.Tools))
		for _, t := range e.Status.Tools {
			names = append(names, t.Name)
		}
		rec.Backends = append(rec.Backends, BackendRecord{
			ID:                e.Backend.ID,
			Name:              e.Backend.DisplayName,
			RoutePrefix:       e.Backend.RoutePrefix,
			Healthy:           e.Status.Healthy,
			Error:             e.Status.Error,
			ErrorKind:         e.Status.ErrorKind,
			LastCheckedAt:     e.Status.LastCheckedAt,
			ObservedToolCount: e.Status.ObservedToolCount,
			Tools:             names,
		})
		return true
	})
	return rec
}

// Options configure a Publisher.
type Options struct {
	// Namespace prefixes every key and channel. Defaults to "mcphub".
	Namespace string
	// TTL is how long a stored snapshot stays readable. Defaults to 5m.
	TTL time.Duration
	// Timeout bounds each Redis round trip made from Observe. Defaults to 2s.
	Timeout time.Duration
	Logger  *slog.Logger
}

func (o *Options) withDefaults() Options {
	if o == nil {
		o = &Options{}
	}
	opts := *o
	if opts.Namespace == "" {
		opts.Namespace = "mcphub"
	}
	if opts.TTL <= 0 {
		opts.TTL = 5 * time.Minute
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return opts
}

// Publisher writes snapshots to Redis.
type Publisher struct {
	client *redis.Client
	opts   Options
}

// New connects to the Redis server at redisURL and verifies it answers.
func New(ctx context.Context, redisURL string, opts *Options) (*Publisher, error) {
	redisOpt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("statusstore: invalid Redis URL: %w", err)
	}
	options := opts.withDefaults()
	redisOpt.DialTimeout = options.Timeout
	redisOpt.ReadTimeout = options.Timeout
	redisOpt.WriteTimeout = options.Timeout
	client := redis.NewClient(redisOpt)

	pingCtx, cancel := context.WithTimeout(ctx, options.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("statusstore: connect to Redis: %w", err)
	}
	return &Publisher{client: client, opts: options}, nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, opts *Options) *Publisher {
	return &Publisher{client: client, opts: opts.withDefaults()}
}

// SnapshotKey is the key holding the latest record.
func (p *Publisher) SnapshotKey() string { return p.opts.Namespace + ":snapshot" }

// EventsKey is the channel announcing new records.
func (p *Publisher) EventsKey() string { return p.opts.Namespace + ":events" }

// Publish stores snap and announces it in one transaction.
func (p *Publisher) Publish(ctx context.Context, snap *discovery.Snapshot) error {
	rec := NewRecord(snap)
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("statusstore: encode snapshot: %w", err)
	}
	event, err := json.Marshal(Event{
		TakenAt:       rec.TakenAt,
		TotalServers:  rec.Summary.TotalServers,
		OnlineServers: rec.Summary.OnlineServers,
	})
	if err != nil {
		return fmt.Errorf("statusstore: encode event: %w", err)
	}

	pipe := p.client.TxPipeline()
	pipe.Set(ctx, p.SnapshotKey(), data, p.opts.TTL)
	pipe.Publish(ctx, p.EventsKey(), event)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("statusstore: publish snapshot: %w", err)
	}
	return nil
}

// Observe publishes snap with its own timeout and logs failures. It has the
// shape expected by discovery.Engine.Subscribe.
func (p *Publisher) Observe(snap *discovery.Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), p.opts.Timeout)
	defer cancel()
	if err := p.Publish(ctx, snap); err != nil {
		p.opts.Logger.Warn("snapshot publication failed", "key", p.SnapshotKey(), "error", err)
	}
}

// Latest reads the most recently stored record.
func (p *Publisher) Latest(ctx context.Context) (Record, error) {
	data, err := p.client.Get(ctx, p.SnapshotKey()).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, ErrNoSnapshot
	}
	if err != nil {
		return Record{}, fmt.Errorf("statusstore: read snapshot: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("statusstore: decode snapshot: %w", err)
	}
	return rec, nil
}

// Close releases the Redis connection pool.
func (p *Publisher) Close() error {
	return p.client.Close()
}
