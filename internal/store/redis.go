package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"team-arena/internal/obslog"
)

const redisKeyPrefix = "arena:"

// Redis is a Store backed by a redis server: one JSON blob per record, a
// per-collection id index set, WATCH-based optimistic transactions for
// updates, and change events over pub/sub.
type Redis struct {
	rdb    *redis.Client
	schema Schema

	mu        sync.RWMutex
	subs      map[int]subscription
	nextSubID int
	clientID  string

	cancel context.CancelFunc
	done   chan struct{}
}

func NewRedis(redisURL string, schema Schema) (*Redis, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, errors.New("redis url required")
	}
	opts, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Redis{
		rdb:      rdb,
		schema:   schema,
		subs:     make(map[int]subscription),
		clientID: uuid.NewString(),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go r.receiveLoop(ctx)
	return r, nil
}

func (r *Redis) Close() error {
	r.cancel()
	<-r.done
	return r.rdb.Close()
}

func (r *Redis) Create(ctx context.Context, collection string, fields Fields) (Record, error) {
	rec := Record{}
	applyPatch(rec, fields)
	if rec.GetString("id") == "" {
		rec["id"] = uuid.NewString()
	}
	ts := time.Now().UTC().Format(time.RFC3339Nano)
	rec["created"] = ts
	rec["updated"] = ts

	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, recKey(collection, rec.ID()), raw, 0)
	pipe.SAdd(ctx, idxKey(collection), rec.ID())
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	r.publish(ctx, Event{Action: ActionCreate, Collection: collection, Record: rec})
	return rec.Clone(), nil
}

func (r *Redis) Update(ctx context.Context, collection, id string, fields Fields) (Record, error) {
	key := recKey(collection, id)
	var out Record
	for attempt := 0; attempt < 3; attempt++ {
		err := r.rdb.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, key).Bytes()
			if err == redis.Nil {
				return ErrNotFound
			}
			if err != nil {
				return err
			}
			var rec Record
			if err := json.Unmarshal(raw, &rec); err != nil {
				return err
			}
			applyPatch(rec, fields)
			rec["updated"] = time.Now().UTC().Format(time.RFC3339Nano)
			buf, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			pipe := tx.TxPipeline()
			pipe.Set(ctx, key, buf, 0)
			if _, err := pipe.Exec(ctx); err != nil {
				return err
			}
			out = rec
			return nil
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		r.publish(ctx, Event{Action: ActionUpdate, Collection: collection, Record: out})
		return out.Clone(), nil
	}
	return nil, fmt.Errorf("update %s/%s: %w", collection, id, redis.TxFailedErr)
}

func (r *Redis) GetOne(ctx context.Context, collection, id string, expand ...string) (Record, error) {
	raw, err := r.rdb.Get(ctx, recKey(collection, id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	resolveExpand(ctx, r, r.schema, collection, rec, expand)
	return rec, nil
}

func (r *Redis) List(ctx context.Context, collection string, q Query) ([]Record, error) {
	ids, err := r.rdb.SMembers(ctx, idxKey(collection)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		rec, gerr := r.GetOne(ctx, collection, id)
		if errors.Is(gerr, ErrNotFound) {
			continue
		}
		if gerr != nil {
			return nil, gerr
		}
		if q.Filter != nil && !q.Filter.Match(rec) {
			continue
		}
		resolveExpand(ctx, r, r.schema, collection, rec, q.Expand)
		out = append(out, rec)
	}
	sortRecords(out, q.Sort)
	return out, nil
}

func (r *Redis) Delete(ctx context.Context, collection, id string) error {
	old, err := r.GetOne(ctx, collection, id)
	if err != nil {
		return err
	}
	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, recKey(collection, id))
	pipe.SRem(ctx, idxKey(collection), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	r.publish(ctx, Event{Action: ActionDelete, Collection: collection, Record: old})
	return nil
}

func (r *Redis) Subscribe(collection string, cb EventCallback) (func(), error) {
	r.mu.Lock()
	r.nextSubID++
	id := r.nextSubID
	r.subs[id] = subscription{collection: collection, cb: cb}
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
	}, nil
}

func (r *Redis) UnsubscribeAll() {
	r.mu.Lock()
	r.subs = make(map[int]subscription)
	r.mu.Unlock()
}

func (r *Redis) ClientID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.clientID
}

func (r *Redis) publish(ctx context.Context, ev Event) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := r.rdb.Publish(ctx, evtChannel(ev.Collection), raw).Err(); err != nil {
		obslog.L().Warn("store_event_publish_error", zap.String("collection", ev.Collection), zap.Error(err))
	}
}

// receiveLoop consumes the pub/sub feed and dispatches to subscribers. Any
// receive error means the feed connection was replaced, so a fresh client id
// is issued to let the sync layer notice the gap.
func (r *Redis) receiveLoop(ctx context.Context) {
	defer close(r.done)
	ps := r.rdb.PSubscribe(ctx, redisKeyPrefix+"evt:*")
	defer func() { _ = ps.Close() }()

	for {
		msg, err := ps.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.mu.Lock()
			r.clientID = uuid.NewString()
			r.mu.Unlock()
			obslog.L().Warn("store_feed_reset", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(200 * time.Millisecond):
			}
			continue
		}
		var ev Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			obslog.L().Warn("store_event_decode_error", zap.Error(err))
			continue
		}
		r.dispatch(ev)
	}
}

func (r *Redis) dispatch(ev Event) {
	r.mu.RLock()
	cbs := make([]EventCallback, 0, len(r.subs))
	for _, s := range r.subs {
		if s.collection == ev.Collection || s.collection == "*" {
			cbs = append(cbs, s.cb)
		}
	}
	r.mu.RUnlock()
	for _, cb := range cbs {
		cb(ev)
	}
}

func recKey(collection, id string) string {
	return redisKeyPrefix + "rec:" + collection + ":" + strings.TrimSpace(id)
}

func idxKey(collection string) string { return redisKeyPrefix + "idx:" + collection }

func evtChannel(collection string) string { return redisKeyPrefix + "evt:" + collection }

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
