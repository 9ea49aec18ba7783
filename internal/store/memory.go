package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Store with a synchronous event feed. It backs the
// offline mode and every coordinator/sync test; test hooks allow injecting
// write failures, silencing the feed (a simulated connectivity gap) and
// replacing the client id (a simulated reconnect).
type Memory struct {
	schema Schema

	mu        sync.RWMutex
	data      map[string]map[string]Record
	subs      map[int]subscription
	nextSubID int
	clientID  string
	silenced  bool
	failures  map[string]error
	now       func() time.Time
}

type subscription struct {
	collection string
	cb         EventCallback
}

func NewMemory(schema Schema) *Memory {
	return &Memory{
		schema:   schema,
		data:     make(map[string]map[string]Record),
		subs:     make(map[int]subscription),
		clientID: uuid.NewString(),
		failures: make(map[string]error),
		now:      time.Now,
	}
}

// FailNext arms a one-shot error for the next matching operation. id may be
// empty to match any record of the collection.
func (m *Memory) FailNext(op, collection, id string, err error) {
	m.mu.Lock()
	m.failures[failKey(op, collection, id)] = err
	m.mu.Unlock()
}

// SetClientID replaces the feed identity, as a transport reconnect would.
func (m *Memory) SetClientID(id string) {
	m.mu.Lock()
	m.clientID = id
	m.mu.Unlock()
}

// Silence suppresses event dispatch while on, simulating a subscriber that is
// disconnected from the feed.
func (m *Memory) Silence(on bool) {
	m.mu.Lock()
	m.silenced = on
	m.mu.Unlock()
}

// Seed inserts records directly, assigning ids and timestamps when absent.
// No events are emitted.
func (m *Memory) Seed(collection string, recs ...Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range recs {
		r := rec.Clone()
		if r.GetString("id") == "" {
			r["id"] = uuid.NewString()
		}
		ts := m.now().UTC().Format(time.RFC3339Nano)
		if r.GetString("created") == "" {
			r["created"] = ts
		}
		if r.GetString("updated") == "" {
			r["updated"] = ts
		}
		m.bucket(collection)[r.ID()] = r
	}
}

func (m *Memory) Create(ctx context.Context, collection string, fields Fields) (Record, error) {
	m.mu.Lock()
	if err := m.takeFailure("create", collection, ""); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	rec := Record{}
	applyPatch(rec, fields)
	if rec.GetString("id") == "" {
		rec["id"] = uuid.NewString()
	}
	ts := m.now().UTC().Format(time.RFC3339Nano)
	rec["created"] = ts
	rec["updated"] = ts
	m.bucket(collection)[rec.ID()] = rec
	m.mu.Unlock()

	m.emit(Event{Action: ActionCreate, Collection: collection, Record: rec.Clone()})
	return rec.Clone(), nil
}

func (m *Memory) Update(ctx context.Context, collection, id string, fields Fields) (Record, error) {
	m.mu.Lock()
	if err := m.takeFailure("update", collection, id); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	cur, ok := m.bucket(collection)[id]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	rec := cur.Clone()
	applyPatch(rec, fields)
	rec["updated"] = m.now().UTC().Format(time.RFC3339Nano)
	m.bucket(collection)[id] = rec
	m.mu.Unlock()

	m.emit(Event{Action: ActionUpdate, Collection: collection, Record: rec.Clone()})
	return rec.Clone(), nil
}

func (m *Memory) GetOne(ctx context.Context, collection, id string, expand ...string) (Record, error) {
	m.mu.RLock()
	cur, ok := m.bucket(collection)[id]
	if !ok {
		m.mu.RUnlock()
		return nil, ErrNotFound
	}
	rec := cur.Clone()
	m.mu.RUnlock()

	resolveExpand(ctx, m, m.schema, collection, rec, expand)
	return rec, nil
}

func (m *Memory) List(ctx context.Context, collection string, q Query) ([]Record, error) {
	m.mu.RLock()
	out := make([]Record, 0)
	for _, rec := range m.bucket(collection) {
		if q.Filter != nil && !q.Filter.Match(rec) {
			continue
		}
		out = append(out, rec.Clone())
	}
	m.mu.RUnlock()

	for _, rec := range out {
		resolveExpand(ctx, m, m.schema, collection, rec, q.Expand)
	}
	sortRecords(out, q.Sort)
	return out, nil
}

func (m *Memory) Delete(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	if err := m.takeFailure("delete", collection, id); err != nil {
		m.mu.Unlock()
		return err
	}
	cur, ok := m.bucket(collection)[id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	delete(m.bucket(collection), id)
	m.mu.Unlock()

	m.emit(Event{Action: ActionDelete, Collection: collection, Record: cur.Clone()})
	return nil
}

func (m *Memory) Subscribe(collection string, cb EventCallback) (func(), error) {
	m.mu.Lock()
	m.nextSubID++
	id := m.nextSubID
	m.subs[id] = subscription{collection: collection, cb: cb}
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}, nil
}

func (m *Memory) UnsubscribeAll() {
	m.mu.Lock()
	m.subs = make(map[int]subscription)
	m.mu.Unlock()
}

func (m *Memory) ClientID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.clientID
}

func (m *Memory) bucket(collection string) map[string]Record {
	b, ok := m.data[collection]
	if !ok {
		b = make(map[string]Record)
		m.data[collection] = b
	}
	return b
}

func (m *Memory) emit(ev Event) {
	m.mu.RLock()
	if m.silenced {
		m.mu.RUnlock()
		return
	}
	cbs := make([]EventCallback, 0, len(m.subs))
	for _, s := range m.subs {
		if s.collection == ev.Collection || s.collection == "*" {
			cbs = append(cbs, s.cb)
		}
	}
	m.mu.RUnlock()
	for _, cb := range cbs {
		cb(ev)
	}
}

// takeFailure consumes an armed failure; caller holds the lock.
func (m *Memory) takeFailure(op, collection, id string) error {
	if id != "" {
		if err, ok := m.failures[failKey(op, collection, id)]; ok {
			delete(m.failures, failKey(op, collection, id))
			return err
		}
	}
	if err, ok := m.failures[failKey(op, collection, "")]; ok {
		delete(m.failures, failKey(op, collection, ""))
		return err
	}
	return nil
}

func failKey(op, collection, id string) string {
	return fmt.Sprintf("%s:%s:%s", op, collection, id)
}
