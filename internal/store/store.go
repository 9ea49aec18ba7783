package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound is returned when a record id does not exist in a collection.
var ErrNotFound = errors.New("record not found")

// Action identifies the kind of change carried by a feed event.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Record is one stored row: a flat field map with "id", "created" and
// "updated" maintained by the store. Expanded relations, when requested,
// appear under the "expand" key as nested Records.
type Record map[string]any

// Fields is a create/update payload. Update keys may carry a trailing "+" or
// "-" to request a relative numeric change, e.g. Fields{"points+": 10}.
type Fields map[string]any

// Inc adds a relative increment entry to the patch.
func (f Fields) Inc(field string, n int) Fields {
	f[field+"+"] = n
	return f
}

// Dec adds a relative decrement entry to the patch.
func (f Fields) Dec(field string, n int) Fields {
	f[field+"-"] = n
	return f
}

// Event is one entry of a collection change feed.
type Event struct {
	Action     Action `json:"action"`
	Collection string `json:"collection"`
	Record     Record `json:"record"`
}

// EventCallback receives feed events. Callbacks run on the store's dispatch
// goroutine and must not block.
type EventCallback func(Event)

// Query shapes a List call.
type Query struct {
	Filter Filter
	Sort   string   // field name, "-" prefix for descending
	Expand []string // relation fields to inline under "expand"
}

// Schema declares relation fields so local backends can resolve expand
// requests: collection -> field -> target collection.
type Schema map[string]map[string]string

// Store is the record-store contract every backend implements. Updates are
// last-write-wins; callers re-validate state immediately before mutating.
type Store interface {
	Create(ctx context.Context, collection string, fields Fields) (Record, error)
	Update(ctx context.Context, collection, id string, fields Fields) (Record, error)
	GetOne(ctx context.Context, collection, id string, expand ...string) (Record, error)
	List(ctx context.Context, collection string, q Query) ([]Record, error)
	Delete(ctx context.Context, collection, id string) error

	// Subscribe registers cb for the collection's change feed and returns an
	// unsubscribe func.
	Subscribe(collection string, cb EventCallback) (func(), error)
	UnsubscribeAll()

	// ClientID is the feed connection identity. A changed value means the
	// transport was replaced and events may have been missed.
	ClientID() string
}

func (r Record) ID() string { return r.GetString("id") }

func (r Record) GetString(key string) string {
	if v, ok := r[key].(string); ok {
		return v
	}
	return ""
}

func (r Record) GetInt(key string) int {
	n, _ := asInt(r[key])
	return n
}

func (r Record) GetBool(key string) bool {
	b, _ := r[key].(bool)
	return b
}

func (r Record) GetTime(key string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, r.GetString(key))
	if err != nil {
		return time.Time{}
	}
	return t
}

// GetStringSlice reads a string array field. JSON null entries map to "".
func (r Record) GetStringSlice(key string) []string {
	switch v := r[key].(type) {
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out
	case []any:
		out := make([]string, len(v))
		for i, e := range v {
			if s, ok := e.(string); ok {
				out[i] = s
			}
		}
		return out
	}
	return nil
}

// Expanded returns the expanded relation record for field, if present.
func (r Record) Expanded(field string) Record {
	exp, ok := r["expand"].(map[string]any)
	if !ok {
		if e2, ok2 := r["expand"].(Record); ok2 {
			exp = map[string]any(e2)
		} else {
			return nil
		}
	}
	switch v := exp[field].(type) {
	case Record:
		return v
	case map[string]any:
		return Record(v)
	}
	return nil
}

// Clone copies the record one level deep, including slice fields, so callers
// can mutate the copy freely.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		switch vv := v.(type) {
		case []any:
			c := make([]any, len(vv))
			copy(c, vv)
			out[k] = c
		case []string:
			c := make([]string, len(vv))
			copy(c, vv)
			out[k] = c
		default:
			out[k] = v
		}
	}
	return out
}

// applyPatch mutates rec with fields, honouring "+"/"-" suffixed keys as
// relative numeric updates. Shared by the memory and redis backends.
func applyPatch(rec Record, fields Fields) {
	for k, v := range fields {
		if f, ok := strings.CutSuffix(k, "+"); ok && f != "" {
			if d, isNum := asInt(v); isNum {
				cur, _ := asInt(rec[f])
				rec[f] = cur + d
				continue
			}
		}
		if f, ok := strings.CutSuffix(k, "-"); ok && f != "" {
			if d, isNum := asInt(v); isNum {
				cur, _ := asInt(rec[f])
				rec[f] = cur - d
				continue
			}
		}
		rec[k] = v
	}
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case float32:
		return int(n), true
	case string:
		if i, err := strconv.Atoi(n); err == nil {
			return i, true
		}
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}

// sortRecords orders recs in place by the sort spec ("field" or "-field").
// Numeric fields compare numerically, everything else as strings; RFC3339
// timestamps therefore order correctly.
func sortRecords(recs []Record, spec string) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return
	}
	desc := false
	if strings.HasPrefix(spec, "-") {
		desc = true
		spec = spec[1:]
	}
	less := func(a, b Record) bool {
		av, bv := a[spec], b[spec]
		if af, aok := asFloat(av); aok {
			if bf, bok := asFloat(bv); bok {
				return af < bf
			}
		}
		return fmt.Sprint(av) < fmt.Sprint(bv)
	}
	sort.Slice(recs, func(i, j int) bool {
		if desc {
			return less(recs[j], recs[i])
		}
		return less(recs[i], recs[j])
	})
}

// resolveExpand inlines requested relation records using the schema. Missing
// targets are skipped rather than failing the read.
func resolveExpand(ctx context.Context, s Store, schema Schema, collection string, rec Record, expand []string) {
	if len(expand) == 0 || rec == nil {
		return
	}
	rels := schema[collection]
	if rels == nil {
		return
	}
	exp := make(map[string]any)
	for _, field := range expand {
		target, ok := rels[field]
		if !ok {
			continue
		}
		id := rec.GetString(field)
		if id == "" {
			continue
		}
		ref, err := s.GetOne(ctx, target, id)
		if err != nil {
			continue
		}
		exp[field] = ref
	}
	if len(exp) > 0 {
		rec["expand"] = exp
	}
}
