package store

import (
	"fmt"
	"strings"
)

// Filter is a list-query predicate that both evaluates locally and encodes to
// the remote store's filter syntax. A nil Filter matches everything.
type Filter interface {
	Match(Record) bool
	Encode() string
}

// Eq matches records whose field equals v.
func Eq(field string, v any) Filter { return cond{field: field, op: "=", value: v} }

// Ne matches records whose field differs from v.
func Ne(field string, v any) Filter { return cond{field: field, op: "!=", value: v} }

// In matches records whose field equals any of vs.
func In(field string, vs ...any) Filter {
	subs := make([]Filter, 0, len(vs))
	for _, v := range vs {
		subs = append(subs, Eq(field, v))
	}
	return group{op: "||", subs: subs}
}

// And matches records satisfying every sub-filter. Nil entries are skipped.
func And(fs ...Filter) Filter { return group{op: "&&", subs: fs} }

// Or matches records satisfying at least one sub-filter.
func Or(fs ...Filter) Filter { return group{op: "||", subs: fs} }

type cond struct {
	field string
	op    string
	value any
}

func (c cond) Match(r Record) bool {
	eq := equalValues(r[c.field], c.value)
	if c.op == "!=" {
		return !eq
	}
	return eq
}

func (c cond) Encode() string {
	switch v := c.value.(type) {
	case string:
		return fmt.Sprintf("%s %s %q", c.field, c.op, v)
	case bool:
		return fmt.Sprintf("%s %s %t", c.field, c.op, v)
	default:
		return fmt.Sprintf("%s %s %v", c.field, c.op, v)
	}
}

type group struct {
	op   string
	subs []Filter
}

func (g group) Match(r Record) bool {
	matched := false
	for _, f := range g.subs {
		if f == nil {
			continue
		}
		matched = true
		ok := f.Match(r)
		if g.op == "&&" && !ok {
			return false
		}
		if g.op == "||" && ok {
			return true
		}
	}
	if !matched {
		return true
	}
	return g.op == "&&"
}

func (g group) Encode() string {
	parts := make([]string, 0, len(g.subs))
	for _, f := range g.subs {
		if f == nil {
			continue
		}
		parts = append(parts, f.Encode())
	}
	if len(parts) == 0 {
		return ""
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return "(" + strings.Join(parts, " "+g.op+" ") + ")"
}

func equalValues(a, b any) bool {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}
