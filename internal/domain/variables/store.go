// Package variables provides the scoped key/value overlay used by flow
// sessions. Values live in one of three scopes (session, user, global) and
// unscoped reads merge them in that order. The package is pure data
// manipulation; persistence of each scope belongs to the storage service.
package variables

import (
	"fmt"
	"strconv"
)

// Scope is the lifetime/visibility tier of a variable.
type Scope string

const (
	ScopeSession Scope = "session" // cleared when the session ends
	ScopeUser    Scope = "user"    // survives across sessions for a participant+bot
	ScopeGlobal  Scope = "global"  // shared bot-wide
)

// DefaultScope is used when a node config names no scope.
const DefaultScope = ScopeSession

// lookupOrder is the merge order for unscoped reads.
var lookupOrder = []Scope{ScopeSession, ScopeUser, ScopeGlobal}

// Op is a variable mutation operation.
type Op string

const (
	OpSet       Op = "set"
	OpAppend    Op = "append"
	OpPrepend   Op = "prepend"
	OpIncrement Op = "increment"
	OpDecrement Op = "decrement"
)

// Bag holds all variable scopes for one session.
type Bag map[Scope]map[string]any

// NewBag creates an empty bag with all scopes initialized.
func NewBag() Bag {
	return Bag{
		ScopeSession: make(map[string]any),
		ScopeUser:    make(map[string]any),
		ScopeGlobal:  make(map[string]any),
	}
}

// Mutation describes one write against a bag.
type Mutation struct {
	Scope Scope  `json:"scope"`
	Key   string `json:"key"`
	Op    Op     `json:"op"`
	Value any    `json:"value"`
}

// Resolve performs an unscoped read: session, then user, then global.
func Resolve(bag Bag, key string) (any, bool) {
	for _, scope := range lookupOrder {
		if values, ok := bag[scope]; ok {
			if v, found := values[key]; found {
				return v, true
			}
		}
	}
	return nil, false
}

// ResolveScoped reads a key from one scope only.
func ResolveScoped(bag Bag, scope Scope, key string) (any, bool) {
	values, ok := bag[scope]
	if !ok {
		return nil, false
	}
	v, found := values[key]
	return v, found
}

// ResolveString is Resolve with string coercion for rendering.
func ResolveString(bag Bag, key string) (string, bool) {
	v, found := Resolve(bag, key)
	if !found {
		return "", false
	}
	return Stringify(v), true
}

// Apply executes a mutation against the bag. Writes always target the
// mutation's scope; an empty scope falls back to DefaultScope.
func Apply(bag Bag, m Mutation) {
	scope := m.Scope
	if scope == "" {
		scope = DefaultScope
	}
	values, ok := bag[scope]
	if !ok {
		values = make(map[string]any)
		bag[scope] = values
	}

	switch m.Op {
	case OpSet, "":
		values[m.Key] = m.Value
	case OpAppend:
		values[m.Key] = Stringify(values[m.Key]) + Stringify(m.Value)
	case OpPrepend:
		values[m.Key] = Stringify(m.Value) + Stringify(values[m.Key])
	case OpIncrement:
		values[m.Key] = Numeric(values[m.Key]) + Numeric(m.Value)
	case OpDecrement:
		values[m.Key] = Numeric(values[m.Key]) - Numeric(m.Value)
	}
}

// Stringify renders any stored value for templating and concatenation.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// Numeric coerces a value for increment/decrement. Non-numeric prior
// values coerce to 0.
func Numeric(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case string:
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
		return 0
	default:
		return 0
	}
}

// Clone deep-copies a bag (values are copied shallowly; stored values are
// treated as immutable by the engine).
func Clone(bag Bag) Bag {
	out := make(Bag, len(bag))
	for scope, values := range bag {
		copied := make(map[string]any, len(values))
		for k, v := range values {
			copied[k] = v
		}
		out[scope] = copied
	}
	return out
}
