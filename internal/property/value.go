package property

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Type identifies where a Value comes from.
type Type string

// Value types.
const (
	TypeNone   Type = "none"
	TypeNum    Type = "num"
	TypeStr    Type = "str"
	TypeBool   Type = "bool"
	TypeJSON   Type = "json"
	TypeMsg    Type = "msg"
	TypeFlow   Type = "flow"
	TypeGlobal Type = "global"
	TypeEnv    Type = "env"
)

// Value is a typed reference as written in configuration, for example
// {type: msg, value: payload.temperature} or {type: num, value: "21.5"}.
type Value struct {
	Type  Type   `yaml:"type" json:"type"`
	Value string `yaml:"value" json:"value"`
}

// Num is a shorthand for a numeric Value.
func Num(v float64) Value {
	return Value{Type: TypeNum, Value: strconv.FormatFloat(v, 'f', -1, 64)}
}

// IsEmpty reports whether the value has no type or type none.
func (v Value) IsEmpty() bool {
	return v.Type == "" || v.Type == TypeNone
}

// String renders the value for logs and status texts.
func (v Value) String() string {
	if v.IsEmpty() {
		return string(TypeNone)
	}
	return string(v.Type) + "." + v.Value
}

// Scope selects a context store namespace.
type Scope string

// Context scopes.
const (
	ScopeFlow   Scope = "flow"
	ScopeGlobal Scope = "global"
)

// Store reads context values.
type Store interface {
	// Get returns the value stored under key in scope.
	Get(scope Scope, key string) (any, bool)
}

// Resolver turns typed values into Go values.
type Resolver struct {
	store  Store
	lookup func(string) (string, bool)
}

// NewResolver creates a Resolver reading context values from store.
// A nil store behaves like an empty one.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store, lookup: os.LookupEnv}
}

// Resolve returns the Go value referenced by v.
//
// Parameters:
//   - v: the typed reference
//   - msg: the message of the current event (used by TypeMsg)
//
// Returns:
//   - any: float64 for num, string for str/env, bool for bool, decoded JSON
//     for json, the stored value otherwise
//   - error: ErrNoValue, ErrNotFound, ErrNotNumeric or ErrUnknownType
func (r *Resolver) Resolve(v Value, msg Message) (any, error) {
	switch v.Type {
	case "", TypeNone:
		return nil, ErrNoValue
	case TypeNum:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Value), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrNotNumeric, v.Value)
		}
		return f, nil
	case TypeStr:
		return v.Value, nil
	case TypeBool:
		return IsTrue(v.Value), nil
	case TypeJSON:
		var out any
		if err := json.Unmarshal([]byte(v.Value), &out); err != nil {
			return nil, fmt.Errorf("decoding json value: %w", err)
		}
		return out, nil
	case TypeMsg:
		val, ok := msg.Get(v.Value)
		if !ok {
			return nil, fmt.Errorf("%w: msg.%s", ErrNotFound, v.Value)
		}
		return val, nil
	case TypeFlow, TypeGlobal:
		if r.store == nil {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, v)
		}
		val, ok := r.store.Get(Scope(v.Type), v.Value)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, v)
		}
		return val, nil
	case TypeEnv:
		val, ok := r.lookup(v.Value)
		if !ok {
			return nil, fmt.Errorf("%w: env.%s", ErrNotFound, v.Value)
		}
		return val, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, v.Type)
	}
}

// ResolveFloat resolves v and converts the result to a number.
func (r *Resolver) ResolveFloat(v Value, msg Message) (float64, error) {
	val, err := r.Resolve(v, msg)
	if err != nil {
		return 0, err
	}
	f, ok := ToFloat(val)
	if !ok {
		return 0, fmt.Errorf("%w: %s = %v", ErrNotNumeric, v, val)
	}
	return f, nil
}
