// Package property resolves typed configuration values against an incoming
// message and a shared context store.
//
// Blind configuration refers to values indirectly: a level can be a fixed
// number, a field of the triggering message, an entry in the flow or global
// context (fed from MQTT), or an environment variable. Conditions compare two
// such values with an operator, and time gates resolve a value to an instant
// with an optional offset.
//
// # Key Types
//
//   - Value: a (type, value) pair as written in configuration
//   - Message: the event message, a map with dotted-path access
//   - Store / MemoryStore: flow and global context values
//   - Resolver: turns a Value into a Go value
//   - Comparator: evaluates an Operator between two values
//   - TimeResolver: turns a TimeSpec into a time.Time (clock text, sun
//     events, epoch milliseconds) and applies offsets
//
// # Thread Safety
//
// MemoryStore is safe for concurrent use. Resolver, Comparator and
// TimeResolver hold no mutable state of their own.
package property
