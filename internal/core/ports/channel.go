package ports

import "encoding/json"

// EventHandler receives the raw payload of one relay event. Handlers for a
// given channel are invoked serially from a single dispatch loop.
type EventHandler func(payload json.RawMessage)

// RealtimeChannel is the persistent bidirectional event channel to the
// coordination relay. One instance per client process, shared by the
// document sync and call signaling sessions; both only ever call Send and
// register On handlers.
type RealtimeChannel interface {
	Send(event string, payload interface{}) error
	On(event string, handler EventHandler)
	Close() error
}
