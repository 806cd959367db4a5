package ws

import "time"

// Message is the envelope for all WebSocket messages. Type carries the
// notification topic verbatim (device.state_changed, action.finished, ...)
// and Data the topic's payload.
type Message struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}
