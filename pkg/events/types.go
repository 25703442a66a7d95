// Package events manages WebSocket connections and channel subscriptions
// for frontend observers of the admission layer: permission requests,
// queue updates, and session lifecycle notifications.
package events

import "fmt"

// ClientMessage is a message received from a WebSocket client.
type ClientMessage struct {
	Action  string `json:"action"`            // subscribe | unsubscribe | ping
	Channel string `json:"channel,omitempty"` // required for subscribe/unsubscribe
}

// SessionChannel returns the per-session channel name that carries
// permission events for one agent session.
func SessionChannel(sessionID string) string {
	return fmt.Sprintf("session:%s", sessionID)
}

// QueueChannel carries wait-queue depth updates.
const QueueChannel = "queue"

// KindQueueDepth tags QueueEvent broadcasts.
const KindQueueDepth = "queue.depth"

// QueueEvent is broadcast on QueueChannel whenever the wait-queue depth
// changes.
type QueueEvent struct {
	Kind string `json:"kind"`
	Size int    `json:"size"`
}
