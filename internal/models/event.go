package models

import "time"

type EventType string

const (
	EventEnqueued     EventType = "enqueued"
	EventCancelled    EventType = "cancelled"
	EventEvicted      EventType = "evicted" // Dropped after waiting longer than the queue allows
	EventMatched      EventType = "matched"
	EventAcknowledged EventType = "acknowledged"
	EventReady        EventType = "ready"
	EventExpired      EventType = "expired"
)

// Event records one matchmaking state change. Seq is assigned inside the
// critical section that made the change, so sorting by Seq reproduces the
// order in which the changes happened.
type Event struct {
	Seq      uint64      `json:"seq" bson:"seq"`
	Type     EventType   `json:"type" bson:"type"`
	Mode     GameMode    `json:"mode" bson:"mode"`
	Entry    *QueueEntry `json:"entry,omitempty" bson:"entry,omitempty"`
	Match    *Match      `json:"match,omitempty" bson:"match,omitempty"`
	PlayerID string      `json:"playerId,omitempty" bson:"playerId,omitempty"`
	At       time.Time   `json:"at" bson:"at"`
}
