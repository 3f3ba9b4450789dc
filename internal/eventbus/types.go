// Package eventbus fans typed events out to topic-subscribed clients
// (§4.H): a fixed topic namespace, per-subscriber bounded buffers, a
// Dropped event recorded against any subscriber whose buffer fills, and a
// 30s idle heartbeat so a long-lived consumer (internal/httpapi's
// websocket surface) can detect a half-open connection. Grounded in shape
// on cuemby-warren/pkg/events's Broker (registered there as
// pkg/manager/manager.go's GetEventBroker/PublishEvent), generalized from
// "one global channel, every subscriber gets everything" to per-topic
// routing with bounded per-subscriber channels and drop accounting.
package eventbus

import "time"

// Topic is one of the fixed names this bus routes on.
type Topic string

const (
	TopicVMStatus      Topic = "vm:status"
	TopicVMMetrics     Topic = "vm:metrics"
	TopicNodeMetrics   Topic = "node:metrics"
	TopicBackups       Topic = "backups"
	TopicMigrations    Topic = "migrations"
	TopicAlerts        Topic = "alerts"
	TopicNotifications Topic = "notifications"
	TopicK8s           Topic = "k8s:*"
	TopicHelm          Topic = "helm:*"
)

// Kind distinguishes an ordinary published event from bus-internal
// bookkeeping delivered on the same channel (Dropped, Heartbeat).
type Kind string

const (
	KindEvent     Kind = "Event"
	KindDropped   Kind = "Dropped"
	KindHeartbeat Kind = "Heartbeat"
)

// Event is one message flowing through the bus.
type Event struct {
	Kind    Kind
	Topic   Topic
	At      time.Time
	Payload any
	Reason  string // set only on Kind == KindDropped
}

func allTopics() []Topic {
	return []Topic{
		TopicVMStatus, TopicVMMetrics, TopicNodeMetrics, TopicBackups,
		TopicMigrations, TopicAlerts, TopicNotifications, TopicK8s, TopicHelm,
	}
}

func validTopic(t Topic) bool {
	for _, v := range allTopics() {
		if v == t {
			return true
		}
	}
	return false
}
