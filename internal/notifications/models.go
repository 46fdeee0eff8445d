package notifications

import "time"

// Message types pushed to subscribers.
const (
	MessageTypeProgress      = "analysis.progress"
	MessageTypeCompleted     = "analysis.completed"
	MessageTypeFailed        = "analysis.failed"
	MessageTypeCreditsIssued = "credits.issued"
	MessageTypeStatus        = "status"
	MessageTypeSubscribe     = "subscribe"
)

// Message is the push notification format. ProjectID is empty for
// messages not tied to a project.
type Message struct {
	Type      string         `json:"type"`
	ProjectID string         `json:"projectId,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// SubscribeRequest is sent by clients to restrict the projects they hear
// about. An empty list subscribes to everything.
type SubscribeRequest struct {
	Type       string   `json:"type"`
	ProjectIDs []string `json:"projectIds"`
}

// Publisher delivers messages to connected clients.
type Publisher interface {
	Publish(msg Message) error
}
