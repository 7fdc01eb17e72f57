package domain

import "time"

// Notification topics consumed by real-time subscribers.
const (
	TopicFraudAlerts    = "fraud-alerts"
	TopicAlertUpdates   = "alert-updates"
	TopicStatistics     = "fraud-statistics"
	TopicNotifications  = "notifications"
	TopicClaimSubmitted = "claim-submitted"
)

// Notification is the payload published to the notification topics.
type Notification struct {
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Priority  string         `json:"priority"`
	ActionURL string         `json:"actionUrl,omitempty"`
}
