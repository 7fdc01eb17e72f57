package domain

import "time"

// Alert lifecycle statuses. Transitions are not policed: any status may be
// set over any other, matching the permissive lifecycle of the store.
const (
	AlertStatusNew           = "NEW"
	AlertStatusInReview      = "IN_REVIEW"
	AlertStatusResolved      = "RESOLVED"
	AlertStatusFalsePositive = "FALSE_POSITIVE"
)

// Alert is a human-reviewable fraud alert. Held in memory only; ids are
// strictly increasing for the lifetime of the process.
type Alert struct {
	ID               uint64    `json:"id"`
	EntityID         string    `json:"entityId"`
	Timestamp        time.Time `json:"timestamp"`
	Status           string    `json:"status"`
	Priority         string    `json:"priority"`
	FraudProbability float64   `json:"fraudProbability"`
	ReviewedBy       string    `json:"reviewedBy,omitempty"`
	Comments         string    `json:"comments,omitempty"`
	LastUpdated      time.Time `json:"lastUpdated"`
}

// AlertPriority derives the review priority from the fraud probability.
func AlertPriority(probability float64) string {
	switch {
	case probability >= 0.9:
		return RiskCritical
	case probability >= 0.7:
		return RiskHigh
	case probability >= 0.5:
		return RiskMedium
	default:
		return RiskLow
	}
}

// ValidAlertStatus reports whether s is a known lifecycle status.
func ValidAlertStatus(s string) bool {
	switch s {
	case AlertStatusNew, AlertStatusInReview, AlertStatusResolved, AlertStatusFalsePositive:
		return true
	}
	return false
}

// Statistics is a point-in-time snapshot of the alert counters.
// StatusCounts is always recomputed from the live store, never cached.
type Statistics struct {
	TotalTests      int64            `json:"totalTests"`
	FraudsDetected  int64            `json:"fraudsDetected"`
	CriticalAlerts  int64            `json:"criticalAlerts"`
	FalsePositives  int64            `json:"falsePositives"`
	LastUpdate      time.Time        `json:"lastUpdate"`
	StatusCounts    map[string]int64 `json:"statusCounts"`
	RecentAnalyses  int64            `json:"recentAnalyses,omitempty"`
}
