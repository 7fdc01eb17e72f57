package domain

import "time"

// Entity types a fraud case can point at.
const (
	EntityContract = "CONTRACT"
	EntityClaim    = "CLAIM"
)

// Fraud case statuses.
const (
	CaseStatusOpen     = "OPEN"
	CaseStatusReviewed = "REVIEWED"
	CaseStatusAll      = "ALL" // filter value only, never stored
)

// CaseThreshold is the minimum integer score a case must reach to be
// persisted at all. Scores below it are silently discarded.
const CaseThreshold = 50

// FraudCase is a durable, deduplicated record of an entity whose risk score
// crossed the persistence threshold. Unique per (EntityType, EntityID).
type FraudCase struct {
	ID         int64     `json:"id"`
	EntityType string    `json:"entityType"`
	EntityID   string    `json:"entityId"`
	Score      int       `json:"score"`
	RiskLevel  string    `json:"riskLevel"`
	Reason     string    `json:"reason"`
	Status     string    `json:"status"`
	DetectedAt time.Time `json:"detectedAt"`
}

// CaseRiskLevel derives the case risk band from the integer score.
// Note the bands differ from the claim scorer's fractional bands.
func CaseRiskLevel(score int) string {
	switch {
	case score >= 80:
		return RiskCritical
	case score >= 60:
		return RiskHigh
	default:
		return RiskMedium
	}
}

// CaseFilter narrows a case listing.
type CaseFilter struct {
	EntityType string // exact match, empty for all
	MinScore   int
	Status     string // OPEN, REVIEWED or ALL
}
