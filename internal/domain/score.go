// Package domain defines the core interfaces and types for Vigil.
package domain

// Risk level classification shared by the consensus engine, the alert store
// and the claim scorer (which additionally uses MINIMAL).
const (
	RiskMinimal  = "MINIMAL"
	RiskLow      = "LOW"
	RiskMedium   = "MEDIUM"
	RiskHigh     = "HIGH"
	RiskCritical = "CRITICAL"
)

// ScoreResult is the normalized verdict of a single scoring backend.
// Produced once per backend call; never mutated afterwards.
type ScoreResult struct {
	Fraud       bool    `json:"fraud"`
	Confidence  float64 `json:"confidence"`
	Probability float64 `json:"probability"`
	RiskLevel   string  `json:"riskLevel,omitempty"`
}

// FallbackScore is the fail-open result substituted when a backend is
// unreachable or returns a malformed response.
func FallbackScore() ScoreResult {
	return ScoreResult{Fraud: false, Confidence: 0.0, Probability: 0.0}
}

// SecondarySignal is the secondary backend's score plus the consensus
// metadata it carries. AlertTriggered alone decides whether a fraud verdict
// is escalated to a human-reviewable alert.
type SecondarySignal struct {
	Score          ScoreResult `json:"score"`
	ConsensusFraud bool        `json:"consensusFraudDetected"`
	AlertTriggered bool        `json:"alertTriggered"`
}

// ConsensusDecision is the combined verdict over both backends.
// Derived per request, never stored.
type ConsensusDecision struct {
	FinalFraud     bool   `json:"finalFraud"`
	RiskLevel      string `json:"riskLevel"`
	AlertTriggered bool   `json:"alertTriggered"`
}

// ContractData is the contract part of the scoring feature payload.
type ContractData struct {
	ContractID   string  `json:"contractId"`
	ClientID     string  `json:"clientId"`
	Amount       float64 `json:"amount"`
	StartDate    string  `json:"startDate,omitempty"`
	EndDate      string  `json:"endDate,omitempty"`
	TotalPremium float64 `json:"totalPremium,omitempty"`
	MarketValue  float64 `json:"marketValue,omitempty"`
	Liability    float64 `json:"liability,omitempty"`
}

// ClientData is the policyholder part of the scoring feature payload.
type ClientData struct {
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Age       int    `json:"age,omitempty"`
	Address   string `json:"address,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// PredictionRequest is the feature payload sent to both scoring backends.
type PredictionRequest struct {
	ContractData ContractData `json:"contractData"`
	ClientData   ClientData   `json:"clientData"`
}

// Validate checks the minimal required fields and returns the list of
// offending ones. An empty slice means the request is acceptable.
func (r *PredictionRequest) Validate() []string {
	var errs []string
	if r.ContractData.ContractID == "" {
		errs = append(errs, "contractData.contractId is required")
	}
	if r.ContractData.ClientID == "" {
		errs = append(errs, "contractData.clientId is required")
	}
	if r.ContractData.Amount < 0 {
		errs = append(errs, "contractData.amount must not be negative")
	}
	return errs
}
