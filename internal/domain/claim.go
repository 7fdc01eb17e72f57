package domain

import "time"

// Claim natures relevant to the scorer.
const (
	ClaimNatureBodily   = "CORPOREL"
	ClaimNatureMaterial = "MATERIEL"
)

// AdverseUnknown marks an adverse party recorded as unknown.
const AdverseUnknown = "UNKNOWN"

// Claim is the snapshot of a claim record fed to the rule-based scorer.
type Claim struct {
	ClaimID           string    `json:"claimId"`
	ContractID        string    `json:"contractId,omitempty"`
	Nature            string    `json:"nature,omitempty"`
	OccurredAt        time.Time `json:"occurredAt,omitempty"`
	DeclaredAt        time.Time `json:"declaredAt,omitempty"`
	AgeDays           int       `json:"ageDays"`
	Evaluation        float64   `json:"evaluation"`
	Settlement        float64   `json:"settlement"`
	RecourseProvision float64   `json:"recourseProvision"`
	AdverseCompany    string    `json:"adverseCompany,omitempty"`
}

// DeclarationDelayDays is the number of whole days between occurrence and
// declaration, or zero when either date is missing.
func (c *Claim) DeclarationDelayDays() int {
	if c.OccurredAt.IsZero() || c.DeclaredAt.IsZero() {
		return 0
	}
	return int(c.DeclaredAt.Sub(c.OccurredAt).Hours() / 24)
}

// Validate returns the list of offending fields, empty when acceptable.
func (c *Claim) Validate() []string {
	var errs []string
	if c.ClaimID == "" {
		errs = append(errs, "claimId is required")
	}
	if c.Evaluation < 0 {
		errs = append(errs, "evaluation must not be negative")
	}
	if c.Settlement < 0 {
		errs = append(errs, "settlement must not be negative")
	}
	return errs
}

// ClaimAssessment is the output of the rule-based claim scorer.
// Reproducible bit-for-bit from the same claim snapshot.
type ClaimAssessment struct {
	Score     float64  `json:"score"` // capped at 1.0
	RiskLevel string   `json:"riskLevel"`
	Reason    string   `json:"reason"`
	Factors   []string `json:"factors"`
}
