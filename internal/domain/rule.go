package domain

// ClaimRule is an operator-defined scoring rule evaluated against a claim
// snapshot. The CEL expression must yield a boolean; a true outcome adds
// Weight to the claim's fraud score (still capped at 1.0).
type ClaimRule struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Expression  string  `json:"expression"`
	Weight      float64 `json:"weight"`
	Factor      string  `json:"factor"` // audit description when triggered
	Enabled     bool    `json:"enabled"`
}
