package rules

import (
	"context"
	"log/slog"
	"math"
	"strings"

	"github.com/assurnet/vigil/internal/domain"
)

// Factor weights for the built-in claim scorer. The scorer is intentionally
// deterministic: the same claim snapshot always produces the same assessment.
const (
	weightHighEvaluation   = 0.30
	weightLateDeclaration  = 0.20
	weightBodilyHighValue  = 0.25
	weightEarlyClaim       = 0.15
	weightInflatedSettle   = 0.20
	weightUnknownAdversary = 0.15
	weightHighRecourse     = 0.10
)

// Thresholds paired with the weights above.
const (
	highEvaluationFloor  = 50000.0
	lateDeclarationDays  = 30
	bodilyValueFloor     = 30000.0
	earlyClaimMaxAgeDays = 7
	earlyClaimValueFloor = 20000.0
	settlementInflation  = 1.2
	highRecourseFloor    = 15000.0
)

// Scorer computes claim fraud assessments from the built-in factors plus any
// operator-defined rules loaded into the engine.
type Scorer struct {
	engine *Engine
	logger *slog.Logger
}

// NewScorer creates a claim scorer. The engine may be nil when no custom
// rules are configured.
func NewScorer(engine *Engine, logger *slog.Logger) *Scorer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scorer{engine: engine, logger: logger}
}

// Assess scores a claim snapshot. Custom rule evaluation errors never fail
// the assessment; the offending rule simply contributes nothing.
func (s *Scorer) Assess(ctx context.Context, claim *domain.Claim) domain.ClaimAssessment {
	score, factors := builtinFactors(claim)

	if s.engine != nil && s.engine.RulesCount() > 0 {
		hits, err := s.engine.EvaluateAll(ctx, claim)
		if err != nil {
			s.logger.Warn("custom rule evaluation failed",
				"claimId", claim.ClaimID,
				"error", err)
		}
		for _, hit := range hits {
			if hit.Error != "" {
				s.logger.Warn("custom rule error",
					"ruleId", hit.RuleID,
					"claimId", claim.ClaimID,
					"error", hit.Error)
				continue
			}
			if hit.Triggered {
				score += hit.Weight
				factors = append(factors, hit.Factor)
			}
		}
	}

	score = math.Min(score, 1.0)

	// The audit trail always carries at least one entry.
	if len(factors) == 0 {
		factors = []string{"standard profile - no major risk factor"}
	}

	return domain.ClaimAssessment{
		Score:     score,
		RiskLevel: scoreRiskLevel(score),
		Reason:    scoreReason(score),
		Factors:   factors,
	}
}

func builtinFactors(claim *domain.Claim) (float64, []string) {
	var score float64
	var factors []string

	if claim.Evaluation > highEvaluationFloor {
		score += weightHighEvaluation
		factors = append(factors, "high evaluation amount")
	}

	if claim.DeclarationDelayDays() > lateDeclarationDays {
		score += weightLateDeclaration
		factors = append(factors, "late declaration")
	}

	if claim.Nature == domain.ClaimNatureBodily && claim.Evaluation > bodilyValueFloor {
		score += weightBodilyHighValue
		factors = append(factors, "high-value bodily injury claim")
	}

	if claim.AgeDays < earlyClaimMaxAgeDays && claim.Evaluation > earlyClaimValueFloor {
		score += weightEarlyClaim
		factors = append(factors, "large claim shortly after contract start")
	}

	if claim.Settlement > settlementInflation*claim.Evaluation {
		score += weightInflatedSettle
		factors = append(factors, "settlement exceeds evaluation")
	}

	if adverseUnknown(claim.AdverseCompany) {
		score += weightUnknownAdversary
		factors = append(factors, "adverse party unknown")
	}

	if claim.RecourseProvision > highRecourseFloor {
		score += weightHighRecourse
		factors = append(factors, "high recourse provision")
	}

	return score, factors
}

func adverseUnknown(company string) bool {
	trimmed := strings.TrimSpace(company)
	return trimmed == "" || strings.EqualFold(trimmed, domain.AdverseUnknown)
}

// scoreReason renders the reviewer-facing summary for a risk band, using
// the same exclusive boundaries as the bands themselves.
func scoreReason(score float64) string {
	switch {
	case score > 0.8:
		return "multiple fraud indicators detected - urgent verification required"
	case score > 0.6:
		return "significant fraud indicators - investigation recommended"
	case score > 0.4:
		return "anomalies detected - heightened monitoring advised"
	case score > 0.2:
		return "minor risk indicators - standard follow-up"
	default:
		return "normal profile - no anomaly detected"
	}
}

// scoreRiskLevel maps a capped score to its risk band. Boundaries are
// exclusive: a score of exactly 0.4 is LOW, not MEDIUM.
func scoreRiskLevel(score float64) string {
	switch {
	case score > 0.8:
		return domain.RiskCritical
	case score > 0.6:
		return domain.RiskHigh
	case score > 0.4:
		return domain.RiskMedium
	case score > 0.2:
		return domain.RiskLow
	default:
		return domain.RiskMinimal
	}
}
