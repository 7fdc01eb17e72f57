package rules

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/assurnet/vigil/internal/domain"
)

func TestAssessNoFactors(t *testing.T) {
	scorer := NewScorer(nil, nil)

	claim := &domain.Claim{
		ClaimID:        "CLM-001",
		Nature:         domain.ClaimNatureMaterial,
		AgeDays:        120,
		Evaluation:     5000,
		Settlement:     4000,
		AdverseCompany: "AXA",
	}

	got := scorer.Assess(context.Background(), claim)
	if got.Score != 0 {
		t.Errorf("expected score 0, got %f", got.Score)
	}
	if got.RiskLevel != domain.RiskMinimal {
		t.Errorf("expected MINIMAL, got %s", got.RiskLevel)
	}
	if got.Reason != "normal profile - no anomaly detected" {
		t.Errorf("unexpected reason: %q", got.Reason)
	}
	if len(got.Factors) != 1 || got.Factors[0] != "standard profile - no major risk factor" {
		t.Errorf("expected single placeholder factor, got %v", got.Factors)
	}
}

func TestAssessReasonFollowsBand(t *testing.T) {
	scorer := NewScorer(nil, nil)

	tests := []struct {
		name       string
		claim      domain.Claim
		wantReason string
	}{
		{
			name:       "medium band",
			claim:      domain.Claim{ClaimID: "CLM-R1", Evaluation: 60000, AdverseCompany: domain.AdverseUnknown}, // 0.45
			wantReason: "anomalies detected - heightened monitoring advised",
		},
		{
			name: "critical band",
			claim: domain.Claim{ // 0.30+0.25+0.15+0.15 = 0.85
				ClaimID:    "CLM-R2",
				Nature:     domain.ClaimNatureBodily,
				AgeDays:    2,
				Evaluation: 60000,
			},
			wantReason: "multiple fraud indicators detected - urgent verification required",
		},
		{
			name:       "minimal band",
			claim:      domain.Claim{ClaimID: "CLM-R3", Evaluation: 1000, AdverseCompany: "AXA"},
			wantReason: "normal profile - no anomaly detected",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scorer.Assess(context.Background(), &tt.claim)
			if got.Reason != tt.wantReason {
				t.Errorf("reason = %q, want %q", got.Reason, tt.wantReason)
			}
		})
	}
}

func TestAssessHighEvaluationAndLateDeclaration(t *testing.T) {
	scorer := NewScorer(nil, nil)

	occurred := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	claim := &domain.Claim{
		ClaimID:        "CLM-002",
		Nature:         domain.ClaimNatureMaterial,
		AgeDays:        365,
		Evaluation:     60000,
		OccurredAt:     occurred,
		DeclaredAt:     occurred.AddDate(0, 0, 40),
		AdverseCompany: "MAIF",
	}

	got := scorer.Assess(context.Background(), claim)
	if got.Score != 0.5 {
		t.Errorf("expected score 0.5, got %f", got.Score)
	}
	if got.RiskLevel != domain.RiskMedium {
		t.Errorf("expected MEDIUM, got %s", got.RiskLevel)
	}
	if len(got.Factors) != 2 {
		t.Errorf("expected 2 factors, got %v", got.Factors)
	}
}

func TestAssessBandBoundariesExclusive(t *testing.T) {
	scorer := NewScorer(nil, nil)

	// bodily injury over 30k plus early large claim: exactly 0.40
	claim := &domain.Claim{
		ClaimID:        "CLM-003",
		Nature:         domain.ClaimNatureBodily,
		AgeDays:        3,
		Evaluation:     35000,
		AdverseCompany: "AXA",
	}

	got := scorer.Assess(context.Background(), claim)
	if got.Score != 0.4 {
		t.Fatalf("expected score 0.4, got %f", got.Score)
	}
	if got.RiskLevel != domain.RiskLow {
		t.Errorf("score of exactly 0.4 should be LOW, got %s", got.RiskLevel)
	}
}

func TestAssessCappedAtOne(t *testing.T) {
	scorer := NewScorer(nil, nil)

	occurred := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	claim := &domain.Claim{
		ClaimID:           "CLM-004",
		Nature:            domain.ClaimNatureBodily,
		AgeDays:           2,
		Evaluation:        100000,
		Settlement:        130000,
		RecourseProvision: 20000,
		OccurredAt:        occurred,
		DeclaredAt:        occurred.AddDate(0, 0, 60),
		AdverseCompany:    "",
	}

	got := scorer.Assess(context.Background(), claim)
	if got.Score != 1.0 {
		t.Errorf("expected capped score 1.0, got %f", got.Score)
	}
	if got.RiskLevel != domain.RiskCritical {
		t.Errorf("expected CRITICAL, got %s", got.RiskLevel)
	}
	if len(got.Factors) != 7 {
		t.Errorf("expected all 7 factors, got %v", got.Factors)
	}
}

func TestAssessUnknownAdverseVariants(t *testing.T) {
	scorer := NewScorer(nil, nil)

	for _, adverse := range []string{"", "   ", "UNKNOWN", "unknown"} {
		claim := &domain.Claim{
			ClaimID:        "CLM-005",
			AgeDays:        200,
			Evaluation:     1000,
			AdverseCompany: adverse,
		}
		got := scorer.Assess(context.Background(), claim)
		if got.Score != 0.15 {
			t.Errorf("adverse %q: expected 0.15, got %f", adverse, got.Score)
		}
	}

	claim := &domain.Claim{
		ClaimID:        "CLM-006",
		AgeDays:        200,
		Evaluation:     1000,
		AdverseCompany: "GMF",
	}
	if got := scorer.Assess(context.Background(), claim); got.Score != 0 {
		t.Errorf("named adverse party should not score, got %f", got.Score)
	}
}

func TestAssessDeterministic(t *testing.T) {
	scorer := NewScorer(nil, nil)

	occurred := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	claim := &domain.Claim{
		ClaimID:           "CLM-007",
		Nature:            domain.ClaimNatureBodily,
		AgeDays:           5,
		Evaluation:        55000,
		Settlement:        70000,
		RecourseProvision: 16000,
		OccurredAt:        occurred,
		DeclaredAt:        occurred.AddDate(0, 0, 45),
		AdverseCompany:    domain.AdverseUnknown,
	}

	first := scorer.Assess(context.Background(), claim)
	for i := 0; i < 10; i++ {
		again := scorer.Assess(context.Background(), claim)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("assessment not deterministic: %+v vs %+v", first, again)
		}
	}
}

func TestAssessWithCustomRules(t *testing.T) {
	engine, err := NewEngine(5)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	defer engine.Close()

	rule := &domain.ClaimRule{
		ID:         "round-settlement",
		Name:       "Round Settlement",
		Expression: "settlement > 0.0 && int(settlement) % 1000 == 0",
		Weight:     0.1,
		Factor:     "suspiciously round settlement",
		Enabled:    true,
	}
	if err := engine.LoadRule(rule); err != nil {
		t.Fatalf("load: %v", err)
	}

	scorer := NewScorer(engine, nil)
	claim := &domain.Claim{
		ClaimID:        "CLM-008",
		AgeDays:        90,
		Evaluation:     9000,
		Settlement:     8000,
		AdverseCompany: "AXA",
	}

	got := scorer.Assess(context.Background(), claim)
	if got.Score != 0.1 {
		t.Errorf("expected custom rule weight 0.1, got %f", got.Score)
	}
	if len(got.Factors) != 1 || got.Factors[0] != "suspiciously round settlement" {
		t.Errorf("unexpected factors: %v", got.Factors)
	}
}
