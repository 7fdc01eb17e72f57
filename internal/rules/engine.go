// Package rules provides claim fraud scoring: a deterministic factor scorer
// plus a CEL-Go engine for operator-defined rules.
package rules

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/assurnet/vigil/internal/domain"
)

// Engine is the CEL-based evaluation engine for operator-defined claim rules.
type Engine struct {
	mu         sync.RWMutex
	env        *cel.Env
	compiled   map[string]*CompiledRule
	maxWorkers int
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Rule    *domain.ClaimRule
	Program cel.Program
}

// RuleHit is the outcome of evaluating one rule against a claim snapshot.
type RuleHit struct {
	RuleID    string  `json:"ruleId"`
	Name      string  `json:"name"`
	Triggered bool    `json:"triggered"`
	Weight    float64 `json:"weight"`
	Factor    string  `json:"factor,omitempty"`
	Error     string  `json:"error,omitempty"`
	ProcessMs int64   `json:"processMs"`
}

// NewEngine creates a new claim rule evaluation engine.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	// Create CEL environment with claim variables
	env, err := cel.NewEnv(
		cel.Variable("claim", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("evaluation", cel.DoubleType),
		cel.Variable("settlement", cel.DoubleType),
		cel.Variable("recourse_provision", cel.DoubleType),
		cel.Variable("age_days", cel.IntType),
		cel.Variable("declaration_delay_days", cel.IntType),
		cel.Variable("nature", cel.StringType),
		cel.Variable("adverse_company", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:        env,
		compiled:   make(map[string]*CompiledRule),
		maxWorkers: maxWorkers,
	}, nil
}

// ValidateRule compiles and validates a rule without mutating loaded engine rules.
func (e *Engine) ValidateRule(rule *domain.ClaimRule) error {
	if rule == nil {
		return fmt.Errorf("rule is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(rule)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(rule *domain.ClaimRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(rule)
	if err != nil {
		return err
	}

	e.compiled[rule.ID] = compiled

	return nil
}

// LoadRules compiles and loads multiple rules. Disabled rules are skipped.
func (e *Engine) LoadRules(rules []*domain.ClaimRule) error {
	for _, rule := range rules {
		if rule.Enabled {
			if err := e.LoadRule(rule); err != nil {
				return err
			}
		}
	}
	return nil
}

// EvaluateAll evaluates all loaded rules against a claim in parallel.
func (e *Engine) EvaluateAll(ctx context.Context, claim *domain.Claim) ([]RuleHit, error) {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiled))
	for _, rule := range e.compiled {
		rules = append(rules, rule)
	}
	e.mu.RUnlock()

	if len(rules) == 0 {
		return nil, nil
	}

	activation := activationFor(claim)

	// Parallel evaluation with bounded concurrency
	hits := make([]RuleHit, len(rules))
	var wg sync.WaitGroup
	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range rules {
		wg.Add(1)
		go func(idx int, r *CompiledRule) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			hits[idx] = e.evaluateRule(r, activation)
		}(i, rule)
	}

	wg.Wait()

	return hits, nil
}

func activationFor(claim *domain.Claim) map[string]any {
	return map[string]any{
		"claim": map[string]any{
			"id":          claim.ClaimID,
			"contract_id": claim.ContractID,
			"nature":      claim.Nature,
			"evaluation":  claim.Evaluation,
			"settlement":  claim.Settlement,
		},
		"evaluation":             claim.Evaluation,
		"settlement":             claim.Settlement,
		"recourse_provision":     claim.RecourseProvision,
		"age_days":               claim.AgeDays,
		"declaration_delay_days": claim.DeclarationDelayDays(),
		"nature":                 claim.Nature,
		"adverse_company":        claim.AdverseCompany,
	}
}

func (e *Engine) evaluateRule(rule *CompiledRule, activation map[string]any) RuleHit {
	start := time.Now()

	hit := RuleHit{
		RuleID: rule.Rule.ID,
		Name:   rule.Rule.Name,
		Weight: rule.Rule.Weight,
	}

	out, _, err := rule.Program.Eval(activation)
	if err != nil {
		hit.Error = fmt.Sprintf("evaluation error: %v", err)
		hit.ProcessMs = time.Since(start).Milliseconds()
		return hit
	}

	if b, ok := out.(types.Bool); ok && bool(b) {
		hit.Triggered = true
		hit.Factor = rule.Rule.Factor
		if hit.Factor == "" {
			hit.Factor = rule.Rule.Name
		}
	}
	hit.ProcessMs = time.Since(start).Milliseconds()

	return hit
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiled)
}

// ReloadRules clears all existing rules and loads new ones.
// This enables hot-reloading of rules from the database.
func (e *Engine) ReloadRules(rules []*domain.ClaimRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := make(map[string]*CompiledRule)

	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}

		compiled, err := e.compileRule(rule)
		if err != nil {
			return err
		}
		next[rule.ID] = compiled
	}

	e.compiled = next

	return nil
}

// GetLoadedRules returns the currently loaded rules.
func (e *Engine) GetLoadedRules() []*domain.ClaimRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.ClaimRule, 0, len(e.compiled))
	for _, compiled := range e.compiled {
		rules = append(rules, compiled.Rule)
	}
	return rules
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiled = make(map[string]*CompiledRule)
	return nil
}

func (e *Engine) compileRule(rule *domain.ClaimRule) (*CompiledRule, error) {
	ast, issues := e.env.Compile(rule.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", rule.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", rule.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", rule.ID, err)
	}

	return &CompiledRule{
		Rule:    rule,
		Program: program,
	}, nil
}
