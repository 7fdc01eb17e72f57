package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/assurnet/vigil/internal/alerts"
	"github.com/assurnet/vigil/internal/consensus"
	"github.com/assurnet/vigil/internal/domain"
	"github.com/assurnet/vigil/internal/notify"
	"github.com/assurnet/vigil/internal/repository"
	"github.com/assurnet/vigil/internal/rules"
	"github.com/assurnet/vigil/internal/scoring"
)

// analysesWindow is the rolling window behind the recentAnalyses statistic.
const analysesWindow = time.Hour

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	alerts    *alerts.Store
	scoring   *scoring.Client
	consensus *consensus.Engine
	claims    *rules.Scorer
	engine    *rules.Engine
	publisher *notify.Publisher
	version   string

	// last observed value of the windowed analyses counter
	recentAnalyses atomic.Int64
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, store *alerts.Store, scorer *scoring.Client, engine *consensus.Engine, claims *rules.Scorer, ruleEngine *rules.Engine, publisher *notify.Publisher, version string) *Handler {
	return &Handler{
		repo:      repo,
		cache:     cache,
		bus:       bus,
		alerts:    store,
		scoring:   scorer,
		consensus: engine,
		claims:    claims,
		engine:    ruleEngine,
		publisher: publisher,
		version:   version,
	}
}

// PredictResponse is the response for POST /api/v1/fraud/predict.
type PredictResponse struct {
	FraudDetected    bool          `json:"fraudDetected"`
	ConsensusFraud   bool          `json:"consensusFraudDetected"`
	RiskLevel        string        `json:"riskLevel"`
	FraudProbability float64       `json:"fraudProbability"`
	Confidence       float64       `json:"confidence"`
	AlertTriggered   bool          `json:"alertTriggered"`
	Alert            *domain.Alert `json:"alert,omitempty"`
	Metadata         struct {
		TraceID string `json:"traceId"`
		TotalMs int64  `json:"totalMs"`
		Version string `json:"version"`
	} `json:"metadata"`
}

// Predict handles POST /api/v1/fraud/predict requests.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	var req domain.PredictionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":  "validation failed",
			"fields": fields,
		})
		return
	}

	// Score both backends concurrently; each degrades to a clean fallback
	// on failure, so this never errors.
	primary, secondary := h.scoring.ScoreBoth(ctx, &req)

	decision, alert := h.consensus.Decide(ctx, req.ContractData.ContractID, primary, secondary)

	if h.cache != nil {
		if n, err := h.cache.IncrementCounter(ctx, "analyses", analysesWindow); err == nil {
			h.recentAnalyses.Store(n)
		}
	}
	if alert != nil {
		h.publishStatistics(ctx)
	}

	resp := PredictResponse{
		FraudDetected:    decision.FinalFraud,
		ConsensusFraud:   secondary.ConsensusFraud,
		RiskLevel:        decision.RiskLevel,
		FraudProbability: primary.Probability,
		Confidence:       primary.Confidence,
		AlertTriggered:   decision.AlertTriggered,
		Alert:            alert,
	}
	resp.Metadata.TraceID = GetTraceID(ctx)
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusOK, resp)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// Statistics returns the aggregated detection counters.
func (h *Handler) Statistics(w http.ResponseWriter, r *http.Request) {
	stats := h.alerts.Statistics()
	stats.RecentAnalyses = h.recentAnalyses.Load()
	writeJSON(w, http.StatusOK, stats)
}

// publishStatistics pushes a fresh snapshot to websocket subscribers after
// anything that moves the counters.
func (h *Handler) publishStatistics(ctx context.Context) {
	if h.publisher == nil {
		return
	}
	stats := h.alerts.Statistics()
	stats.RecentAnalyses = h.recentAnalyses.Load()
	h.publisher.StatisticsChanged(ctx, stats)
}

// CreateAlertRequest is the request body for manually creating an alert.
type CreateAlertRequest struct {
	EntityID         string  `json:"entityId"`
	FraudProbability float64 `json:"fraudProbability"`
}

// CreateAlert handles POST /api/v1/fraud/alerts.
func (h *Handler) CreateAlert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.EntityID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "entityId is required",
		})
		return
	}
	if req.FraudProbability < 0 || req.FraudProbability > 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "fraudProbability must be between 0 and 1",
		})
		return
	}

	alert, err := h.alerts.Create(ctx, req.EntityID, req.FraudProbability)
	if err != nil {
		h.internalError(w, r, "failed to create alert", err)
		return
	}
	h.publishStatistics(ctx)

	writeJSON(w, http.StatusCreated, alert)
}

// ListAlerts handles GET /api/v1/fraud/alerts, optionally filtered by
// ?status=.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status != "" && !domain.ValidAlertStatus(status) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "unknown alert status: " + status,
		})
		return
	}

	all := h.alerts.List(r.Context())
	if status != "" {
		filtered := make([]*domain.Alert, 0, len(all))
		for _, a := range all {
			if a.Status == status {
				filtered = append(filtered, a)
			}
		}
		all = filtered
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": all,
		"count":  len(all),
	})
}

// GetAlert handles GET /api/v1/fraud/alerts/{id}.
func (h *Handler) GetAlert(w http.ResponseWriter, r *http.Request) {
	id, ok := alertID(w, r)
	if !ok {
		return
	}

	alert, err := h.alerts.GetByID(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "alert not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, alert)
}

// UpdateAlertStatusRequest is the request body for an alert status change.
type UpdateAlertStatusRequest struct {
	Status     string `json:"status"`
	ReviewedBy string `json:"reviewedBy,omitempty"`
	Comments   string `json:"comments,omitempty"`
}

// UpdateAlertStatus handles PATCH /api/v1/fraud/alerts/{id}/status.
func (h *Handler) UpdateAlertStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := alertID(w, r)
	if !ok {
		return
	}

	var req UpdateAlertStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	alert, err := h.alerts.UpdateStatus(ctx, id, req.Status, req.ReviewedBy, req.Comments)
	switch {
	case errors.Is(err, alerts.ErrInvalidStatus):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	case errors.Is(err, alerts.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "alert not found",
		})
		return
	case err != nil:
		h.internalError(w, r, "failed to update alert", err)
		return
	}

	if h.publisher != nil {
		h.publisher.AlertUpdated(ctx, alert)
	}
	h.publishStatistics(ctx)

	writeJSON(w, http.StatusOK, alert)
}

// ListCases handles GET /api/v1/fraud/cases with ?entity=&minScore=&status=.
func (h *Handler) ListCases(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := domain.CaseFilter{
		EntityType: q.Get("entity"),
		Status:     q.Get("status"),
	}
	if raw := q.Get("minScore"); raw != "" {
		minScore, err := strconv.Atoi(raw)
		if err != nil || minScore < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "minScore must be a non-negative integer",
			})
			return
		}
		filter.MinScore = minScore
	}

	cases, err := h.repo.ListCases(r.Context(), filter)
	if err != nil {
		h.internalError(w, r, "failed to list cases", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"cases": cases,
		"count": len(cases),
	})
}

// RecordCaseRequest is the request body for recording a fraud case.
type RecordCaseRequest struct {
	EntityType string `json:"entityType"`
	EntityID   string `json:"entityId"`
	Score      int    `json:"score"`
	Reason     string `json:"reason,omitempty"`
}

// RecordCase handles POST /api/v1/fraud/cases/record. Scores below the
// persistence threshold are acknowledged but not stored.
func (h *Handler) RecordCase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req RecordCaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.EntityType == "" || req.EntityID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "entityType and entityId are required",
		})
		return
	}

	if err := h.repo.RecordCase(ctx, req.EntityType, req.EntityID, req.Score, req.Reason); err != nil {
		if errors.Is(err, repository.ErrInvalidInput) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
			return
		}
		h.internalError(w, r, "failed to record case", err)
		return
	}

	if req.Score < domain.CaseThreshold {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"recorded": false,
			"reason":   "score below case threshold",
		})
		return
	}

	fraudCase, err := h.repo.GetCase(ctx, req.EntityType, req.EntityID)
	if err != nil {
		h.internalError(w, r, "failed to load recorded case", err)
		return
	}

	if h.publisher != nil {
		h.publisher.CaseRecorded(ctx, fraudCase)
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"recorded": true,
		"case":     fraudCase,
	})
}

// ReviewCase handles PATCH /api/v1/fraud/cases/{id}.
func (h *Handler) ReviewCase(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "case id must be a positive integer",
		})
		return
	}

	if err := h.repo.ReviewCase(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "case not found",
			})
			return
		}
		h.internalError(w, r, "failed to review case", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"id":     raw,
		"status": domain.CaseStatusReviewed,
	})
}

// ScoreClaimResponse is the response for POST /api/v1/claims/score.
type ScoreClaimResponse struct {
	Assessment   domain.ClaimAssessment `json:"assessment"`
	CaseScore    int                    `json:"caseScore"`
	CaseRecorded bool                   `json:"caseRecorded"`
}

// ScoreClaim handles POST /api/v1/claims/score: runs the rule-based claim
// scorer and records a fraud case when the scaled score crosses the
// persistence threshold.
func (h *Handler) ScoreClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var claim domain.Claim
	if err := json.NewDecoder(r.Body).Decode(&claim); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if fields := claim.Validate(); len(fields) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":  "validation failed",
			"fields": fields,
		})
		return
	}

	assessment := h.claims.Assess(ctx, &claim)
	caseScore := int(math.Round(assessment.Score * 100))

	resp := ScoreClaimResponse{
		Assessment: assessment,
		CaseScore:  caseScore,
	}

	// Case recording is best-effort: the assessment is still returned
	// when persistence fails.
	if h.repo != nil && caseScore >= domain.CaseThreshold {
		if err := h.repo.RecordCase(ctx, domain.EntityClaim, claim.ClaimID, caseScore, assessment.Reason); err != nil {
			slog.Error("failed to record claim case", "claim_id", claim.ClaimID, "error", err)
		} else {
			resp.CaseRecorded = true
			if fraudCase, err := h.repo.GetCase(ctx, domain.EntityClaim, claim.ClaimID); err == nil && h.publisher != nil {
				h.publisher.CaseRecorded(ctx, fraudCase)
			}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// ListClaimRules returns all claim rules loaded in the engine.
// Rules are loaded from the database at startup and can be reloaded via
// POST /api/v1/claim-rules/reload.
func (h *Handler) ListClaimRules(w http.ResponseWriter, r *http.Request) {
	loaded := h.engine.GetLoadedRules()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules":  loaded,
		"count":  len(loaded),
		"source": "database",
	})
}

// CreateClaimRuleRequest is the request body for creating a claim rule.
type CreateClaimRuleRequest struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Expression  string  `json:"expression"`
	Weight      float64 `json:"weight"`
	Factor      string  `json:"factor,omitempty"`
	Enabled     bool    `json:"enabled"`
}

// CreateClaimRule creates a new claim rule and saves it to the database.
// After saving, call POST /api/v1/claim-rules/reload to hot-reload into
// the engine.
func (h *Handler) CreateClaimRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateClaimRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}
	if req.Weight < 0 || req.Weight > 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "weight must be between 0 and 1",
		})
		return
	}

	rule := &domain.ClaimRule{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Expression:  req.Expression,
		Weight:      req.Weight,
		Factor:      req.Factor,
		Enabled:     req.Enabled,
	}

	// Validate the CEL expression by attempting to load it
	if err := h.engine.LoadRule(rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveClaimRule(ctx, rule); err != nil {
			h.internalError(w, r, "failed to save claim rule", err)
			return
		}
	}

	slog.Info("claim rule created", "id", rule.ID, "name", rule.Name)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"rule":    rule,
		"message": "Rule created. Call POST /api/v1/claim-rules/reload to apply changes.",
	})
}

// ReloadClaimRules reloads all claim rules from the database into the
// engine, enabling hot-reloading without server restart.
func (h *Handler) ReloadClaimRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	dbRules, err := h.repo.ListClaimRules(ctx)
	if err != nil {
		h.internalError(w, r, "failed to list claim rules", err)
		return
	}

	if err := h.engine.ReloadRules(dbRules); err != nil {
		h.internalError(w, r, "failed to reload claim rules", err)
		return
	}

	slog.Info("claim rules reloaded from database", "count", len(dbRules))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "rules reloaded successfully",
		"count":   len(dbRules),
	})
}

func alertID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "alert id must be a positive integer",
		})
		return 0, false
	}
	return id, true
}

// internalError logs the failure and answers 500 with the request id so
// the caller can correlate the log entry.
func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	requestID := GetRequestID(r.Context())
	slog.Error(msg, "error", err, "request_id", requestID)
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error":     msg,
		"requestId": requestID,
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
