// Package scoring calls the external scoring backends and normalizes their
// responses. Backends are advisory: any failure degrades to a clean score
// instead of failing the request.
package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/assurnet/vigil/internal/domain"
)

// Default probabilities substituted when a backend omits the field.
const (
	defaultFraudProbability = 0.80
	defaultCleanProbability = 0.15
)

const predictPath = "/predict"

// Backend identifiers used as cache key prefixes.
const (
	backendPrimary   = "primary"
	backendSecondary = "secondary"
)

// backendResponse is the wire format shared by both backends. Pointers
// distinguish absent fields from zero values.
type backendResponse struct {
	Fraud          bool     `json:"fraud"`
	Probability    *float64 `json:"probability"`
	Confidence     *float64 `json:"confidence"`
	ConsensusFraud bool     `json:"consensusFraudDetected"`
	AlertTriggered *bool    `json:"alertTriggered"`
}

// Client is the dual-backend scoring adapter.
type Client struct {
	httpClient *http.Client
	cfg        domain.ScoringConfig
	cache      domain.Cache
	logger     *slog.Logger
}

// NewClient creates a scoring client. Cache may be nil to disable score
// caching.
func NewClient(cfg domain.ScoringConfig, cache domain.Cache, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout()},
		cfg:        cfg,
		cache:      cache,
		logger:     logger,
	}
}

// ScoreBoth calls both backends concurrently and returns their normalized
// verdicts. Neither call can fail: an unreachable or malformed backend
// yields the fail-open fallback.
func (c *Client) ScoreBoth(ctx context.Context, req *domain.PredictionRequest) (domain.ScoreResult, domain.SecondarySignal) {
	var (
		wg        sync.WaitGroup
		primary   domain.ScoreResult
		secondary domain.SecondarySignal
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		primary = c.ScorePrimary(ctx, req)
	}()
	go func() {
		defer wg.Done()
		secondary = c.ScoreSecondary(ctx, req)
	}()
	wg.Wait()

	return primary, secondary
}

// ScorePrimary calls the primary backend.
func (c *Client) ScorePrimary(ctx context.Context, req *domain.PredictionRequest) domain.ScoreResult {
	entityID := req.ContractData.ContractID

	if cached := c.cachedScore(ctx, backendPrimary, entityID); cached != nil {
		return *cached
	}

	resp, err := c.call(ctx, c.cfg.PrimaryURL, req)
	if err != nil {
		c.logger.Warn("primary scoring backend unavailable",
			"contractId", entityID,
			"error", err)
		return domain.FallbackScore()
	}

	score := c.normalize(resp)
	c.storeScore(ctx, backendPrimary, entityID, &score)

	return score
}

// ScoreSecondary calls the consensus backend.
func (c *Client) ScoreSecondary(ctx context.Context, req *domain.PredictionRequest) domain.SecondarySignal {
	entityID := req.ContractData.ContractID

	if cached := c.cachedSignal(ctx, entityID); cached != nil {
		return *cached
	}

	resp, err := c.call(ctx, c.cfg.SecondaryURL, req)
	if err != nil {
		c.logger.Warn("secondary scoring backend unavailable",
			"contractId", entityID,
			"error", err)
		return domain.SecondarySignal{Score: domain.FallbackScore()}
	}

	signal := domain.SecondarySignal{
		Score:          c.normalize(resp),
		ConsensusFraud: resp.ConsensusFraud,
	}
	if resp.AlertTriggered != nil {
		signal.AlertTriggered = *resp.AlertTriggered
	} else {
		signal.AlertTriggered = signal.Score.Probability >= c.alertThreshold()
	}

	c.storeSignal(ctx, entityID, &signal)

	return signal
}

func (c *Client) call(ctx context.Context, baseURL string, req *domain.PredictionRequest) (*backendResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout())
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, baseURL+predictPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(httpResp.Body, 4096))
		return nil, fmt.Errorf("backend returned status %d", httpResp.StatusCode)
	}

	var resp backendResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &resp, nil
}

// normalize fills the defaulted fields of a backend response.
func (c *Client) normalize(resp *backendResponse) domain.ScoreResult {
	score := domain.ScoreResult{Fraud: resp.Fraud}

	if resp.Probability != nil {
		score.Probability = *resp.Probability
	} else if resp.Fraud {
		score.Probability = defaultFraudProbability
	} else {
		score.Probability = defaultCleanProbability
	}

	if resp.Confidence != nil {
		score.Confidence = *resp.Confidence
	} else {
		score.Confidence = score.Probability
	}

	return score
}

func (c *Client) alertThreshold() float64 {
	if c.cfg.AlertProbabilityThreshold <= 0 {
		return 0.70
	}
	return c.cfg.AlertProbabilityThreshold
}

func (c *Client) cacheTTL() time.Duration {
	return time.Duration(c.cfg.CacheTTLSecs) * time.Second
}

func (c *Client) cachedScore(ctx context.Context, backend, entityID string) *domain.ScoreResult {
	if c.cache == nil || c.cfg.CacheTTLSecs <= 0 || entityID == "" {
		return nil
	}
	score, err := c.cache.GetScore(ctx, backend, entityID)
	if err != nil {
		return nil
	}
	return score
}

func (c *Client) storeScore(ctx context.Context, backend, entityID string, score *domain.ScoreResult) {
	if c.cache == nil || c.cfg.CacheTTLSecs <= 0 || entityID == "" {
		return
	}
	if err := c.cache.SetScore(ctx, backend, entityID, score, c.cacheTTL()); err != nil {
		c.logger.Debug("score cache write failed", "error", err)
	}
}

func (c *Client) cachedSignal(ctx context.Context, entityID string) *domain.SecondarySignal {
	if c.cache == nil || c.cfg.CacheTTLSecs <= 0 || entityID == "" {
		return nil
	}
	data, err := c.cache.Get(ctx, signalKey(entityID))
	if err != nil || data == nil {
		return nil
	}
	var signal domain.SecondarySignal
	if err := json.Unmarshal(data, &signal); err != nil {
		return nil
	}
	return &signal
}

func (c *Client) storeSignal(ctx context.Context, entityID string, signal *domain.SecondarySignal) {
	if c.cache == nil || c.cfg.CacheTTLSecs <= 0 || entityID == "" {
		return
	}
	data, err := json.Marshal(signal)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, signalKey(entityID), data, c.cacheTTL()); err != nil {
		c.logger.Debug("signal cache write failed", "error", err)
	}
}

func signalKey(entityID string) string {
	return "score:" + backendSecondary + ":signal:" + entityID
}
