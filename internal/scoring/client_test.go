package scoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/assurnet/vigil/internal/domain"
)

func testRequest() *domain.PredictionRequest {
	return &domain.PredictionRequest{
		ContractData: domain.ContractData{
			ContractID: "CTR-100",
			ClientID:   "CLI-100",
			Amount:     25000,
		},
	}
}

func testConfig(primary, secondary string) domain.ScoringConfig {
	return domain.ScoringConfig{
		PrimaryURL:                primary,
		SecondaryURL:              secondary,
		TimeoutSecs:               2,
		AlertProbabilityThreshold: 0.70,
	}
}

func backendHandler(t *testing.T, response map[string]any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/predict" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req domain.PredictionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		json.NewEncoder(w).Encode(response)
	}
}

func TestScorePrimaryFraud(t *testing.T) {
	srv := httptest.NewServer(backendHandler(t, map[string]any{
		"fraud":       true,
		"probability": 0.91,
		"confidence":  0.88,
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL, srv.URL), nil, nil)
	got := client.ScorePrimary(context.Background(), testRequest())

	if !got.Fraud {
		t.Error("expected fraud verdict")
	}
	if got.Probability != 0.91 {
		t.Errorf("probability = %f, want 0.91", got.Probability)
	}
	if got.Confidence != 0.88 {
		t.Errorf("confidence = %f, want 0.88", got.Confidence)
	}
}

func TestScorePrimaryDefaultProbabilities(t *testing.T) {
	fraudSrv := httptest.NewServer(backendHandler(t, map[string]any{"fraud": true}))
	defer fraudSrv.Close()
	cleanSrv := httptest.NewServer(backendHandler(t, map[string]any{"fraud": false}))
	defer cleanSrv.Close()

	client := NewClient(testConfig(fraudSrv.URL, fraudSrv.URL), nil, nil)
	if got := client.ScorePrimary(context.Background(), testRequest()); got.Probability != 0.80 {
		t.Errorf("fraud default probability = %f, want 0.80", got.Probability)
	}

	client = NewClient(testConfig(cleanSrv.URL, cleanSrv.URL), nil, nil)
	if got := client.ScorePrimary(context.Background(), testRequest()); got.Probability != 0.15 {
		t.Errorf("clean default probability = %f, want 0.15", got.Probability)
	}
}

func TestScorePrimaryFailOpen(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("{not json"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			client := NewClient(testConfig(srv.URL, srv.URL), nil, nil)
			got := client.ScorePrimary(context.Background(), testRequest())
			if got != domain.FallbackScore() {
				t.Errorf("expected fallback score, got %+v", got)
			}
		})
	}
}

func TestScorePrimaryUnreachable(t *testing.T) {
	client := NewClient(testConfig("http://127.0.0.1:1", "http://127.0.0.1:1"), nil, nil)
	got := client.ScorePrimary(context.Background(), testRequest())
	if got != domain.FallbackScore() {
		t.Errorf("expected fallback score, got %+v", got)
	}
}

func TestScorePrimaryTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL, srv.URL)
	cfg.TimeoutSecs = 0 // falls back to default; tighten via client below
	client := NewClient(cfg, nil, nil)
	client.httpClient.Timeout = 50 * time.Millisecond
	client.cfg.TimeoutSecs = 0

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	got := client.ScorePrimary(ctx, testRequest())
	if got != domain.FallbackScore() {
		t.Errorf("expected fallback score on timeout, got %+v", got)
	}
}

func TestScoreSecondaryConsensusFlags(t *testing.T) {
	srv := httptest.NewServer(backendHandler(t, map[string]any{
		"fraud":                  true,
		"probability":            0.65,
		"consensusFraudDetected": true,
		"alertTriggered":         true,
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL, srv.URL), nil, nil)
	got := client.ScoreSecondary(context.Background(), testRequest())

	if !got.ConsensusFraud {
		t.Error("expected consensus fraud flag")
	}
	if !got.AlertTriggered {
		t.Error("expected alert trigger flag")
	}
	if got.Score.Probability != 0.65 {
		t.Errorf("probability = %f, want 0.65", got.Score.Probability)
	}
}

func TestScoreSecondaryDerivedAlertFlag(t *testing.T) {
	// alertTriggered absent: derived from probability vs threshold
	high := httptest.NewServer(backendHandler(t, map[string]any{
		"fraud":       true,
		"probability": 0.75,
	}))
	defer high.Close()
	low := httptest.NewServer(backendHandler(t, map[string]any{
		"fraud":       true,
		"probability": 0.50,
	}))
	defer low.Close()

	client := NewClient(testConfig(high.URL, high.URL), nil, nil)
	if got := client.ScoreSecondary(context.Background(), testRequest()); !got.AlertTriggered {
		t.Error("probability above threshold should derive alert flag")
	}

	client = NewClient(testConfig(low.URL, low.URL), nil, nil)
	if got := client.ScoreSecondary(context.Background(), testRequest()); got.AlertTriggered {
		t.Error("probability below threshold should not derive alert flag")
	}
}

func TestScoreSecondaryFailOpen(t *testing.T) {
	client := NewClient(testConfig("http://127.0.0.1:1", "http://127.0.0.1:1"), nil, nil)
	got := client.ScoreSecondary(context.Background(), testRequest())
	if got.Score != domain.FallbackScore() {
		t.Errorf("expected fallback score, got %+v", got.Score)
	}
	if got.ConsensusFraud || got.AlertTriggered {
		t.Error("fallback signal must not carry consensus or alert flags")
	}
}

func TestScoreBothConcurrent(t *testing.T) {
	var primaryCalls, secondaryCalls atomic.Int32

	primarySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		primaryCalls.Add(1)
		json.NewEncoder(w).Encode(map[string]any{"fraud": true, "probability": 0.9})
	}))
	defer primarySrv.Close()

	secondarySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secondaryCalls.Add(1)
		json.NewEncoder(w).Encode(map[string]any{"fraud": false, "probability": 0.2})
	}))
	defer secondarySrv.Close()

	client := NewClient(testConfig(primarySrv.URL, secondarySrv.URL), nil, nil)
	primary, secondary := client.ScoreBoth(context.Background(), testRequest())

	if !primary.Fraud {
		t.Error("expected primary fraud verdict")
	}
	if secondary.Score.Fraud {
		t.Error("expected clean secondary verdict")
	}
	if primaryCalls.Load() != 1 || secondaryCalls.Load() != 1 {
		t.Errorf("expected one call per backend, got %d/%d", primaryCalls.Load(), secondaryCalls.Load())
	}
}

type fakeCache struct {
	data   map[string][]byte
	scores map[string]*domain.ScoreResult
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		data:   make(map[string][]byte),
		scores: make(map[string]*domain.ScoreResult),
	}
}

func (f *fakeCache) Get(_ context.Context, key string) ([]byte, error) {
	return f.data[key], nil
}

func (f *fakeCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	f.data[key] = value
	return nil
}

func (f *fakeCache) Delete(_ context.Context, key string) error {
	delete(f.data, key)
	return nil
}

func (f *fakeCache) GetScore(_ context.Context, backend, entityID string) (*domain.ScoreResult, error) {
	return f.scores[backend+":"+entityID], nil
}

func (f *fakeCache) SetScore(_ context.Context, backend, entityID string, score *domain.ScoreResult, _ time.Duration) error {
	f.scores[backend+":"+entityID] = score
	return nil
}

func (f *fakeCache) IncrementCounter(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 0, nil
}

func (f *fakeCache) Ping(_ context.Context) error { return nil }
func (f *fakeCache) Close() error                 { return nil }

func TestScorePrimaryUsesCache(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		json.NewEncoder(w).Encode(map[string]any{"fraud": true, "probability": 0.9})
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL, srv.URL)
	cfg.CacheTTLSecs = 60
	client := NewClient(cfg, newFakeCache(), nil)

	first := client.ScorePrimary(context.Background(), testRequest())
	second := client.ScorePrimary(context.Background(), testRequest())

	if first != second {
		t.Errorf("cached score differs: %+v vs %+v", first, second)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 backend call, got %d", calls.Load())
	}
}
