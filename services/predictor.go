package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net/http"
	"time"

	"predictive-maintenance-api/config"
	"predictive-maintenance-api/models"
)

const (
	modelAttempts = 3

	modelExplanation    = "Prediction produced by the external model service."
	fallbackExplanation = "Model service unavailable; fallback heuristic applied to raw sensor parameters."
)

// Field names accepted from the model response, checked in priority order.
var (
	probabilityKeys = []string{"failure_probability", "failureProbability", "probability", "score", "prediction"}
	scoresKeys      = []string{"health_scores", "healthScores", "scores"}
	criticalKeys    = []string{"critical_parameter", "criticalParameter", "most_critical", "critical"}
	explanationKeys = []string{"explanation", "reason", "message"}
)

// Predictor runs the prediction pipeline: external model call with retries,
// deterministic fallback, snapshot update and recent-log append. It never
// returns an error to the caller; model failures resolve into the fallback.
type Predictor struct {
	modelURL string
	apiKey   string
	timeout  time.Duration
	client   *http.Client
	registry *Registry
	cache    *CacheService
	hub      *Hub
}

func NewPredictor(cfg config.ModelConfig, registry *Registry, cache *CacheService, hub *Hub) *Predictor {
	return &Predictor{
		modelURL: cfg.URL,
		apiKey:   cfg.APIKey,
		timeout:  time.Duration(cfg.TimeoutSec) * time.Second,
		client:   &http.Client{},
		registry: registry,
		cache:    cache,
		hub:      hub,
	}
}

// Predict produces a result for the given machine and parameters. Known
// machine ids get their snapshot updated; unknown ids still produce a result
// and a log entry.
func (p *Predictor) Predict(ctx context.Context, machineID string, params map[string]float64) models.PredictionResult {
	now := time.Now()

	result, err := p.callModel(ctx, machineID, params, now)
	if err != nil {
		log.Printf("model call failed for machine=%s, using fallback: %v", machineID, err)
		modelFallbacksTotal.Inc()
		result = Fallback(machineID, params, now)
	}

	p.registry.ApplyPrediction(result, now)
	p.registry.RecordPrediction(machineID, models.RecentPrediction{
		Timestamp:          now,
		FailureProbability: result.FailureProbability,
		CriticalParameter:  result.CriticalParameter,
	})
	predictionsTotal.Inc()

	p.hub.Broadcast(Event{Type: "prediction", Data: result})
	go p.cache.Publish(context.Background(), "pdm:predictions", result)

	return result
}

// callModel posts the request to the model endpoint, retrying up to
// modelAttempts times with a fresh per-attempt timeout and no backoff.
func (p *Predictor) callModel(ctx context.Context, machineID string, params map[string]float64, now time.Time) (models.PredictionResult, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"machine_id": machineID,
		"params":     params,
	})
	if err != nil {
		return models.PredictionResult{}, err
	}

	var lastErr error
	for attempt := 1; attempt <= modelAttempts; attempt++ {
		modelCallsTotal.Inc()

		attemptCtx, cancel := context.WithTimeout(ctx, p.timeout)
		req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, p.modelURL, bytes.NewReader(payload))
		if err != nil {
			cancel()
			return models.PredictionResult{}, err
		}
		req.Header.Set("Content-Type", "application/json")
		if p.apiKey != "" {
			req.Header.Set("X-API-Key", p.apiKey)
		}

		resp, err := p.client.Do(req)
		if err != nil {
			cancel()
			lastErr = fmt.Errorf("attempt %d/%d: %w", attempt, modelAttempts, err)
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			resp.Body.Close()
			cancel()
			lastErr = fmt.Errorf("attempt %d/%d: model returned status %d", attempt, modelAttempts, resp.StatusCode)
			continue
		}

		var body map[string]interface{}
		err = json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()
		cancel()
		if err != nil {
			lastErr = fmt.Errorf("attempt %d/%d: decoding response: %w", attempt, modelAttempts, err)
			continue
		}

		return normalizeModelResponse(machineID, body, now), nil
	}

	return models.PredictionResult{}, lastErr
}

// normalizeModelResponse maps a model payload of uncertain shape into a
// fully populated PredictionResult.
func normalizeModelResponse(machineID string, body map[string]interface{}, now time.Time) models.PredictionResult {
	prob := clamp01(lookupNumber(body, probabilityKeys, 0))

	scores := lookupScores(body, scoresKeys)
	if scores == nil {
		scores = map[string]float64{"overall": 1 - prob}
	}

	critical := lookupString(body, criticalKeys, "vibration")
	explanation := lookupString(body, explanationKeys, modelExplanation)

	return models.PredictionResult{
		MachineID:          machineID,
		FailureProbability: prob,
		HealthScores:       scores,
		CriticalParameter:  critical,
		// The window is always synthesized locally; models do not schedule.
		MaintenanceWindow: models.MaintenanceWindow{
			Start: now.AddDate(0, 0, 3),
			End:   now.AddDate(0, 0, 10),
		},
		Explanation: explanation,
	}
}

// Fallback computes the deterministic heuristic result used when the model
// is unreachable. Pure arithmetic on the provided parameters; cannot fail.
func Fallback(machineID string, params map[string]float64, now time.Time) models.PredictionResult {
	vibration := paramOr(params, "vibration", 0.5)
	temperature := paramOr(params, "temperature", 0.5)
	pressure := paramOr(params, "pressure", 0.5)

	prob := clamp01(0.5*vibration + 0.3*temperature + 0.2*pressure)

	// Ties resolve in the fixed order vibration > temperature > pressure.
	critical := "vibration"
	highest := vibration
	if temperature > highest {
		critical = "temperature"
		highest = temperature
	}
	if pressure > highest {
		critical = "pressure"
	}

	return models.PredictionResult{
		MachineID:          machineID,
		FailureProbability: prob,
		HealthScores: map[string]float64{
			"vibration":   1 - vibration,
			"temperature": 1 - temperature,
			"pressure":    1 - pressure,
		},
		CriticalParameter: critical,
		MaintenanceWindow: models.MaintenanceWindow{
			Start: now.AddDate(0, 0, 2),
			End:   now.AddDate(0, 0, 9),
		},
		Explanation: fallbackExplanation,
	}
}

// Reachable probes the model endpoint with a short deadline. Any HTTP
// response counts; only transport errors mean unreachable.
func (p *Predictor) Reachable(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, p.modelURL, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

func paramOr(params map[string]float64, key string, fallback float64) float64 {
	if v, ok := params[key]; ok {
		return v
	}
	return fallback
}

func lookupNumber(body map[string]interface{}, keys []string, fallback float64) float64 {
	for _, key := range keys {
		if raw, ok := body[key]; ok {
			if n, ok := raw.(float64); ok {
				return n
			}
		}
	}
	return fallback
}

func lookupString(body map[string]interface{}, keys []string, fallback string) string {
	for _, key := range keys {
		if raw, ok := body[key]; ok {
			if s, ok := raw.(string); ok && s != "" {
				return s
			}
		}
	}
	return fallback
}

func lookupScores(body map[string]interface{}, keys []string) map[string]float64 {
	for _, key := range keys {
		raw, ok := body[key].(map[string]interface{})
		if !ok {
			continue
		}
		scores := make(map[string]float64, len(raw))
		for name, v := range raw {
			if n, ok := v.(float64); ok {
				scores[name] = n
			}
		}
		if len(scores) > 0 {
			return scores
		}
	}
	return nil
}

func clamp01(v float64) float64 {
	return math.Max(0.0, math.Min(1.0, v))
}
