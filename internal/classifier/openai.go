package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"sigrelay/internal/config"
	"sigrelay/internal/pkg/circuit"
	"sigrelay/internal/pkg/jsonutil"
	"sigrelay/internal/pkg/symbol"
)

const systemPrompt = `You classify chat messages from trading channels.
Decide whether the message is an actionable trading signal.
Respond with a single JSON object and nothing else:
{"is_signal": bool, "confidence": 0..1, "symbol": "...", "direction": "buy|sell",
 "entry": number|null, "stop": number|null, "targets": [numbers], "rationale": "..."}
Set is_signal=false for commentary, news, results recaps and advertisements.`

// OpenAIClassifier implements Classifier on an OpenAI-compatible endpoint,
// shielded by a failure-count circuit breaker.
type OpenAIClassifier struct {
	client  *ChatClient
	breaker *circuit.CircuitBreaker
}

func NewOpenAIClassifier(cfg config.ClassifierConfig) *OpenAIClassifier {
	return &OpenAIClassifier{
		client: &ChatClient{
			BaseURL:      cfg.BaseURL,
			APIKey:       cfg.APIKey,
			Model:        cfg.Model,
			Timeout:      time.Duration(cfg.TimeoutSeconds) * time.Second,
			MaxRetries:   cfg.MaxRetries,
			ExtraHeaders: cfg.ExtraHeaders,
		},
		breaker: circuit.NewCircuitBreaker("classifier", cfg.BreakerThreshold,
			time.Duration(cfg.BreakerCooldownSeconds)*time.Second),
	}
}

// SetChatClient replaces the transport, for tests.
func (c *OpenAIClassifier) SetChatClient(client *ChatClient) {
	c.client = client
}

func (c *OpenAIClassifier) Classify(ctx context.Context, text string) (*Result, error) {
	if !c.breaker.Allow() {
		return nil, fmt.Errorf("classifier circuit open")
	}
	raw, err := c.client.CallWithMessages(ctx, systemPrompt, text)
	if err != nil {
		c.breaker.RecordFailure()
		return nil, err
	}
	res, err := parseResult(raw)
	if err != nil {
		// Unusable content from a healthy endpoint does not trip the breaker.
		c.breaker.RecordSuccess()
		return nil, err
	}
	c.breaker.RecordSuccess()
	res.Model = c.client.Model
	return res, nil
}

func parseResult(raw string) (*Result, error) {
	obj, ok := jsonutil.ExtractJSON(raw)
	if !ok {
		return nil, fmt.Errorf("no json object in classifier output")
	}
	if err := validateVerdictJSON(obj); err != nil {
		return nil, err
	}
	var payload struct {
		IsSignal   bool      `json:"is_signal"`
		Confidence float64   `json:"confidence"`
		Symbol     string    `json:"symbol"`
		Direction  string    `json:"direction"`
		Entry      *float64  `json:"entry"`
		Stop       *float64  `json:"stop"`
		Targets    []float64 `json:"targets"`
		Rationale  string    `json:"rationale"`
	}
	if err := json.Unmarshal([]byte(obj), &payload); err != nil {
		return nil, err
	}
	return &Result{
		IsSignal:   payload.IsSignal,
		Confidence: payload.Confidence,
		Symbol:     symbol.Normalize(payload.Symbol),
		Direction:  payload.Direction,
		Entry:      payload.Entry,
		Stop:       payload.Stop,
		Targets:    payload.Targets,
		Rationale:  payload.Rationale,
	}, nil
}
