// Package gemini implements coach.Provider using the Gemini REST API.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/silvergrove/coach"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/models"
const maxAttempts = 2

// Provider implements coach.Provider against the Gemini generateContent API.
type Provider struct {
	apiKey  string
	modelID string
	baseURL string
	client  *http.Client
	store   coach.Store
	logger  *slog.Logger
}

// New creates a Provider for the given API key and model.
func New(apiKey, modelID string) *Provider {
	return &Provider{
		apiKey:  apiKey,
		modelID: modelID,
		baseURL: defaultBaseURL,
		client:  &http.Client{},
		logger:  slog.Default(),
	}
}

// WithStore enables request logging through store.
func (p *Provider) WithStore(store coach.Store) *Provider {
	p.store = store
	return p
}

// WithBaseURL overrides the API endpoint. Used in tests.
func (p *Provider) WithBaseURL(baseURL string) *Provider {
	p.baseURL = strings.TrimRight(baseURL, "/")
	return p
}

// WithLogger overrides the default logger.
func (p *Provider) WithLogger(logger *slog.Logger) *Provider {
	if logger != nil {
		p.logger = logger
	}
	return p
}

// Send calls the Gemini generateContent API with bounded retry on transient
// failures. Each call is recorded as a request log when a store is
// configured; logging failures never fail the call itself.
func (p *Provider) Send(ctx context.Context, rules coach.Rules, history []coach.Message, prompt string) (*coach.Result, error) {
	if prompt == "" {
		return nil, coach.ErrEmptyPrompt
	}

	sessionID := ""
	if len(history) > 0 {
		sessionID = history[0].SessionID
	}

	var logID string
	if p.store != nil {
		log, err := p.store.AddRequestLog(ctx, coach.RequestLog{
			SessionID:     sessionID,
			Prompt:        prompt,
			AttemptNumber: 1,
			FinalStatus:   coach.StatusPending,
		})
		if err != nil {
			p.logger.Warn("failed to add request log", "session_id", sessionID, "error", err)
		} else {
			logID = log.ID
		}
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := p.sendOnce(ctx, rules, history, prompt)
		if err == nil {
			if p.store != nil && logID != "" {
				if uerr := p.store.UpdateRequestLog(ctx, logID,
					result.Content, coach.StatusSuccess, "", "", attempt-1, &result.Usage); uerr != nil {
					p.logger.Warn("failed to update request log", "log_id", logID, "error", uerr)
				}
			}
			return result, nil
		}

		lastErr = err
		failReason := classifyError(err)

		if p.store != nil && logID != "" {
			status := coach.StatusPending
			if attempt == maxAttempts || !retryable(err) {
				status = coach.StatusFailed
			}
			if uerr := p.store.UpdateRequestLog(ctx, logID,
				"", status, failReason, err.Error(), attempt-1, nil); uerr != nil {
				p.logger.Warn("failed to update request log", "log_id", logID, "error", uerr)
			}
		}

		if !retryable(err) {
			return nil, lastErr
		}
	}

	return nil, lastErr
}

// sendOnce makes a single API request.
func (p *Provider) sendOnce(ctx context.Context, rules coach.Rules, history []coach.Message, prompt string) (*coach.Result, error) {
	jsonBody, err := json.Marshal(p.buildRequest(rules, history, prompt))
	if err != nil {
		return nil, fmt.Errorf("coach: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s:generateContent?key=%s", p.baseURL, p.modelID, p.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("coach: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coach: send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coach: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", coach.ErrProviderFailed, resp.StatusCode, string(body))
	}

	return p.parseResponse(body)
}

func (p *Provider) buildRequest(rules coach.Rules, history []coach.Message, prompt string) map[string]any {
	contents := make([]map[string]any, 0, len(history)+1)

	for _, msg := range history {
		role := msg.Role
		if role == coach.RoleAssistant {
			role = "model"
		}
		contents = append(contents, map[string]any{
			"role":  role,
			"parts": []map[string]any{{"text": msg.Content}},
		})
	}

	contents = append(contents, map[string]any{
		"role":  "user",
		"parts": []map[string]any{{"text": prompt}},
	})

	req := map[string]any{"contents": contents}

	generationConfig := map[string]any{}
	if rules.MaxTokens > 0 {
		generationConfig["maxOutputTokens"] = rules.MaxTokens
	}
	if len(generationConfig) > 0 {
		req["generationConfig"] = generationConfig
	}

	if rules.SystemPrompt != "" {
		req["systemInstruction"] = map[string]any{
			"parts": []map[string]any{{"text": rules.SystemPrompt}},
		}
	}

	return req
}

func (p *Provider) parseResponse(body []byte) (*coach.Result, error) {
	var resp geminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("coach: parse response: %w", err)
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("%w: empty response", coach.ErrProviderFailed)
	}

	return &coach.Result{
		Content: resp.Candidates[0].Content.Parts[0].Text,
		Usage: coach.Usage{
			PromptTokens:   resp.UsageMetadata.PromptTokenCount,
			ResponseTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:    resp.UsageMetadata.TotalTokenCount,
		},
	}, nil
}

// retryable reports whether err is worth a second attempt: network failures
// and 5xx/429 responses. Context cancellation is never retried; the caller
// is gone.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := err.Error()
	for _, code := range []string{"status 429", "status 500", "status 502", "status 503", "status 504"} {
		if strings.Contains(msg, code) {
			return true
		}
	}
	return false
}

// classifyError categorizes an error into a request log fail reason.
func classifyError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return coach.FailReasonTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return coach.FailReasonTimeout
		}
		return coach.FailReasonNetworkError
	}

	if errors.Is(err, context.Canceled) {
		return coach.FailReasonNetworkError
	}
	if errors.Is(err, coach.ErrProviderFailed) {
		return coach.FailReasonProviderError
	}

	return coach.FailReasonUnknownError
}

// Gemini API response types.
type geminiResponse struct {
	Candidates    []geminiCandidate `json:"candidates"`
	UsageMetadata geminiUsage       `json:"usageMetadata"`
}

type geminiCandidate struct {
	Content geminiContent `json:"content"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
	Role  string       `json:"role"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// Ensure Provider implements coach.Provider at compile time.
var _ coach.Provider = (*Provider)(nil)
