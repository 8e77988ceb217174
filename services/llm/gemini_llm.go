// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm holds the text-generation client used to turn vibes into
// command text.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/awnumar/memguard"
)

const (
	// DefaultGeminiModel is used when GEMINI_MODEL is unset.
	DefaultGeminiModel = "gemini-1.5-flash"

	// DefaultGeminiBaseURL is the public Gemini REST endpoint.
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	// maxResponseBytes bounds a generateContent response body.
	maxResponseBytes = 1 << 20
)

// ErrMissingAPIKey is returned when no Gemini API key is configured.
var ErrMissingAPIKey = errors.New("gemini: API key is missing (GEMINI_API_KEY)")

// GenerationParams tunes a single request. Nil pointers leave the model's
// default in place.
type GenerationParams struct {
	SystemInstruction string
	Temperature       *float32
	TopK              *int
	MaxOutputTokens   *int
	Stop              []string
	ModelOverride     string
}

// Usage reports token counts for one request.
type Usage struct {
	PromptTokens     int
	CandidatesTokens int
}

// GeminiClient calls the Gemini generateContent REST API.
//
// Description:
//
//	The API key is sealed in a memguard enclave and only opened for the
//	duration of each request. Error bodies are passed through SafeLogString
//	before they reach an error message.
//
// Thread Safety: GeminiClient is safe for concurrent use.
type GeminiClient struct {
	httpClient *http.Client
	apiKey     *memguard.Enclave
	model      string
	baseURL    string
	logger     *slog.Logger
}

// NewGeminiClientWithConfig creates a GeminiClient with explicit configuration.
//
// Description:
//
//	Creates a GeminiClient without reading environment variables. Useful
//	for testing with mock servers.
//
// Inputs:
//   - apiKey: The Gemini API key. Must not be empty.
//   - model: The model name. Empty uses DefaultGeminiModel.
//   - baseURL: The API base URL. Empty uses DefaultGeminiBaseURL.
//
// Outputs:
//   - *GeminiClient: The configured client.
//   - error: ErrMissingAPIKey if apiKey is empty.
func NewGeminiClientWithConfig(apiKey, model, baseURL string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	if baseURL == "" {
		baseURL = DefaultGeminiBaseURL
	}
	return &GeminiClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		apiKey:     memguard.NewEnclave([]byte(apiKey)),
		model:      model,
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     slog.Default().With(slog.String("component", "gemini")),
	}, nil
}

// NewGeminiClient creates a GeminiClient from GEMINI_API_KEY and
// GEMINI_MODEL.
func NewGeminiClient() (*GeminiClient, error) {
	model := os.Getenv("GEMINI_MODEL")
	if model == "" {
		slog.Info("GEMINI_MODEL not set, defaulting", slog.String("model", DefaultGeminiModel))
	}
	return NewGeminiClientWithConfig(os.Getenv("GEMINI_API_KEY"), model, DefaultGeminiBaseURL)
}

// Model returns the configured model name.
func (g *GeminiClient) Model() string {
	return g.model
}

// geminiRequest is the request payload for the Gemini generateContent API.
type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiGenerationConfig struct {
	Temperature     *float32 `json:"temperature,omitempty"`
	TopK            *int     `json:"topK,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate `json:"candidates"`
	UsageMetadata *geminiUsage      `json:"usageMetadata,omitempty"`
	Error         *geminiError      `json:"error,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

type geminiUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// Generate sends a single-turn prompt and returns the first candidate's text.
//
// Inputs:
//   - ctx: Cancels the HTTP request.
//   - prompt: The user turn.
//   - params: System instruction and sampling settings.
//
// Outputs:
//   - string: The concatenated text parts of the first candidate.
//   - Usage: Token counts reported by the API, zero if absent.
//   - error: Transport, status, API or empty-content failures, prefixed
//     "gemini:".
func (g *GeminiClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, Usage, error) {
	model := g.model
	if params.ModelOverride != "" {
		model = params.ModelOverride
	}

	reqBody, err := json.Marshal(buildRequest(prompt, params))
	if err != nil {
		return "", Usage{}, fmt.Errorf("gemini: marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return "", Usage{}, fmt.Errorf("gemini: creating HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	key, err := g.apiKey.Open()
	if err != nil {
		return "", Usage{}, fmt.Errorf("gemini: opening API key: %w", err)
	}
	httpReq.Header.Set("x-goog-api-key", string(key.Bytes()))
	key.Destroy()

	g.logger.Debug("sending request",
		slog.String("model", model),
		slog.Int("prompt_len", len(prompt)),
	)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return "", Usage{}, fmt.Errorf("gemini: HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", Usage{}, fmt.Errorf("gemini: reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", Usage{}, fmt.Errorf("gemini: API returned status %d: %s", resp.StatusCode, SafeLogString(string(bodyBytes)))
	}

	var apiResp geminiResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return "", Usage{}, fmt.Errorf("gemini: parsing response JSON: %w", err)
	}

	if apiResp.Error != nil {
		return "", Usage{}, fmt.Errorf("gemini: API error [%d] %s: %s",
			apiResp.Error.Code, apiResp.Error.Status, SafeLogString(apiResp.Error.Message))
	}

	if len(apiResp.Candidates) == 0 {
		return "", Usage{}, fmt.Errorf("gemini: returned no candidates")
	}

	var textParts []string
	for _, part := range apiResp.Candidates[0].Content.Parts {
		if part.Text != "" {
			textParts = append(textParts, part.Text)
		}
	}

	result := strings.Join(textParts, "")
	if result == "" {
		return "", Usage{}, fmt.Errorf("gemini: returned empty text content")
	}

	var usage Usage
	if apiResp.UsageMetadata != nil {
		usage.PromptTokens = apiResp.UsageMetadata.PromptTokenCount
		usage.CandidatesTokens = apiResp.UsageMetadata.CandidatesTokenCount
	}

	g.logger.Debug("received response",
		slog.String("model", model),
		slog.Int("response_len", len(result)),
		slog.String("finish_reason", apiResp.Candidates[0].FinishReason),
	)

	return result, usage, nil
}

// buildRequest constructs the Gemini API request for a single user turn.
func buildRequest(prompt string, params GenerationParams) geminiRequest {
	req := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
	}

	if params.SystemInstruction != "" {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: params.SystemInstruction}}}
	}

	genConfig := &geminiGenerationConfig{
		Temperature:     params.Temperature,
		TopK:            params.TopK,
		MaxOutputTokens: params.MaxOutputTokens,
		StopSequences:   params.Stop,
	}
	if genConfig.Temperature != nil || genConfig.TopK != nil || genConfig.MaxOutputTokens != nil || len(genConfig.StopSequences) > 0 {
		req.GenerationConfig = genConfig
	}

	return req
}
