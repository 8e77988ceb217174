// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *GeminiClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewGeminiClientWithConfig("test-key", "gemini-1.5-flash", server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	client.httpClient = server.Client()
	return client
}

func writeCandidate(w http.ResponseWriter, text string) {
	resp := geminiResponse{
		Candidates: []geminiCandidate{{
			Content:      geminiContent{Role: "model", Parts: []geminiPart{{Text: text}}},
			FinishReason: "STOP",
		}},
		UsageMetadata: &geminiUsage{PromptTokenCount: 120, CandidatesTokenCount: 7, TotalTokenCount: 127},
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func TestNewGeminiClient_MissingAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	_, err := NewGeminiClient()
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("err = %v, want ErrMissingAPIKey", err)
	}
}

func TestNewGeminiClient_DefaultModel(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("GEMINI_MODEL", "")

	client, err := NewGeminiClient()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.Model() != DefaultGeminiModel {
		t.Errorf("model = %q, want %q", client.Model(), DefaultGeminiModel)
	}
	if client.baseURL != DefaultGeminiBaseURL {
		t.Errorf("baseURL = %q, want %q", client.baseURL, DefaultGeminiBaseURL)
	}
}

func TestNewGeminiClient_CustomModel(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("GEMINI_MODEL", "gemini-2.0-flash")

	client, err := NewGeminiClient()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.Model() != "gemini-2.0-flash" {
		t.Errorf("model = %q, want %q", client.Model(), "gemini-2.0-flash")
	}
}

func TestGeminiClient_Generate_RequestShape(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/models/gemini-1.5-flash:generateContent" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("x-goog-api-key"); got != "test-key" {
			t.Errorf("api key header = %q, want %q", got, "test-key")
		}
		if r.URL.Query().Get("key") != "" {
			t.Error("api key must not be sent in the query string")
		}

		var req geminiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if len(req.Contents) != 1 || req.Contents[0].Role != "user" {
			t.Errorf("contents = %+v, want one user turn", req.Contents)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if req.Contents[0].Parts[0].Text != "Input: neon rot\nOutput:" {
			t.Errorf("prompt = %q", req.Contents[0].Parts[0].Text)
		}
		if req.SystemInstruction == nil || req.SystemInstruction.Parts[0].Text != "SYSTEM" {
			t.Errorf("system instruction = %+v", req.SystemInstruction)
		}
		if req.GenerationConfig == nil {
			t.Error("expected generation config")
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if *req.GenerationConfig.MaxOutputTokens != 30 {
			t.Errorf("maxOutputTokens = %d, want 30", *req.GenerationConfig.MaxOutputTokens)
		}
		if *req.GenerationConfig.Temperature != 0.9 {
			t.Errorf("temperature = %v, want 0.9", *req.GenerationConfig.Temperature)
		}

		writeCandidate(w, "-charcoal 5")
	})

	maxTokens := 30
	temp := float32(0.9)
	text, usage, err := client.Generate(context.Background(), FramePrompt("neon rot"), GenerationParams{
		SystemInstruction: "SYSTEM",
		MaxOutputTokens:   &maxTokens,
		Temperature:       &temp,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "-charcoal 5" {
		t.Errorf("text = %q, want %q", text, "-charcoal 5")
	}
	if usage.PromptTokens != 120 || usage.CandidatesTokens != 7 {
		t.Errorf("usage = %+v", usage)
	}
}

func TestGeminiClient_Generate_NoConfigWhenUnset(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			t.Errorf("decode: %v", err)
		}
		if _, ok := raw["generationConfig"]; ok {
			t.Error("generationConfig should be omitted")
		}
		if _, ok := raw["systemInstruction"]; ok {
			t.Error("systemInstruction should be omitted")
		}
		writeCandidate(w, "ok")
	})

	if _, _, err := client.Generate(context.Background(), "hi", GenerationParams{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGeminiClient_Generate_ModelOverride(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/models/gemini-pro:") {
			t.Errorf("path = %q, want override model", r.URL.Path)
		}
		writeCandidate(w, "ok")
	})

	if _, _, err := client.Generate(context.Background(), "hi", GenerationParams{ModelOverride: "gemini-pro"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGeminiClient_Generate_JoinsParts(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		resp := geminiResponse{Candidates: []geminiCandidate{{
			Content: geminiContent{Parts: []geminiPart{{Text: "-swirl "}, {Text: ""}, {Text: "180"}}},
		}}}
		json.NewEncoder(w).Encode(resp)
	})

	text, _, err := client.Generate(context.Background(), "hi", GenerationParams{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "-swirl 180" {
		t.Errorf("text = %q", text)
	}
}

func TestGeminiClient_Generate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    string
	}{
		{
			name: "non-200 status is redacted",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusForbidden)
				w.Write([]byte(`bad key AIzaSyAbcDefGhiJklMnoPqrStUvWxYz0123456789`))
			},
			want: "status 403",
		},
		{
			name: "api error object",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"error": {"code": 429, "message": "quota", "status": "RESOURCE_EXHAUSTED"}}`))
			},
			want: "RESOURCE_EXHAUSTED",
		},
		{
			name: "no candidates",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"candidates": []}`))
			},
			want: "no candidates",
		},
		{
			name: "empty text",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"candidates": [{"content": {"parts": [{"text": ""}]}}]}`))
			},
			want: "empty text",
		},
		{
			name: "malformed json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{not json`))
			},
			want: "parsing response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, tt.handler)
			_, _, err := client.Generate(context.Background(), "hi", GenerationParams{})
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.HasPrefix(err.Error(), "gemini:") {
				t.Errorf("error %q lacks package prefix", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not contain %q", err, tt.want)
			}
			if strings.Contains(err.Error(), "AIzaSy") {
				t.Errorf("error leaks a key: %q", err)
			}
		})
	}
}

func TestGeminiClient_Generate_ContextCancelled(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeCandidate(w, "ok")
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := client.Generate(ctx, "hi", GenerationParams{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
