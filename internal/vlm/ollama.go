package vlm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"camguard/internal/apperr"
	"camguard/internal/config"
)

// OllamaClient implements the "generate"-style provider: a single JSON POST
// with prompt, system, and base64 images, returning {"response": "..."}.
type OllamaClient struct {
	httpClient *http.Client
	baseURL    string
	model      string
}

// NewOllamaClient builds a client for an Ollama-compatible /api/generate
// endpoint.
func NewOllamaClient(cfg config.OllamaConfig) *OllamaClient {
	return &OllamaClient{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
	}
}

type generateRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	System string   `json:"system"`
	Images []string `json:"images"`
	Stream bool     `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Analyze implements Client.
func (c *OllamaClient) Analyze(ctx context.Context, jpeg []byte, streamName string, rules []Rule) (AnalysisResult, error) {
	b64 := base64.StdEncoding.EncodeToString(jpeg)
	system := SystemPrompt + BuildRulesAddendum(rules)

	body, err := json.Marshal(generateRequest{
		Model:  c.model,
		Prompt: UserPrompt(streamName),
		System: system,
		Images: []string{b64},
		Stream: false,
	})
	if err != nil {
		return AnalysisResult{}, apperr.Wrap(apperr.Vlm, "marshal ollama request", err)
	}

	url := c.baseURL + "/api/generate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return AnalysisResult{}, apperr.Wrap(apperr.Vlm, "build ollama request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return AnalysisResult{}, apperr.Wrap(apperr.Vlm, "ollama request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text, _ := io.ReadAll(resp.Body)
		return AnalysisResult{}, apperr.New(apperr.Vlm, fmt.Sprintf("ollama HTTP %d: %s", resp.StatusCode, text))
	}

	var gen generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gen); err != nil {
		return AnalysisResult{}, apperr.Wrap(apperr.Vlm, "decode ollama response", err)
	}

	log.Printf("[vlm.Ollama] model=%s raw=%q", c.model, gen.Response)

	return ParseOrFallback(gen.Response), nil
}
