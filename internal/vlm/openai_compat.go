package vlm

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"camguard/internal/apperr"
	"camguard/internal/config"
)

// responseSchema is the shape requested via structured output; it mirrors
// AnalysisResult's JSON tags so decoding never needs the fallback path on a
// provider that honors response_format.
type responseSchema struct {
	Title         string          `json:"title" jsonschema_description:"Optional short title, 4 words or fewer, empty if none"`
	Description   string          `json:"description" jsonschema_description:"Brief natural language description of the scene"`
	Events        []DetectedEvent `json:"events" jsonschema_description:"Zero or more detected events"`
	RiskLevel     string          `json:"risk_level" jsonschema_description:"One of: none, low, medium, high"`
	TriggeredRule string          `json:"triggered_rule" jsonschema_description:"Verbatim triggered rule text, empty if none"`
}

func generateResponseSchema() any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v responseSchema
	return reflector.Reflect(v)
}

// OpenAICompatClient implements the "chat"-style provider: an
// OpenAI-compatible /v1/chat/completions call with a vision content part
// carrying the frame as a data URI.
type OpenAICompatClient struct {
	client  openai.Client
	model   string
	timeout time.Duration
}

// NewOpenAICompatClient builds a client against any OpenAI-compatible
// endpoint (vLLM, LM Studio, OpenAI itself) using bearer auth.
func NewOpenAICompatClient(cfg config.OpenAICompatConfig) *OpenAICompatClient {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAICompatClient{
		client:  openai.NewClient(opts...),
		model:   cfg.Model,
		timeout: 60 * time.Second,
	}
}

// Analyze implements Client.
func (c *OpenAICompatClient) Analyze(ctx context.Context, jpeg []byte, streamName string, rules []Rule) (AnalysisResult, error) {
	dataURL := fmt.Sprintf("data:image/jpeg;base64,%s", base64.StdEncoding.EncodeToString(jpeg))

	content := []openai.ChatCompletionContentPartUnionParam{
		openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL: dataURL,
		}),
		openai.TextContentPart(UserPrompt(streamName)),
	}

	schemaParam := openai.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:        "vlm_response",
		Description: openai.String("Security camera frame analysis"),
		Schema:      generateResponseSchema(),
		Strict:      openai.Bool(true),
	}

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(SystemPrompt + BuildRulesAddendum(rules)),
			openai.UserMessage(content),
		},
		MaxTokens: openai.Int(1000),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{JSONSchema: schemaParam},
		},
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.Chat.Completions.New(timeoutCtx, params)
	if err != nil {
		return AnalysisResult{}, apperr.Wrap(apperr.Vlm, "openai-compat request failed", err)
	}
	if len(resp.Choices) == 0 {
		return AnalysisResult{}, apperr.New(apperr.Vlm, "openai-compat response had no choices")
	}

	raw := resp.Choices[0].Message.Content
	log.Printf("[vlm.OpenAICompat] model=%s raw=%q", c.model, raw)

	return ParseOrFallback(raw), nil
}
