// Package vlm defines the VLM client contract, its two concrete providers,
// and the best-effort parser for model output.
package vlm

import (
	"context"
	"strings"
)

// RiskLevel is the VLM's assessed threat level for a frame.
type RiskLevel string

const (
	RiskNone   RiskLevel = "none"
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// DetectedEvent is one structured observation within an AnalysisResult.
type DetectedEvent struct {
	Type       string  `json:"event_type"`
	Details    *string `json:"details,omitempty"`
	Confidence float64 `json:"confidence"`
}

// AnalysisResult is the structured outcome of one VLM call.
type AnalysisResult struct {
	Title         *string         `json:"title,omitempty"`
	Description   string          `json:"description"`
	Events        []DetectedEvent `json:"events"`
	RiskLevel     RiskLevel       `json:"risk_level"`
	TriggeredRule *string         `json:"triggered_rule,omitempty"`
}

// Rule is a per-stream rule embedded into the prompt to steer risk
// assessment.
type Rule struct {
	Description string
	ThreatLevel RiskLevel
}

// Client analyzes a single JPEG frame and returns a structured result, or an
// error tagged apperr.Vlm on upstream failure.
type Client interface {
	Analyze(ctx context.Context, jpeg []byte, streamName string, rules []Rule) (AnalysisResult, error)
}

// EventTypes is the closed set of event_type values the VLM may emit,
// embedded in the system prompt.
var EventTypes = []string{
	"person_detected",
	"vehicle_detected",
	"crowd_detected",
	"fire_detected",
	"smoke_detected",
	"unusual_activity",
	"empty_scene",
	"animal_detected",
	"package_left",
}

// SystemPrompt is the shared instruction both providers send before the
// image, taken nearly verbatim from original_source's vlm/mod.rs.
const SystemPrompt = `You are a security camera analysis AI.
Analyze the provided camera frame and respond ONLY with a valid JSON object using this exact schema:

{
  "title": "optional short title, 4 words or fewer, or null",
  "description": "Brief natural language description of the scene",
  "events": [
    {
      "event_type": "one of: person_detected, vehicle_detected, crowd_detected, fire_detected, smoke_detected, unusual_activity, empty_scene, animal_detected, package_left",
      "details": "optional string with additional details, or null",
      "confidence": 0.95
    }
  ],
  "risk_level": "one of: none, low, medium, high",
  "triggered_rule": "verbatim text of the rule below that was triggered, or null"
}

Return ONLY the JSON object. Do not include any other text, markdown, or explanation.`

// BuildRulesAddendum appends the rules-specific instruction to the system
// prompt. When rules are present, the model is told to copy the triggered
// rule verbatim or use null; when absent, it is told to always use null.
func BuildRulesAddendum(rules []Rule) string {
	if len(rules) == 0 {
		return "\n\nNo custom rules are configured for this stream. Always set \"triggered_rule\" to null."
	}

	var b strings.Builder
	b.WriteString("\n\nThe following custom rules apply to this stream. If the scene matches one, copy its description verbatim into \"triggered_rule\"; otherwise use null.\n")
	for _, r := range rules {
		b.WriteString("- [")
		b.WriteString(string(r.ThreatLevel))
		b.WriteString("] ")
		b.WriteString(r.Description)
		b.WriteString("\n")
	}
	return b.String()
}

// UserPrompt is the per-call instruction accompanying the image.
func UserPrompt(streamName string) string {
	return "Analyze this security camera frame from '" + streamName + "'. Respond with the required JSON."
}
