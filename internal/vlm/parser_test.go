package vlm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOrFallback_DirectJSON(t *testing.T) {
	raw := `{"description":"a cat on the porch","events":[],"risk_level":"low"}`
	result := ParseOrFallback(raw)
	assert.Equal(t, "a cat on the porch", result.Description)
	assert.Equal(t, RiskLow, result.RiskLevel)
	assert.Empty(t, result.Events)
	assert.Nil(t, result.Title)
	assert.Nil(t, result.TriggeredRule)
}

func TestParseOrFallback_CodeFence(t *testing.T) {
	raw := "thinking...\n```json\n{\"description\":\"x\",\"events\":[],\"risk_level\":\"low\"}\n```"
	result := ParseOrFallback(raw)
	assert.Equal(t, RiskLow, result.RiskLevel)
	assert.Equal(t, "x", result.Description)
	assert.Empty(t, result.Events)
	assert.Nil(t, result.Title)
	assert.Nil(t, result.TriggeredRule)
}

func TestParseOrFallback_ChainOfThought(t *testing.T) {
	raw := `{ reasoning: ... } final answer: {"description":"y","events":[{"event_type":"person_detected","confidence":0.9}],"risk_level":"medium"}`
	result := ParseOrFallback(raw)
	assert.Equal(t, "y", result.Description)
	assert.Equal(t, RiskMedium, result.RiskLevel)
	require.Len(t, result.Events, 1)
	assert.Equal(t, "person_detected", result.Events[0].Type)
	assert.InDelta(t, 0.9, result.Events[0].Confidence, 0.0001)
}

func TestParseOrFallback_TotalJunkFallsBack(t *testing.T) {
	raw := "the model rambled without any JSON at all"
	result := ParseOrFallback(raw)
	assert.Equal(t, raw, result.Description)
	assert.Equal(t, RiskNone, result.RiskLevel)
	assert.Empty(t, result.Events)
}

func TestParseOrFallback_AlwaysReturnsAResult(t *testing.T) {
	inputs := []string{
		"",
		"{",
		"}}}}",
		`{"events": [{"event_type": "x"}]}`, // missing description, still valid JSON
		"null",
	}
	for _, in := range inputs {
		result := ParseOrFallback(in)
		assert.NotNil(t, result.Events)
	}
}
