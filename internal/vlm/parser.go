package vlm

import (
	"encoding/json"
	"strings"
)

// ParseOrFallback parses raw VLM text output into an AnalysisResult. It never
// fails: on total parse failure it returns a fallback result carrying the raw
// text as the description.
func ParseOrFallback(raw string) AnalysisResult {
	cleaned := stripCodeFence(raw)

	if result, ok := tryDecode(cleaned); ok {
		return result
	}

	// Chain-of-thought models emit reasoning then a final JSON object. Scan
	// from the rightmost '{' backwards; the first successful decode of the
	// substring from that brace to end-of-text wins. strings.LastIndex finds
	// the innermost brace first (a nested object always opens after its
	// parent's '{' in the text), so an inner fragment like the one object
	// inside events[] is tried before the real outer object. encoding/json
	// has no required-field enforcement, so a bare object such as
	// {"event_type":"...","confidence":0.9} would otherwise decode
	// "successfully" into a zero-value AnalysisResult; tryDecode requires
	// "description" and "risk_level" to be present so that inner candidate
	// fails and the scan backs up to the real object.
	for i := strings.LastIndex(cleaned, "{"); i >= 0; i = lastIndexBefore(cleaned, i) {
		if result, ok := tryDecode(cleaned[i:]); ok {
			return result
		}
	}

	return AnalysisResult{
		Description: raw,
		Events:      []DetectedEvent{},
		RiskLevel:   RiskNone,
	}
}

func tryDecode(s string) (AnalysisResult, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &fields); err != nil {
		return AnalysisResult{}, false
	}
	if _, ok := fields["description"]; !ok {
		return AnalysisResult{}, false
	}
	if _, ok := fields["risk_level"]; !ok {
		return AnalysisResult{}, false
	}

	var result AnalysisResult
	if err := json.Unmarshal([]byte(s), &result); err != nil {
		return AnalysisResult{}, false
	}
	if result.Events == nil {
		result.Events = []DetectedEvent{}
	}
	if result.RiskLevel == "" {
		result.RiskLevel = RiskNone
	}
	return result, true
}

// lastIndexBefore returns the index of the last '{' in s strictly before
// position i, or -1 if none remain.
func lastIndexBefore(s string, i int) int {
	if i <= 0 {
		return -1
	}
	return strings.LastIndex(s[:i], "{")
}

// stripCodeFence trims a leading/trailing markdown code fence that some
// models wrap their JSON output in.
func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
