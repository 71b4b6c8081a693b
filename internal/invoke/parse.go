package invoke

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"

	"gradeflow/internal/core"
)

// Outcome tags how a raw AI response was turned into a structured result.
type Outcome int

const (
	// Parsed means the response decoded strictly into the target shape.
	Parsed Outcome = iota
	// FallbackParsed means the strict decode failed but the relevant fields
	// were recovered from the raw text.
	FallbackParsed
	// Unparseable means no fields could be recovered.
	Unparseable
)

func unparseableError(raw string) *core.GraderError {
	snippet := raw
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}
	return core.NewParseError("response did not contain a usable result: "+snippet, nil)
}

// stripFences removes a surrounding markdown code fence, which the model
// emits even when asked for bare JSON.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// extractObject returns the outermost {...} span in raw, for responses that
// wrap JSON in prose.
func extractObject(raw string) (string, bool) {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return raw[start : end+1], true
}

// parseGrading decodes a grading response. The strict path requires valid
// JSON with a numeric mark; the fallback scans whatever JSON-ish object the
// raw text contains.
func parseGrading(raw string) (core.GradingResult, Outcome) {
	cleaned := stripFences(raw)

	var result core.GradingResult
	if err := json.Unmarshal([]byte(cleaned), &result); err == nil && gjson.Get(cleaned, "mark").Exists() {
		return result, Parsed
	}

	obj, ok := extractObject(cleaned)
	if !ok {
		return core.GradingResult{}, Unparseable
	}
	parsed := gjson.Parse(obj)
	mark := parsed.Get("mark")
	score := parsed.Get("similarity_score")
	if !mark.Exists() && !score.Exists() {
		return core.GradingResult{}, Unparseable
	}

	result = core.GradingResult{
		ExtractedText:   parsed.Get("extracted_text").String(),
		SimilarityScore: score.Float(),
		Mark:            mark.Float(),
		Reasoning:       parsed.Get("reasoning").String(),
	}
	if c := parsed.Get("confidence"); c.Exists() {
		v := c.Float()
		result.Confidence = &v
	}
	return result, FallbackParsed
}

// parseModeration decodes a moderation response into exactly want items. A
// count mismatch is unparseable: a partial item list cannot be aligned back
// to the entries it describes.
func parseModeration(raw string, want int) ([]core.ModerationItem, Outcome) {
	cleaned := stripFences(raw)

	var response struct {
		Items []core.ModerationItem `json:"items"`
	}
	if err := json.Unmarshal([]byte(cleaned), &response); err == nil && len(response.Items) == want {
		return response.Items, Parsed
	}

	obj, ok := extractObject(cleaned)
	if !ok {
		return nil, Unparseable
	}
	items := gjson.Get(obj, "items")
	if !items.IsArray() {
		return nil, Unparseable
	}

	var out []core.ModerationItem
	items.ForEach(func(_, item gjson.Result) bool {
		out = append(out, core.ModerationItem{
			ModeratedMark: item.Get("moderated_mark").Float(),
			Flag:          item.Get("flag").Bool(),
			Note:          item.Get("note").String(),
		})
		return true
	})
	if len(out) != want {
		return nil, Unparseable
	}
	return out, FallbackParsed
}

// parseReport decodes a report response. Free-text fallback is acceptable
// here: if the model ignored the JSON schema and wrote the report directly,
// the report is still the product.
func parseReport(raw string) (string, Outcome) {
	cleaned := stripFences(raw)

	var response struct {
		ReportText string `json:"report_text"`
	}
	if err := json.Unmarshal([]byte(cleaned), &response); err == nil && response.ReportText != "" {
		return response.ReportText, Parsed
	}

	if obj, ok := extractObject(cleaned); ok {
		if text := gjson.Get(obj, "report_text"); text.Exists() && text.String() != "" {
			return text.String(), FallbackParsed
		}
	}

	if cleaned == "" {
		return "", Unparseable
	}
	return cleaned, FallbackParsed
}
