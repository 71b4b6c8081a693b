package invoke

import (
	"context"
	"encoding/json"
	"fmt"

	"gradeflow/internal/cachestore"
	"gradeflow/internal/core"
	"gradeflow/internal/gemini"
)

// ModerationEntry is one graded answer submitted for the consistency pass.
// Row numbers let the model reference peers in its notes.
type ModerationEntry struct {
	Row           int     `json:"row"`
	StudentID     string  `json:"student_id"`
	ExtractedText string  `json:"extracted_text"`
	Mark          float64 `json:"mark"`
}

// ModerateRequest reviews all graded answers for one question.
type ModerateRequest struct {
	Question string
	Scheme   string
	MaxMarks float64
	Entries  []ModerationEntry
}

type moderationEntryCache struct {
	Items []core.ModerationItem `json:"items"`
}

// Moderate asks the moderation model whether similar answers received
// similar marks. The result is advisory: flags and notes for manual review,
// never mark changes. The degraded fallback keeps the original marks with no
// flags so a moderation outage cannot block a run.
func (inv *Invoker) Moderate(ctx context.Context, req ModerateRequest) ([]core.ModerationItem, Source) {
	fallback := make([]core.ModerationItem, len(req.Entries))
	for i, e := range req.Entries {
		fallback[i] = core.ModerationItem{ModeratedMark: e.Mark, Flag: false, Note: "moderation_error"}
	}
	if len(req.Entries) == 0 {
		return nil, SourceComputed
	}

	entriesJSON, err := json.Marshal(req.Entries)
	if err != nil {
		inv.log.Error("failed to marshal moderation entries", "error", err)
		return fallback, SourceDegraded
	}

	key := cachestore.Key(cachestore.CategoryModeration, map[string]any{
		"model":    inv.models.Moderation,
		"question": req.Question,
		"scheme":   req.Scheme,
		"marks":    req.MaxMarks,
		"entries":  string(entriesJSON),
	})

	var cached moderationEntryCache
	if inv.lookup(ctx, cachestore.CategoryModeration, key, &cached) && len(cached.Items) == len(req.Entries) {
		return cached.Items, SourceCache
	}

	prompt := fmt.Sprintf(`Question: %s
Marking scheme: %s
Total marks: %g

Review %d student responses and ensure similar answers receive similar marks.

Return JSON with "items" array of %d objects:
- "moderated_mark": number (0 to %g)
- "flag": boolean (true if adjusted or needs review)
- "note": string (max 120 chars, reference peers by row number)

Responses:
%s`, req.Question, req.Scheme, req.MaxMarks, len(req.Entries), len(req.Entries), req.MaxMarks, entriesJSON)

	cfg := gemini.GenerationConfig{
		Temperature:      0,
		TopP:             0.3,
		MaxOutputTokens:  65535,
		ResponseMIMEType: "application/json",
	}

	items, err := generateParsed(inv, ctx, cachestore.CategoryModeration, inv.models.Moderation,
		[]gemini.Part{gemini.TextPart(prompt)}, cfg,
		func(raw string) ([]core.ModerationItem, Outcome) {
			return parseModeration(raw, len(req.Entries))
		})
	if err != nil {
		inv.log.Error("moderation failed", "question", req.Question, "error", err)
		return fallback, SourceDegraded
	}

	for i := range items {
		items[i].ModeratedMark = clampMark(items[i].ModeratedMark, req.MaxMarks)
	}

	inv.save(ctx, cachestore.CategoryModeration, key, moderationEntryCache{Items: items})
	return items, SourceComputed
}

func clampMark(mark, maxMarks float64) float64 {
	if mark < 0 {
		return 0
	}
	if mark > maxMarks {
		return maxMarks
	}
	return mark
}
