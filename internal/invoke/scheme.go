package invoke

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"gradeflow/internal/cachestore"
	"gradeflow/internal/core"
	"gradeflow/internal/gemini"
)

// SchemeQuestion is one question extracted from a marking scheme document.
type SchemeQuestion struct {
	Number string `json:"question_number"`
	Text   string `json:"question_text"`
	Scheme string `json:"marking_scheme"`
	Marks  int    `json:"marks"`
}

// MarkingScheme is the structured content of a marking scheme document.
type MarkingScheme struct {
	GeneralGuide string           `json:"general_grading_guide"`
	Questions    []SchemeQuestion `json:"questions"`
}

const markingSchemePrompt = `Please analyze this marking scheme document and extract structured data.

EXTRACT:
1. GENERAL GRADING GUIDE: any guidance for partial marks that applies across questions (markdown formatted)
2. FOR EACH QUESTION:
   - Question number (normalize to consistent format)
   - Question text (complete question statement)
   - Marking scheme (markdown: bullet points, numbered lists, point allocations in parentheses)
   - Total marks available (positive integer, 1-100)

Ensure all questions have non-empty marking schemes, and fold general grading
principles into each question's scheme where they apply.`

// ExtractMarkingScheme extracts questions and schemes from a document. Unlike
// the per-item operations this propagates failure: the run cannot proceed
// without a marking scheme, so there is no sensible degraded value.
func (inv *Invoker) ExtractMarkingScheme(ctx context.Context, document string) (*MarkingScheme, error) {
	key := cachestore.Key(cachestore.CategoryMarkingScheme, map[string]any{
		"model":    inv.models.Default,
		"document": document,
	})

	var cached MarkingScheme
	if inv.lookup(ctx, cachestore.CategoryMarkingScheme, key, &cached) && len(cached.Questions) > 0 {
		return &cached, nil
	}

	prompt := fmt.Sprintf("%s\n\n**Document Content:**\n\n%s", markingSchemePrompt, document)
	cfg := gemini.GenerationConfig{
		Temperature:      0.1,
		TopP:             0.5,
		MaxOutputTokens:  8192,
		ResponseMIMEType: "application/json",
	}

	scheme, err := generateParsed(inv, ctx, cachestore.CategoryMarkingScheme, inv.models.Default,
		[]gemini.Part{gemini.TextPart(prompt)}, cfg, parseMarkingScheme)
	if err != nil {
		return nil, fmt.Errorf("marking scheme extraction failed: %w", err)
	}

	inv.save(ctx, cachestore.CategoryMarkingScheme, key, scheme)
	return &scheme, nil
}

func parseMarkingScheme(raw string) (MarkingScheme, Outcome) {
	cleaned := stripFences(raw)

	var scheme MarkingScheme
	if err := json.Unmarshal([]byte(cleaned), &scheme); err == nil && len(scheme.Questions) > 0 {
		return scheme, Parsed
	}

	obj, ok := extractObject(cleaned)
	if !ok {
		return MarkingScheme{}, Unparseable
	}
	questions := gjson.Get(obj, "questions")
	if !questions.IsArray() {
		return MarkingScheme{}, Unparseable
	}

	scheme = MarkingScheme{GeneralGuide: gjson.Get(obj, "general_grading_guide").String()}
	questions.ForEach(func(_, q gjson.Result) bool {
		scheme.Questions = append(scheme.Questions, SchemeQuestion{
			Number: q.Get("question_number").String(),
			Text:   q.Get("question_text").String(),
			Scheme: q.Get("marking_scheme").String(),
			Marks:  int(q.Get("marks").Int()),
		})
		return true
	})
	if len(scheme.Questions) == 0 {
		return MarkingScheme{}, Unparseable
	}
	return scheme, FallbackParsed
}

const annotationPrompt = `Extract the coordinates of bounding boxes for each question/answer cell from the table in the image.

- Identify all table cells that contain question numbers (e.g. "1", "2", "Q1", "22a")
- Each bounding box should cover the entire cell area where a student writes the answer
- Do NOT include cells marked as non-answer areas
- Also identify the special fields NAME, ID and CLASS

For each box provide x, y, width, height and label (the question number or
field name, without any trailing period). Return JSON with a "boxes" array.`

// ExtractAnnotations locates answer cells (and the NAME/ID/CLASS fields) on a
// scanned template page. The degraded result is an empty list so batch page
// processing can continue past one bad page.
func (inv *Invoker) ExtractAnnotations(ctx context.Context, image []byte) ([]core.BoundingBox, Source) {
	if len(image) == 0 {
		inv.log.Error("no image data provided for annotation extraction")
		return nil, SourceDegraded
	}

	key := cachestore.Key(cachestore.CategoryAnnotation, map[string]any{
		"model":      inv.models.Default,
		"image_hash": cachestore.HashBytes(image),
	})

	var cached struct {
		Boxes []core.BoundingBox `json:"boxes"`
	}
	if inv.lookup(ctx, cachestore.CategoryAnnotation, key, &cached) {
		return cached.Boxes, SourceCache
	}

	parts := []gemini.Part{
		gemini.ImagePart(image),
		gemini.TextPart(annotationPrompt),
	}
	cfg := gemini.GenerationConfig{
		Temperature:      0,
		TopP:             0.5,
		MaxOutputTokens:  65535,
		ResponseMIMEType: "application/json",
	}

	boxes, err := generateParsed(inv, ctx, cachestore.CategoryAnnotation, inv.models.Default,
		parts, cfg, parseAnnotations)
	if err != nil {
		inv.log.Error("annotation extraction failed", "error", err)
		return nil, SourceDegraded
	}

	cached.Boxes = boxes
	inv.save(ctx, cachestore.CategoryAnnotation, key, cached)
	return boxes, SourceComputed
}

func parseAnnotations(raw string) ([]core.BoundingBox, Outcome) {
	cleaned := stripFences(raw)

	var response struct {
		Boxes []core.BoundingBox `json:"boxes"`
	}
	if err := json.Unmarshal([]byte(cleaned), &response); err == nil && response.Boxes != nil {
		return response.Boxes, Parsed
	}

	obj, ok := extractObject(cleaned)
	if !ok {
		return nil, Unparseable
	}
	boxes := gjson.Get(obj, "boxes")
	if !boxes.IsArray() {
		return nil, Unparseable
	}

	var out []core.BoundingBox
	boxes.ForEach(func(_, b gjson.Result) bool {
		out = append(out, core.BoundingBox{
			X:      int(b.Get("x").Int()),
			Y:      int(b.Get("y").Int()),
			Width:  int(b.Get("width").Int()),
			Height: int(b.Get("height").Int()),
			Label:  b.Get("label").String(),
		})
		return true
	})
	return out, FallbackParsed
}
