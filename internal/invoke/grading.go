package invoke

import (
	"context"
	"fmt"

	"gradeflow/internal/cachestore"
	"gradeflow/internal/core"
	"gradeflow/internal/gemini"
)

// GradeRequest grades a pre-extracted answer text.
type GradeRequest struct {
	Question string
	Answer   string
	Scheme   string
	MaxMarks float64
}

// GradeScriptRequest grades a scanned answer cell: the model first reads the
// handwriting, then grades what it read.
type GradeScriptRequest struct {
	Question string
	Scheme   string
	MaxMarks float64
	Image    []byte
}

func gradingConfig() gemini.GenerationConfig {
	return gemini.GenerationConfig{
		Temperature:      0,
		TopP:             0.3,
		MaxOutputTokens:  8192,
		ResponseMIMEType: "application/json",
	}
}

func gradingPrompt(question, scheme, answer string, maxMarks float64) string {
	return fmt.Sprintf(`<QUESTION>
%s
</QUESTION>

<MARKING_SCHEME>
%s
</MARKING_SCHEME>

<TOTAL_MARKS>
%g
</TOTAL_MARKS>

<STUDENT_ANSWER>
%s
</STUDENT_ANSWER>

Provide:
1. extracted_text: The student answer provided above
2. reasoning: Brief explanation of the scoring
3. similarity_score: Score from 0 to 1
4. mark: Actual mark to award (0 to %g)`, question, scheme, maxMarks, answer, maxMarks)
}

// GradeAnswer grades one answer text against the marking scheme. Remote or
// parse failures never propagate: the degraded result carries a zero mark
// and an explicit failure marker so the batch can continue.
func (inv *Invoker) GradeAnswer(ctx context.Context, req GradeRequest) (core.GradingResult, Source) {
	if req.Answer == "" {
		return core.GradingResult{
			SimilarityScore: 0,
			Mark:            0,
			Reasoning:       "No answer provided",
		}, SourceDegraded
	}

	key := cachestore.Key(cachestore.CategoryGradeAnswer, map[string]any{
		"model":    inv.models.Default,
		"question": req.Question,
		"answer":   req.Answer,
		"scheme":   req.Scheme,
		"marks":    req.MaxMarks,
	})

	var cached core.GradingResult
	if inv.lookup(ctx, cachestore.CategoryGradeAnswer, key, &cached) {
		return cached, SourceCache
	}

	parts := []gemini.Part{gemini.TextPart(gradingPrompt(req.Question, req.Scheme, req.Answer, req.MaxMarks))}

	result, err := generateParsed(inv, ctx, cachestore.CategoryGradeAnswer, inv.models.Default,
		parts, gradingConfig(), parseGrading)
	if err != nil {
		inv.log.Error("grading failed", "error", err)
		return core.GradingResult{
			ExtractedText: req.Answer,
			Reasoning:     fmt.Sprintf("Error: grading failed - %v", err),
		}, SourceDegraded
	}

	result.Clamp(req.MaxMarks)
	inv.save(ctx, cachestore.CategoryGradeAnswer, key, result)
	return result, SourceComputed
}

// GradeScript grades a scanned answer cell in a single call carrying the
// image and the grading context.
func (inv *Invoker) GradeScript(ctx context.Context, req GradeScriptRequest) (core.GradingResult, Source) {
	if len(req.Image) == 0 {
		inv.log.Error("no image data provided for script grading")
		return core.GradingResult{Reasoning: "Error: no image data"}, SourceDegraded
	}

	key := cachestore.Key(cachestore.CategoryGradeScript, map[string]any{
		"model":      inv.models.Default,
		"question":   req.Question,
		"scheme":     req.Scheme,
		"marks":      req.MaxMarks,
		"image_hash": cachestore.HashBytes(req.Image),
	})

	var cached core.GradingResult
	if inv.lookup(ctx, cachestore.CategoryGradeScript, key, &cached) {
		return cached, SourceCache
	}

	prompt := fmt.Sprintf(`<QUESTION>
%s
</QUESTION>

<MARKING_SCHEME>
%s
</MARKING_SCHEME>

<TOTAL_MARKS>
%g
</TOTAL_MARKS>

Read the handwritten answer in the provided image, then grade it against the
marking scheme above.

Provide:
1. extracted_text: The handwritten text exactly as read
2. reasoning: Brief explanation of the scoring
3. similarity_score: Score from 0 to 1
4. mark: Actual mark to award (0 to %g)`, req.Question, req.Scheme, req.MaxMarks, req.MaxMarks)

	parts := []gemini.Part{
		gemini.ImagePart(req.Image),
		gemini.TextPart(prompt),
	}

	result, err := generateParsed(inv, ctx, cachestore.CategoryGradeScript, inv.models.Default,
		parts, gradingConfig(), parseGrading)
	if err != nil {
		inv.log.Error("script grading failed", "error", err)
		return core.GradingResult{
			Reasoning: fmt.Sprintf("Error: grading failed - %v", err),
		}, SourceDegraded
	}

	result.Clamp(req.MaxMarks)
	inv.save(ctx, cachestore.CategoryGradeScript, key, result)
	return result, SourceComputed
}
