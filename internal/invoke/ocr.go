package invoke

import (
	"context"

	"gradeflow/internal/cachestore"
	"gradeflow/internal/gemini"
)

// OCRRequest asks for the text content of one scanned answer cell.
type OCRRequest struct {
	Prompt string
	Image  []byte
}

// ocrEntry is the cached shape for OCR results.
type ocrEntry struct {
	Result string `json:"result"`
}

// OCR extracts text from an image. The degraded result is an empty string;
// downstream grading treats it like a blank answer.
func (inv *Invoker) OCR(ctx context.Context, req OCRRequest) (string, Source) {
	if len(req.Image) == 0 {
		inv.log.Error("no image data provided for OCR")
		return "", SourceDegraded
	}

	key := cachestore.Key(cachestore.CategoryOCR, map[string]any{
		"model":      inv.models.Default,
		"prompt":     req.Prompt,
		"image_hash": cachestore.HashBytes(req.Image),
	})

	var cached ocrEntry
	if inv.lookup(ctx, cachestore.CategoryOCR, key, &cached) {
		return cached.Result, SourceCache
	}

	parts := []gemini.Part{
		gemini.ImagePart(req.Image),
		gemini.TextPart(req.Prompt),
	}
	cfg := gemini.GenerationConfig{
		Temperature:     0,
		TopP:            0.5,
		MaxOutputTokens: 4096,
	}

	text, err := inv.generate(ctx, cachestore.CategoryOCR, inv.models.Default, parts, cfg)
	if err != nil {
		inv.log.Error("OCR failed", "error", err)
		return "", SourceDegraded
	}

	inv.save(ctx, cachestore.CategoryOCR, key, ocrEntry{Result: text})
	return text, SourceComputed
}
