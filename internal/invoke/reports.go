package invoke

import (
	"context"
	"fmt"
	"strings"

	"gradeflow/internal/cachestore"
	"gradeflow/internal/gemini"
)

// ReportRequest generates one student's performance report.
type ReportRequest struct {
	StudentID       string
	StudentName     string
	StudentClass    string
	TotalScore      float64
	QuestionDetails string
}

// OverviewRequest generates the class-level overview from aggregate metrics
// and a sample of individual reports.
type OverviewRequest struct {
	SummaryJSON   string
	SampleReports []string
}

type reportEntry struct {
	ReportText string `json:"report_text"`
}

func reportConfig() gemini.GenerationConfig {
	return gemini.GenerationConfig{
		Temperature:      0.35,
		TopP:             0.9,
		MaxOutputTokens:  1536,
		ResponseMIMEType: "application/json",
	}
}

const studentReportPrompt = `You are an instructor drafting a concise performance report.

Write:
- 2-3 sentence overall summary of strengths and weaknesses.
- One short bullet per question with actionable feedback tied to the marking scheme.
- 2 concrete next-step study suggestions focused on the weakest skills.
Keep it under 220 words and avoid restating the input verbatim.
Return JSON with a single "report_text" field.`

// StudentReport writes one student's performance report. The degraded result
// is an explicit failure message that report assembly can render as-is.
func (inv *Invoker) StudentReport(ctx context.Context, req ReportRequest) (string, Source) {
	key := cachestore.Key(cachestore.CategoryReport, map[string]any{
		"model":   inv.models.Default,
		"student": req.StudentID,
		"score":   req.TotalScore,
		"details": req.QuestionDetails,
	})

	var cached reportEntry
	if inv.lookup(ctx, cachestore.CategoryReport, key, &cached) {
		return cached.ReportText, SourceCache
	}

	prompt := fmt.Sprintf(`%s

Student: %s - %s (Class: %s)
Total score: %g

Use the question details, marking schemes, awarded marks, and answers below:
%s`, studentReportPrompt, req.StudentID, req.StudentName, req.StudentClass, req.TotalScore, req.QuestionDetails)

	report, err := generateParsed(inv, ctx, cachestore.CategoryReport, inv.models.Default,
		[]gemini.Part{gemini.TextPart(prompt)}, reportConfig(), parseReport)
	if err != nil {
		inv.log.Error("student report generation failed", "student", req.StudentID, "error", err)
		return fmt.Sprintf("Report generation failed: %v", err), SourceDegraded
	}

	inv.save(ctx, cachestore.CategoryReport, key, reportEntry{ReportText: report})
	return report, SourceComputed
}

const classOverviewPrompt = `You are summarizing overall class performance from individual reports.

Write a concise class-level overview (<200 words):
- 4-6 bullets on class strengths and weaknesses
- 3 targeted next-step actions for instruction
- 2 questions/topics to re-teach next
Focus on patterns; do not restate student names or IDs.
Return JSON with a single "report_text" field.`

// ClassOverview writes the class-level summary report.
func (inv *Invoker) ClassOverview(ctx context.Context, req OverviewRequest) (string, Source) {
	reportBlob := strings.Join(req.SampleReports, "\n\n---\n\n")

	key := cachestore.Key(cachestore.CategoryOverview, map[string]any{
		"model":   inv.models.Default,
		"summary": req.SummaryJSON,
		"reports": reportBlob,
	})

	var cached reportEntry
	if inv.lookup(ctx, cachestore.CategoryOverview, key, &cached) {
		return cached.ReportText, SourceCache
	}

	prompt := fmt.Sprintf(`%s

Key metrics (JSON): %s
Number of sampled individual reports: %d
Individual reports (separated by ---):
%s`, classOverviewPrompt, req.SummaryJSON, len(req.SampleReports), reportBlob)

	report, err := generateParsed(inv, ctx, cachestore.CategoryOverview, inv.models.Default,
		[]gemini.Part{gemini.TextPart(prompt)}, reportConfig(), parseReport)
	if err != nil {
		inv.log.Error("class overview generation failed", "error", err)
		return "AI-generated class overview temporarily unavailable due to API issues.", SourceDegraded
	}

	inv.save(ctx, cachestore.CategoryOverview, key, reportEntry{ReportText: report})
	return report, SourceComputed
}
