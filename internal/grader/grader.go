// Package grader orchestrates a grading run: it walks the work items through
// the invocation layer, streams results into the mark table, runs the
// moderation pass, applies operator overrides, and produces the run summary.
package grader

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"gradeflow/internal/core"
	"gradeflow/internal/exam"
	"gradeflow/internal/invoke"
)

// Options configures a Grader.
type Options struct {
	Logger *slog.Logger
	// SkipModeration disables the consistency pass.
	SkipModeration bool
	// Reports enables per-student performance reports and the class overview.
	Reports bool
}

// Grader runs the pipeline for one exam.
type Grader struct {
	inv            *invoke.Invoker
	ex             *exam.Exam
	log            *slog.Logger
	skipModeration bool
	reports        bool
}

// Result holds the mark table, the run summary, and (when enabled) the
// generated reports keyed by student id.
type Result struct {
	Table    *Table
	Summary  Summary
	Reports  map[string]string
	Overview string
}

// New creates a Grader.
func New(inv *invoke.Invoker, ex *exam.Exam, opts Options) *Grader {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Grader{
		inv:            inv,
		ex:             ex,
		log:            opts.Logger,
		skipModeration: opts.SkipModeration,
		reports:        opts.Reports,
	}
}

const ocrPrompt = "Extract the handwritten text from this answer cell. Return only the text, with no commentary. If the cell is empty, return an empty response."

// Run processes the work items sequentially. Items are independent; a failed
// item degrades to a placeholder cell and the run continues. The only errors
// Run returns are context cancellation.
func (g *Grader) Run(ctx context.Context, items []core.WorkItem) (*Result, error) {
	summary := Summary{
		RunID:     uuid.NewString(),
		Exam:      g.ex.Name,
		StartedAt: time.Now(),
		Items:     len(items),
	}
	table := NewTable()
	metadata := g.ex.MetadataQuestions()

	g.log.Info("run started", "run_id", summary.RunID, "exam", g.ex.Name, "items", len(items))

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		key := CellKey{StudentID: item.StudentID, QuestionID: item.QuestionID}

		if metadata[item.QuestionID] {
			g.processMetadata(ctx, table, key, item, &summary)
			continue
		}

		question, ok := g.ex.Question(item.QuestionID)
		if !ok {
			g.log.Warn("work item references unknown question, skipping",
				"student", item.StudentID, "question", item.QuestionID)
			continue
		}
		g.processItem(ctx, table, key, item, question, &summary)
	}

	g.applyOverrides(table)

	if !g.skipModeration {
		g.moderate(ctx, table, metadata, &summary)
	}

	g.aggregate(table, metadata, &summary)

	result := &Result{Table: table}
	if g.reports {
		g.generateReports(ctx, result, metadata, &summary)
	}

	summary.FinishedAt = time.Now()
	result.Summary = summary

	g.log.Info("run finished",
		"run_id", summary.RunID,
		"cache_hits", summary.CacheHits,
		"computed", summary.Computed,
		"degraded", summary.Degraded,
		"flagged", summary.Flagged)

	return result, nil
}

// maxSampleReports bounds how many individual reports feed the class
// overview prompt.
const maxSampleReports = 10

// generateReports writes one performance report per student plus the class
// overview. Report failures degrade to placeholder text like everything
// else; they never abort the run.
func (g *Grader) generateReports(ctx context.Context, result *Result, metadata map[string]bool, summary *Summary) {
	roster := make(map[string]core.Student, len(g.ex.Roster))
	for _, s := range g.ex.Roster {
		roster[s.ID] = s
	}

	result.Reports = make(map[string]string)
	var samples []string
	for _, sid := range result.Table.Students() {
		report, source := g.inv.StudentReport(ctx, invoke.ReportRequest{
			StudentID:       sid,
			StudentName:     roster[sid].Name,
			StudentClass:    roster[sid].Class,
			TotalScore:      result.Table.StudentTotal(sid, metadata),
			QuestionDetails: g.questionDetails(result.Table, sid, metadata),
		})
		g.count(summary, source)
		result.Reports[sid] = report
		if source != invoke.SourceDegraded && len(samples) < maxSampleReports {
			samples = append(samples, report)
		}
	}

	metricsJSON, err := json.Marshal(summary.Questions)
	if err != nil {
		g.log.Warn("failed to encode question stats for the overview", "error", err)
		metricsJSON = []byte("[]")
	}
	overview, source := g.inv.ClassOverview(ctx, invoke.OverviewRequest{
		SummaryJSON:   string(metricsJSON),
		SampleReports: samples,
	})
	g.count(summary, source)
	result.Overview = overview
}

// questionDetails renders one student's row as prompt input for the report.
func (g *Grader) questionDetails(table *Table, studentID string, metadata map[string]bool) string {
	var b strings.Builder
	for _, q := range g.ex.Questions {
		if metadata[q.ID] {
			continue
		}
		cell, ok := table.Get(CellKey{StudentID: studentID, QuestionID: q.ID})
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "Question %s: %s\nMarking scheme: %s\nAwarded: %g/%g\nAnswer: %s\nReasoning: %s\n\n",
			q.ID, q.Text, q.Scheme, cell.FinalMark(), q.MaxMarks, cell.ExtractedText, cell.Reasoning)
	}
	return b.String()
}

// processMetadata fills an identifier cell (NAME, ID, CLASS). These carry no
// mark; a scanned cell is read through OCR, a text item is stored verbatim.
func (g *Grader) processMetadata(ctx context.Context, table *Table, key CellKey, item core.WorkItem, summary *Summary) {
	text := item.Answer
	if len(item.Image) > 0 {
		var source invoke.Source
		text, source = g.inv.OCR(ctx, invoke.OCRRequest{Prompt: ocrPrompt, Image: item.Image})
		g.count(summary, source)
	}
	table.Set(key, &CellResult{
		ExtractedText: text,
		State:         StateComputed,
		Answered:      strings.TrimSpace(text) != "",
	})
}

func (g *Grader) processItem(ctx context.Context, table *Table, key CellKey, item core.WorkItem, question core.Question, summary *Summary) {
	cell := &CellResult{State: StateInvoking}
	table.Set(key, cell)

	var result core.GradingResult
	var source invoke.Source

	if len(item.Image) > 0 {
		result, source = g.inv.GradeScript(ctx, invoke.GradeScriptRequest{
			Question: question.Text,
			Scheme:   question.Scheme,
			MaxMarks: question.MaxMarks,
			Image:    item.Image,
		})
		cell.Answered = strings.TrimSpace(result.ExtractedText) != ""
	} else {
		result, source = g.inv.GradeAnswer(ctx, invoke.GradeRequest{
			Question: question.Text,
			Answer:   item.Answer,
			Scheme:   question.Scheme,
			MaxMarks: question.MaxMarks,
		})
		cell.Answered = strings.TrimSpace(item.Answer) != ""
	}

	cell.Mark = result.Mark
	cell.SimilarityScore = result.SimilarityScore
	cell.ExtractedText = result.ExtractedText
	cell.Reasoning = result.Reasoning
	cell.Confidence = result.Confidence

	switch source {
	case invoke.SourceCache:
		cell.State = StateCached
	case invoke.SourceComputed:
		cell.State = StateComputed
	case invoke.SourceDegraded:
		cell.State = StateFailed
		// An empty answer degrades by definition and is not a failure worth
		// surfacing in the degraded list.
		if cell.Answered {
			summary.DegradedItems = append(summary.DegradedItems, ItemRef{
				StudentID:  key.StudentID,
				QuestionID: key.QuestionID,
				Reason:     result.Reasoning,
			})
		}
	}
	g.count(summary, source)
}

func (g *Grader) count(summary *Summary, source invoke.Source) {
	switch source {
	case invoke.SourceCache:
		summary.CacheHits++
	case invoke.SourceComputed:
		summary.CacheMisses++
		summary.Computed++
	case invoke.SourceDegraded:
		summary.CacheMisses++
		summary.Degraded++
	}
}

func (g *Grader) applyOverrides(table *Table) {
	for _, o := range g.ex.Overrides {
		key := CellKey{StudentID: o.StudentID, QuestionID: o.QuestionID}
		cell, ok := table.Get(key)
		if !ok {
			g.log.Warn("override references a cell with no work item, ignoring",
				"student", o.StudentID, "question", o.QuestionID)
			continue
		}
		mark := o.Mark
		cell.Override = &mark
	}
}

// moderate runs the consistency pass per question over the answered cells.
// Moderation output only flags cells for review; the authoritative mark is
// never changed here.
func (g *Grader) moderate(ctx context.Context, table *Table, metadata map[string]bool, summary *Summary) {
	for _, q := range g.ex.Questions {
		if metadata[q.ID] {
			continue
		}
		cells := table.QuestionCells(q.ID)

		students := make([]string, 0, len(cells))
		for sid, c := range cells {
			if c.Answered {
				students = append(students, sid)
			}
		}
		if len(students) < 2 {
			continue
		}
		sort.Strings(students)

		entries := make([]invoke.ModerationEntry, len(students))
		for i, sid := range students {
			c := cells[sid]
			text := c.ExtractedText
			if text == "" {
				text = c.Reasoning
			}
			entries[i] = invoke.ModerationEntry{
				Row:           i + 1,
				StudentID:     sid,
				ExtractedText: text,
				Mark:          c.Mark,
			}
		}

		items, source := g.inv.Moderate(ctx, invoke.ModerateRequest{
			Question: q.Text,
			Scheme:   q.Scheme,
			MaxMarks: q.MaxMarks,
			Entries:  entries,
		})
		g.count(summary, source)

		for i, sid := range students {
			c := cells[sid]
			c.Flag = items[i].Flag
			c.Note = items[i].Note
			if c.Flag {
				summary.Flagged++
			}
		}
	}
}

func (g *Grader) aggregate(table *Table, metadata map[string]bool, summary *Summary) {
	gradable := 0
	for _, q := range g.ex.Questions {
		if metadata[q.ID] {
			continue
		}
		gradable++
		cells := table.QuestionCells(q.ID)

		stats := QuestionStats{QuestionID: q.ID, MaxMarks: q.MaxMarks}
		var marks []float64
		for _, c := range cells {
			if c.Answered {
				stats.Answered++
				marks = append(marks, c.FinalMark())
			} else {
				stats.Unanswered++
			}
			if c.Flag {
				stats.Flagged++
			}
		}
		stats.Mean = mean(marks)
		stats.Median = median(marks)
		summary.Questions = append(summary.Questions, stats)
	}

	for _, sid := range table.Students() {
		stats := StudentStats{
			StudentID: sid,
			Total:     table.StudentTotal(sid, metadata),
			Questions: gradable,
		}
		for _, q := range g.ex.Questions {
			if metadata[q.ID] {
				continue
			}
			if c, ok := table.Get(CellKey{StudentID: sid, QuestionID: q.ID}); ok && c.Answered {
				stats.Answered++
			}
		}
		if gradable > 0 {
			stats.Completeness = float64(stats.Answered) / float64(gradable) * 100
		}
		summary.Students = append(summary.Students, stats)
	}

	summary.Roster = g.rosterReport(table)
}

// rosterReport cross-checks table students against the roster. With no
// roster configured there is nothing to check.
func (g *Grader) rosterReport(table *Table) RosterReport {
	if len(g.ex.Roster) == 0 {
		return RosterReport{}
	}

	inTable := make(map[string]bool)
	for _, sid := range table.Students() {
		inTable[sid] = true
	}
	inRoster := make(map[string]bool, len(g.ex.Roster))

	var report RosterReport
	for _, s := range g.ex.Roster {
		inRoster[s.ID] = true
		if !inTable[s.ID] {
			report.Missing = append(report.Missing, s.ID)
		}
	}
	for _, sid := range table.Students() {
		if !inRoster[sid] {
			report.Extra = append(report.Extra, sid)
		}
	}
	sort.Strings(report.Missing)
	sort.Strings(report.Extra)
	return report
}
