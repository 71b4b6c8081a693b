package grader

import (
	"sort"
)

// CellState is the terminal state of one work item. Every item ends in one of
// the three terminal states and feeds aggregation either way.
type CellState int

const (
	// StatePending marks an item not yet processed.
	StatePending CellState = iota
	// StateInvoking marks the item currently being graded.
	StateInvoking
	// StateCached means the result came from the store without an AI call.
	StateCached
	// StateComputed means the AI produced the result this run.
	StateComputed
	// StateFailed means grading degraded; the cell holds the placeholder.
	StateFailed
)

func (s CellState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateInvoking:
		return "invoking"
	case StateCached:
		return "cached"
	case StateComputed:
		return "computed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// CellKey addresses one (student, question) cell.
type CellKey struct {
	StudentID  string `json:"student_id"`
	QuestionID string `json:"question_id"`
}

// CellResult is one graded cell. Mark is the AI-awarded mark; Override, when
// set, is an operator decision that supersedes it. Flag and Note come from
// the moderation pass and never change either mark.
type CellResult struct {
	Mark            float64   `json:"mark"`
	SimilarityScore float64   `json:"similarity_score"`
	ExtractedText   string    `json:"extracted_text,omitempty"`
	Reasoning       string    `json:"reasoning,omitempty"`
	Confidence      *float64  `json:"confidence,omitempty"`
	State           CellState `json:"state"`
	Answered        bool      `json:"answered"`
	Flag            bool      `json:"flag,omitempty"`
	Note            string    `json:"note,omitempty"`
	Override        *float64  `json:"override,omitempty"`
}

// FinalMark resolves the precedence rule: an operator override wins over the
// AI mark. Moderation never enters into it.
func (c *CellResult) FinalMark() float64 {
	if c.Override != nil {
		return *c.Override
	}
	return c.Mark
}

// Table is the in-memory mark table, keyed by (student, question). It is
// built by streaming item results in any order; the content depends only on
// the set of results, never on arrival order.
type Table struct {
	cells map[CellKey]*CellResult
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{cells: make(map[CellKey]*CellResult)}
}

// Set records a cell result, replacing any previous result for the key.
func (t *Table) Set(key CellKey, result *CellResult) {
	t.cells[key] = result
}

// Get returns the cell for a key.
func (t *Table) Get(key CellKey) (*CellResult, bool) {
	c, ok := t.cells[key]
	return c, ok
}

// Len returns the number of cells.
func (t *Table) Len() int {
	return len(t.cells)
}

// Students returns the distinct student ids in the table, sorted.
func (t *Table) Students() []string {
	seen := make(map[string]bool)
	for k := range t.cells {
		seen[k.StudentID] = true
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// QuestionCells returns the cells for one question keyed by student id.
func (t *Table) QuestionCells(questionID string) map[string]*CellResult {
	out := make(map[string]*CellResult)
	for k, c := range t.cells {
		if k.QuestionID == questionID {
			out[k.StudentID] = c
		}
	}
	return out
}

// StudentTotal sums the final marks of one student's cells, skipping the
// metadata questions.
func (t *Table) StudentTotal(studentID string, metadata map[string]bool) float64 {
	var total float64
	for k, c := range t.cells {
		if k.StudentID != studentID || metadata[k.QuestionID] {
			continue
		}
		total += c.FinalMark()
	}
	return total
}
