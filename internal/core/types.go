// Package core defines the domain types and error taxonomy shared across the
// grading pipeline.
package core

// Metadata question identifiers. These fields are structurally present among
// work items (students fill them in on the script) but are never graded and
// must be excluded from completeness checks and statistics.
const (
	QuestionName  = "NAME"
	QuestionID    = "ID"
	QuestionClass = "CLASS"
)

// DefaultMetadataQuestions returns the reserved identifier fields.
func DefaultMetadataQuestions() []string {
	return []string{QuestionName, QuestionID, QuestionClass}
}

// Question is one gradable (or metadata) unit of the exam.
type Question struct {
	ID       string  `json:"id" yaml:"id"`
	Text     string  `json:"text" yaml:"text"`
	Scheme   string  `json:"scheme" yaml:"scheme"`
	MaxMarks float64 `json:"max_marks" yaml:"max_marks"`
	Metadata bool    `json:"metadata" yaml:"metadata"`
}

// Student is one roster record.
type Student struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Class string `json:"class" yaml:"class"`
}

// WorkItem is one (student, question) grading unit. Exactly one of Answer or
// Image is set: Answer for pre-extracted text, Image for a scanned answer
// cell that still needs OCR.
type WorkItem struct {
	StudentID  string
	QuestionID string
	Answer     string
	Image      []byte
}

// GradingResult is the structured outcome of grading a single answer.
type GradingResult struct {
	ExtractedText   string   `json:"extracted_text"`
	SimilarityScore float64  `json:"similarity_score"`
	Mark            float64  `json:"mark"`
	Reasoning       string   `json:"reasoning"`
	Confidence      *float64 `json:"confidence,omitempty"`
	ProcessingTime  float64  `json:"processing_time,omitempty"`
}

// Clamp forces the numeric fields into their valid domains: the similarity
// score into [0,1] and the mark into [0,maxMarks]. Upstream responses are not
// trusted to respect either bound. Clamping is idempotent.
func (r *GradingResult) Clamp(maxMarks float64) {
	r.SimilarityScore = clamp(r.SimilarityScore, 0, 1)
	r.Mark = clamp(r.Mark, 0, maxMarks)
	if r.Confidence != nil {
		c := clamp(*r.Confidence, 0, 1)
		r.Confidence = &c
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ModerationItem is the per-answer outcome of the consistency pass. The
// moderated mark is advisory: it never replaces the authoritative mark, it
// only drives the review flag and note.
type ModerationItem struct {
	ModeratedMark float64 `json:"moderated_mark"`
	Flag          bool    `json:"flag"`
	Note          string  `json:"note"`
}

// BoundingBox is one extracted answer-cell region on a scanned page.
type BoundingBox struct {
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Label  string `json:"label"`
}
