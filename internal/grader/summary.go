package grader

import (
	"sort"
	"time"
)

// QuestionStats aggregates one gradable question across students. Means and
// medians are over final marks, so operator overrides are reflected.
type QuestionStats struct {
	QuestionID string  `json:"question_id"`
	MaxMarks   float64 `json:"max_marks"`
	Answered   int     `json:"answered"`
	Unanswered int     `json:"unanswered"`
	Mean       float64 `json:"mean"`
	Median     float64 `json:"median"`
	Flagged    int     `json:"flagged"`
}

// StudentStats aggregates one student's row. Completeness counts answered
// gradable questions only; metadata fields never enter the denominator.
type StudentStats struct {
	StudentID    string  `json:"student_id"`
	Total        float64 `json:"total"`
	Answered     int     `json:"answered"`
	Questions    int     `json:"questions"`
	Completeness float64 `json:"completeness"`
}

// RosterReport cross-checks work items against the roster.
type RosterReport struct {
	// Missing students are in the roster but produced no work items.
	Missing []string `json:"missing,omitempty"`
	// Extra students produced work items but are not in the roster.
	Extra []string `json:"extra,omitempty"`
}

// ItemRef names one degraded cell in the summary.
type ItemRef struct {
	StudentID  string `json:"student_id"`
	QuestionID string `json:"question_id"`
	Reason     string `json:"reason,omitempty"`
}

// Summary is the run report.
type Summary struct {
	RunID      string    `json:"run_id"`
	Exam       string    `json:"exam"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Items       int `json:"items"`
	CacheHits   int `json:"cache_hits"`
	CacheMisses int `json:"cache_misses"`
	Computed    int `json:"computed"`
	Degraded    int `json:"degraded"`
	Flagged     int `json:"flagged"`

	DegradedItems []ItemRef       `json:"degraded_items,omitempty"`
	Questions     []QuestionStats `json:"questions"`
	Students      []StudentStats  `json:"students"`
	Roster        RosterReport    `json:"roster"`
}

func mean(marks []float64) float64 {
	if len(marks) == 0 {
		return 0
	}
	var sum float64
	for _, m := range marks {
		sum += m
	}
	return sum / float64(len(marks))
}

func median(marks []float64) float64 {
	if len(marks) == 0 {
		return 0
	}
	sorted := make([]float64, len(marks))
	copy(sorted, marks)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
