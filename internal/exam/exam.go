// Package exam loads and validates the exam definition file: questions with
// their marking schemes, the student roster, and the sources of answers to
// grade.
package exam

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"gradeflow/internal/core"
)

// Models overrides the default model assignment for one exam.
type Models struct {
	Default    string `yaml:"default"`
	Moderation string `yaml:"moderation"`
}

// Sources names where student answers come from. Exactly one is used:
// AnswersFile for pre-extracted text, ImagesDir for scanned answer cells
// (one subdirectory per student, one image per question).
type Sources struct {
	AnswersFile string `yaml:"answers_file"`
	ImagesDir   string `yaml:"images_dir"`
}

// Override is an operator-entered mark for one (student, question) cell. It
// takes precedence over whatever the AI awarded.
type Override struct {
	StudentID  string  `yaml:"student"`
	QuestionID string  `yaml:"question"`
	Mark       float64 `yaml:"mark"`
}

// Exam is the full exam definition.
type Exam struct {
	Name       string          `yaml:"name"`
	Models     Models          `yaml:"models"`
	Questions  []core.Question `yaml:"questions"`
	Roster     []core.Student  `yaml:"roster"`
	RosterFile string          `yaml:"roster_file"`
	// SchemeFile points at a marking scheme document whose extracted rubric
	// text fills questions that declare no scheme of their own.
	SchemeFile string     `yaml:"scheme_file"`
	Sources    Sources    `yaml:"sources"`
	Overrides  []Override `yaml:"overrides"`

	// dir is the directory of the exam file, for resolving relative paths.
	dir string
}

// Load reads and validates an exam definition. RosterFile, when set, is
// resolved relative to the exam file and replaces any inline roster.
func Load(path string) (*Exam, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read exam file: %w", err)
	}

	var ex Exam
	if err := yaml.Unmarshal(data, &ex); err != nil {
		return nil, fmt.Errorf("parse exam file %s: %w", path, err)
	}
	ex.dir = filepath.Dir(path)

	if ex.RosterFile != "" {
		roster, err := loadRoster(ex.resolve(ex.RosterFile))
		if err != nil {
			return nil, err
		}
		ex.Roster = roster
	}

	if err := ex.Validate(); err != nil {
		return nil, err
	}
	return &ex, nil
}

func loadRoster(path string) ([]core.Student, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster file: %w", err)
	}
	var doc struct {
		Roster []core.Student `yaml:"roster"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse roster file %s: %w", path, err)
	}
	return doc.Roster, nil
}

func (ex *Exam) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(ex.dir, path)
}

// Validate checks the structural invariants of the definition. A definition
// that fails validation must stop the run before any work item is processed.
func (ex *Exam) Validate() error {
	if ex.Name == "" {
		return core.NewInvalidInputError("exam name is required", nil)
	}
	if len(ex.Questions) == 0 {
		return core.NewInvalidInputError("exam defines no questions", nil)
	}

	seen := make(map[string]bool, len(ex.Questions))
	for _, q := range ex.Questions {
		if q.ID == "" {
			return core.NewInvalidInputError("question with empty id", nil)
		}
		if seen[q.ID] {
			return core.NewInvalidInputError(fmt.Sprintf("duplicate question id %q", q.ID), nil)
		}
		seen[q.ID] = true
		if !q.Metadata && q.MaxMarks <= 0 {
			return core.NewInvalidInputError(
				fmt.Sprintf("question %q must have positive max_marks", q.ID), nil)
		}
	}

	ids := make(map[string]bool, len(ex.Roster))
	for _, s := range ex.Roster {
		if strings.TrimSpace(s.ID) == "" {
			return core.NewInvalidInputError("roster entry with empty id", nil)
		}
		if ids[s.ID] {
			return core.NewInvalidInputError(fmt.Sprintf("duplicate roster id %q", s.ID), nil)
		}
		ids[s.ID] = true
	}

	for _, o := range ex.Overrides {
		q, ok := ex.Question(o.QuestionID)
		if !ok {
			return core.NewInvalidInputError(
				fmt.Sprintf("override references unknown question %q", o.QuestionID), nil)
		}
		if o.Mark < 0 || o.Mark > q.MaxMarks {
			return core.NewInvalidInputError(
				fmt.Sprintf("override mark %g for question %q is outside [0,%g]", o.Mark, q.ID, q.MaxMarks), nil)
		}
	}
	return nil
}

// SchemeDocument reads the configured marking scheme document.
func (ex *Exam) SchemeDocument() (string, error) {
	data, err := os.ReadFile(ex.resolve(ex.SchemeFile))
	if err != nil {
		return "", fmt.Errorf("read scheme file: %w", err)
	}
	return string(data), nil
}

// FillSchemes copies rubric text into questions that declare none, matching
// by question id.
func (ex *Exam) FillSchemes(schemes map[string]string) {
	for i := range ex.Questions {
		q := &ex.Questions[i]
		if q.Scheme == "" {
			q.Scheme = schemes[q.ID]
		}
	}
}

// Question returns the question with the given id.
func (ex *Exam) Question(id string) (core.Question, bool) {
	for _, q := range ex.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return core.Question{}, false
}

// MetadataQuestions returns the ids of questions excluded from grading and
// statistics: the reserved identifier fields plus any question marked
// metadata in the definition.
func (ex *Exam) MetadataQuestions() map[string]bool {
	meta := make(map[string]bool)
	for _, id := range core.DefaultMetadataQuestions() {
		meta[id] = true
	}
	for _, q := range ex.Questions {
		if q.Metadata {
			meta[q.ID] = true
		}
	}
	return meta
}

// WorkItems builds the grading work list from the configured source.
func (ex *Exam) WorkItems() ([]core.WorkItem, error) {
	switch {
	case ex.Sources.AnswersFile != "":
		return ex.loadAnswers(ex.resolve(ex.Sources.AnswersFile))
	case ex.Sources.ImagesDir != "":
		return ex.loadImages(ex.resolve(ex.Sources.ImagesDir))
	default:
		return nil, core.NewInvalidInputError("exam defines no answer source", nil)
	}
}

// loadAnswers reads a YAML mapping of student id to question id to answer
// text. Missing answers become empty-answer items so the student still
// appears in the table.
func (ex *Exam) loadAnswers(path string) ([]core.WorkItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read answers file: %w", err)
	}
	var answers map[string]map[string]string
	if err := yaml.Unmarshal(data, &answers); err != nil {
		return nil, fmt.Errorf("parse answers file %s: %w", path, err)
	}

	students := make([]string, 0, len(answers))
	for id := range answers {
		students = append(students, id)
	}
	sort.Strings(students)

	var items []core.WorkItem
	for _, sid := range students {
		for _, q := range ex.Questions {
			if q.Metadata {
				continue
			}
			items = append(items, core.WorkItem{
				StudentID:  sid,
				QuestionID: q.ID,
				Answer:     answers[sid][q.ID],
			})
		}
	}
	return items, nil
}

// loadImages walks <dir>/<student>/<question>.<ext> and builds image work
// items. Files that do not match a known question id are skipped.
func (ex *Exam) loadImages(dir string) ([]core.WorkItem, error) {
	studentDirs, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read images dir: %w", err)
	}

	var items []core.WorkItem
	for _, sd := range studentDirs {
		if !sd.IsDir() {
			continue
		}
		sid := sd.Name()
		files, err := os.ReadDir(filepath.Join(dir, sid))
		if err != nil {
			return nil, fmt.Errorf("read student dir %s: %w", sid, err)
		}
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			qid := strings.TrimSuffix(f.Name(), filepath.Ext(f.Name()))
			if _, ok := ex.Question(qid); !ok {
				continue
			}
			img, err := os.ReadFile(filepath.Join(dir, sid, f.Name()))
			if err != nil {
				return nil, fmt.Errorf("read answer image %s/%s: %w", sid, f.Name(), err)
			}
			items = append(items, core.WorkItem{
				StudentID:  sid,
				QuestionID: qid,
				Image:      img,
			})
		}
	}
	return items, nil
}
