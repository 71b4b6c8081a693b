package invoke

import (
	"testing"
)

func TestParseGrading(t *testing.T) {
	t.Run("StrictJSON", func(t *testing.T) {
		raw := `{"extracted_text":"photosynthesis","similarity_score":0.9,"mark":4.5,"reasoning":"mostly correct"}`
		result, outcome := parseGrading(raw)
		if outcome != Parsed {
			t.Fatalf("outcome = %v, want Parsed", outcome)
		}
		if result.Mark != 4.5 || result.SimilarityScore != 0.9 {
			t.Errorf("result = %+v", result)
		}
	})

	t.Run("FencedJSON", func(t *testing.T) {
		raw := "```json\n{\"similarity_score\":0.5,\"mark\":2,\"reasoning\":\"partial\"}\n```"
		result, outcome := parseGrading(raw)
		if outcome != Parsed {
			t.Fatalf("outcome = %v, want Parsed", outcome)
		}
		if result.Mark != 2 {
			t.Errorf("mark = %v", result.Mark)
		}
	})

	t.Run("JSONInsideProse", func(t *testing.T) {
		raw := `Here is my evaluation: {"mark": 3, "similarity_score": 0.6, "reasoning": "ok"} I hope this helps.`
		result, outcome := parseGrading(raw)
		if outcome != FallbackParsed {
			t.Fatalf("outcome = %v, want FallbackParsed", outcome)
		}
		if result.Mark != 3 {
			t.Errorf("mark = %v", result.Mark)
		}
	})

	t.Run("Confidence", func(t *testing.T) {
		raw := `text {"mark": 3, "confidence": 0.7} text`
		result, outcome := parseGrading(raw)
		if outcome != FallbackParsed {
			t.Fatalf("outcome = %v", outcome)
		}
		if result.Confidence == nil || *result.Confidence != 0.7 {
			t.Errorf("confidence = %v", result.Confidence)
		}
	})

	t.Run("Unparseable", func(t *testing.T) {
		for _, raw := range []string{"", "I cannot grade this.", `{"unrelated": true}`} {
			if _, outcome := parseGrading(raw); outcome != Unparseable {
				t.Errorf("parseGrading(%q) outcome = %v, want Unparseable", raw, outcome)
			}
		}
	})
}

func TestParseModeration(t *testing.T) {
	t.Run("StrictJSON", func(t *testing.T) {
		raw := `{"items":[{"moderated_mark":4,"flag":false,"note":""},{"moderated_mark":2,"flag":true,"note":"similar to row 1"}]}`
		items, outcome := parseModeration(raw, 2)
		if outcome != Parsed {
			t.Fatalf("outcome = %v, want Parsed", outcome)
		}
		if !items[1].Flag || items[1].Note != "similar to row 1" {
			t.Errorf("items[1] = %+v", items[1])
		}
	})

	t.Run("CountMismatch", func(t *testing.T) {
		raw := `{"items":[{"moderated_mark":4,"flag":false,"note":""}]}`
		if _, outcome := parseModeration(raw, 3); outcome != Unparseable {
			t.Errorf("outcome = %v, want Unparseable on count mismatch", outcome)
		}
	})

	t.Run("FallbackFromProse", func(t *testing.T) {
		raw := `Review complete. {"items":[{"moderated_mark":1,"flag":false,"note":"ok"}]} done`
		items, outcome := parseModeration(raw, 1)
		if outcome != FallbackParsed {
			t.Fatalf("outcome = %v, want FallbackParsed", outcome)
		}
		if items[0].ModeratedMark != 1 {
			t.Errorf("items[0] = %+v", items[0])
		}
	})
}

func TestParseReport(t *testing.T) {
	t.Run("StrictJSON", func(t *testing.T) {
		report, outcome := parseReport(`{"report_text":"Good effort overall."}`)
		if outcome != Parsed || report != "Good effort overall." {
			t.Errorf("report = %q, outcome = %v", report, outcome)
		}
	})

	t.Run("PlainTextFallback", func(t *testing.T) {
		report, outcome := parseReport("The student shows strong algebra skills.")
		if outcome != FallbackParsed {
			t.Fatalf("outcome = %v, want FallbackParsed", outcome)
		}
		if report != "The student shows strong algebra skills." {
			t.Errorf("report = %q", report)
		}
	})

	t.Run("EmptyIsUnparseable", func(t *testing.T) {
		if _, outcome := parseReport("   "); outcome != Unparseable {
			t.Errorf("outcome = %v, want Unparseable", outcome)
		}
	})
}

func TestParseMarkingScheme(t *testing.T) {
	raw := `{"general_grading_guide":"award partial credit","questions":[{"question_number":"1","question_text":"Define osmosis","marking_scheme":"- correct definition (2 marks)","marks":2}]}`
	scheme, outcome := parseMarkingScheme(raw)
	if outcome != Parsed {
		t.Fatalf("outcome = %v, want Parsed", outcome)
	}
	if len(scheme.Questions) != 1 || scheme.Questions[0].Marks != 2 {
		t.Errorf("scheme = %+v", scheme)
	}

	if _, outcome := parseMarkingScheme(`{"questions":[]}`); outcome != Unparseable {
		t.Errorf("empty question list should be unparseable, got %v", outcome)
	}
}
