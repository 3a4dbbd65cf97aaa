package grading

import (
	"errors"
	"reflect"
	"testing"

	"omr_grading_backend/internal/detect"
	"omr_grading_backend/internal/util"
)

func strptr(s string) *string { return &s }

func simpleKey(n int, correct string) []KeyEntry {
	key := make([]KeyEntry, n)
	for i := range key {
		key[i] = KeyEntry{QuestionNumber: i + 1, CorrectOption: strptr(correct), Marks: 1}
	}
	return key
}

func detsFor(n int, option string, conf float64) []detect.QuestionDetection {
	dets := make([]detect.QuestionDetection, n)
	for i := range dets {
		d := detect.QuestionDetection{Question: i + 1, Confidence: conf}
		if option != "" {
			d.Options = []string{option}
		}
		dets[i] = d
	}
	return dets
}

func TestGradeFifteenOfTwenty(t *testing.T) {
	key := simpleKey(20, "A")
	dets := detsFor(20, "A", 0.95)
	// 5 道答错
	for i := 15; i < 20; i++ {
		dets[i].Options = []string{"B"}
	}

	score, err := Grade(dets, key, 10, DefaultPolicy())
	if err != nil {
		t.Fatal(err)
	}
	if score.ObtainedMarks != 15 {
		t.Errorf("obtained = %d, want 15", score.ObtainedMarks)
	}
	if score.TotalMarks != 20 {
		t.Errorf("total = %d, want 20", score.TotalMarks)
	}
	if score.Percentage != 75.00 {
		t.Errorf("percentage = %f, want 75.00", score.Percentage)
	}
	if score.Grade != "B" {
		t.Errorf("grade = %s, want B", score.Grade)
	}
	if !score.Passed {
		t.Error("15 >= 10 should pass")
	}
}

func TestGradePassBoundaryInclusive(t *testing.T) {
	key := simpleKey(10, "C")
	dets := detsFor(10, "C", 0.9)
	for i := 6; i < 10; i++ {
		dets[i].Options = nil // 留空
	}

	// obtainedMarks == passingMarks 必须判及格
	score, err := Grade(dets, key, 6, DefaultPolicy())
	if err != nil {
		t.Fatal(err)
	}
	if score.ObtainedMarks != 6 {
		t.Fatalf("obtained = %d", score.ObtainedMarks)
	}
	if !score.Passed {
		t.Error("obtained == passing must pass (inclusive)")
	}

	score, err = Grade(dets, key, 7, DefaultPolicy())
	if err != nil {
		t.Fatal(err)
	}
	if score.Passed {
		t.Error("obtained < passing must fail")
	}
}

func TestGradeBlankAndMultiZeroScored(t *testing.T) {
	key := simpleKey(3, "A")
	dets := []detect.QuestionDetection{
		{Question: 1, Options: []string{"A", "B"}, Confidence: 0.7}, // 多涂
		{Question: 2, Confidence: 0.8},                              // 空白
		{Question: 3, Options: []string{"A"}, Confidence: 0.9},
	}

	score, err := Grade(dets, key, 1, DefaultPolicy())
	if err != nil {
		t.Fatal(err)
	}
	if score.ObtainedMarks != 1 {
		t.Errorf("only the exact single match should score: %d", score.ObtainedMarks)
	}

	// 多涂与空白都必须出现在明细里，不能静默丢弃
	q1 := score.QuestionResults[0]
	if q1.DetectedOption != nil {
		t.Error("multi-mark should have nil DetectedOption")
	}
	if !reflect.DeepEqual(q1.DetectedOptions, []string{"A", "B"}) {
		t.Errorf("multi-mark letters lost: %v", q1.DetectedOptions)
	}
	q2 := score.QuestionResults[1]
	if q2.DetectedOption != nil || q2.DetectedOptions != nil {
		t.Error("blank should have no detected options")
	}
}

func TestGradeUngradedQuestionsExcluded(t *testing.T) {
	key := []KeyEntry{
		{QuestionNumber: 1, CorrectOption: strptr("A"), Marks: 2},
		{QuestionNumber: 2, CorrectOption: nil, Marks: 5}, // 作废题
		{QuestionNumber: 3, CorrectOption: strptr("B"), Marks: 3},
	}
	dets := []detect.QuestionDetection{
		{Question: 1, Options: []string{"A"}, Confidence: 1},
		{Question: 2, Options: []string{"D"}, Confidence: 1},
		{Question: 3, Options: []string{"C"}, Confidence: 1},
	}

	score, err := Grade(dets, key, 2, DefaultPolicy())
	if err != nil {
		t.Fatal(err)
	}
	if score.TotalMarks != 5 {
		t.Errorf("ungraded question must not count: total = %d, want 5", score.TotalMarks)
	}
	if score.ObtainedMarks != 2 {
		t.Errorf("obtained = %d, want 2", score.ObtainedMarks)
	}
	if score.Percentage != 40.00 {
		t.Errorf("percentage = %f, want 40.00", score.Percentage)
	}
	if len(score.QuestionResults) != 3 {
		t.Error("ungraded question still appears in the detail rows")
	}
	if score.QuestionResults[1].AwardedMarks != 0 {
		t.Error("ungraded question awards 0")
	}
}

func TestGradeNoGradableQuestions(t *testing.T) {
	key := []KeyEntry{
		{QuestionNumber: 1, CorrectOption: nil},
		{QuestionNumber: 2, CorrectOption: nil},
	}
	_, err := Grade(nil, key, 1, DefaultPolicy())
	var cfgErr *util.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}

	if _, err := Grade(nil, nil, 1, DefaultPolicy()); err == nil {
		t.Fatal("empty key must fail")
	}
}

func TestGradeWeights(t *testing.T) {
	key := []KeyEntry{
		{QuestionNumber: 1, CorrectOption: strptr("A"), Marks: 3},
		{QuestionNumber: 2, CorrectOption: strptr("B")}, // 缺省 1 分
	}
	dets := []detect.QuestionDetection{
		{Question: 1, Options: []string{"A"}},
		{Question: 2, Options: []string{"A"}},
	}
	score, err := Grade(dets, key, 1, DefaultPolicy())
	if err != nil {
		t.Fatal(err)
	}
	if score.TotalMarks != 4 || score.ObtainedMarks != 3 {
		t.Errorf("got %d/%d, want 3/4", score.ObtainedMarks, score.TotalMarks)
	}
	if score.Percentage != 75.00 {
		t.Errorf("percentage = %f", score.Percentage)
	}
}

func TestGradeForCutoffs(t *testing.T) {
	cutoffs := DefaultCutoffs()
	cases := map[float64]string{
		100:   "A",
		90:    "A",
		89.99: "B",
		75:    "B",
		60:    "C",
		59.99: "D",
		40:    "D",
		39.99: "F",
		0:     "F",
	}
	for pct, want := range cases {
		if got := GradeFor(cutoffs, pct); got != want {
			t.Errorf("GradeFor(%.2f) = %s, want %s", pct, got, want)
		}
	}
}

func TestGradeIdempotent(t *testing.T) {
	key := simpleKey(20, "D")
	dets := detsFor(20, "D", 0.8)
	dets[4].Options = []string{"A"}

	a, err := Grade(dets, key, 10, DefaultPolicy())
	if err != nil {
		t.Fatal(err)
	}
	b, err := Grade(dets, key, 10, DefaultPolicy())
	if err != nil {
		t.Fatal(err)
	}
	if a.ObtainedMarks != b.ObtainedMarks || a.Percentage != b.Percentage || a.Grade != b.Grade {
		t.Error("grading is not deterministic")
	}
}
