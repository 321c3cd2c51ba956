package parser

import (
	"testing"

	"tmc-schedule/internal/config"
	"tmc-schedule/internal/logging"
	"tmc-schedule/internal/model"
)

func compactGrid(rows ...[]string) Grid {
	header := []string{"病院", "昼夜", "班", "学籍番号", "氏名", "フリガナ", "性別", "生年月日", "年齢", "1/15", "1/16", "1/17"}
	return append(Grid{header}, rows...)
}

func newCompactNormalizer() *Normalizer {
	return NewNormalizer(config.Preset("compact"), model.DefaultSymbols(), logging.Discard())
}

func TestNormalize_EndToEndExampleRow(t *testing.T) {
	t.Parallel()

	grid := compactGrid(
		[]string{"HospA", "day", "G1", "S001", "Jane Doe", "ジェーン", "F", "2000-01-01", "24", "〇", "0", ""},
	)

	res, err := newCompactNormalizer().Normalize(grid)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}

	if len(res.Dataset.Students) != 1 {
		t.Fatalf("students = %d, want 1", len(res.Dataset.Students))
	}
	s := res.Dataset.Students[0]
	if s.StudentNumber != "S001" || s.Age != 24 || s.Name != "Jane Doe" || s.Hospital != "HospA" || s.BirthDate != "2000-01-01" {
		t.Fatalf("unexpected student: %+v", s)
	}

	if len(res.Dataset.Entries) != 1 {
		t.Fatalf("entries = %d, want 1: %+v", len(res.Dataset.Entries), res.Dataset.Entries)
	}
	e := res.Dataset.Entries[0]
	if e.Date != "1/15" || e.Symbol != "〇" || e.Description != "clinical rotation day" || e.StudentNumber != "S001" {
		t.Fatalf("unexpected entry: %+v", e)
	}
	if res.Stats.SkippedCells != 1 {
		t.Fatalf("skipped cells = %d, want 1", res.Stats.SkippedCells)
	}
	if got := res.Dataset.Dates; len(got) != 3 || got[0] != "1/15" || got[2] != "1/17" {
		t.Fatalf("dates = %v", got)
	}
}

func TestNormalize_SkipsRowsMissingNumberOrName(t *testing.T) {
	t.Parallel()

	grid := compactGrid(
		[]string{"HospA", "day", "G1", "", "No Number", "", "", "", "", "〇"},
		[]string{"HospA", "day", "G1", "S002", "  ", "", "", "", "", "〇"},
		[]string{"HospB", "night", "G2", "S003", "Taro", "タロウ", "M", "", "abc", "学", "半"},
		[]string{},
	)

	res, err := newCompactNormalizer().Normalize(grid)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(res.Dataset.Students) != 1 || res.Dataset.Students[0].StudentNumber != "S003" {
		t.Fatalf("unexpected students: %+v", res.Dataset.Students)
	}
	if res.Stats.SkippedRows != 3 {
		t.Fatalf("skipped = %d, want 3", res.Stats.SkippedRows)
	}
	if res.Dataset.Students[0].Age != model.DefaultAge || res.Stats.AgeDefaulted != 1 {
		t.Fatalf("age not defaulted: %+v stats=%+v", res.Dataset.Students[0], res.Stats)
	}
	for _, s := range res.Dataset.Students {
		if s.StudentNumber == "" || s.Name == "" {
			t.Fatalf("emitted student with empty key: %+v", s)
		}
	}
	if len(res.Dataset.Entries) != 2 || res.Dataset.Entries[1].Description != "half-day clinical rotation" {
		t.Fatalf("unexpected entries: %+v", res.Dataset.Entries)
	}
}

func TestNormalize_ShortRowsAndUnknownSymbols(t *testing.T) {
	t.Parallel()

	grid := compactGrid(
		// 只有学籍番号和姓名，没有日程列
		[]string{"", "", "", "S010", "Short"},
		[]string{"", "", "", "S011", "Custom", "", "", "", "21", "", "X9"},
	)

	res, err := newCompactNormalizer().Normalize(grid)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(res.Dataset.Students) != 2 {
		t.Fatalf("students = %d", len(res.Dataset.Students))
	}
	if len(res.Dataset.Entries) != 1 {
		t.Fatalf("entries = %+v", res.Dataset.Entries)
	}
	if e := res.Dataset.Entries[0]; e.Symbol != "X9" || e.Description != "X9" || e.Date != "1/16" {
		t.Fatalf("unknown symbol should pass through: %+v", e)
	}
}

func TestNormalize_DuplicateStudentNumberKeepsFirst(t *testing.T) {
	t.Parallel()

	grid := compactGrid(
		[]string{"HospA", "", "", "S001", "First", "", "", "", "", "〇"},
		[]string{"HospB", "", "", "S001", "Second", "", "", "", "", "学"},
	)

	res, err := newCompactNormalizer().Normalize(grid)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(res.Dataset.Students) != 1 || res.Dataset.Students[0].Name != "First" {
		t.Fatalf("unexpected students: %+v", res.Dataset.Students)
	}
	if res.Stats.DuplicateRows != 1 || len(res.Dataset.Entries) != 1 || res.Dataset.Entries[0].Symbol != "〇" {
		t.Fatalf("duplicate row leaked: stats=%+v entries=%+v", res.Stats, res.Dataset.Entries)
	}
}

func TestNormalize_NoDanglingReferences(t *testing.T) {
	t.Parallel()

	grid := compactGrid(
		[]string{"H", "", "", "S1", "A", "", "", "", "", "〇", "学", "半"},
		[]string{"H", "", "", "", "B", "", "", "", "", "〇", "学", "半"},
		[]string{"H", "", "", "S3", "", "", "", "", "", "〇", "学", "半"},
		[]string{"H", "", "", "S4", "D", "", "", "", "", "0", "", "明"},
	)

	res, err := newCompactNormalizer().Normalize(grid)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	known := res.Dataset.StudentNumbers()
	for _, e := range res.Dataset.Entries {
		if _, ok := known[e.StudentNumber]; !ok {
			t.Fatalf("dangling entry: %+v", e)
		}
		if e.Symbol == "" || e.Symbol == "0" {
			t.Fatalf("sentinel produced entry: %+v", e)
		}
	}
	if len(res.Dataset.Entries) != 4 {
		t.Fatalf("entries = %d, want 4", len(res.Dataset.Entries))
	}
}

func TestNormalize_CanonicalTemplateWithYear(t *testing.T) {
	t.Parallel()

	grid := make(Grid, 23)
	for i := range grid {
		grid[i] = []string{}
	}
	grid[0] = []string{"2025/2026年度 病院実習期間日程表"}
	grid[2] = make([]string, 14)
	grid[2][11] = "1/15"
	grid[2][12] = "bad/date"
	grid[2][13] = "1/16"
	grid[21] = []string{"", "", "東京\n中央病院", "昼", "A班", "A001", "山田太郎", "ヤマダタロウ", "男", "1995-04-01", "30", "〇", "", "学"}

	n := NewNormalizer(config.Preset(config.DefaultTemplate), nil, logging.Discard())
	res, err := n.Normalize(grid)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if res.Layout.DateRow != 2 || len(res.Layout.Dates) != 2 {
		t.Fatalf("unexpected layout: %+v", res.Layout)
	}
	if got := res.Dataset.Students[0].Hospital; got != "東京 中央病院" {
		t.Fatalf("hospital = %q", got)
	}
	if len(res.Dataset.Entries) != 2 {
		t.Fatalf("entries = %+v", res.Dataset.Entries)
	}
	if res.Dataset.Entries[0].ScheduleDate != "2026-01-15" || res.Dataset.Entries[1].ScheduleDate != "2026-01-16" {
		t.Fatalf("iso dates not applied: %+v", res.Dataset.Entries)
	}
}
