package parser

import (
	"errors"
	"strings"
	"testing"

	"tmc-schedule/internal/model"
)

const unifiedSample = "\ufeff学籍番号,氏名,ふりがな,性別,生年月日,年齢,病院,クラス,班,日付,記号,説明\n" +
	"A001,山田太郎,やまだたろう,男,1995-04-01,30,中央病院,昼,A班,2026-01-15,〇,\n" +
	"A001,山田太郎,やまだたろう,男,1995-04-01,30,中央病院,昼,A班,1/16,学,custom note\n" +
	"A002,佐藤花子,さとうはなこ,女,,,東病院,夜,B班,,,\n" +
	",無番号,,,,,,,,1/15,〇,\n"

func TestDecodeUnified(t *testing.T) {
	t.Parallel()

	dataset, stats, err := DecodeUnified(strings.NewReader(unifiedSample), model.DefaultSymbols())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(dataset.Students) != 2 {
		t.Fatalf("students = %+v", dataset.Students)
	}
	if dataset.Students[1].Age != model.DefaultAge || stats.AgeDefaulted != 1 {
		t.Fatalf("age default: %+v stats=%+v", dataset.Students[1], stats)
	}
	if stats.SkippedRows != 1 {
		t.Fatalf("skipped = %d, want 1", stats.SkippedRows)
	}
	if len(dataset.Entries) != 2 {
		t.Fatalf("entries = %+v", dataset.Entries)
	}
	first, second := dataset.Entries[0], dataset.Entries[1]
	if first.ScheduleDate != "2026-01-15" || first.Description != "clinical rotation day" {
		t.Fatalf("first entry: %+v", first)
	}
	if second.ScheduleDate != "1/16" || second.Description != "custom note" {
		t.Fatalf("second entry: %+v", second)
	}
	if len(dataset.Dates) != 2 {
		t.Fatalf("dates = %v", dataset.Dates)
	}
}

func TestDecodeUnified_MissingColumns(t *testing.T) {
	t.Parallel()

	_, _, err := DecodeUnified(strings.NewReader("学籍番号,氏名\nA001,x\n"), nil)
	if !errors.Is(err, ErrInputUnreadable) {
		t.Fatalf("expected ErrInputUnreadable, got %v", err)
	}
	if !strings.Contains(err.Error(), "記号") {
		t.Fatalf("error should name missing columns: %v", err)
	}
}

func TestDecodeUnified_Empty(t *testing.T) {
	t.Parallel()

	if _, _, err := DecodeUnified(strings.NewReader(""), nil); !errors.Is(err, ErrInputUnreadable) {
		t.Fatalf("expected ErrInputUnreadable, got %v", err)
	}
}
