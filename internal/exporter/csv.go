package exporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/jszwec/csvutil"

	"tmc-schedule/internal/model"
	"tmc-schedule/internal/parser"
)

const utf8BOM = "\ufeff"

// WriteUnifiedCSV 写出统合 CSV：每条日程一行，没有日程的学生输出一行空日程
func WriteUnifiedCSV(w io.Writer, ds *model.Dataset) error {
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return fmt.Errorf("write bom: %w", err)
	}

	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)

	byStudent := ds.EntriesByStudent()
	for _, st := range ds.Students {
		base := unifiedBase(st)
		entries := byStudent[st.StudentNumber]
		if len(entries) == 0 {
			if err := enc.Encode(base); err != nil {
				return fmt.Errorf("encode student %s: %w", st.StudentNumber, err)
			}
			continue
		}
		for _, e := range entries {
			rec := base
			rec.Date = e.ScheduleDate
			if rec.Date == "" {
				rec.Date = e.Date
			}
			rec.Symbol = e.Symbol
			rec.Description = e.Description
			if err := enc.Encode(rec); err != nil {
				return fmt.Errorf("encode schedule %s/%s: %w", st.StudentNumber, rec.Date, err)
			}
		}
	}

	// 无学生时仍输出表头
	if len(ds.Students) == 0 {
		if err := enc.EncodeHeader(parser.UnifiedRecord{}); err != nil {
			return fmt.Errorf("encode header: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func unifiedBase(st model.Student) parser.UnifiedRecord {
	return parser.UnifiedRecord{
		StudentNumber: st.StudentNumber,
		Name:          st.Name,
		Kana:          st.Kana,
		Gender:        st.Gender,
		BirthDate:     st.BirthDate,
		Age:           strconv.Itoa(st.Age),
		Hospital:      st.Hospital,
		DayNight:      st.DayNight,
		GroupName:     st.GroupName,
	}
}

// WriteLegacyCSV 写出两段式 CSV：学生信息段 + 日程段
func WriteLegacyCSV(w io.Writer, ds *model.Dataset) error {
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return fmt.Errorf("write bom: %w", err)
	}
	cw := csv.NewWriter(w)

	records := [][]string{
		{"=== 学生情報 ==="},
		{"学籍番号", "氏名", "ふりがな", "性別", "生年月日", "年齢", "実習施設名", "クラス", "班"},
	}
	for _, st := range ds.Students {
		records = append(records, []string{
			st.StudentNumber, st.Name, st.Kana, st.Gender, st.BirthDate,
			strconv.Itoa(st.Age), st.Hospital, st.DayNight, st.GroupName,
		})
	}
	records = append(records,
		[]string{},
		[]string{"=== スケジュール情報 ==="},
		[]string{"学籍番号", "日付", "記号", "説明"},
	)
	for _, e := range ds.Entries {
		date := e.ScheduleDate
		if date == "" {
			date = e.Date
		}
		records = append(records, []string{e.StudentNumber, date, e.Symbol, e.Description})
	}

	if err := cw.WriteAll(records); err != nil {
		return fmt.Errorf("write legacy csv: %w", err)
	}
	return nil
}

// WriteTemplateCSV 写出统合 CSV 模板（表头 + 示例行）
func WriteTemplateCSV(w io.Writer) error {
	samples := []parser.UnifiedRecord{
		{StudentNumber: "A001", Name: "山田太郎", Kana: "やまだたろう", Gender: "男", BirthDate: "1995-04-01", Age: "30", Hospital: "〇〇病院", DayNight: "昼間部", GroupName: "A班", Date: "2026/2/1", Symbol: "〇", Description: "病院実習"},
		{StudentNumber: "A001", Name: "山田太郎", Kana: "やまだたろう", Gender: "男", BirthDate: "1995-04-01", Age: "30", Hospital: "〇〇病院", DayNight: "昼間部", GroupName: "A班", Date: "2026/2/2", Symbol: "学", Description: "学校登校"},
		{StudentNumber: "A002", Name: "佐藤花子", Kana: "さとうはなこ", Gender: "女", BirthDate: "1996-05-15", Age: "29", Hospital: "△△病院", DayNight: "夜間部", GroupName: "B班", Date: "2026/2/1", Symbol: "〇", Description: "病院実習"},
	}

	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return fmt.Errorf("write bom: %w", err)
	}
	b, err := csvutil.Marshal(samples)
	if err != nil {
		return fmt.Errorf("encode template: %w", err)
	}
	if _, err := w.Write(b); err != nil {
		return fmt.Errorf("write template: %w", err)
	}
	return nil
}
