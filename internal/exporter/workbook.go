package exporter

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"tmc-schedule/internal/model"
)

const (
	scheduleSheet = "日程表"
	symbolSheet   = "記号"
)

var matrixHeader = []string{"病院", "昼夜", "班", "学籍番号", "氏名", "フリガナ", "性別", "生年月日", "年齢"}

// ProgressEvent 工作簿生成进度
type ProgressEvent struct {
	Percent int    `json:"percent"`
	Stage   string `json:"stage"`
}

func reportProgress(progress func(ProgressEvent), done, total int, stage string) {
	if progress == nil {
		return
	}
	percent := 100
	if total > 0 {
		percent = done * 100 / total
	}
	progress(ProgressEvent{Percent: percent, Stage: stage})
}

// BuildWorkbook 生成 学生 × 日期 矩阵工作簿，版式与紧凑模板一致，可直接重新导入
func BuildWorkbook(ds *model.Dataset, symbols model.SymbolTable, progress func(ProgressEvent)) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), scheduleSheet); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	if err := writeMatrix(f, ds, progress); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := writeSymbols(f, symbols); err != nil {
		_ = f.Close()
		return nil, err
	}

	reportProgress(progress, 1, 1, "done")
	return f, nil
}

func writeMatrix(f *excelize.File, ds *model.Dataset, progress func(ProgressEvent)) error {
	header := make([]interface{}, 0, len(matrixHeader)+len(ds.Dates))
	for _, h := range matrixHeader {
		header = append(header, h)
	}
	dateCol := make(map[string]int, len(ds.Dates))
	for i, d := range ds.Dates {
		header = append(header, dateHeader(d))
		dateCol[d] = len(matrixHeader) + i
	}
	if err := f.SetSheetRow(scheduleSheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}
	lastCell, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(scheduleSheet, "A1", lastCell, bold); err != nil {
		return fmt.Errorf("set header style: %w", err)
	}

	byStudent := ds.EntriesByStudent()
	for i, st := range ds.Students {
		row := make([]interface{}, len(header))
		for j := range row {
			row[j] = ""
		}
		row[0], row[1], row[2] = st.Hospital, st.DayNight, st.GroupName
		row[3], row[4], row[5] = st.StudentNumber, st.Name, st.Kana
		row[6], row[7], row[8] = st.Gender, st.BirthDate, st.Age
		for _, e := range byStudent[st.StudentNumber] {
			if col, ok := dateCol[e.Date]; ok {
				row[col] = e.Symbol
			}
		}

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(scheduleSheet, cell, &row); err != nil {
			return fmt.Errorf("write student %s: %w", st.StudentNumber, err)
		}
		if (i+1)%50 == 0 {
			reportProgress(progress, i+1, len(ds.Students), "students")
		}
	}

	return f.SetPanes(scheduleSheet, &excelize.Panes{
		Freeze:      true,
		XSplit:      len(matrixHeader),
		YSplit:      1,
		TopLeftCell: "J2",
		ActivePane:  "bottomRight",
	})
}

// dateHeader 库内 ISO 日期写成 "2026/1/15"，保证日期行可被重新定位；其余标签原样输出
func dateHeader(date string) string {
	t, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return date
	}
	return fmt.Sprintf("%d/%d/%d", t.Year(), int(t.Month()), t.Day())
}

func writeSymbols(f *excelize.File, symbols model.SymbolTable) error {
	if _, err := f.NewSheet(symbolSheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	if err := f.SetSheetRow(symbolSheet, "A1", &[]interface{}{"記号", "説明"}); err != nil {
		return fmt.Errorf("write symbol header: %w", err)
	}
	for i, code := range symbols.Codes() {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(symbolSheet, cell, &[]interface{}{code, symbols[code]}); err != nil {
			return fmt.Errorf("write symbol %s: %w", code, err)
		}
	}
	return nil
}
