package exporter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"tmc-schedule/internal/model"
)

// 导出格式
const (
	FormatJSON    = "json"
	FormatCSV     = "csv"    // 统合 CSV
	FormatLegacy  = "legacy" // 两段式 CSV
	FormatXLSX    = "xlsx"
	FormatUnknown = ""
)

// DatasetLoader 导出数据来源
type DatasetLoader interface {
	LoadDataset(ctx context.Context) (*model.Dataset, error)
}

// Exporter 学生 / 日程导出器
type Exporter struct {
	loader  DatasetLoader
	symbols model.SymbolTable
	now     func() time.Time
}

// NewExporter 创建导出器
func NewExporter(loader DatasetLoader, symbols model.SymbolTable) *Exporter {
	if symbols == nil {
		symbols = model.DefaultSymbols()
	}
	return &Exporter{
		loader:  loader,
		symbols: symbols,
		now:     time.Now,
	}
}

// ParseFormat 解析格式名
func ParseFormat(s string) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(s)); f {
	case FormatJSON, FormatCSV, FormatLegacy, FormatXLSX:
		return f, nil
	case "unified":
		return FormatCSV, nil
	default:
		return FormatUnknown, fmt.Errorf("unknown export format %q (json, csv, legacy, xlsx)", s)
	}
}

// ContentType 格式对应的 MIME 类型
func ContentType(format string) string {
	switch format {
	case FormatJSON:
		return "application/json; charset=utf-8"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/csv; charset=utf-8"
	}
}

// FileName 默认下载文件名
func FileName(format string, at time.Time) string {
	stamp := at.Format("20060102")
	switch format {
	case FormatJSON:
		return "schedule-data.json"
	case FormatXLSX:
		return fmt.Sprintf("schedule-%s.xlsx", stamp)
	case FormatLegacy:
		return fmt.Sprintf("schedule-legacy-%s.csv", stamp)
	default:
		return fmt.Sprintf("schedule-unified-%s.csv", stamp)
	}
}

// Export 从存储读取并按格式写出
func (e *Exporter) Export(ctx context.Context, format string, w io.Writer) error {
	ds, err := e.loader.LoadDataset(ctx)
	if err != nil {
		return fmt.Errorf("load dataset: %w", err)
	}
	return e.Write(ds, format, w)
}

// Write 按格式写出给定数据
func (e *Exporter) Write(ds *model.Dataset, format string, w io.Writer) error {
	switch format {
	case FormatJSON:
		return WriteJSON(w, ds, e.symbols, e.now())
	case FormatCSV:
		return WriteUnifiedCSV(w, ds)
	case FormatLegacy:
		return WriteLegacyCSV(w, ds)
	case FormatXLSX:
		f, err := BuildWorkbook(ds, e.symbols, nil)
		if err != nil {
			return err
		}
		defer f.Close()
		if _, err := f.WriteTo(w); err != nil {
			return fmt.Errorf("write workbook: %w", err)
		}
		return nil
	default:
		_, err := ParseFormat(format)
		return err
	}
}

// ScheduleItem JSON 中学生的单日日程
type ScheduleItem struct {
	Date        string `json:"date"`
	Symbol      string `json:"symbol"`
	Description string `json:"description"`
}

// StudentDocument 带日程的学生
type StudentDocument struct {
	model.Student
	Schedule []ScheduleItem `json:"schedule"`
}

// Document schedule-data.json 的结构
type Document struct {
	Students    []StudentDocument `json:"students"`
	Dates       []string          `json:"dates"`
	Symbols     model.SymbolTable `json:"symbols"`
	GeneratedAt string            `json:"generatedAt"`
}

// BuildDocument 组装 JSON 文档，日程嵌入各学生
func BuildDocument(ds *model.Dataset, symbols model.SymbolTable, at time.Time) Document {
	byStudent := ds.EntriesByStudent()
	doc := Document{
		Students:    make([]StudentDocument, 0, len(ds.Students)),
		Dates:       ds.Dates,
		Symbols:     symbols,
		GeneratedAt: at.Format(time.RFC3339),
	}
	if doc.Dates == nil {
		doc.Dates = []string{}
	}
	for _, st := range ds.Students {
		items := make([]ScheduleItem, 0, len(byStudent[st.StudentNumber]))
		for _, e := range byStudent[st.StudentNumber] {
			items = append(items, ScheduleItem{Date: e.Date, Symbol: e.Symbol, Description: e.Description})
		}
		doc.Students = append(doc.Students, StudentDocument{Student: st, Schedule: items})
	}
	return doc
}

// WriteJSON 写出缩进的 JSON 文档
func WriteJSON(w io.Writer, ds *model.Dataset, symbols model.SymbolTable, at time.Time) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(BuildDocument(ds, symbols, at)); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}
