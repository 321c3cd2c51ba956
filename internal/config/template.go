package config

import (
	"fmt"
	"sort"
)

// DefaultTemplate 规范模板（病院実習期間日程表 2026 版）
const DefaultTemplate = "tmc2026"

// NoColumn 模板中不存在的列
const NoColumn = -1

// ColumnMap 学生基本信息列偏移（0 起）
type ColumnMap struct {
	Hospital      int `toml:"hospital"`
	DayNight      int `toml:"day_night"`
	Group         int `toml:"group"`
	StudentNumber int `toml:"student_number"`
	Name          int `toml:"name"`
	Kana          int `toml:"kana"`
	Gender        int `toml:"gender"`
	BirthDate     int `toml:"birth_date"`
	Age           int `toml:"age"`
}

// TemplateConfig 表格模板：日期行、起始列、学生起始行与列偏移
//
// 学生起始行是模板常量而不是探测结果，模板改版时必须同步修改。
type TemplateConfig struct {
	Name            string    `toml:"name"`
	DateRow         int       `toml:"date_row"`          // 日期行（0 起），优先检查
	FirstDateCol    int       `toml:"first_date_col"`    // 日期列最小列号
	StudentStartRow int       `toml:"student_start_row"` // 学生数据起始行（0 起）
	Year            int       `toml:"year"`              // 日期标签不含年份时补齐；0 表示保持原标签
	SkipSymbols     []string  `toml:"skip_symbols"`      // 视为空白的单元格值
	Columns         ColumnMap `toml:"columns"`
}

var presets = map[string]TemplateConfig{
	// 标准版：日期在第 3 行、第 12 列起；学生自第 22 行，"0" 视为空白
	"tmc2026": {
		Name:            "tmc2026",
		DateRow:         2,
		FirstDateCol:    11,
		StudentStartRow: 21,
		Year:            2026,
		SkipSymbols:     []string{"0"},
		Columns: ColumnMap{
			Hospital:      2,
			DayNight:      3,
			Group:         4,
			StudentNumber: 5,
			Name:          6,
			Kana:          7,
			Gender:        8,
			BirthDate:     9,
			Age:           10,
		},
	},
	// 紧凑版：首行为日期，基本信息占前 9 列
	"compact": {
		Name:            "compact",
		DateRow:         0,
		FirstDateCol:    9,
		StudentStartRow: 1,
		SkipSymbols:     []string{"0"},
		Columns: ColumnMap{
			Hospital:      0,
			DayNight:      1,
			Group:         2,
			StudentNumber: 3,
			Name:          4,
			Kana:          5,
			Gender:        6,
			BirthDate:     7,
			Age:           8,
		},
	},
}

// Preset 返回预设模板的副本，未知名称时 panic
func Preset(name string) TemplateConfig {
	t, ok := LookupPreset(name)
	if !ok {
		panic(fmt.Sprintf("unknown template preset %q", name))
	}
	return t
}

// LookupPreset 查找预设模板
func LookupPreset(name string) (TemplateConfig, bool) {
	t, ok := presets[name]
	if !ok {
		return TemplateConfig{}, false
	}
	t.SkipSymbols = append([]string(nil), t.SkipSymbols...)
	return t, true
}

// PresetNames 全部预设名称
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate 校验模板
func (t TemplateConfig) Validate() error {
	if t.DateRow < 0 || t.FirstDateCol < 0 || t.StudentStartRow < 0 {
		return fmt.Errorf("%w: template %q has negative offsets", ErrInvalidConfig, t.Name)
	}
	if t.Columns.StudentNumber < 0 || t.Columns.Name < 0 {
		return fmt.Errorf("%w: template %q must map student_number and name", ErrInvalidConfig, t.Name)
	}
	if t.Year != 0 && (t.Year < 1900 || t.Year > 2999) {
		return fmt.Errorf("%w: template %q year out of range: %d", ErrInvalidConfig, t.Name, t.Year)
	}
	for _, col := range t.Columns.all() {
		if col >= t.FirstDateCol && t.FirstDateCol > 0 {
			return fmt.Errorf("%w: template %q info column %d overlaps date columns (from %d)", ErrInvalidConfig, t.Name, col, t.FirstDateCol)
		}
	}
	return nil
}

// IsSkipSymbol 判断单元格值是否为占位值
func (t TemplateConfig) IsSkipSymbol(value string) bool {
	for _, s := range t.SkipSymbols {
		if value == s {
			return true
		}
	}
	return false
}

func (c ColumnMap) all() []int {
	return []int{c.Hospital, c.DayNight, c.Group, c.StudentNumber, c.Name, c.Kana, c.Gender, c.BirthDate, c.Age}
}
