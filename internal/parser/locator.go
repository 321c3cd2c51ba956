package parser

import (
	"fmt"
	"log/slog"
	"strings"

	"tmc-schedule/internal/config"
)

// Locator 日期行与学生区域定位器
type Locator struct {
	template config.TemplateConfig
	logger   *slog.Logger
}

// NewLocator 创建定位器
func NewLocator(template config.TemplateConfig, logger *slog.Logger) *Locator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Locator{template: template, logger: logger}
}

// Locate 定位日期行、日期列与学生起始行
//
// 先检查模板给出的日期行；不满足时自上而下扫描，取第一行在 FirstDateCol 之后
// 含 "/" 的单元格。无法解析为月/日的单元格直接跳过。
func (l *Locator) Locate(grid Grid) (Layout, error) {
	hint := l.template.DateRow
	if hint >= 0 && hint < len(grid) {
		if dates := l.dateColumns(grid[hint]); len(dates) > 0 {
			return l.layout(hint, dates), nil
		}
	}

	for rowIdx, row := range grid {
		if rowIdx == hint {
			continue
		}
		if dates := l.dateColumns(row); len(dates) > 0 {
			l.logger.Warn("date row differs from template",
				"template", l.template.Name, "expected", hint, "found", rowIdx)
			return l.layout(rowIdx, dates), nil
		}
	}

	return Layout{}, fmt.Errorf("%w: no cell containing '/' at or after column %d", ErrDateRowNotFound, l.template.FirstDateCol)
}

func (l *Locator) layout(dateRow int, dates []DateColumn) Layout {
	start := l.template.StudentStartRow
	if start <= dateRow {
		l.logger.Warn("student start row is not below the date row; check the template",
			"template", l.template.Name, "date_row", dateRow, "student_start_row", start)
	}
	return Layout{
		DateRow:         dateRow,
		Dates:           dates,
		StudentStartRow: start,
	}
}

func (l *Locator) dateColumns(row []string) []DateColumn {
	var dates []DateColumn
	for col := l.template.FirstDateCol; col < len(row); col++ {
		cell := strings.TrimSpace(row[col])
		if cell == "" || !LooksLikeDate(cell) {
			continue
		}
		year, month, day, ok := ParseMonthDay(cell)
		if !ok {
			continue
		}
		dates = append(dates, DateColumn{
			Index: col,
			Label: cell,
			Year:  year,
			Month: month,
			Day:   day,
		})
	}
	return dates
}
