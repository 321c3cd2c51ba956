package parser

import (
	"errors"
	"fmt"

	"tmc-schedule/internal/model"
)

var (
	// ErrInputUnreadable 输入文件无法打开或解析（致命，发生在任何写库之前）
	ErrInputUnreadable = errors.New("input unreadable")
	// ErrDateRowNotFound 找不到日期行
	ErrDateRowNotFound = errors.New("date row not found")
)

// Grid 二维单元格，行可以长短不一
type Grid [][]string

// Cell 读取单元格；越界时返回空串
func (g Grid) Cell(row, col int) string {
	if row < 0 || row >= len(g) {
		return ""
	}
	return cellAt(g[row], col)
}

// DateColumn 日期列
type DateColumn struct {
	Index int    `json:"index"` // 列号（0 起）
	Label string `json:"label"` // 原始标签，如 "1/15"
	Year  int    `json:"year,omitempty"`
	Month int    `json:"month"`
	Day   int    `json:"day"`
}

// ISODate 返回 YYYY-MM-DD；标签与模板都没有年份时返回原标签
func (d DateColumn) ISODate(defaultYear int) string {
	year := d.Year
	if year == 0 {
		year = defaultYear
	}
	if year == 0 {
		return d.Label
	}
	return fmt.Sprintf("%04d-%02d-%02d", year, d.Month, d.Day)
}

// Layout 定位结果
type Layout struct {
	DateRow         int          `json:"dateRow"`
	Dates           []DateColumn `json:"dates"`
	StudentStartRow int          `json:"studentStartRow"`
}

// ExtractStats 解析统计
type ExtractStats struct {
	Rows          int `json:"rows"`          // 学生区域扫描行数
	Students      int `json:"students"`      // 有效学生
	SkippedRows   int `json:"skippedRows"`   // 缺学籍番号或姓名
	DuplicateRows int `json:"duplicateRows"` // 学籍番号重复（保留首行）
	AgeDefaulted  int `json:"ageDefaulted"`  // 年龄使用默认值
	Entries       int `json:"entries"`
	SkippedCells  int `json:"skippedCells"` // 占位值（如 "0"）
}

// Result 归一化结果
type Result struct {
	Dataset *model.Dataset `json:"dataset"`
	Layout  Layout         `json:"layout"`
	Stats   ExtractStats   `json:"stats"`
}
