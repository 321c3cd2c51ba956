package parser

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	monthDayPattern  = regexp.MustCompile(`^(?:(\d{4})/)?(\d{1,2})/(\d{1,2})`)
	whitespaceRunsRe = regexp.MustCompile(`\s+`)
)

// ParseMonthDay 解析日期标签
// 支持格式: "1/15" / "2026/1/15" / "1/15(木)"
func ParseMonthDay(text string) (year, month, day int, ok bool) {
	matches := monthDayPattern.FindStringSubmatch(strings.TrimSpace(text))
	if len(matches) < 4 {
		return 0, 0, 0, false
	}
	if matches[1] != "" {
		year, _ = strconv.Atoi(matches[1])
	}
	month, _ = strconv.Atoi(matches[2])
	day, _ = strconv.Atoi(matches[3])
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return 0, 0, 0, false
	}
	return year, month, day, true
}

// LooksLikeDate 单元格是否包含日期分隔符
func LooksLikeDate(text string) bool {
	return strings.Contains(text, "/")
}

// NormalizeCell 去除首尾空白，并把单元格内换行折叠为一个空格
func NormalizeCell(value string) string {
	value = strings.TrimSpace(value)
	if !strings.ContainsAny(value, "\r\n") {
		return value
	}
	return whitespaceRunsRe.ReplaceAllString(value, " ")
}

// ParseAge 解析年龄；为空或无法解析时返回 fallback
func ParseAge(value string, fallback int) (int, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback, false
	}
	age, err := strconv.Atoi(value)
	if err != nil {
		return fallback, false
	}
	return age, true
}

// cellAt 读取行内单元格；短行时返回空串
func cellAt(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return row[col]
}
