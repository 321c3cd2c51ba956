package model

import "sort"

// SymbolTable 日程记号 -> 说明
type SymbolTable map[string]string

// DefaultSymbols 默认记号表
func DefaultSymbols() SymbolTable {
	return SymbolTable{
		"学":   "campus attendance day",
		"数":   "math seminar",
		"〇":   "clinical rotation day",
		"明":   "day after rotation",
		"半":   "half-day clinical rotation",
		"オリ":  "orientation",
		"実研":  "practicum research",
		"SPI": "SPI aptitude test",
		"ME":  "ME equipment training",
		"試験":  "examination",
		"文検":  "writing proficiency test",
	}
}

// Describe 返回记号说明；未登记的记号原样返回
func (t SymbolTable) Describe(symbol string) string {
	if desc, ok := t[symbol]; ok && desc != "" {
		return desc
	}
	return symbol
}

// Merge 返回叠加 overrides 后的新表
func (t SymbolTable) Merge(overrides map[string]string) SymbolTable {
	out := make(SymbolTable, len(t)+len(overrides))
	for k, v := range t {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

// Codes 按字典序返回全部记号
func (t SymbolTable) Codes() []string {
	codes := make([]string, 0, len(t))
	for k := range t {
		codes = append(codes, k)
	}
	sort.Strings(codes)
	return codes
}
