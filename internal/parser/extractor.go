package parser

import (
	"log/slog"

	"tmc-schedule/internal/config"
	"tmc-schedule/internal/model"
)

// Extractor 学生与日程提取器
type Extractor struct {
	template config.TemplateConfig
	symbols  model.SymbolTable
	logger   *slog.Logger
}

// NewExtractor 创建提取器
func NewExtractor(template config.TemplateConfig, symbols model.SymbolTable, logger *slog.Logger) *Extractor {
	if symbols == nil {
		symbols = model.DefaultSymbols()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{template: template, symbols: symbols, logger: logger}
}

// Extract 从学生起始行开始提取学生与日程
func (e *Extractor) Extract(grid Grid, layout Layout) (*model.Dataset, ExtractStats) {
	var stats ExtractStats
	dataset := &model.Dataset{
		Students: []model.Student{},
		Entries:  []model.ScheduleEntry{},
		Dates:    make([]string, 0, len(layout.Dates)),
	}
	for _, d := range layout.Dates {
		dataset.Dates = append(dataset.Dates, d.Label)
	}

	seen := make(map[string]int)
	for rowIdx := layout.StudentStartRow; rowIdx < len(grid); rowIdx++ {
		row := grid[rowIdx]
		stats.Rows++

		student, ageOK := e.extractStudent(row, rowIdx+1)
		if student.StudentNumber == "" || student.Name == "" {
			stats.SkippedRows++
			continue
		}
		if first, dup := seen[student.StudentNumber]; dup {
			stats.DuplicateRows++
			e.logger.Warn("duplicate student number, keeping first row",
				"student_number", student.StudentNumber, "first_row", first, "row", student.RowNo)
			continue
		}
		seen[student.StudentNumber] = student.RowNo
		if !ageOK {
			stats.AgeDefaulted++
		}

		dataset.Students = append(dataset.Students, student)
		stats.Students++

		for _, date := range layout.Dates {
			symbol := NormalizeCell(cellAt(row, date.Index))
			if symbol == "" {
				continue
			}
			if e.template.IsSkipSymbol(symbol) {
				stats.SkippedCells++
				continue
			}
			dataset.Entries = append(dataset.Entries, model.ScheduleEntry{
				StudentNumber: student.StudentNumber,
				Date:          date.Label,
				ScheduleDate:  date.ISODate(e.template.Year),
				Symbol:        symbol,
				Description:   e.symbols.Describe(symbol),
			})
			stats.Entries++
		}
	}

	return dataset, stats
}

// extractStudent 按列偏移读取学生信息，缺失列视为空
func (e *Extractor) extractStudent(row []string, rowNo int) (model.Student, bool) {
	cols := e.template.Columns
	age, ageOK := ParseAge(cellAt(row, cols.Age), model.DefaultAge)
	return model.Student{
		StudentNumber: NormalizeCell(cellAt(row, cols.StudentNumber)),
		Name:          NormalizeCell(cellAt(row, cols.Name)),
		Kana:          NormalizeCell(cellAt(row, cols.Kana)),
		Hospital:      NormalizeCell(cellAt(row, cols.Hospital)),
		DayNight:      NormalizeCell(cellAt(row, cols.DayNight)),
		GroupName:     NormalizeCell(cellAt(row, cols.Group)),
		Gender:        NormalizeCell(cellAt(row, cols.Gender)),
		BirthDate:     NormalizeCell(cellAt(row, cols.BirthDate)),
		Age:           age,
		RowNo:         rowNo,
	}, ageOK
}

// Normalizer 定位 + 提取
type Normalizer struct {
	locator   *Locator
	extractor *Extractor
}

// NewNormalizer 创建归一化器
func NewNormalizer(template config.TemplateConfig, symbols model.SymbolTable, logger *slog.Logger) *Normalizer {
	return &Normalizer{
		locator:   NewLocator(template, logger),
		extractor: NewExtractor(template, symbols, logger),
	}
}

// Normalize 将表格转换为学生 / 日程集合
func (n *Normalizer) Normalize(grid Grid) (*Result, error) {
	layout, err := n.locator.Locate(grid)
	if err != nil {
		return nil, err
	}
	dataset, stats := n.extractor.Extract(grid, layout)
	return &Result{
		Dataset: dataset,
		Layout:  layout,
		Stats:   stats,
	}, nil
}
