package importer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"tmc-schedule/internal/config"
	"tmc-schedule/internal/model"
	"tmc-schedule/internal/parser"
)

// Source 导入数据来源
type Source interface {
	Name() string
	Read(ctx context.Context) (*model.Dataset, parser.ExtractStats, error)
}

// FileSource CSV / XLSX 日程表文件
type FileSource struct {
	Path     string
	Sheet    string
	Encoding string
	Template config.TemplateConfig
	Symbols  model.SymbolTable
	Logger   *slog.Logger
}

// Name 文件名
func (s FileSource) Name() string { return filepath.Base(s.Path) }

// Read 读取并归一化
func (s FileSource) Read(ctx context.Context) (*model.Dataset, parser.ExtractStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, parser.ExtractStats{}, err
	}
	grid, err := parser.ReadFile(s.Path, s.Sheet, s.Encoding)
	if err != nil {
		return nil, parser.ExtractStats{}, err
	}
	return normalize(grid, s.Template, s.Symbols, s.Logger)
}

// SheetsSource Google Sheets 区域
type SheetsSource struct {
	Reader        *parser.SheetsReader
	SpreadsheetID string
	Range         string
	Template      config.TemplateConfig
	Symbols       model.SymbolTable
	Logger        *slog.Logger
}

// Name spreadsheet/range
func (s SheetsSource) Name() string {
	return fmt.Sprintf("sheets:%s/%s", s.SpreadsheetID, s.Range)
}

// Read 拉取区域并归一化
func (s SheetsSource) Read(ctx context.Context) (*model.Dataset, parser.ExtractStats, error) {
	grid, err := s.Reader.ReadGrid(ctx, s.SpreadsheetID, s.Range)
	if err != nil {
		return nil, parser.ExtractStats{}, err
	}
	return normalize(grid, s.Template, s.Symbols, s.Logger)
}

// UnifiedSource 统合 CSV（一行一条日程）
type UnifiedSource struct {
	Path    string
	Symbols model.SymbolTable
}

// Name 文件名
func (s UnifiedSource) Name() string { return filepath.Base(s.Path) }

// Read 解析统合 CSV
func (s UnifiedSource) Read(ctx context.Context) (*model.Dataset, parser.ExtractStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, parser.ExtractStats{}, err
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, parser.ExtractStats{}, fmt.Errorf("%w: %v", parser.ErrInputUnreadable, err)
	}
	defer f.Close()
	return parser.DecodeUnified(f, s.Symbols)
}

// DatasetSource 已解析好的数据
type DatasetSource struct {
	Label   string
	Dataset *model.Dataset
	Stats   parser.ExtractStats
}

// Name 标签
func (s DatasetSource) Name() string { return s.Label }

// Read 原样返回
func (s DatasetSource) Read(context.Context) (*model.Dataset, parser.ExtractStats, error) {
	if s.Dataset == nil {
		return nil, s.Stats, fmt.Errorf("%w: empty dataset", parser.ErrInputUnreadable)
	}
	return s.Dataset, s.Stats, nil
}

func normalize(grid parser.Grid, tpl config.TemplateConfig, symbols model.SymbolTable, logger *slog.Logger) (*model.Dataset, parser.ExtractStats, error) {
	res, err := parser.NewNormalizer(tpl, symbols, logger).Normalize(grid)
	if err != nil {
		return nil, parser.ExtractStats{}, err
	}
	return res.Dataset, res.Stats, nil
}
