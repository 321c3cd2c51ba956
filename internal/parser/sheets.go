package parser

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// SheetsReader 通过服务账号读取 Google Sheets 区域
type SheetsReader struct {
	srv *sheets.Service
}

// NewSheetsReader 使用服务账号 JSON 创建读取器
func NewSheetsReader(ctx context.Context, credentialsFile string) (*SheetsReader, error) {
	if credentialsFile == "" {
		return nil, fmt.Errorf("%w: google credentials file is not configured", ErrInputUnreadable)
	}
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("%w: read service account file: %v", ErrInputUnreadable, err)
	}
	jwtConfig, err := google.JWTConfigFromJSON(b, sheets.SpreadsheetsReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("%w: parse service account file: %v", ErrInputUnreadable, err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(jwtConfig.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("create sheets client: %w", err)
	}
	return &SheetsReader{srv: srv}, nil
}

// ReadGrid 读取区域，如 "日程表!A1:BZ200"
func (r *SheetsReader) ReadGrid(ctx context.Context, spreadsheetID, readRange string) (Grid, error) {
	resp, err := r.srv.Spreadsheets.Values.Get(spreadsheetID, readRange).
		ValueRenderOption("FORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("%w: get values %s: %v", ErrInputUnreadable, readRange, err)
	}
	return valuesToGrid(resp.Values), nil
}

// valuesToGrid 将 API 返回的 [][]interface{} 转为字符串表格
func valuesToGrid(values [][]interface{}) Grid {
	grid := make(Grid, len(values))
	for i, row := range values {
		cells := make([]string, len(row))
		for j, v := range row {
			if v == nil {
				continue
			}
			cells[j] = fmt.Sprintf("%v", v)
		}
		grid[i] = cells
	}
	return grid
}
