package parser

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadCSV 读取分隔符文本为 Grid
// encoding 支持 utf-8（默认）与 shift_jis / cp932
func ReadCSV(r io.Reader, encoding string) (Grid, error) {
	src, err := decodeReader(r, encoding)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(src)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var grid Grid
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: read csv line %d: %v", ErrInputUnreadable, len(grid)+1, err)
		}
		grid = append(grid, rec)
	}
	return grid, nil
}

// ReadCSVFile 打开并读取 CSV 文件
func ReadCSVFile(path, encoding string) (Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInputUnreadable, err)
	}
	defer f.Close()
	return ReadCSV(f, encoding)
}

// ReadXLSXFile 读取工作簿中的一个 Sheet；sheet 为空时取第一个
func ReadXLSXFile(path, sheet string) (Grid, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open workbook: %v", ErrInputUnreadable, err)
	}
	defer f.Close()
	return ReadWorkbookSheet(f, sheet)
}

// ReadWorkbookSheet 从已打开的工作簿读取 Sheet
func ReadWorkbookSheet(f *excelize.File, sheet string) (Grid, error) {
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("%w: workbook has no sheets", ErrInputUnreadable)
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("%w: read sheet %q: %v", ErrInputUnreadable, sheet, err)
	}
	return Grid(rows), nil
}

// ReadFile 按扩展名选择读取方式
func ReadFile(path, sheet, encoding string) (Grid, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return ReadXLSXFile(path, sheet)
	default:
		return ReadCSVFile(path, encoding)
	}
}

func decodeReader(r io.Reader, encoding string) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "utf-8", "utf8":
		br := bufio.NewReader(r)
		head, err := br.Peek(len(utf8BOM))
		if err == nil && bytes.Equal(head, utf8BOM) {
			_, _ = br.Discard(len(utf8BOM))
		}
		return br, nil
	case "shift_jis", "sjis", "cp932":
		return transform.NewReader(r, japanese.ShiftJIS.NewDecoder()), nil
	default:
		return nil, fmt.Errorf("%w: unsupported encoding %q", ErrInputUnreadable, encoding)
	}
}
