package parser

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/jszwec/csvutil"

	"tmc-schedule/internal/model"
)

// UnifiedHeader 统合 CSV 表头（学生信息 + 一天一行的日程）
var UnifiedHeader = []string{"学籍番号", "氏名", "ふりがな", "性別", "生年月日", "年齢", "病院", "クラス", "班", "日付", "記号", "説明"}

var isoDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// UnifiedRecord 统合 CSV 的一行
type UnifiedRecord struct {
	StudentNumber string `csv:"学籍番号"`
	Name          string `csv:"氏名"`
	Kana          string `csv:"ふりがな"`
	Gender        string `csv:"性別"`
	BirthDate     string `csv:"生年月日"`
	Age           string `csv:"年齢"`
	Hospital      string `csv:"病院"`
	DayNight      string `csv:"クラス"`
	GroupName     string `csv:"班"`
	Date          string `csv:"日付"`
	Symbol        string `csv:"記号"`
	Description   string `csv:"説明"`
}

// DecodeUnified 解析统合 CSV
// 同一学籍番号多次出现时以首行的学生信息为准；列数不足的行跳过
func DecodeUnified(r io.Reader, symbols model.SymbolTable) (*model.Dataset, ExtractStats, error) {
	var stats ExtractStats
	if symbols == nil {
		symbols = model.DefaultSymbols()
	}

	src, err := decodeReader(r, "utf-8")
	if err != nil {
		return nil, stats, err
	}
	reader := csv.NewReader(src)
	reader.FieldsPerRecord = -1

	dec, err := csvutil.NewDecoder(reader)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, stats, fmt.Errorf("%w: empty csv", ErrInputUnreadable)
		}
		return nil, stats, fmt.Errorf("%w: read header: %v", ErrInputUnreadable, err)
	}
	if missing := missingHeaders(dec.Header()); len(missing) > 0 {
		return nil, stats, fmt.Errorf("%w: missing columns %v", ErrInputUnreadable, missing)
	}

	dataset := &model.Dataset{
		Students: []model.Student{},
		Entries:  []model.ScheduleEntry{},
		Dates:    []string{},
	}
	seenStudent := make(map[string]struct{})
	seenDate := make(map[string]struct{})

	for lineNo := 2; ; lineNo++ {
		var rec UnifiedRecord
		err := dec.Decode(&rec)
		if err == io.EOF {
			break
		}
		if err != nil {
			if errors.Is(err, csvutil.ErrFieldCount) {
				stats.SkippedRows++
				continue
			}
			return nil, stats, fmt.Errorf("%w: line %d: %v", ErrInputUnreadable, lineNo, err)
		}
		stats.Rows++

		number := NormalizeCell(rec.StudentNumber)
		if number == "" {
			stats.SkippedRows++
			continue
		}

		if _, ok := seenStudent[number]; !ok {
			name := NormalizeCell(rec.Name)
			if name == "" {
				stats.SkippedRows++
				continue
			}
			age, ageOK := ParseAge(rec.Age, model.DefaultAge)
			if !ageOK {
				stats.AgeDefaulted++
			}
			seenStudent[number] = struct{}{}
			dataset.Students = append(dataset.Students, model.Student{
				StudentNumber: number,
				Name:          name,
				Kana:          NormalizeCell(rec.Kana),
				Hospital:      NormalizeCell(rec.Hospital),
				DayNight:      NormalizeCell(rec.DayNight),
				GroupName:     NormalizeCell(rec.GroupName),
				Gender:        NormalizeCell(rec.Gender),
				BirthDate:     NormalizeCell(rec.BirthDate),
				Age:           age,
				RowNo:         lineNo,
			})
			stats.Students++
		}

		date := NormalizeCell(rec.Date)
		symbol := NormalizeCell(rec.Symbol)
		if date == "" || symbol == "" {
			continue
		}
		description := NormalizeCell(rec.Description)
		if description == "" {
			description = symbols.Describe(symbol)
		}
		if _, ok := seenDate[date]; !ok {
			seenDate[date] = struct{}{}
			dataset.Dates = append(dataset.Dates, date)
		}
		dataset.Entries = append(dataset.Entries, model.ScheduleEntry{
			StudentNumber: number,
			Date:          date,
			ScheduleDate:  normalizeScheduleDate(date),
			Symbol:        symbol,
			Description:   description,
		})
		stats.Entries++
	}

	return dataset, stats, nil
}

// normalizeScheduleDate 带年份的标签转为 ISO；其余保持原样
func normalizeScheduleDate(label string) string {
	if isoDatePattern.MatchString(label) {
		return label
	}
	year, month, day, ok := ParseMonthDay(label)
	if !ok || year == 0 {
		return label
	}
	return DateColumn{Year: year, Month: month, Day: day, Label: label}.ISODate(0)
}

func missingHeaders(header []string) []string {
	have := make(map[string]struct{}, len(header))
	for _, h := range header {
		have[strings.TrimSpace(h)] = struct{}{}
	}
	var missing []string
	for _, want := range UnifiedHeader[:11] {
		if _, ok := have[want]; !ok {
			missing = append(missing, want)
		}
	}
	return missing
}
