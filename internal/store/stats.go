package store

import (
	"context"
	"fmt"
)

// CountStat 分组计数
type CountStat struct {
	Key   string `json:"key" db:"k"`
	Count int    `json:"count" db:"n"`
}

// Stats 库内数据统计
type Stats struct {
	Students  int         `json:"students"`
	Entries   int         `json:"entries"`
	Dates     int         `json:"dates"`
	Hospitals []CountStat `json:"hospitals"`
	Symbols   []CountStat `json:"symbols"`
	FirstDate string      `json:"firstDate,omitempty"`
	LastDate  string      `json:"lastDate,omitempty"`
}

// Stats 汇总学生、日程、医院与记号分布
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	row := s.db.QueryRowxContext(ctx, `
		SELECT
			(SELECT COUNT(1) FROM students),
			(SELECT COUNT(1) FROM schedule_entries),
			(SELECT COUNT(DISTINCT schedule_date) FROM schedule_entries),
			COALESCE((SELECT MIN(schedule_date) FROM schedule_entries), ''),
			COALESCE((SELECT MAX(schedule_date) FROM schedule_entries), '')
	`)
	if err := row.Scan(&st.Students, &st.Entries, &st.Dates, &st.FirstDate, &st.LastDate); err != nil {
		return nil, fmt.Errorf("query stats failed: %w", err)
	}

	st.Hospitals = []CountStat{}
	if err := s.db.SelectContext(ctx, &st.Hospitals, `
		SELECT hospital AS k, COUNT(1) AS n
		FROM students
		GROUP BY hospital
		ORDER BY n DESC, hospital
	`); err != nil {
		return nil, fmt.Errorf("query hospital stats failed: %w", err)
	}

	st.Symbols = []CountStat{}
	if err := s.db.SelectContext(ctx, &st.Symbols, `
		SELECT symbol AS k, COUNT(1) AS n
		FROM schedule_entries
		GROUP BY symbol
		ORDER BY n DESC, symbol
	`); err != nil {
		return nil, fmt.Errorf("query symbol stats failed: %w", err)
	}
	return &st, nil
}
