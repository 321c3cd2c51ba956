package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"tmc-schedule/internal/model"
)

const insertScheduleSQL = `
	INSERT INTO schedule_entries (student_id, schedule_date, symbol, description)
	VALUES (:student_id, :schedule_date, :symbol, :description)`

// ScheduleView 带学生信息的日程行
type ScheduleView struct {
	ID            int64  `json:"id" db:"id"`
	StudentID     int64  `json:"studentId" db:"student_id"`
	StudentNumber string `json:"studentNumber" db:"student_number"`
	Name          string `json:"name" db:"name"`
	Hospital      string `json:"hospital" db:"hospital"`
	ScheduleDate  string `json:"scheduleDate" db:"schedule_date"`
	Symbol        string `json:"symbol" db:"symbol"`
	Description   string `json:"description" db:"description"`
}

// ScheduleFilter 日程查询条件，空字段不过滤
type ScheduleFilter struct {
	Date          string
	StudentNumber string
	Symbol        string
	Limit         int
}

// InsertSchedules 在独立事务中写入一批日程
func (s *Store) InsertSchedules(ctx context.Context, rows []model.ScheduleRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.NamedExecContext(ctx, insertScheduleSQL, rows); err != nil {
		return 0, fmt.Errorf("failed to insert schedule batch: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return len(rows), nil
}

// ListSchedules 按条件查询日程
func (s *Store) ListSchedules(ctx context.Context, f ScheduleFilter) ([]ScheduleView, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.Date != "" {
		where = append(where, "e.schedule_date = ?")
		args = append(args, f.Date)
	}
	if f.StudentNumber != "" {
		where = append(where, "st.student_number = ?")
		args = append(args, f.StudentNumber)
	}
	if f.Symbol != "" {
		where = append(where, "e.symbol = ?")
		args = append(args, f.Symbol)
	}

	query := `
		SELECT e.id, e.student_id, st.student_number, st.name, st.hospital,
			e.schedule_date, e.symbol, e.description
		FROM schedule_entries e
		JOIN students st ON st.id = e.student_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY e.student_id, e.id"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	out := []ScheduleView{}
	if err := s.db.SelectContext(ctx, &out, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("query schedules failed: %w", err)
	}
	return out, nil
}

// LoadDataset 读出库中全部学生与日程（用于导出）
// 日期按首次写入顺序排列
func (s *Store) LoadDataset(ctx context.Context) (*model.Dataset, error) {
	students, err := s.ListStudents(ctx, "")
	if err != nil {
		return nil, err
	}
	views, err := s.ListSchedules(ctx, ScheduleFilter{})
	if err != nil {
		return nil, err
	}

	var dates []string
	if err := s.db.SelectContext(ctx, &dates, `
		SELECT schedule_date FROM schedule_entries
		GROUP BY schedule_date
		ORDER BY MIN(id)`); err != nil {
		return nil, fmt.Errorf("query dates failed: %w", err)
	}

	dataset := &model.Dataset{
		Students: students,
		Entries:  make([]model.ScheduleEntry, 0, len(views)),
		Dates:    dates,
	}
	if dataset.Dates == nil {
		dataset.Dates = []string{}
	}
	for _, v := range views {
		dataset.Entries = append(dataset.Entries, model.ScheduleEntry{
			StudentNumber: v.StudentNumber,
			Date:          v.ScheduleDate,
			ScheduleDate:  v.ScheduleDate,
			Symbol:        v.Symbol,
			Description:   v.Description,
		})
	}
	return dataset, nil
}

// ClearAll 删除全部学生与日程（子表优先）
func (s *Store) ClearAll(ctx context.Context) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.clearTx(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) clearTx(ctx context.Context, tx *sqlx.Tx) error {
	if s.driver == DriverPostgres {
		if _, err := tx.ExecContext(ctx, `TRUNCATE schedule_entries, students RESTART IDENTITY`); err != nil {
			return fmt.Errorf("failed to clear tables: %w", err)
		}
		return nil
	}
	for _, table := range []string{"schedule_entries", "students"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}
