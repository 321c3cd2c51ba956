package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tmc-schedule/internal/model"
)

const insertStudentSQL = `
	INSERT INTO students (
		student_number, name, kana, hospital, day_night, group_name, gender, birth_date, age
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	RETURNING id`

const selectStudentSQL = `
	SELECT id, student_number, name, kana, hospital, day_night, group_name, gender, birth_date, age
	FROM students`

// ReplaceStudents 在一个事务内清空两张表并写入全部学生
//
// 返回 学籍番号 -> id。任何一步失败都会回滚，库中数据保持不变。
func (s *Store) ReplaceStudents(ctx context.Context, students []model.Student) (map[string]int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.clearTx(ctx, tx); err != nil {
		return nil, err
	}

	stmt, err := tx.PreparexContext(ctx, tx.Rebind(insertStudentSQL))
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	ids := make(map[string]int64, len(students))
	for _, st := range students {
		var id int64
		err := stmt.QueryRowxContext(ctx,
			st.StudentNumber, st.Name, st.Kana, st.Hospital, st.DayNight,
			st.GroupName, st.Gender, st.BirthDate, st.Age,
		).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("failed to insert student %s: %w", st.StudentNumber, err)
		}
		ids[st.StudentNumber] = id
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return ids, nil
}

// ListStudents 按 id 顺序列出学生；hospital 非空时过滤
func (s *Store) ListStudents(ctx context.Context, hospital string) ([]model.Student, error) {
	query := selectStudentSQL
	var args []interface{}
	if hospital != "" {
		query += " WHERE hospital = ?"
		args = append(args, hospital)
	}
	query += " ORDER BY id"

	students := []model.Student{}
	if err := s.db.SelectContext(ctx, &students, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("query students failed: %w", err)
	}
	return students, nil
}

// GetStudent 按学籍番号查询
func (s *Store) GetStudent(ctx context.Context, studentNumber string) (*model.Student, error) {
	var st model.Student
	err := s.db.GetContext(ctx, &st, s.db.Rebind(selectStudentSQL+" WHERE student_number = ?"), studentNumber)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("student %s: %w", studentNumber, ErrNotFound)
		}
		return nil, fmt.Errorf("query student failed: %w", err)
	}
	return &st, nil
}
