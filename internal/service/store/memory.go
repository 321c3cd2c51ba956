package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"tmc-schedule/internal/model"
	dbstore "tmc-schedule/internal/store"
)

// InsertHook 在写入日程批次前调用；返回非 nil 时该次写入失败
// call 为第几次调用（从 1 开始）
type InsertHook func(call int, rows []model.ScheduleRow) error

// MemoryStore 内存数据存储
// 用于试运行与导入流程测试，语义与数据库一致：学籍番号唯一、日程外键校验
type MemoryStore struct {
	mu        sync.RWMutex
	students  []model.Student
	ids       map[string]int64
	schedules []model.ScheduleRow

	insertCalls int
	insertHook  InsertHook
	pingErr     error
	replaceErr  error
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		ids: make(map[string]int64),
	}
}

// SetInsertHook 设置日程写入故障注入
func (s *MemoryStore) SetInsertHook(hook InsertHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertHook = hook
}

// SetPingError 让 Ping 返回指定错误
func (s *MemoryStore) SetPingError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pingErr = err
}

// SetReplaceError 让 ReplaceStudents 失败（数据保持不变）
func (s *MemoryStore) SetReplaceError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaceErr = err
}

// Ping 检查可用性
func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.pingErr != nil {
		return fmt.Errorf("%w: %v", dbstore.ErrUnreachable, s.pingErr)
	}
	return ctx.Err()
}

// ReplaceStudents 清空后写入学生，id 从 1 开始
func (s *MemoryStore) ReplaceStudents(ctx context.Context, students []model.Student) (map[string]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.replaceErr != nil {
		return nil, s.replaceErr
	}

	ids := make(map[string]int64, len(students))
	next := make([]model.Student, 0, len(students))
	for i, st := range students {
		if _, dup := ids[st.StudentNumber]; dup {
			return nil, fmt.Errorf("student %s: %w", st.StudentNumber, dbstore.ErrConstraint)
		}
		st.ID = int64(i + 1)
		ids[st.StudentNumber] = st.ID
		next = append(next, st)
	}

	s.students = next
	s.ids = ids
	s.schedules = nil
	out := make(map[string]int64, len(ids))
	for k, v := range ids {
		out[k] = v
	}
	return out, nil
}

// InsertSchedules 写入一批日程；整批成功或整批失败
func (s *MemoryStore) InsertSchedules(ctx context.Context, rows []model.ScheduleRow) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.insertCalls++
	if s.insertHook != nil {
		if err := s.insertHook(s.insertCalls, rows); err != nil {
			return 0, err
		}
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	valid := make(map[int64]struct{}, len(s.students))
	for _, st := range s.students {
		valid[st.ID] = struct{}{}
	}
	for _, r := range rows {
		if _, ok := valid[r.StudentID]; !ok {
			return 0, fmt.Errorf("student_id %d: %w", r.StudentID, dbstore.ErrConstraint)
		}
	}
	s.schedules = append(s.schedules, rows...)
	return len(rows), nil
}

// ClearAll 清空全部数据
func (s *MemoryStore) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.students = nil
	s.ids = make(map[string]int64)
	s.schedules = nil
	return ctx.Err()
}

// Students 当前学生（按 id）
func (s *MemoryStore) Students() []model.Student {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]model.Student(nil), s.students...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Schedules 当前日程（按写入顺序）
func (s *MemoryStore) Schedules() []model.ScheduleRow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.ScheduleRow(nil), s.schedules...)
}

// InsertCalls 日程写入调用次数（含失败）
func (s *MemoryStore) InsertCalls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.insertCalls
}

// Count 学生数量
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.students)
}
