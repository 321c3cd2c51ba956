package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"tmc-schedule/internal/model"
	dbstore "tmc-schedule/internal/store"
)

// TestNewMemoryStore 测试创建存储
func TestNewMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	if store == nil {
		t.Fatal("NewMemoryStore() returned nil")
	}
	if store.Count() != 0 {
		t.Errorf("New store should be empty, got %d students", store.Count())
	}
}

// TestReplaceStudents 测试整表替换与 id 分配
func TestReplaceStudents(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	ids, err := store.ReplaceStudents(ctx, []model.Student{{StudentNumber: "A"}, {StudentNumber: "B"}})
	if err != nil {
		t.Fatalf("ReplaceStudents failed: %v", err)
	}
	if ids["A"] != 1 || ids["B"] != 2 {
		t.Errorf("ids = %v", ids)
	}
	if _, err := store.InsertSchedules(ctx, []model.ScheduleRow{{StudentID: 1, Symbol: "〇"}}); err != nil {
		t.Fatalf("InsertSchedules failed: %v", err)
	}

	ids, err = store.ReplaceStudents(ctx, []model.Student{{StudentNumber: "C"}})
	if err != nil {
		t.Fatalf("ReplaceStudents failed: %v", err)
	}
	if ids["C"] != 1 || store.Count() != 1 || len(store.Schedules()) != 0 {
		t.Errorf("replace should reset students and schedules: ids=%v schedules=%v", ids, store.Schedules())
	}
}

// TestReplaceStudentsDuplicate 测试重复学籍番号不改变已有数据
func TestReplaceStudentsDuplicate(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	_, _ = store.ReplaceStudents(ctx, []model.Student{{StudentNumber: "A"}})

	_, err := store.ReplaceStudents(ctx, []model.Student{{StudentNumber: "X"}, {StudentNumber: "X"}})
	if !errors.Is(err, dbstore.ErrConstraint) {
		t.Fatalf("expected ErrConstraint, got %v", err)
	}
	if got := store.Students(); len(got) != 1 || got[0].StudentNumber != "A" {
		t.Errorf("students changed after failed replace: %+v", got)
	}
}

// TestInsertSchedulesForeignKey 测试日程外键校验
func TestInsertSchedulesForeignKey(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	_, _ = store.ReplaceStudents(ctx, []model.Student{{StudentNumber: "A"}})

	_, err := store.InsertSchedules(ctx, []model.ScheduleRow{{StudentID: 1}, {StudentID: 7}})
	if !dbstore.IsPermanent(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if len(store.Schedules()) != 0 {
		t.Errorf("failed batch must not be partially applied")
	}
}

// TestInsertHook 测试故障注入
func TestInsertHook(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	_, _ = store.ReplaceStudents(ctx, []model.Student{{StudentNumber: "A"}})

	boom := errors.New("boom")
	store.SetInsertHook(func(call int, rows []model.ScheduleRow) error {
		if call == 1 {
			return boom
		}
		return nil
	})

	if _, err := store.InsertSchedules(ctx, []model.ScheduleRow{{StudentID: 1}}); !errors.Is(err, boom) {
		t.Fatalf("first call should fail, got %v", err)
	}
	if n, err := store.InsertSchedules(ctx, []model.ScheduleRow{{StudentID: 1}}); err != nil || n != 1 {
		t.Fatalf("second call: n=%d err=%v", n, err)
	}
	if store.InsertCalls() != 2 {
		t.Errorf("InsertCalls = %d", store.InsertCalls())
	}
}

// TestPingError 测试不可达
func TestPingError(t *testing.T) {
	store := NewMemoryStore()
	store.SetPingError(errors.New("connection refused"))
	if err := store.Ping(context.Background()); !dbstore.IsUnreachable(err) {
		t.Fatalf("expected unreachable, got %v", err)
	}
}

// TestConcurrentAccess 测试并发读写
func TestConcurrentAccess(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	_, _ = store.ReplaceStudents(ctx, []model.Student{{StudentNumber: "A"}})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = store.InsertSchedules(ctx, []model.ScheduleRow{{StudentID: 1, Symbol: "学"}})
		}()
		go func() {
			defer wg.Done()
			_ = store.Schedules()
			_ = store.Students()
		}()
	}
	wg.Wait()

	if len(store.Schedules()) != 50 {
		t.Errorf("schedules = %d, want 50", len(store.Schedules()))
	}
}
