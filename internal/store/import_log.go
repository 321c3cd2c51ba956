package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tmc-schedule/internal/model"
)

// CreateImportLog 创建导入日志（status=processing），返回 id
func (s *Store) CreateImportLog(ctx context.Context, runID, source string, startedAt time.Time) (int64, error) {
	var id int64
	err := s.db.QueryRowxContext(ctx, s.db.Rebind(`
		INSERT INTO import_logs (run_id, source, status, started_at)
		VALUES (?, ?, 'processing', ?)
		RETURNING id
	`), runID, source, startedAt.UTC()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create import log: %w", err)
	}
	return id, nil
}

// FinishImportLog 写入最终报告
func (s *Store) FinishImportLog(ctx context.Context, report *model.RunReport) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE import_logs SET
			status = ?,
			students = ?,
			entries_built = ?,
			entries_inserted = ?,
			entries_failed = ?,
			entries_dropped = ?,
			error_message = ?,
			completed_at = ?
		WHERE run_id = ?
	`),
		string(report.Status), report.Students, report.EntriesBuilt, report.EntriesInserted,
		report.EntriesFailed, report.EntriesDropped, strings.Join(report.Errors, "; "),
		report.StartedAt.Add(report.Duration).UTC(), report.RunID,
	)
	if err != nil {
		return fmt.Errorf("failed to update import log: %w", err)
	}
	return nil
}

// ListImportLogs 最近的导入日志
func (s *Store) ListImportLogs(ctx context.Context, limit int) ([]model.ImportLog, error) {
	if limit <= 0 {
		limit = 20
	}
	logs := []model.ImportLog{}
	err := s.db.SelectContext(ctx, &logs, s.db.Rebind(`
		SELECT id, run_id, source, status, students, entries_built, entries_inserted,
			entries_failed, entries_dropped, error_message, started_at, completed_at
		FROM import_logs
		ORDER BY id DESC
		LIMIT ?
	`), limit)
	if err != nil {
		return nil, fmt.Errorf("query import logs failed: %w", err)
	}
	return logs, nil
}
