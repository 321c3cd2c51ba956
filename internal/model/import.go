package model

import "time"

// RunStatus 导入运行结果
type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunPartial   RunStatus = "partial"
	RunFailed    RunStatus = "failed"
)

// BatchResult 单个日程批次的写入结果
type BatchResult struct {
	Index    int           `json:"index"`
	Rows     int           `json:"rows"`
	Attempts int           `json:"attempts"`
	Status   string        `json:"status"` // inserted/failed/aborted
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// RunReport 导入报告
type RunReport struct {
	RunID  string    `json:"runId"`
	Source string    `json:"source"`
	Status RunStatus `json:"status"`
	DryRun bool      `json:"dryRun,omitempty"`

	Students        int `json:"students"`
	SkippedRows     int `json:"skippedRows"`
	DuplicateRows   int `json:"duplicateRows"`
	EntriesBuilt    int `json:"entriesBuilt"`
	EntriesInserted int `json:"entriesInserted"`
	EntriesFailed   int `json:"entriesFailed"`
	EntriesDropped  int `json:"entriesDropped"` // 找不到学生 id 的日程

	Batches   []BatchResult `json:"batches"`
	Errors    []string      `json:"errors,omitempty"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
}

// Resolve 根据计数确定最终状态
func (r *RunReport) Resolve() RunStatus {
	switch {
	case r.Status == RunFailed:
	case r.EntriesBuilt > 0 && r.EntriesInserted == 0:
		r.Status = RunFailed
	case r.EntriesFailed > 0 || r.EntriesDropped > 0:
		r.Status = RunPartial
	default:
		r.Status = RunSucceeded
	}
	return r.Status
}

// ImportLog import_logs 表中的一条记录
type ImportLog struct {
	ID              int64      `json:"id" db:"id"`
	RunID           string     `json:"runId" db:"run_id"`
	Source          string     `json:"source" db:"source"`
	Status          string     `json:"status" db:"status"`
	Students        int        `json:"students" db:"students"`
	EntriesBuilt    int        `json:"entriesBuilt" db:"entries_built"`
	EntriesInserted int        `json:"entriesInserted" db:"entries_inserted"`
	EntriesFailed   int        `json:"entriesFailed" db:"entries_failed"`
	EntriesDropped  int        `json:"entriesDropped" db:"entries_dropped"`
	ErrorMessage    string     `json:"errorMessage" db:"error_message"`
	StartedAt       time.Time  `json:"startedAt" db:"started_at"`
	CompletedAt     *time.Time `json:"completedAt" db:"completed_at"`
}
