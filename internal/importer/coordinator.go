package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"tmc-schedule/internal/config"
	"tmc-schedule/internal/lock"
	"tmc-schedule/internal/model"
	memstore "tmc-schedule/internal/service/store"
	"tmc-schedule/internal/store"
)

// ErrNoStudents 来源中没有有效学生，库内数据保持不变
var ErrNoStudents = errors.New("no valid students in source")

// Sink 导入目标
type Sink interface {
	Ping(ctx context.Context) error
	ReplaceStudents(ctx context.Context, students []model.Student) (map[string]int64, error)
	InsertSchedules(ctx context.Context, rows []model.ScheduleRow) (int, error)
}

// RunLogger 记录导入日志的目标（可选）
type RunLogger interface {
	CreateImportLog(ctx context.Context, runID, source string, startedAt time.Time) (int64, error)
	FinishImportLog(ctx context.Context, report *model.RunReport) error
}

// Options 写库参数
type Options struct {
	BatchSize      int
	BatchTimeout   time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	PingTimeout    time.Duration
}

// OptionsFromConfig 由配置生成写库参数
func OptionsFromConfig(cfg config.LoaderConfig) Options {
	return Options{
		BatchSize:      cfg.BatchSize,
		BatchTimeout:   cfg.BatchTimeout.Std(),
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff.Std(),
		PingTimeout:    cfg.PingTimeout.Std(),
	}
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 500
	}
	if o.BatchTimeout <= 0 {
		o.BatchTimeout = 30 * time.Second
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = 500 * time.Millisecond
	}
	if o.PingTimeout <= 0 {
		o.PingTimeout = 5 * time.Second
	}
	return o
}

// Coordinator 导入协调器
type Coordinator struct {
	sink   Sink
	locker lock.Locker
	opts   Options
	logger *slog.Logger
}

// NewCoordinator 创建导入协调器；locker 为 nil 时不加锁
func NewCoordinator(sink Sink, locker lock.Locker, opts Options, logger *slog.Logger) *Coordinator {
	if locker == nil {
		locker = lock.NopLocker{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		sink:   sink,
		locker: locker,
		opts:   opts.withDefaults(),
		logger: logger,
	}
}

// ImportOptions 导入选项
type ImportOptions struct {
	DryRun bool // 只解析并写入内存存储，不触碰数据库
}

// 事件类型
const (
	EventStart     = "start"
	EventInfo      = "info"
	EventWarning   = "warning"
	EventBatchDone = "batch_done"
	EventDone      = "done"
	EventError     = "error"
)

// ProgressEvent 进度事件
type ProgressEvent struct {
	RunID     string      `json:"runId"`
	Type      string      `json:"type"` // start/info/warning/batch_done/done/error
	Message   string      `json:"message"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// run 一次导入的上下文
type run struct {
	sink     Sink
	report   *model.RunReport
	progress chan ProgressEvent
	logger   *slog.Logger
}

// Import 执行导入，返回进度通道
// 最后一个事件为 done 或 error，两者的 Data 都是 *model.RunReport
func (c *Coordinator) Import(ctx context.Context, src Source, opts ImportOptions) <-chan ProgressEvent {
	progressChan := make(chan ProgressEvent, 100)

	go func() {
		defer close(progressChan)
		c.doImport(ctx, src, opts, progressChan)
	}()

	return progressChan
}

// Run 同步执行导入；onEvent 可为 nil
func (c *Coordinator) Run(ctx context.Context, src Source, opts ImportOptions, onEvent func(ProgressEvent)) (*model.RunReport, error) {
	return Wait(c.Import(ctx, src, opts), onEvent)
}

// Wait 读完进度通道并返回最终报告
// 致命错误时报告状态为 failed，同时返回错误
func Wait(ch <-chan ProgressEvent, onEvent func(ProgressEvent)) (*model.RunReport, error) {
	var (
		report *model.RunReport
		runErr error
	)
	for evt := range ch {
		if onEvent != nil {
			onEvent(evt)
		}
		switch evt.Type {
		case EventDone:
			report, _ = evt.Data.(*model.RunReport)
		case EventError:
			report, _ = evt.Data.(*model.RunReport)
			runErr = errors.New(evt.Message)
		}
	}
	if report == nil && runErr == nil {
		runErr = errors.New("import finished without a report")
	}
	return report, runErr
}

// doImport 执行导入逻辑
func (c *Coordinator) doImport(ctx context.Context, src Source, opts ImportOptions, progressChan chan ProgressEvent) {
	r := &run{
		sink:     c.sink,
		progress: progressChan,
		report: &model.RunReport{
			RunID:     uuid.NewString(),
			Source:    src.Name(),
			DryRun:    opts.DryRun,
			Batches:   []model.BatchResult{},
			StartedAt: time.Now(),
		},
	}
	r.logger = c.logger.With("run_id", r.report.RunID, "source", r.report.Source)
	if opts.DryRun {
		r.sink = memstore.NewMemoryStore()
	}

	c.send(ctx, r, EventStart, "开始导入", map[string]interface{}{
		"source":  r.report.Source,
		"dry_run": opts.DryRun,
	})

	// 解析在任何写库动作之前完成；没有学生时保留库内数据
	dataset, stats, err := src.Read(ctx)
	if err != nil {
		c.fail(ctx, r, fmt.Errorf("read source: %w", err))
		return
	}
	r.report.SkippedRows = stats.SkippedRows
	r.report.DuplicateRows = stats.DuplicateRows
	r.report.EntriesBuilt = len(dataset.Entries)

	c.send(ctx, r, EventInfo, fmt.Sprintf("解析完成: %d 名学生, %d 条日程, %d 个日期",
		len(dataset.Students), len(dataset.Entries), len(dataset.Dates)), stats)
	if stats.SkippedRows > 0 || stats.DuplicateRows > 0 {
		c.send(ctx, r, EventWarning, fmt.Sprintf("跳过 %d 行（缺学籍番号或姓名）, %d 行重复学籍番号",
			stats.SkippedRows, stats.DuplicateRows), nil)
	}
	if len(dataset.Students) == 0 {
		c.fail(ctx, r, fmt.Errorf("%w (skipped %d rows)", ErrNoStudents, stats.SkippedRows))
		return
	}

	if !opts.DryRun {
		release, err := c.locker.Acquire(ctx, r.report.RunID)
		if err != nil {
			c.fail(ctx, r, fmt.Errorf("acquire import lock: %w", err))
			return
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				r.logger.Warn("release import lock failed", "error", err)
			}
		}()
	}

	// 写库前确认存储可达
	pingCtx, cancel := context.WithTimeout(ctx, c.opts.PingTimeout)
	err = r.sink.Ping(pingCtx)
	cancel()
	if err != nil {
		c.fail(ctx, r, fmt.Errorf("store check failed: %w", err))
		return
	}

	runLog, _ := r.sink.(RunLogger)
	if runLog != nil {
		if _, err := runLog.CreateImportLog(ctx, r.report.RunID, r.report.Source, r.report.StartedAt); err != nil {
			r.logger.Warn("create import log failed", "error", err)
			runLog = nil
		}
	}
	defer func() {
		if runLog == nil {
			return
		}
		if err := runLog.FinishImportLog(context.WithoutCancel(ctx), r.report); err != nil {
			r.logger.Warn("finish import log failed", "error", err)
		}
	}()

	// 阶段一：单事务清空并写入学生
	ids, err := r.sink.ReplaceStudents(ctx, dataset.Students)
	if err != nil {
		c.fail(ctx, r, fmt.Errorf("replace students: %w", err))
		return
	}
	r.report.Students = len(ids)
	c.send(ctx, r, EventInfo, fmt.Sprintf("已写入 %d 名学生", len(ids)), map[string]int{"students": len(ids)})

	// 阶段二：按批写入日程
	rows, dropped := rekey(dataset.Entries, ids)
	r.report.EntriesDropped = dropped
	if dropped > 0 {
		r.logger.Warn("schedule entries without student id dropped", "count", dropped)
		c.send(ctx, r, EventWarning, fmt.Sprintf("%d 条日程找不到学生 id，已丢弃", dropped), nil)
	}
	c.loadBatches(ctx, r, rows)

	r.report.Duration = time.Since(r.report.StartedAt)
	status := r.report.Resolve()
	r.logger.Info("import finished",
		"status", status,
		"students", r.report.Students,
		"entries_inserted", r.report.EntriesInserted,
		"entries_failed", r.report.EntriesFailed,
		"entries_dropped", r.report.EntriesDropped,
		"duration", r.report.Duration)

	c.send(ctx, r, EventDone, fmt.Sprintf("导入完成: %s", status), r.report)
}

// loadBatches 逐批写入；连接故障时中止剩余批次
func (c *Coordinator) loadBatches(ctx context.Context, r *run, rows []model.ScheduleRow) {
	batches := chunk(rows, c.opts.BatchSize)
	aborted := false

	for i, batch := range batches {
		result := model.BatchResult{Index: i + 1, Rows: len(batch)}
		if aborted {
			result.Status = "aborted"
			r.report.EntriesFailed += len(batch)
			r.report.Batches = append(r.report.Batches, result)
			continue
		}

		start := time.Now()
		n, attempts, err := c.insertWithRetry(ctx, r.sink, batch)
		result.Attempts = attempts
		result.Duration = time.Since(start)

		if err != nil {
			result.Status = "failed"
			result.Error = err.Error()
			r.report.EntriesFailed += len(batch)
			r.report.Errors = append(r.report.Errors, fmt.Sprintf("batch %d: %v", i+1, err))
			r.logger.Error("schedule batch failed", "batch", i+1, "rows", len(batch), "attempts", attempts, "error", err)

			if c.unreachable(ctx, r.sink, err) {
				aborted = true
				c.send(ctx, r, EventWarning, fmt.Sprintf("批次 %d 失败且存储不可达，中止剩余批次", i+1), result)
			} else {
				c.send(ctx, r, EventWarning, fmt.Sprintf("批次 %d 写入失败: %v", i+1, err), result)
			}
		} else {
			result.Status = "inserted"
			r.report.EntriesInserted += n
			c.send(ctx, r, EventBatchDone, fmt.Sprintf("批次 %d/%d 已写入 %d 条", i+1, len(batches), n), result)
		}
		r.report.Batches = append(r.report.Batches, result)
	}
}

// insertWithRetry 单批写入：独立超时 + 指数退避重试
func (c *Coordinator) insertWithRetry(ctx context.Context, sink Sink, batch []model.ScheduleRow) (int, int, error) {
	var (
		inserted int
		attempts int
	)

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.opts.InitialBackoff
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(c.opts.MaxRetries)), ctx)

	op := func() error {
		attempts++
		batchCtx, cancel := context.WithTimeout(ctx, c.opts.BatchTimeout)
		defer cancel()

		n, err := sink.InsertSchedules(batchCtx, batch)
		if err != nil {
			if store.IsPermanent(err) || store.IsUnreachable(err) || ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		inserted = n
		return nil
	}

	if err := backoff.Retry(op, policy); err != nil {
		return 0, attempts, err
	}
	return inserted, attempts, nil
}

// unreachable 判断是否应中止：错误本身是连接故障、上下文已取消或 Ping 失败
func (c *Coordinator) unreachable(ctx context.Context, sink Sink, err error) bool {
	if store.IsUnreachable(err) || ctx.Err() != nil {
		return true
	}
	if store.IsPermanent(err) {
		return false
	}
	pingCtx, cancel := context.WithTimeout(ctx, c.opts.PingTimeout)
	defer cancel()
	return sink.Ping(pingCtx) != nil
}

func (c *Coordinator) fail(ctx context.Context, r *run, err error) {
	r.report.Status = model.RunFailed
	r.report.Errors = append(r.report.Errors, err.Error())
	r.report.Duration = time.Since(r.report.StartedAt)
	r.logger.Error("import failed", "error", err)
	c.send(ctx, r, EventError, err.Error(), r.report)
}

// send 发送进度事件；上下文结束后只做非阻塞发送
func (c *Coordinator) send(ctx context.Context, r *run, typ, msg string, data interface{}) {
	evt := ProgressEvent{
		RunID:     r.report.RunID,
		Type:      typ,
		Message:   msg,
		Data:      data,
		Timestamp: time.Now(),
	}
	if ctx.Err() != nil {
		select {
		case r.progress <- evt:
		default:
		}
		return
	}
	select {
	case r.progress <- evt:
	case <-ctx.Done():
	}
}

// rekey 将日程的学籍番号替换为库内 id，找不到的计入丢弃数
func rekey(entries []model.ScheduleEntry, ids map[string]int64) ([]model.ScheduleRow, int) {
	rows := make([]model.ScheduleRow, 0, len(entries))
	dropped := 0
	for _, e := range entries {
		id, ok := ids[e.StudentNumber]
		if !ok {
			dropped++
			continue
		}
		rows = append(rows, model.ScheduleRow{
			StudentID:    id,
			ScheduleDate: e.ScheduleDate,
			Symbol:       e.Symbol,
			Description:  e.Description,
		})
	}
	return rows, dropped
}

func chunk(rows []model.ScheduleRow, size int) [][]model.ScheduleRow {
	var out [][]model.ScheduleRow
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		out = append(out, rows[start:end])
	}
	return out
}
