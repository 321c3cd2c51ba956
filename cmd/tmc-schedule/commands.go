package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"tmc-schedule/internal/api"
	"tmc-schedule/internal/config"
	"tmc-schedule/internal/exporter"
	"tmc-schedule/internal/importer"
	"tmc-schedule/internal/model"
	"tmc-schedule/internal/parser"
	"tmc-schedule/internal/server"
	"tmc-schedule/internal/util"
)

var errMissingFlag = errors.New("missing required flag")

func runImport(ctx context.Context, args []string) int {
	fs, configPath := newFlagSet("import")
	file := fs.String("file", "", "日程表文件 (.csv / .xlsx)")
	sheet := fs.String("sheet", "", "xlsx 的 Sheet 名（默认取配置或第一个 Sheet）")
	tplName := fs.String("template", "", "版式预设名（默认取配置）")
	encoding := fs.String("encoding", "", "CSV 编码 utf-8 / shift_jis（默认取配置）")
	dryRun := fs.Bool("dry-run", false, "只解析并校验，不写数据库")
	if err := fs.Parse(args); err != nil {
		return fail(err)
	}
	if *file == "" {
		return fail(fmt.Errorf("%w: -file", errMissingFlag))
	}

	a, err := loadApp(*configPath)
	if err != nil {
		return fail(err)
	}
	tpl, err := a.template(*tplName)
	if err != nil {
		return fail(err)
	}
	if *sheet == "" {
		*sheet = a.cfg.Input.Sheet
	}
	if *encoding == "" {
		*encoding = a.cfg.Input.Encoding
	}

	return a.runImport(ctx, importer.FileSource{
		Path:     *file,
		Sheet:    *sheet,
		Encoding: *encoding,
		Template: tpl,
		Symbols:  a.symbols(),
		Logger:   a.logger,
	}, *dryRun)
}

func runImportSheets(ctx context.Context, args []string) int {
	fs, configPath := newFlagSet("import-sheets")
	spreadsheet := fs.String("spreadsheet", "", "Spreadsheet ID")
	readRange := fs.String("range", "", "读取区域，如 日程表!A1:BZ200")
	tplName := fs.String("template", "", "版式预设名（默认取配置）")
	dryRun := fs.Bool("dry-run", false, "只解析并校验，不写数据库")
	if err := fs.Parse(args); err != nil {
		return fail(err)
	}
	if *spreadsheet == "" || *readRange == "" {
		return fail(fmt.Errorf("%w: -spreadsheet and -range", errMissingFlag))
	}

	a, err := loadApp(*configPath)
	if err != nil {
		return fail(err)
	}
	tpl, err := a.template(*tplName)
	if err != nil {
		return fail(err)
	}
	reader, err := parser.NewSheetsReader(ctx, a.cfg.Google.CredentialsFile)
	if err != nil {
		return fail(err)
	}

	return a.runImport(ctx, importer.SheetsSource{
		Reader:        reader,
		SpreadsheetID: *spreadsheet,
		Range:         *readRange,
		Template:      tpl,
		Symbols:       a.symbols(),
		Logger:        a.logger,
	}, *dryRun)
}

func runImportUnified(ctx context.Context, args []string) int {
	fs, configPath := newFlagSet("import-unified")
	file := fs.String("file", "", "统合 CSV 文件")
	dryRun := fs.Bool("dry-run", false, "只解析并校验，不写数据库")
	if err := fs.Parse(args); err != nil {
		return fail(err)
	}
	if *file == "" {
		return fail(fmt.Errorf("%w: -file", errMissingFlag))
	}

	a, err := loadApp(*configPath)
	if err != nil {
		return fail(err)
	}
	return a.runImport(ctx, importer.UnifiedSource{Path: *file, Symbols: a.symbols()}, *dryRun)
}

// runImport 执行一次导入，按结果返回退出码
// dry-run 不打开数据库，由协调器写入内存存储
func (a *app) runImport(ctx context.Context, src importer.Source, dryRun bool) int {
	var coord *importer.Coordinator
	if dryRun {
		coord = importer.NewCoordinator(nil, nil, importer.OptionsFromConfig(a.cfg.Loader), a.logger)
	} else {
		st, err := a.openStore(ctx)
		if err != nil {
			return fail(err)
		}
		defer st.Close()

		var cleanup func()
		coord, cleanup = a.newCoordinator(ctx, st)
		defer cleanup()
	}

	report, err := coord.Run(ctx, src, importer.ImportOptions{DryRun: dryRun}, func(evt importer.ProgressEvent) {
		switch evt.Type {
		case importer.EventWarning:
			fmt.Fprintf(os.Stderr, "警告: %s\n", evt.Message)
		case importer.EventInfo, importer.EventBatchDone:
			a.logger.Debug(evt.Message, "run_id", evt.RunID, "type", evt.Type)
		}
	})
	if report != nil {
		printReport(os.Stdout, report)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		return exitFailed
	}
	return exitCode(report)
}

// printReport 输出导入结果摘要
func printReport(w io.Writer, r *model.RunReport) {
	bw := bufio.NewWriter(w)
	defer bw.Flush()

	mode := ""
	if r.DryRun {
		mode = " (dry-run)"
	}
	fmt.Fprintf(bw, "导入结果: %s%s\n", r.Status, mode)
	fmt.Fprintf(bw, "  来源:     %s\n", r.Source)
	fmt.Fprintf(bw, "  运行 ID:  %s\n", r.RunID)
	fmt.Fprintf(bw, "  学生:     %d (跳过 %d, 重复 %d)\n", r.Students, r.SkippedRows, r.DuplicateRows)
	fmt.Fprintf(bw, "  日程:     生成 %d / 写入 %d / 失败 %d / 丢弃 %d\n",
		r.EntriesBuilt, r.EntriesInserted, r.EntriesFailed, r.EntriesDropped)
	fmt.Fprintf(bw, "  批次:     %d\n", len(r.Batches))
	for _, b := range r.Batches {
		if b.Status == "inserted" {
			continue
		}
		fmt.Fprintf(bw, "    #%d %s rows=%d attempts=%d %s\n", b.Index, b.Status, b.Rows, b.Attempts, b.Error)
	}
	for _, e := range r.Errors {
		fmt.Fprintf(bw, "  错误:     %s\n", e)
	}
	fmt.Fprintf(bw, "  耗时:     %s\n", r.Duration.Round(time.Millisecond))
}

// runDump 只解析文件并输出 JSON 文档，不需要数据库
func runDump(ctx context.Context, args []string) int {
	fs, configPath := newFlagSet("dump")
	file := fs.String("file", "", "日程表文件 (.csv / .xlsx)")
	out := fs.String("out", "schedule-data.json", "输出路径，- 表示标准输出")
	sheet := fs.String("sheet", "", "xlsx 的 Sheet 名")
	tplName := fs.String("template", "", "版式预设名（默认取配置）")
	unified := fs.Bool("unified", false, "输入为统合 CSV")
	if err := fs.Parse(args); err != nil {
		return fail(err)
	}
	if *file == "" {
		return fail(fmt.Errorf("%w: -file", errMissingFlag))
	}

	a, err := loadApp(*configPath)
	if err != nil {
		return fail(err)
	}
	tpl, err := a.template(*tplName)
	if err != nil {
		return fail(err)
	}
	if *sheet == "" {
		*sheet = a.cfg.Input.Sheet
	}

	var src importer.Source = importer.FileSource{
		Path:     *file,
		Sheet:    *sheet,
		Encoding: a.cfg.Input.Encoding,
		Template: tpl,
		Symbols:  a.symbols(),
		Logger:   a.logger,
	}
	if *unified {
		src = importer.UnifiedSource{Path: *file, Symbols: a.symbols()}
	}

	ds, stats, err := src.Read(ctx)
	if err != nil {
		return fail(err)
	}
	err = writeOutput(*out, func(w io.Writer) error {
		return exporter.WriteJSON(w, ds, a.symbols(), time.Now())
	})
	if err != nil {
		return fail(err)
	}
	fmt.Fprintf(os.Stderr, "学生 %d 名, 日程 %d 条, 日期 %d 个 (跳过行 %d, 重复 %d, 跳过单元格 %d) -> %s\n",
		stats.Students, stats.Entries, len(ds.Dates), stats.SkippedRows, stats.DuplicateRows, stats.SkippedCells, *out)
	return exitOK
}

func runExport(ctx context.Context, args []string) int {
	fs, configPath := newFlagSet("export")
	format := fs.String("format", exporter.FormatJSON, "json / csv / legacy / xlsx")
	out := fs.String("out", "", "输出路径（默认按格式生成文件名），- 表示标准输出")
	if err := fs.Parse(args); err != nil {
		return fail(err)
	}
	f, err := exporter.ParseFormat(*format)
	if err != nil {
		return fail(err)
	}

	a, err := loadApp(*configPath)
	if err != nil {
		return fail(err)
	}
	st, err := a.openStore(ctx)
	if err != nil {
		return fail(err)
	}
	defer st.Close()

	path := *out
	if path == "" {
		path = exporter.FileName(f, time.Now())
	}
	exp := exporter.NewExporter(st, a.symbols())
	if err := writeOutput(path, func(w io.Writer) error { return exp.Export(ctx, f, w) }); err != nil {
		return fail(err)
	}
	fmt.Fprintf(os.Stderr, "导出完成 -> %s\n", path)
	return exitOK
}

func runTemplate(_ context.Context, args []string) int {
	fs, _ := newFlagSet("template")
	out := fs.String("out", "-", "输出路径，- 表示标准输出")
	if err := fs.Parse(args); err != nil {
		return fail(err)
	}
	if err := writeOutput(*out, exporter.WriteTemplateCSV); err != nil {
		return fail(err)
	}
	return exitOK
}

func runClear(ctx context.Context, args []string) int {
	fs, configPath := newFlagSet("clear")
	yes := fs.Bool("yes", false, "确认删除全部数据")
	if err := fs.Parse(args); err != nil {
		return fail(err)
	}
	if !*yes {
		return fail(errors.New("refusing to delete all data without -yes"))
	}

	a, err := loadApp(*configPath)
	if err != nil {
		return fail(err)
	}
	st, err := a.openStore(ctx)
	if err != nil {
		return fail(err)
	}
	defer st.Close()

	if err := st.ClearAll(ctx); err != nil {
		return fail(err)
	}
	fmt.Fprintln(os.Stderr, "已删除全部学生与日程")
	return exitOK
}

func runStats(ctx context.Context, args []string) int {
	fs, configPath := newFlagSet("stats")
	if err := fs.Parse(args); err != nil {
		return fail(err)
	}

	a, err := loadApp(*configPath)
	if err != nil {
		return fail(err)
	}
	st, err := a.openStore(ctx)
	if err != nil {
		return fail(err)
	}
	defer st.Close()

	stats, err := st.Stats(ctx)
	if err != nil {
		return fail(err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(stats); err != nil {
		return fail(err)
	}
	return exitOK
}

func runServe(ctx context.Context, args []string) int {
	fs, configPath := newFlagSet("serve")
	port := fs.Int("port", 0, "HTTP 端口（默认取配置）")
	devMode := fs.Bool("dev", false, "开发模式")
	open := fs.Bool("open", false, "启动后打开浏览器")
	if err := fs.Parse(args); err != nil {
		return fail(err)
	}

	a, err := loadApp(*configPath)
	if err != nil {
		return fail(err)
	}
	switch {
	case *port > 0:
		a.cfg.Server.Port = *port
	case !a.info.PortSpecified:
		// 配置未指定端口时，默认端口被占用则顺延
		free, err := util.FindAvailablePort(a.cfg.Server.Port, 20)
		if err != nil {
			return fail(err)
		}
		if free != a.cfg.Server.Port {
			a.logger.Warn("default port busy, using next free port", "port", a.cfg.Server.Port, "using", free)
		}
		a.cfg.Server.Port = free
	}
	if *devMode {
		a.cfg.Server.DevMode = true
	}

	st, err := a.openStore(ctx)
	if err != nil {
		return fail(err)
	}
	defer st.Close()

	coord, cleanup := a.newCoordinator(ctx, st)
	defer cleanup()

	handler := api.NewHandler(st, coord, a.cfg, a.logger)
	srv := server.NewServer(a.cfg, handler, a.logger)

	fmt.Println("========================================")
	fmt.Println("  tmc-schedule 实习日程服务")
	fmt.Println("========================================")
	fmt.Printf("  地址:     http://localhost:%d\n", a.cfg.Server.Port)
	fmt.Printf("  数据库:   %s\n", st.Driver())
	fmt.Printf("  模板:     %s\n", a.cfg.Template.Name)
	fmt.Println("========================================")

	if *open {
		url := fmt.Sprintf("http://localhost:%d/api/status", a.cfg.Server.Port)
		if err := util.OpenBrowser(url); err != nil {
			a.logger.Warn("open browser failed", "url", url, "error", err)
		}
	}

	if err := srv.Run(ctx, ":"+strconv.Itoa(a.cfg.Server.Port)); err != nil {
		return fail(err)
	}
	return exitOK
}

// runInit 写出默认配置，已存在时需 -force
func runInit(_ context.Context, args []string) int {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	out := fs.String("out", config.DefaultConfigPath(), "配置文件路径")
	tplName := fs.String("template", config.DefaultTemplate, "版式预设名")
	force := fs.Bool("force", false, "覆盖已有文件")
	if err := fs.Parse(args); err != nil {
		return fail(err)
	}

	cfg := config.DefaultConfig()
	tpl, ok := config.LookupPreset(*tplName)
	if !ok {
		return fail(fmt.Errorf("%w: unknown template %q (available: %v)", config.ErrInvalidConfig, *tplName, config.PresetNames()))
	}
	cfg.Template = tpl

	if _, err := os.Stat(*out); err == nil && !*force {
		return fail(fmt.Errorf("%s already exists, use -force to overwrite", *out))
	}
	if err := config.SaveConfig(cfg, *out); err != nil {
		return fail(fmt.Errorf("save config: %w", err))
	}
	fmt.Fprintf(os.Stderr, "配置已写入 %s\n", *out)
	return exitOK
}

// writeOutput 写入文件；path 为 - 时写标准输出
func writeOutput(path string, write func(io.Writer) error) error {
	if path == "-" {
		return write(os.Stdout)
	}
	if err := util.WriteFileAtomic(path, write); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
