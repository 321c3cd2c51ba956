package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"tmc-schedule/internal/config"
	"tmc-schedule/internal/importer"
	"tmc-schedule/internal/lock"
	"tmc-schedule/internal/logging"
	"tmc-schedule/internal/model"
	"tmc-schedule/internal/store"
)

const (
	exitOK      = 0
	exitFailed  = 1
	exitPartial = 2
)

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, args []string) int
}

var commands = []command{
	{"import", "导入日程表 CSV / XLSX 并全量替换数据库", runImport},
	{"import-sheets", "从 Google Sheets 区域导入", runImportSheets},
	{"import-unified", "导入统合 CSV（一行一条日程）", runImportUnified},
	{"dump", "解析日程表并输出 JSON（不写数据库）", runDump},
	{"export", "导出数据库内容 (json / csv / legacy / xlsx)", runExport},
	{"template", "输出统合 CSV 模板", runTemplate},
	{"clear", "删除全部学生与日程", runClear},
	{"serve", "启动 HTTP API", runServe},
	{"init", "生成默认配置文件", runInit},
	{"stats", "输出数据统计", runStats},
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(exitFailed)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := dispatch(ctx, os.Args[1], os.Args[2:])
	stop()
	os.Exit(code)
}

func dispatch(ctx context.Context, name string, args []string) int {
	for _, c := range commands {
		if c.name == name {
			return c.run(ctx, args)
		}
	}
	if name != "-h" && name != "--help" && name != "help" {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", name)
	}
	usage()
	return exitFailed
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: tmc-schedule <command> [flags]")
	fmt.Fprintln(os.Stderr)
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-15s %s\n", c.name, c.summary)
	}
	fmt.Fprintln(os.Stderr, "\n使用 tmc-schedule <command> -h 查看各命令参数")
}

// app 各命令共用的依赖
type app struct {
	cfg    *config.AppConfig
	info   config.LoadConfigInfo
	logger *slog.Logger
}

// newFlagSet 创建子命令参数集，统一带 -config
func newFlagSet(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	configPath := fs.String("config", "", "配置文件路径（默认为可执行文件同目录下的 config.toml）")
	return fs, configPath
}

func loadApp(configPath string) (*app, error) {
	cfg, info, err := config.LoadConfigWithInfo(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if info.FileFound {
		logger.Debug("config loaded", "path", info.Path)
	} else {
		logger.Debug("config file not found, using defaults", "path", info.Path)
	}
	return &app{cfg: cfg, info: info, logger: logger}, nil
}

func (a *app) openStore(ctx context.Context) (*store.Store, error) {
	if _, err := config.EnsureDataDir(a.cfg); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	st, err := store.Open(ctx, a.cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}

// newCoordinator 创建导入协调器；返回的 cleanup 关闭锁客户端
func (a *app) newCoordinator(ctx context.Context, sink importer.Sink) (*importer.Coordinator, func()) {
	locker, closeLock := lock.New(ctx, a.cfg.Redis, a.logger)
	coord := importer.NewCoordinator(sink, locker, importer.OptionsFromConfig(a.cfg.Loader), a.logger)
	return coord, func() { _ = closeLock() }
}

func (a *app) symbols() model.SymbolTable {
	return model.DefaultSymbols().Merge(a.cfg.Symbols)
}

// template 返回 -template 指定的预设，未指定时使用配置中的模板
func (a *app) template(name string) (config.TemplateConfig, error) {
	if name == "" {
		return a.cfg.Template, nil
	}
	tpl, ok := config.LookupPreset(name)
	if !ok {
		return config.TemplateConfig{}, fmt.Errorf("%w: unknown template %q (available: %v)",
			config.ErrInvalidConfig, name, config.PresetNames())
	}
	return tpl, nil
}

func fail(err error) int {
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	fmt.Fprintf(os.Stderr, "错误: %v\n", err)
	return exitFailed
}

func exitCode(report *model.RunReport) int {
	if report == nil {
		return exitFailed
	}
	switch report.Status {
	case model.RunSucceeded:
		return exitOK
	case model.RunPartial:
		return exitPartial
	default:
		return exitFailed
	}
}
