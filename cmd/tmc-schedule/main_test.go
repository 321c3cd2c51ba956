package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tmc-schedule/internal/model"
)

// TestExitCode 测试运行状态到退出码的映射
func TestExitCode(t *testing.T) {
	tests := []struct {
		report *model.RunReport
		want   int
	}{
		{&model.RunReport{Status: model.RunSucceeded}, exitOK},
		{&model.RunReport{Status: model.RunPartial}, exitPartial},
		{&model.RunReport{Status: model.RunFailed}, exitFailed},
		{nil, exitFailed},
	}
	for _, tt := range tests {
		if got := exitCode(tt.report); got != tt.want {
			t.Errorf("exitCode(%+v) = %d, want %d", tt.report, got, tt.want)
		}
	}
}

// TestDispatchUnknownCommand 测试未知命令
func TestDispatchUnknownCommand(t *testing.T) {
	if got := dispatch(context.Background(), "frobnicate", nil); got != exitFailed {
		t.Errorf("dispatch() = %d, want %d", got, exitFailed)
	}
}

// TestMissingFlags 测试必填参数缺失
func TestMissingFlags(t *testing.T) {
	for _, name := range []string{"import", "import-sheets", "import-unified", "dump"} {
		if got := dispatch(context.Background(), name, nil); got != exitFailed {
			t.Errorf("%s without flags = %d, want %d", name, got, exitFailed)
		}
	}
	if got := dispatch(context.Background(), "clear", nil); got != exitFailed {
		t.Errorf("clear without -yes = %d, want %d", got, exitFailed)
	}
}

// TestPrintReport 测试摘要只列出未成功的批次
func TestPrintReport(t *testing.T) {
	var buf bytes.Buffer
	printReport(&buf, &model.RunReport{
		Source:          "schedule.csv",
		Status:          model.RunPartial,
		Students:        2,
		EntriesBuilt:    10,
		EntriesInserted: 5,
		EntriesFailed:   5,
		Batches: []model.BatchResult{
			{Index: 0, Rows: 5, Attempts: 1, Status: "inserted"},
			{Index: 1, Rows: 5, Attempts: 3, Status: "failed", Error: "boom"},
		},
	})
	out := buf.String()
	if !strings.Contains(out, "导入结果: partial") {
		t.Errorf("missing status line:\n%s", out)
	}
	if strings.Contains(out, "#0 ") {
		t.Errorf("inserted batch should not be listed:\n%s", out)
	}
	if !strings.Contains(out, "#1 failed rows=5 attempts=3 boom") {
		t.Errorf("failed batch not listed:\n%s", out)
	}
}

// TestTemplateAndDump 测试模板输出可被 dump 解析
func TestTemplateAndDump(t *testing.T) {
	dir := t.TempDir()
	tplPath := filepath.Join(dir, "template.csv")
	outPath := filepath.Join(dir, "out.json")
	cfgPath := filepath.Join(dir, "config.toml")

	if got := dispatch(context.Background(), "template", []string{"-out", tplPath}); got != exitOK {
		t.Fatalf("template = %d", got)
	}
	args := []string{"-config", cfgPath, "-file", tplPath, "-unified", "-out", outPath}
	if got := dispatch(context.Background(), "dump", args); got != exitOK {
		t.Fatalf("dump = %d", got)
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read dump: %v", err)
	}
	if !bytes.Contains(data, []byte(`"students"`)) {
		t.Errorf("dump output has no students key: %s", data)
	}
}

// TestImportUnifiedDryRun 测试 dry-run 不需要数据库
func TestImportUnifiedDryRun(t *testing.T) {
	dir := t.TempDir()
	tplPath := filepath.Join(dir, "template.csv")
	cfgPath := filepath.Join(dir, "config.toml")

	if got := dispatch(context.Background(), "template", []string{"-out", tplPath}); got != exitOK {
		t.Fatalf("template = %d", got)
	}
	args := []string{"-config", cfgPath, "-file", tplPath, "-dry-run"}
	if got := dispatch(context.Background(), "import-unified", args); got != exitOK {
		t.Errorf("import-unified -dry-run = %d, want %d", got, exitOK)
	}
}

// TestInitWritesLoadableConfig 测试生成的配置可被加载且不会被意外覆盖
func TestInitWritesLoadableConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	if got := dispatch(context.Background(), "init", []string{"-out", path, "-template", "compact"}); got != exitOK {
		t.Fatalf("init = %d", got)
	}
	if got := dispatch(context.Background(), "init", []string{"-out", path}); got != exitFailed {
		t.Errorf("init over existing file = %d, want %d", got, exitFailed)
	}

	a, err := loadApp(path)
	if err != nil {
		t.Fatalf("loadApp() error = %v", err)
	}
	if a.cfg.Template.Name != "compact" {
		t.Errorf("template = %q, want compact", a.cfg.Template.Name)
	}
	if !a.info.FileFound || !a.info.PortSpecified {
		t.Errorf("info = %+v, want file found with port", a.info)
	}
}
