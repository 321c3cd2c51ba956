package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"tmc-schedule/internal/config"
	"tmc-schedule/internal/importer"
	"tmc-schedule/internal/model"
)

var errNoUpload = errors.New("未找到上传文件")

// saveUpload 将上传文件保存到临时目录，返回路径与清理函数
func (h *Handler) saveUpload(c *gin.Context) (string, string, func(), error) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return "", "", nil, errNoUpload
		}
		return "", "", nil, fmt.Errorf("无效的表单数据: %w", err)
	}

	name := filepath.Base(fileHeader.Filename)
	tempPath := filepath.Join(h.uploadDir, fmt.Sprintf("tmc_import_%s%s", uuid.NewString(), filepath.Ext(name)))
	if err := c.SaveUploadedFile(fileHeader, tempPath); err != nil {
		return "", "", nil, fmt.Errorf("保存文件失败: %w", err)
	}
	return tempPath, name, func() { _ = os.Remove(tempPath) }, nil
}

// namedSource 用上传时的原始文件名作为来源名
type namedSource struct {
	importer.Source
	name string
}

func (s namedSource) Name() string { return s.name }

// Import 导入日程表 (SSE 流式响应)
// POST /api/import  form: file, template, sheet, dryRun
func (h *Handler) Import(c *gin.Context) {
	tpl := h.cfg.Template
	if name := strings.TrimSpace(c.PostForm("template")); name != "" {
		preset, ok := config.LookupPreset(name)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("未知模板: %s", name)})
			return
		}
		tpl = preset
	}

	path, name, cleanup, err := h.saveUpload(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer cleanup()

	sheet := c.DefaultPostForm("sheet", h.cfg.Input.Sheet)
	dryRun, _ := strconv.ParseBool(c.DefaultPostForm("dryRun", "false"))

	src := namedSource{
		Source: importer.FileSource{
			Path:     path,
			Sheet:    sheet,
			Encoding: h.cfg.Input.Encoding,
			Template: tpl,
			Symbols:  h.symbols,
			Logger:   h.logger,
		},
		name: name,
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "不支持流式响应"})
		return
	}

	// 设置 SSE 响应头
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	// 学生写入后日程必须写完，客户端断开不取消导入
	ctx := context.WithoutCancel(c.Request.Context())
	progressChan := h.coordinator.Import(ctx, src, importer.ImportOptions{DryRun: dryRun})
	for event := range progressChan {
		eventData, err := json.Marshal(event)
		if err != nil {
			continue
		}
		// SSE 格式: data: {json}\n\n
		fmt.Fprintf(c.Writer, "data: %s\n\n", eventData)
		flusher.Flush()
	}
}

// ImportUnified 导入统合 CSV，完成后返回报告
// POST /api/import/unified  form: file, dryRun
func (h *Handler) ImportUnified(c *gin.Context) {
	path, name, cleanup, err := h.saveUpload(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer cleanup()

	dryRun, _ := strconv.ParseBool(c.DefaultPostForm("dryRun", "false"))
	src := namedSource{
		Source: importer.UnifiedSource{Path: path, Symbols: h.symbols},
		name:   name,
	}

	report, err := h.coordinator.Run(context.WithoutCancel(c.Request.Context()), src, importer.ImportOptions{DryRun: dryRun}, nil)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "report": report})
		return
	}
	c.JSON(statusForReport(report), report)
}

// statusForReport 部分成功返回 207
func statusForReport(report *model.RunReport) int {
	switch report.Status {
	case model.RunPartial:
		return http.StatusMultiStatus
	case model.RunFailed:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusOK
	}
}

// ListImports 最近的导入日志
// GET /api/imports?limit=
func (h *Handler) ListImports(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	logs, err := h.store.ListImportLogs(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, logs)
}
