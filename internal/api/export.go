package api

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tmc-schedule/internal/exporter"
)

// Export 导出全部数据
// GET /api/export/:format  (json / csv / legacy / xlsx)
func (h *Handler) Export(c *gin.Context) {
	format, err := exporter.ParseFormat(c.Param("format"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// 先写入缓冲，失败时仍可返回 JSON 错误
	var buf bytes.Buffer
	if err := h.exporter.Export(c.Request.Context(), format, &buf); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	filename := exporter.FileName(format, time.Now())
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, exporter.ContentType(format), buf.Bytes())
}

// TemplateCSV 下载统合 CSV 模板
// GET /api/template.csv
func (h *Handler) TemplateCSV(c *gin.Context) {
	var buf bytes.Buffer
	if err := exporter.WriteTemplateCSV(&buf); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="schedule-template.csv"`)
	c.Data(http.StatusOK, exporter.ContentType(exporter.FormatCSV), buf.Bytes())
}
