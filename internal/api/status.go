package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// StatusResponse 系统状态响应
type StatusResponse struct {
	Initialized    bool   `json:"initialized"` // 是否已有数据
	Driver         string `json:"driver"`
	Template       string `json:"template"`
	Students       int    `json:"students"`
	Entries        int    `json:"entries"`
	LastImportTime string `json:"lastImportTime"`
	LastStatus     string `json:"lastStatus"`
}

// GetStatus 获取系统状态
// GET /api/status
func (h *Handler) GetStatus(c *gin.Context) {
	ctx := c.Request.Context()
	resp := StatusResponse{
		Driver:   h.store.Driver(),
		Template: h.cfg.Template.Name,
	}

	stats, err := h.store.Stats(ctx)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	resp.Students = stats.Students
	resp.Entries = stats.Entries
	resp.Initialized = stats.Students > 0

	if logs, err := h.store.ListImportLogs(ctx, 1); err == nil && len(logs) > 0 {
		resp.LastImportTime = logs[0].StartedAt.Format(time.RFC3339)
		resp.LastStatus = logs[0].Status
	}

	c.JSON(http.StatusOK, resp)
}

// GetStats 数据统计
// GET /api/stats
func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.store.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// DeleteAll 删除全部学生与日程
// DELETE /api/data
func (h *Handler) DeleteAll(c *gin.Context) {
	if err := h.store.ClearAll(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.logger.Info("all students and schedules deleted", "remote", c.ClientIP())
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}
