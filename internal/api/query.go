package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"tmc-schedule/internal/store"
)

// ListStudents 学生列表
// GET /api/students?hospital=
func (h *Handler) ListStudents(c *gin.Context) {
	students, err := h.store.ListStudents(c.Request.Context(), c.Query("hospital"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, students)
}

// GetStudent 单个学生及其日程
// GET /api/students/:number
func (h *Handler) GetStudent(c *gin.Context) {
	ctx := c.Request.Context()
	number := c.Param("number")

	student, err := h.store.GetStudent(ctx, number)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "学生不存在"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	schedule, err := h.store.ListSchedules(ctx, store.ScheduleFilter{StudentNumber: number})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"student":  student,
		"schedule": schedule,
	})
}

// ListSchedules 日程查询
// GET /api/schedules?date=&student_number=&symbol=&limit=
func (h *Handler) ListSchedules(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit 参数错误"})
		return
	}

	rows, err := h.store.ListSchedules(c.Request.Context(), store.ScheduleFilter{
		Date:          c.Query("date"),
		StudentNumber: c.Query("student_number"),
		Symbol:        c.Query("symbol"),
		Limit:         limit,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rows)
}
