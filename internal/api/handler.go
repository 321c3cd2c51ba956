package api

import (
	"log/slog"
	"os"

	"github.com/gin-gonic/gin"

	"tmc-schedule/internal/config"
	"tmc-schedule/internal/exporter"
	"tmc-schedule/internal/importer"
	"tmc-schedule/internal/model"
	"tmc-schedule/internal/store"
)

// Handler API 处理器
type Handler struct {
	store       *store.Store
	coordinator *importer.Coordinator
	exporter    *exporter.Exporter
	cfg         *config.AppConfig
	symbols     model.SymbolTable
	logger      *slog.Logger
	uploadDir   string
}

// NewHandler 创建 API 处理器
func NewHandler(st *store.Store, coordinator *importer.Coordinator, cfg *config.AppConfig, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	symbols := model.DefaultSymbols().Merge(cfg.Symbols)
	return &Handler{
		store:       st,
		coordinator: coordinator,
		exporter:    exporter.NewExporter(st, symbols),
		cfg:         cfg,
		symbols:     symbols,
		logger:      logger,
		uploadDir:   os.TempDir(),
	}
}

// RegisterRoutes 注册 API 路由
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	// 系统状态
	router.GET("/status", h.GetStatus)
	router.GET("/stats", h.GetStats)

	// 数据导入
	router.POST("/import", h.Import)
	router.POST("/import/unified", h.ImportUnified)
	router.GET("/imports", h.ListImports)

	// 查询
	router.GET("/students", h.ListStudents)
	router.GET("/students/:number", h.GetStudent)
	router.GET("/schedules", h.ListSchedules)

	// 导出
	router.GET("/export/:format", h.Export)
	router.GET("/template.csv", h.TemplateCSV)

	// 全部删除
	router.DELETE("/data", h.DeleteAll)
}
