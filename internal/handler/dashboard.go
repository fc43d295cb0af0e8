package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/CanFlyhang/NovelBot/internal/model"
	"github.com/CanFlyhang/NovelBot/internal/service"
)

// 日志查询条数范围
const (
	DefaultLogLimit = 200
	MaxLogLimit     = 500
)

type DashboardHandler struct {
	dashboard *service.DashboardService
	novels    *service.NovelService
	planner   *service.Planner
}

func NewDashboardHandler(dashboard *service.DashboardService, novels *service.NovelService, planner *service.Planner) *DashboardHandler {
	return &DashboardHandler{
		dashboard: dashboard,
		novels:    novels,
		planner:   planner,
	}
}

func (h *DashboardHandler) Summary(c *gin.Context) {
	summary, err := h.dashboard.Summary()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, summary)
}

// Logs 最新创作日志，limit 限制在 1..500
func (h *DashboardHandler) Logs(c *gin.Context) {
	limit := DefaultLogLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}
	limit = max(1, min(limit, MaxLogLimit))

	logs, err := h.novels.ListLogs(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, logs)
}

// Plan 为指定日期建立日计划并补齐小说
func (h *DashboardHandler) Plan(c *gin.Context) {
	date := c.Param("date")

	novels, err := h.planner.PlanNovelsForDay(c.Request.Context(), date)
	if err != nil {
		if errors.Is(err, service.ErrInvalidDate) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	plan, err := h.planner.EnsureDailyPlan(c.Request.Context(), date)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if novels == nil {
		novels = []model.Novel{}
	}
	c.JSON(http.StatusOK, gin.H{
		"plan":    plan,
		"created": novels,
	})
}
