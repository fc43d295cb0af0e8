package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"

	"github.com/CanFlyhang/NovelBot/config"
)

// ConfigHandler 运行参数查询与修改
type ConfigHandler struct {
	settings *config.Settings
	now      func() time.Time
}

func NewConfigHandler(settings *config.Settings) *ConfigHandler {
	return &ConfigHandler{settings: settings, now: time.Now}
}

func (h *ConfigHandler) Get(c *gin.Context) {
	c.JSON(http.StatusOK, h.settings.Snapshot())
}

// Update 局部更新，未提供的字段保持不变
func (h *ConfigHandler) Update(c *gin.Context) {
	var update config.SettingsUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snap, err := h.settings.Apply(update)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	klog.V(6).Infof("运行参数已更新: dailyTarget=%d, chapters=%d, rpm=%d, concurrency=%d",
		snap.DailyTargetNovels, snap.DefaultChaptersPerNovel, snap.MaxRequestsPerMinute, snap.MaxConcurrentRequests)

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"updated_at": h.now().UTC().Format(time.RFC3339),
		"config":     snap,
	})
}
