package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"

	"github.com/CanFlyhang/NovelBot/internal/service/scheduler"
)

// SchedulerController 调度器控制接口
type SchedulerController interface {
	Start(ctx context.Context)
	Stop()
	Pause()
	Resume()
	State() scheduler.State
}

// ControlCommand 控制命令：start、pause、resume、stop，不区分大小写
type ControlCommand struct {
	Action string `json:"action" binding:"required"`
}

type ControlHandler struct {
	scheduler SchedulerController
	// baseCtx 调度循环的生命周期跟随进程而不是单个请求
	baseCtx context.Context
}

func NewControlHandler(baseCtx context.Context, scheduler SchedulerController) *ControlHandler {
	return &ControlHandler{
		scheduler: scheduler,
		baseCtx:   baseCtx,
	}
}

func (h *ControlHandler) Control(c *gin.Context) {
	var cmd ControlCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	switch strings.ToLower(strings.TrimSpace(cmd.Action)) {
	case "start":
		h.scheduler.Start(h.baseCtx)
	case "pause":
		h.scheduler.Pause()
	case "resume":
		h.scheduler.Resume()
	case "stop":
		h.scheduler.Stop()
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "未知控制命令"})
		return
	}
	klog.V(6).Infof("调度控制: action=%s", cmd.Action)

	c.JSON(http.StatusOK, h.scheduler.State())
}

func (h *ControlHandler) State(c *gin.Context) {
	c.JSON(http.StatusOK, h.scheduler.State())
}
