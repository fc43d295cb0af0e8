package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"

	"github.com/CanFlyhang/NovelBot/internal/service"
	"github.com/CanFlyhang/NovelBot/internal/service/orchestrator"
)

// ChapterGenerator 手动触发生成下一章
type ChapterGenerator interface {
	GenerateNextChapter(ctx context.Context, novelID uint) (bool, error)
}

type NovelHandler struct {
	service   *service.NovelService
	generator ChapterGenerator
}

func NewNovelHandler(service *service.NovelService, generator ChapterGenerator) *NovelHandler {
	return &NovelHandler{
		service:   service,
		generator: generator,
	}
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(id), true
}

// respondServiceError 将服务层错误映射为 HTTP 状态码
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNovelNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "小说不存在"})
	case errors.Is(err, service.ErrChapterNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "章节不存在"})
	case errors.Is(err, service.ErrInvalidDate):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (h *NovelHandler) Create(c *gin.Context) {
	var req service.CreateNovelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	novel, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, novel)
}

func (h *NovelHandler) List(c *gin.Context) {
	novels, err := h.service.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, novels)
}

func (h *NovelHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	novel, err := h.service.Get(id)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, novel)
}

func (h *NovelHandler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.service.Delete(id); err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ListChapters 已生成的章节
func (h *NovelHandler) ListChapters(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	chapters, err := h.service.ListChapters(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, chapters)
}

func (h *NovelHandler) LatestChapter(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	chapter, err := h.service.LatestChapter(id)
	if err != nil {
		if errors.Is(err, service.ErrChapterNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "该小说暂无已生成章节"})
			return
		}
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, chapter)
}

func (h *NovelHandler) GetChapter(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	chapter, err := h.service.GetChapter(id)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, chapter)
}

func (h *NovelHandler) AddCharacter(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req service.CreateCharacterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	character, err := h.service.AddCharacter(id, req)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, character)
}

func (h *NovelHandler) AddPlotNode(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req service.CreatePlotNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	node, err := h.service.AddPlotNode(id, req)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, node)
}

func (h *NovelHandler) ListFacts(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	facts, err := h.service.ListFacts(id)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, facts)
}

// Generate 手动为小说生成下一章，同步等待生成结束
func (h *NovelHandler) Generate(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	generated, err := h.generator.GenerateNextChapter(c.Request.Context(), id)
	if generated {
		c.JSON(http.StatusOK, gin.H{"success": true})
		return
	}

	klog.V(6).Infof("手动生成章节未完成: novelID=%d, err=%v", id, err)
	switch {
	case errors.Is(err, orchestrator.ErrNovelNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "小说不存在"})
	case errors.Is(err, orchestrator.ErrNovelBusy):
		c.JSON(http.StatusConflict, gin.H{"error": "该小说正在生成中"})
	default:
		detail := "无法生成新的章节"
		if err != nil {
			detail = fmt.Sprintf("无法生成新的章节：%v", err)
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": detail})
	}
}

// Export 导出为 Markdown 文件
func (h *NovelHandler) Export(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	file, err := h.service.ExportMarkdown(id)
	if err != nil {
		if errors.Is(err, service.ErrNothingToExport) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "该小说尚无可导出的章节"})
			return
		}
		respondServiceError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`, file.Filename, file.EncodedFilename))
	c.Data(http.StatusOK, "text/markdown; charset=utf-8", file.Data)
}
