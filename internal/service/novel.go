package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"k8s.io/klog/v2"

	"github.com/CanFlyhang/NovelBot/internal/model"
	"github.com/CanFlyhang/NovelBot/internal/repository"
)

var (
	ErrNovelNotFound   = errors.New("novel not found")
	ErrChapterNotFound = errors.New("chapter not found")
	ErrInvalidDate     = errors.New("invalid date, expected YYYY-MM-DD")
)

// NovelListLimit 列表接口返回的最大小说数
const NovelListLimit = 100

// CreateNovelRequest 创建小说请求
type CreateNovelRequest struct {
	Title              string `json:"title" binding:"required,min=1,max=255"`
	Genre              string `json:"genre" binding:"required,min=1,max=64"`
	Description        string `json:"description"`
	TargetChapterCount int    `json:"target_chapter_count" binding:"required,min=1,max=1000"`
	// PlannedDate 为空时取当天
	PlannedDate string `json:"planned_date"`
}

// CreateCharacterRequest 添加人物请求
type CreateCharacterRequest struct {
	Name        string         `json:"name" binding:"required,min=1,max=128"`
	Role        string         `json:"role" binding:"max=64"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata"`
}

// CreatePlotNodeRequest 添加情节节点请求
type CreatePlotNodeRequest struct {
	Index     int            `json:"index" binding:"required,min=1"`
	Summary   string         `json:"summary" binding:"required"`
	NodeType  string         `json:"node_type" binding:"max=64"`
	ChapterID *uint          `json:"chapter_id"`
	Metadata  map[string]any `json:"metadata"`
}

type NovelService struct {
	store *repository.Store
	now   func() time.Time
}

func NewNovelService(store *repository.Store) *NovelService {
	return &NovelService{store: store, now: time.Now}
}

// Create 创建小说并预置全部章节占位
func (s *NovelService) Create(ctx context.Context, req CreateNovelRequest) (*model.Novel, error) {
	plannedDate := req.PlannedDate
	if plannedDate == "" {
		plannedDate = model.FormatDate(s.now())
	} else if _, err := time.Parse(model.DateLayout, plannedDate); err != nil {
		return nil, ErrInvalidDate
	}

	novel := &model.Novel{
		Title:              req.Title,
		Genre:              req.Genre,
		Description:        req.Description,
		TargetChapterCount: req.TargetChapterCount,
		Status:             model.NovelStatusPlanned,
		PlannedDate:        plannedDate,
	}
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		return createWithChapters(tx, novel)
	})
	if err != nil {
		return nil, fmt.Errorf("create novel: %w", err)
	}

	klog.V(6).Infof("创建小说: novelID=%d, title=%s, chapters=%d", novel.ID, novel.Title, novel.TargetChapterCount)
	return novel, nil
}

// createWithChapters 写入小说并生成“第N章”占位章节
func createWithChapters(tx *repository.Store, novel *model.Novel) error {
	if err := tx.Novels.Create(novel); err != nil {
		return err
	}
	chapters := make([]model.Chapter, 0, novel.TargetChapterCount)
	for idx := 1; idx <= novel.TargetChapterCount; idx++ {
		chapters = append(chapters, model.Chapter{
			NovelID: novel.ID,
			Index:   idx,
			Title:   fmt.Sprintf("第%d章", idx),
			Status:  model.ChapterStatusPlanned,
		})
	}
	return tx.Chapters.CreateBatch(chapters)
}

// List 最近创建的小说
func (s *NovelService) List() ([]model.Novel, error) {
	return s.store.Novels.List(NovelListLimit)
}

func (s *NovelService) Get(id uint) (*model.Novel, error) {
	novel, err := s.store.Novels.Get(id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNovelNotFound
		}
		return nil, fmt.Errorf("failed to get novel: %w", err)
	}
	return novel, nil
}

// Delete 删除小说及其章节、人物、事实和日志
func (s *NovelService) Delete(id uint) error {
	if _, err := s.Get(id); err != nil {
		return err
	}
	if err := s.store.Novels.Delete(id); err != nil {
		return fmt.Errorf("failed to delete novel: %w", err)
	}
	klog.V(6).Infof("删除小说: novelID=%d", id)
	return nil
}

// ListChapters 已生成正文的章节，按序号升序
func (s *NovelService) ListChapters(novelID uint) ([]model.Chapter, error) {
	return s.store.Chapters.ListGenerated(novelID)
}

// LatestChapter 最近一次生成的章节
func (s *NovelService) LatestChapter(novelID uint) (*model.Chapter, error) {
	chapter, err := s.store.Chapters.Latest(novelID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrChapterNotFound
		}
		return nil, err
	}
	return chapter, nil
}

func (s *NovelService) GetChapter(id uint) (*model.Chapter, error) {
	chapter, err := s.store.Chapters.Get(id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrChapterNotFound
		}
		return nil, err
	}
	return chapter, nil
}

func (s *NovelService) AddCharacter(novelID uint, req CreateCharacterRequest) (*model.Character, error) {
	if _, err := s.Get(novelID); err != nil {
		return nil, err
	}
	character := &model.Character{
		NovelID:     novelID,
		Name:        req.Name,
		Role:        req.Role,
		Description: req.Description,
		Metadata:    req.Metadata,
	}
	if err := s.store.Characters.Create(character); err != nil {
		return nil, fmt.Errorf("failed to create character: %w", err)
	}
	return character, nil
}

func (s *NovelService) AddPlotNode(novelID uint, req CreatePlotNodeRequest) (*model.PlotNode, error) {
	if _, err := s.Get(novelID); err != nil {
		return nil, err
	}
	node := &model.PlotNode{
		NovelID:   novelID,
		ChapterID: req.ChapterID,
		Index:     req.Index,
		Summary:   req.Summary,
		NodeType:  req.NodeType,
		Metadata:  req.Metadata,
	}
	if err := s.store.PlotNodes.Create(node); err != nil {
		return nil, fmt.Errorf("failed to create plot node: %w", err)
	}
	return node, nil
}

// ListFacts 小说已登记的全部事实
func (s *NovelService) ListFacts(novelID uint) ([]model.StoryFact, error) {
	if _, err := s.Get(novelID); err != nil {
		return nil, err
	}
	return s.store.Facts.ListByNovel(novelID)
}

// ListLogs 最近的创作日志
func (s *NovelService) ListLogs(limit int) ([]model.CreationLog, error) {
	return s.store.Logs.ListRecent(limit)
}
