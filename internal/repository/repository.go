package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/CanFlyhang/NovelBot/internal/model"
)

// ErrNotFound 记录不存在错误
var ErrNotFound = errors.New("record not found")

type NovelRepository interface {
	Create(novel *model.Novel) error
	Get(id uint) (*model.Novel, error)
	List(limit int) ([]model.Novel, error)
	Save(novel *model.Novel) error
	UpdateStatus(id uint, status model.NovelStatus) error
	// AdvanceProgress 仅当当前进度等于 expected 时推进，返回是否更新成功
	AdvanceProgress(id uint, expected, next int, status model.NovelStatus) (bool, error)
	// NextDue 返回计划日期不晚于 today 的首个待写小说
	NextDue(statuses []model.NovelStatus, today string) (*model.Novel, error)
	CountByPlannedDate(date string) (int64, error)
	Count() (int64, error)
	Delete(id uint) error
}

type ChapterRepository interface {
	CreateBatch(chapters []model.Chapter) error
	Get(id uint) (*model.Chapter, error)
	GetByIndex(novelID uint, index int) (*model.Chapter, error)
	ListCompletedBefore(novelID uint, index int) ([]model.Chapter, error)
	ListGenerated(novelID uint) ([]model.Chapter, error)
	Latest(novelID uint) (*model.Chapter, error)
	Save(chapter *model.Chapter) error
	GetStats(novelID uint) (*ChapterStats, error)
	GetTotals() (*ChapterStats, error)
}

type CharacterRepository interface {
	Create(character *model.Character) error
	ListByNovel(novelID uint) ([]model.Character, error)
}

type PlotNodeRepository interface {
	Create(node *model.PlotNode) error
	ListByNovel(novelID uint) ([]model.PlotNode, error)
}

// FactRepository 只提供写入与读取，事实一经写入不可修改
type FactRepository interface {
	CreateBatch(facts []model.StoryFact) error
	ListBefore(novelID uint, chapterIndex int) ([]model.StoryFact, error)
	ListByNovel(novelID uint) ([]model.StoryFact, error)
}

type LogRepository interface {
	Create(log *model.CreationLog) error
	ListRecent(limit int) ([]model.CreationLog, error)
	ListByNovel(novelID uint, limit int) ([]model.CreationLog, error)
}

type MetricRepository interface {
	// AddChapter 累加指定日期的章节数、字数，novelStarted 为真时小说数加一
	AddChapter(date string, words int, novelStarted bool) error
	GetByDate(date string) (*model.GenerationMetric, error)
	ListRecent(limit int) ([]model.GenerationMetric, error)
}

type DailyPlanRepository interface {
	GetByDate(date string) (*model.DailyPlan, error)
	Create(plan *model.DailyPlan) error
}

type SystemStateRepository interface {
	Get(key string) (string, error)
	Set(key, value string) error
}

// ChapterStats 章节完成数与字数汇总
type ChapterStats struct {
	Total     int64 `json:"total"`
	Completed int64 `json:"completed"`
	Words     int64 `json:"words"`
}

// Store 聚合所有 Repository，便于在同一事务内使用
type Store struct {
	db *gorm.DB

	Novels     NovelRepository
	Chapters   ChapterRepository
	Characters CharacterRepository
	PlotNodes  PlotNodeRepository
	Facts      FactRepository
	Logs       LogRepository
	Metrics    MetricRepository
	Plans      DailyPlanRepository
	States     SystemStateRepository
}

func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:         db,
		Novels:     NewNovelRepository(db),
		Chapters:   NewChapterRepository(db),
		Characters: NewCharacterRepository(db),
		PlotNodes:  NewPlotNodeRepository(db),
		Facts:      NewFactRepository(db),
		Logs:       NewLogRepository(db),
		Metrics:    NewMetricRepository(db),
		Plans:      NewDailyPlanRepository(db),
		States:     NewSystemStateRepository(db),
	}
}

// Transaction 在单个数据库事务中执行 fn，fn 返回错误时整体回滚
// fn 内只能使用参数 tx 上的 Repository
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(NewStore(db))
	})
}

func translateError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
