package service

import (
	"fmt"

	"github.com/CanFlyhang/NovelBot/internal/model"
	"github.com/CanFlyhang/NovelBot/internal/repository"
)

// 仪表盘统计范围
const (
	DashboardNovelLimit  = 100
	DashboardMetricLimit = 30
)

// NovelProgress 单本小说的创作进度
type NovelProgress struct {
	NovelID          uint              `json:"novel_id"`
	Title            string            `json:"title"`
	Genre            string            `json:"genre"`
	Status           model.NovelStatus `json:"status"`
	ChapterCompleted int64             `json:"chapter_completed"`
	ChapterTotal     int               `json:"chapter_total"`
	Words            int64             `json:"words"`
	ProgressRatio    float64           `json:"progress_ratio"`
}

// DailyProgress 某日产量
type DailyProgress struct {
	Date         string `json:"date"`
	NovelCount   int    `json:"novel_count"`
	ChapterCount int    `json:"chapter_count"`
	WordCount    int    `json:"word_count"`
}

type DashboardSummary struct {
	Novels        []NovelProgress `json:"novels"`
	DailyStats    []DailyProgress `json:"daily_stats"`
	TotalNovels   int64           `json:"total_novels"`
	TotalChapters int64           `json:"total_chapters"`
	TotalWords    int64           `json:"total_words"`
}

type DashboardService struct {
	store *repository.Store
}

func NewDashboardService(store *repository.Store) *DashboardService {
	return &DashboardService{store: store}
}

// Summary 汇总最近小说进度、近 30 日产量（按日期升序）与全局总量
func (s *DashboardService) Summary() (*DashboardSummary, error) {
	novels, err := s.store.Novels.List(DashboardNovelLimit)
	if err != nil {
		return nil, fmt.Errorf("list novels: %w", err)
	}

	summary := &DashboardSummary{
		Novels:     make([]NovelProgress, 0, len(novels)),
		DailyStats: []DailyProgress{},
	}
	for _, novel := range novels {
		stats, err := s.store.Chapters.GetStats(novel.ID)
		if err != nil {
			return nil, fmt.Errorf("chapter stats for novel %d: %w", novel.ID, err)
		}
		ratio := 0.0
		if novel.TargetChapterCount > 0 {
			ratio = float64(stats.Completed) / float64(novel.TargetChapterCount)
		}
		summary.Novels = append(summary.Novels, NovelProgress{
			NovelID:          novel.ID,
			Title:            novel.Title,
			Genre:            novel.Genre,
			Status:           novel.Status,
			ChapterCompleted: stats.Completed,
			ChapterTotal:     novel.TargetChapterCount,
			Words:            stats.Words,
			ProgressRatio:    ratio,
		})
	}

	metrics, err := s.store.Metrics.ListRecent(DashboardMetricLimit)
	if err != nil {
		return nil, fmt.Errorf("list metrics: %w", err)
	}
	for i := len(metrics) - 1; i >= 0; i-- {
		m := metrics[i]
		summary.DailyStats = append(summary.DailyStats, DailyProgress{
			Date:         m.Date,
			NovelCount:   m.NovelCount,
			ChapterCount: m.ChapterCount,
			WordCount:    m.WordCount,
		})
	}

	if summary.TotalNovels, err = s.store.Novels.Count(); err != nil {
		return nil, fmt.Errorf("count novels: %w", err)
	}
	totals, err := s.store.Chapters.GetTotals()
	if err != nil {
		return nil, fmt.Errorf("chapter totals: %w", err)
	}
	summary.TotalChapters = totals.Total
	summary.TotalWords = totals.Words
	return summary, nil
}
