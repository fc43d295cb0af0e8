package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"k8s.io/klog/v2"

	"github.com/CanFlyhang/NovelBot/config"
	"github.com/CanFlyhang/NovelBot/internal/model"
	"github.com/CanFlyhang/NovelBot/internal/repository"
)

// WordsPerChapterTarget 日计划字数目标按每章 2500 字估算
const WordsPerChapterTarget = 2500

// fallbackGenre 题材池为空时使用
const fallbackGenre = "玄幻"

// Planner 按日规划需要创作的小说
type Planner struct {
	store     *repository.Store
	settings  *config.Settings
	pickGenre func(genres []string) string
}

func NewPlanner(store *repository.Store, settings *config.Settings) *Planner {
	return &Planner{
		store:    store,
		settings: settings,
		pickGenre: func(genres []string) string {
			return genres[rand.Intn(len(genres))]
		},
	}
}

// EnsureDailyPlan 日计划不存在时按当前运行参数创建
func (p *Planner) EnsureDailyPlan(ctx context.Context, date string) (*model.DailyPlan, error) {
	if _, err := time.Parse(model.DateLayout, date); err != nil {
		return nil, ErrInvalidDate
	}

	plan, err := p.store.Plans.GetByDate(date)
	if err == nil {
		return plan, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("load daily plan: %w", err)
	}

	snap := p.settings.Snapshot()
	plan = &model.DailyPlan{
		Date:         date,
		TargetNovels: snap.DailyTargetNovels,
		TargetWords:  snap.DailyTargetNovels * snap.DefaultChaptersPerNovel * WordsPerChapterTarget,
	}
	if err := p.store.Plans.Create(plan); err != nil {
		return nil, fmt.Errorf("create daily plan: %w", err)
	}
	klog.V(6).Infof("创建日计划: date=%s, targetNovels=%d, targetWords=%d", date, plan.TargetNovels, plan.TargetWords)
	return plan, nil
}

// PlanNovelsForDay 补齐当日计划中尚未创建的小说，返回本次新建的小说
func (p *Planner) PlanNovelsForDay(ctx context.Context, date string) ([]model.Novel, error) {
	plan, err := p.EnsureDailyPlan(ctx, date)
	if err != nil {
		return nil, err
	}

	existing, err := p.store.Novels.CountByPlannedDate(date)
	if err != nil {
		return nil, fmt.Errorf("count planned novels: %w", err)
	}
	toCreate := plan.TargetNovels - int(existing)
	if toCreate <= 0 {
		return nil, nil
	}

	snap := p.settings.Snapshot()
	genres := snap.PreferredGenres
	if len(genres) == 0 {
		genres = []string{fallbackGenre}
	}

	novels := make([]model.Novel, 0, toCreate)
	err = p.store.Transaction(ctx, func(tx *repository.Store) error {
		for i := 0; i < toCreate; i++ {
			genre := p.pickGenre(genres)
			novel := model.Novel{
				Title:              fmt.Sprintf("%s 第%d本%s小说", date, i+1, genre),
				Genre:              genre,
				Description:        fmt.Sprintf("%s题材自动规划小说，由系统在 %s 自动创建。", genre, date),
				TargetChapterCount: snap.DefaultChaptersPerNovel,
				Status:             model.NovelStatusPlanned,
				PlannedDate:        date,
			}
			if err := createWithChapters(tx, &novel); err != nil {
				return err
			}
			novels = append(novels, novel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("plan novels: %w", err)
	}

	klog.V(6).Infof("完成日规划: date=%s, created=%d", date, len(novels))
	return novels, nil
}
