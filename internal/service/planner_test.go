package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CanFlyhang/NovelBot/config"
	"github.com/CanFlyhang/NovelBot/internal/model"
)

func newTestSettings(t *testing.T, novels, chapters int, genres []string) *config.Settings {
	t.Helper()
	settings := config.NewSettings(config.Default())
	_, err := settings.Apply(config.SettingsUpdate{
		DailyTargetNovels:       &novels,
		DefaultChaptersPerNovel: &chapters,
		PreferredGenres:         genres,
	})
	require.NoError(t, err)
	return settings
}

func TestEnsureDailyPlanCreatesOnce(t *testing.T) {
	store := newTestStore(t)
	settings := newTestSettings(t, 2, 3, []string{"科幻"})
	planner := NewPlanner(store, settings)

	plan, err := planner.EnsureDailyPlan(context.Background(), "2024-05-20")
	require.NoError(t, err)
	assert.Equal(t, 2, plan.TargetNovels)
	assert.Equal(t, 2*3*WordsPerChapterTarget, plan.TargetWords)

	// 之后修改运行参数不影响已存在的日计划
	five := 5
	_, err = settings.Apply(config.SettingsUpdate{DailyTargetNovels: &five})
	require.NoError(t, err)

	again, err := planner.EnsureDailyPlan(context.Background(), "2024-05-20")
	require.NoError(t, err)
	assert.Equal(t, plan.ID, again.ID)
	assert.Equal(t, 2, again.TargetNovels)

	_, err = planner.EnsureDailyPlan(context.Background(), "20240520")
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestPlanNovelsForDay(t *testing.T) {
	store := newTestStore(t)
	planner := NewPlanner(store, newTestSettings(t, 2, 3, []string{"科幻", "悬疑"}))
	var offered []string
	planner.pickGenre = func(genres []string) string {
		offered = genres
		return genres[1]
	}

	novels, err := planner.PlanNovelsForDay(context.Background(), "2024-05-20")
	require.NoError(t, err)
	require.Len(t, novels, 2)
	assert.Equal(t, []string{"科幻", "悬疑"}, offered)

	first := novels[0]
	assert.Equal(t, "2024-05-20 第1本悬疑小说", first.Title)
	assert.Equal(t, "悬疑", first.Genre)
	assert.Equal(t, "悬疑题材自动规划小说，由系统在 2024-05-20 自动创建。", first.Description)
	assert.Equal(t, 3, first.TargetChapterCount)
	assert.Equal(t, model.NovelStatusPlanned, first.Status)
	assert.Equal(t, "2024-05-20", first.PlannedDate)
	assert.Equal(t, "2024-05-20 第2本悬疑小说", novels[1].Title)

	stats, err := store.Chapters.GetStats(first.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
	ch, err := store.Chapters.GetByIndex(first.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, "第3章", ch.Title)

	// 已达到目标时不再创建
	more, err := planner.PlanNovelsForDay(context.Background(), "2024-05-20")
	require.NoError(t, err)
	assert.Empty(t, more)

	count, err := store.Novels.CountByPlannedDate("2024-05-20")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestPlanNovelsForDayCountsExistingAndFallsBackGenre(t *testing.T) {
	store := newTestStore(t)
	planner := NewPlanner(store, newTestSettings(t, 2, 1, nil))
	settingsEmpty := []string{}
	_, err := planner.settings.Apply(config.SettingsUpdate{PreferredGenres: settingsEmpty})
	require.NoError(t, err)

	require.NoError(t, store.Novels.Create(&model.Novel{
		Title: "手动", Genre: "都市", TargetChapterCount: 1, Status: model.NovelStatusPlanned, PlannedDate: "2024-05-21",
	}))

	novels, err := planner.PlanNovelsForDay(context.Background(), "2024-05-21")
	require.NoError(t, err)
	require.Len(t, novels, 1)
	assert.Equal(t, fallbackGenre, novels[0].Genre)
	assert.Equal(t, "2024-05-21 第1本玄幻小说", novels[0].Title)
}
