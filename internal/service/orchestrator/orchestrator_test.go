package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CanFlyhang/NovelBot/internal/eventbus"
	"github.com/CanFlyhang/NovelBot/internal/model"
	"github.com/CanFlyhang/NovelBot/internal/pkg/database"
	"github.com/CanFlyhang/NovelBot/internal/pkg/llm"
	"github.com/CanFlyhang/NovelBot/internal/repository"
	"github.com/CanFlyhang/NovelBot/internal/service/factledger"
	"github.com/CanFlyhang/NovelBot/internal/service/storycontext"
)

// scriptedGenerator 按系统提示区分写作、审核、提取三类调用
type scriptedGenerator struct {
	mu sync.Mutex

	chapterReplies []string
	chapterErr     error
	auditReplies   []string
	extractReplies []string
	extractErr     error

	chapterPrompts []string
	auditCalls     int
	extractCalls   int
}

func (g *scriptedGenerator) Generate(ctx context.Context, messages []llm.ChatMessage, opts llm.Options) (string, *llm.Meta, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	system := messages[0].Content
	switch {
	case system == writerSystemPrompt:
		g.chapterPrompts = append(g.chapterPrompts, messages[1].Content)
		if g.chapterErr != nil {
			return "", nil, g.chapterErr
		}
		reply := pop(&g.chapterReplies)
		return reply, &llm.Meta{RequestID: fmt.Sprintf("chapter-%d", len(g.chapterPrompts)), LatencyMs: 12.5}, nil
	case strings.Contains(system, "审读编辑"):
		g.auditCalls++
		return pop(&g.auditReplies), &llm.Meta{}, nil
	case strings.Contains(system, "策划编辑"):
		g.extractCalls++
		if g.extractErr != nil {
			return "", nil, g.extractErr
		}
		return pop(&g.extractReplies), &llm.Meta{}, nil
	}
	return "", nil, errors.New("unexpected prompt")
}

func pop(queue *[]string) string {
	if len(*queue) == 0 {
		return ""
	}
	v := (*queue)[0]
	*queue = (*queue)[1:]
	return v
}

type fixture struct {
	store  *repository.Store
	gen    *scriptedGenerator
	orch   *Orchestrator
	bus    *eventbus.NovelEventBus
	events []eventbus.NovelEvent
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.InitDB("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db error: %v", err)
	}
	store := repository.NewStore(db)
	gen := &scriptedGenerator{}
	bus := eventbus.NewNovelEventBus()

	f := &fixture{store: store, gen: gen, bus: bus}
	for _, typ := range []eventbus.NovelEventType{eventbus.NovelEventChapterCommitted, eventbus.NovelEventCompleted, eventbus.NovelEventFailed} {
		bus.Subscribe(typ, func(ctx context.Context, event eventbus.NovelEvent) error {
			f.events = append(f.events, event)
			return nil
		})
	}

	f.orch = NewOrchestrator(store, storycontext.NewAssembler(store), factledger.New(store.Facts, gen), gen, bus)
	f.orch.SetClock(func() time.Time { return time.Date(2024, 5, 20, 9, 0, 0, 0, time.Local) })
	return f
}

func (f *fixture) seedNovel(t *testing.T, chapters int) *model.Novel {
	t.Helper()
	novel := &model.Novel{
		Title:              "青云志",
		Genre:              "玄幻",
		Description:        "少年修仙",
		TargetChapterCount: chapters,
		Status:             model.NovelStatusPlanned,
		PlannedDate:        "2024-05-20",
	}
	require.NoError(t, f.store.Novels.Create(novel))
	var rows []model.Chapter
	for i := 1; i <= chapters; i++ {
		rows = append(rows, model.Chapter{NovelID: novel.ID, Index: i, Title: fmt.Sprintf("第%d章", i), Status: model.ChapterStatusPlanned})
	}
	require.NoError(t, f.store.Chapters.CreateBatch(rows))
	return novel
}

func (f *fixture) eventTypes() []eventbus.NovelEventType {
	var types []eventbus.NovelEventType
	for _, e := range f.events {
		types = append(types, e.Type)
	}
	return types
}

func TestGenerateNextChapterEndToEnd(t *testing.T) {
	f := newFixture(t)
	novel := f.seedNovel(t, 2)

	f.gen.chapterReplies = []string{
		"本章小结：林风拜入青云门\n\n林风 走上山门。\n他抬头望去。",
		"本章小结：林风飞升，全书完结\n\n终章正文。",
	}
	f.gen.extractReplies = []string{"- [重要] 林风拜入青云门\n- 青云门位于东海", ""}

	ok, err := f.orch.GenerateNextChapter(context.Background(), novel.ID)
	require.NoError(t, err)
	require.True(t, ok)

	chapter, err := f.store.Chapters.GetByIndex(novel.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, model.ChapterStatusCompleted, chapter.Status)
	assert.Equal(t, "林风拜入青云门", chapter.Title)
	assert.Equal(t, "林风拜入青云门", chapter.Outline)
	assert.Equal(t, "林风 走上山门。\n他抬头望去。", chapter.Body())
	assert.Equal(t, 13, chapter.WordCount)

	got, err := f.store.Novels.Get(novel.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentChapterIndex)
	assert.Equal(t, model.NovelStatusWriting, got.Status)

	facts, err := f.store.Facts.ListByNovel(novel.ID)
	require.NoError(t, err)
	require.Len(t, facts, 2)
	assert.Equal(t, 1, facts[0].ChapterIndex)
	assert.Equal(t, chapter.ID, facts[0].ChapterID)
	assert.Equal(t, model.FactImportanceCritical, facts[0].Importance)

	logs, err := f.store.Logs.ListByNovel(novel.ID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, model.LogLevelInfo, logs[0].Level)
	assert.Equal(t, "成功生成第1章，字数约为 13", logs[0].Message)
	assert.Equal(t, "chapter-1", logs[0].APICallID)
	require.NotNil(t, logs[0].LatencyMs)
	assert.Equal(t, 12.5, *logs[0].LatencyMs)

	// 第二章为收官章
	ok, err = f.orch.GenerateNextChapter(context.Background(), novel.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, f.gen.chapterPrompts, 2)
	assert.Contains(t, f.gen.chapterPrompts[1], "最终结局章节（第2章）")
	assert.Contains(t, f.gen.chapterPrompts[1], "- 林风拜入青云门")
	assert.Contains(t, f.gen.chapterPrompts[1], "第1章《林风拜入青云门》小结：林风拜入青云门")
	assert.NotContains(t, f.gen.chapterPrompts[0], "最终结局章节")

	got, err = f.store.Novels.Get(novel.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.CurrentChapterIndex)
	assert.Equal(t, model.NovelStatusCompleted, got.Status)

	metric, err := f.store.Metrics.GetByDate("2024-05-20")
	require.NoError(t, err)
	assert.Equal(t, 1, metric.NovelCount)
	assert.Equal(t, 2, metric.ChapterCount)
	assert.Equal(t, 13+5, metric.WordCount)

	// 没有下一章
	ok, err = f.orch.GenerateNextChapter(context.Background(), novel.ID)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrNovelFinished)
	assert.Len(t, f.gen.chapterPrompts, 2)

	assert.Equal(t, []eventbus.NovelEventType{
		eventbus.NovelEventChapterCommitted,
		eventbus.NovelEventChapterCommitted,
		eventbus.NovelEventCompleted,
	}, f.eventTypes())
}

func TestGenerateNextChapterRepairsOnce(t *testing.T) {
	f := newFixture(t)
	novel := f.seedNovel(t, 3)
	require.NoError(t, f.store.Facts.CreateBatch([]model.StoryFact{
		{NovelID: novel.ID, ChapterID: 1, ChapterIndex: 0, Content: "林风的父亲已经去世", Importance: model.FactImportanceCritical},
	}))

	f.gen.chapterReplies = []string{
		"本章小结：父亲归来\n\n林风的父亲推门而入。",
		"本章小结：祭拜父亲\n\n林风在父亲墓前上香。",
	}
	// 修复后的稿件即使仍有冲突也不会再次重写
	f.gen.auditReplies = []string{"- 父亲复活；相关事实：林风的父亲已经去世"}

	ok, err := f.orch.GenerateNextChapter(context.Background(), novel.ID)
	require.NoError(t, err)
	require.True(t, ok)

	require.Len(t, f.gen.chapterPrompts, 2)
	assert.Equal(t, 1, f.gen.auditCalls)
	assert.True(t, strings.HasPrefix(f.gen.chapterPrompts[1], f.gen.chapterPrompts[0]))
	assert.Contains(t, f.gen.chapterPrompts[1], "存在如下冲突")
	assert.Contains(t, f.gen.chapterPrompts[1], "- 父亲复活；相关事实：林风的父亲已经去世")

	chapter, err := f.store.Chapters.GetByIndex(novel.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "祭拜父亲", chapter.Title)
	assert.Equal(t, "林风在父亲墓前上香。", chapter.Body())

	logs, err := f.store.Logs.ListByNovel(novel.ID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "chapter-2", logs[0].APICallID)
}

func TestGenerateNextChapterLenientAuditKeepsDraft(t *testing.T) {
	f := newFixture(t)
	novel := f.seedNovel(t, 3)
	require.NoError(t, f.store.Facts.CreateBatch([]model.StoryFact{
		{NovelID: novel.ID, ChapterID: 1, ChapterIndex: 0, Content: "设定", Importance: model.FactImportanceNormal},
	}))
	f.gen.chapterReplies = []string{"本章小结：初稿\n\n正文。"}
	f.gen.auditReplies = []string{"我觉得大致没问题，但也许有点冲突。"}

	ok, err := f.orch.GenerateNextChapter(context.Background(), novel.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, f.gen.chapterPrompts, 1)
	assert.Equal(t, 1, f.gen.auditCalls)
}

func TestGenerateNextChapterFailureMarksError(t *testing.T) {
	f := newFixture(t)
	novel := f.seedNovel(t, 3)
	f.gen.chapterErr = &llm.FatalGenerationError{Attempts: 3, Err: errors.New("upstream down")}

	ok, err := f.orch.GenerateNextChapter(context.Background(), novel.ID)
	assert.False(t, ok)
	var fatal *llm.FatalGenerationError
	assert.True(t, errors.As(err, &fatal))

	got, err := f.store.Novels.Get(novel.ID)
	require.NoError(t, err)
	assert.Equal(t, model.NovelStatusError, got.Status)
	assert.Equal(t, 0, got.CurrentChapterIndex)

	chapter, err := f.store.Chapters.GetByIndex(novel.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, model.ChapterStatusPlanned, chapter.Status)
	assert.Nil(t, chapter.Content)

	_, err = f.store.Metrics.GetByDate("2024-05-20")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	logs, err := f.store.Logs.ListByNovel(novel.ID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, model.LogLevelError, logs[0].Level)
	assert.True(t, strings.HasPrefix(logs[0].Message, "生成章节失败："))
	assert.Equal(t, []eventbus.NovelEventType{eventbus.NovelEventFailed}, f.eventTypes())

	// 手动重试可以从 ERROR 恢复
	f.gen.chapterErr = nil
	f.gen.chapterReplies = []string{"本章小结：重来\n\n正文。"}
	ok, err = f.orch.GenerateNextChapter(context.Background(), novel.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err = f.store.Novels.Get(novel.ID)
	require.NoError(t, err)
	assert.Equal(t, model.NovelStatusWriting, got.Status)
	assert.Equal(t, 1, got.CurrentChapterIndex)
}

func TestGenerateNextChapterExtractionFailureIsIgnored(t *testing.T) {
	f := newFixture(t)
	novel := f.seedNovel(t, 3)
	f.gen.chapterReplies = []string{"本章小结：开端\n\n正文。"}
	f.gen.extractErr = errors.New("extract failed")

	ok, err := f.orch.GenerateNextChapter(context.Background(), novel.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	facts, err := f.store.Facts.ListByNovel(novel.ID)
	require.NoError(t, err)
	assert.Empty(t, facts)
}

func TestGenerateNextChapterMissingNovel(t *testing.T) {
	f := newFixture(t)

	ok, err := f.orch.GenerateNextChapter(context.Background(), 404)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrNovelNotFound)
	assert.Empty(t, f.gen.chapterPrompts)
}

func TestGenerateNextChapterWithoutChapterRowsCompletes(t *testing.T) {
	f := newFixture(t)
	novel := &model.Novel{Title: "空", Genre: "都市", TargetChapterCount: 0, Status: model.NovelStatusPlanned, PlannedDate: "2024-05-20"}
	require.NoError(t, f.store.Novels.Create(novel))

	ok, err := f.orch.GenerateNextChapter(context.Background(), novel.ID)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrNovelFinished)

	got, err := f.store.Novels.Get(novel.ID)
	require.NoError(t, err)
	assert.Equal(t, model.NovelStatusCompleted, got.Status)
	assert.Equal(t, 0, got.CurrentChapterIndex)
	assert.Empty(t, f.gen.chapterPrompts)
}

func TestGenerateNextChapterBusyNovel(t *testing.T) {
	f := newFixture(t)
	novel := f.seedNovel(t, 2)

	require.True(t, f.orch.tryLock(novel.ID))
	ok, err := f.orch.GenerateNextChapter(context.Background(), novel.ID)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrNovelBusy)
	f.orch.unlock(novel.ID)

	got, err := f.store.Novels.Get(novel.ID)
	require.NoError(t, err)
	assert.Equal(t, model.NovelStatusPlanned, got.Status)
	assert.Empty(t, f.gen.chapterPrompts)
}

// racingBuilder 在组装上下文时模拟另一进程推进了小说进度
type racingBuilder struct {
	store *repository.Store
	inner ContextBuilder
}

func (b *racingBuilder) Build(ctx context.Context, novel *model.Novel, targetIndex int) (string, error) {
	if _, err := b.store.Novels.AdvanceProgress(novel.ID, novel.CurrentChapterIndex, targetIndex, model.NovelStatusWriting); err != nil {
		return "", err
	}
	return b.inner.Build(ctx, novel, targetIndex)
}

func TestGenerateNextChapterStaleProgressRollsBack(t *testing.T) {
	f := newFixture(t)
	novel := f.seedNovel(t, 3)
	f.orch.assembler = &racingBuilder{store: f.store, inner: f.orch.assembler}
	f.gen.chapterReplies = []string{"本章小结：开端\n\n正文。"}
	f.gen.extractReplies = []string{"- 事实"}

	ok, err := f.orch.GenerateNextChapter(context.Background(), novel.ID)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrStaleProgress)

	got, err := f.store.Novels.Get(novel.ID)
	require.NoError(t, err)
	assert.Equal(t, model.NovelStatusWriting, got.Status)

	chapter, err := f.store.Chapters.GetByIndex(novel.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, model.ChapterStatusPlanned, chapter.Status)

	facts, err := f.store.Facts.ListByNovel(novel.ID)
	require.NoError(t, err)
	assert.Empty(t, facts)
}

func TestGenerateNextChapterCanceledContextDoesNotMarkError(t *testing.T) {
	f := newFixture(t)
	novel := f.seedNovel(t, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f.gen.chapterErr = context.Canceled

	ok, err := f.orch.GenerateNextChapter(ctx, novel.ID)
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)

	got, err := f.store.Novels.Get(novel.ID)
	require.NoError(t, err)
	assert.Equal(t, model.NovelStatusPlanned, got.Status)
}
