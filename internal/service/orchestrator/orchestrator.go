package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"k8s.io/klog/v2"

	"github.com/CanFlyhang/NovelBot/internal/eventbus"
	"github.com/CanFlyhang/NovelBot/internal/model"
	"github.com/CanFlyhang/NovelBot/internal/pkg/llm"
	"github.com/CanFlyhang/NovelBot/internal/repository"
	"github.com/CanFlyhang/NovelBot/internal/service/factledger"
	"github.com/CanFlyhang/NovelBot/internal/service/statemachine"
)

// -----------------------------
// 错误定义
// -----------------------------
var (
	ErrNovelNotFound = errors.New("novel not found")
	ErrNovelFinished = errors.New("novel has no remaining chapters")
	ErrNovelBusy     = errors.New("novel is being generated by another caller")
	// ErrStaleProgress 提交时小说进度已被其他调用推进
	ErrStaleProgress = errors.New("novel progress changed during generation")
)

// ContextBuilder 组装生成上下文
type ContextBuilder interface {
	Build(ctx context.Context, novel *model.Novel, targetIndex int) (string, error)
}

// FactLedger 一致性审核与事实提取
type FactLedger interface {
	Audit(ctx context.Context, novel *model.Novel, chapterIndex int, summary, body string) (factledger.AuditResult, error)
	Extract(ctx context.Context, novel *model.Novel, chapter *model.Chapter, summary, body string) factledger.Extraction
}

// Draft 一次模型生成解析后的结果
type Draft struct {
	Summary   string
	Body      string
	WordCount int
	Meta      *llm.Meta
}

// -----------------------------
// Orchestrator
// -----------------------------
type Orchestrator struct {
	store     *repository.Store
	assembler ContextBuilder
	ledger    FactLedger
	generator llm.Generator
	bus       *eventbus.NovelEventBus

	novelSM   *statemachine.NovelStateMachine
	chapterSM *statemachine.ChapterStateMachine

	now func() time.Time

	activeNovels map[uint]struct{}
	activeMutex  sync.Mutex
}

// NewOrchestrator 创建章节编排器，bus 可以为 nil
func NewOrchestrator(store *repository.Store, assembler ContextBuilder, ledger FactLedger, generator llm.Generator, bus *eventbus.NovelEventBus) *Orchestrator {
	return &Orchestrator{
		store:        store,
		assembler:    assembler,
		ledger:       ledger,
		generator:    generator,
		bus:          bus,
		novelSM:      statemachine.NewNovelStateMachine(),
		chapterSM:    statemachine.NewChapterStateMachine(),
		now:          time.Now,
		activeNovels: make(map[uint]struct{}),
	}
}

// SetClock 替换时间来源，用于按日统计
func (o *Orchestrator) SetClock(now func() time.Time) {
	o.now = now
}

// tryLock 同一小说同一时刻只允许一个生成
func (o *Orchestrator) tryLock(novelID uint) bool {
	o.activeMutex.Lock()
	defer o.activeMutex.Unlock()
	if _, busy := o.activeNovels[novelID]; busy {
		return false
	}
	o.activeNovels[novelID] = struct{}{}
	return true
}

func (o *Orchestrator) unlock(novelID uint) {
	o.activeMutex.Lock()
	defer o.activeMutex.Unlock()
	delete(o.activeNovels, novelID)
}

// GenerateNextChapter 为小说生成下一章并提交，返回是否成功写入一章
// 返回 false 时 error 说明原因：ErrNovelNotFound、ErrNovelFinished、ErrNovelBusy 或生成失败
func (o *Orchestrator) GenerateNextChapter(ctx context.Context, novelID uint) (bool, error) {
	if !o.tryLock(novelID) {
		klog.V(6).Infof("小说正在生成中，跳过: novelID=%d", novelID)
		return false, ErrNovelBusy
	}
	defer o.unlock(novelID)

	novel, err := o.store.Novels.Get(novelID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, ErrNovelNotFound
		}
		return false, fmt.Errorf("load novel: %w", err)
	}

	nextIndex := novel.CurrentChapterIndex + 1
	chapter, err := o.store.Chapters.GetByIndex(novel.ID, nextIndex)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, o.finish(ctx, novel)
		}
		return false, fmt.Errorf("load chapter %d: %w", nextIndex, err)
	}

	klog.V(6).Infof("开始生成章节: novelID=%d, chapterIndex=%d", novel.ID, nextIndex)
	if err := o.writeChapter(ctx, novel, chapter); err != nil {
		switch {
		case errors.Is(err, ErrStaleProgress):
			klog.Warningf("章节提交冲突，已回滚: novelID=%d, chapterIndex=%d", novel.ID, nextIndex)
			return false, err
		case ctx.Err() != nil:
			klog.Warningf("章节生成被取消: novelID=%d, chapterIndex=%d, err=%v", novel.ID, nextIndex, err)
			return false, err
		}
		return false, o.fail(ctx, novel, chapter, err)
	}
	return true, nil
}

// finish 没有下一章时将小说标记为完结
func (o *Orchestrator) finish(ctx context.Context, novel *model.Novel) error {
	if novel.Status != model.NovelStatusCompleted {
		if err := o.novelSM.Transition(novel.Status, model.NovelStatusCompleted, novel.ID); err != nil {
			return err
		}
		if err := o.store.Novels.UpdateStatus(novel.ID, model.NovelStatusCompleted); err != nil {
			return fmt.Errorf("mark novel completed: %w", err)
		}
		o.publish(ctx, eventbus.NovelEvent{
			Type:         eventbus.NovelEventCompleted,
			NovelID:      novel.ID,
			ChapterIndex: novel.CurrentChapterIndex,
		})
	}
	return ErrNovelFinished
}

// writeChapter 生成、审核、提取事实并在一个事务内提交
func (o *Orchestrator) writeChapter(ctx context.Context, novel *model.Novel, chapter *model.Chapter) error {
	storyContext, err := o.assembler.Build(ctx, novel, chapter.Index)
	if err != nil {
		return fmt.Errorf("build context: %w", err)
	}

	basePrompt := nextChapterPrompt(storyContext, chapter.Index)
	if novel.IsLastChapter(chapter.Index) {
		basePrompt = finalChapterPrompt(storyContext, chapter.Index)
	}

	draft, err := o.draft(ctx, basePrompt)
	if err != nil {
		return err
	}

	audit, err := o.ledger.Audit(ctx, novel, chapter.Index, draft.Summary, draft.Body)
	if err != nil {
		return err
	}
	if !audit.Passed && len(audit.Issues) > 0 {
		klog.V(6).Infof("章节与既有事实冲突，重新生成一次: novelID=%d, chapterIndex=%d, issues=%d", novel.ID, chapter.Index, len(audit.Issues))
		draft, err = o.draft(ctx, repairPrompt(basePrompt, audit.Issues))
		if err != nil {
			return err
		}
	}

	nextStatus := model.NovelStatusWriting
	if novel.IsLastChapter(chapter.Index) {
		nextStatus = model.NovelStatusCompleted
	}
	if err := o.novelSM.Transition(novel.Status, nextStatus, novel.ID); err != nil {
		return err
	}
	if err := o.chapterSM.ValidateTransition(chapter.Status, model.ChapterStatusCompleted); err != nil {
		return err
	}

	content := draft.Body
	chapter.Title = ChapterTitle(chapter.Index, draft.Summary)
	chapter.Outline = draft.Summary
	chapter.Content = &content
	chapter.WordCount = draft.WordCount
	chapter.Status = model.ChapterStatusCompleted

	extraction := o.ledger.Extract(ctx, novel, chapter, draft.Summary, draft.Body)
	if extraction.Err != nil {
		klog.Warningf("事实提取失败，忽略: novelID=%d, chapterIndex=%d, err=%v", novel.ID, chapter.Index, extraction.Err)
	}

	today := model.FormatDate(o.now())
	err = o.store.Transaction(ctx, func(tx *repository.Store) error {
		advanced, err := tx.Novels.AdvanceProgress(novel.ID, novel.CurrentChapterIndex, chapter.Index, nextStatus)
		if err != nil {
			return fmt.Errorf("update novel: %w", err)
		}
		if !advanced {
			return ErrStaleProgress
		}
		if err := tx.Chapters.Save(chapter); err != nil {
			return fmt.Errorf("save chapter: %w", err)
		}
		if err := tx.Metrics.AddChapter(today, draft.WordCount, chapter.Index == 1); err != nil {
			return fmt.Errorf("update metric: %w", err)
		}
		if err := tx.Facts.CreateBatch(extraction.Facts); err != nil {
			return fmt.Errorf("save facts: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	o.writeLog(novel.ID, &chapter.ID, model.LogLevelInfo,
		fmt.Sprintf("成功生成第%d章，字数约为 %d", chapter.Index, draft.WordCount), draft.Meta)
	klog.V(6).Infof("章节生成成功: novelID=%d, chapterIndex=%d, words=%d, facts=%d", novel.ID, chapter.Index, draft.WordCount, len(extraction.Facts))

	o.publish(ctx, eventbus.NovelEvent{
		Type:         eventbus.NovelEventChapterCommitted,
		NovelID:      novel.ID,
		ChapterID:    chapter.ID,
		ChapterIndex: chapter.Index,
		WordCount:    draft.WordCount,
	})
	if nextStatus == model.NovelStatusCompleted {
		o.publish(ctx, eventbus.NovelEvent{
			Type:         eventbus.NovelEventCompleted,
			NovelID:      novel.ID,
			ChapterID:    chapter.ID,
			ChapterIndex: chapter.Index,
		})
	}
	return nil
}

// draft 调用模型并解析小结与正文
func (o *Orchestrator) draft(ctx context.Context, userPrompt string) (*Draft, error) {
	text, meta, err := o.generator.Generate(ctx, llm.NewMessages(writerSystemPrompt, userPrompt), chapterOptions)
	if err != nil {
		return nil, err
	}
	summary, body := ParseGenerationOutput(text)
	return &Draft{
		Summary:   summary,
		Body:      body,
		WordCount: CountWords(body),
		Meta:      meta,
	}, nil
}

// fail 标记小说为 ERROR 并记录失败日志，返回包装后的原始错误
func (o *Orchestrator) fail(ctx context.Context, novel *model.Novel, chapter *model.Chapter, cause error) error {
	klog.Errorf("章节生成失败: novelID=%d, chapterIndex=%d, err=%v", novel.ID, chapter.Index, cause)

	if err := o.novelSM.Transition(novel.Status, model.NovelStatusError, novel.ID); err != nil {
		klog.Warningf("无法将小说标记为 ERROR: novelID=%d, err=%v", novel.ID, err)
	} else if err := o.store.Novels.UpdateStatus(novel.ID, model.NovelStatusError); err != nil {
		klog.Errorf("更新小说状态失败: novelID=%d, err=%v", novel.ID, err)
	}

	o.writeLog(novel.ID, &chapter.ID, model.LogLevelError, fmt.Sprintf("生成章节失败：%v", cause), nil)
	o.publish(ctx, eventbus.NovelEvent{
		Type:         eventbus.NovelEventFailed,
		NovelID:      novel.ID,
		ChapterID:    chapter.ID,
		ChapterIndex: chapter.Index,
		Error:        cause.Error(),
	})
	return fmt.Errorf("generate chapter %d of novel %d: %w", chapter.Index, novel.ID, cause)
}

func (o *Orchestrator) writeLog(novelID uint, chapterID *uint, level, message string, meta *llm.Meta) {
	entry := &model.CreationLog{
		NovelID:   novelID,
		ChapterID: chapterID,
		Level:     level,
		Message:   message,
	}
	if meta != nil {
		latency := meta.LatencyMs
		entry.APICallID = meta.RequestID
		entry.LatencyMs = &latency
	}
	if err := o.store.Logs.Create(entry); err != nil {
		klog.Errorf("写入创作日志失败: novelID=%d, level=%s, err=%v", novelID, level, err)
	}
}

func (o *Orchestrator) publish(ctx context.Context, event eventbus.NovelEvent) {
	if o.bus == nil {
		return
	}
	event.OccurredAt = o.now()
	if err := o.bus.Publish(ctx, event); err != nil {
		klog.Warningf("事件处理失败: type=%s, novelID=%d, err=%v", event.Type, event.NovelID, err)
	}
}
