package subscriber

import (
	"context"
	"fmt"
	"time"

	"k8s.io/klog/v2"

	"github.com/CanFlyhang/NovelBot/internal/eventbus"
	"github.com/CanFlyhang/NovelBot/internal/repository"
)

// 系统状态键
const (
	StateLastChapterAt = "last_chapter_at"
	StateLastError     = "last_error"
)

const maxStateValueRunes = 255

// NovelEventSubscriber 将小说事件记录到 SystemState
type NovelEventSubscriber struct {
	states repository.SystemStateRepository
}

func NewNovelEventSubscriber(states repository.SystemStateRepository) *NovelEventSubscriber {
	return &NovelEventSubscriber{states: states}
}

func (s *NovelEventSubscriber) Register(bus *eventbus.NovelEventBus) {
	if bus == nil {
		return
	}
	bus.Subscribe(eventbus.NovelEventChapterCommitted, s.handleChapterCommitted)
	bus.Subscribe(eventbus.NovelEventCompleted, s.handleNovelCompleted)
	bus.Subscribe(eventbus.NovelEventFailed, s.handleNovelFailed)
}

func (s *NovelEventSubscriber) handleChapterCommitted(ctx context.Context, event eventbus.NovelEvent) error {
	if err := s.states.Set(StateLastChapterAt, event.OccurredAt.Format(time.RFC3339)); err != nil {
		return fmt.Errorf("record last chapter time: %w", err)
	}
	klog.V(6).Infof("章节提交事件处理成功: novelID=%d, chapterIndex=%d, words=%d", event.NovelID, event.ChapterIndex, event.WordCount)
	return nil
}

func (s *NovelEventSubscriber) handleNovelCompleted(ctx context.Context, event eventbus.NovelEvent) error {
	klog.Infof("小说已完结: novelID=%d, chapters=%d", event.NovelID, event.ChapterIndex)
	return nil
}

func (s *NovelEventSubscriber) handleNovelFailed(ctx context.Context, event eventbus.NovelEvent) error {
	value := fmt.Sprintf("%s novel=%d chapter=%d: %s", event.OccurredAt.Format(time.RFC3339), event.NovelID, event.ChapterIndex, event.Error)
	if r := []rune(value); len(r) > maxStateValueRunes {
		value = string(r[:maxStateValueRunes])
	}
	if err := s.states.Set(StateLastError, value); err != nil {
		return fmt.Errorf("record last error: %w", err)
	}
	klog.V(6).Infof("小说失败事件处理成功: novelID=%d, chapterIndex=%d", event.NovelID, event.ChapterIndex)
	return nil
}
