package statemachine

import (
	"fmt"

	"k8s.io/klog/v2"

	"github.com/CanFlyhang/NovelBot/internal/model"
)

// NovelTransition 定义小说状态迁移
type NovelTransition struct {
	From model.NovelStatus
	To   model.NovelStatus
}

// NovelStateMachine 小说状态机
type NovelStateMachine struct {
	allowedTransitions map[NovelTransition]bool
}

// NewNovelStateMachine 创建新的小说状态机
func NewNovelStateMachine() *NovelStateMachine {
	sm := &NovelStateMachine{
		allowedTransitions: make(map[NovelTransition]bool),
	}

	// planned -> writing -> completed
	// 任一写作中的状态 -> error，error/paused -> writing 恢复
	transitions := []NovelTransition{
		// 正常写作流程
		{model.NovelStatusPlanned, model.NovelStatusWriting},
		{model.NovelStatusPlanned, model.NovelStatusCompleted}, // 单章小说或无章节
		{model.NovelStatusWriting, model.NovelStatusCompleted},

		// 失败
		{model.NovelStatusPlanned, model.NovelStatusError},
		{model.NovelStatusWriting, model.NovelStatusError},
		{model.NovelStatusPaused, model.NovelStatusError},

		// 暂停
		{model.NovelStatusPlanned, model.NovelStatusPaused},
		{model.NovelStatusWriting, model.NovelStatusPaused},

		// 恢复：手动重试
		{model.NovelStatusError, model.NovelStatusWriting},
		{model.NovelStatusError, model.NovelStatusCompleted},
		{model.NovelStatusPaused, model.NovelStatusWriting},
		{model.NovelStatusPaused, model.NovelStatusCompleted},
	}

	for _, t := range transitions {
		sm.allowedTransitions[t] = true
	}
	return sm
}

// CanTransition 检查状态迁移是否合法，状态不变视为合法
func (sm *NovelStateMachine) CanTransition(from, to model.NovelStatus) bool {
	if from == to {
		return true
	}
	return sm.allowedTransitions[NovelTransition{From: from, To: to}]
}

// ValidateTransition 验证状态迁移并返回错误
func (sm *NovelStateMachine) ValidateTransition(from, to model.NovelStatus) error {
	if !sm.CanTransition(from, to) {
		return &InvalidStateTransitionError{
			Kind: "novel",
			From: string(from),
			To:   string(to),
		}
	}
	return nil
}

// Transition 执行状态迁移（带日志）
func (sm *NovelStateMachine) Transition(from, to model.NovelStatus, novelID uint) error {
	if err := sm.ValidateTransition(from, to); err != nil {
		klog.V(6).Infof("小说状态迁移被拒绝: novelID=%d, %s -> %s, error=%v", novelID, from, to, err)
		return err
	}
	if from != to {
		klog.V(6).Infof("小说状态迁移成功: novelID=%d, %s -> %s", novelID, from, to)
	}
	return nil
}

// ChapterStateMachine 章节状态机：章节只会从未完成变为已完成
type ChapterStateMachine struct {
	allowed map[model.ChapterStatus]map[model.ChapterStatus]bool
}

func NewChapterStateMachine() *ChapterStateMachine {
	return &ChapterStateMachine{
		allowed: map[model.ChapterStatus]map[model.ChapterStatus]bool{
			model.ChapterStatusPlanned: {model.ChapterStatusCompleted: true},
			model.ChapterStatusWriting: {model.ChapterStatusCompleted: true},
			model.ChapterStatusError:   {model.ChapterStatusCompleted: true},
		},
	}
}

func (sm *ChapterStateMachine) ValidateTransition(from, to model.ChapterStatus) error {
	if !sm.allowed[from][to] {
		return &InvalidStateTransitionError{
			Kind: "chapter",
			From: string(from),
			To:   string(to),
		}
	}
	return nil
}

// InvalidStateTransitionError 无效的状态迁移错误
type InvalidStateTransitionError struct {
	Kind string
	From string
	To   string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("invalid %s state transition: %s -> %s", e.Kind, e.From, e.To)
}
