package config

import (
	"fmt"
	"sync"
	"time"
)

// MinSchedulerTick 调度间隔下限
const MinSchedulerTick = 5 * time.Second

// SettingsSnapshot 运行期可变参数的只读快照
type SettingsSnapshot struct {
	DailyTargetNovels       int      `json:"daily_target_novels"`
	DefaultChaptersPerNovel int      `json:"default_chapters_per_novel"`
	MaxConcurrentRequests   int      `json:"max_concurrent_api_requests"`
	MaxRequestsPerMinute    int      `json:"max_requests_per_minute"`
	PreferredGenres         []string `json:"preferred_genres"`
	SchedulerTickSeconds    int      `json:"scheduler_tick_seconds"`
}

// SchedulerTick 返回调度间隔，不低于 MinSchedulerTick
func (s SettingsSnapshot) SchedulerTick() time.Duration {
	tick := time.Duration(s.SchedulerTickSeconds) * time.Second
	if tick < MinSchedulerTick {
		return MinSchedulerTick
	}
	return tick
}

// SettingsUpdate 局部更新请求，nil 字段保持不变
type SettingsUpdate struct {
	DailyTargetNovels       *int     `json:"daily_target_novels" validate:"omitempty,min=0"`
	DefaultChaptersPerNovel *int     `json:"default_chapters_per_novel" validate:"omitempty,min=1,max=1000"`
	MaxConcurrentRequests   *int     `json:"max_concurrent_api_requests" validate:"omitempty,min=1,max=100"`
	MaxRequestsPerMinute    *int     `json:"max_requests_per_minute" validate:"omitempty,min=1"`
	PreferredGenres         []string `json:"preferred_genres" validate:"omitempty,dive,required"`
	SchedulerTickSeconds    *int     `json:"scheduler_tick_seconds" validate:"omitempty,min=1"`
}

// Settings 无需重启即可修改的运行参数
// 修改后通过 OnChange 注册的回调通知限流器、协程池等组件
type Settings struct {
	mutex     sync.RWMutex
	current   SettingsSnapshot
	listeners []func(SettingsSnapshot)
}

// NewSettings 根据启动配置创建运行参数
func NewSettings(cfg *Config) *Settings {
	return &Settings{
		current: SettingsSnapshot{
			DailyTargetNovels:       cfg.Writing.DailyTargetNovels,
			DefaultChaptersPerNovel: cfg.Writing.DefaultChaptersPerNovel,
			MaxConcurrentRequests:   cfg.LLM.MaxConcurrentRequests,
			MaxRequestsPerMinute:    cfg.LLM.MaxRequestsPerMinute,
			PreferredGenres:         append([]string(nil), cfg.Writing.PreferredGenres...),
			SchedulerTickSeconds:    cfg.Scheduler.TickSeconds,
		},
	}
}

// Snapshot 返回当前参数副本
func (s *Settings) Snapshot() SettingsSnapshot {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	snap := s.current
	snap.PreferredGenres = append([]string(nil), s.current.PreferredGenres...)
	return snap
}

// OnChange 注册变更回调
func (s *Settings) OnChange(fn func(SettingsSnapshot)) {
	if fn == nil {
		return
	}
	s.mutex.Lock()
	s.listeners = append(s.listeners, fn)
	s.mutex.Unlock()
}

// Apply 校验并应用局部更新，返回更新后的快照
func (s *Settings) Apply(update SettingsUpdate) (SettingsSnapshot, error) {
	if err := validate.Struct(update); err != nil {
		return s.Snapshot(), fmt.Errorf("运行参数校验失败: %w", err)
	}

	s.mutex.Lock()
	if update.DailyTargetNovels != nil {
		s.current.DailyTargetNovels = *update.DailyTargetNovels
	}
	if update.DefaultChaptersPerNovel != nil {
		s.current.DefaultChaptersPerNovel = *update.DefaultChaptersPerNovel
	}
	if update.MaxConcurrentRequests != nil {
		s.current.MaxConcurrentRequests = *update.MaxConcurrentRequests
	}
	if update.MaxRequestsPerMinute != nil {
		s.current.MaxRequestsPerMinute = *update.MaxRequestsPerMinute
	}
	if update.PreferredGenres != nil {
		s.current.PreferredGenres = append([]string(nil), update.PreferredGenres...)
	}
	if update.SchedulerTickSeconds != nil {
		s.current.SchedulerTickSeconds = *update.SchedulerTickSeconds
	}
	listeners := append([]func(SettingsSnapshot){}, s.listeners...)
	s.mutex.Unlock()

	snap := s.Snapshot()
	for _, fn := range listeners {
		fn(snap)
	}
	return snap, nil
}
