package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"k8s.io/klog/v2"

	"github.com/CanFlyhang/NovelBot/config"
	"github.com/CanFlyhang/NovelBot/internal/model"
	"github.com/CanFlyhang/NovelBot/internal/repository"
)

// StatusKey 调度状态在 system_state 中的键
const StatusKey = "scheduler_status"

const (
	StatusRunning = "running"
	StatusPaused  = "paused"
)

// dueStatuses 可被调度继续创作的小说状态
var dueStatuses = []model.NovelStatus{model.NovelStatusPlanned, model.NovelStatusWriting}

// ChapterGenerator 生成小说的下一章
type ChapterGenerator interface {
	GenerateNextChapter(ctx context.Context, novelID uint) (bool, error)
}

// DailyPlanner 补齐当日规划的小说
type DailyPlanner interface {
	PlanNovelsForDay(ctx context.Context, date string) ([]model.Novel, error)
}

// State 调度器对外状态
type State struct {
	IsRunning     bool       `json:"is_running"`
	IsPaused      bool       `json:"is_paused"`
	LastHeartbeat *time.Time `json:"last_heartbeat"`
}

// Service 后台调度器：每个周期挑选一本到期小说生成一章
// Pause 与 Stop 只在两个周期之间生效，不会打断正在进行的生成
type Service struct {
	novels    repository.NovelRepository
	states    repository.SystemStateRepository
	generator ChapterGenerator
	planner   DailyPlanner
	settings  *config.Settings

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	running   atomic.Bool
	paused    atomic.Bool
	heartbeat atomic.Pointer[time.Time]

	mutex  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewService(store *repository.Store, generator ChapterGenerator, settings *config.Settings) *Service {
	return &Service{
		novels:    store.Novels,
		states:    store.States,
		generator: generator,
		settings:  settings,
		now:       time.Now,
		sleep:     sleepContext,
	}
}

// SetPlanner 开启自动规划，每个周期先补齐当日小说
func (s *Service) SetPlanner(planner DailyPlanner) {
	s.planner = planner
}

// SetClock 替换时间来源
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// SetSleep 替换周期间的等待函数，返回错误时循环退出
func (s *Service) SetSleep(sleep func(ctx context.Context, d time.Duration) error) {
	s.sleep = sleep
}

// Start 启动调度循环，已在运行时忽略
func (s *Service) Start(ctx context.Context) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.running.Load() {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.paused.Store(false)
	s.running.Store(true)

	klog.V(6).Infof("调度器启动")
	go s.loop(ctx, loopCtx, s.done)
}

// Stop 请求停止，当前周期执行完后退出
func (s *Service) Stop() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// Wait 阻塞直到调度循环退出
func (s *Service) Wait() {
	s.mutex.Lock()
	done := s.done
	s.mutex.Unlock()
	if done != nil {
		<-done
	}
}

func (s *Service) Pause() {
	s.paused.Store(true)
}

func (s *Service) Resume() {
	s.paused.Store(false)
}

func (s *Service) State() State {
	return State{
		IsRunning:     s.running.Load(),
		IsPaused:      s.paused.Load(),
		LastHeartbeat: s.heartbeat.Load(),
	}
}

// loop 中生成使用 ctx，仅等待使用可被 Stop 取消的 stopCtx
func (s *Service) loop(ctx, stopCtx context.Context, done chan struct{}) {
	defer close(done)
	defer s.running.Store(false)

	for stopCtx.Err() == nil {
		s.iterate(ctx)
		if err := s.sleep(stopCtx, s.tick()); err != nil {
			break
		}
	}
	klog.V(6).Infof("调度器已停止")
}

func (s *Service) iterate(ctx context.Context) {
	beat := s.now()
	s.heartbeat.Store(&beat)

	if !s.paused.Load() {
		if err := s.RunOnce(ctx); err != nil {
			klog.Warningf("调度周期执行失败: err=%v", err)
		}
	}
	s.saveState()
}

// RunOnce 执行一个调度周期：可选的自动规划，然后为最早到期的小说生成一章
func (s *Service) RunOnce(ctx context.Context) error {
	today := model.FormatDate(s.now())

	if s.planner != nil {
		if novels, err := s.planner.PlanNovelsForDay(ctx, today); err != nil {
			klog.Warningf("自动规划失败: date=%s, err=%v", today, err)
		} else if len(novels) > 0 {
			klog.V(6).Infof("自动规划新增小说: date=%s, count=%d", today, len(novels))
		}
	}

	novel, err := s.novels.NextDue(dueStatuses, today)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			klog.V(6).Infof("没有到期的小说: date=%s", today)
			return nil
		}
		return err
	}

	klog.V(6).Infof("调度生成章节: novelID=%d, plannedDate=%s", novel.ID, novel.PlannedDate)
	_, err = s.generator.GenerateNextChapter(ctx, novel.ID)
	return err
}

func (s *Service) saveState() {
	value := StatusRunning
	if s.paused.Load() {
		value = StatusPaused
	}
	if err := s.states.Set(StatusKey, value); err != nil {
		klog.Errorf("保存调度状态失败: err=%v", err)
	}
}

// tick 周期间隔，实时读取运行参数
func (s *Service) tick() time.Duration {
	if s.settings == nil {
		return config.MinSchedulerTick
	}
	return s.settings.Snapshot().SchedulerTick()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
