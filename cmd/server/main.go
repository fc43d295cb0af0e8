package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/CanFlyhang/NovelBot/config"
	"github.com/CanFlyhang/NovelBot/internal/eventbus"
	"github.com/CanFlyhang/NovelBot/internal/handler"
	"github.com/CanFlyhang/NovelBot/internal/pkg/database"
	"github.com/CanFlyhang/NovelBot/internal/pkg/llm"
	"github.com/CanFlyhang/NovelBot/internal/repository"
	"github.com/CanFlyhang/NovelBot/internal/router"
	"github.com/CanFlyhang/NovelBot/internal/service"
	"github.com/CanFlyhang/NovelBot/internal/service/factledger"
	"github.com/CanFlyhang/NovelBot/internal/service/orchestrator"
	"github.com/CanFlyhang/NovelBot/internal/service/scheduler"
	"github.com/CanFlyhang/NovelBot/internal/service/storycontext"
	"github.com/CanFlyhang/NovelBot/internal/subscriber"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// 初始化 klog
	klog.InitFlags(nil)
	once := flag.Bool("once", false, "执行一次调度周期后退出")
	flag.Parse()
	defer klog.Flush()

	klog.V(6).Info("服务启动中...")

	cfg, err := config.GetConfig()
	if err != nil {
		klog.Fatalf("加载配置失败: %v", err)
	}

	if cfg.Database.Type == "sqlite" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.DSN), 0755); err != nil {
			klog.Fatalf("创建数据目录失败: %v", err)
		}
	}

	// 初始化数据库
	db, err := database.InitDB(cfg.Database.Type, cfg.Database.DSN)
	if err != nil {
		klog.Fatalf("初始化数据库失败: %v", err)
	}
	store := repository.NewStore(db)

	settings := config.NewSettings(cfg)

	client, err := llm.NewClient(cfg)
	if err != nil {
		klog.Fatalf("初始化 LLM 客户端失败: %v", err)
	}
	defer client.Close()
	settings.OnChange(func(s config.SettingsSnapshot) {
		client.SetRequestsPerMinute(s.MaxRequestsPerMinute)
		client.SetMaxConcurrency(s.MaxConcurrentRequests)
	})

	// 事件总线
	bus := eventbus.NewNovelEventBus()
	subscriber.NewNovelEventSubscriber(store.States).Register(bus)

	// 初始化 Service
	orch := orchestrator.NewOrchestrator(
		store,
		storycontext.NewAssembler(store),
		factledger.New(store.Facts, client),
		client,
		bus,
	)
	novelService := service.NewNovelService(store)
	planner := service.NewPlanner(store, settings)
	sched := scheduler.NewService(store, orch, settings)
	if cfg.Scheduler.AutoPlan {
		sched.SetPlanner(planner)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *once {
		if err := sched.RunOnce(ctx); err != nil {
			klog.Errorf("调度周期执行失败: %v", err)
			os.Exit(1)
		}
		return
	}

	// 初始化 Handler
	novelHandler := handler.NewNovelHandler(novelService, orch)
	controlHandler := handler.NewControlHandler(ctx, sched)
	configHandler := handler.NewConfigHandler(settings)
	dashboardHandler := handler.NewDashboardHandler(service.NewDashboardService(store), novelService, planner)

	r := router.Setup(cfg, novelHandler, controlHandler, configHandler, dashboardHandler)
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	if cfg.Scheduler.Enabled {
		sched.Start(ctx)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		klog.Infof("Server starting on port %s...", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sched.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		sched.Wait()
		return err
	})

	if err := g.Wait(); err != nil {
		klog.Errorf("服务异常退出: %v", err)
		klog.Flush()
		os.Exit(1)
	}
	klog.V(6).Info("服务已停止")
}
