package router

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"github.com/CanFlyhang/NovelBot/config"
	"github.com/CanFlyhang/NovelBot/internal/embed"
	"github.com/CanFlyhang/NovelBot/internal/handler"
)

func Setup(
	cfg *config.Config,
	novelHandler *handler.NovelHandler,
	controlHandler *handler.ControlHandler,
	configHandler *handler.ConfigHandler,
	dashboardHandler *handler.DashboardHandler,
) *gin.Engine {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
	}))
	// 章节正文与导出文件体积较大
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	api := r.Group("/api")
	{
		novels := api.Group("/novels")
		{
			novels.POST("", novelHandler.Create)
			novels.GET("", novelHandler.List)
			novels.GET("/:id", novelHandler.Get)
			novels.DELETE("/:id", novelHandler.Delete)
			novels.GET("/:id/chapters", novelHandler.ListChapters)
			novels.GET("/:id/latest-chapter", novelHandler.LatestChapter)
			novels.POST("/:id/characters", novelHandler.AddCharacter)
			novels.POST("/:id/plot-nodes", novelHandler.AddPlotNode)
			novels.GET("/:id/facts", novelHandler.ListFacts)
			novels.POST("/:id/generate", novelHandler.Generate)
			novels.GET("/:id/export", novelHandler.Export)
		}

		api.GET("/chapters/:id", novelHandler.GetChapter)

		control := api.Group("/control")
		{
			control.POST("", controlHandler.Control)
			control.GET("/state", controlHandler.State)
		}

		api.GET("/config", configHandler.Get)
		api.POST("/config", configHandler.Update)

		api.GET("/dashboard", dashboardHandler.Summary)
		api.GET("/logs", dashboardHandler.Logs)
		api.POST("/plans/:date", dashboardHandler.Plan)
	}

	embed.SetupRouter(r)

	return r
}
