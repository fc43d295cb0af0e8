package embed

import (
	"embed"
	"io/fs"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

//go:embed ui/*
var embeddedFiles embed.FS

// GetFrontendFS 获取控制面板文件系统
func GetFrontendFS() fs.FS {
	return embeddedFiles
}

// SetupRouter 设置控制面板路由
// 必须在 API 路由之后调用
func SetupRouter(r *gin.Engine) {
	frontendFS := GetFrontendFS()

	r.GET("/", func(c *gin.Context) {
		indexHTML, err := fs.ReadFile(frontendFS, "ui/index.html")
		if err != nil {
			c.String(http.StatusInternalServerError, "Failed to load index.html")
			return
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", indexHTML)
	})

	r.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api") {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.Redirect(http.StatusFound, "/")
	})
}
