// Package adminhttp 提供竞技场的管理接口：运行状态查询、
// 暂停/恢复/步进控制，以及带确认口令的重置入口。
package adminhttp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"arena/internal/logger"

	"github.com/gin-gonic/gin"
)

// Server 承载 /api/arena HTTP 服务。
type Server struct {
	addr   string
	router *gin.Engine
}

// ServerConfig 描述管理服务的依赖。
type ServerConfig struct {
	Addr      string
	Scheduler SchedulerControl
	Ledgers   LedgerAccess
	Registry  TraderDirectory
	Advisor   DecisionAdvisor
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Scheduler == nil {
		return nil, errors.New("admin http server 需要调度器")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9991"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	arenaRouter := NewRouter(cfg.Scheduler, cfg.Ledgers, cfg.Registry, cfg.Advisor)
	arenaRouter.Register(router.Group("/api/arena"))

	return &Server{addr: cfg.Addr, router: router}, nil
}

// requestLogger 记录管理接口的人工操作，便于追踪控制指令来源。
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path
		client := c.ClientIP()
		c.Next()
		dur := time.Since(start)
		status := c.Writer.Status()
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s", method, path, status, client, dur)
	}
}

// Addr 返回监听地址。
func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Start 启动 HTTP 服务，直到 ctx 取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

// Handler 暴露底层路由，测试用。
func (s *Server) Handler() http.Handler {
	return s.router
}
