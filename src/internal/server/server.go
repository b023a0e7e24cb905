// Package server 通过 HTTP 暴露分析会话，进度以 Server-Sent Events 推送
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/gin-gonic/gin"

	"github.com/admi-n/txguard/src/internal/session"
)

// Resolver 把交易哈希解析为目标合约
type Resolver interface {
	ResolveTarget(ctx context.Context, chain string, txHash common.Hash) (common.Address, error)
}

// Server 是 HTTP 服务
type Server struct {
	router      *gin.Engine
	coordinator *session.Coordinator
	source      session.Source
	resolver    Resolver

	inflight sync.Map // target key -> session id
}

// NewServer resolver 可为 nil，此时不支持按交易哈希分析
func NewServer(c *session.Coordinator, src session.Source, resolver Resolver) *Server {
	s := &Server{
		router:      gin.New(),
		coordinator: c,
		source:      src,
		resolver:    resolver,
	}
	s.router.Use(gin.Recovery(), requestLogger())
	s.router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	s.AddRoutes(s.router.Group("/api/v1"))
	return s
}

// Handler 返回路由，供测试和自定义监听使用
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start 监听 addr 直到 ctx 结束
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("🌐 服务已启动", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("📨 请求", "method", c.Request.Method, "path", c.Request.URL.Path,
			"status", c.Writer.Status(), "elapsed", time.Since(start))
	}
}
